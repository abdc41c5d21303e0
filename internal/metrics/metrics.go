// Package metrics holds the in-process prometheus registry: counters for
// items processed by outcome, backfill results, and circuit breaker state
// transitions. Nothing here is served over HTTP — the registry is only
// ever queried in-process, by the `--output json` reports of `scan`,
// `backfill` and `status`, and by tests.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/franklinbaldo/djen-backup/internal/breaker"
	"github.com/franklinbaldo/djen-backup/internal/model"
)

// Registry bundles every metric this module exposes, each registered
// against its own private prometheus.Registry so tests never collide with
// one another or with a process-wide default registry.
type Registry struct {
	reg *prometheus.Registry

	ItemsByOutcome     *prometheus.CounterVec
	BackfillByResult   *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	BreakerState       prometheus.Gauge
}

// New builds a fresh, independently-registered metric set.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ItemsByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "djen_backup_items_total",
			Help: "Scan-mode items processed, labeled by terminal outcome.",
		}, []string{"outcome"}),
		BackfillByResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "djen_backup_backfill_dates_total",
			Help: "Backfill-mode dates processed, labeled by result.",
		}, []string{"result"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "djen_backup_breaker_transitions_total",
			Help: "Circuit breaker state transitions, labeled by the state entered.",
		}, []string{"state"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "djen_backup_breaker_state",
			Help: "Current circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}),
	}

	reg.MustRegister(r.ItemsByOutcome, r.BackfillByResult, r.BreakerTransitions, r.BreakerState)
	return r
}

// ObserveOutcome increments the scan-mode outcome counter.
func (r *Registry) ObserveOutcome(outcome model.Outcome) {
	r.ItemsByOutcome.WithLabelValues(string(outcome)).Inc()
}

// ObserveBackfillResult increments the backfill-mode result counter.
func (r *Registry) ObserveBackfillResult(result model.BackfillResult) {
	r.BackfillByResult.WithLabelValues(string(result)).Inc()
}

// ObserveBreakerState records a breaker transition and updates the gauge.
func (r *Registry) ObserveBreakerState(state breaker.State) {
	r.BreakerTransitions.WithLabelValues(string(state)).Inc()
	r.BreakerState.Set(breakerStateValue(state))
}

func breakerStateValue(state breaker.State) float64 {
	switch state {
	case breaker.Closed:
		return 0
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return -1
	}
}

// Snapshot is the JSON-friendly view included in the CLI's `--output json`
// reports.
type Snapshot struct {
	ItemsByOutcome   map[string]float64 `json:"items_by_outcome"`
	BackfillByResult map[string]float64 `json:"backfill_by_result"`
	BreakerState     string             `json:"breaker_state"`
}

// Gather reads the current counter values back out of the registry.
func (r *Registry) Gather() (Snapshot, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		ItemsByOutcome:   make(map[string]float64),
		BackfillByResult: make(map[string]float64),
	}

	for _, fam := range families {
		switch fam.GetName() {
		case "djen_backup_items_total":
			for _, m := range fam.GetMetric() {
				snap.ItemsByOutcome[labelValue(m, "outcome")] = m.GetCounter().GetValue()
			}
		case "djen_backup_backfill_dates_total":
			for _, m := range fam.GetMetric() {
				snap.BackfillByResult[labelValue(m, "result")] = m.GetCounter().GetValue()
			}
		case "djen_backup_breaker_state":
			for _, m := range fam.GetMetric() {
				snap.BreakerState = breakerStateLabel(m.GetGauge().GetValue())
			}
		}
	}
	return snap, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func breakerStateLabel(v float64) string {
	switch v {
	case 0:
		return string(breaker.Closed)
	case 1:
		return string(breaker.HalfOpen)
	case 2:
		return string(breaker.Open)
	default:
		return "unknown"
	}
}
