package metrics

import (
	"testing"

	"github.com/franklinbaldo/djen-backup/internal/breaker"
	"github.com/franklinbaldo/djen-backup/internal/model"
)

func TestObserveOutcomeAccumulates(t *testing.T) {
	r := New()
	r.ObserveOutcome(model.OutcomeUploaded)
	r.ObserveOutcome(model.OutcomeUploaded)
	r.ObserveOutcome(model.OutcomeFailed)

	snap, err := r.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if snap.ItemsByOutcome["uploaded"] != 2 {
		t.Fatalf("expected 2 uploaded, got %v", snap.ItemsByOutcome["uploaded"])
	}
	if snap.ItemsByOutcome["failed"] != 1 {
		t.Fatalf("expected 1 failed, got %v", snap.ItemsByOutcome["failed"])
	}
}

func TestObserveBreakerStateTracksGauge(t *testing.T) {
	r := New()
	r.ObserveBreakerState(breaker.Open)

	snap, err := r.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if snap.BreakerState != "open" {
		t.Fatalf("expected breaker_state=open, got %q", snap.BreakerState)
	}
}

func TestObserveBackfillResultAccumulates(t *testing.T) {
	r := New()
	r.ObserveBackfillResult(model.ResultEmpty)
	r.ObserveBackfillResult(model.ResultEmpty)
	r.ObserveBackfillResult(model.ResultHit)

	snap, err := r.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if snap.BackfillByResult["empty"] != 2 {
		t.Fatalf("expected 2 empty, got %v", snap.BackfillByResult["empty"])
	}
	if snap.BackfillByResult["hit"] != 1 {
		t.Fatalf("expected 1 hit, got %v", snap.BackfillByResult["hit"])
	}
}
