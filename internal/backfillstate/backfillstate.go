// Package backfillstate tracks per-tribunal backward-scan progress: a
// cursor date, a consecutive-empty streak, a stopped flag, and the last
// observed result — JSON-persisted so a backfill run can resume exactly
// where the previous one left off.
package backfillstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/franklinbaldo/djen-backup/internal/model"
)

// StopThreshold is the number of consecutive authoritative empty days
// (moving backward) that stops a tribunal's backfill walk.
const StopThreshold = 60

const stateVersion = 1

// TribunalProgress is the per-tribunal backfill cursor and its associated
// bookkeeping.
type TribunalProgress struct {
	CursorDate     string               `json:"cursor_date"`
	EmptyStreak    int                  `json:"empty_streak"`
	Stopped        bool                 `json:"stopped"`
	LastHitDate    string               `json:"last_hit_date,omitempty"`
	LastCheckedAt  string               `json:"last_checked_at,omitempty"`
	LastResult     model.BackfillResult `json:"last_result,omitempty"`
}

// State is the JSON-persisted map of tribunal code to TribunalProgress.
// Every mutating method takes the internal mutex for its entire body.
type State struct {
	mu         sync.Mutex
	tribunals  map[string]*TribunalProgress
}

// New returns an empty backfill state.
func New() *State {
	return &State{tribunals: make(map[string]*TribunalProgress)}
}

// GetOrInit returns the tribunal's progress, creating it with
// cursor_date=startDate if this is the first time T is seen.
func (s *State) GetOrInit(tribunal, startDate string) *TribunalProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.tribunals[tribunal]
	if !ok {
		p = &TribunalProgress{CursorDate: startDate}
		s.tribunals[tribunal] = p
	}
	return p
}

// RecordHit resets the empty streak to zero and records the hit date.
func (s *State) RecordHit(tribunal, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tribunals[tribunal]
	if p == nil {
		return
	}
	p.EmptyStreak = 0
	p.LastHitDate = date
	p.LastResult = model.ResultHit
	p.LastCheckedAt = time.Now().UTC().Format(time.RFC3339)
}

// RecordEmpty increments the empty streak and, when it reaches
// StopThreshold, sets Stopped=true in the same critical section. Returns
// whether this call caused the tribunal to stop.
func (s *State) RecordEmpty(tribunal string) (stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tribunals[tribunal]
	if p == nil {
		return false
	}
	p.EmptyStreak++
	p.LastResult = model.ResultEmpty
	p.LastCheckedAt = time.Now().UTC().Format(time.RFC3339)
	if p.EmptyStreak >= StopThreshold {
		p.Stopped = true
		return true
	}
	return false
}

// RecordError leaves the empty streak unchanged — errors are
// non-authoritative and must not influence the stop rule.
func (s *State) RecordError(tribunal string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tribunals[tribunal]
	if p == nil {
		return
	}
	p.LastResult = model.ResultError
	p.LastCheckedAt = time.Now().UTC().Format(time.RFC3339)
}

// AdvanceCursor moves the tribunal's cursor one day backward from date.
func (s *State) AdvanceCursor(tribunal, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tribunals[tribunal]
	if p == nil {
		return
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return
	}
	p.CursorDate = t.AddDate(0, 0, -1).Format("2006-01-02")
}

// ResetTribunal clears Stopped and EmptyStreak for tribunal, leaving the
// cursor untouched — the operator resumes from wherever it stood. Returns
// false if the tribunal has no recorded progress.
func (s *State) ResetTribunal(tribunal string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.tribunals[tribunal]
	if p == nil {
		return false
	}
	p.Stopped = false
	p.EmptyStreak = 0
	return true
}

// EnsureCursorAtLeast is the ratchet: if the stored cursor predates
// startDate, it advances the cursor forward to startDate and clears
// Stopped/EmptyStreak, picking up newly published dates without losing
// the prior stop. Returns true if it advanced anything.
func (s *State) EnsureCursorAtLeast(tribunal, startDate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.tribunals[tribunal]
	if !ok {
		s.tribunals[tribunal] = &TribunalProgress{CursorDate: startDate}
		return false
	}
	if p.CursorDate >= startDate {
		return false
	}
	p.CursorDate = startDate
	p.Stopped = false
	p.EmptyStreak = 0
	return true
}

// GetAllProgress returns a snapshot of every tribunal's progress, for CLI
// status display. This is a read-only snapshot: concurrent mutation of
// individual entries may be observed as a partially-updated view.
func (s *State) GetAllProgress() map[string]TribunalProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]TribunalProgress, len(s.tribunals))
	for code, p := range s.tribunals {
		out[code] = *p
	}
	return out
}

type wireState struct {
	Version   int                          `json:"version"`
	UpdatedAt string                       `json:"updated_at"`
	Tribunals map[string]*TribunalProgress `json:"tribunals"`
}

// ToDict snapshots the state into its persisted JSON shape.
func (s *State) ToDict() ([]byte, error) {
	s.mu.Lock()
	snapshot := make(map[string]*TribunalProgress, len(s.tribunals))
	for code, p := range s.tribunals {
		cp := *p
		snapshot[code] = &cp
	}
	s.mu.Unlock()

	w := wireState{
		Version:   stateVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Tribunals: snapshot,
	}
	return json.MarshalIndent(w, "", "  ")
}

// FromDict replaces the state's contents with the given persisted JSON.
func (s *State) FromDict(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal backfill state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Tribunals == nil {
		w.Tribunals = make(map[string]*TribunalProgress)
	}
	s.tribunals = w.Tribunals
	return nil
}

// Load reads the backfill state from path, yielding an empty state on a
// missing or corrupt file (with a warning log in the corrupt case).
func Load(path string, log *logrus.Logger) *State {
	s := New()
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("backfill_state_cache_corrupt")
		}
		return s
	}

	if err := s.FromDict(data); err != nil {
		log.WithError(err).Warn("backfill_state_cache_corrupt")
		return New()
	}

	log.WithField("path", path).Info("backfill_state_cache_loaded")
	return s
}

// Save atomically persists the state to path. A blank path is a no-op.
func Save(s *State, path string, log *logrus.Logger) error {
	if path == "" {
		return nil
	}

	data, err := s.ToDict()
	if err != nil {
		return fmt.Errorf("marshal backfill state: %w", err)
	}
	data = append(data, '\n')

	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("save backfill state: %w", err)
	}
	log.WithField("path", path).Info("backfill_state_cache_saved")
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-backfill-"+uuid.NewString()+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
