// Package mirror tracks which (date, tribunal) pairs are already known to
// exist in the archive, as a JSON-persisted cache fronting the archive's
// own metadata listing. It is the IA-mirror state described in the
// component design: a mapping keyed by ISO date string to a mapping from
// tribunal code to ItemStatus.
package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/franklinbaldo/djen-backup/internal/model"
)

// TTLDays is the retention window applied on every save: entries keyed by
// a date strictly older than today-TTLDays are pruned.
const TTLDays = 90

// stateVersion is written to every persisted file and bumped if the wire
// format ever changes shape.
const stateVersion = 1

// State is the in-memory IA-mirror cache. All mutating methods take the
// internal mutex for their entire body; the mirror is monotone within a
// run (marks are added, never rewritten to a different status).
type State struct {
	mu      sync.Mutex
	entries map[string]map[string]model.ItemStatus
}

// New returns an empty mirror state.
func New() *State {
	return &State{entries: make(map[string]map[string]model.ItemStatus)}
}

// Mark records that (date, tribunal) is known to exist in the archive with
// the given status. A (date, tribunal) already present in the mirror is
// never rewritten to a different status, matching the monotone invariant.
func (s *State) Mark(date string, tribunal string, status model.ItemStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTribunal, ok := s.entries[date]
	if !ok {
		byTribunal = make(map[string]model.ItemStatus)
		s.entries[date] = byTribunal
	}
	if _, exists := byTribunal[tribunal]; !exists {
		byTribunal[tribunal] = status
	}
}

// GetDoneTribunals returns the set of tribunals already marked done for
// date. The date's entry is looked up under the mutex; the returned set is
// a fresh copy the caller may keep.
func (s *State) GetDoneTribunals(date string) map[string]struct{} {
	s.mu.Lock()
	byTribunal := s.entries[date]
	s.mu.Unlock()

	done := make(map[string]struct{}, len(byTribunal))
	for t := range byTribunal {
		done[t] = struct{}{}
	}
	return done
}

// IsDone reports whether (date, tribunal) is already marked in the mirror.
func (s *State) IsDone(date, tribunal string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[date][tribunal]
	return ok
}

// Status returns the recorded status for (date, tribunal), if any.
func (s *State) Status(date, tribunal string) (model.ItemStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.entries[date][tribunal]
	return st, ok
}

// Prune removes entries keyed by a date strictly older than
// today-ttlDays (ISO-lexicographic comparison, which is valid for
// YYYY-MM-DD strings) and returns the number of date keys removed.
func (s *State) Prune(ttlDays int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -ttlDays).Format("2006-01-02")
	removed := 0
	for date := range s.entries {
		if date < cutoff {
			delete(s.entries, date)
			removed++
		}
	}
	return removed
}

// wireEntry is the JSON shape of the persisted state file.
type wireEntry struct {
	Version   int                                  `json:"version"`
	UpdatedAt string                                `json:"updated_at"`
	Entries   map[string]map[string]model.ItemStatus `json:"entries"`
}

// ToDict snapshots the state into its persisted JSON shape.
func (s *State) ToDict() ([]byte, error) {
	s.mu.Lock()
	snapshot := make(map[string]map[string]model.ItemStatus, len(s.entries))
	for date, byTribunal := range s.entries {
		inner := make(map[string]model.ItemStatus, len(byTribunal))
		for t, st := range byTribunal {
			inner[t] = st
		}
		snapshot[date] = inner
	}
	s.mu.Unlock()

	w := wireEntry{
		Version:   stateVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:   snapshot,
	}
	return json.MarshalIndent(w, "", "  ")
}

// FromDict replaces the state's contents with the given persisted JSON.
func (s *State) FromDict(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal mirror state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Entries == nil {
		w.Entries = make(map[string]map[string]model.ItemStatus)
	}
	s.entries = w.Entries
	return nil
}

// DoneTribunalCodes returns the done tribunals for date as a sorted slice,
// convenient for gap-discovery's set-difference step.
func DoneTribunalCodes(done map[string]struct{}) []string {
	codes := make([]string, 0, len(done))
	for t := range done {
		codes = append(codes, t)
	}
	sort.Strings(codes)
	return codes
}

// Load reads the mirror state from path. A missing file yields an empty
// state; a corrupt file yields an empty state and a warning log, and the
// run proceeds (per the deserialization-error invariant shared by both
// state caches).
func Load(path string, log *logrus.Logger) *State {
	s := New()
	if path == "" {
		return s
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("mirror_state_cache_corrupt")
		}
		return s
	}

	if err := s.FromDict(data); err != nil {
		log.WithError(err).Warn("mirror_state_cache_corrupt")
		return New()
	}

	log.WithField("path", path).Info("mirror_state_cache_loaded")
	return s
}

// Save prunes entries older than TTLDays, then atomically persists the
// state to path (temp file in the same directory, fsync, rename). A blank
// path is a no-op, matching the original's "save_state no-ops on a nil
// path" behavior used by dry-run invocations.
func Save(s *State, path string, log *logrus.Logger) error {
	if path == "" {
		return nil
	}

	if removed := s.Prune(TTLDays); removed > 0 {
		log.WithField("removed", removed).Info("mirror_state_pruned")
	}

	data, err := s.ToDict()
	if err != nil {
		return fmt.Errorf("marshal mirror state: %w", err)
	}
	data = append(data, '\n')

	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("save mirror state: %w", err)
	}
	log.WithField("path", path).Info("mirror_state_cache_saved")
	return nil
}

// atomicWrite writes data to a temp file in path's directory, syncs it,
// and renames it over path — the same discipline the teacher's storage
// package uses for every persisted file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-mirror-"+uuid.NewString()+"-")
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
