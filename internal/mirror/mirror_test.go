package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/franklinbaldo/djen-backup/internal/model"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return l
}

func TestMarkThenIsDone(t *testing.T) {
	s := New()
	s.Mark("2024-01-15", "TJSP", model.StatusUploaded)

	if !s.IsDone("2024-01-15", "TJSP") {
		t.Fatal("expected IsDone to be true after Mark")
	}
	done := s.GetDoneTribunals("2024-01-15")
	if _, ok := done["TJSP"]; !ok {
		t.Fatal("expected TJSP in GetDoneTribunals")
	}
}

func TestMarkIsMonotone(t *testing.T) {
	s := New()
	s.Mark("2024-01-15", "TJSP", model.StatusUploaded)
	s.Mark("2024-01-15", "TJSP", model.StatusAbsent)

	s.mu.Lock()
	got := s.entries["2024-01-15"]["TJSP"]
	s.mu.Unlock()
	if got != model.StatusUploaded {
		t.Fatalf("expected status to remain UPLOADED (monotone), got %s", got)
	}
}

func TestPruneTTL(t *testing.T) {
	s := New()
	s.Mark("2000-01-01", "TJSP", model.StatusUploaded)
	s.Mark("2099-01-01", "TJRJ", model.StatusUploaded)

	removed := s.Prune(TTLDays)
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	if s.IsDone("2000-01-01", "TJSP") {
		t.Fatal("expected old entry to be pruned")
	}
	if !s.IsDone("2099-01-01", "TJRJ") {
		t.Fatal("expected future entry to survive prune")
	}
}

func TestRoundTrip(t *testing.T) {
	s := New()
	s.Mark("2024-01-15", "TJSP", model.StatusUploaded)
	s.Mark("2024-01-15", "TJRJ", model.StatusAbsent)

	data, err := s.ToDict()
	if err != nil {
		t.Fatalf("ToDict: %v", err)
	}

	restored := New()
	if err := restored.FromDict(data); err != nil {
		t.Fatalf("FromDict: %v", err)
	}

	if !restored.IsDone("2024-01-15", "TJSP") || !restored.IsDone("2024-01-15", "TJRJ") {
		t.Fatal("round trip lost entries")
	}
}

func TestLoadMissingFileYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	s := Load(filepath.Join(dir, "missing.json"), testLogger())
	if s.IsDone("2024-01-15", "TJSP") {
		t.Fatal("expected empty state for missing file")
	}
}

func TestLoadCorruptFileYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := Load(path, testLogger())
	if s.IsDone("2024-01-15", "TJSP") {
		t.Fatal("expected empty state for corrupt file")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := New()
	s.Mark("2024-01-15", "TJSP", model.StatusUploaded)

	if err := Save(s, path, testLogger()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Load(path, testLogger())
	if !loaded.IsDone("2024-01-15", "TJSP") {
		t.Fatal("expected saved entry to survive reload")
	}
}

func TestSaveBlankPathIsNoOp(t *testing.T) {
	s := New()
	if err := Save(s, "", testLogger()); err != nil {
		t.Fatalf("expected no-op save to succeed, got %v", err)
	}
}
