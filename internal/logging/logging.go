// Package logging builds the single logrus.Logger instance constructed at
// CLI startup and threaded explicitly into every component — there is no
// package-level global logger anywhere in this module.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// isTerminal reports whether f is attached to a character device, the
// cheapest stdlib-only terminal heuristic (no ioctl required).
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Options configures the logger built by New.
type Options struct {
	Verbose bool
	JSON    bool // force JSON formatting regardless of terminal detection
}

// runIDHook stamps every log entry with the run's correlation ID, so a
// single invocation's lines can be grepped out of a shared log stream.
type runIDHook struct {
	runID string
}

func (h runIDHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h runIDHook) Fire(entry *logrus.Entry) error {
	entry.Data["run_id"] = h.runID
	return nil
}

// NewRunID generates the per-run correlation ID attached to every log line.
func NewRunID() string {
	return uuid.NewString()
}

// New constructs a logrus.Logger writing to stderr: JSON formatting when
// stdout isn't a terminal or JSON is forced, a human-readable text
// formatter otherwise. Verbose raises the level to Debug. runID is stamped
// onto every entry via a hook rather than threaded through call sites.
func New(opts Options, runID string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if opts.JSON || !isTerminal(os.Stdout) {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	log.AddHook(runIDHook{runID: runID})

	return log
}
