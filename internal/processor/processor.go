// Package processor implements the scan-mode per-item state machine
// (backfill classifies its dates separately): deadline gate, circuit-breaker gate, dry-run
// shortcut, source fetch, and archive upload — producing exactly one
// terminal outcome per work item.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franklinbaldo/djen-backup/internal/archiveclient"
	"github.com/franklinbaldo/djen-backup/internal/breaker"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
	"github.com/franklinbaldo/djen-backup/internal/model"
	"github.com/franklinbaldo/djen-backup/internal/sourceclient"
)

// deadlineSlack is the reserved window before the deadline in which no new
// network call is started — it absorbs in-flight work and final
// persistence.
const deadlineSlack = 30 * time.Second

// Deps bundles the collaborators a processing run shares across items.
type Deps struct {
	Source  *sourceclient.Client
	Archive *archiveclient.Client
	Breaker *breaker.Breaker
	Mirror  *mirror.State
	DryRun  bool
	Log     *logrus.Logger
}

// Summary accumulates terminal outcomes across a run. Every increment is
// mutex-guarded.
type Summary struct {
	mu sync.Mutex

	Total           int
	Uploaded        int
	AbsentMarked    int
	SkippedDeadline int
	SkippedCircuit  int
	Failed          int
}

func (s *Summary) incUploaded()        { s.mu.Lock(); s.Uploaded++; s.mu.Unlock() }
func (s *Summary) incAbsentMarked()    { s.mu.Lock(); s.AbsentMarked++; s.mu.Unlock() }
func (s *Summary) incSkippedDeadline() { s.mu.Lock(); s.SkippedDeadline++; s.mu.Unlock() }
func (s *Summary) incSkippedCircuit()  { s.mu.Lock(); s.SkippedCircuit++; s.mu.Unlock() }
func (s *Summary) incFailed()          { s.mu.Lock(); s.Failed++; s.mu.Unlock() }

// Processed is the count of items that reached a terminal success outcome.
func (s *Summary) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Uploaded + s.AbsentMarked
}

// SuccessRate is Processed/Total, defined as 1.0 when Total is zero.
func (s *Summary) SuccessRate() float64 {
	s.mu.Lock()
	total := s.Total
	s.mu.Unlock()
	if total == 0 {
		return 1.0
	}
	return float64(s.Processed()) / float64(total)
}

// ProcessItem runs item through the fetch/classify/upload/record pipeline
// and records its terminal outcome on summary.
func ProcessItem(ctx context.Context, deps Deps, item model.WorkItem, deadline time.Time, summary *Summary) model.Outcome {
	log := deps.Log.WithField("date", item.DateStr()).WithField("tribunal", item.Tribunal)

	if time.Now().After(deadline.Add(-deadlineSlack)) {
		log.Info("skipped_deadline")
		summary.incSkippedDeadline()
		return model.OutcomeSkippedDeadline
	}

	if !deps.Breaker.AllowRequest() {
		log.Info("skipped_circuit_breaker")
		summary.incSkippedCircuit()
		return model.OutcomeSkippedCircuit
	}

	if deps.DryRun {
		log.Info("dry_run_skip")
		summary.incUploaded()
		return model.OutcomeUploaded
	}

	url, err := deps.Source.GetCadernoURL(ctx, item.Tribunal, item.Date)
	if err != nil {
		var absent *sourceclient.AuthoritativeAbsent
		if errors.As(err, &absent) {
			return handleAbsent(ctx, deps, item, absent.StatusCode, absent.Reason, summary, log)
		}
		log.WithError(err).Error("source_fetch_error")
		summary.incFailed()
		return model.OutcomeFailed
	}

	content, err := deps.Source.DownloadZip(ctx, url)
	if err != nil {
		var absent *sourceclient.AuthoritativeAbsent
		if errors.As(err, &absent) {
			return handleAbsent(ctx, deps, item, absent.StatusCode, absent.Reason, summary, log)
		}
		log.WithError(err).Error("source_download_error")
		summary.incFailed()
		return model.OutcomeFailed
	}

	if err := deps.Archive.UploadZip(ctx, item.DateStr(), item.Tribunal, content); err != nil {
		log.WithError(err).Error("archive_upload_error")
		deps.Breaker.RecordFailure()
		summary.incFailed()
		return model.OutcomeFailed
	}

	deps.Breaker.RecordSuccess()
	deps.Mirror.Mark(item.DateStr(), item.Tribunal, model.StatusUploaded)
	summary.incUploaded()
	return model.OutcomeUploaded
}

// handleAbsent uploads the absent marker for an authoritative-absent
// source response. Upload success feeds the breaker a success and marks
// the mirror; upload failure feeds the breaker a failure and leaves no
// state mark so the next run retries.
func handleAbsent(ctx context.Context, deps Deps, item model.WorkItem, statusCode int, reason string, summary *Summary, log *logrus.Entry) model.Outcome {
	log.WithField("status_code", statusCode).Info("djen_not_found")

	err := deps.Archive.UploadAbsentMarker(ctx, item.DateStr(), item.Tribunal, statusCode, reason)
	if err != nil {
		deps.Breaker.RecordFailure()
		summary.incFailed()
		return model.OutcomeFailed
	}

	deps.Breaker.RecordSuccess()
	deps.Mirror.Mark(item.DateStr(), item.Tribunal, model.StatusAbsent)
	summary.incAbsentMarked()
	return model.OutcomeAbsentMarked
}
