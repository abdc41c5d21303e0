// Package backfill implements the backfill engine: a per-tribunal
// backward walk from a start date down to a lower bound, stopping a
// tribunal after 60 consecutive authoritative empty days, with per-date
// checkpointing and a ratchet that advances a stopped cursor forward on
// the next run.
package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franklinbaldo/djen-backup/internal/archiveclient"
	"github.com/franklinbaldo/djen-backup/internal/backfillstate"
	"github.com/franklinbaldo/djen-backup/internal/breaker"
	"github.com/franklinbaldo/djen-backup/internal/metrics"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
	"github.com/franklinbaldo/djen-backup/internal/model"
	"github.com/franklinbaldo/djen-backup/internal/sourceclient"
)

const deadlineSlack = 30 * time.Second

// Config configures one backfill run.
type Config struct {
	StartDate       time.Time
	LowerBound      time.Time // zero value means unset (walk to the epoch of available data)
	Tribunal        string    // empty means "all tribunals"
	DeadlineMinutes int
	MaxItems        int // per tribunal per run; 0 = unlimited
	Workers         int // concurrent tribunal walkers
	DryRun          bool
}

// Summary accumulates per-tribunal outcomes across the whole run.
type Summary struct {
	mu sync.Mutex

	Hits           int
	Empties        int
	Errors         int
	SkippedStopped int
}

func (s *Summary) incHit()            { s.mu.Lock(); s.Hits++; s.mu.Unlock() }
func (s *Summary) incEmpty()          { s.mu.Lock(); s.Empties++; s.mu.Unlock() }
func (s *Summary) incError()          { s.mu.Lock(); s.Errors++; s.mu.Unlock() }
func (s *Summary) incSkippedStopped() { s.mu.Lock(); s.SkippedStopped++; s.mu.Unlock() }

// processDate runs one (tribunal, date) through the backfill-specific
// classification: a mirror fast-path short-circuits the network entirely,
// and authoritative absence counts as "empty" only once its marker upload
// has actually succeeded.
func processDate(
	ctx context.Context,
	source *sourceclient.Client,
	archive *archiveclient.Client,
	b *breaker.Breaker,
	state *mirror.State,
	bstate *backfillstate.State,
	tribunal string,
	date time.Time,
	dryRun bool,
	log *logrus.Logger,
) model.BackfillResult {
	dateStr := date.Format("2006-01-02")
	entryLog := log.WithField("date", dateStr).WithField("tribunal", tribunal)

	if status, ok := state.Status(dateStr, tribunal); ok {
		if status == model.StatusUploaded {
			bstate.RecordHit(tribunal, dateStr)
			return model.ResultHit
		}
		bstate.RecordEmpty(tribunal)
		return model.ResultEmpty
	}

	if !b.AllowRequest() {
		bstate.RecordError(tribunal)
		return model.ResultError
	}

	if dryRun {
		entryLog.Info("dry_run_skip")
		bstate.RecordHit(tribunal, dateStr)
		return model.ResultHit
	}

	url, err := source.GetCadernoURL(ctx, tribunal, date)
	if err == nil {
		content, dlErr := source.DownloadZip(ctx, url)
		if dlErr == nil {
			if upErr := archive.UploadZip(ctx, dateStr, tribunal, content); upErr != nil {
				entryLog.WithError(upErr).Error("ia_upload_error")
				b.RecordFailure()
				bstate.RecordError(tribunal)
				return model.ResultError
			}
			b.RecordSuccess()
			state.Mark(dateStr, tribunal, model.StatusUploaded)
			bstate.RecordHit(tribunal, dateStr)
			return model.ResultHit
		}
		err = dlErr
	}

	var absent *sourceclient.AuthoritativeAbsent
	if errors.As(err, &absent) {
		entryLog.WithField("status_code", absent.StatusCode).Info("djen_not_found")
		if upErr := archive.UploadAbsentMarker(ctx, dateStr, tribunal, absent.StatusCode, absent.Reason); upErr != nil {
			b.RecordFailure()
			bstate.RecordError(tribunal)
			return model.ResultError
		}
		b.RecordSuccess()
		state.Mark(dateStr, tribunal, model.StatusAbsent)
		bstate.RecordEmpty(tribunal)
		return model.ResultEmpty
	}

	entryLog.WithError(err).Error("djen_download_error")
	bstate.RecordError(tribunal)
	return model.ResultError
}

// walkTribunal runs the per-tribunal backward walk: load or init progress,
// skip if stopped, then loop backward from the cursor while respecting the
// lower bound, deadline, and max-items cap, checkpointing after every date.
func walkTribunal(
	ctx context.Context,
	source *sourceclient.Client,
	archive *archiveclient.Client,
	b *breaker.Breaker,
	state *mirror.State,
	bstate *backfillstate.State,
	backfillStatePath string,
	tribunal string,
	cfg Config,
	deadline time.Time,
	summary *Summary,
	reg *metrics.Registry,
	log *logrus.Logger,
) {
	startStr := cfg.StartDate.Format("2006-01-02")
	if bstate.GetOrInit(tribunal, startStr).Stopped {
		summary.incSkippedStopped()
		return
	}

	itemsProcessed := 0
	for {
		cursorStr := bstate.GetOrInit(tribunal, startStr).CursorDate
		cursor, err := time.Parse("2006-01-02", cursorStr)
		if err != nil {
			return
		}
		if !cfg.LowerBound.IsZero() && cursor.Before(cfg.LowerBound) {
			return
		}
		if time.Now().After(deadline.Add(-deadlineSlack)) {
			return
		}
		if cfg.MaxItems > 0 && itemsProcessed >= cfg.MaxItems {
			return
		}

		result := processDate(ctx, source, archive, b, state, bstate, tribunal, cursor, cfg.DryRun, log)
		switch result {
		case model.ResultHit:
			summary.incHit()
		case model.ResultEmpty:
			summary.incEmpty()
		case model.ResultError:
			summary.incError()
		}
		if reg != nil {
			reg.ObserveBackfillResult(result)
			reg.ObserveBreakerState(b.State())
		}

		bstate.AdvanceCursor(tribunal, cursor.Format("2006-01-02"))
		itemsProcessed++

		if err := backfillstate.Save(bstate, backfillStatePath, log); err != nil {
			log.WithError(err).Warn("backfill_checkpoint_failed")
		}

		if result == model.ResultEmpty {
			p := bstate.GetAllProgress()[tribunal]
			if p.Stopped {
				return
			}
		}
	}
}

// Run orchestrates the whole backfill: resolve the tribunal set, ratchet
// every cursor forward to at least cfg.StartDate, then dispatch a bounded
// pool of concurrent per-tribunal walkers.
func Run(
	ctx context.Context,
	source *sourceclient.Client,
	archive *archiveclient.Client,
	state *mirror.State,
	bstate *backfillstate.State,
	backfillStatePath string,
	reg *metrics.Registry,
	cfg Config,
	log *logrus.Logger,
) *Summary {
	deadline := time.Now().Add(time.Duration(cfg.DeadlineMinutes) * time.Minute)
	summary := &Summary{}

	tribunals := source.ListTribunals(ctx)
	if cfg.Tribunal != "" {
		tribunals = []string{cfg.Tribunal}
	}

	startStr := cfg.StartDate.Format("2006-01-02")
	for _, t := range tribunals {
		if bstate.EnsureCursorAtLeast(t, startStr) {
			log.WithField("tribunal", t).WithField("start", startStr).Info("cursor_auto_advanced")
		}
	}

	b := breaker.New(5, 60*time.Second)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, t := range tribunals {
		wg.Add(1)
		sem <- struct{}{}
		go func(tribunal string) {
			defer wg.Done()
			defer func() { <-sem }()
			walkTribunal(ctx, source, archive, b, state, bstate, backfillStatePath, tribunal, cfg, deadline, summary, reg, log)
		}(t)
	}
	wg.Wait()

	log.WithFields(logrus.Fields{
		"hits":            summary.Hits,
		"empties":         summary.Empties,
		"errors":          summary.Errors,
		"skipped_stopped": summary.SkippedStopped,
	}).Info("backfill_complete")

	return summary
}
