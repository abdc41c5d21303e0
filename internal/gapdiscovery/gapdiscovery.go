// Package gapdiscovery builds the scan-mode work queue: for each date in a
// window, the set of tribunals not yet known (via the mirror cache or the
// archive's own metadata listing) to have an uploaded or absent artifact.
package gapdiscovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/franklinbaldo/djen-backup/internal/archiveclient"
	"github.com/franklinbaldo/djen-backup/internal/mirror"
	"github.com/franklinbaldo/djen-backup/internal/model"
)

// metadataConcurrency bounds how many archive-metadata listings may be
// in flight at once, independent of the scan worker pool's concurrency.
const metadataConcurrency = 5

// dateRange returns dates from end down to start inclusive, newest first.
func dateRange(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := end; !d.Before(start); d = d.AddDate(0, 0, -1) {
		dates = append(dates, d)
	}
	return dates
}

// Discover builds the work queue of (date, tribunal) pairs not yet
// reflected in the mirror, newest-date-first. A date whose tribunals are
// all already cached as done short-circuits without a remote call; otherwise
// the archive's listing is fetched (bounded to metadataConcurrency
// in-flight) and folded into the mirror state as a side effect.
func Discover(
	ctx context.Context,
	archive *archiveclient.Client,
	state *mirror.State,
	tribunals []string,
	startDate, endDate time.Time,
	forceRecheck bool,
) []model.WorkItem {
	dates := dateRange(startDate, endDate)
	tribunalSet := make(map[string]struct{}, len(tribunals))
	for _, t := range tribunals {
		tribunalSet[t] = struct{}{}
	}

	perDate := make([][]model.WorkItem, len(dates))
	sem := make(chan struct{}, metadataConcurrency)
	var wg sync.WaitGroup

	for i, d := range dates {
		wg.Add(1)
		go func(i int, d time.Time) {
			defer wg.Done()
			perDate[i] = checkDate(ctx, archive, d, tribunalSet, state, forceRecheck, sem)
		}(i, d)
	}
	wg.Wait()

	var work []model.WorkItem
	for _, items := range perDate {
		work = append(work, items...)
	}
	return work
}

func checkDate(
	ctx context.Context,
	archive *archiveclient.Client,
	d time.Time,
	tribunals map[string]struct{},
	state *mirror.State,
	forceRecheck bool,
	sem chan struct{},
) []model.WorkItem {
	dateStr := d.Format("2006-01-02")

	if !forceRecheck {
		done := state.GetDoneTribunals(dateStr)
		if isSubset(tribunals, done) {
			return nil
		}
	}

	sem <- struct{}{}
	existing := archive.ListExisting(ctx, dateStr)
	<-sem

	for tribunal, status := range existing {
		state.Mark(dateStr, tribunal, status)
	}

	var done map[string]struct{}
	if forceRecheck {
		done = make(map[string]struct{}, len(existing))
		for t := range existing {
			done[t] = struct{}{}
		}
	} else {
		done = state.GetDoneTribunals(dateStr)
	}

	var gaps []string
	for t := range tribunals {
		if _, ok := done[t]; !ok {
			gaps = append(gaps, t)
		}
	}
	sort.Strings(gaps)

	items := make([]model.WorkItem, 0, len(gaps))
	for _, t := range gaps {
		items = append(items, model.WorkItem{Date: d, Tribunal: t})
	}
	return items
}

// isSubset reports whether every element of want is present in have.
func isSubset(want map[string]struct{}, have map[string]struct{}) bool {
	for t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
