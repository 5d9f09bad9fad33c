package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/logging"
)

// EntryRunner processes one entry.
type EntryRunner interface {
	Run(ctx context.Context, entry config.SoftwareEntry) EntryResult
}

// Summary aggregates a batch.
type Summary struct {
	Counters
	Checked  int
	Results  []EntryResult
	Duration time.Duration
}

// RunBatch processes entries in order, or up to parallel at a time when
// parallel > 1. Stages of one entry always run in order. Entries not started
// before ctx is cancelled are recorded as failed.
func RunBatch(ctx context.Context, runner EntryRunner, entries []config.SoftwareEntry, parallel int) Summary {
	start := time.Now()
	results := make([]EntryResult, len(entries))

	runOne := func(i int) {
		if err := ctx.Err(); err != nil {
			res := newEntryResult(entries[i])
			res.State = StateFailed
			res.Err = err
			res.Errors = 1
			results[i] = *res
			return
		}
		results[i] = runner.Run(ctx, entries[i])
	}

	if parallel <= 1 {
		for i := range entries {
			runOne(i)
		}
	} else {
		logging.Info("Processing entries in parallel", "workers", parallel, "entries", len(entries))
		var g errgroup.Group
		g.SetLimit(parallel)
		for i := range entries {
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary := Summary{Checked: len(results), Results: results, Duration: time.Since(start)}
	for _, r := range results {
		summary.Add(r.Counters)
	}
	return summary
}
