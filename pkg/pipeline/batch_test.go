package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windowsadmins/cimisync/pkg/config"
)

type countingRunner struct {
	calls   atomic.Int32
	results map[string]Counters
}

func (r *countingRunner) Run(_ context.Context, entry config.SoftwareEntry) EntryResult {
	r.calls.Add(1)
	res := newEntryResult(entry)
	res.Counters = r.results[entry.SoftwareName]
	res.State = StateCleanedUp
	return *res
}

func batchEntries(names ...string) []config.SoftwareEntry {
	var out []config.SoftwareEntry
	for _, n := range names {
		out = append(out, config.SoftwareEntry{SoftwareName: n, Arch: "x64"})
	}
	return out
}

func TestRunBatchCounters(t *testing.T) {
	for _, parallel := range []int{1, 3} {
		runner := &countingRunner{results: map[string]Counters{
			"a": {Warnings: 1},
			"b": {Errors: 2},
			"c": {Warnings: 1, Errors: 1},
		}}
		summary := RunBatch(context.Background(), runner, batchEntries("a", "b", "c", "d"), parallel)

		assert.Equal(t, 4, summary.Checked, "parallel=%d", parallel)
		assert.Equal(t, Counters{Warnings: 2, Errors: 3}, summary.Counters, "parallel=%d", parallel)
		assert.EqualValues(t, 4, runner.calls.Load())
		for i, name := range []string{"a", "b", "c", "d"} {
			assert.Equal(t, name, summary.Results[i].Entry.SoftwareName)
		}
	}
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &countingRunner{}

	summary := RunBatch(ctx, runner, batchEntries("a", "b"), 1)
	assert.EqualValues(t, 0, runner.calls.Load())
	assert.Equal(t, 2, summary.Errors)
	for _, r := range summary.Results {
		assert.Equal(t, StateFailed, r.State)
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.False(t, r.Succeeded())
	}
}
