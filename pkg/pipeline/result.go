// pkg/pipeline/result.go - per-entry outcome and counters.

package pipeline

import (
	"time"

	"github.com/windowsadmins/cimisync/pkg/config"
)

// State is the last pipeline state an entry reached.
type State string

const (
	StatePending         State = "Pending"
	StatePathsBuilt      State = "PathsBuilt"
	StateIntentResolved  State = "IntentResolved"
	StateUpToDate        State = "UpToDate"
	StateUpdateNeeded    State = "UpdateNeeded"
	StateAcquired        State = "Acquired"
	StateNestedExtracted State = "NestedExtracted"
	StateStored          State = "Stored"
	StateChecksumFetched State = "ChecksumFetched"
	StateFilesRewritten  State = "PackageFilesRewritten"
	StatePushed          State = "Packed&Pushed"
	StateCleanedUp       State = "CleanedUp"
	StateNotFound        State = "NotFound"
	StateFailed          State = "Failed"
)

// Stage names a reported pipeline step.
type Stage string

const (
	StageDownload Stage = "download"
	StagePublish  Stage = "publish"
	StageManifest Stage = "manifest"
	StageScript   Stage = "script"
	StagePack     Stage = "pack+push"
)

// ReportedStages is the order stages are summarised in.
var ReportedStages = []Stage{StageDownload, StagePublish, StageManifest, StageScript, StagePack}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusNotRun  StageStatus = "not-run"
	StatusOK      StageStatus = "ok"
	StatusSkipped StageStatus = "skipped"
	StatusFailed  StageStatus = "failed"
)

// Counters accumulates warnings and errors.
type Counters struct {
	Warnings int
	Errors   int
}

// Add sums other into c.
func (c *Counters) Add(other Counters) {
	c.Warnings += other.Warnings
	c.Errors += other.Errors
}

// EntryResult is everything the batch driver learns about one entry.
type EntryResult struct {
	Counters
	Entry           config.SoftwareEntry
	State           State
	ResolvedVersion string
	ExistingVersion string
	ArtifactName    string
	Stages          map[Stage]StageStatus
	Err             error
	Duration        time.Duration
}

func newEntryResult(entry config.SoftwareEntry) *EntryResult {
	stages := make(map[Stage]StageStatus, len(ReportedStages))
	for _, s := range ReportedStages {
		stages[s] = StatusNotRun
	}
	return &EntryResult{Entry: entry, State: StatePending, Stages: stages}
}

// Succeeded reports whether the entry ended without errors.
func (r EntryResult) Succeeded() bool {
	return r.Errors == 0 && r.State != StateFailed
}
