package reporting

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/pipeline"
)

func result(name string, state pipeline.State, errs int) pipeline.EntryResult {
	r := pipeline.EntryResult{
		Entry:           config.SoftwareEntry{Publisher: "Vendor", SoftwareName: name, Arch: "x64", SourceType: config.SourceWinget},
		State:           state,
		ResolvedVersion: "2.0",
		ExistingVersion: "1.0",
		ArtifactName:    name + "_x64_2.0.exe",
		Stages:          map[pipeline.Stage]pipeline.StageStatus{pipeline.StageDownload: pipeline.StatusOK},
	}
	r.Errors = errs
	if errs > 0 {
		r.Err = errors.New("download failed")
	}
	return r
}

func summary(results ...pipeline.EntryResult) pipeline.Summary {
	s := pipeline.Summary{Checked: len(results), Results: results}
	for _, r := range results {
		s.Add(r.Counters)
	}
	return s
}

func TestItemStatus(t *testing.T) {
	assert.Equal(t, StatusUpdated, ItemStatus(result("a", pipeline.StateCleanedUp, 0), false))
	assert.Equal(t, StatusDryRun, ItemStatus(result("a", pipeline.StateCleanedUp, 0), true))
	assert.Equal(t, StatusUpToDate, ItemStatus(result("a", pipeline.StateUpToDate, 0), false))
	assert.Equal(t, StatusNotFound, ItemStatus(result("a", pipeline.StateNotFound, 0), false))
	assert.Equal(t, StatusFailed, ItemStatus(result("a", pipeline.StateFailed, 1), false))
	assert.Equal(t, StatusFailed, ItemStatus(result("a", pipeline.StateCleanedUp, 1), false))
	assert.Equal(t, StatusPartial, ItemStatus(result("a", pipeline.StatePushed, 0), false))
}

func TestBuildSession(t *testing.T) {
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	info := RunInfo{SessionID: "s1", Start: start, End: start.Add(90 * time.Second)}

	rec := BuildSession(info, summary(
		result("A", pipeline.StateCleanedUp, 0),
		result("B", pipeline.StateUpToDate, 0),
		result("C", pipeline.StateFailed, 1),
	))
	assert.Equal(t, "partial", rec.Status)
	assert.Equal(t, int64(90), rec.Duration)
	assert.Equal(t, 3, rec.Checked)
	assert.Equal(t, 1, rec.Updated)
	assert.Equal(t, 1, rec.UpToDate)
	assert.Equal(t, 1, rec.Failed)
	assert.Equal(t, []string{"A (x64)"}, rec.PackagesHandled)

	assert.Equal(t, "failed", BuildSession(info, summary(result("C", pipeline.StateFailed, 1))).Status)
	assert.Equal(t, "success", BuildSession(info, summary()).Status)
}

func TestMergeItemsTracksConsecutiveFailures(t *testing.T) {
	t1 := RunInfo{SessionID: "s1", End: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
	t2 := RunInfo{SessionID: "s2", End: t1.End.Add(24 * time.Hour)}
	t3 := RunInfo{SessionID: "s3", End: t2.End.Add(24 * time.Hour)}

	items := MergeItems(nil, t1, []pipeline.EntryResult{result("A", pipeline.StateCleanedUp, 0)})
	require.Len(t, items, 1)
	assert.Equal(t, "2.0", items[0].PublishedVersion)
	assert.Equal(t, t1.End.Format(time.RFC3339), items[0].LastSuccessfulTime)

	items = MergeItems(items, t2, []pipeline.EntryResult{result("A", pipeline.StateFailed, 1), result("B", pipeline.StateFailed, 1)})
	items = MergeItems(items, t3, []pipeline.EntryResult{result("A", pipeline.StateFailed, 1)})
	require.Len(t, items, 2)
	a, b := items[0], items[1]
	assert.Equal(t, "A (x64)", a.ItemName)
	assert.Equal(t, 2, a.FailureCount)
	assert.Equal(t, "download failed", a.LastError)
	assert.Equal(t, "2.0", a.PublishedVersion, "published version survives failures")
	assert.Equal(t, t1.End.Format(time.RFC3339), a.LastSuccessfulTime)
	assert.Equal(t, "s3", a.LastSeenInSession)
	assert.Equal(t, 1, b.FailureCount)
	assert.Equal(t, "ok", a.Stages["download"])

	items = MergeItems(items, t3, []pipeline.EntryResult{result("A", pipeline.StateUpToDate, 0)})
	assert.Equal(t, 0, items[0].FailureCount)
	assert.Empty(t, items[0].LastError)
}

func TestPruneSessions(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	sessions := []SessionRecord{
		{SessionID: "old", StartTime: now.AddDate(0, 0, -40).Format(time.RFC3339)},
		{SessionID: "recent", StartTime: now.AddDate(0, 0, -2).Format(time.RFC3339)},
		{SessionID: "garbled", StartTime: "yesterday"},
	}
	kept := PruneSessions(append([]SessionRecord(nil), sessions...), now, 30)
	require.Len(t, kept, 2)
	assert.Equal(t, "recent", kept[0].SessionID)
	assert.Equal(t, "garbled", kept[1].SessionID)

	assert.Len(t, PruneSessions(append([]SessionRecord(nil), sessions...), now, 0), 3)
}

func TestExportAppendsAndMerges(t *testing.T) {
	exp := NewDataExporter(t.TempDir() + "/reports")
	start := time.Now().Add(-time.Minute)
	info := RunInfo{SessionID: "s1", Start: start, End: time.Now()}

	require.NoError(t, exp.Export(info, summary(result("A", pipeline.StateCleanedUp, 0)), 30))
	info.SessionID = "s2"
	require.NoError(t, exp.Export(info, summary(result("B", pipeline.StateNotFound, 0)), 30))

	var sessions []SessionRecord
	data, err := os.ReadFile(exp.SessionsPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[1].SessionID)
	assert.Equal(t, 1, sessions[1].NotFound)

	var items []ItemRecord
	data, err = os.ReadFile(exp.ItemsPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, StatusUpdated, items[0].CurrentStatus)
	assert.Equal(t, StatusNotFound, items[1].CurrentStatus)
}

func TestExportRejectsCorruptTable(t *testing.T) {
	exp := NewDataExporter(t.TempDir())
	require.NoError(t, os.WriteFile(exp.SessionsPath(), []byte("{not json"), 0644))
	assert.Error(t, exp.Export(RunInfo{SessionID: "s"}, summary(), 30))
}
