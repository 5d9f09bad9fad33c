// pkg/reporting/reporting.go - Run reports for external monitoring tools
//
// Each run appends a session record to sessions.json and merges its entry
// outcomes into items.json, both in the reports directory.

package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/windowsadmins/cimisync/pkg/pipeline"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// Item statuses written to items.json.
const (
	StatusUpdated  = "updated"
	StatusDryRun   = "dry_run"
	StatusUpToDate = "up_to_date"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
	StatusPartial  = "incomplete"
)

// SessionRecord represents a row in the sessions table
type SessionRecord struct {
	SessionID       string   `json:"session_id"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	Status          string   `json:"status"` // "success", "partial", "failed"
	Duration        int64    `json:"duration_seconds"`
	Checked         int      `json:"checked"`
	Updated         int      `json:"updated"`
	UpToDate        int      `json:"up_to_date"`
	NotFound        int      `json:"not_found"`
	Failed          int      `json:"failed"`
	Warnings        int      `json:"warnings"`
	Errors          int      `json:"errors"`
	DryRun          bool     `json:"dry_run"`
	Hostname        string   `json:"hostname"`
	User            string   `json:"user"`
	LogVersion      string   `json:"log_version"`
	PackagesHandled []string `json:"packages_handled,omitempty"`
}

// ItemRecord represents a row in the items table, one per software entry
type ItemRecord struct {
	ItemName           string            `json:"item_name"`
	Publisher          string            `json:"publisher"`
	Arch               string            `json:"arch"`
	Source             string            `json:"source"`
	CurrentStatus      string            `json:"current_status"`
	LatestVersion      string            `json:"latest_version,omitempty"`
	PublishedVersion   string            `json:"published_version,omitempty"`
	Artifact           string            `json:"artifact,omitempty"`
	Stages             map[string]string `json:"stages,omitempty"`
	LastSeenInSession  string            `json:"last_seen_in_session"`
	LastAttemptTime    string            `json:"last_attempt_time"`
	LastSuccessfulTime string            `json:"last_successful_time,omitempty"`
	FailureCount       int               `json:"failure_count"` // consecutive
	WarningCount       int               `json:"warning_count"` // last attempt
	LastError          string            `json:"last_error,omitempty"`
}

// RunInfo identifies the run being reported.
type RunInfo struct {
	SessionID string
	Start     time.Time
	End       time.Time
	DryRun    bool
}

// DataExporter writes the report tables into a reports directory.
type DataExporter struct {
	baseDir string
}

// NewDataExporter creates a new data exporter
func NewDataExporter(baseDir string) *DataExporter {
	return &DataExporter{baseDir: baseDir}
}

// SessionsPath is the sessions table file.
func (exp *DataExporter) SessionsPath() string { return filepath.Join(exp.baseDir, "sessions.json") }

// ItemsPath is the items table file.
func (exp *DataExporter) ItemsPath() string { return filepath.Join(exp.baseDir, "items.json") }

// ItemStatus classifies an entry result.
func ItemStatus(r pipeline.EntryResult, dryRun bool) string {
	switch {
	case r.State == pipeline.StateNotFound:
		return StatusNotFound
	case r.State == pipeline.StateUpToDate:
		return StatusUpToDate
	case r.Errors > 0 || r.State == pipeline.StateFailed:
		return StatusFailed
	case r.State == pipeline.StateCleanedUp && dryRun:
		return StatusDryRun
	case r.State == pipeline.StateCleanedUp:
		return StatusUpdated
	default:
		return StatusPartial
	}
}

// BuildSession summarises a batch into a session record.
func BuildSession(info RunInfo, s pipeline.Summary) SessionRecord {
	rec := SessionRecord{
		SessionID:  info.SessionID,
		StartTime:  info.Start.Format(time.RFC3339),
		EndTime:    info.End.Format(time.RFC3339),
		Duration:   int64(info.End.Sub(info.Start).Seconds()),
		Checked:    s.Checked,
		Warnings:   s.Warnings,
		Errors:     s.Errors,
		DryRun:     info.DryRun,
		LogVersion: version.Build().Version,
		User:       os.Getenv("USERNAME"),
	}
	rec.Hostname, _ = os.Hostname()

	for _, r := range s.Results {
		switch ItemStatus(r, info.DryRun) {
		case StatusUpdated, StatusDryRun:
			rec.Updated++
			rec.PackagesHandled = append(rec.PackagesHandled, r.Entry.DisplayName())
		case StatusUpToDate:
			rec.UpToDate++
		case StatusNotFound:
			rec.NotFound++
		case StatusFailed:
			rec.Failed++
		}
	}

	switch {
	case s.Errors == 0:
		rec.Status = "success"
	case rec.Failed == s.Checked:
		rec.Status = "failed"
	default:
		rec.Status = "partial"
	}
	return rec
}

// MergeItems folds the results of one run into the previous items table and
// returns it sorted by item name.
func MergeItems(previous []ItemRecord, info RunInfo, results []pipeline.EntryResult) []ItemRecord {
	byName := make(map[string]ItemRecord, len(previous)+len(results))
	for _, it := range previous {
		byName[it.ItemName] = it
	}

	attempt := info.End.Format(time.RFC3339)
	for _, r := range results {
		name := r.Entry.DisplayName()
		it := byName[name]
		it.ItemName = name
		it.Publisher = r.Entry.Publisher
		it.Arch = r.Entry.Arch
		it.Source = string(r.Entry.SourceType)
		it.CurrentStatus = ItemStatus(r, info.DryRun)
		it.LastSeenInSession = info.SessionID
		it.LastAttemptTime = attempt
		it.WarningCount = r.Warnings
		it.LastError = ""
		if r.Err != nil {
			it.LastError = r.Err.Error()
		}
		if r.ResolvedVersion != "" {
			it.LatestVersion = r.ResolvedVersion
		}
		if r.ArtifactName != "" {
			it.Artifact = r.ArtifactName
		}
		it.Stages = make(map[string]string, len(r.Stages))
		for stage, status := range r.Stages {
			it.Stages[string(stage)] = string(status)
		}

		switch it.CurrentStatus {
		case StatusUpdated:
			it.PublishedVersion = r.ResolvedVersion
			it.LastSuccessfulTime = attempt
			it.FailureCount = 0
		case StatusUpToDate, StatusDryRun:
			if r.ExistingVersion != "" {
				it.PublishedVersion = r.ExistingVersion
			}
			it.LastSuccessfulTime = attempt
			it.FailureCount = 0
		case StatusFailed:
			it.FailureCount++
		}
		byName[name] = it
	}

	items := make([]ItemRecord, 0, len(byName))
	for _, it := range byName {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemName < items[j].ItemName })
	return items
}

// PruneSessions drops sessions that started more than retainDays before now.
// A non-positive retainDays keeps everything.
func PruneSessions(sessions []SessionRecord, now time.Time, retainDays int) []SessionRecord {
	if retainDays <= 0 {
		return sessions
	}
	cutoff := now.AddDate(0, 0, -retainDays)
	kept := sessions[:0]
	for _, s := range sessions {
		started, err := time.Parse(time.RFC3339, s.StartTime)
		if err == nil && started.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// Export appends the session, merges the items table and writes both files.
func (exp *DataExporter) Export(info RunInfo, s pipeline.Summary, retainDays int) error {
	if err := os.MkdirAll(exp.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	var sessions []SessionRecord
	if err := exp.readJSONFile(exp.SessionsPath(), &sessions); err != nil {
		return fmt.Errorf("failed to read sessions table: %w", err)
	}
	sessions = append(sessions, BuildSession(info, s))
	sessions = PruneSessions(sessions, info.End, retainDays)
	if err := exp.writeJSONFile(exp.SessionsPath(), sessions); err != nil {
		return fmt.Errorf("failed to export sessions: %w", err)
	}

	var items []ItemRecord
	if err := exp.readJSONFile(exp.ItemsPath(), &items); err != nil {
		return fmt.Errorf("failed to read items table: %w", err)
	}
	if err := exp.writeJSONFile(exp.ItemsPath(), MergeItems(items, info, s.Results)); err != nil {
		return fmt.Errorf("failed to export items: %w", err)
	}
	return nil
}

// readJSONFile decodes path into v. A missing file leaves v untouched.
func (exp *DataExporter) readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (exp *DataExporter) writeJSONFile(path string, v interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
