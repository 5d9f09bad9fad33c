// pkg/logging/helpers.go - helpers for common pipeline stage event patterns

package logging

import (
	"fmt"
	"time"
)

// LogStageStart logs the start of a pipeline stage for a package
func LogStageStart(pkg, stage, version string) {
	Debug("Stage started", "package", pkg, "stage", stage)
	LogStageEvent(pkg, stage, "started",
		fmt.Sprintf("Starting %s for %s %s", stage, pkg, version),
		WithVersion(version))
}

// LogStageComplete logs successful completion of a pipeline stage
func LogStageComplete(pkg, stage, version string, duration time.Duration) {
	LogStageEvent(pkg, stage, "completed",
		fmt.Sprintf("Completed %s for %s %s", stage, pkg, version),
		WithVersion(version),
		WithDuration(duration))
}

// LogStageFailed logs a failed pipeline stage
func LogStageFailed(pkg, stage, version string, err error) {
	LogStageEvent(pkg, stage, "failed",
		fmt.Sprintf("Failed %s for %s %s", stage, pkg, version),
		WithVersion(version),
		WithError(err))
}

// LogStageSkipped logs a stage that did not run, with the reason
func LogStageSkipped(pkg, stage, reason string) {
	LogStageEvent(pkg, stage, "skipped", reason)
}
