// pkg/scripts/prepost.go - Functions for running the pre-run and post-run hook scripts.

package scripts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/logging"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Runner executes a command with extra environment variables and returns its
// combined output.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec, inheriting the process environment.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Hooks holds the optional scripts run around a sync run. Empty paths are
// skipped.
type Hooks struct {
	PowerShell string
	PreRun     string
	PostRun    string
	Runner     Runner
}

// RunStats is exported to the post-run script as CIMISYNC_* variables.
type RunStats struct {
	SessionID string
	Checked   int
	Warnings  int
	Errors    int
	DryRun    bool
	Report    string
}

func (s RunStats) env() []string {
	return []string{
		"CIMISYNC_SESSION=" + s.SessionID,
		fmt.Sprintf("CIMISYNC_CHECKED=%d", s.Checked),
		fmt.Sprintf("CIMISYNC_WARNINGS=%d", s.Warnings),
		fmt.Sprintf("CIMISYNC_ERRORS=%d", s.Errors),
		fmt.Sprintf("CIMISYNC_DRYRUN=%t", s.DryRun),
		"CIMISYNC_REPORT=" + s.Report,
	}
}

// RunPreRun runs the pre-run script. A failure should stop the run before any
// entry is touched.
func (h Hooks) RunPreRun(ctx context.Context, sessionID string) error {
	return h.runScript(ctx, h.PreRun, "Pre-run", []string{"CIMISYNC_SESSION=" + sessionID})
}

// RunPostRun runs the post-run script with the outcome of the batch.
func (h Hooks) RunPostRun(ctx context.Context, stats RunStats) error {
	return h.runScript(ctx, h.PostRun, "Post-run", stats.env())
}

// runScript executes the PowerShell script at scriptPath and logs each
// output line.
func (h Hooks) runScript(ctx context.Context, scriptPath, displayName string, env []string) error {
	if scriptPath == "" {
		return nil
	}
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		logging.Warn(displayName+" script not found", "path", scriptPath)
		return nil
	}

	shell := h.PowerShell
	if shell == "" {
		shell = "pwsh.exe"
	}
	runner := h.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	logging.Info("Running "+strings.ToLower(displayName)+" script", "path", scriptPath)
	out, err := runner.Run(ctx, filepath.Dir(scriptPath), env, shell,
		"-NoLogo",
		"-NoProfile",
		"-NonInteractive",
		"-Command", fmt.Sprintf(`& "%s" 2>&1`, scriptPath),
	)
	for _, line := range CleanOutput(out) {
		logging.Info(line, "script", displayName)
	}
	if err != nil {
		return fmt.Errorf("%s script error: %w", displayName, err)
	}
	logging.Info(displayName+" script completed successfully", "path", scriptPath)
	return nil
}

// CleanOutput splits script output into non-empty lines without BOM or ANSI
// colour sequences.
func CleanOutput(out []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		txt := strings.TrimSpace(line)
		txt = strings.TrimPrefix(txt, "\ufeff")
		txt = ansiEscape.ReplaceAllString(txt, "")
		if txt != "" {
			lines = append(lines, txt)
		}
	}
	return lines
}
