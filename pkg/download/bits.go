// pkg/download/bits.go - Background Intelligent Transfer Service downloads.

package download

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// BITSFetcher downloads through Start-BitsTransfer in PowerShell.
type BITSFetcher struct {
	Run CommandRunner
}

// newBITSFetcher returns nil when BITS is unavailable on this platform.
func newBITSFetcher() *BITSFetcher {
	if runtime.GOOS != "windows" {
		return nil
	}
	return &BITSFetcher{Run: execRunner}
}

// Name identifies the fetcher in logs.
func (b *BITSFetcher) Name() string { return "bits" }

// Fetch downloads url into dest through BITS.
func (b *BITSFetcher) Fetch(ctx context.Context, url, dest string) error {
	script := fmt.Sprintf(
		"$ErrorActionPreference='Stop'; Start-BitsTransfer -Source '%s' -Destination '%s' -Priority Foreground",
		psQuote(url), psQuote(dest))
	out, err := b.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return fmt.Errorf("BITS transfer failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// psQuote escapes a value for use inside a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
