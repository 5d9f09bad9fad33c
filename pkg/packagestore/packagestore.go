// pkg/packagestore/packagestore.go - packs package source folders with the
// Chocolatey CLI and pushes the result to the internal NuGet feed.

package packagestore

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/cimisync/pkg/logging"
)

// CommandRunner runs name with args in dir and returns combined output.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run executes the command and returns its combined output.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Client wraps the packaging CLI.
type Client struct {
	ChocoPath string
	FeedURL   string
	APIKey    string
	Runner    CommandRunner
}

// New creates a package store client using the real command runner.
func New(chocoPath, feedURL, apiKey string) *Client {
	if chocoPath == "" {
		chocoPath = "choco"
	}
	return &Client{ChocoPath: chocoPath, FeedURL: feedURL, APIKey: apiKey, Runner: ExecRunner{}}
}

// Pack builds a .nupkg from the package source in dir and returns the path of
// the newest archive written there. The CLI gives no structured output, so
// the archive is located by modification time.
func (c *Client) Pack(ctx context.Context, dir string) (string, error) {
	started := time.Now()
	out, err := c.Runner.Run(ctx, dir, c.ChocoPath, "pack", "--limit-output")
	logOutput(out)
	if err != nil {
		return "", fmt.Errorf("choco pack in %s: %w", dir, err)
	}
	nupkg, err := NewestPackage(dir)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(nupkg); statErr == nil && info.ModTime().Before(started.Add(-time.Minute)) {
		logging.Warn("Newest package predates this pack run", "file", nupkg, "modified", info.ModTime())
	}
	logging.Info("Packed package", "file", filepath.Base(nupkg))
	return nupkg, nil
}

// Push publishes nupkg to the configured feed with the feed API key.
func (c *Client) Push(ctx context.Context, nupkg string) error {
	if c.FeedURL == "" {
		return fmt.Errorf("no feed URL configured")
	}
	out, err := c.Runner.Run(ctx, filepath.Dir(nupkg), c.ChocoPath,
		"push", nupkg, "--source", c.FeedURL, "--api-key", c.APIKey, "--limit-output")
	logOutput(out)
	if err != nil {
		return fmt.Errorf("choco push %s: %w", filepath.Base(nupkg), err)
	}
	logging.Info("Pushed package", "file", filepath.Base(nupkg), "feed", c.FeedURL)
	return nil
}

// NewestPackage returns the most recently written .nupkg in dir.
func NewestPackage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestTime time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".nupkg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest, newestTime = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no .nupkg found in %s", dir)
	}
	return newest, nil
}

func logOutput(out []byte) {
	for _, line := range strings.Split(string(out), "\n") {
		if txt := strings.TrimSpace(line); txt != "" {
			logging.Debug(txt)
		}
	}
}
