// pkg/download/download.go - installer transfer with a reliable primary
// mechanism and a basic HTTP GET fallback.

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/retry"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// DefaultMaxRedirects bounds redirect chains when no explicit limit is set.
const DefaultMaxRedirects = 10

// Fetcher writes the resource at url to dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
	Name() string
}

// NewHTTPClient returns a client that follows at most maxRedirects redirects.
// headerTimeout bounds the wait for response headers only, so large installer
// bodies are never cut off; cancellation of the body goes through the context.
func NewHTTPClient(maxRedirects int, headerTimeout time.Duration) *http.Client {
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Transfer downloads with Primary and falls back to Fallback when it fails.
type Transfer struct {
	Primary  Fetcher
	Fallback Fetcher
}

// Download fetches url into dest. Only a failure of both mechanisms is returned.
func (t *Transfer) Download(ctx context.Context, url, dest string) error {
	if url == "" {
		return fmt.Errorf("invalid parameters: url cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	logging.Info("Starting download", "url", url, "destination", dest)
	start := time.Now()

	primaryErr := errors.New("no primary transfer configured")
	if t.Primary != nil {
		if primaryErr = t.Primary.Fetch(ctx, url, dest); primaryErr == nil {
			logging.Info("Download completed successfully", "file", dest, "via", t.Primary.Name(), "duration", time.Since(start).Round(time.Millisecond))
			return nil
		}
		logging.Warn("Primary transfer failed, falling back", "via", t.Primary.Name(), "error", primaryErr)
		_ = os.Remove(dest)
	}
	if t.Fallback == nil {
		return primaryErr
	}
	if err := t.Fallback.Fetch(ctx, url, dest); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("download failed (primary: %v): %w", primaryErr, err)
	}
	logging.Info("Download completed successfully", "file", dest, "via", t.Fallback.Name(), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// HTTPFetcher performs a plain GET. With Retry set it retries transient
// failures using exponential backoff.
type HTTPFetcher struct {
	Client *http.Client
	Retry  *retry.RetryConfig
	Label  string
}

// Name identifies the fetcher in logs.
func (f *HTTPFetcher) Name() string {
	if f.Label != "" {
		return f.Label
	}
	return "http"
}

// Fetch downloads url into dest.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	if f.Retry == nil {
		return f.fetchOnce(ctx, url, dest)
	}
	return retry.Retry(ctx, *f.Retry, func() error {
		return f.fetchOnce(ctx, url, dest)
	})
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to prepare HTTP request: %w", err))
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return retry.Permanent(fmt.Errorf("unexpected HTTP status code: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected HTTP status code: %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to open destination file: %w", err))
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write downloaded data: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	logging.Debug("File saved", "file", dest)
	return nil
}

// NewTransfer builds the default transfer: BITS on Windows (retrying HTTP
// elsewhere) as primary and a single basic GET as fallback.
func NewTransfer(client *http.Client) *Transfer {
	cfg := retry.DefaultConfig
	var primary Fetcher = &HTTPFetcher{Client: client, Retry: &cfg, Label: "http-retry"}
	if bits := newBITSFetcher(); bits != nil {
		primary = bits
	}
	return &Transfer{
		Primary:  primary,
		Fallback: &HTTPFetcher{Client: client, Label: "http-basic"},
	}
}
