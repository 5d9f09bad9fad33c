// pkg/download/probe.go - content-type probing of download and listing URLs.

package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/version"
)

// maxHTMLBody caps how much of an HTML listing page is read.
const maxHTMLBody = 5 * 1024 * 1024

// ProbeResult describes the response of a single GET after redirects.
type ProbeResult struct {
	FinalURL    *url.URL
	ContentType string
	IsHTML      bool
	// FileName comes from Content-Disposition when present, else from the
	// last path segment of FinalURL. Empty for HTML responses.
	FileName string
	// Body holds the page for HTML responses only.
	Body []byte
}

// Prober issues single GETs and classifies the response.
type Prober struct {
	Client *http.Client
}

// Probe performs one bounded-redirect GET against rawURL. Non-HTML bodies
// are not read.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("preparing request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("requesting %s: unexpected HTTP status %s", rawURL, resp.Status)
	}

	result := &ProbeResult{
		FinalURL:    resp.Request.URL,
		ContentType: resp.Header.Get("Content-Type"),
	}
	result.IsHTML = IsHTMLContentType(result.ContentType)

	if result.IsHTML {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLBody))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rawURL, err)
		}
		result.Body = body
		return result, nil
	}

	result.FileName = DispositionFileName(resp.Header.Get("Content-Disposition"))
	if result.FileName == "" {
		result.FileName = URLFileName(result.FinalURL)
	}
	return result, nil
}

// IsHTMLContentType reports whether a Content-Type header denotes an HTML page.
func IsHTMLContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// DispositionFileName extracts the file name from a Content-Disposition
// header, honouring RFC 5987 "filename*". Returns "" if none is present.
func DispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
}

// URLFileName returns the unescaped last path segment of u, or "" if u has
// no path.
func URLFileName(u *url.URL) string {
	if u == nil {
		return ""
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}
