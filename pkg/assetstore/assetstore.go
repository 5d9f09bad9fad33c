// pkg/assetstore/assetstore.go - client for the internal asset directory that
// holds published installers under <publisher>/<software>[/subpaths]/<file>.

package assetstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// Item is one entry of a folder listing.
type Item struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
	Size   int64  `json:"size"`
	Type   string `json:"type,omitempty"`
}

// IsDir reports whether the listing entry is a folder.
func (i Item) IsDir() bool {
	return strings.EqualFold(i.Type, "dir") || strings.EqualFold(i.Type, "directory")
}

// Metadata is the metadata document of a stored file.
type Metadata struct {
	SHA256 string `json:"sha256"`
	SHA1   string `json:"sha1,omitempty"`
	MD5    string `json:"md5,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// ExistingArtifact is the highest-version published file for an entry.
type ExistingArtifact struct {
	Name        string
	RawVersion  string
	Version     *version.Version
	StorePath   string
	MetadataURL string
	ContentURL  string
}

// Client talks to the asset directory endpoints.
type Client struct {
	BaseURL   string // e.g. https://proget.example.com
	Directory string // asset directory name
	APIKey    string
	HTTP      *http.Client
}

// New creates an asset store client.
func New(baseURL, directory, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Directory: directory,
		APIKey:    apiKey,
		HTTP:      httpClient,
	}
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) endpoint(kind, folder, file string) string {
	p := escapePath(folder)
	if file != "" {
		if p != "" {
			p += "/"
		}
		p += url.PathEscape(file)
	}
	return fmt.Sprintf("%s/endpoints/%s/%s/%s", c.BaseURL, url.PathEscape(c.Directory), kind, p)
}

// ContentURL is the download URL of folder/file.
func (c *Client) ContentURL(folder, file string) string { return c.endpoint("content", folder, file) }

// MetadataURL is the metadata URL of folder/file.
func (c *Client) MetadataURL(folder, file string) string { return c.endpoint("metadata", folder, file) }

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentLength int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-ApiKey", c.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = contentLength
	}
	return c.HTTP.Do(req)
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, u, nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	return nil
}

// StatusError reports an unexpected HTTP status from the store.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("asset store returned HTTP %d for %s", e.StatusCode, e.URL)
}

// List returns the contents of folder. A missing folder yields an empty list.
func (c *Client) List(ctx context.Context, folder string) ([]Item, error) {
	var items []Item
	err := c.getJSON(ctx, c.endpoint("dir", folder, ""), &items)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}
	return items, nil
}

// Metadata fetches the metadata document of folder/file.
func (c *Client) Metadata(ctx context.Context, folder, file string) (*Metadata, error) {
	var md Metadata
	if err := c.getJSON(ctx, c.MetadataURL(folder, file), &md); err != nil {
		return nil, fmt.Errorf("fetching metadata for %s/%s: %w", folder, file, err)
	}
	return &md, nil
}

// SHA256 returns the store-computed SHA256 of folder/file in lowercase hex.
func (c *Client) SHA256(ctx context.Context, folder, file string) (string, error) {
	md, err := c.Metadata(ctx, folder, file)
	if err != nil {
		return "", err
	}
	if md.SHA256 == "" {
		return "", fmt.Errorf("metadata for %s/%s has no sha256", folder, file)
	}
	return strings.ToLower(md.SHA256), nil
}

// uploadMethods are tried in order; the store may only accept one of them.
var uploadMethods = []string{http.MethodPut, http.MethodPost, http.MethodPatch}

// Upload publishes the local file at localPath as folder/file. The file is
// streamed from disk and reopened for every method tried.
func (c *Client) Upload(ctx context.Context, folder, file, localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}
	u := c.ContentURL(folder, file)

	var lastErr error
	for _, method := range uploadMethods {
		status, err := c.uploadOnce(ctx, method, u, localPath, info.Size())
		if err != nil {
			return fmt.Errorf("uploading %s: %w", file, err)
		}

		switch {
		case status >= 200 && status < 300:
			logging.Info("Uploaded to asset store", "path", folder+"/"+file, "bytes", info.Size(), "method", method)
			return nil
		case status == http.StatusMethodNotAllowed:
			lastErr = &StatusError{URL: u, StatusCode: status}
			continue
		default:
			return fmt.Errorf("uploading %s: %w", file, &StatusError{URL: u, StatusCode: status})
		}
	}
	return fmt.Errorf("uploading %s: %w", file, lastErr)
}

func (c *Client) uploadOnce(ctx context.Context, method, u, localPath string, size int64) (int, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	resp, err := c.do(ctx, method, u, f, size)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Latest returns the highest-version artifact in folder whose name follows
// "<base>_<arch>_<version><ext>". It returns nil, nil when nothing matches.
func (c *Client) Latest(ctx context.Context, folder, base, arch, ext string) (*ExistingArtifact, error) {
	items, err := c.List(ctx, folder)
	if err != nil {
		return nil, err
	}

	var best *ExistingArtifact
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		raw, ok := naming.ParseFileName(base, arch, ext, item.Name)
		if !ok {
			continue
		}
		v, err := version.Parse(raw)
		if err != nil {
			continue
		}
		if best == nil || best.Version.LessThan(v) {
			best = &ExistingArtifact{
				Name:        item.Name,
				RawVersion:  raw,
				Version:     v,
				StorePath:   strings.Trim(folder, "/") + "/" + item.Name,
				MetadataURL: c.MetadataURL(folder, item.Name),
				ContentURL:  c.ContentURL(folder, item.Name),
			}
		}
	}
	return best, nil
}
