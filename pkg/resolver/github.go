package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/version"
)

// GitHubAPI is a minimal client for the repository contents and releases
// endpoints of the GitHub REST API.
type GitHubAPI struct {
	BaseURL string // e.g. https://api.github.com
	RawURL  string // e.g. https://raw.githubusercontent.com
	Token   string
	HTTP    *http.Client
}

// contentItem is one element of a contents listing.
type contentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "dir" or "file"
	DownloadURL string `json:"download_url"`
}

type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Name    string         `json:"name"`
	Assets  []releaseAsset `json:"assets"`
}

// ContentsURL returns the API URL listing repoPath within repo (owner/name).
func (g *GitHubAPI) ContentsURL(repo, repoPath string) string {
	return strings.TrimRight(g.BaseURL, "/") + "/repos/" + repo + "/contents/" + strings.Trim(repoPath, "/")
}

// RawFileURL returns the raw content URL of repoPath on the default branch.
func (g *GitHubAPI) RawFileURL(repo, repoPath string) string {
	return strings.TrimRight(g.RawURL, "/") + "/" + repo + "/HEAD/" + strings.Trim(repoPath, "/")
}

func (g *GitHubAPI) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("preparing request for %s: %w", u, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Reason: "GitHub returned 404 for " + u}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("requesting %s: unexpected HTTP status %s", u, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return body, nil
}

func (g *GitHubAPI) listContents(ctx context.Context, u string) ([]contentItem, error) {
	body, err := g.get(ctx, u, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decoding contents listing %s: %w", u, err)
	}
	return items, nil
}

func (g *GitHubAPI) latestRelease(ctx context.Context, repo string) (*release, error) {
	u := strings.TrimRight(g.BaseURL, "/") + "/repos/" + strings.Trim(repo, "/") + "/releases/latest"
	body, err := g.get(ctx, u, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	var rel release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("decoding release %s: %w", u, err)
	}
	return &rel, nil
}
