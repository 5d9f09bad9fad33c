package resolver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/download"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// hrefPattern is the fallback when tokenizing yields no anchors.
var hrefPattern = regexp.MustCompile(`(?i)<a\s[^>]*?href\s*=\s*["']([^"']+)["']`)

// ExtractLinks returns the href of every anchor in an HTML document, in
// document order.
func ExtractLinks(body []byte) []string {
	var links []string
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "a" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key == "href" && strings.TrimSpace(attr.Val) != "" {
				links = append(links, strings.TrimSpace(attr.Val))
			}
		}
	}
	if len(links) > 0 {
		return links
	}
	for _, m := range hrefPattern.FindAllSubmatch(body, -1) {
		links = append(links, html.UnescapeString(string(m[1])))
	}
	return links
}

// PickLatestLink keeps hrefs whose path ends in ext, sorts them descending
// and returns the first resolved against base.
func PickLatestLink(base *url.URL, links []string, ext string) (*url.URL, bool) {
	ext = strings.ToLower(ext)
	var candidates []*url.URL
	for _, l := range links {
		ref, err := url.Parse(l)
		if err != nil {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(ref.Path), ext) {
			continue
		}
		candidates = append(candidates, ref)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].String() > candidates[j].String()
	})
	return base.ResolveReference(candidates[0]), true
}

// versionFromFileName returns the first numeric run in name, or the
// unknown sentinel.
func versionFromFileName(name string) string {
	if v := version.ExtractFirst(name); v != "" {
		return v
	}
	return version.Unknown
}

// directIntent builds the intent for a response that is itself the file.
func directIntent(st config.SourceType, res *download.ProbeResult) *ResolvedIntent {
	return &ResolvedIntent{
		SourceType:   st,
		Version:      versionFromFileName(res.FileName),
		InstallerURL: res.FinalURL.String(),
		FileName:     res.FileName,
		Extension:    strings.ToLower(path.Ext(res.FileName)),
	}
}

// WebDirectoryResolver handles vendor listing pages and URLs that answer
// with the file directly.
type WebDirectoryResolver struct {
	Prober Probe
}

func (r *WebDirectoryResolver) Source() config.SourceType { return config.SourceWebDirectory }

func (r *WebDirectoryResolver) Resolve(ctx context.Context, entry config.SoftwareEntry, _ PathContext) (*ResolvedIntent, error) {
	res, err := r.Prober.Probe(ctx, entry.SourceRef)
	if err != nil {
		return nil, err
	}
	if !res.IsHTML {
		logging.Debug("Listing URL answered with a file", "url", entry.SourceRef, "file", res.FileName)
		return directIntent(config.SourceWebDirectory, res), nil
	}

	links := ExtractLinks(res.Body)
	picked, ok := PickLatestLink(res.FinalURL, links, entry.PreferredExtension)
	if !ok {
		logging.Warn("No link with the preferred extension", "url", entry.SourceRef,
			"ext", entry.PreferredExtension, "links", len(links))
		return nil, &NotFoundError{Reason: fmt.Sprintf("no %s link on %s", entry.PreferredExtension, entry.SourceRef)}
	}
	fileName := download.URLFileName(picked)
	return &ResolvedIntent{
		SourceType:   config.SourceWebDirectory,
		Version:      versionFromFileName(fileName),
		InstallerURL: picked.String(),
		FileName:     fileName,
		Extension:    strings.ToLower(path.Ext(fileName)),
	}, nil
}

// DirectURLResolver handles SourceRefs that are known download links.
type DirectURLResolver struct {
	Prober Probe
}

func (r *DirectURLResolver) Source() config.SourceType { return config.SourceDirectURL }

func (r *DirectURLResolver) Resolve(ctx context.Context, entry config.SoftwareEntry, _ PathContext) (*ResolvedIntent, error) {
	res, err := r.Prober.Probe(ctx, entry.SourceRef)
	if err != nil {
		return nil, err
	}
	if res.IsHTML {
		return nil, &NotFoundError{Reason: fmt.Sprintf("%s returned an HTML page instead of a file", entry.SourceRef)}
	}
	return directIntent(config.SourceDirectURL, res), nil
}
