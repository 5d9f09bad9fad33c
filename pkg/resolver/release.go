package resolver

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// ReleaseResolver resolves entries against the latest GitHub release of the
// owner/repo in SourceRef.
type ReleaseResolver struct {
	API *GitHubAPI
}

func (r *ReleaseResolver) Source() config.SourceType { return config.SourceGitHubRelease }

// assetMatcher returns the predicate selecting release assets for entry.
func assetMatcher(entry config.SoftwareEntry) (func(string) bool, error) {
	if entry.AssetPattern == "" {
		ext := strings.ToLower(entry.PreferredExtension)
		return func(name string) bool { return strings.HasSuffix(strings.ToLower(name), ext) }, nil
	}
	re, err := regexp.Compile(entry.AssetPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid AssetPattern %q: %w", entry.AssetPattern, err)
	}
	return re.MatchString, nil
}

func (r *ReleaseResolver) Resolve(ctx context.Context, entry config.SoftwareEntry, _ PathContext) (*ResolvedIntent, error) {
	match, err := assetMatcher(entry)
	if err != nil {
		return nil, err
	}
	rel, err := r.API.latestRelease(ctx, entry.SourceRef)
	if err != nil {
		return nil, err
	}

	ver := version.ExtractFirst(rel.TagName)
	if ver == "" {
		logging.Warn("Release tag carries no version", "repo", entry.SourceRef, "tag", rel.TagName)
		ver = version.Unknown
	}

	names := make([]string, 0, len(rel.Assets))
	for _, a := range rel.Assets {
		names = append(names, a.Name)
		if !match(a.Name) {
			continue
		}
		return &ResolvedIntent{
			SourceType:     config.SourceGitHubRelease,
			ReleaseVersion: ver,
			URL:            a.BrowserDownloadURL,
			FileName:       a.Name,
			Extension:      strings.ToLower(path.Ext(a.Name)),
		}, nil
	}

	logging.Warn("No release asset matches entry", "repo", entry.SourceRef, "tag", rel.TagName,
		"pattern", entry.AssetPattern, "assets", strings.Join(names, ", "))
	return nil, &NotFoundError{
		Reason:    fmt.Sprintf("no asset of %s %s matches", entry.SourceRef, rel.TagName),
		Available: names,
	}
}
