package pipeline

import (
	"path/filepath"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/resolver"
)

// PathBuilder derives the PathContext of an entry.
type PathBuilder struct {
	PackagesRoot string
	WingetRepo   string
	GitHub       *resolver.GitHubAPI
}

// Build computes the asset folder and package directory from the same
// sanitized segments, plus the manifest URLs for winget entries.
func (b PathBuilder) Build(entry config.SoftwareEntry) resolver.PathContext {
	folder := naming.StoreFolder(entry)
	pc := resolver.PathContext{
		AssetFolder: folder,
		PackageDir:  filepath.Join(b.PackagesRoot, filepath.FromSlash(folder)),
	}
	if entry.SourceType == config.SourceWinget && b.GitHub != nil {
		repoPath := resolver.ManifestPath(entry.SourceRef, entry.ManifestSubPath)
		pc.ManifestAPIURL = b.GitHub.ContentsURL(b.WingetRepo, repoPath)
		pc.ManifestRawURL = b.GitHub.RawFileURL(b.WingetRepo, repoPath)
	}
	return pc
}
