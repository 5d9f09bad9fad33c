package pipeline

import (
	"path"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/assetstore"
	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/resolver"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// Decision is the outcome of reconciliation.
type Decision int

const (
	UpdateNeeded Decision = iota
	UpToDate
)

func (d Decision) String() string {
	if d == UpToDate {
		return "UpToDate"
	}
	return "UpdateNeeded"
}

// Reconcile compares the published artifact with the resolved version. An
// unknown resolved version never counts as up to date.
func Reconcile(existing *assetstore.ExistingArtifact, resolved *version.Version, force bool) Decision {
	if force || existing == nil || existing.Version == nil || resolved == nil || resolved.IsUnknown() {
		return UpdateNeeded
	}
	if existing.Version.Compare(resolved) >= 0 {
		return UpToDate
	}
	return UpdateNeeded
}

// DownloadExt is the extension of the file fetched from the source: .zip
// for nested archives, else the resolver's extension, else the preferred one.
func DownloadExt(intent *resolver.ResolvedIntent, entry config.SoftwareEntry) string {
	switch {
	case intent.NestedArchive != nil:
		return ".zip"
	case intent.Extension != "":
		return naming.DotExt(intent.Extension)
	default:
		return naming.DotExt(entry.PreferredExtension)
	}
}

// StoredExt is the extension of the artifact that ends up published. For
// nested archives it is the inner file's extension.
func StoredExt(intent *resolver.ResolvedIntent, entry config.SoftwareEntry) string {
	if intent.NestedArchive == nil {
		return DownloadExt(intent, entry)
	}
	if ext := path.Ext(strings.ReplaceAll(intent.NestedArchive.RelativePath, `\`, "/")); ext != "" {
		return naming.DotExt(ext)
	}
	return naming.DotExt(entry.PreferredExtension)
}
