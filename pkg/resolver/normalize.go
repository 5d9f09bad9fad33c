package resolver

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/download"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// Normalize promotes alias fields and fills defaults. It never fails and does
// not modify in.
func Normalize(in ResolvedIntent, entry config.SoftwareEntry) ResolvedIntent {
	out := in
	if out.Version == "" {
		switch {
		case out.LatestVersion != "":
			out.Version = out.LatestVersion
		case out.ReleaseVersion != "":
			out.Version = out.ReleaseVersion
		}
	}
	if out.InstallerURL == "" && out.URL != "" {
		out.InstallerURL = out.URL
	}
	if out.Extension == "" {
		out.Extension = entry.PreferredExtension
	}
	out.Extension = naming.DotExt(out.Extension)
	if out.SourceType == "" {
		out.SourceType = entry.SourceType
	}
	if out.NestedArchive != nil {
		cp := *out.NestedArchive
		out.NestedArchive = &cp
	}
	return out
}

// Finalize validates the version and the installer location and sets
// Comparable.
func Finalize(in *ResolvedIntent) error {
	in.Version = version.Normalize(in.Version)
	if !version.IsValid(in.Version) {
		return fmt.Errorf("%w %q", ErrInvalidVersion, in.Version)
	}
	v, err := version.Parse(in.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	in.Comparable = v
	if in.InstallerURL == "" && in.LocalPickedFile == "" {
		return fmt.Errorf("resolved intent has neither an installer URL nor a local file")
	}
	return nil
}

var placeholderNames = map[string]bool{"": true, "download": true, "installer": true}

// IsPlaceholderFileName reports names that do not identify a real installer.
func IsPlaceholderFileName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return placeholderNames[lower] || path.Ext(lower) == ""
}

// Probe is the slice of download.Prober used to recover real file names.
type Probe interface {
	Probe(ctx context.Context, rawURL string) (*download.ProbeResult, error)
}

// EnsureFileName replaces a placeholder FileName by probing InstallerURL. A
// failed or inconclusive probe leaves the intent unchanged.
func EnsureFileName(ctx context.Context, p Probe, in *ResolvedIntent) {
	if in.LocalPickedFile != "" || in.InstallerURL == "" || !IsPlaceholderFileName(in.FileName) {
		return
	}
	res, err := p.Probe(ctx, in.InstallerURL)
	if err != nil {
		logging.Warn("Could not resolve real file name", "url", in.InstallerURL, "error", err)
		return
	}
	if res.IsHTML || IsPlaceholderFileName(res.FileName) {
		logging.Warn("Probe did not yield a file name", "url", in.InstallerURL, "contentType", res.ContentType)
		return
	}
	logging.Debug("Resolved placeholder file name", "from", in.FileName, "to", res.FileName)
	in.FileName = res.FileName
	in.InstallerURL = res.FinalURL.String()
}
