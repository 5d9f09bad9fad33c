// Package resolver turns software entries into a concrete description of the
// latest installer available from their configured source.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/version"
)

var (
	// ErrNotFound is the soft failure: the source answered but offered no
	// installer matching the entry.
	ErrNotFound = errors.New("no matching installer")
	// ErrInvalidVersion reports a version that is not 2-4 numeric parts.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrNoResolver means no resolver is registered for a source type.
	ErrNoResolver = errors.New("no resolver for source type")
)

// NotFoundError is an ErrNotFound carrying the candidates that were rejected,
// for diagnosis.
type NotFoundError struct {
	Reason    string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("%s: %s", ErrNotFound, e.Reason)
	}
	return fmt.Sprintf("%s: %s (available: %s)", ErrNotFound, e.Reason, strings.Join(e.Available, ", "))
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NestedArchiveRef points at the real installer inside a downloaded archive.
type NestedArchiveRef struct {
	RelativePath string
}

// ResolvedIntent is the normalised description of the latest installer.
type ResolvedIntent struct {
	SourceType config.SourceType
	// Version is the display string; Comparable is filled by Finalize.
	Version    string
	Comparable *version.Version

	// Aliases some sources fill instead of Version / InstallerURL. Normalize
	// promotes them.
	LatestVersion  string
	ReleaseVersion string
	URL            string

	InstallerURL    string
	FileName        string
	Extension       string
	Sha256          string
	NestedArchive   *NestedArchiveRef
	LocalPickedFile string
}

// PathContext is derived once per entry and shared by all pipeline stages.
type PathContext struct {
	ManifestAPIURL string // Winget only
	ManifestRawURL string // Winget only
	PackageDir     string // local package source directory
	AssetFolder    string // asset store folder
}

// Resolver discovers the latest installer for one source type.
type Resolver interface {
	Source() config.SourceType
	Resolve(ctx context.Context, entry config.SoftwareEntry, paths PathContext) (*ResolvedIntent, error)
}

// Set holds exactly one resolver per source type.
type Set struct {
	bySource map[config.SourceType]Resolver
}

// NewSet registers resolvers; registering a source twice is an error.
func NewSet(resolvers ...Resolver) (*Set, error) {
	s := &Set{bySource: make(map[config.SourceType]Resolver, len(resolvers))}
	for _, r := range resolvers {
		if _, dup := s.bySource[r.Source()]; dup {
			return nil, fmt.Errorf("duplicate resolver for %s", r.Source())
		}
		s.bySource[r.Source()] = r
	}
	return s, nil
}

// For returns the resolver responsible for entry.
func (s *Set) For(entry config.SoftwareEntry) (Resolver, error) {
	r, ok := s.bySource[entry.SourceType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoResolver, entry.SourceType)
	}
	return r, nil
}
