package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/extract"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// ErrNoCandidates means the drop folder holds no file with the preferred
// extension.
var ErrNoCandidates = errors.New("no local installer candidates")

// VersionSupplier provides the version for a locally picked installer.
type VersionSupplier interface {
	SupplyVersion(ctx context.Context, entry config.SoftwareEntry, file string) (string, error)
}

// MetadataReader reads embedded installer metadata.
type MetadataReader func(ctx context.Context, path string) (extract.Metadata, error)

// Candidate is a scored drop-folder file.
type Candidate struct {
	Path  string
	Score int
}

// LocalResolver picks an installer from a drop folder and asks a
// VersionSupplier for its version.
type LocalResolver struct {
	DropPath string
	Versions VersionSupplier
	Metadata MetadataReader
}

func (r *LocalResolver) Source() config.SourceType { return config.SourceLocal }

// ScoreCandidate ranks file against entry: +3 when the software name is in
// the file name, +5 when it is in the product name, +1 when the publisher
// appears in the product name or description.
func ScoreCandidate(entry config.SoftwareEntry, file string, meta extract.Metadata) int {
	name := strings.ToLower(entry.SoftwareName)
	publisher := strings.ToLower(entry.Publisher)
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
	product := strings.ToLower(meta.ProductName)
	description := strings.ToLower(meta.Description)

	score := 0
	if name != "" && strings.Contains(base, name) {
		score += 3
	}
	if name != "" && strings.Contains(product, name) {
		score += 5
	}
	if publisher != "" && (strings.Contains(product, publisher) || strings.Contains(description, publisher)) {
		score++
	}
	return score
}

// Candidates lists and scores drop-folder files with the preferred
// extension in directory order.
func (r *LocalResolver) Candidates(ctx context.Context, entry config.SoftwareEntry) ([]Candidate, error) {
	dirEntries, err := os.ReadDir(r.DropPath)
	if err != nil {
		return nil, fmt.Errorf("reading drop folder %s: %w", r.DropPath, err)
	}
	ext := strings.ToLower(entry.PreferredExtension)
	var out []Candidate
	for _, de := range dirEntries {
		if de.IsDir() || strings.ToLower(filepath.Ext(de.Name())) != ext {
			continue
		}
		p := filepath.Join(r.DropPath, de.Name())
		var meta extract.Metadata
		if r.Metadata != nil {
			m, err := r.Metadata(ctx, p)
			if err != nil {
				logging.Debug("Installer metadata unreadable", "file", p, "error", err)
			} else {
				meta = m
			}
		}
		out = append(out, Candidate{Path: p, Score: ScoreCandidate(entry, p, meta)})
	}
	return out, nil
}

func (r *LocalResolver) Resolve(ctx context.Context, entry config.SoftwareEntry, _ PathContext) (*ResolvedIntent, error) {
	candidates, err := r.Candidates(ctx, entry)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no %s file in %s", ErrNoCandidates, entry.PreferredExtension, r.DropPath)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	logging.Info("Picked local installer", "file", best.Path, "score", best.Score)

	if r.Versions == nil {
		return nil, errors.New("no version supplier configured for local entries")
	}
	raw, err := r.Versions.SupplyVersion(ctx, entry, best.Path)
	if err != nil {
		return nil, fmt.Errorf("obtaining version for %s: %w", filepath.Base(best.Path), err)
	}
	raw = version.Normalize(raw)
	if !version.IsValid(raw) {
		return nil, fmt.Errorf("%w %q for %s", ErrInvalidVersion, raw, filepath.Base(best.Path))
	}

	return &ResolvedIntent{
		SourceType:      config.SourceLocal,
		Version:         raw,
		FileName:        filepath.Base(best.Path),
		Extension:       strings.ToLower(filepath.Ext(best.Path)),
		LocalPickedFile: best.Path,
	}, nil
}
