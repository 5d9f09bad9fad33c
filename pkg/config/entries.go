// pkg/config/entries.go - software entry records and the entries file loader.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceType names the provider that discovers an entry's latest installer.
type SourceType string

const (
	SourceWinget        SourceType = "Winget"
	SourceGitHubRelease SourceType = "GitHubRelease"
	SourceWebDirectory  SourceType = "WebDirectory"
	SourceDirectURL     SourceType = "DirectUrl"
	SourceLocal         SourceType = "Local"
)

// SourceTypes lists every supported source in a stable order.
var SourceTypes = []SourceType{
	SourceWinget, SourceGitHubRelease, SourceWebDirectory, SourceDirectURL, SourceLocal,
}

// ParseSourceType matches s case-insensitively against the supported sources.
func ParseSourceType(s string) (SourceType, error) {
	for _, st := range SourceTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// SoftwareEntry is one row of the software configuration.
type SoftwareEntry struct {
	Publisher             string     `yaml:"Publisher"`
	SoftwareName          string     `yaml:"SoftwareName"`
	SubName1              string     `yaml:"SubName1,omitempty"`
	SubName2              string     `yaml:"SubName2,omitempty"`
	PreferredExtension    string     `yaml:"PreferredExtension"`
	Arch                  string     `yaml:"Arch"`
	SourceType            SourceType `yaml:"SourceType"`
	SourceRef             string     `yaml:"SourceRef,omitempty"`
	ManifestSubPath       string     `yaml:"ManifestSubPath,omitempty"`
	AssetPattern          string     `yaml:"AssetPattern,omitempty"`
	ManualVersionRequired bool       `yaml:"ManualVersionRequired,omitempty"`
}

// DisplayName is the human readable label used in logs.
func (e SoftwareEntry) DisplayName() string {
	parts := []string{e.SoftwareName}
	for _, s := range []string{e.SubName1, e.SubName2} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ") + " (" + e.Arch + ")"
}

// Normalize canonicalises case-insensitive fields in place.
func (e *SoftwareEntry) Normalize() {
	e.Publisher = strings.TrimSpace(e.Publisher)
	e.SoftwareName = strings.TrimSpace(e.SoftwareName)
	e.SubName1 = strings.TrimSpace(e.SubName1)
	e.SubName2 = strings.TrimSpace(e.SubName2)
	e.SourceRef = strings.TrimSpace(e.SourceRef)
	e.Arch = strings.ToLower(strings.TrimSpace(e.Arch))
	ext := strings.ToLower(strings.TrimSpace(e.PreferredExtension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	e.PreferredExtension = ext
	if st, err := ParseSourceType(string(e.SourceType)); err == nil {
		e.SourceType = st
	}
	if e.SourceType == SourceLocal {
		e.ManualVersionRequired = true
	}
}

// Validate checks the invariants every entry must hold before processing.
func (e SoftwareEntry) Validate() error {
	var errs []error
	if e.SoftwareName == "" {
		errs = append(errs, errors.New("SoftwareName is empty"))
	}
	if e.Publisher == "" {
		errs = append(errs, errors.New("Publisher is empty"))
	}
	if e.PreferredExtension == "" || e.PreferredExtension == "." {
		errs = append(errs, errors.New("PreferredExtension is empty"))
	}
	if e.Arch != "x86" && e.Arch != "x64" {
		errs = append(errs, fmt.Errorf("Arch %q must be x86 or x64", e.Arch))
	}
	if _, err := ParseSourceType(string(e.SourceType)); err != nil {
		errs = append(errs, err)
	}
	if e.SourceType != SourceLocal && e.SourceRef == "" {
		errs = append(errs, fmt.Errorf("SourceRef is required for %s", e.SourceType))
	}
	return errors.Join(errs...)
}

type entriesFile struct {
	Software []SoftwareEntry `yaml:"software"`
}

// LoadEntries reads the YAML entries file. Invalid entries are reported
// together; valid ones are returned normalised.
func LoadEntries(path string) ([]SoftwareEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries file: %w", err)
	}
	return ParseEntries(data)
}

// ParseEntries decodes entries from YAML bytes.
func ParseEntries(data []byte) ([]SoftwareEntry, error) {
	var doc entriesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse entries: %w", err)
	}

	var errs []error
	entries := make([]SoftwareEntry, 0, len(doc.Software))
	for i := range doc.Software {
		e := doc.Software[i]
		e.Normalize()
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, e.SoftwareName, err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, errors.Join(errs...)
}
