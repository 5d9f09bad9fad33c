// pkg/extract/nupkg.go - functions for reading NuGet / Chocolatey packages.

package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

// Nuspec defines the minimal .nuspec struct for .nupkg files
type Nuspec struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID          string `xml:"id"`
		Version     string `xml:"version"`
		Title       string `xml:"title"`
		Description string `xml:"description"`
		Authors     string `xml:"authors"`
	} `xml:"metadata"`
}

// NupkgMetadata reads the embedded .nuspec of a package archive.
func NupkgMetadata(nupkgPath string) (*Nuspec, error) {
	r, err := zip.OpenReader(nupkgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", nupkgPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".nuspec") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		var doc Nuspec
		if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name, err)
		}
		doc.Metadata.ID = strings.TrimSpace(doc.Metadata.ID)
		doc.Metadata.Version = strings.TrimSpace(doc.Metadata.Version)
		return &doc, nil
	}
	return nil, fmt.Errorf("no .nuspec found in %s", filepath.Base(nupkgPath))
}

// ExtractTools unpacks the tools/ directory of a package archive into destDir.
func ExtractTools(nupkgPath, destDir string) (int, error) {
	n, err := ExtractPrefix(nupkgPath, "tools/", destDir)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, fmt.Errorf("no tools/ directory in %s", filepath.Base(nupkgPath))
	}
	return n, nil
}
