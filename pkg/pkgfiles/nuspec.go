// pkg/pkgfiles/nuspec.go - editing the version of a package manifest in place.

package pkgfiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrMissingFile is returned when a package file that must exist is absent.
var ErrMissingFile = errors.New("required package file missing")

var nuspecVersion = regexp.MustCompile(`(<version>)\s*[^<]*?\s*(</version>)`)

// FindNuspec returns the .nuspec in the package source directory dir.
func FindNuspec(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.nuspec"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no .nuspec in %s", ErrMissingFile, dir)
	}
	return matches[0], nil
}

// SetNuspecVersion replaces the first <version> element of the nuspec at path,
// leaving the rest of the document byte-identical.
func SetNuspecVersion(path, ver string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return err
	}
	updated, err := replaceNuspecVersion(string(data), ver)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, []byte(updated), 0644)
}

func replaceNuspecVersion(doc, ver string) (string, error) {
	loc := nuspecVersion.FindStringSubmatchIndex(doc)
	if loc == nil {
		return "", errors.New("no <version> element")
	}
	var b strings.Builder
	b.WriteString(doc[:loc[3]])
	b.WriteString(ver)
	b.WriteString(doc[loc[4]:])
	return b.String(), nil
}
