// pkg/extract/archive.go - locating and extracting entries inside zip archives.

package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// normalizeEntryPath turns a manifest-style relative path ("dir\\setup.exe",
// "./dir/setup.exe") into zip form ("dir/setup.exe").
func normalizeEntryPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}

// ListEntries returns the names of all file entries in the archive.
func ListEntries(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// ExtractEntry extracts the single entry at relPath into destDir, keeping only
// its base name, and returns the written file path.
func ExtractEntry(archivePath, relPath, destDir string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	want := normalizeEntryPath(relPath)
	var entry *zip.File
	for _, f := range r.File {
		if normalizeEntryPath(f.Name) == want && !f.FileInfo().IsDir() {
			entry = f
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("entry %q not found in %s", relPath, filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, path.Base(want))
	if err := writeEntry(entry, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ExtractPrefix extracts every file below prefix (e.g. "tools/") into destDir,
// preserving the layout relative to prefix. It returns the number of files
// written.
func ExtractPrefix(archivePath, prefix, destDir string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	prefix = strings.ToLower(strings.TrimSuffix(normalizeEntryPath(prefix), "/") + "/")
	count := 0
	for _, f := range r.File {
		name := normalizeEntryPath(f.Name)
		if f.FileInfo().IsDir() || !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		rel := name[len(prefix):]
		dest := filepath.Join(destDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return count, fmt.Errorf("illegal entry path %q", f.Name)
		}
		if err := writeEntry(f, dest); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}
