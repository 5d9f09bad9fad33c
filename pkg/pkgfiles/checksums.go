// pkg/pkgfiles/checksums.go - the architecture-keyed checksums file in tools/.

package pkgfiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChecksumsFileName is the file kept next to the install script.
const ChecksumsFileName = "checksums.json"

// Checksums maps "x86"/"x64" to hex SHA256 strings.
type Checksums map[string]string

// ReadChecksums loads the checksums file; a missing file yields empty x86/x64 entries.
func ReadChecksums(path string) (Checksums, error) {
	sums := Checksums{"x86": "", "x64": ""}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sums, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &sums); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return sums, nil
}

// UpsertChecksum sets the arch entry of the checksums file at path, creating
// the file with empty x86/x64 entries first when it does not exist.
func UpsertChecksum(path, arch, sha256 string) (Checksums, error) {
	sums, err := ReadChecksums(path)
	if err != nil {
		return nil, err
	}
	sums[arch] = sha256

	data, err := json.MarshalIndent(sums, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return nil, err
	}
	return sums, nil
}

// X64Only reports whether the package carries no x86 installer.
func (c Checksums) X64Only() bool {
	return c["x86"] == "" && c["x64"] != ""
}
