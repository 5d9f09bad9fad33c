// pkg/extract/metadata.go - installer metadata lookup by file type.

package extract

import (
	"context"
	"path/filepath"
	"strings"
)

// Metadata is the subset of embedded installer metadata used to rank local
// drop-folder candidates. Fields are empty when unreadable.
type Metadata struct {
	ProductName string
	Publisher   string
	Description string
	Version     string
}

// InstallerMetadata returns whatever embedded metadata can be read for the
// installer at path. Unsupported types yield empty Metadata and no error.
func InstallerMetadata(ctx context.Context, path string) (Metadata, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe":
		return exeMetadata(path)
	case ".msi":
		return msiMetadata(ctx, path)
	default:
		return Metadata{}, nil
	}
}
