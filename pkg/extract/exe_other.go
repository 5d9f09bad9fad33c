//go:build !windows

package extract

// exeMetadata has no version resource reader outside Windows.
func exeMetadata(string) (Metadata, error) {
	return Metadata{}, nil
}
