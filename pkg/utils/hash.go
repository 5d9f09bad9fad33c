// pkg/utils/hash.go - utility functions for hashing files.

package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// FileSHA256 returns the lowercase hex SHA256 sum of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks if a file's SHA256 matches the expected hash, ignoring case.
func Verify(file string, expectedHash string) bool {
	actual, err := FileSHA256(file)
	if err != nil {
		return false
	}
	return strings.EqualFold(actual, expectedHash)
}
