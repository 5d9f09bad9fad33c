package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates an archive at path holding files (name -> content).
func writeZip(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestExtractEntryIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "App_x64_5.0.zip")
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	writeZip(t, archive, map[string][]byte{
		"inner/app-setup.exe": payload,
		"inner/readme.txt":    []byte("hello"),
	})

	out, err := ExtractEntry(archive, `inner\app-setup.exe`, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, "app-setup.exe", filepath.Base(out))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestExtractEntryMissing(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.zip")
	writeZip(t, archive, map[string][]byte{"setup.exe": []byte("x")})

	_, err := ExtractEntry(archive, "other/setup.exe", dir)
	assert.ErrorContains(t, err, "not found")
}

func TestExtractToolsAndNupkgMetadata(t *testing.T) {
	dir := t.TempDir()
	nupkg := filepath.Join(dir, "chocolatey.2.3.0.nupkg")
	writeZip(t, nupkg, map[string][]byte{
		"chocolatey.nuspec":            []byte(`<?xml version="1.0"?><package><metadata><id> chocolatey </id><version>2.3.0</version></metadata></package>`),
		"tools/chocolateyInstall.ps1":  []byte("Write-Host install"),
		"tools/helpers/functions.psm1": []byte("function x {}"),
		"[Content_Types].xml":          []byte("<Types/>"),
	})

	md, err := NupkgMetadata(nupkg)
	require.NoError(t, err)
	assert.Equal(t, "chocolatey", md.Metadata.ID)
	assert.Equal(t, "2.3.0", md.Metadata.Version)

	dest := filepath.Join(dir, "staging")
	n, err := ExtractTools(nupkg, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dest, "chocolateyInstall.ps1"))
	assert.FileExists(t, filepath.Join(dest, "helpers", "functions.psm1"))
	assert.NoFileExists(t, filepath.Join(dest, "chocolatey.nuspec"))
}

func TestExtractToolsWithoutToolsFolder(t *testing.T) {
	dir := t.TempDir()
	nupkg := filepath.Join(dir, "x.nupkg")
	writeZip(t, nupkg, map[string][]byte{"x.nuspec": []byte("<package/>")})
	_, err := ExtractTools(nupkg, filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestParseMsiProperties(t *testing.T) {
	md, err := parseMsiProperties([]byte(`{"ProductName":"7-Zip 23.01 (x64 edition)","ProductVersion":"23.01.00.0","Manufacturer":"Igor Pavlov","Comments":null}`))
	require.NoError(t, err)
	assert.Equal(t, Metadata{ProductName: "7-Zip 23.01 (x64 edition)", Version: "23.01.00.0", Publisher: "Igor Pavlov"}, md)
}

func TestInstallerMetadataUnsupportedType(t *testing.T) {
	md, err := InstallerMetadata(context.Background(), filepath.Join(t.TempDir(), "a.msix"))
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, md)
}
