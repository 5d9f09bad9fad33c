package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windowsadmins/cimisync/pkg/assetstore"
	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/resolver"
	"github.com/windowsadmins/cimisync/pkg/version"
)

func existing(raw string) *assetstore.ExistingArtifact {
	return &assetstore.ExistingArtifact{Name: "App_x64_" + raw + ".exe", RawVersion: raw, Version: version.MustParse(raw)}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		existing *assetstore.ExistingArtifact
		resolved string
		force    bool
		want     Decision
	}{
		{"nothing published", nil, "1.0", false, UpdateNeeded},
		{"older published", existing("1.9"), "1.10", false, UpdateNeeded},
		{"same version", existing("2.0"), "2.0", false, UpToDate},
		{"same version padded", existing("2.0.0"), "2.0", false, UpToDate},
		{"newer published", existing("3.0"), "2.0", false, UpToDate},
		{"force", existing("3.0"), "2.0", true, UpdateNeeded},
		{"unknown resolved", existing("3.0"), version.Unknown, false, UpdateNeeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.existing, version.MustParse(tt.resolved), tt.force))
		})
	}
}

func TestReconcileMonotonic(t *testing.T) {
	published := existing("4.2.1")
	for _, older := range []string{"1.0", "4.2", "4.2.0.9", "4.2.1"} {
		assert.Equal(t, UpToDate, Reconcile(published, version.MustParse(older), false), older)
	}
	for _, newer := range []string{"4.2.1.1", "4.3", "10.0"} {
		assert.Equal(t, UpdateNeeded, Reconcile(published, version.MustParse(newer), false), newer)
	}
}

func TestExtensions(t *testing.T) {
	entry := config.SoftwareEntry{PreferredExtension: ".msi"}

	plain := &resolver.ResolvedIntent{Extension: "EXE"}
	assert.Equal(t, ".exe", DownloadExt(plain, entry))
	assert.Equal(t, ".exe", StoredExt(plain, entry))

	assert.Equal(t, ".msi", DownloadExt(&resolver.ResolvedIntent{}, entry))

	nested := &resolver.ResolvedIntent{Extension: ".exe", NestedArchive: &resolver.NestedArchiveRef{RelativePath: `bin\Setup.EXE`}}
	assert.Equal(t, ".zip", DownloadExt(nested, entry))
	assert.Equal(t, ".exe", StoredExt(nested, entry))

	noExt := &resolver.ResolvedIntent{NestedArchive: &resolver.NestedArchiveRef{RelativePath: "setup"}}
	assert.Equal(t, ".msi", StoredExt(noExt, entry))
}

func TestPathBuilder(t *testing.T) {
	b := PathBuilder{
		PackagesRoot: "packages",
		WingetRepo:   "microsoft/winget-pkgs",
		GitHub:       &resolver.GitHubAPI{BaseURL: "https://api.github.com", RawURL: "https://raw.githubusercontent.com"},
	}

	winget := config.SoftwareEntry{
		Publisher: "Igor Pavlov", SoftwareName: "7-Zip", Arch: "x64",
		SourceType: config.SourceWinget, SourceRef: "7zip.7zip",
	}
	pc := b.Build(winget)
	assert.Equal(t, "Igor_Pavlov/7-Zip", pc.AssetFolder)
	assert.Equal(t, "packages/Igor_Pavlov/7-Zip", filepath.ToSlash(pc.PackageDir))
	assert.Equal(t, "https://api.github.com/repos/microsoft/winget-pkgs/contents/manifests/7/7zip/7zip", pc.ManifestAPIURL)
	assert.Equal(t, "https://raw.githubusercontent.com/microsoft/winget-pkgs/HEAD/manifests/7/7zip/7zip", pc.ManifestRawURL)

	direct := config.SoftwareEntry{Publisher: "Vendor", SoftwareName: "Tool", SubName1: "CLI", SourceType: config.SourceDirectURL}
	pc = b.Build(direct)
	assert.Equal(t, "Vendor/Tool/CLI", pc.AssetFolder)
	assert.Empty(t, pc.ManifestAPIURL)
	assert.Empty(t, pc.ManifestRawURL)
}
