package resolver

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/download"
)

func TestNormalizePromotesAliases(t *testing.T) {
	entry := config.SoftwareEntry{PreferredExtension: ".msi", SourceType: config.SourceWebDirectory}
	in := ResolvedIntent{LatestVersion: "1.2", ReleaseVersion: "9.9", URL: "https://x/a", NestedArchive: &NestedArchiveRef{RelativePath: "a"}}

	out := Normalize(in, entry)
	assert.Equal(t, "1.2", out.Version)
	assert.Equal(t, "https://x/a", out.InstallerURL)
	assert.Equal(t, ".msi", out.Extension)
	assert.Equal(t, config.SourceWebDirectory, out.SourceType)

	out.NestedArchive.RelativePath = "changed"
	assert.Equal(t, "a", in.NestedArchive.RelativePath, "input must not be modified")
	assert.Empty(t, in.Version)
}

func TestNormalizeKeepsExplicitFields(t *testing.T) {
	in := ResolvedIntent{SourceType: config.SourceWinget, Version: "3.0", LatestVersion: "1.0", InstallerURL: "https://a", URL: "https://b", Extension: "EXE"}
	out := Normalize(in, config.SoftwareEntry{PreferredExtension: ".msi", SourceType: config.SourceLocal})
	assert.Equal(t, "3.0", out.Version)
	assert.Equal(t, "https://a", out.InstallerURL)
	assert.Equal(t, ".exe", out.Extension)
	assert.Equal(t, config.SourceWinget, out.SourceType)
}

func TestFinalize(t *testing.T) {
	ok := ResolvedIntent{Version: "v1.2.3", InstallerURL: "https://a"}
	require.NoError(t, Finalize(&ok))
	assert.Equal(t, "1.2.3", ok.Version)
	assert.Equal(t, "1.2.3", ok.Comparable.String())

	bad := ResolvedIntent{Version: "7", InstallerURL: "https://a"}
	assert.ErrorIs(t, Finalize(&bad), ErrInvalidVersion)

	noSource := ResolvedIntent{Version: "1.0"}
	assert.Error(t, Finalize(&noSource))
}

func TestIsPlaceholderFileName(t *testing.T) {
	for _, name := range []string{"", "download", "Installer", "latest"} {
		assert.True(t, IsPlaceholderFileName(name), name)
	}
	assert.False(t, IsPlaceholderFileName("setup.exe"))
}

type stubProbe struct {
	res *download.ProbeResult
	err error
	n   int
}

func (s *stubProbe) Probe(context.Context, string) (*download.ProbeResult, error) {
	s.n++
	return s.res, s.err
}

func TestEnsureFileNameReprobesPlaceholder(t *testing.T) {
	final, _ := url.Parse("https://cdn.example.com/files/app_4.1.exe")
	p := &stubProbe{res: &download.ProbeResult{FinalURL: final, FileName: "app_4.1.exe"}}
	in := &ResolvedIntent{InstallerURL: "https://example.com/download", FileName: "download"}

	EnsureFileName(context.Background(), p, in)
	assert.Equal(t, "app_4.1.exe", in.FileName)
	assert.Equal(t, final.String(), in.InstallerURL)
}

func TestEnsureFileNameLeavesRealNamesAlone(t *testing.T) {
	p := &stubProbe{}
	in := &ResolvedIntent{InstallerURL: "https://example.com/a.msi", FileName: "a.msi"}
	EnsureFileName(context.Background(), p, in)
	assert.Zero(t, p.n)

	local := &ResolvedIntent{LocalPickedFile: "/drop/x", FileName: ""}
	EnsureFileName(context.Background(), p, local)
	assert.Zero(t, p.n)
}

func TestEnsureFileNameProbeFailureKeepsIntent(t *testing.T) {
	p := &stubProbe{err: errors.New("offline")}
	in := &ResolvedIntent{InstallerURL: "https://example.com/installer", FileName: "installer"}
	EnsureFileName(context.Background(), p, in)
	assert.Equal(t, "installer", in.FileName)
	assert.Equal(t, "https://example.com/installer", in.InstallerURL)
}

type fixedResolver struct {
	source config.SourceType
}

func (f fixedResolver) Source() config.SourceType { return f.source }

func (f fixedResolver) Resolve(context.Context, config.SoftwareEntry, PathContext) (*ResolvedIntent, error) {
	return &ResolvedIntent{SourceType: f.source}, nil
}

func TestSetDispatch(t *testing.T) {
	set, err := NewSet(fixedResolver{config.SourceWinget}, fixedResolver{config.SourceLocal})
	require.NoError(t, err)

	r, err := set.For(config.SoftwareEntry{SourceType: config.SourceLocal})
	require.NoError(t, err)
	assert.Equal(t, config.SourceLocal, r.Source())

	_, err = set.For(config.SoftwareEntry{SourceType: config.SourceDirectURL})
	assert.ErrorIs(t, err, ErrNoResolver)

	_, err = NewSet(fixedResolver{config.SourceWinget}, fixedResolver{config.SourceWinget})
	assert.Error(t, err)
}
