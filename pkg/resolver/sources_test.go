package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/download"
	"github.com/windowsadmins/cimisync/pkg/extract"
	"github.com/windowsadmins/cimisync/pkg/version"
)

func releaseServer(t *testing.T, body string) *GitHubAPI {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/vendor/app/releases/latest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return &GitHubAPI{BaseURL: srv.URL, Token: "tok", HTTP: srv.Client()}
}

const appRelease = `{"tag_name":"v4.2.1","assets":[
 {"name":"app-x86.msi","browser_download_url":"https://dl.example.com/app-x86.msi"},
 {"name":"app-x64.msi","browser_download_url":"https://dl.example.com/app-x64.msi"}]}`

func releaseEntry(pattern string) config.SoftwareEntry {
	return config.SoftwareEntry{
		Publisher: "Vendor", SoftwareName: "App", Arch: "x64", PreferredExtension: ".msi",
		SourceType: config.SourceGitHubRelease, SourceRef: "vendor/app", AssetPattern: pattern,
	}
}

func TestReleaseAssetPattern(t *testing.T) {
	r := &ReleaseResolver{API: releaseServer(t, appRelease)}
	intent, err := r.Resolve(context.Background(), releaseEntry(`.*x64.*\.msi$`), PathContext{})
	require.NoError(t, err)
	assert.Equal(t, "app-x64.msi", intent.FileName)
	assert.Equal(t, "4.2.1", intent.ReleaseVersion)
	assert.Equal(t, "https://dl.example.com/app-x64.msi", intent.URL)

	n := Normalize(*intent, releaseEntry(""))
	assert.Equal(t, "4.2.1", n.Version)
	assert.Equal(t, "https://dl.example.com/app-x64.msi", n.InstallerURL)
}

func TestReleaseDefaultPatternIsExtension(t *testing.T) {
	r := &ReleaseResolver{API: releaseServer(t, appRelease)}
	intent, err := r.Resolve(context.Background(), releaseEntry(""), PathContext{})
	require.NoError(t, err)
	assert.Equal(t, "app-x86.msi", intent.FileName)
	assert.Equal(t, ".msi", intent.Extension)
}

func TestReleasePatternMatchesNothing(t *testing.T) {
	r := &ReleaseResolver{API: releaseServer(t, appRelease)}
	_, err := r.Resolve(context.Background(), releaseEntry(`arm64`), PathContext{})
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"app-x86.msi", "app-x64.msi"}, nf.Available)
}

func TestReleaseTagWithoutVersion(t *testing.T) {
	r := &ReleaseResolver{API: releaseServer(t, `{"tag_name":"latest","assets":[{"name":"a.msi","browser_download_url":"https://x/a.msi"}]}`)}
	intent, err := r.Resolve(context.Background(), releaseEntry(""), PathContext{})
	require.NoError(t, err)
	assert.Equal(t, version.Unknown, intent.ReleaseVersion)
}

func TestReleaseInvalidPattern(t *testing.T) {
	r := &ReleaseResolver{API: &GitHubAPI{}}
	_, err := r.Resolve(context.Background(), releaseEntry(`(`), PathContext{})
	assert.ErrorContains(t, err, "invalid AssetPattern")
}

func prober(srv *httptest.Server) *download.Prober {
	return &download.Prober{Client: srv.Client()}
}

func TestWebDirectoryNonHTMLResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="tool_2.3.exe"`)
	}))
	defer srv.Close()

	entry := config.SoftwareEntry{SoftwareName: "Tool", Arch: "x64", PreferredExtension: ".exe", SourceType: config.SourceWebDirectory, SourceRef: srv.URL + "/downloads/"}
	intent, err := (&WebDirectoryResolver{Prober: prober(srv)}).Resolve(context.Background(), entry, PathContext{})
	require.NoError(t, err)
	assert.Equal(t, "tool_2.3.exe", intent.FileName)
	assert.Equal(t, "2.3", intent.Version)
	assert.Equal(t, ".exe", intent.Extension)
}

func TestWebDirectoryListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pub" {
			http.Redirect(w, r, "/pub/tool/", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
<a href="../">Parent</a>
<a href="tool-1.9.msi">tool-1.9.msi</a>
<a href="tool-2.1.msi?dl=1">tool-2.1.msi</a>
<a href="tool-2.0.msi">tool-2.0.msi</a>
<a href="tool-3.0.zip">tool-3.0.zip</a>
</body></html>`))
	}))
	defer srv.Close()

	entry := config.SoftwareEntry{SoftwareName: "Tool", Arch: "x64", PreferredExtension: ".msi", SourceType: config.SourceWebDirectory, SourceRef: srv.URL + "/pub"}
	intent, err := (&WebDirectoryResolver{Prober: prober(srv)}).Resolve(context.Background(), entry, PathContext{})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/pub/tool/tool-2.1.msi?dl=1", intent.InstallerURL)
	assert.Equal(t, "tool-2.1.msi", intent.FileName)
	assert.Equal(t, "2.1", intent.Version)
}

func TestWebDirectoryNoLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<p>nothing</p>`))
	}))
	defer srv.Close()

	entry := config.SoftwareEntry{PreferredExtension: ".msi", SourceRef: srv.URL}
	_, err := (&WebDirectoryResolver{Prober: prober(srv)}).Resolve(context.Background(), entry, PathContext{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractLinks(t *testing.T) {
	links := ExtractLinks([]byte(`<a href="one.msi">1</a><A HREF='two.msi'>2</A><a name="x">`))
	assert.Equal(t, []string{"one.msi", "two.msi"}, links)
}

func TestExtractLinksRegexFallback(t *testing.T) {
	links := ExtractLinks([]byte(`<!-- <a href="hidden-1.0.msi">old</a> -->`))
	assert.Equal(t, []string{"hidden-1.0.msi"}, links)
}

func TestPickLatestLinkSortsDescending(t *testing.T) {
	base, _ := url.Parse("https://example.com/files/")
	got, ok := PickLatestLink(base, []string{"a-1.msi", "/abs/b-2.MSI", "c.exe", "a-3.msi"}, ".msi")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/files/a-3.msi", got.String())
}

func TestDirectURLUnknownVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/latest" {
			http.Redirect(w, r, "/bin/setup.exe", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-msdownload")
	}))
	defer srv.Close()

	entry := config.SoftwareEntry{PreferredExtension: ".exe", SourceType: config.SourceDirectURL, SourceRef: srv.URL + "/latest"}
	intent, err := (&DirectURLResolver{Prober: prober(srv)}).Resolve(context.Background(), entry, PathContext{})
	require.NoError(t, err)
	assert.Equal(t, version.Unknown, intent.Version)
	assert.Equal(t, "setup.exe", intent.FileName)
	assert.Equal(t, srv.URL+"/bin/setup.exe", intent.InstallerURL)
}

func TestDirectURLRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	_, err := (&DirectURLResolver{Prober: prober(srv)}).Resolve(context.Background(), config.SoftwareEntry{SourceRef: srv.URL}, PathContext{})
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingSupplier struct {
	answer string
	calls  int
	file   string
}

func (s *recordingSupplier) SupplyVersion(_ context.Context, _ config.SoftwareEntry, file string) (string, error) {
	s.calls++
	s.file = file
	return s.answer, nil
}

func localEntry() config.SoftwareEntry {
	return config.SoftwareEntry{
		Publisher: "Contoso", SoftwareName: "Widget", Arch: "x64", PreferredExtension: ".msi",
		SourceType: config.SourceLocal, ManualVersionRequired: true,
	}
}

func TestLocalNoCandidatesDoesNotPrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.exe"), []byte("x"), 0644))
	sup := &recordingSupplier{answer: "1.0"}

	_, err := (&LocalResolver{DropPath: dir, Versions: sup}).Resolve(context.Background(), localEntry(), PathContext{})
	require.ErrorIs(t, err, ErrNoCandidates)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, sup.calls)
}

func TestLocalPicksBestScore(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"setup.msi", "widget-installer.msi", "other.msi"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}
	meta := func(_ context.Context, path string) (extract.Metadata, error) {
		if filepath.Base(path) == "setup.msi" {
			return extract.Metadata{ProductName: "Contoso Widget", Description: "Widget by Contoso"}, nil
		}
		return extract.Metadata{}, errors.New("unreadable")
	}
	sup := &recordingSupplier{answer: " v2.5.1 "}

	intent, err := (&LocalResolver{DropPath: dir, Versions: sup, Metadata: meta}).Resolve(context.Background(), localEntry(), PathContext{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "setup.msi"), intent.LocalPickedFile)
	assert.Equal(t, "2.5.1", intent.Version)
	assert.Empty(t, intent.InstallerURL)
	assert.Equal(t, 1, sup.calls)
}

func TestLocalRejectsMalformedVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.msi"), []byte("x"), 0644))

	_, err := (&LocalResolver{DropPath: dir, Versions: &recordingSupplier{answer: "latest"}}).Resolve(context.Background(), localEntry(), PathContext{})
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestScoreCandidate(t *testing.T) {
	e := localEntry()
	assert.Equal(t, 3, ScoreCandidate(e, `C:\drop\Widget_x64.msi`, extract.Metadata{}))
	assert.Equal(t, 9, ScoreCandidate(e, "widget.msi", extract.Metadata{ProductName: "Contoso Widget"}))
	assert.Equal(t, 1, ScoreCandidate(e, "a.msi", extract.Metadata{Description: "made by contoso"}))
	assert.Equal(t, 0, ScoreCandidate(e, "a.msi", extract.Metadata{}))
}
