package resolver

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/logging"
	"github.com/windowsadmins/cimisync/pkg/naming"
	"github.com/windowsadmins/cimisync/pkg/version"
)

// InstallerManifestSuffix identifies the installer document in a winget
// version directory.
const InstallerManifestSuffix = ".installer.yaml"

// installerTypeExt maps winget installer types onto file extensions.
var installerTypeExt = map[string]string{
	"msi":      ".msi",
	"wix":      ".msi",
	"msix":     ".msix",
	"appx":     ".appx",
	"exe":      ".exe",
	"inno":     ".exe",
	"nullsoft": ".exe",
	"burn":     ".exe",
	"portable": ".exe",
	"zip":      ".zip",
}

// ExtensionForInstallerType returns the extension for a winget installer
// type, or "" if the type is unknown.
func ExtensionForInstallerType(t string) string {
	return installerTypeExt[strings.ToLower(strings.TrimSpace(t))]
}

type nestedFile struct {
	RelativeFilePath string `yaml:"RelativeFilePath"`
}

type wingetInstaller struct {
	Architecture         string       `yaml:"Architecture"`
	InstallerType        string       `yaml:"InstallerType"`
	InstallerURL         string       `yaml:"InstallerUrl"`
	InstallerSha256      string       `yaml:"InstallerSha256"`
	NestedInstallerType  string       `yaml:"NestedInstallerType"`
	NestedInstallerFiles []nestedFile `yaml:"NestedInstallerFiles"`
}

// InstallerManifest is the subset of a winget installer manifest the
// resolver reads.
type InstallerManifest struct {
	PackageIdentifier    string            `yaml:"PackageIdentifier"`
	PackageVersion       string            `yaml:"PackageVersion"`
	InstallerType        string            `yaml:"InstallerType"`
	NestedInstallerType  string            `yaml:"NestedInstallerType"`
	NestedInstallerFiles []nestedFile      `yaml:"NestedInstallerFiles"`
	Installers           []wingetInstaller `yaml:"Installers"`
}

// ParseInstallerManifest decodes a manifest and copies the top-level
// installer and nested types onto installers that omit them.
func ParseInstallerManifest(data []byte) (*InstallerManifest, error) {
	var m InstallerManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse installer manifest: %w", err)
	}
	for i := range m.Installers {
		in := &m.Installers[i]
		if in.InstallerType == "" {
			in.InstallerType = m.InstallerType
		}
		if in.NestedInstallerType == "" {
			in.NestedInstallerType = m.NestedInstallerType
		}
		if len(in.NestedInstallerFiles) == 0 {
			in.NestedInstallerFiles = m.NestedInstallerFiles
		}
	}
	return &m, nil
}

// Selection is the installer variant picked from a manifest.
type Selection struct {
	Installer  wingetInstaller
	Extension  string
	NestedPath string
}

// SelectInstaller applies the matching rules: a direct architecture and
// extension match always wins; a nested match is only tried afterwards.
func (m *InstallerManifest) SelectInstaller(arch, ext string) (*Selection, bool) {
	ext = strings.ToLower(naming.DotExt(ext))
	for _, in := range m.Installers {
		if !strings.EqualFold(in.Architecture, arch) {
			continue
		}
		if ExtensionForInstallerType(in.InstallerType) == ext || urlHasExt(in.InstallerURL, ext) {
			return &Selection{Installer: in, Extension: ext}, true
		}
	}
	for _, in := range m.Installers {
		if !strings.EqualFold(in.Architecture, arch) || len(in.NestedInstallerFiles) == 0 {
			continue
		}
		first := in.NestedInstallerFiles[0].RelativeFilePath
		if ExtensionForInstallerType(in.NestedInstallerType) == ext || strings.HasSuffix(strings.ToLower(first), ext) {
			return &Selection{Installer: in, Extension: ".zip", NestedPath: first}, true
		}
	}
	return nil, false
}

// Variants lists "arch/type" labels of every installer, for diagnostics.
func (m *InstallerManifest) Variants() []string {
	out := make([]string, 0, len(m.Installers))
	for _, in := range m.Installers {
		label := in.Architecture + "/" + in.InstallerType
		if in.NestedInstallerType != "" {
			label += "(" + in.NestedInstallerType + ")"
		}
		if name := urlFileName(in.InstallerURL); name != "" {
			label += ":" + name
		}
		out = append(out, label)
	}
	return out
}

func urlHasExt(raw, ext string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), ext)
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ext)
}

func urlFileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	return path.Base(u.Path)
}

// ManifestPath is the repository path of a package identifier, e.g.
// "7zip.7zip" -> "manifests/7/7zip/7zip".
func ManifestPath(packageID, subPath string) string {
	id := strings.TrimSpace(packageID)
	if id == "" {
		return ""
	}
	p := "manifests/" + strings.ToLower(id[:1]) + "/" + strings.ReplaceAll(id, ".", "/")
	if sub := strings.Trim(subPath, "/"); sub != "" {
		p += "/" + sub
	}
	return p
}

// WingetResolver resolves entries against the winget manifest repository.
type WingetResolver struct {
	API *GitHubAPI
}

func (r *WingetResolver) Source() config.SourceType { return config.SourceWinget }

// Resolve picks the highest version directory, reads its installer manifest
// and selects the variant for entry.
func (r *WingetResolver) Resolve(ctx context.Context, entry config.SoftwareEntry, paths PathContext) (*ResolvedIntent, error) {
	if paths.ManifestAPIURL == "" {
		return nil, fmt.Errorf("no manifest path for %s", entry.SourceRef)
	}

	children, err := r.API.listContents(ctx, paths.ManifestAPIURL)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, c := range children {
		if c.Type == "dir" && version.IsDirectoryVersion(c.Name) {
			dirs = append(dirs, c.Name)
		}
	}
	best, idx, ok := version.Highest(dirs)
	if !ok {
		return nil, &NotFoundError{Reason: "no version directories under " + paths.ManifestAPIURL}
	}
	verDir := dirs[idx]
	logging.Debug("Selected manifest version", "package", entry.SourceRef, "version", best.String())

	files, err := r.API.listContents(ctx, paths.ManifestAPIURL+"/"+url.PathEscape(verDir))
	if err != nil {
		return nil, err
	}
	var manifestFile *contentItem
	for i := range files {
		if strings.HasSuffix(strings.ToLower(files[i].Name), InstallerManifestSuffix) {
			manifestFile = &files[i]
			break
		}
	}
	if manifestFile == nil {
		return nil, &NotFoundError{Reason: "no " + InstallerManifestSuffix + " in version " + verDir}
	}

	rawURL := paths.ManifestRawURL + "/" + url.PathEscape(verDir) + "/" + url.PathEscape(manifestFile.Name)
	if paths.ManifestRawURL == "" && manifestFile.DownloadURL != "" {
		rawURL = manifestFile.DownloadURL
	}
	data, err := r.API.get(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	manifest, err := ParseInstallerManifest(data)
	if err != nil {
		return nil, err
	}

	sel, ok := manifest.SelectInstaller(entry.Arch, entry.PreferredExtension)
	if !ok {
		variants := manifest.Variants()
		logging.Warn("No installer variant matches entry", "package", entry.SourceRef,
			"arch", entry.Arch, "ext", entry.PreferredExtension, "available", strings.Join(variants, ", "))
		return nil, &NotFoundError{
			Reason:    fmt.Sprintf("no %s %s installer in %s %s", entry.Arch, entry.PreferredExtension, entry.SourceRef, verDir),
			Available: variants,
		}
	}

	fileName := urlFileName(sel.Installer.InstallerURL)
	if fileName == "" {
		fileName = naming.FileName(entry, verDir, sel.Extension)
	}
	intent := &ResolvedIntent{
		SourceType:   config.SourceWinget,
		Version:      verDir,
		InstallerURL: sel.Installer.InstallerURL,
		FileName:     fileName,
		Extension:    sel.Extension,
		Sha256:       strings.ToLower(sel.Installer.InstallerSha256),
	}
	if sel.NestedPath != "" {
		intent.NestedArchive = &NestedArchiveRef{RelativePath: sel.NestedPath}
	}
	return intent, nil
}
