// pkg/naming/naming.go - canonical artifact names and store-safe path segments.

package naming

import (
	"path"
	"regexp"
	"strings"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/version"
)

var (
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)
	underscores  = regexp.MustCompile(`_{2,}`)
)

// Sanitize makes name usable as a single asset-store path segment and as a
// directory name. "+" becomes "Plus", "=" and "#" are dropped and any other
// character illegal in either scheme becomes "_". Sanitize is idempotent.
func Sanitize(name string) string {
	s := strings.ReplaceAll(name, "+", "Plus")
	s = strings.NewReplacer("=", "", "#", "").Replace(s)
	s = illegalChars.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_.")
}

// BaseName is the sanitized "Name[_Sub1][_Sub2]" prefix shared by every
// stored artifact of an entry.
func BaseName(e config.SoftwareEntry) string {
	parts := []string{e.SoftwareName}
	if e.SubName1 != "" {
		parts = append(parts, e.SubName1)
	}
	if e.SubName2 != "" {
		parts = append(parts, e.SubName2)
	}
	return Sanitize(strings.Join(parts, "_"))
}

// FileName builds "Base_Arch_Version.ext". ext may be given with or without
// its leading dot.
func FileName(e config.SoftwareEntry, ver string, ext string) string {
	return BaseName(e) + "_" + e.Arch + "_" + ver + DotExt(ext)
}

// DotExt lowercases ext and guarantees a leading dot. An empty ext stays empty.
func DotExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// ParseFileName extracts the version from a stored artifact name produced by
// FileName for the given base, arch and extension. ok is false when name does
// not follow that convention.
func ParseFileName(base, arch, ext, name string) (ver string, ok bool) {
	ext = DotExt(ext)
	prefix := strings.ToLower(base + "_" + arch + "_")
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, ext) {
		return "", false
	}
	ver = name[len(prefix) : len(name)-len(ext)]
	if !version.IsValid(ver) {
		return "", false
	}
	return ver, true
}

// StoreFolder builds the asset store folder "Publisher/Software[/Sub1][/Sub2]"
// from sanitized segments, always with forward slashes.
func StoreFolder(e config.SoftwareEntry) string {
	segments := []string{Sanitize(e.Publisher), Sanitize(e.SoftwareName)}
	for _, s := range []string{e.SubName1, e.SubName2} {
		if s != "" {
			segments = append(segments, Sanitize(s))
		}
	}
	return path.Join(segments...)
}
