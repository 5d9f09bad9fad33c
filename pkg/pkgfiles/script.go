// pkg/pkgfiles/script.go - rewriting variable assignments in the install script.
//
// The script is edited with line-anchored patterns rather than parsed; only
// the assignments below are touched and trailing comments survive.

package pkgfiles

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// InstallScriptName is the install script inside the package tools/ folder.
const InstallScriptName = "chocolateyInstall.ps1"

// ScriptUpdate carries the values written into an install script.
type ScriptUpdate struct {
	Arch     string // x86 or x64
	URL      string
	Checksum string
	FileType string // installer extension, with or without the dot
	X64Only  bool   // also write checksum/checksumType for x64 packages
}

// ScriptRewriter edits the text of an install script.
type ScriptRewriter interface {
	Rewrite(content string, u ScriptUpdate) (string, error)
}

// PowerShellRewriter rewrites Chocolatey-style assignments such as
// "$url64 = '...'" or "url64bit = '...'" inside a package-args hashtable.
type PowerShellRewriter struct{}

// assignment matches `<indent>[$]name<suffix> = 'value'<rest>` on one line.
func assignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?mi)^([ \t]*\$?` + name + `[ \t]*=[ \t]*)(['"])([^'"\r\n]*)(['"])(.*)$`)
}

var (
	reURL            = assignment(`url`)
	reURL64          = assignment(`url64(?:bit)?`)
	reChecksum       = assignment(`checksum`)
	reChecksum64     = assignment(`checksum64`)
	reChecksumType   = assignment(`checksumType`)
	reChecksumType64 = assignment(`checksumType64`)
	reFileType       = assignment(`fileType`)
)

// setValue replaces the quoted value of every match of re, keeping prefix,
// quotes and anything after the closing quote. It reports whether any line matched.
func setValue(content string, re *regexp.Regexp, value string) (string, bool) {
	found := false
	out := re.ReplaceAllStringFunc(content, func(line string) string {
		m := re.FindStringSubmatch(line)
		found = true
		return m[1] + m[2] + value + m[4] + m[5]
	})
	return out, found
}

// Rewrite applies u to content.
func (PowerShellRewriter) Rewrite(content string, u ScriptUpdate) (string, error) {
	urlRe, sumRe, typeRe := reURL, reChecksum, reChecksumType
	if u.Arch == "x64" {
		urlRe, sumRe, typeRe = reURL64, reChecksum64, reChecksumType64
	}

	content, found := setValue(content, urlRe, u.URL)
	if !found {
		return "", fmt.Errorf("no %s assignment in install script", urlVariable(u.Arch))
	}
	content, _ = setValue(content, sumRe, u.Checksum)
	content, _ = setValue(content, typeRe, "sha256")

	if u.Arch == "x64" && u.X64Only {
		content, _ = setValue(content, reChecksum, u.Checksum)
		content, _ = setValue(content, reChecksumType, "sha256")
	}
	if ft := strings.TrimPrefix(strings.ToLower(u.FileType), "."); ft != "" {
		content, _ = setValue(content, reFileType, ft)
	}
	return content, nil
}

func urlVariable(arch string) string {
	if arch == "x64" {
		return "url64"
	}
	return "url"
}

// UpdateInstallScript rewrites the script at path in place.
func UpdateInstallScript(path string, rw ScriptRewriter, u ScriptUpdate) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return err
	}
	updated, err := rw.Rewrite(string(data), u)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(updated), 0644)
}
