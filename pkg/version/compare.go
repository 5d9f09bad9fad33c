// pkg/version/compare.go - parsing and numeric comparison of installer versions.

package version

import (
	"fmt"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Unknown is the sentinel used when a source exposes no version at all.
// It never compares equal to a real published version.
const Unknown = "0.0.0.0"

var (
	validPattern      = regexp.MustCompile(`^\d+(\.\d+){1,3}$`)
	directoryPattern  = regexp.MustCompile(`^\d+(\.\d+){0,3}$`)
	firstVersionRegex = regexp.MustCompile(`\d+(?:\.\d+)*`)
)

// Version is a display string paired with its comparable form.
type Version struct {
	Raw        string
	comparable *goversion.Version
}

// Normalize trims whitespace and a leading "v" from a version string.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && s[1] >= '0' && s[1] <= '9' {
		s = s[1:]
	}
	return s
}

// IsValid reports whether raw, after normalisation, has two to four numeric parts.
func IsValid(raw string) bool {
	return validPattern.MatchString(Normalize(raw))
}

// IsDirectoryVersion reports whether name is a manifest version directory
// (one to four numeric parts, nothing else).
func IsDirectoryVersion(name string) bool {
	return directoryPattern.MatchString(name)
}

// ExtractFirst returns the first dotted numeric run in s, or "" if s has no digits.
func ExtractFirst(s string) string {
	return firstVersionRegex.FindString(s)
}

// Parse converts raw into a comparable Version.
func Parse(raw string) (*Version, error) {
	norm := Normalize(raw)
	if norm == "" {
		return nil, fmt.Errorf("empty version")
	}
	v, err := goversion.NewVersion(norm)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw, err)
	}
	return &Version{Raw: norm, comparable: v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) *Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// IsUnknown reports whether v is the unknown-version sentinel.
func (v *Version) IsUnknown() bool {
	return v == nil || v.Raw == Unknown
}

// Compare returns -1, 0 or 1 comparing numeric components; missing trailing
// components count as zero.
func (v *Version) Compare(other *Version) int {
	return v.comparable.Compare(other.comparable)
}

// Equal reports numeric equality.
func (v *Version) Equal(other *Version) bool {
	return v.Compare(other) == 0
}

// LessThan reports whether v sorts before other.
func (v *Version) LessThan(other *Version) bool {
	return v.Compare(other) < 0
}

func (v *Version) String() string {
	if v == nil {
		return ""
	}
	return v.Raw
}

// Highest returns the numerically highest of the raw strings that parse,
// together with its index in raws. ok is false when none parse.
func Highest(raws []string) (best *Version, index int, ok bool) {
	index = -1
	for i, raw := range raws {
		v, err := Parse(raw)
		if err != nil {
			continue
		}
		if best == nil || best.LessThan(v) {
			best, index = v, i
		}
	}
	return best, index, best != nil
}
