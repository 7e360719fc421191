// Package semver provides version parsing and range checks for the capability
// catalog schema and the drawing host.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:semver"

var (
	majorOnlyRegex = regexp.MustCompile(`^\d+$`)
	// Host builds report things like "R24.1" or "24.1s (LMS Tech)".
	hostVersionRegex = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)
)

// ParseVersion parses a version string leniently. A leading "v" or "R" is
// stripped and missing minor/patch components default to 0. Trailing build
// noise after the numeric part is ignored.
func ParseVersion(raw string) (*masterminds.Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%s - empty version", logPrefix)
	}
	if v, err := masterminds.NewVersion(s); err == nil {
		return v, nil
	}
	m := hostVersionRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%s - invalid version %q", logPrefix, raw)
	}
	parts := []string{m[1], "0", "0"}
	if m[2] != "" {
		parts[1] = m[2]
	}
	if m[3] != "" {
		parts[2] = m[3]
	}
	v, err := masterminds.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, raw, err)
	}
	return v, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(strings.TrimSpace(rangeStr))
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(strings.TrimSpace(rangeStr), "%d", &major)
	return major
}

// SatisfiesRange checks if a version string satisfies a range. An empty range
// accepts every parsable version.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := ParseVersion(version)
	if err != nil {
		return false
	}
	rangeStr = strings.TrimSpace(rangeStr)
	if rangeStr == "" {
		return true
	}
	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// CheckCompatibility returns an error describing why version does not
// satisfy rangeStr, or nil when it does.
func CheckCompatibility(subject, version, rangeStr string) error {
	if strings.TrimSpace(rangeStr) == "" {
		return nil
	}
	if _, err := ParseVersion(version); err != nil {
		return fmt.Errorf("%s - %s version %q is not parsable: %w", logPrefix, subject, version, err)
	}
	if !SatisfiesRange(version, rangeStr) {
		return fmt.Errorf("%s - %s version %s does not satisfy %s", logPrefix, subject, version, rangeStr)
	}
	return nil
}
