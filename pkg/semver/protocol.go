// Package semver checks protocol versions exchanged during the provider handshake.
package semver

import (
	"fmt"
	"regexp"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:protocol"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a range is a major-only specifier (e.g., "1").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// SatisfiesRange checks if a version string satisfies a range.
// An empty range accepts any valid version.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
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

// CheckProtocol verifies that the version announced by a provider is acceptable.
func CheckProtocol(version, rangeStr string) error {
	if version == "" {
		return fmt.Errorf("%s - provider did not announce a protocol version", logPrefix)
	}
	if _, err := masterminds.NewVersion(version); err != nil {
		return fmt.Errorf("%s - invalid protocol version %q: %w", logPrefix, version, err)
	}
	if rangeStr != "" && !IsMajorOnly(rangeStr) {
		if _, err := masterminds.NewConstraint(rangeStr); err != nil {
			return fmt.Errorf("%s - invalid protocol range %q: %w", logPrefix, rangeStr, err)
		}
	}
	if !SatisfiesRange(version, rangeStr) {
		return fmt.Errorf("%s - protocol version %s does not satisfy %s", logPrefix, version, rangeStr)
	}
	return nil
}

// Negotiate picks the highest of the offered versions that satisfies rangeStr.
// Invalid entries are skipped. Returns "" when nothing matches.
func Negotiate(offered []string, rangeStr string) string {
	var matching []*masterminds.Version
	for _, v := range offered {
		sv, err := masterminds.NewVersion(v)
		if err != nil {
			continue
		}
		if SatisfiesRange(v, rangeStr) {
			matching = append(matching, sv)
		}
	}
	if len(matching) == 0 {
		return ""
	}

	// Sort by semver descending and pick highest
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].GreaterThan(matching[j])
	})
	return matching[0].Original()
}
