package molt

import (
	"strings"

	"golang.org/x/mod/semver"
)

// normalizeVersion converts a version string to the canonical "vX.Y.Z"
// form semver expects. Tags published without the leading "v" are
// accepted.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// ValidVersion reports whether v parses as a semantic version.
func ValidVersion(v string) bool {
	return semver.IsValid(normalizeVersion(v))
}

// CompareVersions orders two version strings semantically, segment by
// segment, never lexically. Returns -1, 0 or +1 as a is lower than,
// equal to, or higher than b. Invalid versions sort lower than valid
// ones, matching semver.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare(normalizeVersion(a), normalizeVersion(b))
}
