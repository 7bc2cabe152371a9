package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// The npm engine is a thin layer over Masterminds/semver. The library
// already understands the npm range grammar (^, ~, x-wildcards, hyphen
// ranges, || alternatives); the wrapper normalizes the npm spellings the
// library is strict about and keeps prerelease handling aligned with npm:
// a prerelease version only matches when the range itself names one.

var npmWhitespace = regexp.MustCompile(`\s+`)

// ParseNpm parses an exact npm version string.
func ParseNpm(s string) (*semver.Version, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid npm version %q: %w", s, err)
	}
	return v, nil
}

// CompareNpm compares two exact versions, returning -1, 0 or 1. Build
// metadata never participates in precedence; equal versions are tie-broken
// lexicographically by build metadata so ordering stays total.
func CompareNpm(a, b string) (int, error) {
	va, err := ParseNpm(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseNpm(b)
	if err != nil {
		return 0, err
	}
	if c := va.Compare(vb); c != 0 {
		return c, nil
	}
	return strings.Compare(va.Metadata(), vb.Metadata()), nil
}

// NpmRangeMatches reports whether version satisfies the npm range
// expression. An empty range, "*" and "latest" match any valid version.
func NpmRangeMatches(rng, version string) (bool, error) {
	v, err := ParseNpm(version)
	if err != nil {
		return false, err
	}
	c, err := npmConstraint(rng)
	if err != nil {
		return false, err
	}
	if c == nil {
		// Any-range: npm still hides prereleases behind explicit opt-in.
		return v.Prerelease() == "", nil
	}
	return c.Check(v), nil
}

// MaxSatisfyingNpm resolves a range against a candidate set, returning the
// greatest matching version. Returns false when nothing matches.
func MaxSatisfyingNpm(rng string, candidates []string) (string, bool) {
	var best *semver.Version
	var bestRaw string
	for _, raw := range candidates {
		ok, err := NpmRangeMatches(rng, raw)
		if err != nil || !ok {
			continue
		}
		v, err := ParseNpm(raw)
		if err != nil {
			continue
		}
		if best == nil || v.Compare(best) > 0 ||
			(v.Compare(best) == 0 && strings.Compare(v.Metadata(), best.Metadata()) > 0) {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw, best != nil
}

// npmConstraint builds a Masterminds constraint from an npm range string.
// Returns (nil, nil) for the any-range.
func npmConstraint(rng string) (*semver.Constraints, error) {
	rng = strings.TrimSpace(rng)
	switch rng {
	case "", "*", "latest", "x", "X":
		return nil, nil
	}
	var alts []string
	for _, alt := range strings.Split(rng, "||") {
		alt = strings.TrimSpace(alt)
		if alt == "" || alt == "*" {
			// One open alternative makes the whole range open.
			return nil, nil
		}
		alts = append(alts, normalizeNpmClause(alt))
	}
	c, err := semver.NewConstraint(strings.Join(alts, " || "))
	if err != nil {
		return nil, fmt.Errorf("invalid npm range %q: %w", rng, err)
	}
	return c, nil
}

// normalizeNpmClause rewrites one ||-free clause into the comma-joined
// conjunction form Masterminds parses. Hyphen ranges pass through intact.
func normalizeNpmClause(clause string) string {
	if strings.Contains(clause, " - ") {
		return clause
	}
	parts := npmWhitespace.Split(clause, -1)
	return strings.Join(parts, ", ")
}
