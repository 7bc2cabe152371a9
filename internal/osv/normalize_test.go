package osv

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/therickybobbeh/depscan/internal/model"
)

func TestNormalizeSeverityPrecedence(t *testing.T) {
	// database_specific.severity wins over the CVSS-derived bucket.
	rec := &Vulnerability{
		ID:               "GHSA-x",
		DatabaseSpecific: map[string]interface{}{"severity": "CRITICAL"},
		Severity:         []SeverityEntry{{Type: "CVSS_V3", Score: "5.0"}},
	}
	v := Normalize(rec, model.EcosystemNpm, "pkg", "1.0.0")
	assert.Equal(t, model.SeverityCritical, v.Severity)
	assert.Equal(t, 5.0, v.CVSSScore)
}

func TestNormalizeScoreFallbacks(t *testing.T) {
	// Numeric CVSS score drives the bucket when no label exists.
	rec := &Vulnerability{ID: "GHSA-y", Severity: []SeverityEntry{{Type: "CVSS_V3", Score: "9.8"}}}
	v := Normalize(rec, model.EcosystemNpm, "pkg", "1.0.0")
	assert.Equal(t, model.SeverityCritical, v.Severity)

	// A vector string yields an approximate score.
	rec = &Vulnerability{ID: "GHSA-z", Severity: []SeverityEntry{
		{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"},
	}}
	v = Normalize(rec, model.EcosystemNpm, "pkg", "1.0.0")
	assert.Equal(t, model.SeverityCritical, v.Severity)

	// No scoring information at all: UNKNOWN with its representative score.
	rec = &Vulnerability{ID: "GHSA-w"}
	v = Normalize(rec, model.EcosystemNpm, "pkg", "1.0.0")
	assert.Equal(t, model.SeverityUnknown, v.Severity)
	assert.Equal(t, model.SeverityUnknown.RepresentativeScore(), v.CVSSScore)
}

func TestNormalizeFixedRangeAndIDs(t *testing.T) {
	rec := &Vulnerability{
		ID:      "PYSEC-2021-1",
		Aliases: []string{"CVE-2021-12345", "GHSA-aaaa-bbbb-cccc"},
		Affected: []Affected{{
			Package: Package{Name: "requests", Ecosystem: "PyPI"},
			Ranges: []Range{{
				Type:   "ECOSYSTEM",
				Events: []Event{{Introduced: "0"}, {Fixed: "2.26.0"}},
			}},
		}},
	}
	v := Normalize(rec, model.EcosystemPyPI, "requests", "2.25.1")
	assert.Equal(t, ">=2.26.0", v.FixedRange)
	assert.Equal(t, []string{"CVE-2021-12345"}, v.CVEIDs)
	assert.Equal(t, []string{"CVE-2021-12345", "GHSA-aaaa-bbbb-cccc"}, v.Aliases)
	assert.Equal(t, "https://osv.dev/vulnerability/PYSEC-2021-1", v.AdvisoryURL)
}

func TestNormalizeNoFixedVersion(t *testing.T) {
	rec := &Vulnerability{
		ID: "GHSA-nofix",
		Affected: []Affected{{
			Ranges: []Range{{Type: "SEMVER", Events: []Event{{Introduced: "0"}}}},
		}},
	}
	v := Normalize(rec, model.EcosystemNpm, "pkg", "1.0.0")
	assert.Empty(t, v.FixedRange)
}
