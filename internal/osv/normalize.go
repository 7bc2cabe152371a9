package osv

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/therickybobbeh/depscan/internal/model"
)

var cveID = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// Normalize converts a full OSV record into the report's vulnerability
// shape. The result carries no dependency path yet; the client attaches one
// per matching dependency.
func Normalize(rec *Vulnerability, eco model.Ecosystem, name, version string) model.Vuln {
	v := model.Vuln{
		Package:         name,
		Version:         version,
		Ecosystem:       eco,
		VulnerabilityID: rec.ID,
		Summary:         rec.Summary,
		Details:         rec.Details,
		Aliases:         append([]string(nil), rec.Aliases...),
		Published:       parseOSVTime(rec.Published),
		Modified:        parseOSVTime(rec.Modified),
		AdvisoryURL:     advisoryURL(rec),
		FixedRange:      firstFixed(rec),
		CVEIDs:          cveIDs(rec),
	}

	v.Severity, v.CVSSScore = severityOf(rec)
	if v.CVSSScore == 0 {
		v.CVSSScore = v.Severity.RepresentativeScore()
	}
	return v
}

// severityOf derives the severity bucket: database_specific.severity wins,
// then the CVSS vector's base severity, then UNKNOWN.
func severityOf(rec *Vulnerability) (model.Severity, float64) {
	score := cvssScore(rec)
	if label, ok := rec.DatabaseSpecific["severity"].(string); ok {
		if sev, ok := model.ParseSeverity(label); ok && sev != model.SeverityUnknown {
			return sev, score
		}
	}
	if score > 0 {
		return model.SeverityFromScore(score), score
	}
	return model.SeverityUnknown, 0
}

// cvssScore reads the first CVSS_V3 severity entry. Scores arrive either as
// a bare number or as a vector string; vectors get an approximate base
// score from their high-impact components.
func cvssScore(rec *Vulnerability) float64 {
	for _, s := range rec.Severity {
		if !strings.HasPrefix(s.Type, "CVSS_V3") {
			continue
		}
		if n, err := strconv.ParseFloat(s.Score, 64); err == nil {
			return n
		}
		if n := vectorBaseScore(s.Score); n > 0 {
			return n
		}
	}
	return 0
}

// vectorBaseScore estimates a base score from a CVSS v3 vector string like
// "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H". Exact CVSS computation
// needs the full scoring tables; counting the high-impact components gets
// the bucket right.
func vectorBaseScore(vector string) float64 {
	v := strings.ToUpper(vector)
	if !strings.HasPrefix(v, "CVSS:3") {
		return 0
	}
	var score float64
	if strings.Contains(v, "/AV:N") {
		score += 2.5
	}
	if strings.Contains(v, "/AC:L") {
		score += 1.5
	}
	if strings.Contains(v, "/PR:N") {
		score += 1.5
	}
	if strings.Contains(v, "/C:H") {
		score += 1.5
	}
	if strings.Contains(v, "/I:H") {
		score += 1.5
	}
	if strings.Contains(v, "/A:H") {
		score += 1.5
	}
	return score
}

// firstFixed returns the first fixed-version event found in the record's
// ranges, rendered as a remediation expression.
func firstFixed(rec *Vulnerability) string {
	for _, aff := range rec.Affected {
		for _, r := range aff.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					return ">=" + e.Fixed
				}
			}
		}
	}
	return ""
}

// cveIDs collects CVE identifiers from the record id and its aliases.
func cveIDs(rec *Vulnerability) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if cveID.MatchString(id) && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(rec.ID)
	for _, a := range rec.Aliases {
		add(a)
	}
	return ids
}

// advisoryURL picks the best reference link: ADVISORY type first, then any.
func advisoryURL(rec *Vulnerability) string {
	for _, ref := range rec.References {
		if strings.EqualFold(ref.Type, "ADVISORY") {
			return ref.URL
		}
	}
	if len(rec.References) > 0 {
		return rec.References[0].URL
	}
	return "https://osv.dev/vulnerability/" + rec.ID
}

func parseOSVTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
