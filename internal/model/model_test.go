package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Weight(), SeverityHigh.Weight())
	assert.Greater(t, SeverityHigh.Weight(), SeverityMedium.Weight())
	assert.Greater(t, SeverityMedium.Weight(), SeverityLow.Weight())
	assert.Greater(t, SeverityLow.Weight(), SeverityUnknown.Weight())
}

func TestSeverityRepresentativeScores(t *testing.T) {
	assert.Equal(t, 9.5, SeverityCritical.RepresentativeScore())
	assert.Equal(t, 7.5, SeverityHigh.RepresentativeScore())
	assert.Equal(t, 5.0, SeverityMedium.RepresentativeScore())
	assert.Equal(t, 2.5, SeverityLow.RepresentativeScore())
	assert.Equal(t, 0.0, SeverityUnknown.RepresentativeScore())
}

func TestParseSeverity(t *testing.T) {
	s, ok := ParseSeverity("moderate")
	assert.True(t, ok)
	assert.Equal(t, SeverityMedium, s)

	_, ok = ParseSeverity("bogus")
	assert.False(t, ok)
}

func TestSeverityFromScore(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFromScore(9.8))
	assert.Equal(t, SeverityHigh, SeverityFromScore(7.0))
	assert.Equal(t, SeverityMedium, SeverityFromScore(5.0))
	assert.Equal(t, SeverityLow, SeverityFromScore(0.1))
	assert.Equal(t, SeverityUnknown, SeverityFromScore(0))
}

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusRunning))
	assert.True(t, StatusRunning.CanTransition(StatusCompleted))
	assert.True(t, StatusRunning.CanTransition(StatusFailed))

	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransition(StatusRunning))
	assert.False(t, StatusFailed.CanTransition(StatusRunning))
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestNewDepDirectness(t *testing.T) {
	direct := NewDep(EcosystemNpm, "lodash", "4.17.20", nil, false)
	assert.True(t, direct.IsDirect)
	assert.Equal(t, []string{"lodash"}, direct.Path)
	assert.Equal(t, "direct", direct.DepType())

	transitive := NewDep(EcosystemNpm, "qs", "6.10.0", []string{"express", "qs"}, false)
	assert.False(t, transitive.IsDirect)
	assert.Equal(t, "transitive", transitive.DepType())
}

func TestPyPINameNormalization(t *testing.T) {
	d := NewDep(EcosystemPyPI, "Flask_SQLAlchemy", "2.5.1", nil, false)
	assert.Equal(t, "flask-sqlalchemy", d.Name)

	n := NewDep(EcosystemNpm, "Lodash", "4.17.20", nil, false)
	assert.Equal(t, "Lodash", n.Name)
}

func TestSortVulns(t *testing.T) {
	vulns := []Vuln{
		{Package: "b", Severity: SeverityLow, VulnerabilityID: "GHSA-2"},
		{Package: "a", Severity: SeverityCritical, VulnerabilityID: "GHSA-3"},
		{Package: "a", Severity: SeverityCritical, VulnerabilityID: "GHSA-1"},
		{Package: "c", Severity: SeverityHigh, VulnerabilityID: "GHSA-4"},
	}
	SortVulns(vulns)
	assert.Equal(t, "GHSA-1", vulns[0].VulnerabilityID)
	assert.Equal(t, "GHSA-3", vulns[1].VulnerabilityID)
	assert.Equal(t, SeverityHigh, vulns[2].Severity)
	assert.Equal(t, SeverityLow, vulns[3].Severity)

	// Non-increasing severity throughout.
	for i := 1; i < len(vulns); i++ {
		assert.GreaterOrEqual(t, vulns[i-1].Severity.Weight(), vulns[i].Severity.Weight())
	}
}

func TestScanOptionsIgnores(t *testing.T) {
	opts := ScanOptions{IgnoreSeverities: []Severity{SeverityLow}}
	assert.True(t, opts.Ignores(SeverityLow))
	assert.False(t, opts.Ignores(SeverityHigh))
}

func TestVulnWithDep(t *testing.T) {
	v := Vuln{VulnerabilityID: "GHSA-1", Severity: SeverityHigh}
	d := NewDep(EcosystemNpm, "qs", "6.10.0", []string{"express", "qs"}, false)
	out := v.WithDep(d)
	assert.Equal(t, "qs", out.Package)
	assert.Equal(t, []string{"express", "qs"}, out.DependencyPath)
	assert.Equal(t, "transitive", out.DepType)
	// The original is untouched.
	assert.Empty(t, v.DependencyPath)
}

func TestParseEcosystem(t *testing.T) {
	eco, ok := ParseEcosystem("Node.js")
	assert.True(t, ok)
	assert.Equal(t, EcosystemNpm, eco)

	eco, ok = ParseEcosystem("pypi")
	assert.True(t, ok)
	assert.Equal(t, EcosystemPyPI, eco)

	_, ok = ParseEcosystem("rust")
	assert.False(t, ok)
}
