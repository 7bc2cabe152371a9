package model

import (
	"sort"
	"time"
)

// ReportMeta carries scan-level metadata attached to a finished report.
type ReportMeta struct {
	GeneratedAt         time.Time        `json:"generated_at"`
	Ecosystems          []Ecosystem      `json:"ecosystems"`
	ScanDurationSeconds float64          `json:"scan_duration_seconds"`
	ScanOptions         ScanOptions      `json:"scan_options"`
	SeverityCounts      map[Severity]int `json:"severity_counts"`
	Warnings            []string         `json:"warnings,omitempty"`
	StaleCacheKeys      []string         `json:"stale_cache_keys,omitempty"`
}

// Report is the final result of a scan.
type Report struct {
	JobID              string     `json:"job_id"`
	Status             JobStatus  `json:"status"`
	TotalDependencies  int        `json:"total_dependencies"`
	VulnerableCount    int        `json:"vulnerable_count"`
	VulnerablePackages []Vuln     `json:"vulnerable_packages"`
	Dependencies       []Dep      `json:"dependencies"`
	SuppressedCount    int        `json:"suppressed_count"`
	Meta               ReportMeta `json:"meta"`
}

// SortVulns orders findings by severity descending, then package name
// ascending, then vulnerability id ascending, so report output is
// deterministic for a given input.
func SortVulns(vulns []Vuln) {
	sort.SliceStable(vulns, func(i, j int) bool {
		a, b := vulns[i], vulns[j]
		if a.Severity.Weight() != b.Severity.Weight() {
			return a.Severity.Weight() > b.Severity.Weight()
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.VulnerabilityID < b.VulnerabilityID
	})
}

// CountSeverities tallies findings per severity bucket.
func CountSeverities(vulns []Vuln) map[Severity]int {
	counts := make(map[Severity]int, len(AllSeverities()))
	for _, s := range AllSeverities() {
		counts[s] = 0
	}
	for _, v := range vulns {
		counts[v.Severity]++
	}
	return counts
}
