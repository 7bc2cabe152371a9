package model

import "time"

// Vuln is a normalized vulnerability finding tied to one dependency path.
type Vuln struct {
	Package         string    `json:"package"`
	Version         string    `json:"version"`
	Ecosystem       Ecosystem `json:"ecosystem"`
	VulnerabilityID string    `json:"vulnerability_id"`
	Severity        Severity  `json:"severity"`
	CVSSScore       float64   `json:"cvss_score"`
	CVEIDs          []string  `json:"cve_ids"`
	Summary         string    `json:"summary"`
	Details         string    `json:"details"`
	AdvisoryURL     string    `json:"advisory_url"`
	FixedRange      string    `json:"fixed_range"`
	Published       time.Time `json:"published"`
	Modified        time.Time `json:"modified"`
	Aliases         []string  `json:"aliases"`
	DependencyPath  []string  `json:"dependency_path"`
	DepType         string    `json:"dep_type"`
}

// WithDep returns a copy of the finding re-associated with the given
// dependency's path. One Vuln is emitted per (vulnerability, path) pair.
func (v Vuln) WithDep(d Dep) Vuln {
	out := v
	out.Package = d.Name
	out.Version = d.Version
	out.Ecosystem = d.Ecosystem
	out.DependencyPath = append([]string(nil), d.Path...)
	out.DepType = d.DepType()
	return out
}
