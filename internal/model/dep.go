package model

import "strings"

// Dep is a node in the project's dependency graph. The same package may
// appear more than once when it is reachable through multiple paths;
// (ecosystem, name, version, path) is unique after deduplication.
type Dep struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Ecosystem Ecosystem `json:"ecosystem"`
	// Path is the ordered chain of package names from a root declaration to
	// this node. The first element is always a direct dependency.
	Path     []string `json:"path"`
	IsDirect bool     `json:"is_direct"`
	IsDev    bool     `json:"is_dev"`
}

// NewDep builds a Dep, normalizing the name for the ecosystem and deriving
// IsDirect from the path length.
func NewDep(eco Ecosystem, name, version string, path []string, isDev bool) Dep {
	name = eco.NormalizePackageName(name)
	if len(path) == 0 {
		path = []string{name}
	}
	return Dep{
		Name:      name,
		Version:   version,
		Ecosystem: eco,
		Path:      path,
		IsDirect:  len(path) == 1,
		IsDev:     isDev,
	}
}

// Key identifies the package coordinate used for vulnerability lookups.
func (d Dep) Key() string {
	return string(d.Ecosystem) + "|" + d.Name + "|" + d.Version
}

// PathKey identifies the full graph node, path included.
func (d Dep) PathKey() string {
	return d.Key() + "|" + strings.Join(d.Path, ">")
}

// DepType returns "direct" or "transitive" for reporting.
func (d Dep) DepType() string {
	if d.IsDirect {
		return "direct"
	}
	return "transitive"
}
