package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/therickybobbeh/depscan/internal/model"
)

// PipfileLockParser handles Pipfile.lock files. The lock records resolved
// versions but not the graph, so every path collapses to the package name.
type PipfileLockParser struct{}

func (p *PipfileLockParser) Format() string { return "Pipfile.lock" }

func (p *PipfileLockParser) SupportsTransitive() bool { return true }

type pipfileLockEntry struct {
	Version string `json:"version"`
}

type pipfileLockFile struct {
	Default map[string]pipfileLockEntry `json:"default"`
	Develop map[string]pipfileLockEntry `json:"develop"`
}

func (p *PipfileLockParser) Parse(filename, content string) ([]model.Dep, error) {
	var lock pipfileLockFile
	if err := json.Unmarshal([]byte(content), &lock); err != nil {
		return nil, model.NewParseError(filename, "invalid JSON: %v", err)
	}

	deps := make([]model.Dep, 0, len(lock.Default)+len(lock.Develop))
	for name, entry := range lock.Default {
		deps = append(deps, model.NewDep(model.EcosystemPyPI, name, pipfileVersion(entry.Version), nil, false))
	}
	for name, entry := range lock.Develop {
		deps = append(deps, model.NewDep(model.EcosystemPyPI, name, pipfileVersion(entry.Version), nil, true))
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps, nil
}

// pipfileVersion strips the "==" pin prefix Pipfile.lock stores.
func pipfileVersion(v string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "=="))
}
