package parser

import (
	"encoding/json"
	"sort"

	"github.com/therickybobbeh/depscan/internal/model"
)

// PackageJSONParser handles npm package.json manifests. Only the declared
// direct dependencies are visible; transitive resolution needs a lockfile.
type PackageJSONParser struct{}

func (p *PackageJSONParser) Format() string { return "package.json" }

func (p *PackageJSONParser) SupportsTransitive() bool { return false }

// Parse emits one Dep per entry in dependencies and devDependencies, with
// the declared specifier as the version.
func (p *PackageJSONParser) Parse(filename, content string) ([]model.Dep, error) {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return nil, model.NewParseError(filename, "invalid JSON: %v", err)
	}

	deps := make([]model.Dep, 0, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name, spec := range manifest.Dependencies {
		deps = append(deps, model.NewDep(model.EcosystemNpm, name, spec, nil, false))
	}
	for name, spec := range manifest.DevDependencies {
		deps = append(deps, model.NewDep(model.EcosystemNpm, name, spec, nil, true))
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps, nil
}

// DirectNames returns the set of names declared in a package.json, used to
// seed lock parsers that reconstruct dependency paths.
func (p *PackageJSONParser) DirectNames(content string) map[string]bool {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return nil
	}
	names := make(map[string]bool, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name := range manifest.Dependencies {
		names[name] = true
	}
	for name := range manifest.DevDependencies {
		names[name] = true
	}
	return names
}
