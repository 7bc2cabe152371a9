package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/therickybobbeh/depscan/internal/model"
)

// PyprojectParser handles pyproject.toml in both the PEP 621 layout
// ([project.dependencies] / [project.optional-dependencies]) and the Poetry
// layout ([tool.poetry.dependencies] / [tool.poetry.group.*.dependencies]).
type PyprojectParser struct{}

func (p *PyprojectParser) Format() string { return "pyproject.toml" }

func (p *PyprojectParser) SupportsTransitive() bool { return false }

// devGroupName matches optional-dependency group names that conventionally
// hold development-only tooling.
var devGroupName = regexp.MustCompile(`(?i)^(dev|test|tests|testing|lint|linting|docs?)$`)

type pyprojectFile struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]interface{} `toml:"dependencies"`
			DevDependencies map[string]interface{} `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *PyprojectParser) Parse(filename, content string) ([]model.Dep, error) {
	var file pyprojectFile
	if err := toml.Unmarshal([]byte(content), &file); err != nil {
		return nil, model.NewParseError(filename, "invalid TOML: %v", err)
	}

	var deps []model.Dep

	for _, req := range file.Project.Dependencies {
		if d, ok := parsePep508(req, false); ok {
			deps = append(deps, d)
		}
	}
	for group, reqs := range file.Project.OptionalDependencies {
		isDev := devGroupName.MatchString(group)
		for _, req := range reqs {
			if d, ok := parsePep508(req, isDev); ok {
				deps = append(deps, d)
			}
		}
	}

	for name, spec := range file.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		deps = append(deps, model.NewDep(model.EcosystemPyPI, name, poetrySpecString(spec), nil, false))
	}
	for name, spec := range file.Tool.Poetry.DevDependencies {
		deps = append(deps, model.NewDep(model.EcosystemPyPI, name, poetrySpecString(spec), nil, true))
	}
	for group, g := range file.Tool.Poetry.Group {
		isDev := devGroupName.MatchString(group)
		for name, spec := range g.Dependencies {
			deps = append(deps, model.NewDep(model.EcosystemPyPI, name, poetrySpecString(spec), nil, isDev))
		}
	}

	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps, nil
}

var pep508Line = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)

// parsePep508 extracts name and specifier from a PEP 508 requirement
// string. Extras and environment markers are discarded.
func parsePep508(req string, isDev bool) (model.Dep, bool) {
	req = strings.TrimSpace(req)
	if idx := strings.Index(req, ";"); idx != -1 {
		req = strings.TrimSpace(req[:idx])
	}
	m := pep508Line.FindStringSubmatch(req)
	if m == nil {
		return model.Dep{}, false
	}
	spec := strings.TrimSpace(m[3])
	spec = strings.Trim(spec, "()")
	version := spec
	if pm := exactPin.FindStringSubmatch(spec); pm != nil {
		version = pm[1]
	}
	return model.NewDep(model.EcosystemPyPI, m[1], version, nil, isDev), true
}

// poetrySpecString renders a Poetry dependency value (bare string, or a
// table with a version key) as a specifier string.
func poetrySpecString(spec interface{}) string {
	switch v := spec.(type) {
	case string:
		return v
	case map[string]interface{}:
		if ver, ok := v["version"].(string); ok {
			return ver
		}
	}
	return ""
}

// DirectNames returns the declared names, used to seed poetry.lock path
// reconstruction.
func (p *PyprojectParser) DirectNames(content string) map[string]bool {
	deps, err := p.Parse("pyproject.toml", content)
	if err != nil {
		return nil
	}
	names := make(map[string]bool, len(deps))
	for _, d := range deps {
		names[d.Name] = true
	}
	return names
}
