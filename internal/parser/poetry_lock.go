package parser

import (
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/therickybobbeh/depscan/internal/model"
)

// PoetryLockParser handles poetry.lock files. The lock carries the full
// resolved set as a [[package]] array; paths are rebuilt by walking each
// package's dependencies table from the project's own direct declarations.
type PoetryLockParser struct {
	// DirectNames is the set of names declared in pyproject.toml. When
	// empty (lock scanned alone) every package is reported as direct.
	DirectNames map[string]bool
}

func (p *PoetryLockParser) Format() string { return "poetry.lock" }

func (p *PoetryLockParser) SupportsTransitive() bool { return true }

type poetryLockFile struct {
	Package []struct {
		Name         string                 `toml:"name"`
		Version      string                 `toml:"version"`
		Category     string                 `toml:"category"`
		Dependencies map[string]interface{} `toml:"dependencies"`
	} `toml:"package"`
}

func (p *PoetryLockParser) Parse(filename, content string) ([]model.Dep, error) {
	var lock poetryLockFile
	if err := toml.Unmarshal([]byte(content), &lock); err != nil {
		return nil, model.NewParseError(filename, "invalid TOML: %v", err)
	}

	type pkg struct {
		version  string
		isDev    bool
		children []string
	}
	packages := make(map[string]pkg, len(lock.Package))
	for _, entry := range lock.Package {
		name := model.EcosystemPyPI.NormalizePackageName(entry.Name)
		if name == "" || entry.Version == "" {
			continue
		}
		// Older poetry versions drop the category field; a missing category
		// means main, never dev.
		isDev := strings.EqualFold(entry.Category, "dev")
		children := make([]string, 0, len(entry.Dependencies))
		for child := range entry.Dependencies {
			children = append(children, model.EcosystemPyPI.NormalizePackageName(child))
		}
		sort.Strings(children)
		packages[name] = pkg{version: entry.Version, isDev: isDev, children: children}
	}
	if len(packages) == 0 {
		return []model.Dep{}, nil
	}

	roots := make(map[string]bool)
	for name := range p.DirectNames {
		roots[model.EcosystemPyPI.NormalizePackageName(name)] = true
	}
	if len(roots) == 0 {
		for name := range packages {
			roots[name] = true
		}
	}

	var deps []model.Dep
	seen := make(map[string]bool)
	type node struct {
		name string
		path []string
	}
	var queue []node
	for name := range roots {
		if _, ok := packages[name]; ok {
			queue = append(queue, node{name, []string{name}})
		}
	}
	reached := make(map[string]bool)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		entry := packages[n.name]
		d := model.NewDep(model.EcosystemPyPI, n.name, entry.version, n.path, entry.isDev)
		if seen[d.PathKey()] {
			continue
		}
		seen[d.PathKey()] = true
		reached[n.name] = true
		deps = append(deps, d)
		if len(n.path) >= 16 {
			continue
		}
		for _, child := range entry.children {
			if _, ok := packages[child]; !ok {
				continue
			}
			if containsName(n.path, child) {
				continue
			}
			queue = append(queue, node{child, append(append([]string(nil), n.path...), child)})
		}
	}

	// Lock packages that no declared root reaches still surface, with a
	// flat path.
	for name, entry := range packages {
		if !reached[name] {
			d := model.NewDep(model.EcosystemPyPI, name, entry.version, nil, entry.isDev)
			if !seen[d.PathKey()] {
				seen[d.PathKey()] = true
				deps = append(deps, d)
			}
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].PathKey() < deps[j].PathKey() })
	return deps, nil
}
