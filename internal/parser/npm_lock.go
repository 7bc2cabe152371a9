package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/therickybobbeh/depscan/internal/model"
)

// PackageLockParser handles package-lock.json in lockfile versions 1, 2
// and 3. v2/v3 locks carry a flat "packages" map keyed by install path;
// v1 locks nest a "dependencies" tree.
type PackageLockParser struct{}

func (p *PackageLockParser) Format() string { return "package-lock.json" }

func (p *PackageLockParser) SupportsTransitive() bool { return true }

type npmLockPackage struct {
	Version      string            `json:"version"`
	Dev          bool              `json:"dev"`
	Dependencies map[string]string `json:"dependencies"`
}

type npmLockV1Dep struct {
	Version      string                  `json:"version"`
	Dev          bool                    `json:"dev"`
	Dependencies map[string]npmLockV1Dep `json:"dependencies"`
}

type npmLockFile struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]npmLockPackage `json:"packages"`
	Dependencies    map[string]npmLockV1Dep   `json:"dependencies"`
}

func (p *PackageLockParser) Parse(filename, content string) ([]model.Dep, error) {
	var lock npmLockFile
	if err := json.Unmarshal([]byte(content), &lock); err != nil {
		return nil, model.NewParseError(filename, "invalid JSON: %v", err)
	}

	var deps []model.Dep
	if len(lock.Packages) > 0 {
		deps = p.parsePackagesMap(lock.Packages)
	} else {
		deps = p.parseV1Tree(lock.Dependencies, nil)
	}
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].PathKey() < deps[j].PathKey()
	})
	return deps, nil
}

// parsePackagesMap walks the v2/v3 "packages" map. The empty key is the
// project root; every other key is an install path like
// "node_modules/a/node_modules/b" whose segments give the dependency path.
func (p *PackageLockParser) parsePackagesMap(packages map[string]npmLockPackage) []model.Dep {
	deps := make([]model.Dep, 0, len(packages))
	for key, pkg := range packages {
		if key == "" {
			continue
		}
		path := installPathSegments(key)
		if len(path) == 0 || pkg.Version == "" {
			continue
		}
		name := path[len(path)-1]
		deps = append(deps, model.NewDep(model.EcosystemNpm, name, pkg.Version, path, pkg.Dev))
	}
	return deps
}

// installPathSegments turns "node_modules/a/node_modules/@s/b" into
// ["a", "@s/b"]. Keys not rooted in node_modules (workspaces, links) are
// skipped by returning nil.
func installPathSegments(key string) []string {
	const marker = "node_modules/"
	if !strings.HasPrefix(key, marker) {
		return nil
	}
	var segments []string
	rest := key
	for strings.HasPrefix(rest, marker) {
		rest = rest[len(marker):]
		next := strings.Index(rest, "/"+marker)
		if next == -1 {
			segments = append(segments, rest)
			rest = ""
		} else {
			segments = append(segments, rest[:next])
			rest = rest[next+1:]
		}
	}
	return segments
}

// parseV1Tree recursively walks the v1 "dependencies" tree, preserving the
// parent chain as the dependency path.
func (p *PackageLockParser) parseV1Tree(tree map[string]npmLockV1Dep, parents []string) []model.Dep {
	var deps []model.Dep
	for name, entry := range tree {
		path := append(append([]string(nil), parents...), name)
		if entry.Version != "" {
			deps = append(deps, model.NewDep(model.EcosystemNpm, name, entry.Version, path, entry.Dev))
		}
		if len(entry.Dependencies) > 0 {
			deps = append(deps, p.parseV1Tree(entry.Dependencies, path)...)
		}
	}
	return deps
}

// LockfileVersion inspects the lock content, used by the resolver to prefer
// newer lock formats when several files compete.
func (p *PackageLockParser) LockfileVersion(content string) int {
	var lock struct {
		LockfileVersion int `json:"lockfileVersion"`
	}
	if err := json.Unmarshal([]byte(content), &lock); err != nil {
		return 0
	}
	return lock.LockfileVersion
}
