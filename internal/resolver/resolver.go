// Package resolver selects the best dependency file per ecosystem, invokes
// the parsers, and merges the results into one deduplicated dependency set.
package resolver

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/therickybobbeh/depscan/internal/model"
	"github.com/therickybobbeh/depscan/internal/parser"
)

// Resolver turns a set of (filename, content) pairs into dependencies.
type Resolver struct {
	log *logrus.Logger
}

func NewResolver(log *logrus.Logger) *Resolver {
	return &Resolver{log: log}
}

// Result is the outcome of resolving one input set.
type Result struct {
	Deps       []model.Dep
	Ecosystems []model.Ecosystem
	Warnings   []string
}

// Resolve parses every recognized file, preferring lockfiles over
// manifests, and deduplicates the merged set. It fails only when no
// ecosystem produced any dependency.
func (r *Resolver) Resolve(files map[string]string, opts model.ScanOptions) (*Result, error) {
	grouped := make(map[model.Ecosystem]map[string]string)
	var warnings []string
	for name, content := range files {
		eco, ok := parser.Ecosystem(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: unsupported file ignored", name))
			continue
		}
		if grouped[eco] == nil {
			grouped[eco] = make(map[string]string)
		}
		grouped[eco][name] = content
	}

	result := &Result{}
	anyParsed := false
	for _, eco := range model.AllEcosystems() {
		ecoFiles := grouped[eco]
		if len(ecoFiles) == 0 {
			continue
		}
		deps, ws, ok := r.resolveEcosystem(eco, ecoFiles)
		warnings = append(warnings, ws...)
		if !ok {
			continue
		}
		anyParsed = true
		result.Ecosystems = append(result.Ecosystems, eco)
		result.Deps = append(result.Deps, deps...)
	}
	if !anyParsed {
		return nil, fmt.Errorf("%w: no usable dependency file in input", model.ErrResolver)
	}

	result.Deps = Deduplicate(result.Deps)
	if !opts.IncludeDevDependencies {
		result.Deps = DropDevOnly(result.Deps)
	}
	result.Warnings = warnings
	return result, nil
}

// resolveEcosystem picks the preferred files for one ecosystem and parses
// them. The best lockfile wins; a companion manifest contributes the direct
// declaration set for path reconstruction and the specifier-only entries a
// lock may not carry. Returns ok=false when nothing parsed.
func (r *Resolver) resolveEcosystem(eco model.Ecosystem, files map[string]string) ([]model.Dep, []string, bool) {
	var warnings []string

	lockName := pickLockfile(eco, files)
	manifestName := pickManifest(eco, files)

	var lockDeps, manifestDeps []model.Dep
	lockParsed, manifestParsed := false, false

	if manifestName != "" {
		p, _ := parser.ForFile(manifestName)
		deps, err := p.Parse(manifestName, files[manifestName])
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			manifestDeps = deps
			manifestParsed = true
		}
		if w, ok := p.(parser.Warner); ok {
			warnings = append(warnings, w.Warnings()...)
		}
	}

	if lockName != "" {
		p, _ := parser.ForFile(lockName)
		seedDirectNames(p, manifestDeps)
		deps, err := p.Parse(lockName, files[lockName])
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			lockDeps = deps
			lockParsed = true
		}
	}

	// Files that lost the per-tier pick are rejected with a warning.
	for name := range files {
		if name != lockName && name != manifestName {
			warnings = append(warnings, fmt.Sprintf("%s: superseded by %s", name, firstNonEmpty(lockName, manifestName)))
		}
	}

	r.log.WithFields(logrus.Fields{
		"ecosystem": eco,
		"lockfile":  lockName,
		"manifest":  manifestName,
		"deps":      len(lockDeps) + len(manifestDeps),
	}).Debug("resolved ecosystem files")

	switch {
	case lockParsed && manifestParsed:
		return mergeLockAndManifest(lockDeps, manifestDeps), warnings, true
	case lockParsed:
		return lockDeps, warnings, true
	case manifestParsed:
		return manifestDeps, warnings, true
	}
	return nil, warnings, false
}

// seedDirectNames hands lock parsers the set of directly declared names so
// they can tell direct from transitive packages.
func seedDirectNames(p parser.Parser, manifestDeps []model.Dep) {
	if len(manifestDeps) == 0 {
		return
	}
	names := make(map[string]bool, len(manifestDeps))
	for _, d := range manifestDeps {
		names[d.Name] = true
	}
	switch lp := p.(type) {
	case *parser.YarnLockParser:
		lp.RootNames = names
	case *parser.PoetryLockParser:
		lp.DirectNames = names
	}
}

// mergeLockAndManifest keeps the lock's resolved entries and drops
// specifier-only manifest entries for packages the lock pins. Manifest
// entries for packages absent from the lock are kept.
func mergeLockAndManifest(lockDeps, manifestDeps []model.Dep) []model.Dep {
	pinned := make(map[string]bool, len(lockDeps))
	devInLock := make(map[string]bool)
	for _, d := range lockDeps {
		key := string(d.Ecosystem) + "|" + d.Name
		pinned[key] = true
		if d.IsDev {
			devInLock[key] = true
		}
	}
	out := append([]model.Dep(nil), lockDeps...)
	for _, d := range manifestDeps {
		if !pinned[string(d.Ecosystem)+"|"+d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// lockRank orders candidate lockfiles; higher wins. package-lock.json is
// ranked by its lockfileVersion so v3 beats v2 beats v1.
func lockRank(eco model.Ecosystem, name, content string) int {
	base := path.Base(strings.ToLower(name))
	switch eco {
	case model.EcosystemNpm:
		switch base {
		case "package-lock.json":
			v := (&parser.PackageLockParser{}).LockfileVersion(content)
			if v < 1 || v > 3 {
				v = 1
			}
			return 10 + v
		case "yarn.lock":
			return 5
		}
	case model.EcosystemPyPI:
		switch base {
		case "poetry.lock":
			return 10
		case "pipfile.lock":
			return 8
		}
	}
	return 0
}

// pickLockfile returns the highest-ranked lockfile name, ties broken by
// alphabetical filename.
func pickLockfile(eco model.Ecosystem, files map[string]string) string {
	type candidate struct {
		name string
		rank int
	}
	var cands []candidate
	for name, content := range files {
		if rank := lockRank(eco, name, content); rank > 0 {
			cands = append(cands, candidate{name, rank})
		}
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].rank != cands[j].rank {
			return cands[i].rank > cands[j].rank
		}
		return cands[i].name < cands[j].name
	})
	return cands[0].name
}

// pickManifest returns the first manifest by alphabetical filename.
func pickManifest(eco model.Ecosystem, files map[string]string) string {
	var names []string
	for name := range files {
		base := path.Base(strings.ToLower(name))
		switch {
		case eco == model.EcosystemNpm && base == "package.json",
			eco == model.EcosystemPyPI && base == "pyproject.toml",
			eco == model.EcosystemPyPI && strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// Deduplicate removes exact (ecosystem, name, version, path) duplicates.
func Deduplicate(deps []model.Dep) []model.Dep {
	seen := make(map[string]bool, len(deps))
	out := deps[:0]
	for _, d := range deps {
		key := d.PathKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// DropDevOnly removes dev dependencies that are not reachable through any
// non-dev path. A package with both a dev and a non-dev path keeps the
// non-dev entries.
func DropDevOnly(deps []model.Dep) []model.Dep {
	hasNonDev := make(map[string]bool)
	for _, d := range deps {
		if !d.IsDev {
			hasNonDev[d.Key()] = true
		}
	}
	out := deps[:0]
	for _, d := range deps {
		if d.IsDev && !hasNonDev[d.Key()] {
			continue
		}
		out = append(out, d)
	}
	return out
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
