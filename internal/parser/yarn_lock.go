package parser

import (
	"bufio"
	"sort"
	"strings"

	"github.com/therickybobbeh/depscan/internal/model"
)

// YarnLockParser handles the classic yarn.lock block format. The lockfile
// flattens the graph, so paths are reconstructed best-effort by walking each
// block's "dependencies:" section from the project's direct declarations.
type YarnLockParser struct {
	// RootNames is the set of names declared directly in package.json.
	// When empty (lock scanned alone) every package is reported as direct.
	RootNames map[string]bool
}

func (p *YarnLockParser) Format() string { return "yarn.lock" }

func (p *YarnLockParser) SupportsTransitive() bool { return true }

type yarnEntry struct {
	name     string
	version  string
	children []string
}

func (p *YarnLockParser) Parse(filename, content string) ([]model.Dep, error) {
	entries, err := p.parseBlocks(filename, content)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []model.Dep{}, nil
	}

	// Index resolved entries by name. Yarn may resolve one name to several
	// versions; keep them all and fan paths out over each.
	byName := make(map[string][]*yarnEntry)
	for _, e := range entries {
		byName[e.name] = append(byName[e.name], e)
	}

	roots := p.RootNames
	if len(roots) == 0 {
		roots = make(map[string]bool, len(byName))
		for name := range byName {
			roots[name] = true
		}
	}

	var deps []model.Dep
	seen := make(map[string]bool)
	type node struct {
		entry *yarnEntry
		path  []string
	}
	var queue []node
	for name := range roots {
		for _, e := range byName[name] {
			queue = append(queue, node{e, []string{e.name}})
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		d := model.NewDep(model.EcosystemNpm, n.entry.name, n.entry.version, n.path, false)
		if seen[d.PathKey()] {
			continue
		}
		seen[d.PathKey()] = true
		deps = append(deps, d)
		if len(n.path) >= 16 {
			continue // depth guard against pathological locks
		}
		for _, child := range n.entry.children {
			for _, ce := range byName[child] {
				if containsName(n.path, child) {
					continue // cycle
				}
				queue = append(queue, node{ce, append(append([]string(nil), n.path...), child)})
			}
		}
	}

	// Anything unreachable from the roots still gets reported, flat.
	reached := make(map[string]bool)
	for _, d := range deps {
		reached[d.Name+"@"+d.Version] = true
	}
	for _, e := range entries {
		if !reached[e.name+"@"+e.version] {
			d := model.NewDep(model.EcosystemNpm, e.name, e.version, nil, false)
			if !seen[d.PathKey()] {
				seen[d.PathKey()] = true
				deps = append(deps, d)
			}
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].PathKey() < deps[j].PathKey() })
	return deps, nil
}

func containsName(path []string, name string) bool {
	for _, p := range path {
		if p == name {
			return true
		}
	}
	return false
}

// parseBlocks scans the lockfile line by line. A block starts with one or
// more comma-separated specifier keys ending in ':' at zero indentation and
// carries indented "version" and "dependencies:" lines.
func (p *YarnLockParser) parseBlocks(filename, content string) ([]*yarnEntry, error) {
	var entries []*yarnEntry
	var current *yarnEntry
	inDependencies := false
	sawHeader := false
	sawContent := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		sawContent = true
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")

		if !indented && strings.HasSuffix(trimmed, ":") {
			name := specifierName(strings.TrimSuffix(trimmed, ":"))
			if name == "" {
				return nil, model.NewParseError(filename, "unrecognized block header %q", trimmed)
			}
			current = &yarnEntry{name: name}
			entries = append(entries, current)
			inDependencies = false
			sawHeader = true
			continue
		}
		if current == nil {
			if !indented {
				return nil, model.NewParseError(filename, "content before first block: %q", trimmed)
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "version"):
			current.version = unquoteYarn(strings.TrimSpace(strings.TrimPrefix(trimmed, "version")))
			inDependencies = false
		case trimmed == "dependencies:" || trimmed == "optionalDependencies:":
			inDependencies = true
		case strings.HasSuffix(trimmed, ":"):
			inDependencies = false
		case inDependencies:
			fields := strings.SplitN(trimmed, " ", 2)
			if child := unquoteYarn(fields[0]); child != "" {
				current.children = append(current.children, child)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, model.NewParseError(filename, "read: %v", err)
	}
	if !sawHeader && sawContent {
		return nil, model.NewParseError(filename, "no lock entries found")
	}
	out := entries[:0]
	for _, e := range entries {
		if e.version != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// specifierName extracts the package name from the first specifier of a
// block header, e.g. `"@babel/core@^7.0.0", "@babel/core@^7.1.0"`.
func specifierName(header string) string {
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	first = unquoteYarn(first)
	at := strings.LastIndex(first, "@")
	if at <= 0 {
		// Unscoped name with no range, or a leading @ only.
		if at == 0 {
			return ""
		}
		return first
	}
	return first[:at]
}

func unquoteYarn(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
