package parser

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/therickybobbeh/depscan/internal/model"
)

// RequirementsParser handles pip requirements files. Every requirement line
// is a direct dependency; include directives are skipped and recorded as
// warnings so the caller can surface them.
type RequirementsParser struct {
	warnings []string
}

func (p *RequirementsParser) Format() string { return "requirements.txt" }

func (p *RequirementsParser) SupportsTransitive() bool { return false }

func (p *RequirementsParser) Warnings() []string { return p.warnings }

var (
	requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`)
	eggFragment     = regexp.MustCompile(`[#&]egg=([A-Za-z0-9][A-Za-z0-9._-]*)`)
	exactPin        = regexp.MustCompile(`^==\s*([^\s,*]+)$`)
)

func (p *RequirementsParser) Parse(filename, content string) ([]model.Dep, error) {
	p.warnings = nil
	var deps []model.Dep

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Inline comments start at " #".
		if idx := strings.Index(line, " #"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}
		// Environment markers are irrelevant for vulnerability lookups.
		if idx := strings.Index(line, ";"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		switch {
		case strings.HasPrefix(line, "-r ") || strings.HasPrefix(line, "--requirement"),
			strings.HasPrefix(line, "-c ") || strings.HasPrefix(line, "--constraint"):
			p.warnings = append(p.warnings,
				fmt.Sprintf("%s:%d: include directive %q not followed", filename, lineNo, line))
			continue
		case strings.HasPrefix(line, "-e ") || strings.HasPrefix(line, "--editable"):
			if m := eggFragment.FindStringSubmatch(line); m != nil {
				deps = append(deps, model.NewDep(model.EcosystemPyPI, m[1], "", nil, false))
			} else {
				p.warnings = append(p.warnings,
					fmt.Sprintf("%s:%d: editable install without egg fragment skipped", filename, lineNo))
			}
			continue
		case strings.HasPrefix(line, "-"):
			// Other pip options (--index-url and friends).
			continue
		case strings.Contains(line, "://"):
			if m := eggFragment.FindStringSubmatch(line); m != nil {
				deps = append(deps, model.NewDep(model.EcosystemPyPI, m[1], "", nil, false))
			}
			continue
		}

		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			p.warnings = append(p.warnings,
				fmt.Sprintf("%s:%d: unrecognized requirement %q skipped", filename, lineNo, line))
			continue
		}
		name := m[1]
		spec := strings.TrimSpace(m[3])
		version := spec
		// An exact pin resolves to the pinned version itself.
		if pm := exactPin.FindStringSubmatch(spec); pm != nil {
			version = pm[1]
		}
		deps = append(deps, model.NewDep(model.EcosystemPyPI, name, version, nil, false))
	}
	if err := scanner.Err(); err != nil {
		return nil, model.NewParseError(filename, "read: %v", err)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps, nil
}

// DirectNames returns the declared names, used to seed lock parsers.
func (p *RequirementsParser) DirectNames(content string) map[string]bool {
	deps, err := p.Parse("requirements.txt", content)
	if err != nil {
		return nil
	}
	names := make(map[string]bool, len(deps))
	for _, d := range deps {
		names[d.Name] = true
	}
	return names
}
