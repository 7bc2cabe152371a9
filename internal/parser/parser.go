// Package parser extracts declared dependencies from manifest and lock
// files. Parsers are pure: they consume a filename plus content string and
// never perform I/O.
package parser

import (
	"path"
	"strings"

	"github.com/therickybobbeh/depscan/internal/model"
)

// Parser is the capability set every format implements.
type Parser interface {
	// Parse extracts dependencies from the file content. A file that parses
	// but declares nothing returns an empty slice without error; a file that
	// cannot be understood returns a *model.ParseError.
	Parse(filename, content string) ([]model.Dep, error)
	// Format returns the canonical filename this parser handles.
	Format() string
	// SupportsTransitive reports whether the format records the full
	// dependency graph.
	SupportsTransitive() bool
}

// Warner is implemented by parsers that collect non-fatal notes while
// parsing (skipped include directives and the like).
type Warner interface {
	Warnings() []string
}

// Ecosystem returns the ecosystem a supported filename belongs to.
// Returns false for files no parser handles.
func Ecosystem(filename string) (model.Ecosystem, bool) {
	switch path.Base(strings.ToLower(filename)) {
	case "package.json", "package-lock.json", "yarn.lock":
		return model.EcosystemNpm, true
	case "requirements.txt", "pyproject.toml", "poetry.lock", "pipfile.lock":
		return model.EcosystemPyPI, true
	}
	// requirements variants like requirements-dev.txt
	base := path.Base(strings.ToLower(filename))
	if strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt") {
		return model.EcosystemPyPI, true
	}
	return "", false
}

// ForFile returns the parser for a filename. Lock parsers that benefit from
// knowing the project's direct declarations are created bare here; the
// resolver seeds them when a companion manifest is available.
func ForFile(filename string) (Parser, bool) {
	base := path.Base(strings.ToLower(filename))
	switch base {
	case "package.json":
		return &PackageJSONParser{}, true
	case "package-lock.json":
		return &PackageLockParser{}, true
	case "yarn.lock":
		return &YarnLockParser{}, true
	case "pyproject.toml":
		return &PyprojectParser{}, true
	case "poetry.lock":
		return &PoetryLockParser{}, true
	case "pipfile.lock":
		return &PipfileLockParser{}, true
	}
	if strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt") {
		return &RequirementsParser{}, true
	}
	return nil, false
}
