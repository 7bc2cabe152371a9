// Package generator defines the pluggable lockfile-generation contract.
// The core never shells out; deployments that want on-the-fly lock
// generation register an implementation here.
package generator

import (
	"context"
	"errors"

	"github.com/therickybobbeh/depscan/internal/model"
)

// ErrUnavailable is returned when no generator covers the ecosystem. The
// orchestrator treats it as "proceed with the manifest alone".
var ErrUnavailable = errors.New("lockfile generator unavailable")

// Generator converts a manifest into a lockfile. Implementations receive
// the manifest content as a string and return the generated lock filename
// and content; they must not mutate anything else.
type Generator interface {
	Generate(ctx context.Context, eco model.Ecosystem, filename, content string) (lockName, lockContent string, err error)
}

// Registry dispatches to per-ecosystem generators.
type Registry struct {
	generators map[model.Ecosystem]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[model.Ecosystem]Generator)}
}

// Register installs a generator for an ecosystem, replacing any previous
// one.
func (r *Registry) Register(eco model.Ecosystem, g Generator) {
	r.generators[eco] = g
}

// Generate runs the ecosystem's generator, or ErrUnavailable when none is
// registered.
func (r *Registry) Generate(ctx context.Context, eco model.Ecosystem, filename, content string) (string, string, error) {
	g, ok := r.generators[eco]
	if !ok {
		return "", "", ErrUnavailable
	}
	return g.Generate(ctx, eco, filename, content)
}
