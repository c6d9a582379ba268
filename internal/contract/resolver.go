package contract

import (
	"fmt"

	"github.com/pendergraft/mintdeploy/internal/chains"
)

// Resolver resolves contract names to factories using one builder's artifacts.
type Resolver struct {
	builder chains.Builder
	dir     string
}

// NewResolver creates a resolver reading artifacts from the project in dir.
func NewResolver(builder chains.Builder, dir string) *Resolver {
	return &Resolver{builder: builder, dir: dir}
}

// Builder returns the underlying builder.
func (r *Resolver) Builder() chains.Builder {
	return r.builder
}

// Factory resolves name and parses its artifact.
func (r *Resolver) Factory(name string) (*Factory, error) {
	artifact, err := r.builder.Resolve(r.dir, name)
	if err != nil {
		return nil, err
	}
	f, err := NewFactory(artifact)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// VerificationInput returns the compiler input block explorers need to rebuild f.
func (r *Resolver) VerificationInput(f *Factory) (*chains.VerificationInput, error) {
	vi, err := r.builder.VerificationInput(r.dir, f.Artifact)
	if err != nil {
		return nil, fmt.Errorf("loading verification input for %s: %w", f.FullyQualifiedName(), err)
	}
	return vi, nil
}
