package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/opst/mlgate/pkg/model"
	"github.com/opst/mlgate/pkg/model/artifact"
	"github.com/opst/mlgate/pkg/registry"
	"github.com/opst/mlgate/pkg/registry/filesystem"
)

// Strategy is a way to find the model to serve.
type Strategy interface {
	Name() string

	// Resolve loads a model. The returned handle is stamped with at.
	Resolve(ctx context.Context, at time.Time) (*model.Handle, error)
}

type registryStrategy struct {
	reg   registry.Registry
	alias string
}

// FromRegistry loads the artifact which alias points in reg.
//
// Feature names are taken from the registry, or from the artifact when the registry does not record them.
func FromRegistry(reg registry.Registry, alias string) Strategy {
	return &registryStrategy{reg: reg, alias: alias}
}

func (s *registryStrategy) Name() string {
	return "registry@" + s.alias
}

func (s *registryStrategy) Resolve(ctx context.Context, at time.Time) (*model.Handle, error) {
	entry, err := s.reg.Alias(ctx, s.alias)
	if err != nil {
		return nil, err
	}
	return load(entry.Payload, entry.FeatureNames, model.ProvenanceRegistry, entry.Version, at)
}

type localStrategy struct {
	path string
}

// FromFile loads the artifact at path. Its version is the digest of the content.
func FromFile(path string) Strategy {
	return &localStrategy{path: path}
}

func (s *localStrategy) Name() string {
	return "file:" + s.path
}

func (s *localStrategy) Resolve(_ context.Context, at time.Time) (*model.Handle, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", registry.ErrMissing, s.path)
		}
		return nil, err
	}
	return load(payload, nil, model.ProvenanceLocalFallback, filesystem.Digest(payload), at)
}

func load(payload []byte, names []string, prov model.Provenance, version string, at time.Time) (*model.Handle, error) {
	a, err := artifact.Decode(payload)
	if err != nil {
		return nil, err
	}
	schema, err := a.Schema(names)
	if err != nil {
		return nil, err
	}
	return model.NewHandle(a.Predictor(), schema, prov, version, at), nil
}
