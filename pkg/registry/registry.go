// Package registry abstracts where model artifacts are kept and which one an alias points to.
package registry

import (
	"context"
	"errors"
)

var (
	// the requested alias or version does not exist.
	ErrMissing = errors.New("artifact not found")

	// the alias did not point the expected version when swapping.
	ErrConflict = errors.New("alias has been changed concurrently")
)

// Entry is an artifact held by a registry.
type Entry struct {
	// identifies this artifact in the registry.
	//
	// Its format depends on the registry: a sequence number, a digest, a path...
	Version string

	// serialized artifact
	Payload []byte

	// feature names recorded as metadata of the artifact, in the order the model expects.
	//
	// nil when the registry does not record them.
	FeatureNames []string
}

type Registry interface {
	// Alias returns the entry which alias points.
	//
	// When alias is not set, it returns ErrMissing.
	Alias(ctx context.Context, alias string) (Entry, error)

	// Get returns the entry of version.
	//
	// When not found, it returns ErrMissing.
	Get(ctx context.Context, version string) (Entry, error)

	// SwapAlias points alias to next, only if it points expected now.
	//
	// Empty expected means that alias must not be set yet.
	//
	// # Returns
	//
	// - error: ErrConflict when alias does not point expected.
	// ErrMissing when next is not found.
	SwapAlias(ctx context.Context, alias string, expected string, next string) error
}

// Registrar is a Registry accepting new artifacts.
type Registrar interface {
	Registry

	// Register stores payload as a new version.
	Register(ctx context.Context, payload []byte, featureNames []string) (Entry, error)
}
