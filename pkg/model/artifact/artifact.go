// Package artifact decodes serialized models.
//
// An artifact is a JSON document like below:
//
//	{
//		"format": "mlgate/v1",
//		"kind": "logistic",
//		"feature_names": ["age", "income"],
//		"classes": [0, 1],
//		"logistic": {"coefficients": [[0.5, -1.2]], "intercepts": [0.1]}
//	}
//
// "kind" is "logistic" or "forest". "feature_names" can be omitted when the registry records them.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/opst/mlgate/pkg/model"
)

const Format = "mlgate/v1"

var (
	// the payload is not a valid artifact.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// neither registry nor artifact tell feature names.
	ErrNoFeatureNames = errors.New("feature names are unknown")
)

type Kind string

const (
	Logistic Kind = "logistic"
	Forest   Kind = "forest"
)

type Document struct {
	Format       string          `json:"format"`
	Kind         Kind            `json:"kind"`
	FeatureNames []string        `json:"feature_names,omitempty"`
	Classes      []int64         `json:"classes"`
	Logistic     *LogisticParams `json:"logistic,omitempty"`
	Forest       *ForestParams   `json:"forest,omitempty"`
}

// Artifact is a decoded and validated model.
type Artifact struct {
	doc       Document
	predictor model.Predictor
	width     int
}

// Decode parses and validates payload.
func Decode(payload []byte) (*Artifact, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	doc := Document{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if doc.Format != Format {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidArtifact, doc.Format)
	}
	if len(doc.Classes) < 2 {
		return nil, fmt.Errorf("%w: at least 2 classes are needed", ErrInvalidArtifact)
	}
	if dup, ok := duplicated(doc.Classes); ok {
		return nil, fmt.Errorf("%w: class %d is duplicated", ErrInvalidArtifact, dup)
	}
	if dup, ok := duplicated(doc.FeatureNames); ok {
		return nil, fmt.Errorf("%w: feature %q is duplicated", ErrInvalidArtifact, dup)
	}

	a := &Artifact{doc: doc}
	var err error
	switch doc.Kind {
	case Logistic:
		if doc.Logistic == nil || doc.Forest != nil {
			return nil, fmt.Errorf("%w: logistic needs only \"logistic\" parameters", ErrInvalidArtifact)
		}
		a.predictor, a.width, err = newLogistic(doc.Classes, *doc.Logistic)
	case Forest:
		if doc.Forest == nil || doc.Logistic != nil {
			return nil, fmt.Errorf("%w: forest needs only \"forest\" parameters", ErrInvalidArtifact)
		}
		a.predictor, a.width, err = newForest(doc.Classes, *doc.Forest)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, doc.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	if doc.FeatureNames != nil && len(doc.FeatureNames) != a.width {
		return nil, fmt.Errorf(
			"%w: %d feature names for %d inputs", ErrInvalidArtifact, len(doc.FeatureNames), a.width,
		)
	}
	return a, nil
}

func (a *Artifact) Kind() Kind {
	return a.doc.Kind
}

// FeatureNames returns feature names recorded in the artifact. It can be nil.
func (a *Artifact) FeatureNames() []string {
	return slices.Clone(a.doc.FeatureNames)
}

// Width is the number of features the model takes.
func (a *Artifact) Width() int {
	return a.width
}

func (a *Artifact) Predictor() model.Predictor {
	return a.predictor
}

// Schema decides feature names of the model.
//
// metadata (from the registry) wins over names in the artifact.
//
// # Returns
//
// - error: ErrNoFeatureNames when both are absent.
// ErrInvalidArtifact when metadata does not fit the model.
func (a *Artifact) Schema(metadata []string) ([]string, error) {
	if len(metadata) == 0 {
		if a.doc.FeatureNames == nil {
			return nil, ErrNoFeatureNames
		}
		return a.FeatureNames(), nil
	}

	if len(metadata) != a.width {
		return nil, fmt.Errorf(
			"%w: registry has %d feature names for %d inputs", ErrInvalidArtifact, len(metadata), a.width,
		)
	}
	if dup, ok := duplicated(metadata); ok {
		return nil, fmt.Errorf("%w: feature %q is duplicated in registry", ErrInvalidArtifact, dup)
	}
	return slices.Clone(metadata), nil
}

func duplicated[T comparable](items []T) (T, bool) {
	seen := make(map[T]struct{}, len(items))
	for _, i := range items {
		if _, ok := seen[i]; ok {
			return i, true
		}
		seen[i] = struct{}{}
	}
	var zero T
	return zero, false
}
