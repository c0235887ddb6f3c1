package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

var (
	// input features do not fit the schema of the model.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// the model failed to predict.
	ErrPrediction = errors.New("prediction failed")

	// no model is loaded.
	ErrServiceUnavailable = errors.New("model is not available")
)

// Provenance tells where the current model came from.
type Provenance int

const (
	ProvenanceUnavailable Provenance = iota
	ProvenanceRegistry
	ProvenanceLocalFallback
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceRegistry:
		return "REGISTRY"
	case ProvenanceLocalFallback:
		return "LOCAL_FALLBACK"
	default:
		return "UNAVAILABLE"
	}
}

func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Predictor is a trained classifier.
type Predictor interface {
	// class labels, in the order of probabilities.
	Classes() []int64

	// Probabilities returns probability of each class for a row of features.
	//
	// row is ordered as the feature names which the model is trained with.
	Probabilities(row []float64) ([]float64, error)
}

// Handle is the model in service. It is immutable.
type Handle struct {
	predictor  Predictor
	features   []string
	provenance Provenance
	version    string
	resolvedAt time.Time
}

func NewHandle(p Predictor, featureNames []string, prov Provenance, version string, resolvedAt time.Time) *Handle {
	return &Handle{
		predictor:  p,
		features:   slices.Clone(featureNames),
		provenance: prov,
		version:    version,
		resolvedAt: resolvedAt,
	}
}

// Unavailable returns a handle which refuses every prediction.
func Unavailable(resolvedAt time.Time) *Handle {
	return &Handle{provenance: ProvenanceUnavailable, resolvedAt: resolvedAt}
}

func (h *Handle) Provenance() Provenance {
	return h.provenance
}

// Loaded reports whether the handle can predict.
func (h *Handle) Loaded() bool {
	return h.provenance != ProvenanceUnavailable && h.predictor != nil
}

func (h *Handle) Version() string {
	return h.version
}

func (h *Handle) FeatureNames() []string {
	return slices.Clone(h.features)
}

func (h *Handle) ResolvedAt() time.Time {
	return h.resolvedAt
}

// Same reports whether h and other serve the same artifact from the same source.
func (h *Handle) Same(other *Handle) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.provenance == other.provenance && h.version == other.version
}

type Prediction struct {
	Label int64

	// nil unless requested.
	Probabilities []ClassProbability
}

type ClassProbability struct {
	Class       int64
	Probability float64
}

// Predict classifies features.
//
// # Returns
//
// - error: ErrServiceUnavailable when no model is loaded.
// ErrSchemaMismatch when features do not fit. ErrPrediction when the model fails.
func (h *Handle) Predict(features Features, withProbability bool) (pred Prediction, err error) {
	if !h.Loaded() {
		return Prediction{}, ErrServiceUnavailable
	}

	row, err := features.arrange(h.features)
	if err != nil {
		return Prediction{}, err
	}
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: feature %q is not finite", ErrPrediction, h.features[i])
		}
	}

	defer func() {
		if r := recover(); r != nil {
			pred = Prediction{}
			err = fmt.Errorf("%w: %v", ErrPrediction, r)
		}
	}()

	probs, err := h.predictor.Probabilities(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %w", ErrPrediction, err)
	}
	classes := h.predictor.Classes()
	if len(probs) != len(classes) || len(probs) == 0 {
		return Prediction{}, fmt.Errorf(
			"%w: %d probabilities for %d classes", ErrPrediction, len(probs), len(classes),
		)
	}

	best := 0
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Prediction{}, fmt.Errorf("%w: probability is not finite", ErrPrediction)
		}
		if p > probs[best] {
			best = i
		}
	}

	pred = Prediction{Label: classes[best]}
	if withProbability {
		pred.Probabilities = make([]ClassProbability, len(classes))
		for i := range classes {
			pred.Probabilities[i] = ClassProbability{Class: classes[i], Probability: probs[i]}
		}
	}
	return pred, nil
}
