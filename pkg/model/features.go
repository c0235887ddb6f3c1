package model

import (
	"fmt"
	"slices"
)

// Features is an input row for Predict.
//
// It is either Positional or Named.
type Features interface {
	// arrange orders values as names.
	arrange(names []string) ([]float64, error)
}

// Positional is features in the order of the feature names of the model.
type Positional []float64

// Named is features keyed by feature names.
type Named map[string]float64

func (p Positional) arrange(names []string) ([]float64, error) {
	if len(p) < len(names) {
		return nil, fmt.Errorf(
			"%w: %d features given but %d expected; missing %q",
			ErrSchemaMismatch, len(p), len(names), names[len(p)],
		)
	}
	if len(names) < len(p) {
		return nil, fmt.Errorf(
			"%w: %d features given but %d expected; unexpected feature at position %d",
			ErrSchemaMismatch, len(p), len(names), len(names),
		)
	}
	return slices.Clone(p), nil
}

func (n Named) arrange(names []string) ([]float64, error) {
	row := make([]float64, len(names))
	for i, name := range names {
		v, ok := n[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrSchemaMismatch, name)
		}
		row[i] = v
	}
	if len(n) != len(names) {
		keys := make([]string, 0, len(n))
		for k := range n {
			if !slices.Contains(names, k) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		return nil, fmt.Errorf("%w: unexpected %q", ErrSchemaMismatch, keys[0])
	}
	return row, nil
}
