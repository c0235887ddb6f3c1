package models

import (
	"slices"

	"github.com/opst/mlgate/pkg/api/types/rfctime"
)

// Detail describes the model in service.
type Detail struct {
	// REGISTRY, LOCAL_FALLBACK or UNAVAILABLE
	Provenance string `json:"provenance"`

	// version of the artifact. empty when UNAVAILABLE.
	Version string `json:"version,omitempty"`

	FeatureNames []string `json:"feature_names"`

	ResolvedAt rfctime.RFC3339 `json:"resolved_at"`
}

func (d Detail) Equal(o Detail) bool {
	return d.Provenance == o.Provenance &&
		d.Version == o.Version &&
		slices.Equal(d.FeatureNames, o.FeatureNames) &&
		d.ResolvedAt.Equal(o.ResolvedAt)
}
