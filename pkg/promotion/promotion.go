// Package promotion decides whether a newly trained model replaces the production one.
package promotion

import (
	"errors"
	"fmt"
)

var (
	// the held-out data set is missing or corrupted.
	ErrDataUnavailable = errors.New("held-out data is unavailable")

	// an artifact to be compared cannot be loaded.
	ErrArtifactLoad = errors.New("artifact cannot be loaded")

	// another promotion has changed the production alias meanwhile.
	ErrPromotionConflict = errors.New("promotion conflicts with another one")
)

type Outcome string

const (
	Promote Outcome = "PROMOTE"
	Keep    Outcome = "KEEP"
)

// Decide compares metrics.
//
// The challenger is promoted only when it beats the incumbent by more than margin.
// Ties keep the incumbent.
func Decide(challenger, incumbent, margin float64) Outcome {
	if challenger > incumbent+margin {
		return Promote
	}
	return Keep
}

type Decision struct {
	Outcome Outcome `json:"outcome"`

	ChallengerVersion string `json:"challenger_version"`

	// empty when there is no production model yet.
	IncumbentVersion string `json:"incumbent_version,omitempty"`

	// metrics are nil on bootstrap.
	ChallengerMetric *float64 `json:"challenger_metric"`
	IncumbentMetric  *float64 `json:"incumbent_metric"`

	Margin float64 `json:"margin"`

	// true when the challenger is promoted because there is no production model yet.
	Bootstrap bool `json:"bootstrap"`
}

func (d Decision) String() string {
	if d.Bootstrap {
		return fmt.Sprintf("%s %s (first production model)", d.Outcome, d.ChallengerVersion)
	}
	return fmt.Sprintf(
		"%s %s (AUC: challenger %.4f vs incumbent %s %.4f, margin %.4f)",
		d.Outcome, d.ChallengerVersion,
		deref(d.ChallengerMetric), d.IncumbentVersion, deref(d.IncumbentMetric), d.Margin,
	)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
