package predict

import (
	"bytes"
	"encoding/json"
	"errors"
)

var ErrFeaturesShape = errors.New("features should be an array of numbers or an object of numbers")

// Features is either positional (JSON array) or named (JSON object).
//
// Exactly one of Positional or Named is non-nil after unmarshalling.
type Features struct {
	Positional []float64
	Named      map[string]float64
}

func (f *Features) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ErrFeaturesShape
	}
	switch b[0] {
	case '[':
		p := []float64{}
		if err := json.Unmarshal(b, &p); err != nil {
			return errors.Join(ErrFeaturesShape, err)
		}
		*f = Features{Positional: p}
	case '{':
		n := map[string]float64{}
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.Join(ErrFeaturesShape, err)
		}
		*f = Features{Named: n}
	default:
		return ErrFeaturesShape
	}
	return nil
}

func (f Features) MarshalJSON() ([]byte, error) {
	if f.Named != nil {
		return json.Marshal(f.Named)
	}
	if f.Positional == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Positional)
}

// Request is the request body of POST /predict.
type Request struct {
	// required.
	Features *Features `json:"features"`

	// when true, the response carries probabilities of each class.
	Probability bool `json:"probability,omitempty"`
}

// Response is the response body of POST /predict.
type Response struct {
	Prediction int64 `json:"prediction"`

	// class label (in decimal) -> probability. Present only when requested.
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}
