package model_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opst/mlgate/pkg/cmp"
	"github.com/opst/mlgate/pkg/model"
	"github.com/opst/mlgate/pkg/utils/try"
)

// predicts class 1 when the first feature is positive.
type signPredictor struct {
	got [][]float64
}

func (s *signPredictor) Classes() []int64 { return []int64{0, 1} }

func (s *signPredictor) Probabilities(row []float64) ([]float64, error) {
	s.got = append(s.got, row)
	if 0 < row[0] {
		return []float64{0.2, 0.8}, nil
	}
	return []float64{0.9, 0.1}, nil
}

type funcPredictor func(row []float64) ([]float64, error)

func (funcPredictor) Classes() []int64 { return []int64{0, 1} }

func (f funcPredictor) Probabilities(row []float64) ([]float64, error) {
	return f(row)
}

func TestProvenance(t *testing.T) {
	for p, want := range map[model.Provenance]string{
		model.ProvenanceRegistry:      "REGISTRY",
		model.ProvenanceLocalFallback: "LOCAL_FALLBACK",
		model.ProvenanceUnavailable:   "UNAVAILABLE",
	} {
		if got := string(try.To(p.MarshalText()).OrFatal(t)); got != want {
			t.Errorf("%d: got %s, want %s", p, got, want)
		}
	}
}

func TestHandle_Predict(t *testing.T) {
	names := []string{"f1", "f2", "f3", "f4"}
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	t.Run("when the handle is unavailable, it returns ErrServiceUnavailable", func(t *testing.T) {
		testee := model.Unavailable(now)
		if testee.Loaded() {
			t.Error("should not be loaded")
		}
		_, err := testee.Predict(model.Positional{1, 2, 3, 4}, false)
		if !errors.Is(err, model.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("when positional features fit, it returns a label", func(t *testing.T) {
		p := &signPredictor{}
		testee := model.NewHandle(p, names, model.ProvenanceRegistry, "3", now)

		got := try.To(testee.Predict(model.Positional{1, 2, 3, 4}, false)).OrFatal(t)
		if got.Label != 1 || got.Probabilities != nil {
			t.Errorf("unexpected prediction: %+v", got)
		}

		got = try.To(testee.Predict(model.Positional{-1, 2, 3, 4}, true)).OrFatal(t)
		want := []model.ClassProbability{{Class: 0, Probability: 0.9}, {Class: 1, Probability: 0.1}}
		if got.Label != 0 || !cmp.SliceEq(got.Probabilities, want) {
			t.Errorf("unexpected prediction: %+v", got)
		}
	})

	t.Run("when named features are given, they are reordered by feature names", func(t *testing.T) {
		p := &signPredictor{}
		testee := model.NewHandle(p, names, model.ProvenanceLocalFallback, "sha256:x", now)

		try.To(testee.Predict(model.Named{"f4": 4, "f2": 2, "f1": 1, "f3": 3}, false)).OrFatal(t)
		if len(p.got) != 1 || !cmp.SliceEq(p.got[0], []float64{1, 2, 3, 4}) {
			t.Errorf("unexpected row: %v", p.got)
		}
	})

	type When struct {
		features model.Features
	}
	type Then struct {
		mentions string
	}
	mismatch := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			testee := model.NewHandle(&signPredictor{}, names, model.ProvenanceRegistry, "1", now)
			_, err := testee.Predict(when.features, false)
			if !errors.Is(err, model.ErrSchemaMismatch) {
				t.Fatalf("expected ErrSchemaMismatch, got %v", err)
			}
			if !strings.Contains(err.Error(), then.mentions) {
				t.Errorf("error should mention %s: %v", then.mentions, err)
			}
		}
	}

	t.Run("too few positional features", mismatch(
		When{features: model.Positional{1, 2, 3}},
		Then{mentions: `"f4"`},
	))
	t.Run("too many positional features", mismatch(
		When{features: model.Positional{1, 2, 3, 4, 5}},
		Then{mentions: "position 4"},
	))
	t.Run("no features", mismatch(
		When{features: model.Positional{}},
		Then{mentions: `"f1"`},
	))
	t.Run("missing named feature", mismatch(
		When{features: model.Named{"f1": 1, "f2": 2, "f4": 4}},
		Then{mentions: `"f3"`},
	))
	t.Run("unknown named feature", mismatch(
		When{features: model.Named{"f1": 1, "f2": 2, "f3": 3, "f4": 4, "zz": 0, "f5": 5}},
		Then{mentions: `"f5"`},
	))

	t.Run("when an input is not finite, it returns ErrPrediction", func(t *testing.T) {
		testee := model.NewHandle(&signPredictor{}, names, model.ProvenanceRegistry, "1", now)
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			if _, err := testee.Predict(model.Positional{1, v, 3, 4}, false); !errors.Is(err, model.ErrPrediction) {
				t.Errorf("%v: expected ErrPrediction, got %v", v, err)
			}
		}
	})

	t.Run("when the predictor fails, it returns ErrPrediction wrapping the cause", func(t *testing.T) {
		cause := errors.New("fake")
		testee := model.NewHandle(
			funcPredictor(func([]float64) ([]float64, error) { return nil, cause }),
			names, model.ProvenanceRegistry, "1", now,
		)
		_, err := testee.Predict(model.Positional{1, 2, 3, 4}, false)
		if !errors.Is(err, model.ErrPrediction) || !errors.Is(err, cause) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("when the predictor panics, it returns ErrPrediction", func(t *testing.T) {
		testee := model.NewHandle(
			funcPredictor(func(row []float64) ([]float64, error) { _ = row[10]; return nil, nil }),
			names, model.ProvenanceRegistry, "1", now,
		)
		if _, err := testee.Predict(model.Positional{1, 2, 3, 4}, false); !errors.Is(err, model.ErrPrediction) {
			t.Errorf("expected ErrPrediction, got %v", err)
		}
	})

	t.Run("when the predictor returns wrong number of probabilities, it returns ErrPrediction", func(t *testing.T) {
		testee := model.NewHandle(
			funcPredictor(func([]float64) ([]float64, error) { return []float64{1}, nil }),
			names, model.ProvenanceRegistry, "1", now,
		)
		if _, err := testee.Predict(model.Positional{1, 2, 3, 4}, false); !errors.Is(err, model.ErrPrediction) {
			t.Errorf("expected ErrPrediction, got %v", err)
		}
	})
}

func TestHandle(t *testing.T) {
	now := time.Now()
	names := []string{"a", "b"}
	testee := model.NewHandle(&signPredictor{}, names, model.ProvenanceRegistry, "7", now)

	names[0] = "changed"
	got := testee.FeatureNames()
	got[1] = "changed"
	if !cmp.SliceEq(testee.FeatureNames(), []string{"a", "b"}) {
		t.Errorf("handle is mutated: %v", testee.FeatureNames())
	}

	if !testee.Same(model.NewHandle(&signPredictor{}, nil, model.ProvenanceRegistry, "7", now.Add(time.Hour))) {
		t.Error("same provenance and version should be Same")
	}
	if testee.Same(model.NewHandle(&signPredictor{}, nil, model.ProvenanceLocalFallback, "7", now)) {
		t.Error("different provenance should not be Same")
	}
	if testee.Same(model.Unavailable(now)) {
		t.Error("unavailable should not be Same")
	}
}
