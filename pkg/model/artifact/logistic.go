package artifact

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/opst/mlgate/pkg/model"
)

type MultiClass string

const (
	OneVsRest   MultiClass = "ovr"
	Multinomial MultiClass = "multinomial"
)

type LogisticParams struct {
	// one row per class. For 2 classes, a single row for the positive class is also allowed.
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`

	// how rows of more than 2 classes are combined. Default is OneVsRest.
	MultiClass MultiClass `json:"multi_class,omitempty"`
}

type logistic struct {
	classes []int64
	params  LogisticParams
}

func newLogistic(classes []int64, params LogisticParams) (model.Predictor, int, error) {
	rows := len(params.Coefficients)
	switch {
	case rows == 0:
		return nil, 0, errors.New("logistic: no coefficients")
	case rows == 1 && len(classes) != 2:
		return nil, 0, fmt.Errorf("logistic: 1 coefficient row for %d classes", len(classes))
	case rows != 1 && rows != len(classes):
		return nil, 0, fmt.Errorf("logistic: %d coefficient rows for %d classes", rows, len(classes))
	}
	if len(params.Intercepts) != rows {
		return nil, 0, fmt.Errorf("logistic: %d intercepts for %d coefficient rows", len(params.Intercepts), rows)
	}

	switch params.MultiClass {
	case "":
		params.MultiClass = OneVsRest
	case OneVsRest, Multinomial:
	default:
		return nil, 0, fmt.Errorf("logistic: unknown multi_class %q", params.MultiClass)
	}

	width := len(params.Coefficients[0])
	if width == 0 {
		return nil, 0, errors.New("logistic: no features")
	}
	for i, row := range params.Coefficients {
		if len(row) != width {
			return nil, 0, fmt.Errorf("logistic: coefficient row %d has %d values, not %d", i, len(row), width)
		}
		if slices.ContainsFunc(row, notFinite) || notFinite(params.Intercepts[i]) {
			return nil, 0, fmt.Errorf("logistic: coefficient row %d is not finite", i)
		}
	}

	return &logistic{classes: slices.Clone(classes), params: params}, width, nil
}

func notFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (l *logistic) Classes() []int64 {
	return slices.Clone(l.classes)
}

func (l *logistic) Probabilities(row []float64) ([]float64, error) {
	coef := l.params.Coefficients
	if len(row) != len(coef[0]) {
		return nil, fmt.Errorf("logistic: %d features given for %d", len(row), len(coef[0]))
	}

	z := make([]float64, len(coef))
	for i := range coef {
		z[i] = l.params.Intercepts[i]
		for j, x := range row {
			z[i] += coef[i][j] * x
		}
	}

	if len(coef) == 1 {
		p := sigmoid(z[0])
		return []float64{1 - p, p}, nil
	}

	probs := make([]float64, len(z))
	switch l.params.MultiClass {
	case Multinomial:
		m := slices.Max(z)
		sum := 0.0
		for i := range z {
			probs[i] = math.Exp(z[i] - m)
			sum += probs[i]
		}
		for i := range probs {
			probs[i] /= sum
		}
	default:
		sum := 0.0
		for i := range z {
			probs[i] = sigmoid(z[i])
			sum += probs[i]
		}
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs, nil
}
