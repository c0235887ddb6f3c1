package promotion_test

import (
	"errors"
	"testing"

	"github.com/opst/mlgate/pkg/promotion"
)

func TestDecide(t *testing.T) {
	for _, c := range []struct {
		name                          string
		challenger, incumbent, margin float64
		want                          promotion.Outcome
	}{
		{name: "beats by more than margin", challenger: 0.91, incumbent: 0.89, margin: 0.01, want: promotion.Promote},
		{name: "beats by less than margin", challenger: 0.895, incumbent: 0.89, margin: 0.01, want: promotion.Keep},
		{name: "beats exactly by margin", challenger: 0.75, incumbent: 0.5, margin: 0.25, want: promotion.Keep},
		{name: "same metric without margin", challenger: 0.8, incumbent: 0.8, margin: 0, want: promotion.Keep},
		{name: "slightly better without margin", challenger: 0.8000001, incumbent: 0.8, margin: 0, want: promotion.Promote},
		{name: "worse", challenger: 0.7, incumbent: 0.8, margin: 0.01, want: promotion.Keep},
	} {
		t.Run(c.name, func(t *testing.T) {
			if got := promotion.Decide(c.challenger, c.incumbent, c.margin); got != c.want {
				t.Errorf("Decide(%v, %v, %v) = %s, want %s", c.challenger, c.incumbent, c.margin, got, c.want)
			}
		})
	}

	t.Run("it is idempotent", func(t *testing.T) {
		for range 3 {
			if got := promotion.Decide(0.895, 0.89, 0.01); got != promotion.Keep {
				t.Fatalf("got %s", got)
			}
		}
	})
}

func TestAUC(t *testing.T) {
	for _, c := range []struct {
		name     string
		scores   []float64
		positive []bool
		want     float64
	}{
		{
			name:   "perfect",
			scores: []float64{0.1, 0.2, 0.8, 0.9}, positive: []bool{false, false, true, true},
			want: 1,
		},
		{
			name:   "inverse",
			scores: []float64{0.9, 0.8, 0.2, 0.1}, positive: []bool{false, false, true, true},
			want: 0,
		},
		{
			name:   "partial",
			scores: []float64{0.1, 0.4, 0.35, 0.8}, positive: []bool{false, false, true, true},
			want: 0.75,
		},
		{
			name:   "ties count half",
			scores: []float64{0.5, 0.5, 0.2, 0.9}, positive: []bool{true, false, false, true},
			want: 0.875,
		},
		{
			name:   "all tied",
			scores: []float64{0.3, 0.3, 0.3, 0.3, 0.3}, positive: []bool{true, false, true, false, false},
			want: 0.5,
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			got, err := promotion.AUC(c.scores, c.positive)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}

	t.Run("when only one class is present, it returns ErrDataUnavailable", func(t *testing.T) {
		if _, err := promotion.AUC([]float64{0.1, 0.2}, []bool{true, true}); !errors.Is(err, promotion.ErrDataUnavailable) {
			t.Errorf("expected ErrDataUnavailable, got %v", err)
		}
	})

	t.Run("when sizes differ, it returns ErrDataUnavailable", func(t *testing.T) {
		if _, err := promotion.AUC([]float64{0.1, 0.2}, []bool{true}); !errors.Is(err, promotion.ErrDataUnavailable) {
			t.Errorf("expected ErrDataUnavailable, got %v", err)
		}
	})
}
