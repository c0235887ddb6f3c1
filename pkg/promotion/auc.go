package promotion

import (
	"fmt"
	"slices"
)

// AUC returns the area under the ROC curve of scores for binary labels.
//
// It is computed from ranks (Mann-Whitney U). Tied scores share their average rank.
//
// # Returns
//
// - error: ErrDataUnavailable when sizes differ, or labels lack positives or negatives.
func AUC(scores []float64, positive []bool) (float64, error) {
	if len(scores) != len(positive) {
		return 0, fmt.Errorf("%w: %d scores for %d labels", ErrDataUnavailable, len(scores), len(positive))
	}

	nPos := 0
	for _, p := range positive {
		if p {
			nPos++
		}
	}
	nNeg := len(positive) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0, fmt.Errorf("%w: both classes are needed to compute AUC", ErrDataUnavailable)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case scores[a] < scores[b]:
			return -1
		case scores[a] > scores[b]:
			return 1
		default:
			return 0
		}
	})

	rankSum := 0.0
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		// ranks are 1-origin. order[i..j] are tied.
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if positive[order[k]] {
				rankSum += avg
			}
		}
		i = j + 1
	}

	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}
