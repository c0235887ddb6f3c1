package artifact

import (
	"errors"
	"fmt"
	"slices"

	"github.com/opst/mlgate/pkg/model"
)

type ForestParams struct {
	NFeatures int    `json:"n_features"`
	Trees     []Tree `json:"trees"`
}

// Tree is a decision tree in array form.
//
// Nodes[0] is the root. A node is a leaf when Left is -1.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	// index of the feature to split on. Ignored for leaves.
	Feature int `json:"feature"`

	// rows whose feature is <= Threshold go to Left, others go to Right.
	Threshold float64 `json:"threshold"`

	Left  int `json:"left"`
	Right int `json:"right"`

	// per-class weights of a leaf, like sample counts.
	Value []float64 `json:"value,omitempty"`
}

const leaf = -1

type forest struct {
	classes []int64
	width   int
	trees   []Tree
}

func newForest(classes []int64, params ForestParams) (model.Predictor, int, error) {
	if params.NFeatures <= 0 {
		return nil, 0, errors.New("forest: n_features should be positive")
	}
	if len(params.Trees) == 0 {
		return nil, 0, errors.New("forest: no trees")
	}

	for ti, tree := range params.Trees {
		if len(tree.Nodes) == 0 {
			return nil, 0, fmt.Errorf("forest: tree %d has no nodes", ti)
		}
		for ni, n := range tree.Nodes {
			if err := validateNode(n, ni, len(tree.Nodes), params.NFeatures, len(classes)); err != nil {
				return nil, 0, fmt.Errorf("forest: tree %d node %d: %w", ti, ni, err)
			}
		}
	}

	return &forest{classes: slices.Clone(classes), width: params.NFeatures, trees: params.Trees}, params.NFeatures, nil
}

func validateNode(n Node, index int, size int, width int, classes int) error {
	if n.Left == leaf {
		if n.Right != leaf {
			return errors.New("leaf has right child")
		}
		if len(n.Value) != classes {
			return fmt.Errorf("leaf has %d values for %d classes", len(n.Value), classes)
		}
		sum := 0.0
		for _, v := range n.Value {
			if v < 0 || notFinite(v) {
				return errors.New("leaf has invalid value")
			}
			sum += v
		}
		if sum <= 0 {
			return errors.New("leaf has no weight")
		}
		return nil
	}

	if n.Feature < 0 || width <= n.Feature {
		return fmt.Errorf("feature %d is out of range", n.Feature)
	}
	if notFinite(n.Threshold) {
		return errors.New("threshold is not finite")
	}
	// children are placed after their parent, so that walking always terminates.
	for _, c := range []int{n.Left, n.Right} {
		if c <= index || size <= c {
			return fmt.Errorf("child %d is out of range", c)
		}
	}
	return nil
}

func (f *forest) Classes() []int64 {
	return slices.Clone(f.classes)
}

func (f *forest) Probabilities(row []float64) ([]float64, error) {
	if len(row) != f.width {
		return nil, fmt.Errorf("forest: %d features given for %d", len(row), f.width)
	}

	probs := make([]float64, len(f.classes))
	for _, tree := range f.trees {
		n := tree.Nodes[0]
		for n.Left != leaf {
			if row[n.Feature] <= n.Threshold {
				n = tree.Nodes[n.Left]
			} else {
				n = tree.Nodes[n.Right]
			}
		}

		sum := 0.0
		for _, v := range n.Value {
			sum += v
		}
		for i, v := range n.Value {
			probs[i] += v / sum
		}
	}

	for i := range probs {
		probs[i] /= float64(len(f.trees))
	}
	return probs, nil
}
