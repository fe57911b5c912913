package model

import (
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-cough/features"
)

// Labels is the fixed output order of every probability distribution
var Labels = [NumLabels]string{"covid", "healthy", "symptomatic"}

// NumLabels is the number of health-status categories
const NumLabels = 3

const leafNode = -1

// Tree is one decision tree in scikit-learn's flattened layout. Node 0 is the root;
// leaves have both children set to -1.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left" msgpack:"children_left"`
	ChildrenRight []int       `json:"children_right" msgpack:"children_right"`
	Feature       []int       `json:"feature" msgpack:"feature"`
	Threshold     []float64   `json:"threshold" msgpack:"threshold"`
	Value         [][]float64 `json:"value" msgpack:"value"` // per node class weights, in Forest.Classes order
}

// Forest is a random forest classifier
type Forest struct {
	NFeatures int      `json:"n_features" msgpack:"n_features"`
	Classes   []string `json:"classes" msgpack:"classes"`
	Trees     []Tree   `json:"trees" msgpack:"trees"`

	// order[i] is the position of Labels[i] in Classes
	order [NumLabels]int
}

// Prediction is a distribution over Labels plus its argmax
type Prediction struct {
	Probabilities [NumLabels]float64
	Index         int
	Label         string
}

// LoadForest reads a forest from a .json or .msgpack file
func LoadForest(path string) (*Forest, error) {
	var f Forest
	if err := decodeFile(path, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Save writes the forest, encoding chosen by extension
func (f *Forest) Save(path string) error {
	return encodeFile(path, f)
}

// Validate checks the forest shape and resolves the class order. It must be called
// before Predict; LoadForest does so.
func (f *Forest) Validate() error {
	if f.NFeatures != features.Size {
		return fmt.Errorf("forest expects %d features, vector has %d: %w", f.NFeatures, features.Size, ErrInvalidArtifact)
	}
	if len(f.Classes) != NumLabels {
		return fmt.Errorf("forest has %d classes, expected %d: %w", len(f.Classes), NumLabels, ErrInvalidArtifact)
	}
	for i, label := range Labels {
		idx := slices.Index(f.Classes, label)
		if idx < 0 {
			return fmt.Errorf("forest classes %v do not include %q: %w", f.Classes, label, ErrInvalidArtifact)
		}
		f.order[i] = idx
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees: %w", ErrInvalidArtifact)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(f.NFeatures, len(f.Classes)); err != nil {
			return fmt.Errorf("tree %d: %v: %w", i, err, ErrInvalidArtifact)
		}
	}
	return nil
}

func (t *Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}

	for node := range n {
		left, right := t.ChildrenLeft[node], t.ChildrenRight[node]
		if left == leafNode || right == leafNode {
			if left != right {
				return fmt.Errorf("node %d has a single child", node)
			}
			if len(t.Value[node]) != nClasses {
				return fmt.Errorf("leaf %d has %d class weights, expected %d", node, len(t.Value[node]), nClasses)
			}
			for _, w := range t.Value[node] {
				if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
					return fmt.Errorf("leaf %d has invalid weight %v", node, w)
				}
			}
			continue
		}
		// children always follow their parent, which also rules out cycles
		if left <= node || left >= n || right <= node || right >= n {
			return fmt.Errorf("node %d has children out of range (%d, %d)", node, left, right)
		}
		if f := t.Feature[node]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", node, f)
		}
		if math.IsNaN(t.Threshold[node]) {
			return fmt.Errorf("node %d has NaN threshold", node)
		}
	}
	return nil
}

// leaf walks the tree. Inputs are compared in single precision, as the trees were
// fitted on float32 features.
func (t *Tree) leaf(x *features.Vector) int {
	node := 0
	for t.ChildrenLeft[node] != leafNode {
		if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}

// PredictProba averages the normalised leaf distributions of all trees and returns
// them in Labels order
func (f *Forest) PredictProba(x features.Vector) [NumLabels]float64 {
	sums := make([]float64, len(f.Classes))

	for i := range f.Trees {
		value := f.Trees[i].Value[f.Trees[i].leaf(&x)]
		total := 0.0
		for _, w := range value {
			total += w
		}
		if total == 0 {
			total = 1
		}
		for c, w := range value {
			sums[c] += w / total
		}
	}

	var proba [NumLabels]float64
	n := float64(len(f.Trees))
	for i, idx := range f.order {
		proba[i] = sums[idx] / n
	}
	return proba
}

// Predict returns the distribution and its argmax; ties go to the lowest label index
func (f *Forest) Predict(x features.Vector) Prediction {
	proba := f.PredictProba(x)

	best := 0
	for i := 1; i < NumLabels; i++ {
		if proba[i] > proba[best] {
			best = i
		}
	}

	return Prediction{
		Probabilities: proba,
		Index:         best,
		Label:         Labels[best],
	}
}

// Info summarises the forest for health reporting
func (f *Forest) Info() map[string]any {
	nodes := 0
	for _, t := range f.Trees {
		nodes += len(t.ChildrenLeft)
	}
	return map[string]any{
		"trees":      len(f.Trees),
		"nodes":      nodes,
		"n_features": f.NFeatures,
		"classes":    f.Classes,
	}
}
