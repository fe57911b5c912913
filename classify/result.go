package classify

import (
	"github.com/RyanBlaney/sonido-cough/model"
)

// Probability is one label's share of the distribution
type Probability struct {
	Label string  `json:"label" yaml:"label"`
	Score float64 `json:"score" yaml:"score"`
}

// Result is the response to one classification request. Probabilities are always
// listed in model.Labels order.
type Result struct {
	Classification string        `json:"classification" yaml:"classification"`
	Probabilities  []Probability `json:"probabilities" yaml:"probabilities"`
}

func newResult(p model.Prediction) *Result {
	probabilities := make([]Probability, len(model.Labels))
	for i, label := range model.Labels {
		probabilities[i] = Probability{Label: label, Score: p.Probabilities[i]}
	}
	return &Result{
		Classification: p.Label,
		Probabilities:  probabilities,
	}
}

// Score returns the probability of label, or 0 when absent
func (r *Result) Score(label string) float64 {
	for _, p := range r.Probabilities {
		if p.Label == label {
			return p.Score
		}
	}
	return 0
}
