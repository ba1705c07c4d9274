package predictor

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

const DefaultTopK = 5

type Prediction struct {
	Index       int     `json:"-"`
	Class       string  `json:"class"`
	ClassID     string  `json:"classId"`
	Localized   string  `json:"class_vi"`
	Confidence  float64 `json:"confidence"`
	Probability float64 `json:"-"`
}

// Ranking is a calibrated score vector sorted by descending confidence.
type Ranking struct {
	predictions []Prediction
}

// Rank pairs each score with its label and sorts by the rounded percentage.
// Ties keep catalogue order.
func Rank(scores []float64, catalogue Catalogue) (*Ranking, error) {
	if len(scores) != len(catalogue) {
		return nil, newError(KindShapeMismatch, fmt.Errorf("got %d scores for %d classes", len(scores), len(catalogue)))
	}

	predictions := make([]Prediction, len(scores))
	for i, p := range scores {
		label := catalogue[i]
		predictions[i] = Prediction{
			Index:       i,
			Class:       label.Name,
			ClassID:     label.ID,
			Localized:   label.LocalizedName(),
			Confidence:  Percent(p),
			Probability: p,
		}
	}

	sort.SliceStable(predictions, func(a, b int) bool {
		return predictions[a].Confidence > predictions[b].Confidence
	})

	return &Ranking{predictions: predictions}, nil
}

func (r *Ranking) Top() Prediction {
	return r.predictions[0]
}

// TopK returns at most k leading predictions.
func (r *Ranking) TopK(k int) []Prediction {
	k = max(0, min(k, len(r.predictions)))
	return slices.Clone(r.predictions[:k])
}

func (r *Ranking) All() []Prediction {
	return slices.Clone(r.predictions)
}

func (r *Ranking) Len() int {
	return len(r.predictions)
}

// Percent converts a probability to a percentage rounded to one decimal.
func Percent(p float64) float64 {
	return round1(p * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
