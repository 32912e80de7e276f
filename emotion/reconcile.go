package emotion

import (
	"errors"
	"math"
	"sort"
)

var ErrNoEmotion = errors.New("no valid emotion label returned by classifier")

// RawPrediction is a score as produced by the model, under its own label name.
type RawPrediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Prediction struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// Reconcile folds raw predictions into canonical ones. Scores that fold into
// the same label are merged by maximum. Unknown labels are dropped, zero
// scores are omitted and the result is sorted by descending score.
func Reconcile(raw []RawPrediction) ([]Prediction, error) {
	merged := make(map[Label]float64, len(Labels))
	for _, r := range raw {
		l, ok := NormalizeLabel(r.Label)
		if !ok {
			continue
		}
		if s := clamp(r.Score); s > merged[l] {
			merged[l] = s
		}
	}

	out := make([]Prediction, 0, len(merged))
	for l, s := range merged {
		if s > 0 {
			out = append(out, Prediction{Label: l, Score: s})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEmotion
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Label.index() < out[j].Label.index()
	})
	return out, nil
}

// Dominant returns the top prediction, or false for an empty slice.
func Dominant(preds []Prediction) (Prediction, bool) {
	if len(preds) == 0 {
		return Prediction{}, false
	}
	return preds[0], true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
