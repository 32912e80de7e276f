package orchestrator

import (
	"sort"

	"github.com/maastricht-university/edmo-emotion/emotion"
)

func dominantLabel(preds []emotion.Prediction) emotion.Label {
	top, _ := emotion.Dominant(preds)
	return top.Label
}

// Summary averages per-file scores over a run, skipping failed files. Labels
// absent from a file count as zero for it.
func Summary(results []FileResult) []emotion.Prediction {
	sums := map[emotion.Label]float64{}
	n := 0
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		n++
		for _, p := range r.Predictions {
			sums[p.Label] += p.Score
		}
	}
	if n == 0 {
		return nil
	}
	out := make([]emotion.Prediction, 0, len(sums))
	for _, l := range emotion.Labels {
		if s, ok := sums[l]; ok {
			out = append(out, emotion.Prediction{Label: l, Score: s / float64(n)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
