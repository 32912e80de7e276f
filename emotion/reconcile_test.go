package emotion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel_Synonyms(t *testing.T) {
	for raw, want := range synonyms {
		got, ok := NormalizeLabel(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalizeLabel_Spelling(t *testing.T) {
	cases := map[string]Label{
		"Ang":         Angry,
		"  Happiness": Happy,
		"SURPRISED\n": Surprise,
		"Contempt":    Disgust,
		"fear-ful":    "",
		"neu_":        Neutral,
	}
	for raw, want := range cases {
		got, ok := NormalizeLabel(raw)
		if want == "" {
			assert.False(t, ok, raw)
			continue
		}
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalizeLabel_Unknown(t *testing.T) {
	for _, raw := range []string{"", "other", "calm", "0", "boredom", "happy sad"} {
		_, ok := NormalizeLabel(raw)
		assert.False(t, ok, raw)
	}
}

func TestReconcile_MaxMerge(t *testing.T) {
	preds, err := Reconcile([]RawPrediction{
		{Label: "Disgust", Score: 0.2},
		{Label: "Contempt", Score: 0.35},
		{Label: "Neutral", Score: 0.3},
		{Label: "dis", Score: 0.1},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, Prediction{Label: Disgust, Score: 0.35}, preds[0])
	assert.Equal(t, Prediction{Label: Neutral, Score: 0.3}, preds[1])
}

func TestReconcile_ClampsAndDropsUnknown(t *testing.T) {
	preds, err := Reconcile([]RawPrediction{
		{Label: "hap", Score: 1.7},
		{Label: "sad", Score: -0.4},
		{Label: "ang", Score: math.NaN()},
		{Label: "xyz", Score: 0.9},
	})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, Happy, preds[0].Label)
	assert.Equal(t, 1.0, preds[0].Score)
}

func TestReconcile_SortedDescending(t *testing.T) {
	preds, err := Reconcile([]RawPrediction{
		{Label: "neu", Score: 0.1},
		{Label: "ang", Score: 0.5},
		{Label: "sad", Score: 0.2},
		{Label: "hap", Score: 0.2},
		{Label: "fear", Score: 0.7},
	})
	require.NoError(t, err)
	require.Len(t, preds, 5)
	for i := 1; i < len(preds); i++ {
		assert.GreaterOrEqual(t, preds[i-1].Score, preds[i].Score)
	}
	// ties keep canonical order
	assert.Equal(t, Happy, preds[2].Label)
	assert.Equal(t, Sad, preds[3].Label)
}

func TestReconcile_AllZero(t *testing.T) {
	_, err := Reconcile([]RawPrediction{{Label: "ang", Score: 0}, {Label: "unknown", Score: 1}})
	assert.ErrorIs(t, err, ErrNoEmotion)

	_, err = Reconcile(nil)
	assert.ErrorIs(t, err, ErrNoEmotion)
}

func TestDominant(t *testing.T) {
	_, ok := Dominant(nil)
	assert.False(t, ok)

	p, ok := Dominant([]Prediction{{Label: Sad, Score: 0.9}, {Label: Fear, Score: 0.1}})
	assert.True(t, ok)
	assert.Equal(t, Sad, p.Label)
}
