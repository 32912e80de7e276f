package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/audio/audiotest"
	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/emotion"
	"github.com/maastricht-university/edmo-emotion/logging"
)

type fakeClassifier struct {
	preds []emotion.RawPrediction
	err   error
	seen  []audio.Waveform
}

func (f *fakeClassifier) Info() clients.ModelInfo {
	return clients.ModelInfo{ID: "fake/model", Backend: "fake", Device: "cpu", SampleRate: 16000}
}

func (f *fakeClassifier) Classify(_ context.Context, w audio.Waveform) ([]emotion.RawPrediction, error) {
	f.seen = append(f.seen, w)
	return f.preds, f.err
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []Stage
	failed []Stage
}

func (r *stageRecorder) ObserveStage(s Stage, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
	if err != nil {
		r.failed = append(r.failed, s)
	}
}

func newTestPipeline(c clients.Classifier) *Pipeline {
	return NewPipeline(audio.NewNormalizer(nil), c, logging.Component(logging.Discard(), "test"))
}

func TestRun_Success(t *testing.T) {
	fc := &fakeClassifier{preds: []emotion.RawPrediction{
		{Label: "hap", Score: 0.6},
		{Label: "sad", Score: 0.3},
		{Label: "neu", Score: 0.1},
	}}
	rec := &stageRecorder{}
	p := newTestPipeline(fc).WithObserver(rec)

	preds, err := p.Run(context.Background(), audiotest.ToneWAV(t, 440, 16000, 300*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, emotion.Happy, preds[0].Label)
	assert.Equal(t, emotion.Sad, preds[1].Label)

	require.Len(t, fc.seen, 1)
	assert.Equal(t, 16000, fc.seen[0].SampleRate)
	assert.Len(t, fc.seen[0].Samples, 4800)
	assert.Equal(t, []Stage{StageDecode, StageInference, StageReconcile}, rec.stages)
	assert.Empty(t, rec.failed)
}

func TestRun_EmptyInput(t *testing.T) {
	fc := &fakeClassifier{}
	_, err := newTestPipeline(fc).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, fc.seen)
}

func TestRun_DecodeFailure(t *testing.T) {
	fc := &fakeClassifier{}
	_, err := newTestPipeline(fc).Run(context.Background(), []byte("definitely not audio"))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDecode, se.Stage)
	assert.ErrorIs(t, err, audio.ErrNoTranscoder)
	assert.Contains(t, err.Error(), "audio decode failed")
	assert.Empty(t, fc.seen)
}

func TestRun_InferenceFailure(t *testing.T) {
	boom := errors.New("model server unavailable")
	fc := &fakeClassifier{err: boom}
	_, err := newTestPipeline(fc).Run(context.Background(), audiotest.ToneWAV(t, 440, 16000, 100*time.Millisecond))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageInference, se.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestRun_NoEmotion(t *testing.T) {
	fc := &fakeClassifier{preds: []emotion.RawPrediction{{Label: "angry", Score: 0}, {Label: "other", Score: 0.9}}}
	rec := &stageRecorder{}
	_, err := newTestPipeline(fc).WithObserver(rec).Run(context.Background(), audiotest.ToneWAV(t, 440, 16000, 100*time.Millisecond))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageReconcile, se.Stage)
	assert.ErrorIs(t, err, emotion.ErrNoEmotion)
	assert.Equal(t, []Stage{StageReconcile}, rec.failed)
}

func TestRunFiles_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	require.NoError(t, os.WriteFile(good, audiotest.ToneWAV(t, 220, 16000, 200*time.Millisecond), 0o644))
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	missing := filepath.Join(dir, "missing.wav")

	fc := &fakeClassifier{preds: []emotion.RawPrediction{{Label: "anger", Score: 0.7}, {Label: "neutral", Score: 0.2}}}
	results := newTestPipeline(fc).RunFiles(context.Background(), []string{good, bad, missing})
	require.Len(t, results, 3)

	assert.Empty(t, results[0].Error)
	assert.Equal(t, emotion.Angry, results[0].Dominant)
	assert.Contains(t, results[1].Error, "audio decode failed")
	assert.NotEmpty(t, results[2].Error)
	assert.Empty(t, results[2].Predictions)
}

func TestSummary(t *testing.T) {
	results := []FileResult{
		{Path: "a", Predictions: []emotion.Prediction{{Label: emotion.Happy, Score: 0.8}, {Label: emotion.Sad, Score: 0.2}}},
		{Path: "b", Predictions: []emotion.Prediction{{Label: emotion.Sad, Score: 0.6}}},
		{Path: "c", Error: "boom"},
	}
	sum := Summary(results)
	require.Len(t, sum, 2)
	assert.Equal(t, emotion.Happy, sum[0].Label)
	assert.InDelta(t, 0.4, sum[0].Score, 1e-9)
	assert.Equal(t, emotion.Sad, sum[1].Label)
	assert.InDelta(t, 0.4, sum[1].Score, 1e-9)

	assert.Nil(t, Summary([]FileResult{{Error: "x"}}))
}

func TestPersist(t *testing.T) {
	root := t.TempDir()
	results := []FileResult{{Path: "a.wav", Predictions: []emotion.Prediction{{Label: emotion.Neutral, Score: 0.9}}, Dominant: emotion.Neutral}}
	info := (&fakeClassifier{}).Info()

	sid, path, err := Persist(root, info, results)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sid, "session_"))
	assert.Equal(t, filepath.Join(root, sid, "predictions.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got PersistBundle
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, sid, got.SessionID)
	assert.Equal(t, "fake/model", got.Model.ID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, emotion.Neutral, got.Results[0].Dominant)
	require.Len(t, got.Summary, 1)
}
