package orchestrator

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

// Pipeline runs decode, inference and reconciliation for one clip. It holds
// no per-request state and is shared by all requests.
type Pipeline struct {
	normalizer *audio.Normalizer
	classifier clients.Classifier
	log        *logrus.Entry
	obs        Observer
}

func NewPipeline(n *audio.Normalizer, c clients.Classifier, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{normalizer: n, classifier: c, log: log}
}

func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.obs = o
	return p
}

func (p *Pipeline) Model() clients.ModelInfo { return p.classifier.Info() }

func (p *Pipeline) HasTranscoder() bool { return p.normalizer.HasTranscoder() }

func (p *Pipeline) Run(ctx context.Context, raw []byte) ([]emotion.Prediction, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	w, err := p.normalizer.Normalize(ctx, raw, p.classifier.Info().SampleRate)
	p.observe(StageDecode, start, err)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}

	start = time.Now()
	native, err := p.classifier.Classify(ctx, w)
	p.observe(StageInference, start, err)
	if err != nil {
		return nil, &StageError{Stage: StageInference, Err: err}
	}

	start = time.Now()
	preds, err := emotion.Reconcile(native)
	p.observe(StageReconcile, start, err)
	if err != nil {
		return nil, &StageError{Stage: StageReconcile, Err: err}
	}

	if top, ok := emotion.Dominant(preds); ok {
		p.log.WithFields(logrus.Fields{
			"duration": w.Duration().String(),
			"dominant": top.Label,
			"score":    top.Score,
		}).Debug("classified clip")
	}
	return preds, nil
}

// RunFiles classifies files one after another. A failing file is reported
// in its result and does not stop the run.
func (p *Pipeline) RunFiles(ctx context.Context, paths []string) []FileResult {
	out := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		res := FileResult{Path: path}
		raw, err := os.ReadFile(path)
		if err == nil {
			res.Predictions, err = p.Run(ctx, raw)
		}
		if err != nil {
			res.Error = err.Error()
			p.log.WithError(err).WithField("path", path).Warn("classification failed")
		} else {
			res.Dominant = dominantLabel(res.Predictions)
		}
		out = append(out, res)
	}
	return out
}

func (p *Pipeline) observe(stage Stage, start time.Time, err error) {
	if p.obs != nil {
		p.obs.ObserveStage(stage, time.Since(start), err)
	}
}
