package orchestrator

import (
	"errors"
	"time"

	"github.com/maastricht-university/edmo-emotion/emotion"
)

var ErrEmptyInput = errors.New("empty audio file")

type Stage string

const (
	StageDecode    Stage = "decode"
	StageInference Stage = "inference"
	StageReconcile Stage = "reconcile"
)

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Observer receives per-stage timings.
type Observer interface {
	ObserveStage(stage Stage, d time.Duration, err error)
}

type FileResult struct {
	Path        string               `json:"path"`
	Predictions []emotion.Prediction `json:"predictions,omitempty"`
	Dominant    emotion.Label        `json:"dominant,omitempty"`
	Error       string               `json:"error,omitempty"`
}
