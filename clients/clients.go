package clients

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

type HTTP struct{ c *http.Client }

func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}

// ModelInfo describes the loaded model. It is fixed after startup.
type ModelInfo struct {
	ID         string   `json:"model"`
	Backend    string   `json:"backend"`
	Device     string   `json:"device"`
	SampleRate int      `json:"sampleRate"`
	Labels     []string `json:"labels,omitempty"`
}

// Classifier runs one backend's inference over a normalized waveform.
// Implementations are safe for concurrent use.
type Classifier interface {
	Info() ModelInfo
	Classify(ctx context.Context, w audio.Waveform) ([]emotion.RawPrediction, error)
}

func statusError(kind string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s %s: %s", kind, resp.Status, strings.TrimSpace(string(body)))
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	hi := math.Inf(-1)
	for _, v := range logits {
		hi = math.Max(hi, v)
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
