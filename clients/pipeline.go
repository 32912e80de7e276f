package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

// requested when the model does not publish its label count
const allLabelsTopK = 64

// --- Pipeline (audio-classification inference API) ---
type pipelineParams struct {
	TopK int `json:"top_k"`
}
type pipelineReq struct {
	Inputs     string         `json:"inputs"`
	Parameters pipelineParams `json:"parameters"`
}

// Pipeline delegates to a generic audio-classification endpoint and asks for
// every label's score.
type Pipeline struct {
	http  *HTTP
	url   string
	token string
	topK  int
	info  ModelInfo
}

func NewPipeline(ctx context.Context, h *HTTP, cfg config.Model, device string, defaultRate int) (*Pipeline, error) {
	mc, err := h.ModelConfig(ctx, cfg.HubURL, cfg.ID, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("load %s metadata: %w", cfg.ID, err)
	}
	rate := mc.SamplingRate
	if rate <= 0 {
		rate = defaultRate
	}
	topK := len(mc.ID2Label)
	if topK == 0 {
		topK = allLabelsTopK
	}
	return &Pipeline{
		http:  h,
		url:   strings.TrimRight(cfg.Endpoint, "/") + "/models/" + cfg.ID,
		token: cfg.Token,
		topK:  topK,
		info: ModelInfo{
			ID:         cfg.ID,
			Backend:    config.BackendPipeline,
			Device:     device,
			SampleRate: rate,
			Labels:     mc.ID2Label.Names(),
		},
	}, nil
}

func (p *Pipeline) Info() ModelInfo { return p.info }

func (p *Pipeline) Classify(ctx context.Context, w audio.Waveform) ([]emotion.RawPrediction, error) {
	if w.Empty() {
		return nil, errors.New("audio waveform is empty or invalid")
	}
	wav, err := audio.EncodeWAV(w)
	if err != nil {
		return nil, err
	}
	b, _ := json.Marshal(pipelineReq{
		Inputs:     base64.StdEncoding.EncodeToString(wav),
		Parameters: pipelineParams{TopK: p.topK},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("pipeline", resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodePredictions(body)
}

// decodePredictions accepts both [{label,score}] and [[{label,score}]].
func decodePredictions(body []byte) ([]emotion.RawPrediction, error) {
	var nested [][]emotion.RawPrediction
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("%w: empty prediction list", errBadOutput)
		}
		return nested[0], nil
	}
	var flat []emotion.RawPrediction
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("pipeline decode: %w", err)
	}
	return flat, nil
}
