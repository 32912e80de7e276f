package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"strings"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

// --- WavLM (KServe v2 /infer) ---
type tensor struct {
	Name     string `json:"name"`
	Shape    []int  `json:"shape"`
	Datatype string `json:"datatype"`
	Data     any    `json:"data"`
}
type inferReq struct {
	Inputs []tensor `json:"inputs"`
}
type inferOutput struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}
type inferResp struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferOutput `json:"outputs"`
}

var errBadOutput = errors.New("unexpected model output")

// WavLM sends (waveform, attention mask) to a KServe v2 model server and
// turns the returned logits into per-label probabilities.
type WavLM struct {
	http   *HTTP
	base   string
	info   ModelInfo
	mean   float64
	std    float64
	labels LabelIndex
}

func NewWavLM(ctx context.Context, h *HTTP, cfg config.Model, device string, defaultRate int) (*WavLM, error) {
	mc, err := h.ModelConfig(ctx, cfg.HubURL, cfg.ID, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("load %s metadata: %w", cfg.ID, err)
	}

	name := cfg.ServingName
	if name == "" {
		name = strings.ToLower(path.Base(cfg.ID))
	}
	m := &WavLM{
		http:   h,
		base:   strings.TrimRight(cfg.Endpoint, "/") + "/v2/models/" + name,
		mean:   0,
		std:    1,
		labels: mc.ID2Label,
	}
	if mc.Mean != nil {
		m.mean = *mc.Mean
	}
	if mc.Std != nil && *mc.Std != 0 {
		m.std = *mc.Std
	}
	rate := mc.SamplingRate
	if rate <= 0 {
		rate = defaultRate
	}
	m.info = ModelInfo{
		ID:         cfg.ID,
		Backend:    config.BackendWavLM,
		Device:     device,
		SampleRate: rate,
		Labels:     mc.ID2Label.Names(),
	}

	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WavLM) Info() ModelInfo { return m.info }

func (m *WavLM) ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.base+"/ready", nil)
	if err != nil {
		return err
	}
	resp, err := m.http.c.Do(req)
	if err != nil {
		return fmt.Errorf("model server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("model server ready", resp)
	}
	return nil
}

func (m *WavLM) Classify(ctx context.Context, w audio.Waveform) ([]emotion.RawPrediction, error) {
	n := len(w.Samples)
	if n == 0 {
		return nil, errors.New("audio waveform is empty or invalid")
	}

	std := m.std
	if math.IsNaN(std) || math.IsInf(std, 0) || std <= 0 {
		std = 1
	}
	values := make([]float32, n)
	mask := make([]int64, n)
	for i, s := range w.Samples {
		values[i] = float32((float64(s) - m.mean) / std)
		mask[i] = 1
	}

	b, err := json.Marshal(inferReq{Inputs: []tensor{
		{Name: "input_values", Shape: []int{1, n}, Datatype: "FP32", Data: values},
		{Name: "attention_mask", Shape: []int{1, n}, Datatype: "INT64", Data: mask},
	}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+"/infer", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("infer", resp)
	}

	var out inferResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("infer decode: %w", err)
	}
	logits, err := extractLogits(out.Outputs)
	if err != nil {
		return nil, err
	}

	probs := softmax(logits)
	preds := make([]emotion.RawPrediction, len(probs))
	for i, p := range probs {
		preds[i] = emotion.RawPrediction{Label: m.labels.Label(i), Score: clamp01(p)}
	}
	return preds, nil
}

// extractLogits picks the "logits" output (or the only one) and returns the
// first row of a [batch, classes] or [classes] tensor.
func extractLogits(outputs []inferOutput) ([]float64, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", errBadOutput)
	}
	o := outputs[0]
	for _, c := range outputs {
		if c.Name == "logits" {
			o = c
			break
		}
	}

	width := len(o.Data)
	if len(o.Shape) > 0 {
		width = o.Shape[len(o.Shape)-1]
	}
	if width <= 0 || len(o.Data) < width {
		return nil, fmt.Errorf("%w: shape %v with %d values", errBadOutput, o.Shape, len(o.Data))
	}
	return o.Data[:width], nil
}
