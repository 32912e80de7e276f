package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// --- Model hub (config.json) ---
type ModelConfig struct {
	SamplingRate int        `json:"sampling_rate"`
	Mean         *float64   `json:"mean"`
	Std          *float64   `json:"std"`
	ID2Label     LabelIndex `json:"id2label"`
}

// LabelIndex maps output indices to native labels. It accepts both the
// {"0": "Angry"} and the ["Angry", ...] forms of id2label.
type LabelIndex map[int]string

func (l *LabelIndex) UnmarshalJSON(b []byte) error {
	out := LabelIndex{}
	var dict map[string]any
	if err := json.Unmarshal(b, &dict); err == nil {
		for k, v := range dict {
			i, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				continue
			}
			out[i] = fmt.Sprint(v)
		}
		*l = out
		return nil
	}
	var list []any
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("id2label: %w", err)
	}
	for i, v := range list {
		out[i] = fmt.Sprint(v)
	}
	*l = out
	return nil
}

// Names lists labels in index order.
func (l LabelIndex) Names() []string {
	idx := make([]int, 0, len(l))
	for i := range l {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	names := make([]string, len(idx))
	for n, i := range idx {
		names[n] = l[i]
	}
	return names
}

// Label returns the native label at i, or the decimal index when unknown.
func (l LabelIndex) Label(i int) string {
	if s, ok := l[i]; ok {
		return s
	}
	return strconv.Itoa(i)
}

func (h *HTTP) ModelConfig(ctx context.Context, hubURL, modelID, token string) (*ModelConfig, error) {
	url := strings.TrimRight(hubURL, "/") + "/" + modelID + "/resolve/main/config.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("model config", resp)
	}

	var out ModelConfig
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("model config decode: %w", err)
	}
	return &out, nil
}
