package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/maastricht-university/edmo-emotion/emotion"
)

// --- Emotion service (/classify, /health) ---
type HealthResp struct {
	Status string `json:"status"`
	ModelInfo
	Transcoder bool `json:"transcoder"`
}

// Classify uploads an audio file to a running service.
func (h *HTTP) Classify(ctx context.Context, url, audioPath string) ([]emotion.Prediction, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/classify", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("classify", resp)
	}

	var out [][]emotion.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("classify decode: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("classify: empty response")
	}
	return out[0], nil
}

func (h *HTTP) Health(ctx context.Context, url string) (*HealthResp, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("health", resp)
	}
	var out HealthResp
	return &out, json.NewDecoder(resp.Body).Decode(&out)
}
