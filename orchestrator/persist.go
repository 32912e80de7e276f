package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

type PersistBundle struct {
	SessionID   string               `json:"session_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Model       clients.ModelInfo    `json:"model"`
	Results     []FileResult         `json:"results"`
	Summary     []emotion.Prediction `json:"summary,omitempty"`
}

func mkSessionDir(outputsRoot string) (string, string, error) {
	ts := time.Now().Format("20060102-150405")
	sid := "session_" + ts
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Persist writes a CLI run to <outputsRoot>/session_<ts>/predictions.json.
func Persist(outputsRoot string, model clients.ModelInfo, results []FileResult) (sessionID, path string, err error) {
	sid, outDir, err := mkSessionDir(outputsRoot)
	if err != nil {
		return "", "", err
	}

	path = filepath.Join(outDir, "predictions.json")
	bundle := PersistBundle{
		SessionID:   sid,
		GeneratedAt: time.Now(),
		Model:       model,
		Results:     results,
		Summary:     Summary(results),
	}
	if err = writeJSON(path, bundle); err != nil {
		return "", "", err
	}
	return sid, path, nil
}
