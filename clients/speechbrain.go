package clients

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/emotion"
)

const speechBrainRate = 16000

// --- SpeechBrain (file based classify command) ---

// classifyOutput is what the classify command prints: the full probability
// vector plus its own top-1 pick.
type classifyOutput struct {
	Probs []float64 `json:"probs"`
	Score float64   `json:"score"`
	Index int       `json:"index"`
	Label topLabel  `json:"label"`
}

// topLabel accepts "neu" as well as ["neu"].
type topLabel string

func (t *topLabel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = topLabel(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*t = topLabel(list[0])
	}
	return nil
}

// SpeechBrain writes each waveform to a temp WAV file and runs an external
// classify command on it.
type SpeechBrain struct {
	command []string
	dir     string
	tempDir string
	labels  LabelIndex
	info    ModelInfo
	log     *logrus.Entry
}

func NewSpeechBrain(cfg config.Model, device, tempDir string, log *logrus.Entry) (*SpeechBrain, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("speechbrain: empty classify command")
	}
	bin, err := exec.LookPath(cfg.Command[0])
	if err != nil {
		return nil, fmt.Errorf("speechbrain: classify command: %w", err)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join("pretrained_models", path.Base(cfg.ID))
	}

	s := &SpeechBrain{
		command: append([]string{bin}, cfg.Command[1:]...),
		dir:     dir,
		tempDir: tempDir,
		log:     log,
	}

	// The classify command always receives mono 16 kHz WAV.
	rate, err := readSampleRate(filepath.Join(dir, "hyperparams.yaml"))
	switch {
	case err != nil:
		log.WithError(err).Debug("hyperparams unavailable")
	case rate > 0 && rate != speechBrainRate:
		log.WithField("sample_rate", rate).Warn("model declares a different sample rate, input stays at 16 kHz")
	}

	s.labels, err = readLabelEncoder(filepath.Join(dir, "label_encoder.txt"))
	if err != nil {
		// Classify falls back to the command's top-1 label.
		log.WithError(err).Warn("label map unavailable, only top-1 predictions will be returned")
	}

	s.info = ModelInfo{
		ID:         cfg.ID,
		Backend:    config.BackendSpeechBrain,
		Device:     device,
		SampleRate: speechBrainRate,
		Labels:     s.labels.Names(),
	}
	return s, nil
}

func (s *SpeechBrain) Info() ModelInfo { return s.info }

func (s *SpeechBrain) Classify(ctx context.Context, w audio.Waveform) ([]emotion.RawPrediction, error) {
	if w.Empty() {
		return nil, errors.New("audio waveform is empty or invalid")
	}

	f, err := os.CreateTemp(s.tempDir, "emotion-*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp wav: %w", err)
	}
	wavPath := f.Name()
	defer os.Remove(wavPath)

	err = audio.WriteWAV(f, w)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write WAV file: %w", err)
	}

	args := make([]string, len(s.command)-1)
	r := strings.NewReplacer("{wav}", wavPath, "{model}", s.info.ID, "{device}", s.info.Device, "{dir}", s.dir)
	for i, a := range s.command[1:] {
		args[i] = r.Replace(a)
	}
	cmd := exec.CommandContext(ctx, s.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("classify command failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := parseClassifyOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return s.predictions(out), nil
}

// predictions maps the full vector through the label map when it matches,
// otherwise falls back to the top-1 pair.
func (s *SpeechBrain) predictions(out classifyOutput) []emotion.RawPrediction {
	probs := toProbabilities(out.Probs)
	if full := len(s.labels) > 0 && len(probs) == len(s.labels); full {
		preds := make([]emotion.RawPrediction, 0, len(probs))
		for i, p := range probs {
			label, ok := s.labels[i]
			if !ok {
				full = false
				break
			}
			preds = append(preds, emotion.RawPrediction{Label: label, Score: clamp01(p)})
		}
		if full {
			return preds
		}
	}

	label := string(out.Label)
	if label == "" {
		label = s.labels.Label(out.Index)
	}
	score := out.Score
	if score < 0 {
		score = math.Exp(score)
	}
	s.log.WithField("label", label).Debug("using top-1 prediction")
	return []emotion.RawPrediction{{Label: label, Score: clamp01(score)}}
}

// toProbabilities exponentiates log-probabilities.
func toProbabilities(v []float64) []float64 {
	isLog := false
	for _, p := range v {
		if p < 0 {
			isLog = true
			break
		}
	}
	if !isLog {
		return v
	}
	out := make([]float64, len(v))
	for i, p := range v {
		out[i] = math.Exp(p)
	}
	return out
}

// parseClassifyOutput reads the last JSON object line, so the command may
// log freely before it.
func parseClassifyOutput(stdout []byte) (classifyOutput, error) {
	var out classifyOutput
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &out); err != nil {
			return out, fmt.Errorf("classify output decode: %w", err)
		}
		return out, nil
	}
	return out, fmt.Errorf("%w: no JSON in classify output", errBadOutput)
}

// readLabelEncoder parses a CategoricalEncoder dump:
//
//	'neu' => 0
//	'ang' => 1
//	================
//	'starting_index' => 0
func readLabelEncoder(file string) (LabelIndex, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := LabelIndex{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "=") {
			break
		}
		label, idx, ok := strings.Cut(line, "=>")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			continue
		}
		out[i] = strings.Trim(strings.TrimSpace(label), `'"`)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no labels in %s", file)
	}
	return out, nil
}

// readSampleRate looks up the top level sample_rate key. The file is walked
// as a node tree because hyperparams use custom tags (!new:, !ref).
func readSampleRate(file string) (int, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return 0, err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return 0, fmt.Errorf("%s: not a mapping", file)
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == "sample_rate" {
			return strconv.Atoi(m.Content[i+1].Value)
		}
	}
	return 0, fmt.Errorf("%s: no sample_rate", file)
}
