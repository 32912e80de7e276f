package clients

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-emotion/config"
)

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// DetectDevice resolves "auto" by probing nvidia-smi once; explicit choices
// are returned unchanged.
func DetectDevice(ctx context.Context, pref string) string {
	switch pref {
	case DeviceCUDA, DeviceCPU:
		return pref
	}
	bin, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return DeviceCPU
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "-L").Output()
	if err != nil || !strings.Contains(string(out), "GPU") {
		return DeviceCPU
	}
	return DeviceCUDA
}

// Load builds the configured backend. It blocks until model metadata is
// available; callers treat an error as fatal.
func Load(ctx context.Context, cfg *config.Root, device string, log *logrus.Entry) (Classifier, error) {
	h := NewHTTP(cfg.Model.Timeout)
	var (
		c   Classifier
		err error
	)
	switch cfg.Model.Backend {
	case config.BackendWavLM:
		c, err = NewWavLM(ctx, h, cfg.Model, device, cfg.Audio.SampleRate)
	case config.BackendPipeline:
		c, err = NewPipeline(ctx, h, cfg.Model, device, cfg.Audio.SampleRate)
	case config.BackendSpeechBrain:
		c, err = NewSpeechBrain(cfg.Model, device, cfg.Audio.TempDir, log)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Model.Backend)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
