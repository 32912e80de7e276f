package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const DefaultTranscodeTimeout = 20 * time.Second

var ErrNoTranscoder = errors.New("ffmpeg is not installed")

// Transcoder converts arbitrary containers into mono WAV by running ffmpeg.
type Transcoder struct {
	Binary  string
	Timeout time.Duration
	TempDir string
}

// LookupTranscoder resolves binary on PATH. A nil Transcoder together with
// ErrNoTranscoder means the fallback path is unavailable.
func LookupTranscoder(binary string, timeout time.Duration) (*Transcoder, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTranscoder, err)
	}
	if timeout <= 0 {
		timeout = DefaultTranscodeTimeout
	}
	return &Transcoder{Binary: path, Timeout: timeout}, nil
}

// ToWAV writes raw to a temp file, transcodes it to a mono WAV at rate and
// returns the WAV bytes. Both temp files are removed before returning.
func (t *Transcoder) ToWAV(ctx context.Context, raw []byte, rate int) ([]byte, error) {
	src, err := os.CreateTemp(t.TempDir, "emotion-*.input")
	if err != nil {
		return nil, fmt.Errorf("transcode temp file: %w", err)
	}
	srcPath := src.Name()
	wavPath := srcPath + ".wav"
	defer func() {
		os.Remove(srcPath)
		os.Remove(wavPath)
	}()

	_, err = src.Write(raw)
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("transcode temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Binary,
		"-y", "-i", srcPath,
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-f", "wav",
		wavPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffmpeg timed out after %s", t.Timeout)
		}
		return nil, fmt.Errorf("ffmpeg error: %v: %s", err, tail(stderr.String(), 300))
	}
	return os.ReadFile(wavPath)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
