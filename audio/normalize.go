package audio

import (
	"context"
	"errors"
	"fmt"
)

// DecodeError reports a failed normalization: the primary decode error and,
// when the fallback ran or was unavailable, why it did not help.
type DecodeError struct {
	Primary  error
	Fallback error
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Fallback, ErrNoTranscoder):
		return fmt.Sprintf("audio decode failed and ffmpeg is not installed (%v)", e.Primary)
	case errors.Is(e.Fallback, ErrEmptyAudio):
		return "audio decode failed: decoded audio is empty"
	case e.Fallback != nil:
		return fmt.Sprintf("audio decode failed: %v", e.Fallback)
	}
	return fmt.Sprintf("audio decode failed: %v", e.Primary)
}

func (e *DecodeError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

type Normalizer struct {
	transcoder *Transcoder
}

// NewNormalizer accepts a nil transcoder; undecodable input then fails
// without a fallback attempt.
func NewNormalizer(t *Transcoder) *Normalizer {
	return &Normalizer{transcoder: t}
}

func (n *Normalizer) HasTranscoder() bool { return n.transcoder != nil }

// Normalize decodes raw into a mono waveform at rate. When the direct decode
// fails it transcodes with ffmpeg and decodes once more.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, rate int) (Waveform, error) {
	w, primary := Decode(raw, rate)
	if primary == nil {
		return w, nil
	}
	if n.transcoder == nil {
		return Waveform{}, &DecodeError{Primary: primary, Fallback: ErrNoTranscoder}
	}

	wavBytes, err := n.transcoder.ToWAV(ctx, raw, rate)
	if err != nil {
		return Waveform{}, &DecodeError{Primary: primary, Fallback: err}
	}
	w, err = Decode(wavBytes, rate)
	if err != nil {
		return Waveform{}, &DecodeError{Primary: primary, Fallback: err}
	}
	return w, nil
}
