// Package audio turns uploaded audio bytes into mono float32 waveforms at a
// requested sample rate.
package audio

import "time"

// Waveform is a mono signal with samples in [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

func (w Waveform) Empty() bool { return len(w.Samples) == 0 }
