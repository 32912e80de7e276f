// Package audiotest builds synthetic audio for tests.
package audiotest

import (
	"math"
	"testing"
	"time"

	"github.com/maastricht-university/edmo-emotion/audio"
)

// Tone returns a sine wave at freq Hz with amplitude 0.5.
func Tone(freq float64, rate int, d time.Duration) audio.Waveform {
	n := int(d.Seconds() * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audio.Waveform{Samples: samples, SampleRate: rate}
}

// ToneWAV is Tone encoded as a 16-bit mono WAV file.
func ToneWAV(t testing.TB, freq float64, rate int, d time.Duration) []byte {
	t.Helper()
	b, err := audio.EncodeWAV(Tone(freq, rate, d))
	if err != nil {
		t.Fatalf("encode tone: %v", err)
	}
	return b
}
