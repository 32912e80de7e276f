package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	resampling "github.com/tphakala/go-audio-resampling"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio container")
	ErrEmptyAudio        = errors.New("decoded audio is empty")
)

const (
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

type container int

const (
	containerUnknown container = iota
	containerWAV
	containerMP3
)

func sniff(raw []byte) container {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return containerWAV
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return containerMP3
	// frame sync, layer bits set (ADTS AAC has layer 00)
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0 && raw[1]&0x06 != 0:
		return containerMP3
	}
	return containerUnknown
}

// Decode parses WAV or MP3 bytes into a mono waveform resampled to
// targetRate. Other containers yield ErrUnsupportedFormat.
func Decode(raw []byte, targetRate int) (Waveform, error) {
	if targetRate <= 0 {
		return Waveform{}, fmt.Errorf("invalid target sample rate %d", targetRate)
	}

	var (
		samples []float32
		rate    int
		err     error
	)
	switch sniff(raw) {
	case containerWAV:
		samples, rate, err = decodeWAV(raw)
	case containerMP3:
		samples, rate, err = decodeMP3(raw)
	default:
		return Waveform{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Waveform{}, err
	}
	if len(samples) == 0 {
		return Waveform{}, ErrEmptyAudio
	}

	out, err := resample(samples, rate, targetRate)
	if err != nil {
		return Waveform{}, err
	}
	if len(out) == 0 {
		return Waveform{}, ErrEmptyAudio
	}
	return Waveform{Samples: out, SampleRate: targetRate}, nil
}

func decodeWAV(raw []byte) ([]float32, int, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav decode: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("%w: wav without channels", ErrUnsupportedFormat)
	}

	depth := int(d.BitDepth)
	if depth <= 0 || depth > 32 {
		return nil, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, depth)
	}
	format := d.WavAudioFormat
	if format == wavFormatExtensible {
		sub, err := extensibleSubFormat(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: extensible wav: %v", ErrUnsupportedFormat, err)
		}
		format = sub
	}
	if format != wavFormatPCM && format != wavFormatIEEEFloat {
		return nil, 0, fmt.Errorf("%w: wav format 0x%04x", ErrUnsupportedFormat, format)
	}
	isFloat := format == wavFormatIEEEFloat
	if isFloat && depth != 32 {
		return nil, 0, fmt.Errorf("%w: %d-bit float wav", ErrUnsupportedFormat, depth)
	}
	return downmix(buf.Data, buf.Format.NumChannels, func(v int) float32 {
		switch {
		case isFloat:
			return math.Float32frombits(uint32(int32(v)))
		case depth == 8:
			return float32(v-128) / 128
		default:
			return float32(v) / float32(int64(1)<<(depth-1))
		}
	}), buf.Format.SampleRate, nil
}

// extensibleSubFormat returns the format code held in the first two bytes of
// the SubFormat GUID of a WAVE_FORMAT_EXTENSIBLE fmt chunk.
func extensibleSubFormat(raw []byte) (uint16, error) {
	p := riff.New(bytes.NewReader(raw))
	if err := p.ParseHeaders(); err != nil {
		return 0, err
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			return 0, err
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}
		if ch.Size < 26 {
			return 0, fmt.Errorf("fmt chunk of %d bytes", ch.Size)
		}
		body := make([]byte, 26)
		if _, err := io.ReadFull(ch, body); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint16(body[24:26]), nil
	}
}

func decodeMP3(raw []byte) ([]float32, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode: %w", err)
	}
	// go-mp3 always yields 16-bit little endian stereo
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}
	return downmix(data, 2, func(v int) float32 { return float32(v) / 32768 }), d.SampleRate(), nil
}

func downmix(data []int, channels int, conv func(int) float32) []float32 {
	frames := len(data) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += conv(data[f*channels+c])
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// resample converts samples from one rate to another. The resampler is
// flushed and its zero-padded tail trimmed to the nominal output length.
func resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 {
		return nil, fmt.Errorf("invalid source sample rate %d", from)
	}
	if from == to {
		return samples, nil
	}
	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	res, err := resampling.ResampleMono(in, float64(from), float64(to), resampling.QualityHigh)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	if want := int(math.Round(float64(len(samples)) * float64(to) / float64(from))); len(res) > want {
		res = res[:want]
	}
	out := make([]float32, len(res))
	for i, s := range res {
		out[i] = float32(s)
	}
	return out, nil
}

// intBuffer converts a waveform into 16-bit PCM for the wav encoder.
func intBuffer(w Waveform) *goaudio.IntBuffer {
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * 32767))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}
