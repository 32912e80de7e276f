package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const wavFormatPCM = 1

// WriteWAV encodes w as 16-bit mono PCM.
func WriteWAV(ws io.WriteSeeker, w Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}
	enc := wav.NewEncoder(ws, w.SampleRate, 16, 1, wavFormatPCM)
	if err := enc.Write(intBuffer(w)); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return enc.Close()
}

func WriteWAVFile(path string, w Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, w); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func EncodeWAV(w Waveform) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := WriteWAV(ws, w); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.BytesReader())
}
