package audioconv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeWAV renders a short sine tone as WAV bytes in the given format.
func makeWAV(t *testing.T, sampleRate, numChans, frames int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input wav: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	data := make([]int, frames*numChans)
	for i := 0; i < frames; i++ {
		v := int(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < numChans; c++ {
			data[i*numChans+c] = v
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode input wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close input wav: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read input wav: %v", err)
	}
	return raw
}

func TestConvertNormalizesWAV(t *testing.T) {
	// 8 kHz stereo in, 16 kHz mono out.
	input := makeWAV(t, 8000, 2, 4000)

	conv := NewConverter(t.TempDir(), discardLogger())
	path, err := conv.Convert(context.Background(), input)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if dec.SampleRate != SampleRate {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("channels = %d, want 1", dec.NumChans)
	}
	if dec.BitDepth != BitDepth {
		t.Errorf("bit depth = %d, want %d", dec.BitDepth, BitDepth)
	}

	// 4000 frames at 8 kHz resample to roughly 8000 frames at 16 kHz.
	if n := len(pb.Data); n < 7500 || n > 8500 {
		t.Errorf("output frames = %d, want about 8000", n)
	}
}

func TestConvertRejectsUnsupportedInput(t *testing.T) {
	conv := NewConverter(t.TempDir(), discardLogger())
	_, err := conv.Convert(context.Background(), bytes.Repeat([]byte("x"), 2048))
	if !errors.Is(err, ErrConversion) {
		t.Errorf("err = %v, want ErrConversion", err)
	}
}

func TestConvertRejectsEmptyInput(t *testing.T) {
	conv := NewConverter(t.TempDir(), discardLogger())
	_, err := conv.Convert(context.Background(), nil)
	if !errors.Is(err, ErrConversion) {
		t.Errorf("err = %v, want ErrConversion", err)
	}
}

func TestConvertLeavesNoFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	conv := NewConverter(dir, discardLogger())
	conv.Convert(context.Background(), bytes.Repeat([]byte("x"), 2048))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("conversion failure left %d files behind", len(entries))
	}
}

func TestLoadWAVRoundTrip(t *testing.T) {
	input := makeWAV(t, 16000, 1, 1600)

	conv := NewConverter(t.TempDir(), discardLogger())
	path, err := conv.Convert(context.Background(), input)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	defer os.Remove(path)

	samples, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV failed: %v", err)
	}
	if len(samples) != 1600 {
		t.Errorf("samples = %d, want 1600", len(samples))
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
