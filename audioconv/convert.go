// Package audioconv normalizes recorded audio into the fixed format the
// transcription model expects: 16 kHz, mono, 16-bit signed PCM.
//
// Input bytes may be a WAV, MP3, or Ogg Vorbis container; the container is
// sniffed from magic bytes because recording URLs carry no reliable
// extension. Decoding happens fully in memory; the only filesystem side
// effect is the single normalized WAV file handed to the caller, which the
// caller must remove after use.
package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// ErrConversion is returned when the input cannot be decoded or the
// normalized waveform cannot be written.
var ErrConversion = errors.New("audio conversion failed")

const (
	// SampleRate is the fixed output sample rate required by Whisper.
	SampleRate = 16000
	// BitDepth is the fixed output bit depth.
	BitDepth    = 16
	numChannels = 1
)

// Converter turns provider-native recordings into normalized WAV files.
type Converter struct {
	dir    string
	logger *slog.Logger
}

// NewConverter creates a Converter that writes normalized files into dir.
// An empty dir falls back to the system temp directory.
func NewConverter(dir string, logger *slog.Logger) *Converter {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{dir: dir, logger: logger}
}

// Convert decodes data and writes a 16 kHz mono 16-bit PCM WAV file,
// returning its path. The caller owns the file and must remove it.
func (c *Converter) Convert(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrConversion)
	}

	samples, err := decodePCM16k(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversion, err)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("%w: no audio samples decoded", ErrConversion)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("turn-%s.wav", uuid.NewString()))
	if err := writeWAV(path, samples); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: %v", ErrConversion, err)
	}

	c.logger.Debug("converted recording",
		slog.Int("input_bytes", len(data)),
		slog.Int("samples", len(samples)),
		slog.String("path", path),
	)
	return path, nil
}

// LoadWAV reads a WAV file and returns mono float32 samples at 16 kHz,
// downmixing and resampling if the file deviates from the target format.
func LoadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return decodeWAV(data)
}

func decodePCM16k(data []byte) ([]float32, error) {
	switch sniffFormat(data) {
	case "wav":
		return decodeWAV(data)
	case "ogg":
		return decodeOggVorbis(data)
	case "mp3":
		return decodeMP3(data)
	default:
		// Twilio serves MP3 when the recording URL has an .mp3 suffix and
		// raw MP3 frames have no fixed magic, so try MP3 last.
		if samples, err := decodeMP3(data); err == nil {
			return samples, nil
		}
		return nil, fmt.Errorf("unsupported audio container (supported: wav/mp3/ogg-vorbis)")
	}
}

func sniffFormat(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return ""
	}
}

func decodeWAV(data []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch := 1
	sr := 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if ch > 1 {
		x = downmixInterleaved(x, ch)
	}
	if sr != SampleRate {
		x = resampleLinear(x, sr, SampleRate)
	}
	return x, nil
}

func decodeMP3(data []byte) ([]float32, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	x := int16SliceToFloat32(ints)
	// the mp3 decoder always outputs interleaved stereo
	x = downmixInterleaved(x, 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	if sr != SampleRate {
		x = resampleLinear(x, sr, SampleRate)
	}
	return x, nil
}

func decodeOggVorbis(data []byte) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = downmixInterleaved(pcm, format.Channels)
	}
	if format.SampleRate != SampleRate {
		x = resampleLinear(x, format.SampleRate, SampleRate)
	}
	return x, nil
}

func writeWAV(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, SampleRate, BitDepth, numChannels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChannels, SampleRate: SampleRate},
		Data:           float32SliceToInt(samples),
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func float32SliceToInt(data []float32) []int {
	out := make([]int, len(data))
	for i, v := range data {
		out[i] = int(clamp(float64(v), -1.0, 1.0) * 32767)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
