// Package stt wraps a local whisper.cpp model behind a file-path
// transcription contract.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mrsingh-rishi/voice-assistant/audioconv"
)

var (
	// ErrFileNotFound is returned when the waveform path does not exist.
	ErrFileNotFound = errors.New("audio file not found")
	// ErrTranscription is returned on any model or decode failure.
	ErrTranscription = errors.New("transcription failed")
)

// Transcriber runs speech-to-text inference over normalized WAV files.
// A Transcriber owns the loaded model and must be closed on shutdown;
// inference itself is synchronous and blocking.
type Transcriber struct {
	model    whisper.Model
	language string
	logger   *slog.Logger
}

// NewTranscriber loads the ggml model at modelPath.
func NewTranscriber(modelPath string, logger *slog.Logger) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	return &Transcriber{model: m, language: "auto", logger: logger}, nil
}

// Close releases the model memory.
func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// TranscribeFile transcribes the 16 kHz mono WAV at path and returns the
// text trimmed of surrounding whitespace. An empty string is a valid
// result meaning no intelligible speech was recognized.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("%w: stat %s: %v", ErrTranscription, path, err)
	}

	samples, err := audioconv.LoadWAV(path)
	if err != nil {
		return "", fmt.Errorf("%w: read waveform: %v", ErrTranscription, err)
	}
	if len(samples) == 0 {
		return "", nil
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: new context: %v", ErrTranscription, err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("%w: set language: %v", ErrTranscription, err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process: %v", ErrTranscription, err)
	}

	var text strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTranscription, ctx.Err())
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: next segment: %v", ErrTranscription, err)
		}
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(strings.TrimSpace(seg.Text))
	}

	out := strings.TrimSpace(text.String())
	t.logger.Debug("transcription complete", slog.Int("chars", len(out)))
	return out, nil
}
