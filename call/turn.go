// Package call drives one webhook turn through the adapter chain:
// download the recording, normalize it, transcribe it, generate a reply.
//
// Every adapter failure is absorbed here and converted into a safe spoken
// fallback. The telephony session must always receive valid markup, so a
// turn never produces an error, only a reply string.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrsingh-rishi/voice-assistant/metrics"
)

// Fallback replies spoken when a turn cannot be processed normally.
const (
	ReplyCouldNotHear     = "I couldn't hear you properly. Please try again."
	ReplyDidNotCatch      = "Sorry, I didn't catch that. Could you say it again?"
	ReplyProcessingFailed = "Sorry, something went wrong on my end. Please try again."
)

// state tracks where a turn is in its webhook cycle. Turns only ever move
// forward; short-circuits jump straight to responding.
type state int

const (
	stateAwaitingRecording state = iota
	stateDownloading
	stateConverting
	stateTranscribing
	stateGenerating
	stateResponding
)

func (s state) String() string {
	switch s {
	case stateAwaitingRecording:
		return "awaiting_recording"
	case stateDownloading:
		return "downloading"
	case stateConverting:
		return "converting"
	case stateTranscribing:
		return "transcribing"
	case stateGenerating:
		return "generating"
	case stateResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// Fetcher downloads a recording by its provider URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Converter normalizes raw recording bytes into a 16 kHz mono PCM WAV
// file and returns its path. The caller owns the file.
type Converter interface {
	Convert(ctx context.Context, data []byte) (string, error)
}

// Transcriber converts a normalized waveform file into text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Generator produces reply text for a transcript prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Timeouts bounds the external calls made during a turn. Zero values
// disable the bound for that step.
type Timeouts struct {
	Fetch      time.Duration
	Transcribe time.Duration
	Generate   time.Duration
}

// Turn orchestrates a single webhook cycle. It holds no cross-turn state;
// ProcessTurn may be called concurrently for different call sessions.
type Turn struct {
	fetcher     Fetcher
	converter   Converter
	transcriber Transcriber
	generator   Generator
	minBytes    int
	timeouts    Timeouts
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewTurn wires the adapter chain for turn processing.
func NewTurn(
	fetcher Fetcher,
	converter Converter,
	transcriber Transcriber,
	generator Generator,
	minBytes int,
	timeouts Timeouts,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Turn, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if converter == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if minBytes < 1 {
		minBytes = 1
	}
	return &Turn{
		fetcher:     fetcher,
		converter:   converter,
		transcriber: transcriber,
		generator:   generator,
		minBytes:    minBytes,
		timeouts:    timeouts,
		logger:      logger,
		metrics:     m,
	}, nil
}

// ProcessTurn runs one full turn for the recording at recordingURL and
// returns the text to speak back. It always returns a non-empty reply.
func (t *Turn) ProcessTurn(ctx context.Context, recordingURL string) string {
	start := time.Now()
	turnID := uuid.NewString()
	logger := t.logger.With(slog.String("turn_id", turnID))

	reply := t.run(ctx, logger, recordingURL)

	if t.metrics != nil {
		t.metrics.RecordTurn(time.Since(start).Seconds())
	}
	logger.Info("turn complete",
		slog.String("reply", reply),
		slog.Duration("took", time.Since(start)),
	)
	return reply
}

func (t *Turn) run(ctx context.Context, logger *slog.Logger, recordingURL string) string {
	st := stateAwaitingRecording

	st = t.advance(logger, st, stateDownloading)
	data, err := t.fetch(ctx, recordingURL)
	if err != nil {
		logger.Warn("recording download failed", slog.String("error", err.Error()))
		t.fallback("fetch")
		return ReplyCouldNotHear
	}
	if len(data) < t.minBytes {
		// Crude silence heuristic: a near-empty payload means the caller
		// most likely said nothing before the recording window closed.
		logger.Info("recording below minimum size",
			slog.Int("bytes", len(data)),
			slog.Int("min_bytes", t.minBytes),
		)
		t.fallback("fetch")
		return ReplyCouldNotHear
	}
	logger.Info("recording downloaded", slog.Int("bytes", len(data)))

	st = t.advance(logger, st, stateConverting)
	wavPath, err := t.converter.Convert(ctx, data)
	if err != nil {
		logger.Warn("conversion failed", slog.String("error", err.Error()))
		t.fallback("convert")
		return ReplyProcessingFailed
	}
	defer func() {
		if err := os.Remove(wavPath); err != nil {
			logger.Warn("failed to remove temp waveform", slog.String("path", wavPath))
		}
	}()

	st = t.advance(logger, st, stateTranscribing)
	transcript, err := t.transcribe(ctx, wavPath)
	if err != nil {
		logger.Warn("transcription failed", slog.String("error", err.Error()))
		t.fallback("transcribe")
		return ReplyProcessingFailed
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		logger.Info("empty transcript, skipping generation")
		t.fallback("empty_transcript")
		return ReplyDidNotCatch
	}
	logger.Info("transcript ready", slog.String("text", transcript))

	st = t.advance(logger, st, stateGenerating)
	reply, err := t.generate(ctx, transcript)
	if err != nil {
		logger.Warn("generation failed", slog.String("error", err.Error()))
		t.fallback("generate")
		return ReplyProcessingFailed
	}
	if strings.TrimSpace(reply) == "" {
		logger.Warn("generation returned empty reply")
		t.fallback("generate")
		return ReplyProcessingFailed
	}

	t.advance(logger, st, stateResponding)
	return reply
}

func (t *Turn) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, t.timeouts.Fetch)
	defer cancel()
	return t.fetcher.Fetch(ctx, url)
}

func (t *Turn) transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := withTimeout(ctx, t.timeouts.Transcribe)
	defer cancel()

	start := time.Now()
	text, err := t.transcriber.TranscribeFile(ctx, path)
	if t.metrics != nil && err == nil {
		t.metrics.TranscribeDuration.Observe(time.Since(start).Seconds())
	}
	return text, err
}

func (t *Turn) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, t.timeouts.Generate)
	defer cancel()

	start := time.Now()
	reply, err := t.generator.Generate(ctx, prompt)
	if t.metrics != nil && err == nil {
		t.metrics.GenerateDuration.Observe(time.Since(start).Seconds())
	}
	return reply, err
}

func (t *Turn) advance(logger *slog.Logger, from, to state) state {
	logger.Debug("state transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return to
}

func (t *Turn) fallback(stage string) {
	if t.metrics != nil {
		t.metrics.RecordFallback(stage)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
