package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/spf13/pflag"
	twilio "github.com/twilio/twilio-go"

	"github.com/mrsingh-rishi/voice-assistant/audioconv"
	"github.com/mrsingh-rishi/voice-assistant/call"
	"github.com/mrsingh-rishi/voice-assistant/config"
	"github.com/mrsingh-rishi/voice-assistant/llm"
	"github.com/mrsingh-rishi/voice-assistant/metrics"
	"github.com/mrsingh-rishi/voice-assistant/recording"
	"github.com/mrsingh-rishi/voice-assistant/server"
	"github.com/mrsingh-rishi/voice-assistant/stt"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil {
		logger.Info("no env file found, using environment variables", slog.String("path", *envFile))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("addr", cfg.Server.Addr()),
		slog.String("whisper_model", cfg.Whisper.Model),
		slog.String("openai_model", cfg.OpenAI.Model),
		slog.Int("min_recording_bytes", cfg.Assistant.MinRecordingBytes),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	transcriber, err := stt.NewTranscriber(cfg.Whisper.ModelPath(), logger)
	if err != nil {
		logger.Error("failed to load whisper model",
			slog.String("path", cfg.Whisper.ModelPath()),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer transcriber.Close()
	logger.Info("whisper model loaded", slog.String("path", cfg.Whisper.ModelPath()))

	generator, err := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.SystemPrompt, logger)
	if err != nil {
		logger.Error("failed to create generation client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fetcher := recording.NewClient(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.Assistant.FetchTimeout,
		logger,
	)
	converter := audioconv.NewConverter("", logger)

	turns, err := call.NewTurn(
		fetcher,
		converter,
		transcriber,
		generator,
		cfg.Assistant.MinRecordingBytes,
		call.Timeouts{
			Fetch:      cfg.Assistant.FetchTimeout,
			Transcribe: cfg.Assistant.TranscribeTimeout,
			Generate:   cfg.Assistant.GenerateTimeout,
		},
		logger,
		appMetrics,
	)
	if err != nil {
		logger.Error("failed to create turn orchestrator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	twilioClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.Twilio.AccountSID,
		Password: cfg.Twilio.AuthToken,
	})

	srv := server.New(cfg, turns, twilioClient, registry, logger, appMetrics)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", slog.String("addr", cfg.Server.Addr()))
		errCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", slog.String("error", err.Error()))
	}

	logger.Info("service stopped")
}
