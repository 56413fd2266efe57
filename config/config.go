// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds everything the service needs to run. All values come from
// environment variables; a .env file may be loaded before Load is called.
type Config struct {
	Twilio    TwilioConfig
	OpenAI    OpenAIConfig
	Whisper   WhisperConfig
	Server    ServerConfig
	Assistant AssistantConfig
}

// TwilioConfig contains provider account credentials and phone numbers.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	Number     string
	MyNumber   string
	// PublicURL is the externally reachable base URL of this service,
	// used when initiating outbound calls. Optional.
	PublicURL string
}

// OpenAIConfig contains the generative-text backend settings.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

// WhisperConfig selects the local speech-to-text model.
type WhisperConfig struct {
	Model    string // size selector: tiny, base, small, medium, large
	ModelDir string
}

// ServerConfig contains the webhook server bind address.
type ServerConfig struct {
	Host string
	Port int
}

// AssistantConfig contains the per-turn tuning knobs.
type AssistantConfig struct {
	Voice             string // Twilio <Say> voice
	RecordMaxSeconds  int
	MinRecordingBytes int
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
}

const defaultSystemPrompt = "You are a helpful voice assistant answering a phone call. " +
	"Keep replies short, conversational, and easy to speak out loud."

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			Number:     os.Getenv("TWILIO_NUMBER"),
			MyNumber:   os.Getenv("MY_PHONE_NUMBER"),
			PublicURL:  os.Getenv("PUBLIC_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Model:        getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
			SystemPrompt: getenvDefault("ASSISTANT_SYSTEM_PROMPT", defaultSystemPrompt),
		},
		Whisper: WhisperConfig{
			Model:    getenvDefault("WHISPER_MODEL", "base"),
			ModelDir: getenvDefault("WHISPER_MODEL_DIR", "models"),
		},
		Server: ServerConfig{
			Host: getenvDefault("HOST", "0.0.0.0"),
		},
		Assistant: AssistantConfig{
			Voice: getenvDefault("TTS_VOICE", "alice"),
		},
	}

	var err error
	if cfg.Server.Port, err = getenvInt("PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.Assistant.RecordMaxSeconds, err = getenvInt("RECORD_MAX_SECONDS", 15); err != nil {
		return nil, err
	}
	if cfg.Assistant.MinRecordingBytes, err = getenvInt("MIN_RECORDING_BYTES", 1000); err != nil {
		return nil, err
	}
	if cfg.Assistant.FetchTimeout, err = getenvSeconds("FETCH_TIMEOUT_SECONDS", 15); err != nil {
		return nil, err
	}
	if cfg.Assistant.TranscribeTimeout, err = getenvSeconds("TRANSCRIBE_TIMEOUT_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.Assistant.GenerateTimeout, err = getenvSeconds("GENERATE_TIMEOUT_SECONDS", 30); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for missing or nonsensical values.
func (c *Config) Validate() error {
	if err := c.Twilio.Validate(); err != nil {
		return fmt.Errorf("twilio config: %w", err)
	}
	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Assistant.Validate(); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	return nil
}

func (t *TwilioConfig) Validate() error {
	if t.AccountSID == "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID must be set")
	}
	if t.AuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN must be set")
	}
	return nil
}

func (o *OpenAIConfig) Validate() error {
	if o.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if o.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	return nil
}

func (w *WhisperConfig) Validate() error {
	valid := map[string]bool{
		"tiny": true, "base": true, "small": true, "medium": true, "large": true,
	}
	if !valid[w.Model] {
		return fmt.Errorf("WHISPER_MODEL must be one of tiny/base/small/medium/large, got %q", w.Model)
	}
	if w.ModelDir == "" {
		return fmt.Errorf("model dir cannot be empty")
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func (a *AssistantConfig) Validate() error {
	if a.RecordMaxSeconds < 1 {
		return fmt.Errorf("record max seconds must be at least 1, got %d", a.RecordMaxSeconds)
	}
	if a.MinRecordingBytes < 1 {
		return fmt.Errorf("min recording bytes must be at least 1, got %d", a.MinRecordingBytes)
	}
	if a.FetchTimeout < time.Second {
		return fmt.Errorf("fetch timeout must be at least 1s, got %s", a.FetchTimeout)
	}
	if a.TranscribeTimeout < time.Second {
		return fmt.Errorf("transcribe timeout must be at least 1s, got %s", a.TranscribeTimeout)
	}
	if a.GenerateTimeout < time.Second {
		return fmt.Errorf("generate timeout must be at least 1s, got %s", a.GenerateTimeout)
	}
	return nil
}

// ModelPath returns the path to the ggml model file for the selected size.
func (w *WhisperConfig) ModelPath() string {
	return filepath.Join(w.ModelDir, fmt.Sprintf("ggml-%s.bin", w.Model))
}

// Addr returns the host:port the webhook server listens on.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getenvSeconds(key string, fallback int) (time.Duration, error) {
	n, err := getenvInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
