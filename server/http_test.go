package server

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrsingh-rishi/voice-assistant/config"
	"github.com/mrsingh-rishi/voice-assistant/metrics"
)

type fakeTurns struct {
	reply   string
	lastURL string
	calls   int
}

func (f *fakeTurns) ProcessTurn(_ context.Context, recordingURL string) string {
	f.calls++
	f.lastURL = recordingURL
	return f.reply
}

func newTestServer(t *testing.T, reply string) (*Server, *fakeTurns) {
	t.Helper()

	cfg := &config.Config{
		Twilio:  config.TwilioConfig{AccountSID: "AC123", AuthToken: "secret"},
		OpenAI:  config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
		Whisper: config.WhisperConfig{Model: "base", ModelDir: "models"},
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Assistant: config.AssistantConfig{
			Voice:             "alice",
			RecordMaxSeconds:  15,
			MinRecordingBytes: 1000,
			FetchTimeout:      15 * time.Second,
			TranscribeTimeout: 60 * time.Second,
			GenerateTimeout:   30 * time.Second,
		},
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	turns := &fakeTurns{reply: reply}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(cfg, turns, nil, registry, logger, m), turns
}

func readBody(t *testing.T, body io.Reader) string {
	t.Helper()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}

func TestStartSessionMarkup(t *testing.T) {
	srv, turns := newTestServer(t, "unused")

	req := httptest.NewRequest("POST", "/voice", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "xml") {
		t.Errorf("content type = %q, want xml", ct)
	}

	body := readBody(t, resp.Body)
	if !strings.Contains(body, "You are connected to the AI assistant") {
		t.Errorf("greeting missing from markup: %s", body)
	}
	if !strings.Contains(body, `<Record action="/handle_speech" maxLength="15" playBeep="true" trim="do-not-trim">`) {
		t.Errorf("record instruction missing from markup: %s", body)
	}
	if turns.calls != 0 {
		t.Error("session start must not run a turn")
	}
}

func TestStartSessionIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, "unused")

	first, err := srv.app.Test(httptest.NewRequest("POST", "/voice", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	second, err := srv.app.Test(httptest.NewRequest("POST", "/voice", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if readBody(t, first.Body) != readBody(t, second.Body) {
		t.Error("repeated session starts must produce byte-identical markup")
	}
}

func TestTurnSpeaksReply(t *testing.T) {
	srv, turns := newTestServer(t, "Sure, turning on the lights now.")

	form := strings.NewReader("RecordingUrl=https%3A%2F%2Fapi.twilio.com%2Frec%2FRE1")
	req := httptest.NewRequest("POST", "/handle_speech", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := readBody(t, resp.Body)
	if !strings.Contains(body, "Sure, turning on the lights now.") {
		t.Errorf("reply missing from markup: %s", body)
	}
	if !strings.Contains(body, `action="/handle_speech"`) {
		t.Errorf("markup must re-arm recording: %s", body)
	}
	if turns.lastURL != "https://api.twilio.com/rec/RE1" {
		t.Errorf("recording URL = %q", turns.lastURL)
	}
}

func TestTurnWithoutRecordingURL(t *testing.T) {
	srv, turns := newTestServer(t, "unused")

	req := httptest.NewRequest("POST", "/handle_speech", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 so the call stays alive", resp.StatusCode)
	}

	body := readBody(t, resp.Body)
	if !strings.Contains(body, "hear you properly") {
		t.Errorf("fallback reply missing from markup: %s", body)
	}
	if turns.calls != 0 {
		t.Error("missing RecordingUrl must not run a turn")
	}
}

func TestOutboundCallUnavailableWithoutTwilio(t *testing.T) {
	srv, _ := newTestServer(t, "unused")

	req := httptest.NewRequest("POST", "/call", strings.NewReader(`{"to":"+15551234567"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503 without outbound configuration", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "unused")

	resp, err := srv.app.Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsExposition(t *testing.T) {
	srv, _ := newTestServer(t, "unused")

	// Serve one webhook request so the HTTP counter has a sample.
	if _, err := srv.app.Test(httptest.NewRequest("POST", "/voice", nil)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	resp, err := srv.app.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(body, "assistant_http_requests_total") {
		t.Errorf("exposition missing request counter: %s", body)
	}
}
