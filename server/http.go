// Package server exposes the webhook endpoints the telephony provider
// calls, plus operational endpoints for probes and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/mrsingh-rishi/voice-assistant/call"
	"github.com/mrsingh-rishi/voice-assistant/config"
	"github.com/mrsingh-rishi/voice-assistant/metrics"
	"github.com/mrsingh-rishi/voice-assistant/twiml"
)

const (
	// greeting is spoken at session start. It is fixed, so /voice is
	// byte-idempotent across calls.
	greeting = "Hello! You are connected to the AI assistant. Please speak after the beep."

	turnPath = "/handle_speech"
)

// TurnProcessor runs one call turn and returns the reply to speak.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, recordingURL string) string
}

type callRequest struct {
	To string `json:"to"`
}

type callResponse struct {
	SID     string `json:"sid,omitempty"`
	Message string `json:"message"`
}

// Server is the webhook HTTP server.
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	turns   TurnProcessor
	twilio  *twilio.RestClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds the fiber app and registers all routes. twilioClient may be
// nil, in which case outbound calls are unavailable. gatherer serves the
// /metrics exposition and should be the registry the metrics were
// registered on.
func New(
	cfg *config.Config,
	turns TurnProcessor,
	twilioClient *twilio.RestClient,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		app:     fiber.New(fiber.Config{DisableStartupMessage: true}),
		cfg:     cfg,
		turns:   turns,
		twilio:  twilioClient,
		logger:  logger,
		metrics: m,
	}

	s.app.Use(s.countRequests)
	s.app.Post("/voice", s.handleVoice)
	s.app.Post(turnPath, s.handleTurn)
	s.app.Post("/call", s.handleOutboundCall)
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", metricsHandler(gatherer))

	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Server.Addr())
}

// Shutdown gracefully stops the server, letting in-flight turns finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleVoice starts a session: greet the caller, then record the first
// utterance and direct the callback at the turn handler.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	s.logger.Info("call started")
	return s.respondMarkup(c, greeting)
}

// handleTurn processes one recorded utterance. It blocks until the reply
// is ready; Twilio holds the call open while waiting for the markup.
func (s *Server) handleTurn(c *fiber.Ctx) error {
	recordingURL := c.FormValue("RecordingUrl")

	var reply string
	if recordingURL == "" {
		// Keep the call alive even on a malformed callback.
		s.logger.Warn("turn callback without RecordingUrl")
		reply = call.ReplyCouldNotHear
	} else {
		reply = s.turns.ProcessTurn(c.Context(), recordingURL)
	}

	return s.respondMarkup(c, reply)
}

// respondMarkup speaks text and re-arms recording for the next turn.
func (s *Server) respondMarkup(c *fiber.Ctx, text string) error {
	markup, err := twiml.SpeakAndRecord(
		text,
		s.cfg.Assistant.Voice,
		turnPath,
		s.cfg.Assistant.RecordMaxSeconds,
	)
	if err != nil {
		s.logger.Error("failed to render markup", slog.String("error", err.Error()))
		return fiber.ErrInternalServerError
	}
	c.Type("xml")
	return c.SendString(markup)
}

// handleOutboundCall dials a number and points the call at /voice. Used to
// ring yourself for a live end-to-end test of the assistant.
func (s *Server) handleOutboundCall(c *fiber.Ctx) error {
	if s.twilio == nil || s.cfg.Twilio.PublicURL == "" || s.cfg.Twilio.Number == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "outbound calling requires TWILIO_NUMBER and PUBLIC_URL",
		})
	}

	var req callRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	to := req.To
	if to == "" {
		to = s.cfg.Twilio.MyNumber
	}
	if to == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`to` field is required"})
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.Twilio.Number)
	params.SetUrl(fmt.Sprintf("%s/voice", strings.TrimRight(s.cfg.Twilio.PublicURL, "/")))
	params.SetMethod("POST")

	resp, err := s.twilio.Api.CreateCall(params)
	if err != nil {
		s.logger.Error("failed to create call", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create call"})
	}

	s.logger.Info("outbound call initiated", slog.String("to", to))
	return c.JSON(callResponse{SID: *resp.Sid, Message: "call initiated"})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) countRequests(c *fiber.Ctx) error {
	err := c.Next()
	if s.metrics != nil {
		s.metrics.RecordHTTPRequest(
			c.Method(),
			c.Path(),
			strconv.Itoa(c.Response().StatusCode()),
		)
	}
	return err
}

func metricsHandler(gatherer prometheus.Gatherer) fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
