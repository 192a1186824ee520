package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bubashvabe/relay/internal/conversation"
	"github.com/bubashvabe/relay/internal/guard"
	"github.com/bubashvabe/relay/internal/memory"
	"github.com/bubashvabe/relay/internal/observability/metrics"
	"github.com/bubashvabe/relay/pkg/logging"
)

var tracer = otel.Tracer("bubashvabe.internal.webhook")

// ReplyGenerator produces the reply text for one inbound message.
type ReplyGenerator interface {
	Generate(ctx context.Context, senderID, userText string) conversation.Reply
}

// Handler handles the carrier's messaging webhook: signature check,
// content filter, history, reply generation, TwiML response.
type Handler struct {
	authToken         string
	validateSignature bool
	publicBaseURL     string
	generator         ReplyGenerator
	store             memory.Store
	logger            *logging.Logger
	metrics           *metrics.PipelineMetrics
}

// Config wires the handler's collaborators.
type Config struct {
	// AuthToken is the Twilio shared secret. With ValidateSignature set
	// and no token present the handler fails closed and rejects all
	// requests instead of silently skipping verification.
	AuthToken         string
	ValidateSignature bool
	// PublicBaseURL, when set, pins scheme and host of the signed URL
	// instead of trusting X-Forwarded-Proto/Host, e.g. "https://bot.example.com".
	PublicBaseURL string
	Generator     ReplyGenerator
	Store         memory.Store
	Logger        *logging.Logger
	Metrics       *metrics.PipelineMetrics
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Generator == nil {
		panic("webhook: generator cannot be nil")
	}
	if cfg.Store == nil {
		panic("webhook: store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{
		authToken:         cfg.AuthToken,
		validateSignature: cfg.ValidateSignature,
		publicBaseURL:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		generator:         cfg.Generator,
		store:             cfg.Store,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
	}
}

// WhatsAppWebhook handles POST /whatsapp requests.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "webhook.whatsapp")
	defer span.End()

	if h.validateSignature {
		if h.authToken == "" {
			// Misconfiguration, not a bad request: verification is
			// required but there is no secret to verify against.
			err := errors.New("signature validation enabled without auth token")
			h.logger.Error("webhook misconfigured", "error", err)
			span.RecordError(err)
			h.metrics.ObserveInbound("misconfigured")
			http.Error(w, "Server misconfigured", http.StatusInternalServerError)
			return
		}
		if !ValidateTwilioSignature(r, h.authToken, h.signedURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			h.metrics.ObserveInbound("rejected")
			h.metrics.ObserveAuthRejection()
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	msg := ParseInboundMessage(r)
	body := strings.TrimSpace(msg.Body)
	sender := msg.From

	messageID := msg.MessageSid
	if messageID == "" {
		messageID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("bubashvabe.message_id", messageID),
		attribute.String("bubashvabe.sender", sender),
	)

	if guard.IsSensitive(body) {
		// Short-circuit: no LLM call, and the message stays out of
		// history so the model never sees credential-phishing text.
		h.logger.Warn("sensitive message filtered", "sender", sender, "message_id", messageID)
		h.metrics.ObserveInbound("filtered")
		h.metrics.ObserveFiltered()
		h.metrics.ObserveReply(string(conversation.SourceSafeRefusal), 0)
		h.writeTwiML(w, guard.SafeRefusalReply)
		return
	}

	start := time.Now()
	reply := h.generator.Generate(ctx, sender, body)
	h.metrics.ObserveReply(string(reply.Source), time.Since(start).Seconds())
	span.SetAttributes(attribute.String("bubashvabe.reply_source", string(reply.Source)))

	h.store.Append(sender, memory.RoleUser, body)
	h.store.Append(sender, memory.RoleAssistant, reply.Text)

	h.logger.Info("webhook reply sent",
		"sender", sender,
		"message_id", messageID,
		"source", string(reply.Source),
		"elapsed", time.Since(start).String(),
	)
	h.metrics.ObserveInbound("ok")
	h.writeTwiML(w, reply.Text)
}

// signedURL is the URL Twilio signed: the operator-pinned public base
// when configured, otherwise reconstructed from forwarding headers.
func (h *Handler) signedURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + r.URL.RequestURI()
	}
	return BuildAbsoluteURL(r)
}

// TwiMLTest handles GET /twiml, a browser-viewable markup check.
func (h *Handler) TwiMLTest(w http.ResponseWriter, r *http.Request) {
	h.writeTwiML(w, "test from Bubashvabe")
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) writeTwiML(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderTwiML(text)))
}
