package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bubashvabe/relay/internal/llm"
	"github.com/bubashvabe/relay/internal/memory"
	"github.com/bubashvabe/relay/pkg/logging"
)

var tracer = otel.Tracer("bubashvabe.internal.conversation")

// Config wires the reply generator's collaborators and knobs.
type Config struct {
	// Client is the LLM backend; nil means the backend is unconfigured
	// and every reply falls back to the echo template.
	Client       llm.Client
	Store        memory.Store
	Model        string
	Persona      string
	EchoTemplate string
	MaxTokens    int
	Timeout      time.Duration
	Logger       *logging.Logger
}

// Service produces a reply for one inbound message: persona + history
// snapshot + the new user turn, sent to the backend under a deadline.
type Service struct {
	client       llm.Client
	store        memory.Store
	model        string
	persona      string
	echoTemplate string
	maxTokens    int
	timeout      time.Duration
	logger       *logging.Logger
}

// NewService creates a reply generator. The store is required; the LLM
// client is optional so the service stays observably alive without an
// upstream dependency.
func NewService(cfg Config) *Service {
	if cfg.Store == nil {
		panic("conversation: store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.EchoTemplate == "" {
		cfg.EchoTemplate = "🪲 Бубашвабе получил: %s"
	}
	return &Service{
		client:       cfg.Client,
		store:        cfg.Store,
		model:        cfg.Model,
		persona:      cfg.Persona,
		echoTemplate: cfg.EchoTemplate,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
	}
}

// Generate returns the reply for userText. It never returns an error and
// never returns empty text: upstream failures become canned fallbacks so
// the webhook always has something well-formed to send back.
func (s *Service) Generate(ctx context.Context, senderID, userText string) Reply {
	ctx, span := tracer.Start(ctx, "conversation.generate")
	defer span.End()
	span.SetAttributes(attribute.String("bubashvabe.sender", senderID))

	if s.client == nil {
		span.SetAttributes(attribute.String("bubashvabe.reply_source", string(SourceFallbackEcho)))
		return Reply{Text: fmt.Sprintf(s.echoTemplate, userText), Source: SourceFallbackEcho}
	}

	history := s.store.History(senderID)
	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		if turn.Role != memory.RoleUser && turn.Role != memory.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: memory.RoleUser, Content: userText})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Complete(callCtx, llm.Request{
		Model:     s.model,
		System:    s.persona,
		Messages:  messages,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		// No retry: a resend is cheap for the user, a duplicate
		// completion is a duplicate bill and a duplicate reply.
		span.RecordError(err)
		s.logger.Warn("llm completion failed", "error", err, "sender", senderID, "elapsed", time.Since(start).String())
		return Reply{Text: errorFallbackReply, Source: SourceFallbackError}
	}

	if resp.Text == "" {
		s.logger.Warn("llm returned no extractable text", "sender", senderID, "stop_reason", resp.StopReason)
		return Reply{Text: parseFallbackReply, Source: SourceFallbackParse}
	}

	span.SetAttributes(attribute.String("bubashvabe.reply_source", string(SourceLLM)))
	return Reply{Text: resp.Text, Source: SourceLLM}
}
