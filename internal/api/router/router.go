package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/bubashvabe/relay/internal/http/middleware"
	"github.com/bubashvabe/relay/internal/webhook"
	"github.com/bubashvabe/relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *webhook.Handler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.WebhookHandler.HealthCheck)
	r.Get("/twiml", cfg.WebhookHandler.TwiMLTest)
	r.Post("/whatsapp", cfg.WebhookHandler.WhatsAppWebhook)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
