package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bubashvabe/relay/internal/api/router"
	appconfig "github.com/bubashvabe/relay/internal/config"
	"github.com/bubashvabe/relay/internal/conversation"
	"github.com/bubashvabe/relay/internal/llm"
	"github.com/bubashvabe/relay/internal/memory"
	"github.com/bubashvabe/relay/internal/observability/metrics"
	"github.com/bubashvabe/relay/internal/webhook"
	"github.com/bubashvabe/relay/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bubashvabe relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"signature_validation", cfg.TwilioValidateSignature,
		"llm_configured", cfg.AnthropicAPIKey != "",
	)

	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL)
		if err != nil {
			logger.Error("failed to create llm client", "error", err)
			os.Exit(1)
		}
		llmClient = client
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, replies fall back to echo mode")
	}

	store := memory.NewInMemoryStore(cfg.MaxHistory)
	generator := conversation.NewService(conversation.Config{
		Client:       llmClient,
		Store:        store,
		Model:        cfg.LLMModel,
		Persona:      cfg.SystemPersona,
		EchoTemplate: cfg.EchoTemplate,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMTimeout,
		Logger:       logger,
	})

	pipelineMetrics := metrics.NewPipelineMetrics(nil)
	webhookHandler := webhook.NewHandler(webhook.Config{
		AuthToken:         cfg.TwilioAuthToken,
		ValidateSignature: cfg.TwilioValidateSignature,
		PublicBaseURL:     cfg.PublicBaseURL,
		Generator:         generator,
		Store:             store,
		Logger:            logger,
		Metrics:           pipelineMetrics,
	})

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
