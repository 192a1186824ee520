package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when an option is unset or invalid.
const (
	DefaultLLMModel     = "claude-3-5-haiku-latest"
	DefaultLLMBaseURL   = "https://api.anthropic.com"
	DefaultLLMMaxTokens = 512
	DefaultLLMTimeout   = 15 * time.Second
	DefaultMaxHistory   = 10
	DefaultEchoTemplate = "🪲 Бубашвабе получил: %s"

	// DefaultPersona is used when SYSTEM_PERSONA is empty.
	DefaultPersona = "Ты — Бубашвабе, дружелюбный WhatsApp-ассистент. Отвечай кратко, по делу и на языке собеседника. Никогда не проси и не пересылай пароли, коды подтверждения или платёжные данные."
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	LLMModel         string
	LLMMaxTokens     int
	LLMTimeout       time.Duration

	SystemPersona string
	EchoTemplate  string

	TwilioAuthToken         string
	TwilioValidateSignature bool

	MaxHistory int
}

// Load reads configuration from environment variables.
// Absent or invalid values resolve to safe defaults; non-positive
// limits are clamped so the pipeline never runs unbounded or zero-sized.
func Load() *Config {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: strings.TrimRight(getEnv("ANTHROPIC_BASE_URL", DefaultLLMBaseURL), "/"),
		LLMModel:         getEnv("LLM_MODEL", DefaultLLMModel),
		LLMMaxTokens:     getEnvAsInt("LLM_MAX_TOKENS", DefaultLLMMaxTokens),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", DefaultLLMTimeout),

		SystemPersona: getEnv("SYSTEM_PERSONA", DefaultPersona),
		EchoTemplate:  getEnv("ECHO_TEMPLATE", DefaultEchoTemplate),

		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", false),

		MaxHistory: getEnvAsInt("MAX_HISTORY", DefaultMaxHistory),
	}

	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = DefaultLLMMaxTokens
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if strings.TrimSpace(cfg.SystemPersona) == "" {
		cfg.SystemPersona = DefaultPersona
	}
	// The template is fed to fmt.Sprintf with the inbound text as the
	// only argument, so anything but exactly one %s produces noise.
	if strings.Count(cfg.EchoTemplate, "%s") != 1 {
		cfg.EchoTemplate = DefaultEchoTemplate
	}

	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
