package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	CacheTTL        time.Duration
	LLMProvider     string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OpenAIBaseURL   string
	LLMModel        string
	LLMTimeout      time.Duration
	LLMMaxTokens    int
	LLMTemperature  float64
	MaxAttempts     int
	RetryDelay      time.Duration
	Workers         int
	QueueSize       int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("REVAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Review Eval API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("eval.max_attempts", 10)
	v.SetDefault("eval.retry_delay", "300ms")
	v.SetDefault("eval.workers", 4)
	v.SetDefault("eval.queue_size", 64)

	cacheTTL, err := time.ParseDuration(v.GetString("cache.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache ttl: %w", err)
	}

	llmTimeout, err := time.ParseDuration(v.GetString("llm.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid llm timeout: %w", err)
	}

	retryDelay, err := time.ParseDuration(v.GetString("eval.retry_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid retry delay: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		JWTSecret:       v.GetString("jwt.secret"),
		CacheTTL:        cacheTTL,
		LLMProvider:     strings.ToLower(v.GetString("llm.provider")),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		OpenAIBaseURL:   v.GetString("openai_base_url"),
		LLMModel:        v.GetString("llm.model"),
		LLMTimeout:      llmTimeout,
		LLMMaxTokens:    v.GetInt("llm.max_tokens"),
		LLMTemperature:  v.GetFloat64("llm.temperature"),
		MaxAttempts:     v.GetInt("eval.max_attempts"),
		RetryDelay:      retryDelay,
		Workers:         v.GetInt("eval.workers"),
		QueueSize:       v.GetInt("eval.queue_size"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("openai api key must be provided")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	return cfg, nil
}
