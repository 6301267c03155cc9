package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	llmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "review",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Duration of LLM evaluation requests",
	}, []string{"model"})

	llmFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "review",
		Subsystem: "llm",
		Name:      "request_failures_total",
		Help:      "Number of failed LLM evaluation requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint so OpenAI-compatible providers
	// (including Gemini's compatibility layer) can be used.
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// OpenAIClient implements Client against a chat-completion API.
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	cfg        OpenAIConfig
	tracer     trace.Tracer
	logger     zerolog.Logger
	closeOnce  sync.Once
}

// NewOpenAIClient builds a client using the provided configuration. The
// client owns a single long-lived HTTP connection pool shared across all
// concurrent evaluations.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	config := openai.DefaultConfig(cfg.APIKey)
	config.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		httpClient: httpClient,
		cfg:        cfg,
		tracer:     otel.Tracer("github.com/expertiza/review-eval-api/pkg/llm"),
		logger:     logger.With().Str("component", "llm_client").Logger(),
	}, nil
}

// Evaluate sends the prompt and returns the raw response text.
func (c *OpenAIClient) Evaluate(parent context.Context, prompt string, temperature float32) (string, error) {
	ctx, span := c.tracer.Start(parent, "llm.evaluate", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	llmDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		llmFailures.WithLabelValues(c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &TransportError{Err: err}
	}

	if len(resp.Choices) == 0 {
		llmFailures.WithLabelValues(c.cfg.Model).Inc()
		span.RecordError(ErrEmptyResponse)
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		llmFailures.WithLabelValues(c.cfg.Model).Inc()
		return "", ErrEmptyResponse
	}

	return content, nil
}

// Close releases idle connections. Safe to call multiple times.
func (c *OpenAIClient) Close() error {
	c.closeOnce.Do(func() {
		c.httpClient.CloseIdleConnections()
		c.logger.Debug().Msg("llm client closed")
	})
	return nil
}
