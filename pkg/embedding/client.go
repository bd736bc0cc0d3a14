// Package embedding provides clients that turn text into vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/metrics"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ErrEmptyEmbedding is returned when the provider answers without a vector.
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// NewClient creates an embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "hashing", "":
		return NewHashingClient(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

type openAICompatibleClient struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	limiter    *rate.Limiter
}

// NewOpenAIClient calls any OpenAI-compatible /embeddings endpoint.
// RequestsPerSecond <= 0 disables client-side rate limiting.
func NewOpenAIClient(cfg config.EmbeddingConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &openAICompatibleClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		limiter:    limiter,
	}
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, req)
	model := string(c.model)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "error").Inc()
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, model: %s, error: %v", model, err)
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "error").Inc()
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, ErrEmptyEmbedding
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues("openai", model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("openai", model).Observe(time.Since(start).Seconds())
	log.Debugf("[EmbeddingClient] 成功获取向量, 维度: %d", len(resp.Data[0].Embedding))
	return resp.Data[0].Embedding, nil
}

func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding api error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("failed to call embedding api: %w", err)
}
