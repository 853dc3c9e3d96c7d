package embed

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/pkg/circuitbreaker"
	"github.com/wikitopics/backend/pkg/logger"
	"github.com/wikitopics/backend/pkg/retry"
)

// EmbeddingCache is an optional lookaside cache for computed vectors.
// The API's embeddings are deterministic per input text, which is also
// what makes scoring reproducible across runs.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Client turns text into fixed-size multilingual embeddings via the
// OpenAI embeddings API. One model serves every language, so a single
// seed vector can score candidates in any configured language.
type Client struct {
	client      *openai.Client
	model       string
	dim         int
	timeout     time.Duration
	cache       EmbeddingCache
	cacheKey    func(string) string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, dim int, timeout time.Duration) *Client {
	cb := circuitbreaker.New("embeddings", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized",
		zap.String("model", model),
		zap.Int("dim", dim),
	)

	return &Client{
		client:      openai.NewClient(apiKey),
		model:       model,
		dim:         dim,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// WithCache attaches a lookaside cache keyed by keyFn over the input
// text.
func (c *Client) WithCache(cache EmbeddingCache, keyFn func(string) string) *Client {
	c.cache = cache
	c.cacheKey = keyFn
	return c
}

// Encode returns the embedding vector for one text.
func (c *Client) Encode(ctx context.Context, text string) ([]float32, error) {
	if c.cache != nil {
		if vec, ok, err := c.cache.GetEmbedding(ctx, c.cacheKey(text)); err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		} else if ok {
			return vec, nil
		}
	}

	vectors, err := c.encodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetEmbedding(ctx, c.cacheKey(text), vectors[0]); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return vectors[0], nil
}

// EncodeBatch returns one embedding per input text, in input order.
func (c *Client) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const batchSize = 100
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.encodeBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(vectors)))
	return vectors, nil
}

func (c *Client) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vectors [][]float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			req := openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.model),
			}
			if c.dim > 0 {
				req.Dimensions = c.dim
			}

			resp, err := c.client.CreateEmbeddings(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}

			if len(resp.Data) != len(texts) {
				return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts))
			}

			vectors = make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				vectors[i] = vec
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}

// Similarity is the cosine similarity between two vectors.
func (c *Client) Similarity(a, b []float32) float64 {
	return CosineSimilarity(a, b)
}
