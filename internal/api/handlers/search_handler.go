package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/cache/redis"
	"github.com/wikitopics/backend/internal/corpus"
	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/pkg/logger"
)

const (
	defaultTopK    = 10
	searchCacheTTL = 10 * time.Minute
)

type SearchHandler struct {
	corpus *corpus.Manager
	cache  *redis.Client
}

// NewSearchHandler serves similarity search over the loaded corpus.
// cache may be nil; results are then computed on every request.
func NewSearchHandler(corpusManager *corpus.Manager, cache *redis.Client) *SearchHandler {
	return &SearchHandler{
		corpus: corpusManager,
		cache:  cache,
	}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	if h.cache != nil {
		var cached []corpus.SearchResult
		found, err := h.cache.GetSearchResult(c.Context(), redis.TextKey(req.Query), &cached)
		if err != nil {
			logger.Warn("Search cache lookup failed", zap.Error(err))
		}
		if found && len(cached) >= req.TopK {
			metrics.SearchRequests.WithLabelValues("cache_hit").Inc()
			return c.JSON(fiber.Map{
				"query":   req.Query,
				"results": cached[:req.TopK],
			})
		}
	}

	results, err := h.corpus.SimilaritySearch(c.Context(), req.Query, req.TopK)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		logger.Error("Similarity search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()

	if h.cache != nil {
		if err := h.cache.SetSearchResult(c.Context(), redis.TextKey(req.Query), results, searchCacheTTL); err != nil {
			logger.Warn("Search cache store failed", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"results": results,
	})
}

func (h *SearchHandler) HandlePageSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	pages, err := h.corpus.SimilarityByPages(c.Context(), query)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		logger.Error("Page search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()

	return c.JSON(fiber.Map{
		"query": query,
		"pages": pages,
	})
}
