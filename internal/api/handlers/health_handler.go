package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wikitopics/backend/internal/corpus"
	"github.com/wikitopics/backend/internal/storage/sqlite"
)

type HealthHandler struct {
	store  *sqlite.Store
	corpus *corpus.Manager
}

func NewHealthHandler(store *sqlite.Store, corpusManager *corpus.Manager) *HealthHandler {
	return &HealthHandler{store: store, corpus: corpusManager}
}

func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	counts, err := h.store.TableCounts()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":            "healthy",
		"corpus_paragraphs": h.corpus.Size(),
		"tables":            counts,
	})
}
