package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/pkg/logger"
)

type PagesHandler struct {
	store *sqlite.Store
}

func NewPagesHandler(store *sqlite.Store) *PagesHandler {
	return &PagesHandler{store: store}
}

// HandleListPages returns crawled pages, optionally filtered by
// language and minimum similarity score.
func (h *PagesHandler) HandleListPages(c *fiber.Ctx) error {
	minScore := 0.0
	if raw := c.Query("min_score"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "min_score must be a number",
			})
		}
		minScore = parsed
	}

	lang := c.Query("lang")

	pages, err := h.listPages(minScore, lang)
	if err != nil {
		logger.Error("Failed to list pages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list pages",
		})
	}

	return c.JSON(fiber.Map{
		"count": len(pages),
		"pages": pages,
	})
}

func (h *PagesHandler) listPages(minScore float64, lang string) ([]models.Page, error) {
	if lang == "" {
		return h.store.GetPagesAnyLang(minScore)
	}
	return h.store.GetPages(minScore, lang)
}

// HandleStats reports row counts per table.
func (h *PagesHandler) HandleStats(c *fiber.Ctx) error {
	counts, err := h.store.TableCounts()
	if err != nil {
		logger.Error("Failed to load table counts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	return c.JSON(fiber.Map{
		"tables": counts,
	})
}
