package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/graph"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/pkg/logger"
)

type GraphHandler struct {
	store    *sqlite.Store
	langCode string
}

func NewGraphHandler(store *sqlite.Store, langCode string) *GraphHandler {
	return &GraphHandler{store: store, langCode: langCode}
}

// HandleGraph returns the filtered link graph. Filter knobs come from
// query parameters with the report defaults.
func (h *GraphHandler) HandleGraph(c *fiber.Ctx) error {
	opts := graph.DefaultFilterOptions()
	var err error
	if opts.FreqMin, err = queryInt(c, "freq_min", opts.FreqMin); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if opts.GroupSize, err = queryInt(c, "group_size", opts.GroupSize); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if opts.MaxEdges, err = queryInt(c, "max_edges", opts.MaxEdges); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if raw := c.Query("min_score"); raw != "" {
		opts.MinSimScore, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "min_score must be a number"})
		}
	}

	lang := c.Query("lang", h.langCode)
	edges, err := h.store.GetPageLinks(lang)
	if err != nil {
		logger.Error("Failed to load link graph", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load graph",
		})
	}

	filtered := graph.Filter(edges, opts)

	return c.JSON(fiber.Map{
		"lang_code":   lang,
		"total_edges": len(edges),
		"edges":       filtered,
	})
}

func queryInt(c *fiber.Ctx, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}
