package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/corpus"
	"github.com/wikitopics/backend/pkg/logger"
)

type BitextHandler struct {
	corpus *corpus.Manager
}

func NewBitextHandler(corpusManager *corpus.Manager) *BitextHandler {
	return &BitextHandler{corpus: corpusManager}
}

// HandleBitext returns aligned page pairs for a target language as
// JSON, or as a TSV download when format=tsv.
func (h *BitextHandler) HandleBitext(c *fiber.Ctx) error {
	lang := c.Params("lang")
	if lang == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "lang is required",
		})
	}

	pairs, err := h.corpus.BitextPairs(lang)
	if err != nil {
		logger.Error("Failed to assemble bitext pairs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to assemble bitext",
		})
	}

	if c.Query("format") == "tsv" {
		var buf bytes.Buffer
		if err := corpus.WriteBitextTSV(&buf, pairs); err != nil {
			logger.Error("Failed to write bitext TSV", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to write TSV",
			})
		}
		c.Set(fiber.HeaderContentType, "text/tab-separated-values; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="bitext_`+lang+`.tsv"`)
		return c.Send(buf.Bytes())
	}

	return c.JSON(fiber.Map{
		"lang_code": lang,
		"count":     len(pairs),
		"pairs":     pairs,
	})
}
