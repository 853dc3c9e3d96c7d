package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/pkg/logger"
)

// BitextPairs joins each page with its autonym in the given language
// and pairs their corpus texts. Pairs where either side has no corpus
// paragraphs are dropped; the remaining pairs are document-aligned
// bitext.
func (m *Manager) BitextPairs(langCode string) ([]models.BitextPair, error) {
	pairs, err := m.store.GetAutonymPairs(langCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load autonym pairs: %w", err)
	}

	var bitext []models.BitextPair
	for _, pair := range pairs {
		srcText, err := m.store.GetParagraphTextByPageID(pair.PageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load source text: %w", err)
		}
		tgtText, err := m.store.GetParagraphTextByPageID(pair.AutonymPageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load target text: %w", err)
		}
		if srcText == "" || tgtText == "" {
			continue
		}

		pair.SrcText = srcText
		pair.TgtText = tgtText
		bitext = append(bitext, pair)
	}

	logger.Info("Bitext pairs assembled",
		zap.String("lang_code", langCode),
		zap.Int("candidates", len(pairs)),
		zap.Int("pairs", len(bitext)),
		zap.Int("words", BitextWordCount(bitext)),
	)
	return bitext, nil
}

// BitextWordCount totals the word tokens across both sides of every
// pair. Tokenization handles multilingual punctuation, so counts stay
// comparable across languages.
func BitextWordCount(pairs []models.BitextPair) int {
	total := 0
	for _, pair := range pairs {
		total += wordCount(pair.SrcText)
		total += wordCount(pair.TgtText)
	}
	return total
}

func wordCount(text string) int {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return len(strings.Fields(text))
	}

	n := 0
	for _, tok := range doc.Tokens() {
		for _, r := range tok.Text {
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				n++
				break
			}
		}
	}
	return n
}

// WriteBitextTSV writes pairs as tab-separated rows with a header. Tabs
// and newlines inside paragraph text are collapsed to spaces so each
// pair stays on one line.
func WriteBitextTSV(w io.Writer, pairs []models.BitextPair) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write([]string{"page_name", "autonym", "lang_code", "src_text", "tgt_text"}); err != nil {
		return fmt.Errorf("failed to write bitext header: %w", err)
	}
	for _, pair := range pairs {
		record := []string{
			pair.PageName,
			pair.Autonym,
			pair.LangCode,
			flattenText(pair.SrcText),
			flattenText(pair.TgtText),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write bitext row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func flattenText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
