package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/embed"
	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
	"github.com/wikitopics/backend/pkg/logger"
)

const (
	minParagraphWords = 5
	minAlphaRatio     = 0.75
)

// PageFetcher is the subset of the wiki client the corpus needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, name, langCode string) (*wiki.Page, error)
}

// Encoder embeds paragraphs and queries.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult is one corpus paragraph ranked against a query.
type SearchResult struct {
	Paragraph models.ParagraphRow `json:"paragraph"`
	Score     float64             `json:"score"`
}

// PageResult aggregates paragraph scores for one page.
type PageResult struct {
	PageID     int64   `json:"page_id"`
	PageName   string  `json:"page_name"`
	LangCode   string  `json:"lang_code"`
	MeanScore  float64 `json:"mean_score"`
	Paragraphs int     `json:"paragraphs"`
}

// Manager builds and queries the paragraph corpus. The in-memory
// embedding matrix and the metadata rows are loaded from the same
// table with the same ordering; row i of one always describes row i of
// the other.
type Manager struct {
	store        *sqlite.Store
	fetcher      PageFetcher
	encoder      Encoder
	langCodes    []string
	simThreshold float64

	rows   []models.ParagraphRow
	matrix [][]float32
}

func NewManager(store *sqlite.Store, fetcher PageFetcher, encoder Encoder, langCodes []string, simThreshold float64) *Manager {
	return &Manager{
		store:        store,
		fetcher:      fetcher,
		encoder:      encoder,
		langCodes:    langCodes,
		simThreshold: simThreshold,
	}
}

// Build re-fetches every on-topic page not yet in the corpus, quality
// filters its paragraphs, embeds the survivors and persists them.
// Pages already in the corpus are skipped wholesale, so repeated builds
// only embed what is new.
func (m *Manager) Build(ctx context.Context) error {
	corpusPageIDs, err := m.store.GetCorpusPageIDs()
	if err != nil {
		return fmt.Errorf("failed to load corpus page ids: %w", err)
	}

	var pages []models.Page
	for _, lang := range m.langCodes {
		langPages, err := m.store.GetPages(m.simThreshold, lang)
		if err != nil {
			return fmt.Errorf("failed to load pages for %s: %w", lang, err)
		}
		pages = append(pages, langPages...)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages above sim threshold %.2f, crawl first", m.simThreshold)
	}

	built := 0
	for _, page := range pages {
		if _, ok := corpusPageIDs[page.ID]; ok {
			continue
		}
		if err := m.buildPage(ctx, page); err != nil {
			logger.Warn("Failed to build corpus for page, continuing",
				zap.String("name", page.Name),
				zap.String("lang_code", page.LangCode),
				zap.Error(err),
			)
			continue
		}
		built++
	}

	logger.Info("Corpus build complete",
		zap.Int("pages_considered", len(pages)),
		zap.Int("pages_built", built),
	)
	return nil
}

func (m *Manager) buildPage(ctx context.Context, page models.Page) error {
	fetched, err := m.fetcher.FetchPage(ctx, page.Name, page.LangCode)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	paragraphs := FilterParagraphs(fetched.Paragraphs)
	if len(paragraphs) == 0 {
		return nil
	}

	embeddings, err := m.encoder.EncodeBatch(ctx, paragraphs)
	if err != nil {
		return fmt.Errorf("failed to encode paragraphs: %w", err)
	}

	for i, text := range paragraphs {
		if err := m.store.InsertParagraph(page.ID, text, models.Vector(embeddings[i]), i); err != nil {
			return fmt.Errorf("failed to insert paragraph: %w", err)
		}
		metrics.ParagraphsStored.Inc()
	}
	return nil
}

// Load pulls the full corpus into memory for similarity search.
func (m *Manager) Load() error {
	rows, err := m.store.GetParagraphRows()
	if err != nil {
		return fmt.Errorf("failed to load paragraph rows: %w", err)
	}
	embeddings, err := m.store.GetParagraphEmbeddings()
	if err != nil {
		return fmt.Errorf("failed to load paragraph embeddings: %w", err)
	}
	if len(rows) != len(embeddings) {
		return fmt.Errorf("corpus misaligned: %d rows, %d embeddings", len(rows), len(embeddings))
	}

	matrix := make([][]float32, len(embeddings))
	for i, v := range embeddings {
		matrix[i] = v
	}

	m.rows = rows
	m.matrix = matrix

	logger.Info("Corpus loaded", zap.Int("paragraphs", len(rows)))
	return nil
}

// Size reports the number of loaded paragraphs.
func (m *Manager) Size() int {
	return len(m.rows)
}

// SimilaritySearch ranks loaded paragraphs against a free-text query
// and returns the top k.
func (m *Manager) SimilaritySearch(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if len(m.rows) == 0 {
		return nil, fmt.Errorf("corpus is empty, build and load it first")
	}

	queryEmbedding, err := m.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	scores := embed.SimilarityScores(queryEmbedding, m.matrix)
	results := make([]SearchResult, len(m.rows))
	for i, row := range m.rows {
		results[i] = SearchResult{
			Paragraph: row,
			Score:     scores[i],
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// SimilarityByPages runs a paragraph search and aggregates the scores
// per page, ranked by mean paragraph score.
func (m *Manager) SimilarityByPages(ctx context.Context, query string) ([]PageResult, error) {
	results, err := m.SimilaritySearch(ctx, query, 0)
	if err != nil {
		return nil, err
	}

	type acc struct {
		result PageResult
		total  float64
	}
	byPage := make(map[int64]*acc)
	for _, r := range results {
		a, ok := byPage[r.Paragraph.PageID]
		if !ok {
			a = &acc{result: PageResult{
				PageID:   r.Paragraph.PageID,
				PageName: r.Paragraph.PageName,
				LangCode: r.Paragraph.LangCode,
			}}
			byPage[r.Paragraph.PageID] = a
		}
		a.total += r.Score
		a.result.Paragraphs++
	}

	pages := make([]PageResult, 0, len(byPage))
	for _, a := range byPage {
		a.result.MeanScore = a.total / float64(a.result.Paragraphs)
		pages = append(pages, a.result)
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].MeanScore > pages[j].MeanScore
	})
	return pages, nil
}

// FilterParagraphs keeps prose-like paragraphs: more than five words
// and more than three quarters alphabetic characters. Tables, reference
// lists and math-heavy fragments fall below one of the two bars.
func FilterParagraphs(paragraphs []string) []string {
	var kept []string
	for _, text := range paragraphs {
		if IsQualityParagraph(text) {
			kept = append(kept, text)
		}
	}
	return kept
}

// IsQualityParagraph applies the word-count and alpha-ratio bars to a
// single paragraph.
func IsQualityParagraph(text string) bool {
	if len(strings.Fields(text)) <= minParagraphWords {
		return false
	}
	return alphaRatio(text) > minAlphaRatio
}

// alphaRatio is the share of letter runes among all runes, whitespace
// included.
func alphaRatio(text string) float64 {
	var total, alpha int
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alpha) / float64(total)
}
