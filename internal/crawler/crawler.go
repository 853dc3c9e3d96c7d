package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
	"github.com/wikitopics/backend/pkg/logger"
)

// PageFetcher retrieves a page's paragraphs, internal article links and
// cross-lingual variants. Transport failures are errors; a page with
// zero paragraphs is valid data.
type PageFetcher interface {
	FetchPage(ctx context.Context, name, langCode string) (*wiki.Page, error)
	FetchLanguages(ctx context.Context, name, langCode string) ([]wiki.LanguageLink, error)
}

// Encoder turns text into a fixed-size vector and compares vectors.
// Deterministic for identical input, multilingual without a language
// parameter.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Similarity(a, b []float32) float64
}

type Config struct {
	SeedPage     string
	LangCode     string
	LangCodes    []string
	SimThreshold float64
	MaxPages     int
	MaxNewPages  int
}

// Crawler grows the corpus from the seed page across repeated,
// resumable runs. All dedup state is re-derived from the store on every
// pass; only the seed embedding and the in-pass visited set live in
// process memory, and both are safe to lose on crash.
type Crawler struct {
	store   *sqlite.Store
	fetcher PageFetcher
	encoder Encoder

	seedPage     string
	langCode     string
	autonymLangs map[string]struct{}
	simThreshold float64
	maxPages     int
	maxNewPages  int

	seedEmbedding []float32
}

// New seeds the store and derives the seed embedding. The seed page
// defines its own topic, so it is recorded with similarity 1.0, and its
// embedding is the fixed comparison target for every score this crawler
// produces, in any language.
func New(ctx context.Context, store *sqlite.Store, fetcher PageFetcher, encoder Encoder, cfg Config) (*Crawler, error) {
	autonymLangs := make(map[string]struct{})
	for _, lang := range cfg.LangCodes {
		if lang != cfg.LangCode {
			autonymLangs[lang] = struct{}{}
		}
	}

	c := &Crawler{
		store:        store,
		fetcher:      fetcher,
		encoder:      encoder,
		seedPage:     cfg.SeedPage,
		langCode:     cfg.LangCode,
		autonymLangs: autonymLangs,
		simThreshold: cfg.SimThreshold,
		maxPages:     cfg.MaxPages,
		maxNewPages:  cfg.MaxNewPages,
	}

	if err := c.seed(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Crawler) seed(ctx context.Context) error {
	page, err := c.fetcher.FetchPage(ctx, c.seedPage, c.langCode)
	if err != nil {
		return fmt.Errorf("failed to fetch seed page %s: %w", c.seedPage, err)
	}
	if len(page.Paragraphs) == 0 {
		return fmt.Errorf("seed page %s has no paragraphs", c.seedPage)
	}

	if _, err := c.store.InsertPage(&models.Page{
		Name:      page.Name,
		LangCode:  page.LangCode,
		URL:       page.URL,
		CrawledAt: time.Now(),
		SimScore:  1.0,
	}); err != nil {
		return fmt.Errorf("failed to insert seed page: %w", err)
	}

	embedding, err := c.encoder.Encode(ctx, strings.Join(page.Paragraphs, " "))
	if err != nil {
		return fmt.Errorf("failed to encode seed paragraphs: %w", err)
	}
	metrics.EmbeddingsComputed.Inc()
	c.seedEmbedding = embedding

	logger.Info("Crawler seeded",
		zap.String("seed_page", c.seedPage),
		zap.String("lang_code", c.langCode),
		zap.Int("seed_paragraphs", len(page.Paragraphs)),
	)
	return nil
}

// SeedEmbedding exposes the fixed reference vector for this crawl.
func (c *Crawler) SeedEmbedding() []float32 {
	return c.seedEmbedding
}

// Crawl performs one full pass: source-language expansion, then the
// autonym phase.
func (c *Crawler) Crawl(ctx context.Context) error {
	logger.Info("Crawling pages",
		zap.Float64("sim_threshold", c.simThreshold),
		zap.Int("max_pages", c.maxPages),
		zap.Int("max_new_pages", c.maxNewPages),
	)

	if err := c.CrawlSourceLanguage(ctx); err != nil {
		return err
	}
	if err := c.CrawlAutonyms(ctx); err != nil {
		return err
	}

	logger.Info("Crawling complete")
	return nil
}

// CrawlSourceLanguage expands the corpus in the crawl language. Anchors
// (known pages above the threshold) are fetched fresh, their candidate
// links scored against the seed embedding, and every scored candidate
// is recorded at its true score whether or not it clears the threshold:
// a rejected page kept at its real score is never fetched again.
func (c *Crawler) CrawlSourceLanguage(ctx context.Context) error {
	anchors, err := c.store.GetPages(c.simThreshold, c.langCode)
	if err != nil {
		return fmt.Errorf("failed to load anchor pages: %w", err)
	}

	known, err := c.store.GetKnownPageNames(c.langCode)
	if err != nil {
		return fmt.Errorf("failed to load known page names: %w", err)
	}

	// De-bias which anchors get expanded when the pass is capped.
	rand.Shuffle(len(anchors), func(i, j int) {
		anchors[i], anchors[j] = anchors[j], anchors[i]
	})
	if len(anchors) > c.maxPages {
		anchors = anchors[:c.maxPages]
	}

	visited := make(map[string]struct{})
	for _, anchor := range anchors {
		start := time.Now()
		page, err := c.fetcher.FetchPage(ctx, anchor.Name, c.langCode)
		if err != nil {
			metrics.PageFetchErrors.WithLabelValues(c.langCode).Inc()
			logger.Warn("Failed to fetch anchor page, skipping",
				zap.String("name", anchor.Name),
				zap.Error(err),
			)
			continue
		}
		metrics.PageFetchDuration.WithLabelValues(c.langCode).Observe(time.Since(start).Seconds())

		candidates := append([]string(nil), page.LinkNames...)
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		if len(candidates) > c.maxNewPages {
			candidates = candidates[:c.maxNewPages]
		}

		for _, candidate := range candidates {
			if _, ok := known[candidate]; ok {
				continue
			}
			if _, ok := visited[candidate]; ok {
				continue
			}

			if err := c.processCandidate(ctx, candidate); err != nil {
				logger.Warn("Failed to process candidate, continuing",
					zap.String("name", candidate),
					zap.Error(err),
				)
				continue
			}
			visited[candidate] = struct{}{}
		}
	}

	return nil
}

// processCandidate fetches, scores and records one candidate page.
func (c *Crawler) processCandidate(ctx context.Context, name string) error {
	start := time.Now()
	page, err := c.fetcher.FetchPage(ctx, name, c.langCode)
	if err != nil {
		metrics.PageFetchErrors.WithLabelValues(c.langCode).Inc()
		return err
	}
	metrics.PageFetchDuration.WithLabelValues(c.langCode).Observe(time.Since(start).Seconds())

	simScore, err := c.scorePage(ctx, page.Paragraphs)
	if err != nil {
		return err
	}

	if _, err := c.store.InsertPage(&models.Page{
		Name:      page.Name,
		LangCode:  page.LangCode,
		URL:       page.URL,
		CrawledAt: time.Now(),
		SimScore:  simScore,
	}); err != nil {
		return err
	}

	outcome := "rejected"
	if simScore >= c.simThreshold {
		outcome = "accepted"
	}
	metrics.PagesCrawled.WithLabelValues(c.langCode, outcome).Inc()
	metrics.SimilarityScores.Observe(simScore)

	logger.Debug("Candidate recorded",
		zap.String("name", name),
		zap.Float64("sim_score", simScore),
		zap.String("outcome", outcome),
	)
	return nil
}

// scorePage encodes the joined paragraphs and compares against the seed
// embedding. Zero-paragraph pages score 0 without an encoder call; they
// are still recorded, so empty and redirect pages are never re-fetched.
func (c *Crawler) scorePage(ctx context.Context, paragraphs []string) (float64, error) {
	if len(paragraphs) == 0 {
		return 0, nil
	}

	embedding, err := c.encoder.Encode(ctx, strings.Join(paragraphs, " "))
	if err != nil {
		return 0, fmt.Errorf("failed to encode paragraphs: %w", err)
	}
	metrics.EmbeddingsComputed.Inc()

	return c.encoder.Similarity(embedding, c.seedEmbedding), nil
}

// CrawlAutonyms fetches cross-lingual variants of anchors that have no
// autonym row yet. Variants are scored against the same seed embedding
// as source-language pages; the multilingual encoder makes one seed
// vector valid for every configured language.
func (c *Crawler) CrawlAutonyms(ctx context.Context) error {
	unsaved, err := c.store.GetUnsavedAutonymSources(c.langCode, c.simThreshold)
	if err != nil {
		return fmt.Errorf("failed to load unsaved autonym sources: %w", err)
	}

	saved := 0
	for _, source := range unsaved {
		languages, err := c.fetcher.FetchLanguages(ctx, source.Name, c.langCode)
		if err != nil {
			logger.Warn("Failed to fetch language links, skipping",
				zap.String("name", source.Name),
				zap.Error(err),
			)
			continue
		}

		for _, lang := range languages {
			if _, ok := c.autonymLangs[lang.Code]; !ok {
				continue
			}
			if err := c.processAutonym(ctx, source, lang); err != nil {
				logger.Warn("Failed to process autonym, continuing",
					zap.String("autonym", lang.Key),
					zap.String("lang_code", lang.Code),
					zap.Error(err),
				)
				continue
			}
			saved++
		}
	}

	logger.Info("Autonym phase complete", zap.Int("saved", saved))
	return nil
}

func (c *Crawler) processAutonym(ctx context.Context, source models.Page, lang wiki.LanguageLink) error {
	claimed, err := c.store.HasAutonym(lang.Key, lang.Code)
	if err != nil {
		return err
	}
	if claimed {
		logger.Debug("Autonym already claimed, skipping",
			zap.String("autonym", lang.Key),
			zap.String("lang_code", lang.Code),
		)
		return nil
	}

	page, err := c.fetcher.FetchPage(ctx, lang.Key, lang.Code)
	if err != nil {
		metrics.PageFetchErrors.WithLabelValues(lang.Code).Inc()
		return err
	}
	if len(page.Paragraphs) == 0 {
		logger.Debug("Autonym page has no paragraphs, skipping",
			zap.String("autonym", lang.Key),
			zap.String("lang_code", lang.Code),
		)
		return nil
	}

	simScore, err := c.scorePage(ctx, page.Paragraphs)
	if err != nil {
		return err
	}

	autonymPageID, err := c.store.InsertPage(&models.Page{
		Name:      page.Name,
		LangCode:  page.LangCode,
		URL:       page.URL,
		CrawledAt: time.Now(),
		SimScore:  simScore,
	})
	if err != nil {
		return err
	}

	if err := c.store.InsertAutonym(source.ID, lang.Key, autonymPageID, lang.Code); err != nil {
		return err
	}
	metrics.AutonymsStored.WithLabelValues(lang.Code).Inc()

	return nil
}
