package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
	"github.com/wikitopics/backend/pkg/logger"
)

// PageFetcher is the subset of the wiki client the graph builder needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, name, langCode string) (*wiki.Page, error)
}

// Builder materializes the link graph between known pages. Only links
// where both endpoints already exist in the page table become edges;
// the crawl decides what is on topic, the graph just connects it.
type Builder struct {
	store        *sqlite.Store
	fetcher      PageFetcher
	langCode     string
	simThreshold float64
}

func NewBuilder(store *sqlite.Store, fetcher PageFetcher, langCode string, simThreshold float64) *Builder {
	return &Builder{
		store:        store,
		fetcher:      fetcher,
		langCode:     langCode,
		simThreshold: simThreshold,
	}
}

// BuildPageLinks fetches each on-topic page that has no outgoing edges
// yet and records an edge for every link whose target is already known.
// Sources that already have edges are skipped, so repeated builds only
// touch new pages.
func (b *Builder) BuildPageLinks(ctx context.Context) error {
	pages, err := b.store.GetPages(b.simThreshold, b.langCode)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	linked, err := b.store.GetLinkedSourceIDs()
	if err != nil {
		return fmt.Errorf("failed to load linked sources: %w", err)
	}

	built := 0
	for _, page := range pages {
		if _, ok := linked[page.ID]; ok {
			continue
		}
		if err := b.buildPage(ctx, page); err != nil {
			logger.Warn("Failed to build links for page, continuing",
				zap.String("name", page.Name),
				zap.Error(err),
			)
			continue
		}
		built++
	}

	logger.Info("Link graph build complete",
		zap.Int("pages_considered", len(pages)),
		zap.Int("pages_built", built),
	)
	return nil
}

func (b *Builder) buildPage(ctx context.Context, page models.Page) error {
	fetched, err := b.fetcher.FetchPage(ctx, page.Name, b.langCode)
	if err != nil {
		return fmt.Errorf("failed to fetch page: %w", err)
	}

	for _, name := range fetched.LinkNames {
		target, err := b.store.GetPageByName(name, b.langCode)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to look up link target: %w", err)
		}
		if target.ID == page.ID {
			continue
		}
		if err := b.store.InsertPageLink(page.ID, target.ID); err != nil {
			return fmt.Errorf("failed to insert page link: %w", err)
		}
		metrics.PageLinksStored.Inc()
	}
	return nil
}

// Edges returns the stored link graph for the builder's language.
func (b *Builder) Edges() ([]models.LinkEdge, error) {
	return b.store.GetPageLinks(b.langCode)
}

// FilterOptions trims a raw edge list down to a readable report.
type FilterOptions struct {
	// FreqMin keeps only targets referenced strictly more than this
	// many times.
	FreqMin int
	// GroupSize caps the edges kept per source page.
	GroupSize int
	// MaxEdges caps the final edge count.
	MaxEdges int
	// MinSimScore drops edges whose target scored below this. Targets
	// only need to be known pages, so this is what keeps off-topic
	// pages out of the rendered graph.
	MinSimScore float64
}

func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		FreqMin:     3,
		GroupSize:   20,
		MaxEdges:    500,
		MinSimScore: 0.5,
	}
}

// Filter reduces a raw edge list to the frequently referenced part of
// the graph: targets must clear the in-degree minimum, each source
// keeps at most GroupSize edges (its highest-degree targets first),
// edges to low-scoring targets are dropped, and the result is capped
// at MaxEdges. Ordering is deterministic: in-degree descending, then
// target and source names.
func Filter(edges []models.LinkEdge, opts FilterOptions) []models.LinkEdge {
	inDegree := make(map[int64]int)
	for _, e := range edges {
		inDegree[e.TargetPageID]++
	}

	var kept []models.LinkEdge
	for _, e := range edges {
		if inDegree[e.TargetPageID] > opts.FreqMin {
			kept = append(kept, e)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		di, dj := inDegree[kept[i].TargetPageID], inDegree[kept[j].TargetPageID]
		if di != dj {
			return di > dj
		}
		if kept[i].TargetName != kept[j].TargetName {
			return kept[i].TargetName < kept[j].TargetName
		}
		return kept[i].SourceName < kept[j].SourceName
	})

	if opts.GroupSize > 0 {
		perSource := make(map[int64]int)
		grouped := kept[:0]
		for _, e := range kept {
			if perSource[e.SourcePageID] >= opts.GroupSize {
				continue
			}
			perSource[e.SourcePageID]++
			grouped = append(grouped, e)
		}
		kept = grouped
	}

	filtered := kept[:0]
	for _, e := range kept {
		if e.TargetScore >= opts.MinSimScore {
			filtered = append(filtered, e)
		}
	}
	kept = filtered

	if opts.MaxEdges > 0 && len(kept) > opts.MaxEdges {
		kept = kept[:opts.MaxEdges]
	}
	return kept
}
