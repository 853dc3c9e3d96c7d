package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
)

type stubFetcher struct {
	pages      map[string]*wiki.Page
	fetchCount map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages:      make(map[string]*wiki.Page),
		fetchCount: make(map[string]int),
	}
}

func (f *stubFetcher) addPage(lang, name string, links ...string) {
	f.pages[lang+"/"+name] = &wiki.Page{
		Name:      name,
		LangCode:  lang,
		LinkNames: links,
	}
}

func (f *stubFetcher) FetchPage(ctx context.Context, name, langCode string) (*wiki.Page, error) {
	key := langCode + "/" + name
	f.fetchCount[key]++
	page, ok := f.pages[key]
	if !ok {
		return nil, fmt.Errorf("no such page: %s", key)
	}
	return page, nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func insertTestPage(t *testing.T, store *sqlite.Store, name, lang string, score float64) int64 {
	t.Helper()

	id, err := store.InsertPage(&models.Page{
		Name:      name,
		LangCode:  lang,
		CrawledAt: time.Now(),
		SimScore:  score,
	})
	require.NoError(t, err)
	return id
}

func TestBuildPageLinksConnectsKnownPagesOnly(t *testing.T) {
	store := newTestStore(t)
	fetcher := newStubFetcher()

	football := insertTestPage(t, store, "Association_football", "en", 1.0)
	sport := insertTestPage(t, store, "Sport", "en", 0.62)
	insertTestPage(t, store, "Banana", "en", 0.10)

	fetcher.addPage("en", "Association_football", "Sport", "Banana", "Unknown_page", "Association_football")
	fetcher.addPage("en", "Sport", "Association_football")

	b := NewBuilder(store, fetcher, "en", 0.45)
	require.NoError(t, b.BuildPageLinks(context.Background()))

	edges, err := b.Edges()
	require.NoError(t, err)
	require.Len(t, edges, 3)

	byPair := make(map[string]bool)
	for _, e := range edges {
		byPair[e.SourceName+"->"+e.TargetName] = true
		if e.TargetName == "Banana" {
			assert.InDelta(t, 0.10, e.TargetScore, 1e-9, "edges carry the target's score")
		}
	}
	assert.True(t, byPair["Association_football->Sport"])
	assert.True(t, byPair["Association_football->Banana"], "known targets count even below the threshold")
	assert.True(t, byPair["Sport->Association_football"])
	assert.False(t, byPair["Association_football->Association_football"], "self links are dropped")

	linked, err := store.GetLinkedSourceIDs()
	require.NoError(t, err)
	assert.Contains(t, linked, football)
	assert.Contains(t, linked, sport)

	// A rebuild skips sources that already have edges.
	require.NoError(t, b.BuildPageLinks(context.Background()))
	assert.Equal(t, 1, fetcher.fetchCount["en/Association_football"])
}

func TestFilterByInDegree(t *testing.T) {
	edges := []models.LinkEdge{
		{SourcePageID: 1, SourceName: "A", SourceScore: 0.9, TargetPageID: 10, TargetName: "Hub"},
		{SourcePageID: 2, SourceName: "B", SourceScore: 0.8, TargetPageID: 10, TargetName: "Hub"},
		{SourcePageID: 3, SourceName: "C", SourceScore: 0.7, TargetPageID: 10, TargetName: "Hub"},
		{SourcePageID: 1, SourceName: "A", SourceScore: 0.9, TargetPageID: 20, TargetName: "Rare"},
	}

	kept := Filter(edges, FilterOptions{FreqMin: 2, GroupSize: 20, MaxEdges: 500})

	require.Len(t, kept, 3, "targets must be referenced strictly more than FreqMin times")
	for _, e := range kept {
		assert.Equal(t, "Hub", e.TargetName)
	}

	assert.Empty(t, Filter(edges, FilterOptions{FreqMin: 3, GroupSize: 20, MaxEdges: 500}))
}

func TestFilterGroupSizeCapsPerSource(t *testing.T) {
	// One source linking to three targets, plus a second source.
	edges := []models.LinkEdge{
		{SourcePageID: 1, SourceName: "Busy", SourceScore: 1, TargetPageID: 10, TargetName: "Alpha"},
		{SourcePageID: 1, SourceName: "Busy", SourceScore: 1, TargetPageID: 20, TargetName: "Beta"},
		{SourcePageID: 1, SourceName: "Busy", SourceScore: 1, TargetPageID: 30, TargetName: "Gamma"},
		{SourcePageID: 2, SourceName: "Quiet", SourceScore: 1, TargetPageID: 10, TargetName: "Alpha"},
	}

	kept := Filter(edges, FilterOptions{FreqMin: 0, GroupSize: 2, MaxEdges: 500})

	perSource := make(map[string]int)
	for _, e := range kept {
		perSource[e.SourceName]++
	}
	assert.Equal(t, 2, perSource["Busy"], "each source keeps at most GroupSize edges")
	assert.Equal(t, 1, perSource["Quiet"])
}

func TestFilterMaxEdges(t *testing.T) {
	var edges []models.LinkEdge
	for i := 0; i < 10; i++ {
		edges = append(edges, models.LinkEdge{
			SourcePageID: int64(i),
			SourceName:   fmt.Sprintf("S%02d", i),
			SourceScore:  1,
			TargetPageID: 10,
			TargetName:   "Hub",
		})
	}

	kept := Filter(edges, FilterOptions{FreqMin: 1, GroupSize: 20, MaxEdges: 4})
	assert.Len(t, kept, 4)
}

func TestFilterMinSimScore(t *testing.T) {
	edges := []models.LinkEdge{
		{SourcePageID: 1, SourceName: "A", SourceScore: 0.9, TargetPageID: 10, TargetName: "OnTopic", TargetScore: 0.8},
		{SourcePageID: 1, SourceName: "A", SourceScore: 0.9, TargetPageID: 20, TargetName: "OffTopic", TargetScore: 0.1},
		{SourcePageID: 2, SourceName: "B", SourceScore: 0.9, TargetPageID: 10, TargetName: "OnTopic", TargetScore: 0.8},
		{SourcePageID: 2, SourceName: "B", SourceScore: 0.9, TargetPageID: 20, TargetName: "OffTopic", TargetScore: 0.1},
	}

	kept := Filter(edges, FilterOptions{FreqMin: 1, GroupSize: 20, MaxEdges: 500, MinSimScore: 0.5})

	require.Len(t, kept, 2, "edges to low-scoring targets are dropped even when frequently linked")
	for _, e := range kept {
		assert.Equal(t, "OnTopic", e.TargetName)
	}
}

func TestFilterDeterministicOrder(t *testing.T) {
	edges := []models.LinkEdge{
		{SourcePageID: 2, SourceName: "B", SourceScore: 1, TargetPageID: 20, TargetName: "Beta"},
		{SourcePageID: 1, SourceName: "A", SourceScore: 1, TargetPageID: 10, TargetName: "Alpha"},
		{SourcePageID: 3, SourceName: "C", SourceScore: 1, TargetPageID: 10, TargetName: "Alpha"},
	}

	kept := Filter(edges, FilterOptions{FreqMin: 0, GroupSize: 20, MaxEdges: 500})

	require.Len(t, kept, 3)
	// Alpha has the higher in-degree, its edges come first, sources sorted.
	assert.Equal(t, "A", kept[0].SourceName)
	assert.Equal(t, "C", kept[1].SourceName)
	assert.Equal(t, "B", kept[2].SourceName)
}
