package corpus

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

func (f *stubFetcher) addPage(lang, name string, paragraphs ...string) {
	f.pages[lang+"/"+name] = &wiki.Page{
		Name:       name,
		LangCode:   lang,
		Paragraphs: paragraphs,
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

type stubEncoder struct {
	vectors map[string][]float32
}

func newStubEncoder() *stubEncoder {
	return &stubEncoder{vectors: make(map[string][]float32)}
}

func (e *stubEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *stubEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
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

func TestIsQualityParagraph(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"prose sentence", "The quick brown fox jumps over the lazy dog.", true},
		{"four words", "The quick brown fox.", false},
		{"exactly five words", "The quick brown fox jumps", false},
		{"six alphabetic words", "The quick brown fox jumps high", true},
		{"six words half non-alphabetic", "ab1 cd2 ef3 gh4 ij5 kl6", false},
		{"mostly numbers", "1 2 3 4 5 6 one two three four five six", false},
		{"empty", "", false},
		{"whitespace", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQualityParagraph(tt.text))
		})
	}
}

func TestFilterParagraphsKeepsOrder(t *testing.T) {
	kept := FilterParagraphs([]string{
		"The first paragraph talks about football at length.",
		"Too short.",
		"The second paragraph also talks about football at length.",
	})

	require.Len(t, kept, 2)
	assert.Contains(t, kept[0], "first")
	assert.Contains(t, kept[1], "second")
}

func TestBuildStoresFilteredParagraphs(t *testing.T) {
	store := newTestStore(t)
	fetcher := newStubFetcher()
	encoder := newStubEncoder()

	insertTestPage(t, store, "Sport", "en", 0.62)
	insertTestPage(t, store, "Banana", "en", 0.10)

	fetcher.addPage("en", "Sport",
		"Sport is commonly defined as physical activity and play.",
		"Nope.",
		"Many forms of sport exist across every culture today.",
	)

	m := NewManager(store, fetcher, encoder, []string{"en"}, 0.45)
	require.NoError(t, m.Build(context.Background()))

	rows, err := store.GetParagraphRows()
	require.NoError(t, err)
	require.Len(t, rows, 2, "the low-quality paragraph is dropped")
	assert.Equal(t, "Sport", rows[0].PageName)
	assert.Equal(t, 0, rows[0].Position)
	assert.Equal(t, 1, rows[1].Position)

	assert.Zero(t, fetcher.fetchCount["en/Banana"], "below-threshold pages are not fetched")

	// A second build skips pages already in the corpus.
	require.NoError(t, m.Build(context.Background()))
	assert.Equal(t, 1, fetcher.fetchCount["en/Sport"])
}

func TestBuildErrorsWithoutQualifyingPages(t *testing.T) {
	store := newTestStore(t)
	insertTestPage(t, store, "Banana", "en", 0.10)

	m := NewManager(store, newStubFetcher(), newStubEncoder(), []string{"en"}, 0.45)
	assert.Error(t, m.Build(context.Background()))
}

func TestLoadEmptyCorpus(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, newStubFetcher(), newStubEncoder(), []string{"en"}, 0.45)

	require.NoError(t, m.Load())
	assert.Zero(t, m.Size())
}

func TestSimilaritySearch(t *testing.T) {
	store := newTestStore(t)
	encoder := newStubEncoder()

	page := insertTestPage(t, store, "Sport", "en", 0.62)
	require.NoError(t, store.InsertParagraph(page, "About football.", models.Vector{1, 0, 0}, 0))
	require.NoError(t, store.InsertParagraph(page, "About chess.", models.Vector{0, 1, 0}, 1))
	require.NoError(t, store.InsertParagraph(page, "About music.", models.Vector{0, 0, 1}, 2))

	encoder.vectors["football query"] = []float32{1, 0, 0}

	m := NewManager(store, newStubFetcher(), encoder, []string{"en"}, 0.45)
	require.NoError(t, m.Load())
	require.Equal(t, 3, m.Size())

	results, err := m.SimilaritySearch(context.Background(), "football query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "About football.", results[0].Paragraph.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSimilaritySearchEmptyCorpus(t *testing.T) {
	m := NewManager(newTestStore(t), newStubFetcher(), newStubEncoder(), []string{"en"}, 0.45)
	require.NoError(t, m.Load())

	_, err := m.SimilaritySearch(context.Background(), "anything", 5)
	assert.Error(t, err)
}

func TestSimilarityByPages(t *testing.T) {
	store := newTestStore(t)
	encoder := newStubEncoder()

	sport := insertTestPage(t, store, "Sport", "en", 0.62)
	music := insertTestPage(t, store, "Music", "en", 0.50)
	require.NoError(t, store.InsertParagraph(sport, "Football paragraph one.", models.Vector{1, 0, 0}, 0))
	require.NoError(t, store.InsertParagraph(sport, "Football paragraph two.", models.Vector{1, 0, 0}, 1))
	require.NoError(t, store.InsertParagraph(music, "A paragraph about music.", models.Vector{0, 0, 1}, 0))

	encoder.vectors["football"] = []float32{1, 0, 0}

	m := NewManager(store, newStubFetcher(), encoder, []string{"en"}, 0.45)
	require.NoError(t, m.Load())

	pages, err := m.SimilarityByPages(context.Background(), "football")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Sport", pages[0].PageName)
	assert.Equal(t, 2, pages[0].Paragraphs)
	assert.InDelta(t, 1.0, pages[0].MeanScore, 1e-6)
	assert.Equal(t, "Music", pages[1].PageName)
}
