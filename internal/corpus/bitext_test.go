package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikitopics/backend/internal/storage/models"
)

func TestBitextPairs(t *testing.T) {
	store := newTestStore(t)

	earth := insertTestPage(t, store, "Earth", "en", 0.8)
	erde := insertTestPage(t, store, "Erde", "de", 0.75)
	moon := insertTestPage(t, store, "Moon", "en", 0.7)
	mond := insertTestPage(t, store, "Mond", "de", 0.65)

	require.NoError(t, store.InsertAutonym(earth, "Erde", erde, "de"))
	require.NoError(t, store.InsertAutonym(moon, "Mond", mond, "de"))

	require.NoError(t, store.InsertParagraph(earth, "Earth is a planet.", models.Vector{1, 0}, 0))
	require.NoError(t, store.InsertParagraph(erde, "Die Erde ist ein Planet.", models.Vector{1, 0}, 0))
	// Moon has corpus text, Mond does not: the pair is incomplete.
	require.NoError(t, store.InsertParagraph(moon, "The Moon orbits Earth.", models.Vector{0, 1}, 0))

	m := NewManager(store, newStubFetcher(), newStubEncoder(), []string{"en", "de"}, 0.45)

	pairs, err := m.BitextPairs("de")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Earth", pairs[0].PageName)
	assert.Equal(t, "Erde", pairs[0].Autonym)
	assert.Equal(t, "Earth is a planet.", pairs[0].SrcText)
	assert.Equal(t, "Die Erde ist ein Planet.", pairs[0].TgtText)

	assert.Equal(t, 9, BitextWordCount(pairs), "punctuation does not count as words")
}

func TestWriteBitextTSV(t *testing.T) {
	pairs := []models.BitextPair{
		{
			PageName: "Earth",
			Autonym:  "Erde",
			LangCode: "de",
			SrcText:  "Earth is a planet.\nIt has one moon.",
			TgtText:  "Die Erde ist ein Planet.\tSie hat einen Mond.",
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteBitextTSV(&sb, pairs))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "page_name\tautonym\tlang_code\tsrc_text\ttgt_text", lines[0])

	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 5, "embedded tabs and newlines are flattened")
	assert.Equal(t, "Earth", fields[0])
	assert.Equal(t, "Earth is a planet. It has one moon.", fields[3])
	assert.Equal(t, "Die Erde ist ein Planet. Sie hat einen Mond.", fields[4])
}
