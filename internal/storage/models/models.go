package models

import "time"

// Page is one row of the pages table: a (name, lang_code) pair that has
// been fetched at least once. SimScore is the cosine similarity against
// the seed embedding, assigned once at insert time.
type Page struct {
	ID        int64
	Name      string
	LangCode  string
	URL       string
	CrawledAt time.Time
	SimScore  float64
}

// PageLink is a directed edge: the source page cites the target page
// via an internal link in its body paragraphs.
type PageLink struct {
	ID           int64
	SourcePageID int64
	TargetPageID int64
}

// PageAutonym maps a page to the same topic's article in another
// language. AutonymPageID is populated at insert time, after the
// variant itself has been fetched and scored.
type PageAutonym struct {
	ID            int64
	SourcePageID  int64
	Autonym       string
	AutonymPageID int64
	LangCode      string
}

// Paragraph is one retained paragraph of an accepted page, with its
// embedding serialized alongside the text.
type Paragraph struct {
	ID        int64
	PageID    int64
	Text      string
	Embedding Vector
	Position  int
}

// ParagraphRow is a paragraph joined with its page metadata, the shape
// the corpus loads.
type ParagraphRow struct {
	ParagraphID int64
	PageID      int64
	PageName    string
	Text        string
	Position    int
	LangCode    string
}

// LinkEdge is a page link joined with page names and scores, the shape
// the graph builder reads. Targets only need to be known pages, so
// TargetScore can sit below the crawl threshold.
type LinkEdge struct {
	SourcePageID int64
	SourceName   string
	SourceScore  float64
	TargetPageID int64
	TargetName   string
	TargetScore  float64
}

// BitextPair is an aligned cross-lingual text pair derived from a page
// and one of its autonyms.
type BitextPair struct {
	PageName      string
	PageID        int64
	Autonym       string
	AutonymPageID int64
	LangCode      string
	SrcText       string
	TgtText       string
}
