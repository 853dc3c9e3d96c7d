package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/pkg/logger"
)

// Store is the relational persistence layer for pages, page links,
// autonyms and the paragraph corpus. Every insert is insert-or-ignore,
// so all operations are safe to retry and safe to call from a freshly
// started process: dedup state lives here, never in process memory.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite store initialized", zap.String("path", dbPath))

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		lang_code TEXT NOT NULL,
		url TEXT,
		crawled_at INTEGER NOT NULL,
		sim_score REAL NOT NULL,
		UNIQUE(name, lang_code)
	);
	CREATE INDEX IF NOT EXISTS idx_pages_lang_score ON pages(lang_code, sim_score);

	CREATE TABLE IF NOT EXISTS paragraph_corpus (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_id INTEGER NOT NULL REFERENCES pages(id),
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		position INTEGER NOT NULL,
		UNIQUE(page_id, text)
	);
	CREATE INDEX IF NOT EXISTS idx_paragraphs_page ON paragraph_corpus(page_id);

	CREATE TABLE IF NOT EXISTS page_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_page_id INTEGER NOT NULL REFERENCES pages(id),
		target_page_id INTEGER NOT NULL REFERENCES pages(id),
		UNIQUE(source_page_id, target_page_id)
	);
	CREATE INDEX IF NOT EXISTS idx_links_source ON page_links(source_page_id);

	CREATE TABLE IF NOT EXISTS page_autonyms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_page_id INTEGER NOT NULL REFERENCES pages(id),
		autonym TEXT NOT NULL,
		autonym_page_id INTEGER NOT NULL REFERENCES pages(id),
		lang_code TEXT NOT NULL,
		UNIQUE(autonym, lang_code)
	);
	CREATE INDEX IF NOT EXISTS idx_autonyms_source ON page_autonyms(source_page_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// InsertPage inserts a page, ignoring the insert when the (name, lang)
// pair already exists. It always returns the resolved page id, whether
// the row is new or pre-existing; a duplicate insert never changes the
// stored score or URL.
func (s *Store) InsertPage(page *models.Page) (int64, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO pages (name, lang_code, url, crawled_at, sim_score)
		 VALUES (?, ?, ?, ?, ?)`,
		page.Name,
		page.LangCode,
		page.URL,
		page.CrawledAt.Unix(),
		page.SimScore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert page: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted page id: %w", err)
		}
		logger.Debug("Page inserted",
			zap.Int64("page_id", id),
			zap.String("name", page.Name),
			zap.String("lang_code", page.LangCode),
			zap.Float64("sim_score", page.SimScore),
		)
		return id, nil
	}

	// Conflict: resolve the existing row's id.
	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM pages WHERE name = ? AND lang_code = ?`,
		page.Name, page.LangCode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve existing page id: %w", err)
	}
	return id, nil
}

// GetPages returns all pages in a language with sim_score at or above
// the threshold. An empty result is a valid outcome.
func (s *Store) GetPages(minSimScore float64, langCode string) ([]models.Page, error) {
	rows, err := s.db.Query(
		`SELECT id, name, lang_code, url, crawled_at, sim_score FROM pages
		 WHERE lang_code = ? AND sim_score >= ?`,
		langCode, minSimScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	pages, err := scanPages(rows)
	if err != nil {
		return nil, err
	}

	logger.Debug("Pages loaded",
		zap.Int("count", len(pages)),
		zap.String("lang_code", langCode),
		zap.Float64("min_sim_score", minSimScore),
	)
	return pages, nil
}

// GetPagesAnyLang returns all pages with sim_score at or above the
// threshold regardless of language.
func (s *Store) GetPagesAnyLang(minSimScore float64) ([]models.Page, error) {
	rows, err := s.db.Query(
		`SELECT id, name, lang_code, url, crawled_at, sim_score FROM pages
		 WHERE sim_score >= ?`,
		minSimScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	return scanPages(rows)
}

func scanPages(rows *sql.Rows) ([]models.Page, error) {
	var pages []models.Page
	for rows.Next() {
		var p models.Page
		var crawledAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.LangCode, &p.URL, &crawledAt, &p.SimScore); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		p.CrawledAt = time.Unix(crawledAt, 0)
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate page rows: %w", err)
	}
	return pages, nil
}

// GetKnownPageNames returns the set of every page name ever recorded
// for a language, used to avoid re-fetching candidates across runs.
func (s *Store) GetKnownPageNames(langCode string) (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT name FROM pages WHERE lang_code = ?`, langCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get page names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan page name: %w", err)
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// GetPageByName returns the page for a (name, lang) pair, or
// sql.ErrNoRows when it does not exist.
func (s *Store) GetPageByName(name, langCode string) (*models.Page, error) {
	var p models.Page
	var crawledAt int64
	err := s.db.QueryRow(
		`SELECT id, name, lang_code, url, crawled_at, sim_score FROM pages
		 WHERE name = ? AND lang_code = ?`,
		name, langCode,
	).Scan(&p.ID, &p.Name, &p.LangCode, &p.URL, &crawledAt, &p.SimScore)
	if err != nil {
		return nil, err
	}
	p.CrawledAt = time.Unix(crawledAt, 0)
	return &p, nil
}

// InsertPageLink records a directed edge, ignoring duplicates.
func (s *Store) InsertPageLink(sourcePageID, targetPageID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO page_links (source_page_id, target_page_id) VALUES (?, ?)`,
		sourcePageID, targetPageID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert page link: %w", err)
	}
	return nil
}

// GetLinkedSourceIDs returns the set of page ids already present as a
// link source, used to skip pages whose links were already extracted.
func (s *Store) GetLinkedSourceIDs() (map[int64]struct{}, error) {
	rows, err := s.db.Query(`SELECT DISTINCT source_page_id FROM page_links`)
	if err != nil {
		return nil, fmt.Errorf("failed to get link source ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// GetPageLinks returns link edges joined with page names for sources in
// the given language.
func (s *Store) GetPageLinks(langCode string) ([]models.LinkEdge, error) {
	rows, err := s.db.Query(
		`SELECT pl.source_page_id, sp.name, sp.sim_score, pl.target_page_id, tp.name, tp.sim_score
		 FROM page_links AS pl
		 JOIN pages AS sp ON pl.source_page_id = sp.id
		 JOIN pages AS tp ON pl.target_page_id = tp.id
		 WHERE sp.lang_code = ?`,
		langCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get page links: %w", err)
	}
	defer rows.Close()

	var edges []models.LinkEdge
	for rows.Next() {
		var e models.LinkEdge
		if err := rows.Scan(&e.SourcePageID, &e.SourceName, &e.SourceScore, &e.TargetPageID, &e.TargetName, &e.TargetScore); err != nil {
			return nil, fmt.Errorf("failed to scan link edge: %w", err)
		}
		edges = append(edges, e)
	}

	logger.Debug("Page links loaded", zap.Int("count", len(edges)), zap.String("lang_code", langCode))
	return edges, rows.Err()
}

// InsertAutonym records a cross-lingual variant of a page, ignoring the
// insert when the (autonym, lang) pair was already claimed.
func (s *Store) InsertAutonym(sourcePageID int64, autonym string, autonymPageID int64, langCode string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO page_autonyms (source_page_id, autonym, autonym_page_id, lang_code)
		 VALUES (?, ?, ?, ?)`,
		sourcePageID, autonym, autonymPageID, langCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert autonym: %w", err)
	}
	return nil
}

// HasAutonym reports whether the (autonym, lang) pair has already been
// claimed by any source page.
func (s *Store) HasAutonym(autonym, langCode string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM page_autonyms WHERE autonym = ? AND lang_code = ?`,
		autonym, langCode,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check autonym: %w", err)
	}
	return n > 0, nil
}

// GetUnsavedAutonymSources returns pages above the threshold for a
// language that do not yet appear as a source in page_autonyms.
func (s *Store) GetUnsavedAutonymSources(langCode string, minSimScore float64) ([]models.Page, error) {
	rows, err := s.db.Query(
		`SELECT id, name, lang_code, url, crawled_at, sim_score FROM pages
		 WHERE lang_code = ? AND sim_score >= ?
		 AND id NOT IN (SELECT source_page_id FROM page_autonyms)`,
		langCode, minSimScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsaved autonym sources: %w", err)
	}
	defer rows.Close()

	pages, err := scanPages(rows)
	if err != nil {
		return nil, err
	}

	logger.Debug("Unsaved autonym sources loaded", zap.Int("count", len(pages)))
	return pages, nil
}

// GetAutonymPairs returns autonym rows for a target language joined
// with the source page name, the raw material for bitext pairs.
func (s *Store) GetAutonymPairs(langCode string) ([]models.BitextPair, error) {
	rows, err := s.db.Query(
		`SELECT p.name, pa.source_page_id, pa.autonym, pa.autonym_page_id, pa.lang_code
		 FROM page_autonyms AS pa
		 JOIN pages AS p ON pa.source_page_id = p.id
		 WHERE pa.lang_code = ?`,
		langCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get autonym pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.BitextPair
	for rows.Next() {
		var p models.BitextPair
		if err := rows.Scan(&p.PageName, &p.PageID, &p.Autonym, &p.AutonymPageID, &p.LangCode); err != nil {
			return nil, fmt.Errorf("failed to scan autonym pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// InsertParagraph stores one retained paragraph with its embedding,
// ignoring duplicates of (page_id, text).
func (s *Store) InsertParagraph(pageID int64, text string, embedding models.Vector, position int) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO paragraph_corpus (page_id, text, embedding, position)
		 VALUES (?, ?, ?, ?)`,
		pageID, text, embedding.Bytes(), position,
	)
	if err != nil {
		return fmt.Errorf("failed to insert paragraph: %w", err)
	}
	return nil
}

// GetParagraphRows returns the paragraph corpus joined with page
// metadata, ordered by row id. Embeddings are loaded separately by
// GetParagraphEmbeddings with the same ordering; callers must verify
// the two line up.
func (s *Store) GetParagraphRows() ([]models.ParagraphRow, error) {
	rows, err := s.db.Query(
		`SELECT pc.id, pc.page_id, p.name, pc.text, pc.position, p.lang_code
		 FROM paragraph_corpus AS pc
		 JOIN pages AS p ON pc.page_id = p.id
		 ORDER BY pc.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get paragraph corpus: %w", err)
	}
	defer rows.Close()

	var corpus []models.ParagraphRow
	for rows.Next() {
		var r models.ParagraphRow
		if err := rows.Scan(&r.ParagraphID, &r.PageID, &r.PageName, &r.Text, &r.Position, &r.LangCode); err != nil {
			return nil, fmt.Errorf("failed to scan paragraph row: %w", err)
		}
		corpus = append(corpus, r)
	}

	logger.Debug("Paragraph corpus loaded", zap.Int("count", len(corpus)))
	return corpus, rows.Err()
}

// GetParagraphEmbeddings returns every stored embedding ordered by
// paragraph row id.
func (s *Store) GetParagraphEmbeddings() ([]models.Vector, error) {
	rows, err := s.db.Query(`SELECT embedding FROM paragraph_corpus ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get paragraph embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []models.Vector
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := models.VectorFromBytes(blob)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, rows.Err()
}

// GetCorpusPageIDs returns the set of page ids already represented in
// the paragraph corpus.
func (s *Store) GetCorpusPageIDs() (map[int64]struct{}, error) {
	rows, err := s.db.Query(`SELECT DISTINCT page_id FROM paragraph_corpus`)
	if err != nil {
		return nil, fmt.Errorf("failed to get corpus page ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan page id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// GetParagraphTextByPageID returns a page's stored paragraph texts
// joined in position order, or an empty string when none exist.
func (s *Store) GetParagraphTextByPageID(pageID int64) (string, error) {
	rows, err := s.db.Query(
		`SELECT text FROM paragraph_corpus WHERE page_id = ? ORDER BY position`,
		pageID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to get paragraphs for page: %w", err)
	}
	defer rows.Close()

	var joined string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", fmt.Errorf("failed to scan paragraph text: %w", err)
		}
		if joined != "" {
			joined += " "
		}
		joined += text
	}
	return joined, rows.Err()
}

// TableCounts returns the row count of every table, for run logging.
func (s *Store) TableCounts() (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"pages", "paragraph_corpus", "page_links", "page_autonyms"} {
		var n int
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
