package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/pkg/logger"
)

const defaultBaseURL = "https://api.wikimedia.org/core/v1/wikipedia"

// NoShortDescription is the designed default when a page carries no
// shortdescription div. Missing content is data, not an error.
const NoShortDescription = "no_shortdescription"

// excludedLinkFragments filters internal hrefs to article links only:
// no anchors, no percent-encoded titles, no non-article namespaces.
var excludedLinkFragments = []string{"#", "%", ":", "=", "File:", "Help:", "List_of"}

// Client fetches rendered article HTML and language links from the
// Wikimedia Core REST API.
type Client struct {
	baseURL     string
	accessToken string
	appName     string
	email       string
	httpClient  *http.Client
}

// Page is the parsed result of one article fetch. Zero paragraphs is
// valid data (empty or redirect pages), distinct from a fetch error.
type Page struct {
	Name             string
	LangCode         string
	URL              string
	ShortDescription string
	Paragraphs       []string
	LinkNames        []string
}

// LanguageLink is one cross-lingual variant of a page. Key is the
// target-language article title (the autonym).
type LanguageLink struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Key   string `json:"key"`
	Title string `json:"title"`
}

func NewClient(accessToken, appName, email string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		appName:     appName,
		email:       email,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a local
// server.
func NewClientWithBaseURL(baseURL, accessToken, appName, email string, timeout time.Duration) *Client {
	c := NewClient(accessToken, appName, email, timeout)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) pageURL(name, langCode string) string {
	return fmt.Sprintf("%s/%s/page/%s/html", c.baseURL, langCode, name)
}

func (c *Client) languagesURL(name, langCode string) string {
	return fmt.Sprintf("%s/%s/page/%s/links/language", c.baseURL, langCode, name)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s (%s)", c.appName, c.email))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}
	return resp, nil
}

// FetchPage downloads and parses a page's rendered article body into
// paragraph texts and internal article link names.
func (c *Client) FetchPage(ctx context.Context, name, langCode string) (*Page, error) {
	url := c.pageURL(name, langCode)
	start := time.Now()

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", name, err)
	}

	page := &Page{
		Name:             name,
		LangCode:         langCode,
		URL:              url,
		ShortDescription: extractShortDescription(doc),
		Paragraphs:       extractParagraphs(doc),
		LinkNames:        extractInternalLinkNames(doc),
	}

	logger.Debug("Page fetched",
		zap.String("name", name),
		zap.String("lang_code", langCode),
		zap.Int("paragraphs", len(page.Paragraphs)),
		zap.Int("links", len(page.LinkNames)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return page, nil
}

// FetchLanguages returns the list of cross-lingual variants of a page.
func (c *Client) FetchLanguages(ctx context.Context, name, langCode string) ([]LanguageLink, error) {
	resp, err := c.get(ctx, c.languagesURL(name, langCode))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var languages []LanguageLink
	if err := json.NewDecoder(resp.Body).Decode(&languages); err != nil {
		return nil, fmt.Errorf("failed to decode language links for %s: %w", name, err)
	}
	return languages, nil
}

func extractShortDescription(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find("div.shortdescription").First().Text())
	if text == "" {
		return NoShortDescription
	}
	return text
}

func extractParagraphs(doc *goquery.Document) []string {
	var paragraphs []string
	doc.Find("p").Each(func(i int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return paragraphs
}

// extractInternalLinkNames collects hrefs of <a> tags inside body
// paragraphs. Only relative article links ("./Title") survive the
// filter; anchors, percent-encoded titles and non-article namespaces
// are dropped. The "./" prefix is stripped.
func extractInternalLinkNames(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var names []string

	doc.Find("p a").Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.HasPrefix(href, "./") {
			return
		}
		for _, fragment := range excludedLinkFragments {
			if strings.Contains(href, fragment) {
				return
			}
		}
		name := strings.TrimPrefix(href, "./")
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})

	return names
}
