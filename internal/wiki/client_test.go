package wiki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><body>
<div class="shortdescription">Team sport played with a ball</div>
<p>Association football is a team sport played between two teams.
It is linked to <a href="./Sport">sport</a> and <a href="./Ball_game">ball games</a>.</p>
<p>See also <a href="./Sport">sport</a> again,
<a href="./File:Ball.jpg">an image</a>,
<a href="./Help:Contents">help</a>,
<a href="./List_of_sports">a list</a>,
<a href="./Albert%27s_page">percent encoded</a>,
<a href="./Article#Section">an anchor</a>,
<a href="./Q=V">a query</a>,
and <a href="https://example.org/External">external</a>.</p>
<p>   </p>
<table><tr><td><a href="./Ignored_in_table">table link</a></td></tr></table>
</body></html>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClientWithBaseURL(server.URL, "token", "wikitopics-test", "dev@example.org", 5*time.Second)
}

func TestFetchPageParsesArticle(t *testing.T) {
	var gotPath, gotAuth, gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(articleHTML))
	})

	page, err := client.FetchPage(context.Background(), "Association_football", "en")
	require.NoError(t, err)

	assert.Equal(t, "/en/page/Association_football/html", gotPath)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "wikitopics-test (dev@example.org)", gotUA)

	assert.Equal(t, "Association_football", page.Name)
	assert.Equal(t, "en", page.LangCode)
	assert.Equal(t, "Team sport played with a ball", page.ShortDescription)

	require.Len(t, page.Paragraphs, 2, "blank paragraphs are dropped")

	assert.Equal(t, []string{"Sport", "Ball_game"}, page.LinkNames)
	assert.NotContains(t, page.LinkNames, "List_of_sports")
	assert.NotContains(t, page.LinkNames, "File:Ball.jpg")
	assert.NotContains(t, page.LinkNames, "Help:Contents")
	assert.NotContains(t, page.LinkNames, "Albert%27s_page")
	assert.NotContains(t, page.LinkNames, "Article#Section")
	assert.NotContains(t, page.LinkNames, "Q=V")
	assert.NotContains(t, page.LinkNames, "Ignored_in_table")
}

func TestFetchPageNoShortDescription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Text only.</p></body></html>`))
	})

	page, err := client.FetchPage(context.Background(), "Plain", "en")
	require.NoError(t, err)
	assert.Equal(t, NoShortDescription, page.ShortDescription)
}

func TestFetchPageZeroParagraphsIsValid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div>no paragraphs here</div></body></html>`))
	})

	page, err := client.FetchPage(context.Background(), "Redirect_page", "en")
	require.NoError(t, err)
	assert.Empty(t, page.Paragraphs)
	assert.Empty(t, page.LinkNames)
}

func TestFetchPageNon200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchPage(context.Background(), "Missing", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchLanguages(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"code": "de", "name": "Deutsch", "key": "Fußball", "title": "Fußball"},
			{"code": "fr", "name": "français", "key": "Football", "title": "Football"}
		]`))
	})

	languages, err := client.FetchLanguages(context.Background(), "Association_football", "en")
	require.NoError(t, err)

	assert.Equal(t, "/en/page/Association_football/links/language", gotPath)
	require.Len(t, languages, 2)
	assert.Equal(t, "de", languages[0].Code)
	assert.Equal(t, "Fußball", languages[0].Key)
}

func TestFetchLanguagesNon200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchLanguages(context.Background(), "Association_football", "en")
	require.Error(t, err)
}
