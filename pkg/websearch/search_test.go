package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `
<html><body>
<div class="result">
  <a class="result__a" href="https://duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Go Documentation</a>
  <a class="result__snippet">Official Go documentation and tutorials.</a>
</div>
<div class="result">
  <a class="result__a" href="https://go.dev/blog/">The Go Blog</a>
  <a class="result__snippet">News from the Go project.</a>
</div>
<div class="result">
  <span>malformed result without a link</span>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	t.Run("should extract titles, urls and snippets", func(t *testing.T) {
		results, err := parseResults(strings.NewReader(resultsPage))
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "Go Documentation", results[0].Title)
		assert.Equal(t, "https://go.dev/doc/", results[0].URL)
		assert.Equal(t, "Official Go documentation and tutorials.", results[0].Snippet)

		assert.Equal(t, "https://go.dev/blog/", results[1].URL)
	})

	t.Run("should handle an empty page", func(t *testing.T) {
		results, err := parseResults(strings.NewReader("<html><body></body></html>"))
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearcher_Search(t *testing.T) {
	t.Run("should post the query and respect the limit", func(t *testing.T) {
		var gotQuery string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotQuery = r.FormValue("q")
			w.Write([]byte(resultsPage))
		}))
		defer ts.Close()

		s := NewSearcher(SearcherConfig{HTTPClient: ts.Client(), Endpoint: ts.URL, Logger: zerolog.Nop()})
		results, err := s.Search(context.Background(), "golang docs", 1)
		require.NoError(t, err)

		assert.Equal(t, "golang docs", gotQuery)
		assert.Len(t, results, 1)
	})

	t.Run("should reject an empty query", func(t *testing.T) {
		s := NewSearcher(SearcherConfig{Logger: zerolog.Nop()})
		_, err := s.Search(context.Background(), "", 5)
		require.Error(t, err)
	})

	t.Run("should surface non-200 responses", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer ts.Close()

		s := NewSearcher(SearcherConfig{HTTPClient: ts.Client(), Endpoint: ts.URL, Logger: zerolog.Nop()})
		_, err := s.Search(context.Background(), "anything", 5)
		require.Error(t, err)
	})
}

func TestSearcher_ReadURL(t *testing.T) {
	t.Run("should convert a page to markdown", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><head><script>alert(1)</script></head><body><h1>Title</h1><p>Some <b>bold</b> text.</p></body></html>`))
		}))
		defer ts.Close()

		s := NewSearcher(SearcherConfig{HTTPClient: ts.Client(), Logger: zerolog.Nop()})
		markdown, err := s.ReadURL(context.Background(), ts.URL)
		require.NoError(t, err)

		assert.Contains(t, markdown, "# Title")
		assert.Contains(t, markdown, "**bold**")
		assert.NotContains(t, markdown, "alert")
	})

	t.Run("should reject an invalid url", func(t *testing.T) {
		s := NewSearcher(SearcherConfig{Logger: zerolog.Nop()})
		_, err := s.ReadURL(context.Background(), "not a url")
		require.Error(t, err)
	})
}

func TestHTMLToMarkdown(t *testing.T) {
	t.Run("should resolve relative links against the domain", func(t *testing.T) {
		markdown, err := htmlToMarkdown(`<html><body><a href="/doc/">docs</a></body></html>`, "https://go.dev")
		require.NoError(t, err)
		assert.Contains(t, markdown, "https://go.dev/doc/")
	})
}
