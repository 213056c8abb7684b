// Package websearch implements the search tools served to the
// Researcher worker: DuckDuckGo web search and a lightweight page
// reader that converts fetched HTML to markdown.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const (
	searchEndpoint   = "https://html.duckduckgo.com/html/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxReadBytes     = 2_000_000
)

// Result is one search hit
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher runs web searches and page reads over plain HTTP
type Searcher struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	maxResults int
	logger     zerolog.Logger
}

// SearcherConfig holds searcher configuration
type SearcherConfig struct {
	HTTPClient *http.Client // Optional
	Endpoint   string       // Optional, defaults to DuckDuckGo
	UserAgent  string       // Optional
	MaxResults int          // Optional, default 8
	Logger     zerolog.Logger
}

// NewSearcher creates a searcher
func NewSearcher(cfg SearcherConfig) *Searcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = searchEndpoint
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 8
	}

	return &Searcher{
		httpClient: client,
		endpoint:   endpoint,
		userAgent:  userAgent,
		maxResults: maxResults,
		logger:     cfg.Logger.With().Str("component", "websearch").Logger(),
	}
}

// Search runs one query and returns ranked results
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	results, err := parseResults(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return nil, err
	}

	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug().Str("query", query).Int("results", len(results)).Msg("Search finished")
	return results, nil
}

// ReadURL fetches a page and returns its content as markdown
func (s *Searcher) ReadURL(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.ParseRequestURI(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	return htmlToMarkdown(string(body), parsed.Scheme+"://"+parsed.Host)
}

// parseResults extracts hits from a DuckDuckGo HTML results page
func parseResults(r io.Reader) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var results []Result
	doc.Find(".result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		})
	})

	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links
func resolveRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// htmlToMarkdown strips non-content elements and converts to markdown
func htmlToMarkdown(html, domain string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg").Remove()

	content, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(content) == "" {
		content = html
	}

	markdown, err := htmltomarkdown.ConvertString(content, converter.WithDomain(domain))
	if err != nil {
		return "", fmt.Errorf("failed to convert to markdown: %w", err)
	}

	return strings.TrimSpace(markdown), nil
}
