// Package scraper implements the page extraction tools served to the
// Scrapper worker. Pages are rendered in a headless browser so
// script-heavy sites produce real content, then converted to markdown.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const pageTimeout = 45 * time.Second

// Link is one hyperlink found on a page
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Scraper renders pages in a headless browser and extracts content
type Scraper struct {
	browser *rod.Browser
	logger  zerolog.Logger
}

// ScraperConfig holds scraper configuration
type ScraperConfig struct {
	ControlURL string // Optional CDP endpoint, a browser is launched when empty
	Logger     zerolog.Logger
}

// NewScraper launches or attaches to a browser
func NewScraper(cfg ScraperConfig) (*Scraper, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &Scraper{
		browser: browser,
		logger:  cfg.Logger.With().Str("component", "scraper").Logger(),
	}

	s.logger.Info().Msg("Browser ready")
	return s, nil
}

// fetchHTML renders a page and returns its HTML
func (s *Scraper) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(pageTimeout)

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load timed out: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}

	return html, nil
}

// ScrapePage renders a page and returns its content as markdown
func (s *Scraper) ScrapePage(ctx context.Context, pageURL string) (string, error) {
	html, err := s.fetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}

	parsed, _ := url.Parse(pageURL)
	markdown, err := convertHTML(html, parsed.Scheme+"://"+parsed.Host)
	if err != nil {
		return "", err
	}

	s.logger.Debug().Str("url", pageURL).Int("bytes", len(markdown)).Msg("Page scraped")
	return markdown, nil
}

// ExtractLinks renders a page and returns its hyperlinks
func (s *Scraper) ExtractLinks(ctx context.Context, pageURL string) ([]Link, error) {
	html, err := s.fetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)
	return collectLinks(html, base)
}

// Close shuts down the browser
func (s *Scraper) Close() error {
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// convertHTML strips non-content elements and converts to markdown
func convertHTML(html, domain string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg, nav, footer").Remove()

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

// collectLinks pulls absolute hyperlinks out of page HTML
func collectLinks(html string, base *url.URL) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	seen := map[string]bool{}
	var links []Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}

		abs := resolved.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		links = append(links, Link{
			Text: strings.TrimSpace(sel.Text()),
			URL:  abs,
		})
	})

	return links, nil
}
