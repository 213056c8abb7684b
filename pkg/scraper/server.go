package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Server exposes the scraping tools over MCP
type Server struct {
	mcpServer *mcp.Server
	scraper   *Scraper
	logger    zerolog.Logger
}

// ServerConfig holds scrape server configuration
type ServerConfig struct {
	Scraper *Scraper
	Logger  zerolog.Logger
}

// NewServer creates the MCP scrape server and registers its tools
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Scraper == nil {
		return nil, fmt.Errorf("scraper is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "selia-scraper",
		Version: "1.0.0",
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		scraper:   cfg.Scraper,
		logger:    cfg.Logger.With().Str("component", "scrape-server").Logger(),
	}

	s.registerTools()
	return s, nil
}

// ScrapePageParams defines parameters for the scrape_page tool.
type ScrapePageParams struct {
	URL string `json:"url" jsonschema:"URL of the page to scrape"`
}

// ExtractLinksParams defines parameters for the extract_links tool.
type ExtractLinksParams struct {
	URL string `json:"url" jsonschema:"URL of the page to collect links from"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "scrape_page",
		Description: "Render a web page in a headless browser and return its content as markdown.",
	}, s.handleScrapePage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "extract_links",
		Description: "Render a web page and return the absolute hyperlinks it contains.",
	}, s.handleExtractLinks)
}

func (s *Server) handleScrapePage(ctx context.Context, req *mcp.CallToolRequest, params *ScrapePageParams) (*mcp.CallToolResult, any, error) {
	markdown, err := s.scraper.ScrapePage(ctx, params.URL)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(markdown), nil, nil
}

func (s *Server) handleExtractLinks(ctx context.Context, req *mcp.CallToolRequest, params *ExtractLinksParams) (*mcp.CallToolResult, any, error) {
	links, err := s.scraper.ExtractLinks(ctx, params.URL)
	if err != nil {
		return errorResult(err), nil, nil
	}

	payload, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(string(payload)), nil, nil
}

// Run serves MCP over stdio, blocking until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns an SSE handler for serving MCP over HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
