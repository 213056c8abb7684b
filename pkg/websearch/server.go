package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

// Server exposes the search tools over MCP
type Server struct {
	mcpServer *mcp.Server
	searcher  *Searcher
	logger    zerolog.Logger
}

// ServerConfig holds search server configuration
type ServerConfig struct {
	Searcher *Searcher
	Logger   zerolog.Logger
}

// NewServer creates the MCP search server and registers its tools
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "selia-search",
		Version: "1.0.0",
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		searcher:  cfg.Searcher,
		logger:    cfg.Logger.With().Str("component", "search-server").Logger(),
	}

	s.registerTools()
	return s, nil
}

// WebSearchParams defines parameters for the web_search tool.
type WebSearchParams struct {
	Query      string `json:"query" jsonschema:"Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (default 8)"`
}

// ReadURLParams defines parameters for the read_url tool.
type ReadURLParams struct {
	URL string `json:"url" jsonschema:"URL of the page to read"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web and return a list of results with title, URL and snippet.",
	}, s.handleWebSearch)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "read_url",
		Description: "Fetch a web page and return its content as markdown.",
	}, s.handleReadURL)
}

func (s *Server) handleWebSearch(ctx context.Context, req *mcp.CallToolRequest, params *WebSearchParams) (*mcp.CallToolResult, any, error) {
	results, err := s.searcher.Search(ctx, params.Query, params.MaxResults)
	if err != nil {
		return errorResult(err), nil, nil
	}

	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil
	}

	return textResult(string(payload)), nil, nil
}

func (s *Server) handleReadURL(ctx context.Context, req *mcp.CallToolRequest, params *ReadURLParams) (*mcp.CallToolResult, any, error) {
	markdown, err := s.searcher.ReadURL(ctx, params.URL)
	if err != nil {
		return errorResult(err), nil, nil
	}

	return textResult(markdown), nil, nil
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
