package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	mserrors "github.com/dillonfkhanna/multi-search/internal/errors"
	"github.com/dillonfkhanna/multi-search/internal/index"
	"github.com/dillonfkhanna/multi-search/internal/search"
	"github.com/dillonfkhanna/multi-search/pkg/version"
)

const serverName = "multisearch"

// Index is the part of index.Manager the server needs.
type Index interface {
	Search(ctx context.Context, text string, opts search.Options) (*search.Response, error)
	Status(ctx context.Context) (*index.Status, error)
}

// Server bridges AI clients with the document index.
type Server struct {
	mcp    *mcp.Server
	index  Index
	logger *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Search the local document index. Combines keyword (BM25) and semantic ranking, so queries match by meaning as well as exact words. Returns one result per document with the best matching passage.",
	},
	{
		Name:        "index_status",
		Description: "Report document and chunk counts and which embedding model is active. Use to check whether semantic search is available.",
	},
}

// NewServer creates an MCP server over idx.
func NewServer(idx Index) (*Server, error) {
	if idx == nil {
		return nil, errors.New("index is required")
	}
	s := &Server{
		index:  idx,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name. search returns markdown, index_status
// returns an IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		return s.handleSearchTool(ctx, args)
	case "index_status":
		out, err := s.indexStatus(ctx)
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	input := SearchInput{Query: query}
	if l, ok := args["limit"].(float64); ok {
		input.Limit = int(l)
	}
	if k, ok := args["keyword_only"].(bool); ok {
		input.KeywordOnly = k
	}

	resp, err := s.search(ctx, input)
	if err != nil {
		return "", err
	}
	return FormatSearchResults(query, resp), nil
}

// search validates input and runs the query, logging it under a request ID.
func (s *Server) search(ctx context.Context, input SearchInput) (*search.Response, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	limit := clampLimit(input.Limit, defaultLimit, 1, maxLimit)

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit),
		slog.Bool("keyword_only", input.KeywordOnly))

	resp, err := s.index.Search(ctx, input.Query, search.Options{Limit: limit, KeywordOnly: input.KeywordOnly})
	duration := time.Since(start)
	if err != nil {
		attrs := append([]any{
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
		}, mserrors.LogAttrs(err)...)
		s.logger.Error("search failed", attrs...)
		return nil, MapError(err)
	}

	attrs := []any{
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
	}
	if resp.IsDegraded() {
		attrs = append(attrs, slog.String("degraded", joinModes(resp.Degraded)))
	}
	s.logger.Info("search completed", attrs...)
	return resp, nil
}

func (s *Server) indexStatus(ctx context.Context) (IndexStatusOutput, error) {
	st, err := s.index.Status(ctx)
	if err != nil {
		return IndexStatusOutput{}, MapError(err)
	}
	return ToIndexStatusOutput(st), nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	resp, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Results: make([]SearchResultOutput, 0, len(resp.Results)),
		TookMS:  resp.Took.Milliseconds(),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	for _, m := range resp.Degraded {
		out.Degraded = append(out.Degraded, string(m))
	}
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}
	return nil, out, nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
