// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the content pipeline as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/casekit/internal/detector"
	"github.com/starford/casekit/internal/intel"
	"github.com/starford/casekit/internal/metrics"
	"github.com/starford/casekit/internal/search"
)

const patternFormatURI = "casekit://pattern-format"

// Server wraps the MCP server with casekit tools.
type Server struct {
	mcp     *server.MCPServer
	intel   *intel.Service
	search  *search.Engine
	metrics *metrics.Metrics
}

// New creates a new MCP server with all tools registered. m may be nil.
func New(svc *intel.Service, se *search.Engine, m *metrics.Metrics, version string) *Server {
	s := &Server{intel: svc, search: se, metrics: m}

	s.mcp = server.NewMCPServer(
		"casekit",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("analyze_content",
		mcp.WithDescription("Classify pasted or uploaded content (case number, console log, URL, "+
			"support request, image, mixed or plain text), extract metadata and find similar "+
			"or duplicate cases."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The raw content")),
		mcp.WithString("source", mcp.Description("clipboard (default), drag-drop or file-upload")),
		mcp.WithString("format", mcp.Description("text (default) or html")),
	), s.analyzeContent)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Ranked search across indexed records."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithString("types", mcp.Description("Optional comma-separated record types")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("suggest_category",
		mcp.WithDescription("Suggest up to three categories for content, best first."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content to categorise")),
	), s.suggestCategory)

	s.mcp.AddTool(mcp.NewTool("find_similar",
		mcp.WithDescription("Find stored cases similar to the content."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The content to compare")),
	), s.findSimilar)

	s.mcp.AddTool(mcp.NewTool("learn_category",
		mcp.WithDescription("Teach a category for content. Read the pattern format first via "+
			"get_pattern_contract or the "+patternFormatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content a human has categorised")),
		mcp.WithString("category", mcp.Required(), mcp.Description("The chosen category")),
		mcp.WithNumber("confidence", mcp.Description("Confidence in [0,1], default 0.8")),
	), s.learnCategory)

	s.mcp.AddTool(mcp.NewTool("pattern_feedback",
		mcp.WithDescription("Report whether a suggestion backed by a pattern was correct."),
		mcp.WithString("pattern_id", mcp.Required(), mcp.Description("Pattern id from a suggestion")),
		mcp.WithBoolean("correct", mcp.Required(), mcp.Description("Whether the suggestion was right")),
	), s.patternFeedback)

	s.mcp.AddTool(mcp.NewTool("get_pattern_contract",
		mcp.WithDescription("Returns how patterns are matched, learned and maintained."),
	), s.getPatternContract)

	s.mcp.AddResource(
		mcp.NewResource(patternFormatURI, "Pattern Format",
			mcp.WithResourceDescription("How learned category patterns work."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPatternFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) analyzeContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source := detector.Source(req.GetString("source", string(detector.SourceClipboard)))
	switch source {
	case detector.SourceClipboard, detector.SourceDragDrop, detector.SourceFileUpload:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown source: %s", source)), nil
	}

	switch strings.ToLower(req.GetString("format", "text")) {
	case "text":
		return jsonResult(s.intel.Analyze(ctx, content, source)), nil
	case "html":
		return jsonResult(s.intel.AnalyzeHTML(ctx, content, source)), nil
	default:
		return mcp.NewToolResultError("format must be text or html"), nil
	}
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var types []string
	for _, t := range strings.Split(req.GetString("types", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	start := time.Now()
	resp, err := s.search.Search(ctx, search.Query{
		Text:    query,
		Filters: search.Filters{EntityTypes: types},
		Limit:   req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.metrics.ObserveSearch(time.Since(start), resp.Stats.Total)
	if len(resp.Results) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) suggestCategory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	suggestions, err := s.intel.SuggestCategory(ctx, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(suggestions) == 0 {
		return mcp.NewToolResultText("no suggestions"), nil
	}
	return jsonResult(suggestions), nil
}

func (s *Server) findSimilar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.intel.FindSimilar(ctx, s.intel.Fingerprint(content), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no similar cases"), nil
	}
	return jsonResult(matches), nil
}

func (s *Server) learnCategory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.intel.Learn(ctx, content, category, req.GetFloat("confidence", 0.8))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("learned %s pattern %q for %s (id %s)", p.PatternType, p.Pattern, p.Category, p.ID)), nil
}

func (s *Server) patternFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("pattern_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	correct, err := req.RequireBool("correct")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.intel.Feedback(ctx, id, correct)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("success rate of %s is now %.2f", p.ID, p.SuccessRate)), nil
}

func (s *Server) getPatternContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PatternFormatContract), nil
}

func (s *Server) readPatternFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      patternFormatURI,
			MIMEType: "text/markdown",
			Text:     PatternFormatContract,
		},
	}, nil
}
