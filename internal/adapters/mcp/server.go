// Package mcpadapter exposes verse search as MCP tools over stdio.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

const (
	ServerName    = "bible-rag"
	ServerVersion = "1.0.0"
)

type Server struct {
	mcp    *server.MCPServer
	search ports.SearchService
	lookup ports.LookupService
	cache  ports.CacheAdmin
}

// NewServer registers search_verses, get_verse when lookup is non-nil, and
// flush_cache when cache is non-nil.
func NewServer(search ports.SearchService, lookup ports.LookupService, cache ports.CacheAdmin) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		search: search,
		lookup: lookup,
		cache:  cache,
	}
	s.mcp.AddTool(searchVersesTool(), s.handleSearchVerses)
	if lookup != nil {
		s.mcp.AddTool(getVerseTool(), s.handleGetVerse)
	}
	if cache != nil {
		s.mcp.AddTool(flushCacheTool(), s.handleFlushCache)
	}
	return s
}

// Serve blocks until stdin closes.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func searchVersesTool() mcp.Tool {
	return mcp.NewTool("search_verses",
		mcp.WithDescription("Search Bible verses by meaning and keywords across one or more translations"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language or keyword query, English or Korean")),
		mcp.WithArray("translations", mcp.Required(),
			mcp.Description("Translation abbreviations, e.g. KJV, NIV, KRV"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("max_results", mcp.Description("Maximum passages to return (default 10)")),
		mcp.WithString("testament", mcp.Description("Restrict to OT, NT or both"), mcp.Enum("OT", "NT", "both")),
		mcp.WithString("genre", mcp.Description("Restrict to a book genre, e.g. gospel, epistle, poetry")),
		mcp.WithArray("books", mcp.Description("Restrict to book abbreviations"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("expanded_queries", mcp.Description("Alternative phrasings searched alongside the query"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("include_original", mcp.Description("Attach Hebrew/Greek word data")),
		mcp.WithBoolean("include_cross_refs", mcp.Description("Attach cross references (default true)")),
	)
}

func getVerseTool() mcp.Tool {
	return mcp.NewTool("get_verse",
		mcp.WithDescription("Read one verse by reference in several translations, with neighbouring verses"),
		mcp.WithString("book", mcp.Required(), mcp.Description("Book name, Korean name or abbreviation, e.g. John, 요한복음, JHN")),
		mcp.WithNumber("chapter", mcp.Required(), mcp.Description("Chapter number")),
		mcp.WithNumber("verse", mcp.Required(), mcp.Description("Verse number")),
		mcp.WithArray("translations", mcp.Description("Translation abbreviations; all when omitted"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("include_original", mcp.Description("Attach Hebrew/Greek word data")),
		mcp.WithBoolean("include_cross_refs", mcp.Description("Attach cross references (default true)")),
	)
}

func flushCacheTool() mcp.Tool {
	return mcp.NewTool("flush_cache",
		mcp.WithDescription("Drop every cached search response"),
	)
}

func (s *Server) handleSearchVerses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	translations := stringSliceArg(args, "translations")
	if len(translations) == 0 {
		return mcp.NewToolResultError("translations parameter is required"), nil
	}

	resp, err := s.search.Search(ctx, domain.SearchRequest{
		Query:        query,
		Translations: translations,
		MaxResults:   intArg(args, "max_results", 0),
		Filters: domain.SearchFilters{
			Testament: stringArg(args, "testament"),
			Genre:     stringArg(args, "genre"),
			Books:     stringSliceArg(args, "books"),
		},
		IncludeOriginal:  boolArg(args, "include_original", false),
		IncludeCrossRefs: boolArg(args, "include_cross_refs", true),
		ExpandedQueries:  stringSliceArg(args, "expanded_queries"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

func (s *Server) handleGetVerse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	detail, err := s.lookup.GetVerse(ctx, domain.VerseLookup{
		Book:             strings.TrimSpace(stringArg(args, "book")),
		Chapter:          intArg(args, "chapter", 0),
		Verse:            intArg(args, "verse", 0),
		Translations:     stringSliceArg(args, "translations"),
		IncludeOriginal:  boolArg(args, "include_original", false),
		IncludeCrossRefs: boolArg(args, "include_cross_refs", true),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(detail)), nil
}

func (s *Server) handleFlushCache(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.cache.FlushCache(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("flush failed: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]int{"flushed": n})), nil
}

func formatJSON(data any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(out)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]any, key string, defaultValue int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

func boolArg(args map[string]any, key string, defaultValue bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return defaultValue
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return strings.Split(v, ",")
	default:
		return nil
	}
}
