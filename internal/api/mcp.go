// Package api exposes the CV service to MCP clients. The tools are read-only:
// search, view, recent uploads, indexes and the audit trail.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cvdesk/internal/audit"
	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/search"
	"github.com/kalambet/cvdesk/internal/storage"
)

// CVReader is the part of the CV service the MCP tools read from.
type CVReader interface {
	search.Searcher
	audit.API
	GetCV(ctx context.Context, id string) (cvapi.CVRecord, error)
	Indexes(ctx context.Context) (cvapi.Indexes, error)
}

// SearchHistory records and lists searches. *storage.Store implements it.
type SearchHistory interface {
	RecordSearch(e storage.SearchEntry) error
	RecentSearches(limit int) ([]storage.SearchEntry, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	API     CVReader
	Tokens  audit.TokenSource
	History SearchHistory // optional; searches are not recorded when nil
	PerPage int           // default search page size
	Logger  *slog.Logger
	Now     func() time.Time
}

func (d MCPDeps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d MCPDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// NewMCPServer creates an MCP server with all cvdesk tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cvdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cvdesk: search and read CVs and the audit trail of a CV management service."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_cvs",
			mcp.WithDescription("Search CVs by comma-separated terms across name, email, skills and text."),
			mcp.WithString("query", mcp.Description("Comma-separated search terms")),
			mcp.WithString("logic", mcp.Description("How terms combine: and (default) or or")),
			mcp.WithString("date_from", mcp.Description("Earliest upload date, YYYY-MM-DD")),
			mcp.WithString("date_to", mcp.Description("Latest upload date, YYYY-MM-DD")),
			mcp.WithString("preset", mcp.Description("Date preset instead of explicit dates: today, yesterday, last_7_days, last_30_days, last_3_months, last_6_months, last_year")),
			mcp.WithString("sort_by", mcp.Description("upload_date (default), name or filename")),
			mcp.WithString("sort_order", mcp.Description("desc (default) or asc")),
			mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
			mcp.WithNumber("per_page", mcp.Description("Results per page, 5 to 100")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_uploads",
			mcp.WithDescription("List CVs uploaded in the last N days."),
			mcp.WithNumber("days", mcp.Description("Number of days (default 7)")),
			mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
		),
		mcpRecent(deps),
	)

	s.AddTool(
		mcp.NewTool("get_cv",
			mcp.WithDescription("Fetch the full structured record of one CV."),
			mcp.WithString("id", mcp.Description("CV identifier"), mcp.Required()),
		),
		mcpGetCV(deps),
	)

	s.AddTool(
		mcp.NewTool("cv_indexes",
			mcp.WithDescription("List the server's search indexes (skills, companies, ...)."),
		),
		mcpIndexes(deps),
	)

	s.AddTool(
		mcp.NewTool("audit_logs",
			mcp.WithDescription("List audit log entries, newest first."),
			mcp.WithString("user", mcp.Description("Only entries by this user")),
			mcp.WithString("action", mcp.Description("Only entries with this action")),
			mcp.WithString("date_from", mcp.Description("Earliest date, YYYY-MM-DD")),
			mcp.WithString("date_to", mcp.Description("Latest date, YYYY-MM-DD")),
			mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
			mcp.WithNumber("per_page", mcp.Description("Entries per page (default 100)")),
		),
		mcpAuditLogs(deps),
	)

	s.AddTool(
		mcp.NewTool("audit_stats",
			mcp.WithDescription("Total audit entries, entries today and distinct users."),
		),
		mcpAuditStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cvdesk://history",
			"Recent Searches",
			mcp.WithResourceDescription("Last 20 searches run from this machine"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cvdesk://audit/filters",
			"Audit Filter Options",
			mcp.WithResourceDescription("Users and actions present in the audit log"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFilters(deps),
	)

	return s
}

type pageResult[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toPageResult[T any](p cvapi.Page[T]) pageResult[T] {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return pageResult[T]{Items: items, Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
}

// searchParams builds the request from tool arguments through search.Model
// so the same validation applies as in the CLI.
func searchParams(deps MCPDeps, req mcp.CallToolRequest) (cvapi.SearchParameters, error) {
	m := search.NewModel(deps.PerPage)
	m.SetQuery(req.GetString("query", ""))

	if l := req.GetString("logic", ""); l != "" {
		if err := m.SetLogic(cvapi.Logic(l)); err != nil {
			return cvapi.SearchParameters{}, err
		}
	}
	if p := req.GetString("preset", ""); p != "" {
		if err := m.ApplyDatePreset(search.Preset(p), deps.now()); err != nil {
			return cvapi.SearchParameters{}, err
		}
	} else if err := m.SetDateRange(req.GetString("date_from", ""), req.GetString("date_to", "")); err != nil {
		return cvapi.SearchParameters{}, err
	}

	def := cvapi.DefaultSearchParameters()
	field := cvapi.SortField(req.GetString("sort_by", string(def.SortBy)))
	order := cvapi.SortOrder(req.GetString("sort_order", string(def.SortOrder)))
	if err := m.SetSort(field, order); err != nil {
		return cvapi.SearchParameters{}, err
	}
	if n := req.GetInt("per_page", 0); n > 0 {
		m.SetPageSize(n)
	}

	p := m.Params()
	if page := req.GetInt("page", 1); page > 1 {
		p.Page = page
	}
	return p, nil
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := searchParams(deps, req)
		if err != nil {
			return mcpError(cvapi.ErrorMessage(err)), nil
		}

		res, err := deps.API.Search(ctx, params)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %s", cvapi.ErrorMessage(err))), nil
		}

		if deps.History != nil {
			entry := storage.SearchEntry{
				Query:     params.Query,
				DateFrom:  params.DateFrom,
				DateTo:    params.DateTo,
				SortBy:    string(params.SortBy),
				SortOrder: string(params.SortOrder),
				Logic:     string(params.Logic),
				Total:     res.Total,
			}
			if err := deps.History.RecordSearch(entry); err != nil {
				deps.logger().Warn("recording search failed", "error", err)
			}
		}
		return mcpJSON(toPageResult(res))
	}
}

func mcpRecent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := req.GetInt("days", 7)
		if days < 1 {
			return mcpError("days must be at least 1"), nil
		}
		page := req.GetInt("page", 1)
		if page < 1 {
			page = 1
		}
		res, err := deps.API.RecentUploads(ctx, days, page, cvapi.ClampPerPage(deps.PerPage))
		if err != nil {
			return mcpError(fmt.Sprintf("recent uploads failed: %s", cvapi.ErrorMessage(err))), nil
		}
		return mcpJSON(toPageResult(res))
	}
}

func mcpGetCV(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return mcpError("id is required"), nil
		}
		rec, err := deps.API.GetCV(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("get cv %s failed: %s", id, cvapi.ErrorMessage(err))), nil
		}
		return mcpJSON(rec)
	}
}

func mcpIndexes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		idx, err := deps.API.Indexes(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("indexes failed: %s", cvapi.ErrorMessage(err))), nil
		}
		return mcpJSON(idx)
	}
}

func mcpAuditLogs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := []audit.Option{audit.WithLogger(deps.logger()), audit.WithClock(deps.now)}
		if n := req.GetInt("per_page", 0); n > 0 {
			opts = append(opts, audit.WithPageSize(n))
		}
		q := audit.New(deps.API, deps.Tokens, opts...)

		f := audit.Filter{
			User:     req.GetString("user", ""),
			Action:   req.GetString("action", ""),
			DateFrom: req.GetString("date_from", ""),
			DateTo:   req.GetString("date_to", ""),
		}
		if err := q.SetFilter(f); err != nil {
			return mcpError(cvapi.ErrorMessage(err)), nil
		}
		if err := q.ApplyFilters(ctx); err != nil {
			return mcpError(fmt.Sprintf("audit logs failed: %s", cvapi.ErrorMessage(err))), nil
		}
		if page := req.GetInt("page", 1); page > 1 {
			moved, err := q.GoTo(ctx, page)
			if err != nil {
				return mcpError(fmt.Sprintf("audit logs failed: %s", cvapi.ErrorMessage(err))), nil
			}
			if !moved {
				return mcpError(fmt.Sprintf("page %d is out of range (%d pages)", page, q.Snapshot().Pagination.TotalPages)), nil
			}
		}

		snap := q.Snapshot()
		return mcpJSON(pageResult[cvapi.AuditLogEntry]{
			Items:      snap.Entries,
			Page:       snap.Pagination.Page,
			PerPage:    snap.Pagination.PerPage,
			Total:      snap.Pagination.Total,
			TotalPages: snap.Pagination.TotalPages,
		})
	}
}

func mcpAuditStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := audit.New(deps.API, deps.Tokens, audit.WithLogger(deps.logger()), audit.WithClock(deps.now))
		return mcpText(q.ComputeQuickStats(ctx).Summary()), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type searchSummary struct {
			At    string `json:"at"`
			Query string `json:"query"`
			From  string `json:"date_from,omitempty"`
			To    string `json:"date_to,omitempty"`
			Logic string `json:"logic,omitempty"`
			Total int    `json:"total"`
		}

		summaries := []searchSummary{}
		if deps.History != nil {
			entries, err := deps.History.RecentSearches(20)
			if err != nil {
				return nil, fmt.Errorf("failed to read search history: %w", err)
			}
			for _, e := range entries {
				summaries = append(summaries, searchSummary{
					At:    e.CreatedAt.Format(time.RFC3339),
					Query: e.Query,
					From:  e.DateFrom,
					To:    e.DateTo,
					Logic: e.Logic,
					Total: e.Total,
				})
			}
		}
		return jsonResource(req.Params.URI, summaries)
	}
}

func mcpResourceFilters(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		opts, err := deps.API.FilterOptions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get filter options: %w", err)
		}
		return jsonResource(req.Params.URI, opts)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
