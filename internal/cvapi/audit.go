package cvapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

// EncodeAuditQuery builds the query for GET /api/audit_logs. page and
// per_page are always sent; filters only when non-empty.
func EncodeAuditQuery(q AuditLogQuery) url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	setString(v, "user", q.User)
	setString(v, "action", q.Action)
	setString(v, "start_date", q.StartDate)
	setString(v, "end_date", q.EndDate)
	return v
}

type auditListWire struct {
	Logs       []AuditLogEntry `json:"logs"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	Error      string          `json:"error"`
}

// AuditLogs fetches one page of the audit trail.
func (c *Client) AuditLogs(ctx context.Context, q AuditLogQuery) (Page[AuditLogEntry], error) {
	var out auditListWire
	if _, err := c.do(ctx, request{
		op:     "audit logs",
		method: http.MethodGet,
		path:   "/api/audit_logs",
		query:  EncodeAuditQuery(q),
	}, &out); err != nil {
		return Page[AuditLogEntry]{}, err
	}
	if out.Logs == nil {
		msg := out.Error
		if msg == "" {
			msg = "missing logs field"
		}
		return Page[AuditLogEntry]{}, &ProtocolError{Op: "audit logs", Err: errors.New(msg)}
	}
	if out.PerPage == 0 {
		out.PerPage = q.PerPage
	}
	return newPage(out.Logs, out.Page, out.PerPage, out.Total, out.TotalPages), nil
}

// AuditLogByID fetches one entry with lookup metadata.
func (c *Client) AuditLogByID(ctx context.Context, id string) (AuditLogDetail, error) {
	pid, err := pathID(id)
	if err != nil {
		return AuditLogDetail{}, err
	}
	var out struct {
		AuditLog *AuditLogEntry `json:"audit_log"`
		Metadata AuditMetadata  `json:"metadata"`
	}
	if _, err := c.do(ctx, request{
		op:     "audit log",
		method: http.MethodGet,
		path:   "/api/audit_logs/" + pid,
	}, &out); err != nil {
		return AuditLogDetail{}, err
	}
	if out.AuditLog == nil {
		return AuditLogDetail{}, &ProtocolError{Op: "audit log", Err: errors.New("missing audit_log field")}
	}
	return AuditLogDetail{Entry: *out.AuditLog, Metadata: out.Metadata}, nil
}

// FilterOptions lists the distinct users and actions for filter dropdowns.
func (c *Client) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var out FilterOptions
	if _, err := c.do(ctx, request{
		op:     "audit filter options",
		method: http.MethodGet,
		path:   "/api/audit_logs/actions",
	}, &out); err != nil {
		return FilterOptions{}, err
	}
	if out.Users == nil {
		out.Users = []string{}
	}
	if out.Actions == nil {
		out.Actions = []string{}
	}
	return out, nil
}

// AuditDateRange reports the earliest and latest audit timestamps.
func (c *Client) AuditDateRange(ctx context.Context) (AuditDateRange, error) {
	var out AuditDateRange
	if _, err := c.do(ctx, request{
		op:     "audit date range",
		method: http.MethodGet,
		path:   "/api/audit_logs/date_range",
	}, &out); err != nil {
		return AuditDateRange{}, err
	}
	return out, nil
}
