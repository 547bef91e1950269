package cvapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// EncodeSearchQuery builds the query string for GET /api/search. Every field
// left at its unset value is omitted; every set field appears exactly once.
func EncodeSearchQuery(p SearchParameters) url.Values {
	q := url.Values{}
	setString(q, "q", p.Query)
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	setString(q, "date_from", p.DateFrom)
	setString(q, "date_to", p.DateTo)
	setString(q, "sort_by", string(p.SortBy))
	setString(q, "sort_order", string(p.SortOrder))
	setString(q, "logic", string(p.Logic))
	return q
}

func setString(q url.Values, key, val string) {
	if v := strings.TrimSpace(val); v != "" {
		q.Set(key, v)
	}
}

type cvListWire struct {
	Results    []CVSummary `json:"results"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
}

func (w cvListWire) page() Page[CVSummary] {
	return newPage(w.Results, w.Page, w.PerPage, w.Total, w.TotalPages)
}

// Search runs a filtered, sorted, paginated CV search.
func (c *Client) Search(ctx context.Context, p SearchParameters) (Page[CVSummary], error) {
	var out cvListWire
	if _, err := c.do(ctx, request{
		op:     "search",
		method: http.MethodGet,
		path:   "/api/search",
		query:  EncodeSearchQuery(p),
	}, &out); err != nil {
		return Page[CVSummary]{}, err
	}
	if out.PerPage == 0 {
		out.PerPage = p.PerPage
	}
	return out.page(), nil
}

// RecentUploads lists CVs uploaded within the last days, newest first.
func (c *Client) RecentUploads(ctx context.Context, days, page, perPage int) (Page[CVSummary], error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out cvListWire
	if _, err := c.do(ctx, request{
		op:     "recent uploads",
		method: http.MethodGet,
		path:   "/api/recent_uploads",
		query:  q,
	}, &out); err != nil {
		return Page[CVSummary]{}, err
	}
	if out.PerPage == 0 {
		out.PerPage = perPage
	}
	return out.page(), nil
}

// Indexes returns every index category with its terms.
func (c *Client) Indexes(ctx context.Context) (Indexes, error) {
	var raw map[string][]json.RawMessage
	if _, err := c.do(ctx, request{
		op:     "indexes",
		method: http.MethodGet,
		path:   "/api/indexes",
	}, &raw); err != nil {
		return nil, err
	}
	out := make(Indexes, len(raw))
	for cat, items := range raw {
		terms := make([]string, 0, len(items))
		for _, it := range items {
			s, err := scalarString(it)
			if err != nil {
				// Non-scalar terms are kept in their JSON form.
				s = string(it)
			}
			terms = append(terms, s)
		}
		out[cat] = terms
	}
	return out, nil
}
