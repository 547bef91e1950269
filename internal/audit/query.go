// Package audit holds the audit log browser state: filters, page cursor and
// quick statistics.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/dispatch"
	"github.com/kalambet/cvdesk/internal/paging"
)

// DefaultPerPage is the page size of the audit browser.
const DefaultPerPage = 100

// API is the part of the CV service the audit browser uses.
type API interface {
	AuditLogs(ctx context.Context, q cvapi.AuditLogQuery) (cvapi.Page[cvapi.AuditLogEntry], error)
	AuditLogByID(ctx context.Context, id string) (cvapi.AuditLogDetail, error)
	FilterOptions(ctx context.Context) (cvapi.FilterOptions, error)
	AuditDateRange(ctx context.Context) (cvapi.AuditDateRange, error)
	BatchStatus(ctx context.Context, batchID, token string) (cvapi.BatchStatus, error)
}

type TokenSource interface {
	Token() string
}

// Filter narrows the audit log. Empty fields do not filter.
type Filter struct {
	User     string
	Action   string
	DateFrom string
	DateTo   string
}

func (f Filter) normalized() Filter {
	return Filter{
		User:     strings.TrimSpace(f.User),
		Action:   strings.TrimSpace(f.Action),
		DateFrom: strings.TrimSpace(f.DateFrom),
		DateTo:   strings.TrimSpace(f.DateTo),
	}
}

func (f Filter) IsZero() bool { return f == Filter{} }

func (f Filter) query(p paging.State) cvapi.AuditLogQuery {
	return cvapi.AuditLogQuery{
		Page:      p.Page,
		PerPage:   p.PerPage,
		User:      f.User,
		Action:    f.Action,
		StartDate: f.DateFrom,
		EndDate:   f.DateTo,
	}
}

// Snapshot is what a view renders. Filter is the form; Applied is the
// filter that produced Entries.
type Snapshot struct {
	Filter     Filter
	Applied    Filter
	Pagination paging.State
	Entries    []cvapi.AuditLogEntry
	Err        error
}

type Option func(*Query)

func WithLogger(l *slog.Logger) Option {
	return func(q *Query) { q.logger = l }
}

// WithPageSize overrides DefaultPerPage.
func WithPageSize(n int) Option {
	return func(q *Query) {
		if n > 0 {
			q.pages = paging.New(n)
			q.target = q.pages
		}
	}
}

// WithClock sets the source of "today" for quick stats and day presets.
func WithClock(now func() time.Time) Option {
	return func(q *Query) { q.now = now }
}

// Query is the audit browser. Like the search controller, only the newest
// request is applied and a failed request keeps the current page on display.
type Query struct {
	api    API
	tokens TokenSource
	logger *slog.Logger
	now    func() time.Time
	guard  dispatch.Guard
	subs   dispatch.Notifier[Snapshot]

	// Guarded by guard.
	filter  Filter
	applied Filter
	pages   paging.State
	target  paging.State
	entries []cvapi.AuditLogEntry
	err     error
}

func New(api API, tokens TokenSource, opts ...Option) *Query {
	q := &Query{
		api:     api,
		tokens:  tokens,
		logger:  slog.Default(),
		now:     time.Now,
		pages:   paging.New(DefaultPerPage),
		entries: []cvapi.AuditLogEntry{},
	}
	q.target = q.pages
	for _, o := range opts {
		o(q)
	}
	return q
}

// SetFilter replaces the filter form. It does not fetch; call ApplyFilters.
func (q *Query) SetFilter(f Filter) error {
	f = f.normalized()
	if err := cvapi.ValidateDateRange(f.DateFrom, f.DateTo); err != nil {
		return err
	}
	q.guard.Do(func() { q.filter = f })
	return nil
}

// SetLastDays sets the date filter to the trailing days ending today.
func (q *Query) SetLastDays(days int) error {
	if days < 0 {
		return cvapi.Invalid("days", "must not be negative")
	}
	today := q.now()
	q.guard.Do(func() {
		q.filter.DateFrom = today.AddDate(0, 0, -days).Format(cvapi.DateLayout)
		q.filter.DateTo = today.Format(cvapi.DateLayout)
	})
	return nil
}

// ApplyFilters fetches page 1 with the filter form.
func (q *Query) ApplyFilters(ctx context.Context) error {
	var (
		f     Filter
		pages paging.State
	)
	q.guard.Do(func() {
		f = q.filter
		pages = q.target
		pages.Page = 1
		q.target = pages
	})
	return q.fetch(ctx, f, pages)
}

// ClearFilters empties the filter form and fetches page 1 unfiltered.
func (q *Query) ClearFilters(ctx context.Context) error {
	q.guard.Do(func() { q.filter = Filter{} })
	return q.ApplyFilters(ctx)
}

// Refresh refetches the page on display.
func (q *Query) Refresh(ctx context.Context) error {
	var (
		f     Filter
		pages paging.State
	)
	q.guard.Do(func() {
		f = q.applied
		pages = q.pages
		q.target = pages
	})
	return q.fetch(ctx, f, pages)
}

// SetPageSize changes the page size and fetches page 1. The current size
// is a no-op.
func (q *Query) SetPageSize(ctx context.Context, n int) (bool, error) {
	return q.navigate(ctx, func(p *paging.State) bool { return p.Resize(n) })
}

func (q *Query) Next(ctx context.Context) (bool, error) {
	return q.navigate(ctx, func(p *paging.State) bool { return p.Advance(1) })
}

func (q *Query) Prev(ctx context.Context) (bool, error) {
	return q.navigate(ctx, func(p *paging.State) bool { return p.Advance(-1) })
}

func (q *Query) GoTo(ctx context.Context, n int) (bool, error) {
	return q.navigate(ctx, func(p *paging.State) bool { return p.JumpTo(n) })
}

// navigate pages through the listing on display, keeping its filter.
func (q *Query) navigate(ctx context.Context, step func(*paging.State) bool) (bool, error) {
	var (
		f     Filter
		pages paging.State
		moved bool
	)
	q.guard.Do(func() {
		f = q.applied
		pages = q.target
		if moved = step(&pages); moved {
			q.target = pages
		}
	})
	if !moved {
		return false, nil
	}
	return true, q.fetch(ctx, f, pages)
}

func (q *Query) fetch(ctx context.Context, f Filter, pages paging.State) error {
	ticket, reqCtx := q.guard.Begin(ctx)
	res, err := q.api.AuditLogs(reqCtx, f.query(pages))

	var snap Snapshot
	commitErr := q.guard.Commit(ticket, func() {
		if err != nil {
			q.err = err
			q.target = q.pages
		} else {
			pages.Update(res.Page, res.PerPage, res.Total, res.TotalPages)
			q.pages = pages
			q.target = pages
			q.applied = f
			q.entries = res.Items
			q.err = nil
		}
		snap = q.snapshotLocked()
	})
	if errors.Is(commitErr, dispatch.ErrStale) {
		q.logger.Debug("dropping stale audit response", "page", pages.Page, "ticket", ticket)
		return commitErr
	}
	if err != nil {
		q.logger.Warn("fetching audit logs failed", "page", pages.Page, "error", err)
	}
	q.subs.Notify(snap)
	return err
}

func (q *Query) snapshotLocked() Snapshot {
	return Snapshot{
		Filter:     q.filter,
		Applied:    q.applied,
		Pagination: q.pages,
		Entries:    append([]cvapi.AuditLogEntry{}, q.entries...),
		Err:        q.err,
	}
}

func (q *Query) Snapshot() Snapshot {
	var snap Snapshot
	q.guard.Do(func() { snap = q.snapshotLocked() })
	return snap
}

func (q *Query) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return q.subs.Subscribe(fn)
}

// Detail fetches one entry with its lookup metadata.
func (q *Query) Detail(ctx context.Context, id string) (cvapi.AuditLogDetail, error) {
	return q.api.AuditLogByID(ctx, id)
}

// FilterOptions lists the users and actions for the filter form.
func (q *Query) FilterOptions(ctx context.Context) (cvapi.FilterOptions, error) {
	return q.api.FilterOptions(ctx)
}

// DateRange reports the span of the whole audit log.
func (q *Query) DateRange(ctx context.Context) (cvapi.AuditDateRange, error) {
	return q.api.AuditDateRange(ctx)
}

// PollBatchStatus fetches the status of an upload batch once. There is no
// automatic re-polling.
func (q *Query) PollBatchStatus(ctx context.Context, batchID string) (cvapi.BatchStatus, error) {
	return q.api.BatchStatus(ctx, batchID, q.tokens.Token())
}
