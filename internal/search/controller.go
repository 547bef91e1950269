package search

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/dispatch"
	"github.com/kalambet/cvdesk/internal/paging"
)

// Searcher is the part of the API the controller needs.
type Searcher interface {
	Search(ctx context.Context, p cvapi.SearchParameters) (cvapi.Page[cvapi.CVSummary], error)
	RecentUploads(ctx context.Context, days, page, perPage int) (cvapi.Page[cvapi.CVSummary], error)
}

// Snapshot is what a view renders.
type Snapshot struct {
	Params     cvapi.SearchParameters
	Pagination paging.State
	Results    []cvapi.CVSummary
	// RecentDays is non-zero when Results come from the recent uploads
	// listing rather than a search.
	RecentDays int
	Err        error
}

// Controller runs a Model against a Searcher. Only the response to the most
// recent request is applied; earlier in-flight requests are cancelled and
// their results dropped. A failed request keeps the previous results and
// page on display.
type Controller struct {
	api    Searcher
	logger *slog.Logger
	guard  dispatch.Guard
	subs   dispatch.Notifier[Snapshot]

	// Guarded by guard.
	model      Model
	target     Model
	results    []cvapi.CVSummary
	recentDays int
	err        error
}

type ControllerOption func(*Controller)

func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

func NewController(api Searcher, m Model, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:     api,
		logger:  slog.Default(),
		model:   m,
		target:  m,
		results: []cvapi.CVSummary{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Update edits the form. fn's changes are discarded if it returns an error.
func (c *Controller) Update(fn func(m *Model) error) error {
	var err error
	c.guard.Do(func() {
		next := c.model
		if err = fn(&next); err != nil {
			return
		}
		c.model = next
		c.target = next
	})
	return err
}

// Run starts a new search from page 1 with the current form.
func (c *Controller) Run(ctx context.Context) error {
	_, err := c.navigate(ctx, func(m *Model) bool { m.FirstPage(); return true }, false)
	return err
}

// Recent lists uploads from the last days instead of searching.
func (c *Controller) Recent(ctx context.Context, days int) error {
	if days < 1 {
		return cvapi.Invalid("days", "must be at least 1")
	}
	var next Model
	c.guard.Do(func() {
		next = c.model
		next.FirstPage()
		c.target = next
	})
	return c.fetch(ctx, next, days)
}

// Next fetches the following page. It reports false without a request when
// already on the last page.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*Model).NextPage, true)
}

func (c *Controller) Prev(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*Model).PrevPage, true)
}

// GoTo fetches page n. Out-of-range pages are ignored.
func (c *Controller) GoTo(ctx context.Context, n int) (bool, error) {
	return c.navigate(ctx, func(m *Model) bool { return m.GoToPage(n) }, true)
}

// Resize changes the page size and refetches page 1. The current size is a
// no-op.
func (c *Controller) Resize(ctx context.Context, n int) (bool, error) {
	return c.navigate(ctx, func(m *Model) bool { return m.SetPageSize(n) }, true)
}

// Clear resets the form and results and abandons any request in flight.
func (c *Controller) Clear() {
	c.guard.Invalidate()
	var snap Snapshot
	c.guard.Do(func() {
		c.model.Clear()
		c.target = c.model
		c.results = []cvapi.CVSummary{}
		c.recentDays = 0
		c.err = nil
		snap = c.snapshotLocked()
	})
	c.subs.Notify(snap)
}

// navigate applies step to the newest requested state so repeated calls
// while a request is in flight accumulate. keepMode keeps paging through
// recent uploads if that is what is displayed.
func (c *Controller) navigate(ctx context.Context, step func(*Model) bool, keepMode bool) (bool, error) {
	var (
		next  Model
		moved bool
		days  int
	)
	c.guard.Do(func() {
		next = c.target
		if moved = step(&next); moved {
			c.target = next
		}
		if keepMode {
			days = c.recentDays
		}
	})
	if !moved {
		return false, nil
	}
	return true, c.fetch(ctx, next, days)
}

func (c *Controller) fetch(ctx context.Context, next Model, recentDays int) error {
	ticket, reqCtx := c.guard.Begin(ctx)
	params := next.Params()

	var (
		res cvapi.Page[cvapi.CVSummary]
		err error
	)
	if recentDays > 0 {
		res, err = c.api.RecentUploads(reqCtx, recentDays, params.Page, params.PerPage)
	} else {
		res, err = c.api.Search(reqCtx, params)
	}

	var snap Snapshot
	commitErr := c.guard.Commit(ticket, func() {
		if err != nil {
			c.err = err
			c.target = c.model
		} else {
			ApplyResult(&next, res)
			c.model = next
			c.target = next
			c.results = res.Items
			c.recentDays = recentDays
			c.err = nil
		}
		snap = c.snapshotLocked()
	})
	if errors.Is(commitErr, dispatch.ErrStale) {
		c.logger.Debug("dropping stale search response", "page", params.Page, "ticket", ticket)
		return commitErr
	}
	if err != nil {
		c.logger.Warn("search failed", "query", params.Query, "page", params.Page, "error", err)
	}
	c.subs.Notify(snap)
	return err
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Params:     c.model.Params(),
		Pagination: c.model.Pagination(),
		Results:    append([]cvapi.CVSummary{}, c.results...),
		RecentDays: c.recentDays,
		Err:        c.err,
	}
}

// Snapshot returns the current displayed state.
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	c.guard.Do(func() { snap = c.snapshotLocked() })
	return snap
}

// Subscribe registers fn to receive a Snapshot after every applied change.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return c.subs.Subscribe(fn)
}
