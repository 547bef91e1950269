// Package search holds the CV search form state and runs it against the API.
package search

import (
	"strings"
	"time"

	"github.com/kalambet/cvdesk/internal/cvapi"
	"github.com/kalambet/cvdesk/internal/paging"
)

// Model is the search form: query, filters, sort and page cursor. It performs
// no I/O. The zero value is not usable; call NewModel.
type Model struct {
	params         cvapi.SearchParameters
	pages          paging.State
	defaultPerPage int
}

// NewModel returns a Model with default parameters. perPage <= 0 selects
// cvapi.DefaultPerPage.
func NewModel(perPage int) Model {
	if perPage <= 0 {
		perPage = cvapi.DefaultPerPage
	}
	perPage = cvapi.ClampPerPage(perPage)
	m := Model{defaultPerPage: perPage}
	m.Clear()
	return m
}

func (m *Model) SetQuery(q string) {
	m.params.Query = strings.TrimSpace(q)
}

// SetDateRange sets both bounds; either may be empty. An inverted or
// malformed range is rejected and leaves the model unchanged.
func (m *Model) SetDateRange(from, to string) error {
	if err := cvapi.ValidateDateRange(from, to); err != nil {
		return err
	}
	m.params.DateFrom = strings.TrimSpace(from)
	m.params.DateTo = strings.TrimSpace(to)
	return nil
}

func (m *Model) SetSort(field cvapi.SortField, order cvapi.SortOrder) error {
	if !field.Valid() {
		return cvapi.Invalid("sort_by", "unknown sort field %q", field)
	}
	if !order.Valid() {
		return cvapi.Invalid("sort_order", "unknown sort order %q", order)
	}
	m.params.SortBy = field
	m.params.SortOrder = order
	return nil
}

func (m *Model) SetLogic(l cvapi.Logic) error {
	if !l.Valid() {
		return cvapi.Invalid("logic", "unknown logic %q", l)
	}
	m.params.Logic = l
	return nil
}

// SetPageSize clamps n to the allowed bounds and returns to page 1. It
// reports false when the size did not change.
func (m *Model) SetPageSize(n int) bool {
	return m.pages.Resize(cvapi.ClampPerPage(n))
}

// ApplyDatePreset replaces the date range with the preset resolved at now.
// PresetCustom leaves the current range alone.
func (m *Model) ApplyDatePreset(p Preset, now time.Time) error {
	if p == PresetCustom {
		return nil
	}
	from, to, ok := ResolvePreset(p, now)
	if !ok {
		return cvapi.Invalid("preset", "unknown date preset %q", p)
	}
	m.params.DateFrom, m.params.DateTo = from, to
	return nil
}

func (m *Model) NextPage() bool { return m.pages.Advance(1) }

func (m *Model) PrevPage() bool { return m.pages.Advance(-1) }

// GoToPage reports whether n was a valid, different page.
func (m *Model) GoToPage(n int) bool { return m.pages.JumpTo(n) }

// FirstPage moves back to page 1 for a new search, keeping the totals.
func (m *Model) FirstPage() {
	m.pages.Page = 1
}

// Clear restores every parameter to its default and forgets the totals.
func (m *Model) Clear() {
	m.params = cvapi.DefaultSearchParameters()
	m.params.PerPage = m.defaultPerPage
	m.pages = paging.New(m.defaultPerPage)
}

// Params returns the parameters for the next request.
func (m Model) Params() cvapi.SearchParameters {
	p := m.params
	p.Page = m.pages.Page
	p.PerPage = m.pages.PerPage
	return p
}

func (m Model) Pagination() paging.State { return m.pages }

// ApplyResult records the pagination a server reported for a request built
// from m.
func ApplyResult[T any](m *Model, res cvapi.Page[T]) {
	m.pages.Update(res.Page, res.PerPage, res.Total, res.TotalPages)
}
