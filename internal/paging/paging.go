// Package paging tracks the position within a server-side paginated listing.
package paging

// State is the page cursor for one listing. Page is 1-based.
type State struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// New returns a State on page 1 with no known results.
func New(perPage int) State {
	return State{Page: 1, PerPage: perPage}
}

// TotalPagesFor returns ceil(total/perPage), or 0 when perPage is not positive.
func TotalPagesFor(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

func (s State) lastPage() int {
	if s.TotalPages < 1 {
		return 1
	}
	return s.TotalPages
}

// JumpTo moves to page n. It returns false and leaves the state untouched
// when n is outside [1, TotalPages] or already current.
func (s *State) JumpTo(n int) bool {
	if n < 1 || n > s.lastPage() || n == s.Page {
		return false
	}
	s.Page = n
	return true
}

// Advance moves delta pages forward (negative goes back).
func (s *State) Advance(delta int) bool {
	return s.JumpTo(s.Page + delta)
}

// Resize changes the page size and returns to page 1. Setting the current
// size is a no-op.
func (s *State) Resize(perPage int) bool {
	if perPage <= 0 || perPage == s.PerPage {
		return false
	}
	s.PerPage = perPage
	s.Page = 1
	return true
}

func (s State) IsFirst() bool { return s.Page <= 1 }

func (s State) IsLast() bool { return s.Page >= s.lastPage() }

// Update records what the server reported. totalPages <= 0 is recomputed
// from total, and page is clamped into range.
func (s *State) Update(page, perPage, total, totalPages int) {
	if perPage > 0 {
		s.PerPage = perPage
	}
	if total < 0 {
		total = 0
	}
	s.Total = total
	if totalPages <= 0 {
		totalPages = TotalPagesFor(total, s.PerPage)
	}
	s.TotalPages = totalPages
	switch {
	case page < 1:
		s.Page = 1
	case page > s.lastPage():
		s.Page = s.lastPage()
	default:
		s.Page = page
	}
}

// Reset forgets the totals and returns to page 1.
func (s *State) Reset() {
	s.Page = 1
	s.Total = 0
	s.TotalPages = 0
}

// Offset is the zero-based index of the first item on the current page.
func (s State) Offset() int {
	return (s.Page - 1) * s.PerPage
}

// Range returns the 1-based positions of the first and last item shown, or
// 0, 0 when the listing is empty.
func (s State) Range() (first, last int) {
	if s.Total == 0 {
		return 0, 0
	}
	first = s.Offset() + 1
	last = s.Offset() + s.PerPage
	if last > s.Total {
		last = s.Total
	}
	if first > last {
		return 0, 0
	}
	return first, last
}
