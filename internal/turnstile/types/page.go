package types

import "math"

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Page is a 1-based page request.  PerPage <= 0 on a store call means
// "everything".
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps a user-supplied page into the allowed range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset is the number of items before the page.  It saturates at
// math.MaxInt instead of overflowing, so an absurd page number reads as
// "past the end".
func (p Page) Offset() int {
	if p.Page < 1 || p.PerPage <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PerPage {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PerPage
}

type PageInfo struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

func (p Page) Info(total int) PageInfo {
	return PageInfo{Page: p.Page, PerPage: p.PerPage, Total: total}
}

// Window returns the [lo, hi) slice bounds of page p over n items.
func (p Page) Window(n int) (int, int) {
	if p.PerPage <= 0 {
		return 0, n
	}
	lo := max(min(p.Offset(), n), 0)
	hi := lo + min(p.PerPage, n-lo)
	return lo, hi
}
