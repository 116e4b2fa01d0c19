package view

import "checkin/internal/attendance"

// Pager is the filter and page cursor of one table view. Changing the search term or
// the gender filter sends the cursor back to page 1. A Pager rebuilt per request only
// sees a change when it is first set to the filter the page index belongs to.
type Pager struct {
	search   string
	gender   GenderFilter
	page     int
	pageSize int
}

// NewPager creates a cursor on page 1.
func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{gender: FilterAll, page: 1, pageSize: pageSize}
}

// SetSearch changes the search term.
func (p *Pager) SetSearch(term string) {
	if term != p.search {
		p.search = term
		p.page = 1
	}
}

// SetGender changes the gender filter.
func (p *Pager) SetGender(g GenderFilter) {
	if g == "" {
		g = FilterAll
	}
	if g != p.gender {
		p.gender = g
		p.page = 1
	}
}

// SetPage moves to page; it is clamped when the view is applied.
func (p *Pager) SetPage(page int) { p.page = page }

func (p *Pager) Search() string       { return p.search }
func (p *Pager) Gender() GenderFilter { return p.gender }
func (p *Pager) CurrentPage() int     { return p.page }
func (p *Pager) PageSize() int        { return p.pageSize }

// Filter applies search and gender filter.
func (p *Pager) Filter(entries []attendance.Entry) []attendance.Entry {
	return FilterGender(Search(entries, p.search), p.gender)
}

// Apply filters entries and returns the current page. The stored page is clamped to
// the result.
func (p *Pager) Apply(entries []attendance.Entry) Page {
	pg := Paginate(p.Filter(entries), p.page, p.pageSize)
	p.page = pg.Page
	return pg
}
