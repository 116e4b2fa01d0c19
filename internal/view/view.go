// Package view holds the pure projections the display and dashboard render from the
// attendance list. Nothing here mutates its input.
package view

import (
	"strings"
	"time"

	"checkin/internal/attendance"
)

// GenderFilter selects entries by gender. FilterAll passes every entry.
type GenderFilter string

const (
	FilterAll    GenderFilter = "All"
	FilterMale   GenderFilter = "Male"
	FilterFemale GenderFilter = "Female"
)

// ParseGenderFilter maps a query value to a filter; unknown values mean FilterAll.
func ParseGenderFilter(s string) GenderFilter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return FilterMale
	case "female":
		return FilterFemale
	default:
		return FilterAll
	}
}

const (
	DefaultPageSize = 10
	DashboardFeed   = 5
	DisplayFeed     = 20
	RecentWindow    = 30 * time.Minute
)

// Search keeps entries whose full name or phone contains term, ignoring case.
func Search(entries []attendance.Entry, term string) []attendance.Entry {
	term = strings.ToLower(term)
	out := make([]attendance.Entry, 0, len(entries))
	for _, e := range entries {
		if term == "" ||
			strings.Contains(strings.ToLower(e.FullName()), term) ||
			strings.Contains(strings.ToLower(e.Phone), term) {
			out = append(out, e)
		}
	}
	return out
}

// FilterGender keeps entries matching g exactly.
func FilterGender(entries []attendance.Entry, g GenderFilter) []attendance.Entry {
	out := make([]attendance.Entry, 0, len(entries))
	for _, e := range entries {
		if g == FilterAll || g == "" || string(e.Gender) == string(g) {
			out = append(out, e)
		}
	}
	return out
}

// Page is one page of a filtered list.
type Page struct {
	Entries  []attendance.Entry `json:"entries"`
	Page     int                `json:"page"`
	Pages    int                `json:"pages"`
	PageSize int                `json:"page_size"`
	Total    int                `json:"total"`
}

// PageCount returns ceil(n/size).
func PageCount(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return (n + size - 1) / size
}

// Paginate returns the requested page, clamping page into [1, max(1, pages)].
func Paginate(entries []attendance.Entry, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := PageCount(len(entries), size)
	page = clamp(page, 1, max(1, pages))
	start := (page - 1) * size
	end := min(start+size, len(entries))
	items := []attendance.Entry{}
	if start < end {
		items = append(items, entries[start:end]...)
	}
	return Page{Entries: items, Page: page, Pages: pages, PageSize: size, Total: len(entries)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Recent returns the first n entries of a newest-first list.
func Recent(entries []attendance.Entry, n int) []attendance.Entry {
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	return append([]attendance.Entry{}, entries[:n]...)
}

// Initials returns the upper-cased first letters of first and last name.
func Initials(first, last string) string {
	var b strings.Builder
	for _, s := range []string{first, last} {
		for _, r := range s {
			b.WriteRune(r)
			break
		}
	}
	return strings.ToUpper(b.String())
}
