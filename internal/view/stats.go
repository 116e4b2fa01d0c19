package view

import (
	"time"

	"checkin/internal/attendance"
)

// Stats aggregates a list for the dashboard and display.
type Stats struct {
	Total       int `json:"total"`
	Male        int `json:"male"`
	Female      int `json:"female"`
	Unspecified int `json:"unspecified"`
	Recent      int `json:"recent"`
}

// ComputeStats counts entries per gender and those checked in within window before now.
func ComputeStats(entries []attendance.Entry, now time.Time, window time.Duration) Stats {
	if window <= 0 {
		window = RecentWindow
	}
	s := Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.Gender {
		case attendance.GenderMale:
			s.Male++
		case attendance.GenderFemale:
			s.Female++
		default:
			s.Unspecified++
		}
		if now.Sub(e.Timestamp) < window {
			s.Recent++
		}
	}
	return s
}

// Slice is one pie chart segment.
type Slice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// GenderBreakdown returns the non-empty gender buckets in Male, Female, Unknown order.
func GenderBreakdown(s Stats) []Slice {
	out := []Slice{}
	for _, sl := range []Slice{
		{Name: "Male", Value: s.Male},
		{Name: "Female", Value: s.Female},
		{Name: "Unknown", Value: s.Unspecified},
	} {
		if sl.Value > 0 {
			out = append(out, sl)
		}
	}
	return out
}
