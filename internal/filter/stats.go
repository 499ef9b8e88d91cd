package filter

import "github.com/linnemanlabs/dispatch/internal/alert"

// Stats counts alerts per category.
type Stats map[alert.Category]int

// Total is the sum over all categories.
func (s Stats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Aggregate counts the filtered set when s narrows the view, otherwise the
// full set. Every category is present in the result, possibly with zero.
func Aggregate(all, filtered []alert.Alert, s State) Stats {
	src := all
	if s.Active() {
		src = filtered
	}

	stats := make(Stats, len(alert.Categories()))
	for _, c := range alert.Categories() {
		stats[c] = 0
	}
	for _, a := range src {
		stats[a.Category]++
	}
	return stats
}
