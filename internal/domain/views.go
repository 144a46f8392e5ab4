package domain

import (
	"sort"
	"strings"
	"time"
)

// FacetAll is the synthetic wildcard category heading every facet list.
const FacetAll = "All"

// MatchesQuery reports whether the event matches a free-text query. The
// query is lowercased and whitespace-tokenized; every token must appear as a
// substring of the event's searchable text. An empty query matches anything.
func MatchesQuery(e Event, query string) bool {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return true
	}
	text := e.SearchText()
	for _, tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}

// MatchesCategory reports whether the event belongs to the given category
// facet. The empty string and FacetAll both act as wildcards.
func MatchesCategory(e Event, category string) bool {
	if category == "" || category == FacetAll {
		return true
	}
	return e.Category == category
}

// FilterEvents returns the events matching both the query and the category,
// preserving input order.
func FilterEvents(events []Event, query, category string) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if MatchesCategory(e, category) && MatchesQuery(e, query) {
			out = append(out, e)
		}
	}
	return out
}

// PartitionByTime splits events into upcoming (start time at or after now,
// ascending) and past (start time before now, descending). Every input event
// lands in exactly one partition. Events whose start time could not be
// parsed carry the zero time, which places them at the tail of past.
func PartitionByTime(events []Event, now time.Time) (upcoming, past []Event) {
	upcoming = make([]Event, 0, len(events))
	past = make([]Event, 0)
	for _, e := range events {
		if !e.StartTime.Before(now) {
			upcoming = append(upcoming, e)
		} else {
			past = append(past, e)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		if !upcoming[i].StartTime.Equal(upcoming[j].StartTime) {
			return upcoming[i].StartTime.Before(upcoming[j].StartTime)
		}
		return upcoming[i].ID < upcoming[j].ID
	})
	sort.Slice(past, func(i, j int) bool {
		if !past[i].StartTime.Equal(past[j].StartTime) {
			return past[i].StartTime.After(past[j].StartTime)
		}
		return past[i].ID < past[j].ID
	})
	return upcoming, past
}

// CategoryFacets returns the distinct categories present in events, sorted
// alphabetically and prefixed with the FacetAll wildcard. Blank categories
// are skipped.
func CategoryFacets(events []Event) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, e := range events {
		if e.Category == "" {
			continue
		}
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		cats = append(cats, e.Category)
	}
	sort.Strings(cats)
	return append([]string{FacetAll}, cats...)
}
