package repository

import (
	"encoding/json"
	"sort"
	"strings"
)

// DateRange holds ISO calendar dates (YYYY-MM-DD)
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// TripContext is the sparse summary of trip intent. Zero values mean "unknown".
type TripContext struct {
	Destination string     `json:"destination,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Dates       *DateRange `json:"dates,omitempty"`
	Travelers   int        `json:"travelers,omitempty"`
	Interests   []string   `json:"interests,omitempty"`
	Budget      string     `json:"budget,omitempty"`
}

// IsEmpty reports whether no field is set
func (c TripContext) IsEmpty() bool {
	return c.Destination == "" && c.Origin == "" && c.Travelers == 0 &&
		len(c.Interests) == 0 && c.Budget == "" &&
		(c.Dates == nil || (c.Dates.Start == "" && c.Dates.End == ""))
}

// Merge returns c with every field present in update applied on top.
// Absent fields in update never clear a known value; dates merge start and end independently.
func (c TripContext) Merge(update TripContext) TripContext {
	merged := c.Clone()
	if update.Destination != "" {
		merged.Destination = update.Destination
	}
	if update.Origin != "" {
		merged.Origin = update.Origin
	}
	if update.Dates != nil {
		if merged.Dates == nil {
			merged.Dates = &DateRange{}
		}
		if update.Dates.Start != "" {
			merged.Dates.Start = update.Dates.Start
		}
		if update.Dates.End != "" {
			merged.Dates.End = update.Dates.End
		}
		if merged.Dates.Start == "" && merged.Dates.End == "" {
			merged.Dates = nil
		}
	}
	if update.Travelers > 0 {
		merged.Travelers = update.Travelers
	}
	if len(update.Interests) > 0 {
		merged.Interests = NormalizeInterests(update.Interests)
	}
	if update.Budget != "" {
		merged.Budget = update.Budget
	}
	return merged
}

// Clone returns a deep copy
func (c TripContext) Clone() TripContext {
	out := c
	if c.Dates != nil {
		d := *c.Dates
		out.Dates = &d
	}
	if c.Interests != nil {
		out.Interests = append([]string(nil), c.Interests...)
	}
	return out
}

// NormalizeInterests deduplicates and sorts interest tags
func NormalizeInterests(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// ScoreSession computes the search relevance of one session: two points per distinct
// term found in the serialized context plus one point per occurrence of a term in the
// content of the recent messages. Matching is case-insensitive.
func ScoreSession(tc TripContext, recent []Message, terms []string) (int, SearchMatches) {
	var matches SearchMatches
	raw, _ := json.Marshal(tc)
	contextText := strings.ToLower(string(raw))

	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}

		if strings.Contains(contextText, term) {
			matches.ContextMatches++
		}
		for _, msg := range recent {
			matches.MessageMatches += strings.Count(strings.ToLower(msg.Content), term)
		}
	}
	return matches.ContextMatches*2 + matches.MessageMatches, matches
}

// RankSearchResults drops zero scores and orders by score then last activity, both descending
func RankSearchResults(results []SearchResult) []SearchResult {
	ranked := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.RelevanceScore > 0 {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RelevanceScore != ranked[j].RelevanceScore {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		}
		return ranked[i].LastActivity.After(ranked[j].LastActivity)
	})
	return ranked
}

// SortByActivity orders sessions by last activity, newest first
func SortByActivity(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
}

// SplitTerms parses a comma or whitespace separated query into search terms
func SplitTerms(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
