package repository

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTripContext_MergeIsMonotonic(t *testing.T) {
	base := TripContext{
		Destination: "Paris",
		Travelers:   2,
		Interests:   []string{"food", "art"},
		Dates:       &DateRange{Start: "2025-07-05"},
	}

	updates := []TripContext{
		{},
		{Dates: &DateRange{End: "2025-07-10"}},
		{Budget: "$3000"},
		{Origin: "London"},
		{Dates: &DateRange{}},
	}

	current := base
	for _, u := range updates {
		current = current.Merge(u)
		assert.Equal(t, "Paris", current.Destination)
		assert.Equal(t, 2, current.Travelers)
		assert.Equal(t, []string{"art", "food"}, current.Interests)
		assert.Equal(t, "2025-07-05", current.Dates.Start)
	}

	assert.Equal(t, "2025-07-10", current.Dates.End)
	assert.Equal(t, "$3000", current.Budget)
	assert.Equal(t, "London", current.Origin)

	current = current.Merge(TripContext{Destination: "Rome"})
	assert.Equal(t, "Rome", current.Destination)
}

func TestTripContext_MergeDoesNotAliasInput(t *testing.T) {
	base := TripContext{Dates: &DateRange{Start: "2025-01-01"}}
	merged := base.Merge(TripContext{Dates: &DateRange{End: "2025-01-05"}})

	assert.Equal(t, "", base.Dates.End)
	assert.Equal(t, "2025-01-05", merged.Dates.End)
}

func TestTripContext_IsEmpty(t *testing.T) {
	assert.True(t, TripContext{}.IsEmpty())
	assert.True(t, TripContext{Dates: &DateRange{}}.IsEmpty())
	assert.False(t, TripContext{Budget: "$10"}.IsEmpty())
}

func TestTripContext_JSONOmitsUnknownFields(t *testing.T) {
	raw, err := json.Marshal(TripContext{Destination: "Tokyo"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"destination":"Tokyo"}`, string(raw))
}

func TestScoreSession(t *testing.T) {
	tc := TripContext{Destination: "Paris", Interests: []string{"art"}}
	recent := []Message{
		{Role: RoleUser, Content: "Paris in July, Paris in spring"},
		{Role: RoleAssistant, Content: "Great choice for art lovers"},
	}

	score, matches := ScoreSession(tc, recent, []string{"PARIS", "art", "paris", "beach"})

	// paris and art both appear in the context; paris twice and art once in messages
	assert.Equal(t, 2, matches.ContextMatches)
	assert.Equal(t, 3, matches.MessageMatches)
	assert.Equal(t, 7, score)
}

func TestRankSearchResults(t *testing.T) {
	now := time.Now()
	results := []SearchResult{
		{Session: Session{ID: "a", LastActivity: now.Add(-time.Hour)}, RelevanceScore: 3},
		{Session: Session{ID: "b", LastActivity: now}, RelevanceScore: 3},
		{Session: Session{ID: "c", LastActivity: now}, RelevanceScore: 0},
		{Session: Session{ID: "d", LastActivity: now.Add(-2 * time.Hour)}, RelevanceScore: 5},
	}

	ranked := RankSearchResults(results)

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"d", "b", "a"}, ids)
}

func TestSplitTerms(t *testing.T) {
	assert.Equal(t, []string{"paris", "art", "food"}, SplitTerms("paris, art  food,,"))
	assert.Empty(t, SplitTerms(" , "))
}

func TestPreviewAndIDs(t *testing.T) {
	long := strings.Repeat("é", PreviewLength+20)
	assert.Len(t, []rune(Preview(long)), PreviewLength)
	assert.Equal(t, "short", Preview("short"))

	assert.True(t, strings.HasPrefix(NewSessionID(), "session_"))
	assert.Len(t, NewMessageID(), len("msg_")+12)
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestNextTimestamp(t *testing.T) {
	last := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, last.Add(time.Microsecond), NextTimestamp(last, last))
	assert.Equal(t, last.Add(time.Microsecond), NextTimestamp(last, last.Add(-time.Minute)))
	assert.Equal(t, last.Add(time.Second), NextTimestamp(last, last.Add(time.Second)))
	assert.Equal(t, last, NextTimestamp(time.Time{}, last))
}
