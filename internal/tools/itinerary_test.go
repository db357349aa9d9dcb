package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItinerary_Paris(t *testing.T) {
	it := NewItinerary(nil)
	doc, err := it.Generate("Paris", "2025-07-05", "2025-07-07", 2, []string{"art", "food"}, "$3,000")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc, "# 🌟 3-Day Paris Itinerary\n"))
	assert.Contains(t, doc, "**Travelers:** 2 people")
	assert.Contains(t, doc, "**Interests:** art, food")
	assert.Contains(t, doc, "## Day 1 - Saturday, July 05, 2025")
	assert.Contains(t, doc, "- Gentle walking tour of Montmartre")
	assert.Contains(t, doc, "- Visit Musée d'Orsay")
	assert.Contains(t, doc, "- Explore Saint-Germain")
	assert.Contains(t, doc, "## Day 3 - Monday, July 07, 2025")
	assert.Contains(t, doc, "- Departure to airport")

	assert.Contains(t, doc, "- Total Budget: $3000 (2 people)")
	assert.Contains(t, doc, "- Per Person: $1500")
	assert.Contains(t, doc, "- Daily Budget: $500/person/day")
	assert.Contains(t, doc, "  - Accommodation: 30-40% ($175/day)")
	assert.Contains(t, doc, "  - Food: 30-35% ($160/day)")
	assert.Contains(t, doc, "  - Activities: 20-25% ($110/day)")
	assert.Contains(t, doc, "  - Transport/Misc: 10-15% ($55/day)")
}

func TestItinerary_MorningFollowsInterestPriority(t *testing.T) {
	it := NewItinerary(nil)

	doc, err := it.Generate("Rome", "2025-09-01", "2025-09-03", 1, []string{"history"}, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "**Travelers:** 1 person")
	assert.Contains(t, doc, "- Explore Vatican Museums")
	assert.NotContains(t, doc, "Total Budget")

	doc, err = it.Generate("Rome", "2025-09-01", "2025-09-03", 1, []string{"art"}, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "- Visit Spanish Steps", "rome has no art list so general is used")
	assert.Contains(t, doc, "**Interests:** art")

	doc, err = it.Generate("Los Angeles", "2025-09-01", "2025-09-03", 2, nil, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "**Interests:** general sightseeing")
	assert.Contains(t, doc, "- Visit Venice Beach")
}

func TestItinerary_UnknownDestinationUsesFallback(t *testing.T) {
	doc, err := NewItinerary(nil).Generate("Kyoto", "2025-10-01", "2025-10-01", 2, nil, "flexible")
	require.NoError(t, err)

	assert.Contains(t, doc, "# 🌟 1-Day Kyoto Itinerary")
	assert.Contains(t, doc, "- Gentle walking tour of Montmartre")
	assert.Contains(t, doc, "- Kyoto has excellent public transportation")
	assert.Contains(t, doc, "- Budget allocation depends on your travel style")
}

func TestItinerary_InvokeErrors(t *testing.T) {
	it := NewItinerary(nil)

	tests := []struct {
		name string
		args Args
		want string
	}{
		{"bad start", Args{"destination": "Paris", "start_date": "July 5", "end_date": "2025-07-07", "travelers": 2}, "invalid start date"},
		{"bad end", Args{"destination": "Paris", "start_date": "2025-07-05", "end_date": "2025-02-30", "travelers": 2}, "invalid end date"},
		{"reversed", Args{"destination": "Paris", "start_date": "2025-07-07", "end_date": "2025-07-05", "travelers": 2}, "before start"},
		{"no travelers", Args{"destination": "Paris", "start_date": "2025-07-05", "end_date": "2025-07-07", "travelers": 0}, "travelers"},
		{"too long", Args{"destination": "Paris", "start_date": "2025-01-01", "end_date": "2025-12-31", "travelers": 2}, "exceeds the 30-day limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := it.Invoke(context.Background(), tt.args)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out.Content, "Error generating itinerary: "))
			assert.Contains(t, out.Content, tt.want)
		})
	}
}

func TestItinerary_DayLimit(t *testing.T) {
	it := NewItinerary(nil)

	doc, err := it.Generate("Paris", "2025-07-01", "2025-07-30", 2, nil, "")
	require.NoError(t, err)
	assert.Contains(t, doc, "## Day 30 - ")

	_, err = it.Generate("Paris", "2025-07-01", "2025-07-31", 2, nil, "")
	assert.ErrorContains(t, err, "31 days")
}

func TestLoadCatalogue(t *testing.T) {
	_, err := LoadCatalogue([]byte("fallback: atlantis\ndestinations:\n  paris:\n    general: [a]\n    neighborhoods: [b]\n"))
	assert.ErrorContains(t, err, "atlantis")

	_, err = LoadCatalogue([]byte("fallback: paris\ndestinations:\n  paris:\n    general: [a]\n"))
	assert.ErrorContains(t, err, "neighborhoods")

	c, err := LoadCatalogue([]byte("fallback: paris\ndestinations:\n  paris:\n    general: [a]\n    neighborhoods: [b]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.lookup("Nowhere")["general"])
}

func TestParseBudget(t *testing.T) {
	n, err := ParseBudget("$2,500")
	require.NoError(t, err)
	assert.Equal(t, 2500, n)

	n, err = ParseBudget("1800 USD")
	require.NoError(t, err)
	assert.Equal(t, 1800, n)

	_, err = ParseBudget("$2k-3k")
	assert.Error(t, err)
}
