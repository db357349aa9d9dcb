package tripcontext

import "strings"

// cities maps lowercase spellings to display names. Multi-word names match any whitespace.
var cities = map[string]string{
	"paris":       "Paris",
	"london":      "London",
	"tokyo":       "Tokyo",
	"rome":        "Rome",
	"new york":    "New York",
	"barcelona":   "Barcelona",
	"amsterdam":   "Amsterdam",
	"berlin":      "Berlin",
	"bangkok":     "Bangkok",
	"dubai":       "Dubai",
	"mumbai":      "Mumbai",
	"los angeles": "Los Angeles",
	"delhi":       "Delhi",
	"bangalore":   "Bangalore",
	"bengaluru":   "Bangalore",
}

// interestKeywords maps an interest tag to the words that imply it. Plurals match too.
var interestKeywords = map[string][]string{
	"art":       {"art", "museum"},
	"food":      {"food", "cuisine"},
	"history":   {"history", "historical"},
	"nature":    {"nature", "park"},
	"shopping":  {"shopping", "market"},
	"nightlife": {"nightlife", "club"},
}

var months = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// cityName normalizes a matched spelling ("new   york") to its display name
func cityName(match string) (string, bool) {
	name, ok := cities[strings.Join(strings.Fields(match), " ")]
	return name, ok
}

// cityAlternation renders the gazetteer as a regexp alternation
func cityAlternation() string {
	keys := make([]string, 0, len(cities))
	for k := range cities {
		keys = append(keys, strings.ReplaceAll(k, " ", `\s+`))
	}
	return strings.Join(keys, "|")
}

func monthNumber(name string) int {
	for i, m := range months {
		if m == name {
			return i + 1
		}
	}
	return 0
}
