package tripcontext

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

var (
	toCityPattern   = regexp.MustCompile(`\bto\s+(` + cityAlternation() + `)\b`)
	fromCityPattern = regexp.MustCompile(`\bfrom\s+(` + cityAlternation() + `)\b`)
	anyCityPattern  = regexp.MustCompile(`\b(` + cityAlternation() + `)\b`)

	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	monthDayPattern = regexp.MustCompile(`\b(` + strings.Join(months, "|") + `)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	checkInPattern  = regexp.MustCompile(`\bcheck\s*-?\s*in\s*(?:on\s*)?(?:the\s*)?(\d{1,2})\b`)
	checkOutPattern = regexp.MustCompile(`\bcheck\s*-?\s*out\s*(?:on\s*)?(?:the\s*)?(\d{1,2})\b`)

	budgetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})+|\d+)`),
		regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})+|\d+)\s*dollars\b`),
		regexp.MustCompile(`\bbudget\s*of\s*\$?(\d+)`),
	}

	// the trailing group catches "for 5 days", "for 3-night" and similar non-headcounts
	forCountPattern = regexp.MustCompile(`\bfor\s+(\d{1,2})\b(\s*(?:days?|nights?|weeks?|months?|years?|hours?|minutes?|am|pm|%|-|/|:))?`)

	interestPatterns = compileInterests()
)

// travelerRule is one step of the ordered traveler-count lookup
type travelerRule func(text string) int

var travelerRules = []travelerRule{
	countBefore(regexp.MustCompile(`\b(\d+)\s*(?:passengers?|people|persons?|travell?ers?|adults?)\b`)),
	forCount,
	countBefore(regexp.MustCompile(`\bfamily\s+of\s+(\d+)\b`)),
	fixedCount(regexp.MustCompile(`\ba\s+couple\b|\btwo\b`), 2),
	fixedCount(regexp.MustCompile(`\b(?:solo|alone|just\s+me|myself|one\s+person)\b`), 1),
}

// Extractor derives a best-effort TripContext from conversation text. It never fails:
// anything it cannot parse is left unset.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor. now resolves the year of month-day mentions;
// nil means time.Now.
func NewExtractor(now func() time.Time) *Extractor {
	if now == nil {
		now = time.Now
	}
	return &Extractor{now: now}
}

// Extract reads the user and assistant messages of a conversation
func (e *Extractor) Extract(messages []repository.Message) repository.TripContext {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == repository.RoleUser || m.Role == repository.RoleAssistant {
			parts = append(parts, m.Content)
		}
	}
	return e.ExtractText(strings.Join(parts, " "))
}

// ExtractText runs every field extractor over one block of text
func (e *Extractor) ExtractText(text string) repository.TripContext {
	lower := strings.ToLower(text)

	var tc repository.TripContext
	tc.Destination, tc.Origin = extractLocations(lower)
	tc.Dates = e.extractDates(lower)
	tc.Travelers = extractTravelers(lower)
	tc.Interests = extractInterests(lower)
	tc.Budget = extractBudget(lower)
	return tc
}

func extractLocations(text string) (destination, origin string) {
	if m := toCityPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		destination, _ = cityName(m[len(m)-1][1])
	}
	if m := fromCityPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		origin, _ = cityName(m[len(m)-1][1])
	}
	if destination != "" || origin != "" {
		return destination, origin
	}

	for _, m := range anyCityPattern.FindAllStringSubmatch(text, -1) {
		name, ok := cityName(m[1])
		if !ok {
			continue
		}
		if destination == "" {
			destination = name
			continue
		}
		if name != destination {
			origin = name
			break
		}
	}
	return destination, origin
}

func (e *Extractor) extractDates(text string) *repository.DateRange {
	var iso []string
	for _, m := range isoDatePattern.FindAllStringSubmatch(text, -1) {
		if _, err := time.Parse("2006-01-02", m[1]); err != nil {
			continue
		}
		if !contains(iso, m[1]) {
			iso = append(iso, m[1])
		}
	}

	now := e.now()
	var (
		monthDays []string
		baseMonth int
	)
	for _, m := range monthDayPattern.FindAllStringSubmatch(text, -1) {
		month := monthNumber(m[1])
		baseMonth = month
		day, _ := strconv.Atoi(m[2])
		if d, ok := resolveDate(now, month, day); ok && !contains(monthDays, d) {
			monthDays = append(monthDays, d)
		}
	}

	var start, end string
	if len(iso) > 0 {
		start = iso[0]
		if len(iso) > 1 {
			end = iso[len(iso)-1]
		}
	}

	if baseMonth > 0 {
		if start == "" {
			start = lastDayMention(checkInPattern, text, now, baseMonth)
		}
		if end == "" {
			end = lastDayMention(checkOutPattern, text, now, baseMonth)
		}
	}
	if len(monthDays) > 0 {
		if start == "" {
			start = monthDays[0]
		}
		if last := monthDays[len(monthDays)-1]; end == "" && last != start {
			end = last
		}
	}

	if start == "" && end == "" {
		return nil
	}
	if start != "" && end != "" && start > end {
		start, end = end, start
	}
	return &repository.DateRange{Start: start, End: end}
}

// resolveDate places month/day in the current year, or next year when the month has passed
func resolveDate(now time.Time, month, day int) (string, bool) {
	year := now.Year()
	if month < int(now.Month()) {
		year++
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return "", false
	}
	return d.Format("2006-01-02"), true
}

func lastDayMention(pattern *regexp.Regexp, text string, now time.Time, month int) string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	day, _ := strconv.Atoi(matches[len(matches)-1][1])
	d, _ := resolveDate(now, month, day)
	return d
}

func extractTravelers(text string) int {
	for _, rule := range travelerRules {
		if n := rule(text); n > 0 {
			return n
		}
	}
	return 0
}

func countBefore(pattern *regexp.Regexp) travelerRule {
	return func(text string) int {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			return 0
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		return n
	}
}

func fixedCount(pattern *regexp.Regexp, n int) travelerRule {
	return func(text string) int {
		if pattern.MatchString(text) {
			return n
		}
		return 0
	}
}

func forCount(text string) int {
	for _, m := range forCountPattern.FindAllStringSubmatch(text, -1) {
		if m[2] != "" {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func compileInterests() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(interestKeywords))
	for tag, words := range interestKeywords {
		patterns[tag] = regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)s?\b`)
	}
	return patterns
}

func extractInterests(text string) []string {
	var tags []string
	for tag, pattern := range interestPatterns {
		if pattern.MatchString(text) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

func extractBudget(text string) string {
	for _, pattern := range budgetPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return fmt.Sprintf("$%s", strings.ReplaceAll(m[1], ",", ""))
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
