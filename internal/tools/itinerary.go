package tools

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ItineraryName = "generate_itinerary"

// MaxItineraryDays caps the length of a generated plan
const MaxItineraryDays = 30

//go:embed data/attractions.yaml
var attractionsYAML []byte

// Catalogue maps a lowercase destination to its attraction categories
type Catalogue struct {
	Fallback     string                         `yaml:"fallback"`
	Destinations map[string]map[string][]string `yaml:"destinations"`
}

// LoadCatalogue parses a YAML attraction catalogue
func LoadCatalogue(raw []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse attraction catalogue: %w", err)
	}
	if _, ok := c.Destinations[c.Fallback]; !ok {
		return nil, fmt.Errorf("attraction catalogue has no fallback destination %q", c.Fallback)
	}
	for name, categories := range c.Destinations {
		if len(categories["general"]) == 0 || len(categories["neighborhoods"]) == 0 {
			return nil, fmt.Errorf("destination %q needs general and neighborhoods entries", name)
		}
	}
	return &c, nil
}

// DefaultCatalogue returns the embedded catalogue
func DefaultCatalogue() *Catalogue {
	c, err := LoadCatalogue(attractionsYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalogue) lookup(destination string) map[string][]string {
	if a, ok := c.Destinations[strings.ToLower(strings.TrimSpace(destination))]; ok {
		return a
	}
	return c.Destinations[c.Fallback]
}

// interest categories that drive the morning slot, in priority order
var morningInterests = []struct {
	category string
	prefix   string
}{
	{"art", "Visit "},
	{"food", ""},
	{"history", "Explore "},
	{"entertainment", "Visit "},
}

// Itinerary generates a deterministic day-by-day plan
type Itinerary struct {
	catalogue *Catalogue
}

// NewItinerary creates the itinerary tool; nil uses the embedded catalogue
func NewItinerary(catalogue *Catalogue) *Itinerary {
	if catalogue == nil {
		catalogue = DefaultCatalogue()
	}
	return &Itinerary{catalogue: catalogue}
}

func (t *Itinerary) Name() string { return ItineraryName }

func (t *Itinerary) Description() string {
	return "Generate a comprehensive day-by-day itinerary for a destination, date range, group size, interests and budget."
}

func (t *Itinerary) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "destination", Type: TypeString, Required: true, ContextKey: BindDestination,
			Description: "Destination city/country"},
		{Name: "start_date", Type: TypeString, Required: true, ContextKey: BindStartDate,
			Description: "Trip start date in YYYY-MM-DD format"},
		{Name: "end_date", Type: TypeString, Required: true, ContextKey: BindEndDate,
			Description: "Trip end date in YYYY-MM-DD format"},
		{Name: "travelers", Type: TypeInteger, Required: true, Min: intPtr(1), ContextKey: BindTravelers,
			Description: "Number of travelers"},
		{Name: "interests", Type: TypeArray, ContextKey: BindInterests,
			Description: "Travel interests"},
		{Name: "budget", Type: TypeString, ContextKey: BindBudget,
			Description: "Budget range"},
	}}
}

// Invoke renders the itinerary. Bad dates produce an error document rather than a
// failed call, so they do not count against the tool's breaker.
func (t *Itinerary) Invoke(_ context.Context, args Args) (Output, error) {
	doc, err := t.Generate(
		args.String("destination"),
		args.String("start_date"),
		args.String("end_date"),
		args.Int("travelers"),
		args.Strings("interests"),
		args.String("budget"),
	)
	if err != nil {
		return Output{Content: fmt.Sprintf("Error generating itinerary: %v", err)}, nil
	}
	return Output{Content: doc}, nil
}

// Generate builds the itinerary document
func (t *Itinerary) Generate(destination, startDate, endDate string, travelers int, interests []string, budget string) (string, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q", startDate)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return "", fmt.Errorf("invalid end date %q", endDate)
	}
	if end.Before(start) {
		return "", errors.New("end date is before start date")
	}
	if travelers <= 0 {
		return "", errors.New("travelers must be positive")
	}

	days := int(end.Sub(start).Hours()/24) + 1
	if days > MaxItineraryDays {
		return "", fmt.Errorf("trip of %d days exceeds the %d-day limit", days, MaxItineraryDays)
	}
	attractions := t.catalogue.lookup(destination)

	interestList := "general sightseeing"
	if len(interests) > 0 {
		interestList = strings.Join(interests, ", ")
	}
	people := "people"
	if travelers == 1 {
		people = "person"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 🌟 %d-Day %s Itinerary\n\n", days, destination)
	fmt.Fprintf(&b, "**Travelers:** %d %s\n", travelers, people)
	fmt.Fprintf(&b, "**Dates:** %s to %s\n", startDate, endDate)
	fmt.Fprintf(&b, "**Interests:** %s\n", interestList)
	if budget != "" {
		fmt.Fprintf(&b, "**Budget:** %s\n", budget)
	}
	b.WriteString("\n---\n\n")

	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day)
		fmt.Fprintf(&b, "## Day %d - %s\n\n", day+1, date.Format("Monday, January 02, 2006"))

		switch {
		case day == 0:
			b.WriteString("### Morning\n")
			b.WriteString("- Arrival at airport\n")
			b.WriteString("- Transfer to hotel (consider pre-booking airport transfer)\n")
			b.WriteString("- Hotel check-in and freshen up\n\n")
			b.WriteString("### Afternoon\n")
			b.WriteString("- Light lunch at a café near your hotel\n")
			fmt.Fprintf(&b, "- Gentle walking tour of %s\n", attractions["neighborhoods"][0])
			b.WriteString("- Get oriented with the city\n\n")
			b.WriteString("### Evening\n")
			b.WriteString("- Welcome dinner at a local restaurant\n")
			b.WriteString("- Early rest to overcome jet lag\n\n")
		case day == days-1:
			b.WriteString("### Morning\n")
			b.WriteString("- Hotel checkout (store luggage if late flight)\n")
			b.WriteString("- Last-minute souvenir shopping\n")
			b.WriteString("- Visit a local café for breakfast\n\n")
			b.WriteString("### Afternoon\n")
			b.WriteString("- Light lunch\n")
			b.WriteString("- Departure to airport (arrive 3 hours before international flight)\n\n")
		default:
			b.WriteString("### Morning (9:00 AM - 12:30 PM)\n")
			fmt.Fprintf(&b, "- %s\n", morningActivity(attractions, interests, day))
			b.WriteString("- Coffee break at a local café\n\n")
			b.WriteString("### Afternoon (12:30 PM - 6:00 PM)\n")
			b.WriteString("- Lunch at a recommended restaurant\n")
			fmt.Fprintf(&b, "- Explore %s\n", pick(attractions["neighborhoods"], day+1))
			b.WriteString("- Shopping or additional sightseeing\n")
			b.WriteString("- Afternoon break at a local café\n\n")
			b.WriteString("### Evening (6:00 PM - 10:00 PM)\n")
			b.WriteString("- Aperitif at a wine bar\n")
			b.WriteString("- Dinner at a local restaurant\n")
			b.WriteString("- Evening stroll or cultural performance\n\n")
		}

		b.WriteString("**🚇 Transportation:** Metro day pass recommended (~€8-15)\n")
		b.WriteString("**💰 Estimated Daily Cost:** €100-150 per person (meals, transport, attractions)\n\n")
		b.WriteString("---\n\n")
	}

	b.WriteString("## 📍 Practical Information\n\n")
	b.WriteString("### Getting Around\n")
	fmt.Fprintf(&b, "- %s has excellent public transportation\n", destination)
	b.WriteString("- Consider buying a multi-day transport pass\n")
	b.WriteString("- Download offline maps and transport apps\n\n")

	b.WriteString("### Budget Breakdown (per person)\n")
	if budget != "" {
		writeBudget(&b, budget, travelers, days)
	}

	b.WriteString("\n### Tips\n")
	fmt.Fprintf(&b, "- Book %s museum tickets online in advance\n", destination)
	b.WriteString("- Many museums offer free entry on first Sunday of month\n")
	b.WriteString("- Restaurant reservations recommended for dinner\n")
	b.WriteString("- Keep copies of important documents\n")

	return b.String(), nil
}

func morningActivity(attractions map[string][]string, interests []string, day int) string {
	for _, mi := range morningInterests {
		if list := attractions[mi.category]; len(list) > 0 && hasInterest(interests, mi.category) {
			return mi.prefix + pick(list, day)
		}
	}
	return "Visit " + pick(attractions["general"], day)
}

func writeBudget(b *strings.Builder, budget string, travelers, days int) {
	amount, err := ParseBudget(budget)
	if err != nil {
		b.WriteString("- Budget allocation depends on your travel style\n")
		return
	}
	perPerson := float64(amount) / float64(travelers)
	daily := perPerson / float64(days)

	fmt.Fprintf(b, "- Total Budget: $%d (%d people)\n", amount, travelers)
	fmt.Fprintf(b, "- Per Person: $%.0f\n", perPerson)
	fmt.Fprintf(b, "- Daily Budget: $%.0f/person/day\n", daily)
	b.WriteString("- Suggested allocation:\n")
	fmt.Fprintf(b, "  - Accommodation: 30-40%% ($%.0f/day)\n", daily*0.35)
	fmt.Fprintf(b, "  - Food: 30-35%% ($%.0f/day)\n", daily*0.32)
	fmt.Fprintf(b, "  - Activities: 20-25%% ($%.0f/day)\n", daily*0.22)
	fmt.Fprintf(b, "  - Transport/Misc: 10-15%% ($%.0f/day)\n", daily*0.11)
}

// ParseBudget reads amounts such as "$3,000" or "2500 USD"
func ParseBudget(budget string) (int, error) {
	s := strings.NewReplacer("$", "", ",", "", "USD", "").Replace(budget)
	return strconv.Atoi(strings.TrimSpace(s))
}

func hasInterest(interests []string, category string) bool {
	for _, i := range interests {
		if strings.EqualFold(strings.TrimSpace(i), category) {
			return true
		}
	}
	return false
}

func pick(list []string, i int) string {
	return list[i%len(list)]
}
