package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tripgenie/tripgenie-backend/internal/tools/firecrawl"
)

const (
	FlightSearchName = "firecrawl_flight_search"
	maxFlights       = 12
	noFlights        = "No flights found."
)

// Scraper extracts structured data from a web page
type Scraper interface {
	Configured() bool
	Extract(ctx context.Context, pageURL string, opts firecrawl.JSONOptions, out interface{}) (bool, error)
}

// Flight is one scraped flight offer
type Flight struct {
	Airline          string `json:"airline,omitempty"`
	FlightNumber     string `json:"flight_number,omitempty"`
	Price            string `json:"price,omitempty"`
	DepartureTime    string `json:"departure_time,omitempty"`
	ArrivalTime      string `json:"arrival_time,omitempty"`
	DepartureAirport string `json:"departure_airport,omitempty"`
	ArrivalAirport   string `json:"arrival_airport,omitempty"`
	Duration         string `json:"duration,omitempty"`
	Stops            string `json:"stops,omitempty"`
	AircraftType     string `json:"aircraft_type,omitempty"`
	BookingLink      string `json:"booking_link,omitempty"`
}

// FlightSearch scrapes Skyscanner results through Firecrawl
type FlightSearch struct {
	scraper Scraper
}

// NewFlightSearch creates the flight search tool
func NewFlightSearch(scraper Scraper) *FlightSearch {
	return &FlightSearch{scraper: scraper}
}

func (t *FlightSearch) Name() string { return FlightSearchName }

func (t *FlightSearch) Description() string {
	return "Search for flights using Firecrawl web scraping (Skyscanner only). Returns flight options with airline, price, times, duration and route details."
}

func (t *FlightSearch) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "origin", Type: TypeString, Required: true, ContextKey: BindOrigin,
			Description: "Origin city or airport code (e.g., 'New York', 'JFK')"},
		{Name: "destination", Type: TypeString, Required: true, ContextKey: BindDestination,
			Description: "Destination city or airport code (e.g., 'Los Angeles', 'LAX')"},
		{Name: "departure_date", Type: TypeString, Required: true, ContextKey: BindStartDate,
			Description: "Departure date in YYYY-MM-DD format"},
		{Name: "return_date", Type: TypeString, ContextKey: BindEndDate,
			Description: "Return date in YYYY-MM-DD format for round trip"},
		{Name: "num_adults", Type: TypeInteger, Default: 1, Min: intPtr(1), ContextKey: BindTravelers,
			Description: "Number of adult passengers"},
		{Name: "formatted_output", Type: TypeBoolean, Default: true,
			Description: "If true, return a formatted string for display; otherwise return JSON."},
	}}
}

type flightSearchInfo struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date,omitempty"`
	NumAdults     int    `json:"num_adults"`
	TotalFound    int    `json:"total_found,omitempty"`
	Source        string `json:"source,omitempty"`
}

func (t *FlightSearch) Invoke(ctx context.Context, args Args) (Output, error) {
	if t.scraper == nil || !t.scraper.Configured() {
		return unconfigured("flights"), nil
	}

	origin := args.String("origin")
	destination := args.String("destination")
	departure := args.String("departure_date")
	adults := args.Int("num_adults")
	formatted := args.Bool("formatted_output")

	link := SkyscannerLink(origin, destination, departure, adults)
	opts := firecrawl.JSONOptions{
		Schema: flightExtractionSchema,
		Prompt: fmt.Sprintf("Extract ALL flight search results from this Skyscanner.com page for flights from %s to %s on %s. "+
			"Look for multiple flight options, different airlines, various departure times, both nonstop and connecting flights, and different price points. "+
			"For each flight, extract: airline name, flight number if visible, total price (with currency), departure time, arrival time, departure airport, "+
			"arrival airport, flight duration, number of stops and layover cities if applicable, aircraft type if shown. "+
			"Ignore sponsored results, ads, or incomplete listings. Focus on actual bookable flight options.",
			origin, destination, departure),
	}

	var extracted struct {
		Flights []Flight `json:"flights"`
	}
	found, err := t.scraper.Extract(ctx, strings.Replace(link, ".co.in", ".com", 1), opts, &extracted)
	if err != nil {
		return Output{}, fmt.Errorf("flight search failed: %w", err)
	}

	info := flightSearchInfo{
		Origin:        origin,
		Destination:   destination,
		DepartureDate: departure,
		ReturnDate:    args.String("return_date"),
		NumAdults:     adults,
	}

	if !found || len(extracted.Flights) == 0 {
		if formatted {
			return Output{Content: noFlights, NoResults: true}, nil
		}
		return jsonOutput(map[string]interface{}{
			"flights":     []Flight{},
			"message":     "No flight data could be extracted from Skyscanner.",
			"search_info": info,
		}, true)
	}

	flights := extracted.Flights
	if len(flights) > maxFlights {
		flights = flights[:maxFlights]
	}
	for i := range flights {
		flights[i].BookingLink = link
	}

	if formatted {
		return Output{Content: FormatFlights(flights)}, nil
	}
	info.TotalFound = len(extracted.Flights)
	info.Source = "Skyscanner"
	return jsonOutput(map[string]interface{}{"flights": flights, "search_info": info}, false)
}

// SkyscannerLink builds the booking link for a one-way economy search
func SkyscannerLink(origin, destination, departure string, adults int) string {
	return fmt.Sprintf("https://www.skyscanner.co.in/transport/flights/%s/%s/%s/?adultsv2=%d&cabinclass=economy&childrenv2=&ref=home&rtn=0&preferdirects=false&outboundaltsenabled=false&inboundaltsenabled=false",
		skyscannerPlace(origin), skyscannerPlace(destination), skyscannerDate(departure), adults)
}

func skyscannerPlace(place string) string {
	return url.PathEscape(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(place), " ", "-")))
}

func skyscannerDate(date string) string {
	if d, err := time.Parse("2006-01-02", date); err == nil {
		return d.Format("060102")
	}
	compact := strings.ReplaceAll(date, "-", "")
	if len(compact) > 6 {
		compact = compact[len(compact)-6:]
	}
	return compact
}

// FormatFlights renders flights as markdown cards
func FormatFlights(flights []Flight) string {
	if len(flights) == 0 {
		return noFlights
	}
	lines := []string{"### ✈️ FLIGHT OPTIONS:"}
	for i, f := range flights {
		lines = append(lines,
			fmt.Sprintf("**%d. %s** - %s", i+1, orNA(f.Airline), orNA(f.Price)),
			fmt.Sprintf("   • %s → %s (%s)", orNA(f.DepartureTime), orNA(f.ArrivalTime), orNA(f.Duration)),
			fmt.Sprintf("   • %s", orNA(f.Stops)),
		)
		if f.BookingLink != "" {
			lines = append(lines, fmt.Sprintf("   • [Book this flight](%s)", f.BookingLink))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

var flightExtractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"flights": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": stringProperties(
					"airline", "flight_number", "price", "departure_time", "arrival_time",
					"departure_airport", "arrival_airport", "duration", "stops", "aircraft_type",
				),
				"required": []string{"airline", "price", "departure_time", "arrival_time"},
			},
		},
	},
}

func stringProperties(names ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(names))
	for _, n := range names {
		props[n] = map[string]interface{}{"type": "string"}
	}
	return props
}

// unconfigured is the sentinel payload returned when no scraping key is set
func unconfigured(listKey string) Output {
	raw, _ := json.Marshal(map[string]interface{}{
		"error": firecrawl.ErrNotConfigured.Error(),
		listKey: []interface{}{},
	})
	return Output{Content: string(raw), NoResults: true}
}

func jsonOutput(v interface{}, noResults bool) (Output, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Output{}, err
	}
	return Output{Content: string(raw), NoResults: noResults}, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
