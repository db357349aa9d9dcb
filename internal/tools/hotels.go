package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tripgenie/tripgenie-backend/internal/tools/firecrawl"
)

const (
	HotelSearchName = "firecrawl_hotel_search"
	maxHotels       = 10
	noHotels        = "No hotels found."
)

// Hotel is one scraped hotel offer
type Hotel struct {
	Name               string `json:"name,omitempty"`
	PricePerNight      string `json:"price_per_night,omitempty"`
	Rating             string `json:"rating,omitempty"`
	Location           string `json:"location,omitempty"`
	Amenities          string `json:"amenities,omitempty"`
	ReviewScore        string `json:"review_score,omitempty"`
	TotalReviews       string `json:"total_reviews,omitempty"`
	DistanceFromCenter string `json:"distance_from_center,omitempty"`
	BookingLink        string `json:"booking_link,omitempty"`
}

// HotelSearch scrapes Booking.com results through Firecrawl
type HotelSearch struct {
	scraper Scraper
}

// NewHotelSearch creates the hotel search tool
func NewHotelSearch(scraper Scraper) *HotelSearch {
	return &HotelSearch{scraper: scraper}
}

func (t *HotelSearch) Name() string { return HotelSearchName }

func (t *HotelSearch) Description() string {
	return "Search for hotels using Firecrawl web scraping. Returns hotel options with name, price, rating, location and amenities."
}

func (t *HotelSearch) Schema() Schema {
	return Schema{Fields: []Field{
		{Name: "destination", Type: TypeString, Required: true, ContextKey: BindDestination,
			Description: "Destination city for hotel search"},
		{Name: "check_in_date", Type: TypeString, Required: true, ContextKey: BindStartDate,
			Description: "Check-in date in YYYY-MM-DD format"},
		{Name: "check_out_date", Type: TypeString, Required: true, ContextKey: BindEndDate,
			Description: "Check-out date in YYYY-MM-DD format"},
		{Name: "num_adults", Type: TypeInteger, Default: 1, Min: intPtr(1), ContextKey: BindTravelers,
			Description: "Number of adult guests"},
	}}
}

func (t *HotelSearch) Invoke(ctx context.Context, args Args) (Output, error) {
	if t.scraper == nil || !t.scraper.Configured() {
		return unconfigured("hotels"), nil
	}

	destination := args.String("destination")
	checkIn := args.String("check_in_date")
	checkOut := args.String("check_out_date")
	adults := args.Int("num_adults")

	link := BookingLink(destination, checkIn, checkOut, adults)
	opts := firecrawl.JSONOptions{
		Schema: hotelExtractionSchema,
		Prompt: fmt.Sprintf("Extract hotel search results from this Booking.com booking page. "+
			"Find available hotels in %s for check-in on %s and check-out on %s for %d adults. "+
			"Look for multiple hotel options (aim for 8-12 hotels if available), different price ranges (budget to luxury), "+
			"various locations within the city, and different star ratings and guest review scores. "+
			"For each hotel, extract the full official name, price per night with currency, star rating, guest review score, "+
			"location or neighborhood, key amenities, number of reviews if shown and distance from city center if mentioned. "+
			"Focus on actual available hotels with real pricing, ignore ads or featured listings without prices.",
			destination, checkIn, checkOut, adults),
	}

	var extracted struct {
		Hotels []Hotel `json:"hotels"`
	}
	found, err := t.scraper.Extract(ctx, link, opts, &extracted)
	if err != nil {
		return Output{}, fmt.Errorf("hotel search failed: %w", err)
	}
	if !found || len(extracted.Hotels) == 0 {
		return Output{Content: noHotels, NoResults: true}, nil
	}

	hotels := extracted.Hotels
	if len(hotels) > maxHotels {
		hotels = hotels[:maxHotels]
	}
	for i := range hotels {
		hotels[i].BookingLink = link
	}
	return Output{Content: FormatHotels(hotels)}, nil
}

// BookingLink builds the Booking.com search URL for one room
func BookingLink(destination, checkIn, checkOut string, adults int) string {
	return fmt.Sprintf("https://www.booking.com/searchresults.html?ss=%s&checkin=%s&checkout=%s&group_adults=%d&no_rooms=1",
		url.QueryEscape(strings.TrimSpace(destination)), url.QueryEscape(checkIn), url.QueryEscape(checkOut), adults)
}

// FormatHotels renders hotels as markdown cards
func FormatHotels(hotels []Hotel) string {
	if len(hotels) == 0 {
		return noHotels
	}
	lines := []string{"### 🏨 HOTEL OPTIONS:"}
	for i, h := range hotels {
		lines = append(lines,
			fmt.Sprintf("**%d. %s** - %s/night", i+1, orNA(h.Name), orNA(h.PricePerNight)),
			fmt.Sprintf("   • Rating: %s", orNA(h.Rating)),
			fmt.Sprintf("   • Location: %s", orNA(h.Location)),
			fmt.Sprintf("   • Amenities: %s", orNA(h.Amenities)),
		)
		if h.BookingLink != "" {
			lines = append(lines, fmt.Sprintf("   • [Book this hotel](%s)", h.BookingLink))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

var hotelExtractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"hotels": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": stringProperties(
					"name", "price_per_night", "rating", "location", "amenities",
					"review_score", "total_reviews", "distance_from_center",
				),
				"required": []string{"name", "price_per_night"},
			},
		},
	},
}
