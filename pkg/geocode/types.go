// Package geocode resolves free-text queries to ranked address suggestions
// via a chain of autocomplete providers (Google Places, Geoapify, PlaceKit,
// Nominatim), with bounded in-memory caching and a lazy place-details path.
package geocode

import (
	"fmt"
	"math"
	"strings"
)

// ProviderName identifies the backend that produced a record.
type ProviderName string

const (
	ProviderGoogle    ProviderName = "google"
	ProviderGeoapify  ProviderName = "geoapify"
	ProviderPlaceKit  ProviderName = "placekit"
	ProviderNominatim ProviderName = "nominatim"
)

// chainOrder is the fixed provider priority for suggestion lookups and for
// the exact-key cache pass. Nominatim is keyless and always attempted last.
var chainOrder = []ProviderName{ProviderGoogle, ProviderGeoapify, ProviderPlaceKit, ProviderNominatim}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BBox is a lon/lat bounding box used as a viewbox bias.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Suggestion is a normalized autocomplete result. Every Suggestion returned
// by the pipeline has range-valid, non-NaN coordinates and a non-empty
// DisplayName; records that fail that check are discarded at decode time.
type Suggestion struct {
	DisplayName    string       `json:"display_name"`
	AddressLine1   string       `json:"address_line1,omitempty"`
	AddressLine2   string       `json:"address_line2,omitempty"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	ResultType     string       `json:"result_type,omitempty"`
	DistanceMeters *float64     `json:"distance_meters,omitempty"`
	Rank           *float64     `json:"rank,omitempty"`
	Provider       ProviderName `json:"provider"`
	PlaceID        string       `json:"place_id,omitempty"`
}

// primaryText is the text compared first during match scoring and cache
// filtering: the primary address line when present, else the full label.
func (s Suggestion) primaryText() string {
	if s.AddressLine1 != "" {
		return s.AddressLine1
	}
	return s.DisplayName
}

// valid reports whether the suggestion satisfies the pipeline's invariants.
func (s Suggestion) valid() bool {
	if strings.TrimSpace(s.DisplayName) == "" {
		return false
	}
	if math.IsNaN(s.Latitude) || math.IsNaN(s.Longitude) {
		return false
	}
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}

// SuggestOptions bias a suggestion lookup.
type SuggestOptions struct {
	// Limit caps the number of returned suggestions. Zero means DefaultLimit.
	Limit int

	// Location biases results toward the user and enables distance scoring.
	Location *Location

	// CountryCode restricts results to an ISO 3166-1 alpha-2 country.
	CountryCode string

	// Viewbox restricts or biases results to a bounding box where the
	// provider supports it.
	Viewbox *BBox
}

// DefaultLimit is the suggestion count used when SuggestOptions.Limit is zero.
const DefaultLimit = 5

func (o SuggestOptions) limit() int {
	if o.Limit > 0 {
		return o.Limit
	}
	return DefaultLimit
}

// PlaceDetails is the enriched record fetched lazily for a single selected
// suggestion. Provider-specific: a PlaceID is only meaningful paired with the
// provider that issued it.
type PlaceDetails struct {
	Name             string       `json:"name"`
	FormattedAddress string       `json:"formatted_address,omitempty"`
	Phone            string       `json:"phone,omitempty"`
	Website          string       `json:"website,omitempty"`
	OpeningHours     []string     `json:"opening_hours,omitempty"`
	Rating           *float64     `json:"rating,omitempty"`
	PriceLevel       *int         `json:"price_level,omitempty"`
	Categories       []string     `json:"categories,omitempty"`
	ImageURLs        []string     `json:"image_urls,omitempty"`
	Latitude         float64      `json:"latitude"`
	Longitude        float64      `json:"longitude"`
	Provider         ProviderName `json:"provider"`
	PlaceID          string       `json:"place_id,omitempty"`
}

// ReverseResult is the address resolved for a coordinate pair.
type ReverseResult struct {
	DisplayName  string       `json:"display_name"`
	AddressLine1 string       `json:"address_line1,omitempty"`
	AddressLine2 string       `json:"address_line2,omitempty"`
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	PostalCode   string       `json:"postal_code,omitempty"`
	Country      string       `json:"country,omitempty"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Provider     ProviderName `json:"provider"`
}

// locationBucket coarsens a user location to two decimal places for cache
// keying, grouping queries issued from roughly the same spot. A nil location
// buckets to the literal "none".
func locationBucket(loc *Location) string {
	if loc == nil {
		return "none"
	}
	return fmt.Sprintf("%.2f,%.2f", loc.Lat, loc.Lng)
}

func float64Ptr(v float64) *float64 { return &v }
