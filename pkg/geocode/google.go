package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultGoogleBaseURL = "https://maps.googleapis.com/maps/api/place"
	googleTimeout        = 5 * time.Second
	googleNearbyRadiusM  = 50
	googlePhotoMaxWidth  = 400
)

// GoogleConfig configures the Google Places adapter.
type GoogleConfig struct {
	APIKey     string
	BaseURL    string // override for tests; defaults to the public endpoint
	HTTPClient *http.Client
	RPS        float64 // client-side requests per second, 0 = 10
}

// GoogleProvider resolves suggestions via the Google Places Text Search API
// and details via Nearby Search + Place Details.
type GoogleProvider struct {
	key        string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGoogle creates a Google Places provider.
func NewGoogle(cfg GoogleConfig) *GoogleProvider {
	p := &GoogleProvider{
		key:        cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = defaultGoogleBaseURL
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	return p
}

// Name implements Provider.
func (p *GoogleProvider) Name() ProviderName { return ProviderGoogle }

// Available implements Provider.
func (p *GoogleProvider) Available() bool { return p.key != "" }

// googleSearchResponse is the Text Search JSON shape.
type googleSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		PlaceID          string   `json:"place_id"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Suggest implements Provider via the Text Search endpoint, which returns
// geometry directly (the Autocomplete endpoint does not).
func (p *GoogleProvider) Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error) {
	if p.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"query": {query},
		"key":   {p.key},
	}
	if opts.Location != nil {
		params.Set("location", fmt.Sprintf("%f,%f", opts.Location.Lat, opts.Location.Lng))
		params.Set("radius", "50000")
	}
	if opts.CountryCode != "" {
		params.Set("region", strings.ToLower(opts.CountryCode))
	}

	var resp googleSearchResponse
	reqURL := p.baseURL + "/textsearch/json?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGoogle, googleTimeout, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status == "ZERO_RESULTS" {
		return nil, nil
	}
	if resp.Status != "OK" {
		return nil, eris.Errorf("geocode: google status %s", resp.Status)
	}

	limit := opts.limit()
	var out []Suggestion
	for _, r := range resp.Results {
		if len(out) >= limit {
			break
		}
		s := Suggestion{
			DisplayName:  r.FormattedAddress,
			AddressLine1: r.Name,
			Latitude:     r.Geometry.Location.Lat,
			Longitude:    r.Geometry.Location.Lng,
			PlaceID:      r.PlaceID,
		}
		if s.DisplayName == "" {
			s.DisplayName = r.Name
		}
		if len(r.Types) > 0 {
			s.ResultType = r.Types[0]
		}
		if !s.valid() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// googleNearbyResponse is the Nearby Search JSON shape, used only to resolve
// a place id from bare coordinates.
type googleNearbyResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
}

// googleDetailsResponse is the Place Details JSON shape.
type googleDetailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Name                 string   `json:"name"`
		FormattedAddress     string   `json:"formatted_address"`
		FormattedPhoneNumber string   `json:"formatted_phone_number"`
		Website              string   `json:"website"`
		Rating               float64  `json:"rating"`
		PriceLevel           *int     `json:"price_level"`
		Types                []string `json:"types"`
		OpeningHours         struct {
			WeekdayText []string `json:"weekday_text"`
		} `json:"opening_hours"`
		Photos []struct {
			PhotoReference string `json:"photo_reference"`
		} `json:"photos"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
}

// Details implements DetailsProvider. A missing place id is first resolved
// through Nearby Search at the given coordinates.
func (p *GoogleProvider) Details(ctx context.Context, placeID string, loc *Location) (*PlaceDetails, error) {
	if p.key == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if placeID == "" {
		if loc == nil {
			return nil, eris.New("geocode: google details needs a place id or coordinates")
		}
		resolved, err := p.nearbyPlaceID(ctx, *loc)
		if err != nil {
			return nil, err
		}
		placeID = resolved
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"place_id": {placeID},
		"key":      {p.key},
		"fields": {"name,formatted_address,formatted_phone_number,website," +
			"opening_hours,rating,price_level,types,photos,geometry"},
	}
	var resp googleDetailsResponse
	reqURL := p.baseURL + "/details/json?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGoogle, googleTimeout, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, eris.Errorf("geocode: google details status %s", resp.Status)
	}

	r := resp.Result
	d := &PlaceDetails{
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Phone:            r.FormattedPhoneNumber,
		Website:          r.Website,
		OpeningHours:     r.OpeningHours.WeekdayText,
		PriceLevel:       r.PriceLevel,
		Categories:       r.Types,
		Latitude:         r.Geometry.Location.Lat,
		Longitude:        r.Geometry.Location.Lng,
		Provider:         ProviderGoogle,
		PlaceID:          placeID,
	}
	if r.Rating > 0 {
		d.Rating = float64Ptr(r.Rating)
	}
	for _, photo := range r.Photos {
		if photo.PhotoReference == "" {
			continue
		}
		d.ImageURLs = append(d.ImageURLs, fmt.Sprintf(
			"%s/photo?maxwidth=%d&photo_reference=%s&key=%s",
			p.baseURL, googlePhotoMaxWidth, url.QueryEscape(photo.PhotoReference), url.QueryEscape(p.key),
		))
	}
	return d, nil
}

// nearbyPlaceID finds the place id closest to the given coordinates.
func (p *GoogleProvider) nearbyPlaceID(ctx context.Context, loc Location) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"location": {fmt.Sprintf("%f,%f", loc.Lat, loc.Lng)},
		"radius":   {fmt.Sprintf("%d", googleNearbyRadiusM)},
		"key":      {p.key},
	}
	var resp googleNearbyResponse
	reqURL := p.baseURL + "/nearbysearch/json?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGoogle, googleTimeout, reqURL, nil, &resp); err != nil {
		return "", err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return "", eris.Errorf("geocode: google nearby search found no place at %f,%f", loc.Lat, loc.Lng)
	}
	return resp.Results[0].PlaceID, nil
}
