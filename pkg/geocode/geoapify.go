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
	defaultGeoapifyBaseURL = "https://api.geoapify.com"
	geoapifyTimeout        = 5 * time.Second
)

// GeoapifyConfig configures the Geoapify adapter.
type GeoapifyConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	RPS        float64
}

// GeoapifyProvider resolves suggestions, place details and reverse lookups
// via the Geoapify geocoding APIs.
type GeoapifyProvider struct {
	key        string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGeoapify creates a Geoapify provider.
func NewGeoapify(cfg GeoapifyConfig) *GeoapifyProvider {
	p := &GeoapifyProvider{
		key:        cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = defaultGeoapifyBaseURL
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	return p
}

// Name implements Provider.
func (p *GeoapifyProvider) Name() ProviderName { return ProviderGeoapify }

// Available implements Provider.
func (p *GeoapifyProvider) Available() bool { return p.key != "" }

// geoapifyFeatureCollection is the GeoJSON shape shared by the autocomplete,
// place-details and reverse endpoints.
type geoapifyFeatureCollection struct {
	Features []struct {
		Properties geoapifyProperties `json:"properties"`
	} `json:"features"`
}

type geoapifyProperties struct {
	Name         string   `json:"name"`
	Formatted    string   `json:"formatted"`
	AddressLine1 string   `json:"address_line1"`
	AddressLine2 string   `json:"address_line2"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	ResultType   string   `json:"result_type"`
	PlaceID      string   `json:"place_id"`
	Distance     float64  `json:"distance"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Postcode     string   `json:"postcode"`
	Country      string   `json:"country"`
	Website      string   `json:"website"`
	Categories   []string `json:"categories"`
	OpeningHours string   `json:"opening_hours"`
	Contact      struct {
		Phone string `json:"phone"`
	} `json:"contact"`
	Rank struct {
		Confidence float64 `json:"confidence"`
	} `json:"rank"`
}

// Suggest implements Provider via the Geoapify autocomplete endpoint.
func (p *GeoapifyProvider) Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error) {
	if p.key == "" {
		return nil, eris.New("geocode: geoapify api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: geoapify rate limit")
	}

	params := url.Values{
		"text":   {query},
		"limit":  {fmt.Sprintf("%d", opts.limit())},
		"apiKey": {p.key},
		"format": {"geojson"},
	}
	if opts.Location != nil {
		params.Set("bias", fmt.Sprintf("proximity:%f,%f", opts.Location.Lng, opts.Location.Lat))
	}
	var filters []string
	if opts.CountryCode != "" {
		filters = append(filters, "countrycode:"+strings.ToLower(opts.CountryCode))
	}
	if vb := opts.Viewbox; vb != nil {
		filters = append(filters, fmt.Sprintf("rect:%f,%f,%f,%f", vb.MinLng, vb.MinLat, vb.MaxLng, vb.MaxLat))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, "|"))
	}

	var resp geoapifyFeatureCollection
	reqURL := p.baseURL + "/v1/geocode/autocomplete?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGeoapify, geoapifyTimeout, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, f := range resp.Features {
		props := f.Properties
		s := Suggestion{
			DisplayName:  props.Formatted,
			AddressLine1: props.AddressLine1,
			AddressLine2: props.AddressLine2,
			Latitude:     props.Lat,
			Longitude:    props.Lon,
			ResultType:   props.ResultType,
			PlaceID:      props.PlaceID,
		}
		if props.Distance > 0 {
			s.DistanceMeters = float64Ptr(props.Distance)
		}
		if props.Rank.Confidence > 0 {
			s.Rank = float64Ptr(props.Rank.Confidence)
		}
		if !s.valid() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Details implements DetailsProvider. Geoapify accepts either a place id or
// bare coordinates directly.
func (p *GeoapifyProvider) Details(ctx context.Context, placeID string, loc *Location) (*PlaceDetails, error) {
	if p.key == "" {
		return nil, eris.New("geocode: geoapify api key not configured")
	}
	if placeID == "" && loc == nil {
		return nil, eris.New("geocode: geoapify details needs a place id or coordinates")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: geoapify rate limit")
	}

	params := url.Values{"apiKey": {p.key}}
	if placeID != "" {
		params.Set("id", placeID)
	} else {
		params.Set("lat", fmt.Sprintf("%f", loc.Lat))
		params.Set("lon", fmt.Sprintf("%f", loc.Lng))
	}

	var resp geoapifyFeatureCollection
	reqURL := p.baseURL + "/v2/place-details?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGeoapify, geoapifyTimeout, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return nil, eris.New("geocode: geoapify place details not found")
	}

	props := resp.Features[0].Properties
	d := &PlaceDetails{
		Name:             props.Name,
		FormattedAddress: props.Formatted,
		Phone:            props.Contact.Phone,
		Website:          props.Website,
		Categories:       props.Categories,
		Latitude:         props.Lat,
		Longitude:        props.Lon,
		Provider:         ProviderGeoapify,
		PlaceID:          props.PlaceID,
	}
	if d.Name == "" {
		d.Name = props.AddressLine1
	}
	if props.OpeningHours != "" {
		d.OpeningHours = []string{props.OpeningHours}
	}
	return d, nil
}

// Reverse implements ReverseProvider.
func (p *GeoapifyProvider) Reverse(ctx context.Context, loc Location) (*ReverseResult, error) {
	if p.key == "" {
		return nil, eris.New("geocode: geoapify api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: geoapify rate limit")
	}

	params := url.Values{
		"lat":    {fmt.Sprintf("%f", loc.Lat)},
		"lon":    {fmt.Sprintf("%f", loc.Lng)},
		"limit":  {"1"},
		"apiKey": {p.key},
		"format": {"geojson"},
	}
	var resp geoapifyFeatureCollection
	reqURL := p.baseURL + "/v1/geocode/reverse?" + params.Encode()
	if err := doJSON(ctx, p.httpClient, ProviderGeoapify, geoapifyTimeout, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return nil, eris.New("geocode: geoapify reverse found no address")
	}

	props := resp.Features[0].Properties
	return &ReverseResult{
		DisplayName:  props.Formatted,
		AddressLine1: props.AddressLine1,
		AddressLine2: props.AddressLine2,
		City:         props.City,
		State:        props.State,
		PostalCode:   props.Postcode,
		Country:      props.Country,
		Latitude:     props.Lat,
		Longitude:    props.Lon,
		Provider:     ProviderGeoapify,
	}, nil
}
