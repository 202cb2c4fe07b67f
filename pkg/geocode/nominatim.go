package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultNominatimBaseURL   = "https://nominatim.openstreetmap.org"
	defaultNominatimUserAgent = "trailgeo/1.0 (+https://github.com/trailmix-app/trailgeo)"
	nominatimTimeout          = 10 * time.Second
)

// NominatimConfig configures the Nominatim adapter.
type NominatimConfig struct {
	BaseURL    string // override for self-hosted instances or tests
	UserAgent  string // Nominatim usage policy requires an identifying agent
	HTTPClient *http.Client
	RPS        float64
}

// NominatimProvider resolves suggestions and reverse lookups against a
// Nominatim instance. It needs no API key and anchors the fallback chain:
// its errors are the only ones a caller ever sees.
type NominatimProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatim creates a Nominatim provider.
func NewNominatim(cfg NominatimConfig) *NominatimProvider {
	p := &NominatimProvider{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = defaultNominatimBaseURL
	}
	if p.userAgent == "" {
		p.userAgent = defaultNominatimUserAgent
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	// The public instance allows at most 1 req/s.
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() ProviderName { return ProviderNominatim }

// Available implements Provider. Nominatim is keyless and always attempted.
func (p *NominatimProvider) Available() bool { return true }

// nominatimPlace is one element of the search response array; the reverse
// endpoint returns a single object of the same shape.
type nominatimPlace struct {
	PlaceID     int64   `json:"place_id"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
	Address     struct {
		Road     string `json:"road"`
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
		Country  string `json:"country"`
	} `json:"address"`
}

// Suggest implements Provider via the Nominatim search endpoint.
func (p *NominatimProvider) Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"limit":          {fmt.Sprintf("%d", opts.limit())},
		"addressdetails": {"1"},
	}
	if opts.CountryCode != "" {
		params.Set("countrycodes", strings.ToLower(opts.CountryCode))
	}
	if vb := opts.Viewbox; vb != nil {
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f", vb.MinLng, vb.MinLat, vb.MaxLng, vb.MaxLat))
		params.Set("bounded", "1")
	}

	var places []nominatimPlace
	reqURL := p.baseURL + "/search?" + params.Encode()
	header := http.Header{"User-Agent": {p.userAgent}}
	if err := doJSON(ctx, p.httpClient, ProviderNominatim, nominatimTimeout, reqURL, header, &places); err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, place := range places {
		s, err := place.toSuggestion()
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Reverse implements ReverseProvider.
func (p *NominatimProvider) Reverse(ctx context.Context, loc Location) (*ReverseResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"lat":    {fmt.Sprintf("%f", loc.Lat)},
		"lon":    {fmt.Sprintf("%f", loc.Lng)},
		"format": {"jsonv2"},
	}
	var place nominatimPlace
	reqURL := p.baseURL + "/reverse?" + params.Encode()
	header := http.Header{"User-Agent": {p.userAgent}}
	if err := doJSON(ctx, p.httpClient, ProviderNominatim, nominatimTimeout, reqURL, header, &place); err != nil {
		return nil, err
	}
	if place.DisplayName == "" {
		return nil, eris.New("geocode: nominatim reverse found no address")
	}

	lat, lon, err := place.coords()
	if err != nil {
		return nil, err
	}
	city := place.Address.City
	if city == "" {
		city = place.Address.Town
	}
	if city == "" {
		city = place.Address.Village
	}
	return &ReverseResult{
		DisplayName:  place.DisplayName,
		AddressLine1: place.Address.Road,
		City:         city,
		State:        place.Address.State,
		PostalCode:   place.Address.Postcode,
		Country:      place.Address.Country,
		Latitude:     lat,
		Longitude:    lon,
		Provider:     ProviderNominatim,
	}, nil
}

// coords parses the string-typed coordinates Nominatim returns.
func (n nominatimPlace) coords() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(n.Lat, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: nominatim parse lat %q", n.Lat)
	}
	lon, err = strconv.ParseFloat(n.Lon, 64)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "geocode: nominatim parse lon %q", n.Lon)
	}
	return lat, lon, nil
}

func (n nominatimPlace) toSuggestion() (Suggestion, error) {
	lat, lon, err := n.coords()
	if err != nil {
		return Suggestion{}, err
	}

	primary := n.Name
	secondary := n.DisplayName
	if primary == "" {
		// display_name is "name, locality, region, ..."; split off the
		// first component as the primary text.
		if idx := strings.Index(n.DisplayName, ","); idx > 0 {
			primary = n.DisplayName[:idx]
			secondary = strings.TrimSpace(n.DisplayName[idx+1:])
		} else {
			primary = n.DisplayName
			secondary = ""
		}
	}

	s := Suggestion{
		DisplayName:  n.DisplayName,
		AddressLine1: primary,
		AddressLine2: secondary,
		Latitude:     lat,
		Longitude:    lon,
		ResultType:   n.Type,
		PlaceID:      strconv.FormatInt(n.PlaceID, 10),
	}
	if n.Importance > 0 {
		s.Rank = float64Ptr(n.Importance)
	}
	if !s.valid() {
		return Suggestion{}, eris.New("geocode: nominatim record failed validation")
	}
	return s, nil
}
