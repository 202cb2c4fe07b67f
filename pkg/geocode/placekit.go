package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultPlaceKitBaseURL = "https://api.placekit.co"
	placekitTimeout        = 7 * time.Second
)

// PlaceKitConfig configures the PlaceKit adapter.
type PlaceKitConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	RPS        float64
}

// PlaceKitProvider resolves suggestions via the PlaceKit search API. PlaceKit
// is suggestion-only: it offers no details or reverse endpoints.
type PlaceKitProvider struct {
	key        string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewPlaceKit creates a PlaceKit provider.
func NewPlaceKit(cfg PlaceKitConfig) *PlaceKitProvider {
	p := &PlaceKitProvider{
		key:        cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = defaultPlaceKitBaseURL
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
func (p *PlaceKitProvider) Name() ProviderName { return ProviderPlaceKit }

// Available implements Provider.
func (p *PlaceKitProvider) Available() bool { return p.key != "" }

// placekitRequest is the search POST body.
type placekitRequest struct {
	Query       string   `json:"query"`
	MaxResults  int      `json:"maxResults"`
	Coordinates string   `json:"coordinates,omitempty"`
	Countries   []string `json:"countries,omitempty"`
}

// placekitResponse is the search JSON shape.
type placekitResponse struct {
	Results []struct {
		Name           string   `json:"name"`
		City           string   `json:"city"`
		County         string   `json:"county"`
		Administrative string   `json:"administrative"`
		Country        string   `json:"country"`
		Zipcode        []string `json:"zipcode"`
		Type           string   `json:"type"`
		Lat            float64  `json:"lat"`
		Lng            float64  `json:"lng"`
	} `json:"results"`
}

// Suggest implements Provider. PlaceKit's search endpoint is a POST with the
// API key in a header, unlike the query-parameter providers.
func (p *PlaceKitProvider) Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error) {
	if p.key == "" {
		return nil, eris.New("geocode: placekit api key not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: placekit rate limit")
	}

	reqBody := placekitRequest{
		Query:      query,
		MaxResults: opts.limit(),
	}
	if opts.Location != nil {
		reqBody.Coordinates = fmt.Sprintf("%f,%f", opts.Location.Lat, opts.Location.Lng)
	}
	if opts.CountryCode != "" {
		reqBody.Countries = []string{strings.ToLower(opts.CountryCode)}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: placekit encode request")
	}

	ctx, cancel := context.WithTimeout(ctx, placekitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: placekit build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-placekit-api-key", p.key)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: placekit request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: ProviderPlaceKit, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: placekit read body")
	}
	var pkResp placekitResponse
	if err := json.Unmarshal(body, &pkResp); err != nil {
		return nil, eris.Wrap(err, "geocode: placekit parse response")
	}

	var out []Suggestion
	for _, r := range pkResp.Results {
		s := Suggestion{
			DisplayName:  joinNonEmpty(r.Name, r.City, r.Administrative, r.Country),
			AddressLine1: r.Name,
			AddressLine2: joinNonEmpty(r.City, r.Administrative, r.Country),
			Latitude:     r.Lat,
			Longitude:    r.Lng,
			ResultType:   r.Type,
		}
		if !s.valid() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// joinNonEmpty joins the non-empty parts with ", ".
func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
