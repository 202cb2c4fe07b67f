package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmix-app/trailgeo/internal/flagstore"
	"github.com/trailmix-app/trailgeo/internal/trails"
	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

// fakeProvider implements geocode.Provider, DetailsProvider and
// ReverseProvider for handler tests.
type fakeProvider struct {
	name    geocode.ProviderName
	results []geocode.Suggestion
	err     error
}

func (f *fakeProvider) Name() geocode.ProviderName { return f.name }
func (f *fakeProvider) Available() bool            { return true }

func (f *fakeProvider) Suggest(_ context.Context, _ string, _ geocode.SuggestOptions) ([]geocode.Suggestion, error) {
	return f.results, f.err
}

func (f *fakeProvider) Details(_ context.Context, _ string, _ *geocode.Location) (*geocode.PlaceDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &geocode.PlaceDetails{Name: "Starbucks", Provider: f.name}, nil
}

func (f *fakeProvider) Reverse(_ context.Context, _ geocode.Location) (*geocode.ReverseResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &geocode.ReverseResult{DisplayName: "123 Main St", Provider: f.name}, nil
}

func newTestServer(t *testing.T, prov *fakeProvider) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, prov, nil)
}

func newTestServerWith(t *testing.T, prov *fakeProvider, trailSvc *trails.Service) *httptest.Server {
	t.Helper()

	flags, err := flagstore.Open(filepath.Join(t.TempDir(), "flags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { flags.Close() })
	require.NoError(t, flags.Migrate(context.Background()))

	pipeline := geocode.NewPipeline([]geocode.Provider{prov}, geocode.WithFlagSource(flags))
	srv := httptest.NewServer(New(pipeline, flags, trailSvc).Handler([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

// newTrailsService backs the trail layers with stub upstreams; the trailheads
// stub records the last query so tests can inspect the requested envelope.
func newTrailsService(t *testing.T, captured *url.Values) *trails.Service {
	t.Helper()

	overpass := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	}))
	t.Cleanup(overpass.Close)

	trailheads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = r.URL.Query()
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	t.Cleanup(trailheads.Close)

	return trails.NewService(
		trails.NewOverpassClient(overpass.URL, nil),
		trails.NewTrailheadsClient(trailheads.URL, nil),
		nil,
	)
}

func defaultProvider() *fakeProvider {
	return &fakeProvider{
		name: geocode.ProviderGeoapify,
		results: []geocode.Suggestion{{
			DisplayName:  "Starbucks, San Jose, CA",
			AddressLine1: "Starbucks",
			Latitude:     37.33,
			Longitude:    -121.89,
		}},
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body map[string]string
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestSuggest(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body struct {
		Results []geocode.Suggestion `json:"results"`
	}
	resp := getJSON(t, srv.URL+"/v1/suggest?q=Starbucks&lat=37.33&lng=-121.89", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Results, 1)
	assert.Equal(t, geocode.ProviderGeoapify, body.Results[0].Provider)
}

func TestSuggest_MissingQuery(t *testing.T) {
	srv := newTestServer(t, defaultProvider())
	resp := getJSON(t, srv.URL+"/v1/suggest", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSuggest_ShortQueryIsEmptyOK(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body struct {
		Results []geocode.Suggestion `json:"results"`
	}
	resp := getJSON(t, srv.URL+"/v1/suggest?q=a", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body.Results)
}

func TestSuggest_BadParams(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	for _, path := range []string{
		"/v1/suggest?q=Starbucks&limit=zero",
		"/v1/suggest?q=Starbucks&lat=37.33",
		"/v1/suggest?q=Starbucks&lat=91&lng=0",
		"/v1/suggest?q=Starbucks&viewbox=1,2,3",
	} {
		resp := getJSON(t, srv.URL+path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestSuggest_ProviderFailure(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{name: geocode.ProviderNominatim, err: assert.AnError})
	resp := getJSON(t, srv.URL+"/v1/suggest?q=Starbucks", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestDetails(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body geocode.PlaceDetails
	resp := getJSON(t, srv.URL+"/v1/details?provider=geoapify&place_id=geo-abc", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Starbucks", body.Name)
}

func TestDetails_MissingIdentity(t *testing.T) {
	srv := newTestServer(t, defaultProvider())
	resp := getJSON(t, srv.URL+"/v1/details", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReverse(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body geocode.ReverseResult
	resp := getJSON(t, srv.URL+"/v1/reverse?lat=37.33&lng=-121.89", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "123 Main St", body.DisplayName)
}

func TestReverse_MissingCoords(t *testing.T) {
	srv := newTestServer(t, defaultProvider())
	resp := getJSON(t, srv.URL+"/v1/reverse", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTrails_NotConfigured(t *testing.T) {
	srv := newTestServer(t, defaultProvider())
	resp := getJSON(t, srv.URL+"/v1/trails?lat=37.52&lng=-121.87", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// envelopeLatSpan parses the ArcGIS "west,south,east,north" geometry param
// and returns north minus south.
func envelopeLatSpan(t *testing.T, geometry string) float64 {
	t.Helper()
	parts := strings.Split(geometry, ",")
	require.Len(t, parts, 4)
	south, err := strconv.ParseFloat(parts[1], 64)
	require.NoError(t, err)
	north, err := strconv.ParseFloat(parts[3], 64)
	require.NoError(t, err)
	return north - south
}

func TestTrails_DefaultRadius(t *testing.T) {
	var captured url.Values
	srv := newTestServerWith(t, defaultProvider(), newTrailsService(t, &captured))

	resp := getJSON(t, srv.URL+"/v1/trails?lat=37.52&lng=-121.87", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 2*trails.DefaultMapRadiusKm/111.32, envelopeLatSpan(t, captured.Get("geometry")), 1e-3,
		"the map endpoint assumes a 15 km radius when none is sent")

	resp = getJSON(t, srv.URL+"/v1/trails?lat=37.52&lng=-121.87&radius=5", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 2*5.0/111.32, envelopeLatSpan(t, captured.Get("geometry")), 1e-3,
		"an explicit radius overrides the default")
}

func TestCacheStats(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	getJSON(t, srv.URL+"/v1/suggest?q=Starbucks", nil)

	var stats geocode.CacheStats
	resp := getJSON(t, srv.URL+"/v1/cache/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestFlagGetAndPut(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body struct {
		Key   string `json:"key"`
		Value bool   `json:"value"`
	}
	resp := getJSON(t, srv.URL+"/v1/flags/google_enabled", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Value)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/flags/google_enabled", strings.NewReader(`{"value": false}`))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	assert.Equal(t, http.StatusOK, putResp.StatusCode)

	resp = getJSON(t, srv.URL+"/v1/flags/google_enabled", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, body.Value)
}

func TestFlagPut_KeepsWarmCaches(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	getJSON(t, srv.URL+"/v1/suggest?q=Starbucks", nil)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/flags/google_enabled", strings.NewReader(`{"value": false}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats geocode.CacheStats
	getJSON(t, srv.URL+"/v1/cache/stats", &stats)
	assert.Equal(t, 1, stats.Entries, "a flag flip must not discard warm suggestion entries")
}

func TestFlagGet_Unknown(t *testing.T) {
	srv := newTestServer(t, defaultProvider())
	resp := getJSON(t, srv.URL+"/v1/flags/no_such_flag", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFlagPut_BadBody(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/flags/google_enabled", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFlagList(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	var body struct {
		Flags []flagstore.Flag `json:"flags"`
	}
	resp := getJSON(t, srv.URL+"/v1/flags", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Flags, 1)
	assert.Equal(t, "google_enabled", body.Flags[0].Key)
}

func TestCacheClear(t *testing.T) {
	srv := newTestServer(t, defaultProvider())

	getJSON(t, srv.URL+"/v1/suggest?q=Starbucks", nil)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/cache", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats geocode.CacheStats
	getJSON(t, srv.URL+"/v1/cache/stats", &stats)
	assert.Equal(t, 0, stats.Entries)
}
