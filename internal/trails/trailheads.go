package trails

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const (
	// DefaultTrailheadsURL is the USGS structures layer holding trailhead
	// points.
	DefaultTrailheadsURL = "https://carto.nationalmap.gov/arcgis/rest/services/structures/MapServer/1/query"

	trailheadsTimeout = 30 * time.Second
)

// TrailheadsClient fetches trailhead structures from the USGS ArcGIS API.
type TrailheadsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTrailheadsClient creates a trailheads client. Empty args use defaults.
func NewTrailheadsClient(baseURL string, httpClient *http.Client) *TrailheadsClient {
	if baseURL == "" {
		baseURL = DefaultTrailheadsURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TrailheadsClient{baseURL: baseURL, httpClient: httpClient}
}

// FetchTrailheads queries trailhead points intersecting the box. The ArcGIS
// endpoint returns GeoJSON directly. Failures yield an empty collection, not
// an error; the map renders without the trailhead layer.
func (c *TrailheadsClient) FetchTrailheads(ctx context.Context, bbox BBox) *geojson.FeatureCollection {
	fc, err := c.run(ctx, bbox)
	if err != nil {
		zap.L().Warn("trails: trailheads fetch failed, omitting trailhead layer", zap.Error(err))
		return &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	}
	return fc
}

func (c *TrailheadsClient) run(ctx context.Context, bbox BBox) (*geojson.FeatureCollection, error) {
	ctx, cancel := context.WithTimeout(ctx, trailheadsTimeout)
	defer cancel()

	params := url.Values{
		"f":              {"geojson"},
		"where":          {"1=1"},
		"geometry":       {fmt.Sprintf("%f,%f,%f,%f", bbox.West, bbox.South, bbox.East, bbox.North)},
		"geometryType":   {"esriGeometryEnvelope"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"outFields":      {"NAME,ADDRESS,CITY,STATE,ZIPCODE,SOURCE_ORIGINATOR"},
		"returnGeometry": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "trails: build trailheads request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "trails: trailheads request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("trails: trailheads returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "trails: read trailheads body")
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrap(err, "trails: parse trailheads response")
	}
	if fc.Features == nil {
		fc.Features = []*geojson.Feature{}
	}
	return &fc, nil
}
