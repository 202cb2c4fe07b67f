package trails

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const (
	// DefaultOverpassURL is the public Overpass API interpreter. Swap for a
	// self-hosted instance under heavy use.
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	overpassTimeout = 30 * time.Second
)

// OverpassClient fetches hiking trail ways from the Overpass API.
type OverpassClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOverpassClient creates an Overpass client. Empty args use defaults.
func NewOverpassClient(baseURL string, httpClient *http.Client) *OverpassClient {
	if baseURL == "" {
		baseURL = DefaultOverpassURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OverpassClient{baseURL: baseURL, httpClient: httpClient}
}

// overpassResponse is the "out geom" JSON shape: ways carry their node
// coordinates inline.
type overpassResponse struct {
	Elements []struct {
		Type     string            `json:"type"`
		ID       int64             `json:"id"`
		Tags     map[string]string `json:"tags"`
		Geometry []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"geometry"`
	} `json:"elements"`
}

// FetchTrails queries footway, path and track ways carrying a sac_scale tag
// within the box. A network or decode failure yields an empty collection, not
// an error; the map renders without the trail layer.
func (c *OverpassClient) FetchTrails(ctx context.Context, bbox BBox) *geojson.FeatureCollection {
	coords := fmt.Sprintf("%f,%f,%f,%f", bbox.South, bbox.West, bbox.North, bbox.East)
	query := fmt.Sprintf(`[out:json][timeout:25];
(
  way["highway"="footway"]["sac_scale"](%s);
  way["highway"="path"]["sac_scale"](%s);
  way["highway"="track"]["sac_scale"](%s);
);
out geom;`, coords, coords, coords)

	fc, err := c.run(ctx, query)
	if err != nil {
		zap.L().Warn("trails: overpass fetch failed, omitting trail layer", zap.Error(err))
		return &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	}
	return fc
}

func (c *OverpassClient) run(ctx context.Context, query string) (*geojson.FeatureCollection, error) {
	ctx, cancel := context.WithTimeout(ctx, overpassTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(query))
	if err != nil {
		return nil, eris.Wrap(err, "trails: build overpass request")
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "trails: overpass request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("trails: overpass returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "trails: read overpass body")
	}
	var decoded overpassResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, eris.Wrap(err, "trails: parse overpass response")
	}

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, el := range decoded.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		coords := make([]geom.Coord, 0, len(el.Geometry))
		for _, pt := range el.Geometry {
			coords = append(coords, geom.Coord{pt.Lon, pt.Lat})
		}
		line := geom.NewLineString(geom.XY)
		if _, err := line.SetCoords(coords); err != nil {
			continue
		}

		props := make(map[string]any, len(el.Tags))
		for k, v := range el.Tags {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         fmt.Sprintf("way/%d", el.ID),
			Geometry:   line,
			Properties: props,
		})
	}
	return fc, nil
}
