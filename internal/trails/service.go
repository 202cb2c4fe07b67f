package trails

import (
	"context"
	"fmt"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Service assembles map data from the trail sources. Shapefile is optional.
type Service struct {
	overpass   *OverpassClient
	trailheads *TrailheadsClient
	shapefile  *ShapefileSource
}

// NewService creates a Service. A nil shapefile source disables that layer.
func NewService(overpass *OverpassClient, trailheads *TrailheadsClient, shapefile *ShapefileSource) *Service {
	return &Service{overpass: overpass, trailheads: trailheads, shapefile: shapefile}
}

// Marker is one rendered trailhead pin. Nearby trailheads collapse into a
// single grouped marker.
type Marker struct {
	Lat   float64  `json:"lat"`
	Lng   float64  `json:"lng"`
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Names []string `json:"names,omitempty"`
}

// MapData is the assembled document the client map layer consumes.
type MapData struct {
	Center      Location                   `json:"center"`
	Zoom        int                        `json:"zoom"`
	Style       string                     `json:"style"`
	Title       string                     `json:"title,omitempty"`
	Trails      *geojson.FeatureCollection `json:"trails"`
	Trailheads  *geojson.FeatureCollection `json:"trailheads"`
	StateTrails *geojson.FeatureCollection `json:"state_trails"`
	Markers     []Marker                   `json:"markers"`
}

// Location is the map center point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapData validates the request and assembles all layers. Source failures
// degrade to empty layers rather than failing the whole map.
func (s *Service) MapData(ctx context.Context, req MapRequest) (*MapData, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bbox := BBoxFromPoint(req.Lat, req.Lng, req.RadiusKm)

	osm := s.overpass.FetchTrails(ctx, bbox)
	heads := s.trailheads.FetchTrailheads(ctx, bbox)
	state := s.shapefile.Within(bbox)

	zap.L().Debug("trails: assembled map data",
		zap.Int("osm_trails", len(osm.Features)),
		zap.Int("trailheads", len(heads.Features)),
		zap.Int("state_trails", len(state.Features)),
	)

	return &MapData{
		Center:      Location{Lat: req.Lat, Lng: req.Lng},
		Zoom:        req.Zoom,
		Style:       req.Style,
		Title:       req.Title,
		Trails:      osm,
		Trailheads:  heads,
		StateTrails: state,
		Markers:     GroupMarkers(heads),
	}, nil
}

// GroupMarkers buckets trailhead points by coordinates rounded to two
// decimals, merging each bucket into one marker.
func GroupMarkers(fc *geojson.FeatureCollection) []Marker {
	type bucket struct {
		lat, lng float64
		names    []string
	}
	groups := make(map[string]*bucket)
	var order []string

	for _, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if ok && pt.Layout().Stride() >= 2 {
			lng, lat := pt.X(), pt.Y()
			key := fmt.Sprintf("%.2f_%.2f", lat, lng)
			g, exists := groups[key]
			if !exists {
				g = &bucket{lat: lat, lng: lng}
				groups[key] = g
				order = append(order, key)
			}
			g.names = append(g.names, markerName(f.Properties))
		}
	}

	markers := make([]Marker, 0, len(order))
	for _, key := range order {
		g := groups[key]
		m := Marker{Lat: g.lat, Lng: g.lng, Name: g.names[0], Count: len(g.names)}
		if len(g.names) > 1 {
			m.Name = fmt.Sprintf("%d trailheads", len(g.names))
			m.Names = g.names
		}
		markers = append(markers, m)
	}
	return markers
}

func markerName(props map[string]any) string {
	if name, ok := props["NAME"].(string); ok && name != "" {
		return name
	}
	return "Trailhead"
}
