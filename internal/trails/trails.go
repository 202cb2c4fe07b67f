// Package trails assembles hiking-map data around a point: OSM trail ways
// from Overpass, USGS trailhead structures, and an optional state trails
// shapefile, merged into one GeoJSON document for the client map layer.
package trails

import (
	"html"
	"math"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// BBox is a south/west/north/east bounding box in degrees.
type BBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

const kmPerDegree = 111.32

// BBoxFromPoint returns the box extending radiusKm from the point in each
// direction, widening longitude by the latitude's convergence factor.
func BBoxFromPoint(lat, lng, radiusKm float64) BBox {
	dLat := radiusKm / kmPerDegree
	dLng := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180))
	return BBox{
		South: lat - dLat,
		West:  lng - dLng,
		North: lat + dLat,
		East:  lng + dLng,
	}
}

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Map style identifiers accepted by the client.
const (
	StyleTerrain   = "terrain"
	StyleSatellite = "satellite"
	StyleStreets   = "streets"
)

const (
	DefaultZoom     = 12
	DefaultRadiusKm = 2500.0
	// DefaultMapRadiusKm is the radius the HTTP map endpoint assumes when the
	// client sends none; DefaultRadiusKm covers full CLI exports.
	DefaultMapRadiusKm = 15.0
	maxTitleLen        = 100
)

// MapRequest describes one map-data lookup.
type MapRequest struct {
	Lat      float64
	Lng      float64
	Zoom     int
	RadiusKm float64
	Style    string
	Title    string
}

// Validate range-checks the request and fills defaults. The title is
// sanitized in place.
func (r *MapRequest) Validate() error {
	if r.Lat < -90 || r.Lat > 90 {
		return eris.Errorf("trails: latitude must be between -90 and 90, got %g", r.Lat)
	}
	if r.Lng < -180 || r.Lng > 180 {
		return eris.Errorf("trails: longitude must be between -180 and 180, got %g", r.Lng)
	}
	if r.Zoom == 0 {
		r.Zoom = DefaultZoom
	}
	if r.Zoom < 1 || r.Zoom > 18 {
		return eris.Errorf("trails: zoom must be between 1 and 18, got %d", r.Zoom)
	}
	if r.RadiusKm == 0 {
		r.RadiusKm = DefaultRadiusKm
	}
	if r.RadiusKm < 0 {
		return eris.Errorf("trails: radius must be positive, got %g", r.RadiusKm)
	}
	if r.Style == "" {
		r.Style = StyleTerrain
	}
	switch r.Style {
	case StyleTerrain, StyleSatellite, StyleStreets:
	default:
		return eris.Errorf("trails: style must be one of terrain, satellite, streets, got %q", r.Style)
	}
	r.Title = SanitizeTitle(r.Title)
	return nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeTitle strips HTML tags, escapes what remains and caps the length.
// Titles end up inside the rendered map page.
func SanitizeTitle(title string) string {
	title = tagPattern.ReplaceAllString(title, "")
	title = html.EscapeString(strings.TrimSpace(title))
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return title
}
