package trails

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"
)

func TestPolylineToGeom(t *testing.T) {
	line := &shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 3},
		Points: []shp.Point{
			{X: -121.88, Y: 37.51},
			{X: -121.87, Y: 37.52},
			{X: -121.86, Y: 37.53},
			{X: -121.80, Y: 37.60},
			{X: -121.79, Y: 37.61},
		},
	}

	mls, err := polylineToGeom(line)
	require.NoError(t, err)
	assert.Equal(t, 2, mls.NumLineStrings())
	assert.Equal(t, 3, mls.LineString(0).NumCoords())
	assert.Equal(t, 2, mls.LineString(1).NumCoords())
	// Shapefile X/Y map to GeoJSON lon/lat.
	assert.InDelta(t, -121.88, mls.LineString(0).Coord(0)[0], 1e-9)
}

func TestPolylineToGeom_NoUsableParts(t *testing.T) {
	line := &shp.PolyLine{
		NumParts: 1,
		Parts:    []int32{0},
		Points:   []shp.Point{{X: -121.88, Y: 37.51}},
	}
	_, err := polylineToGeom(line)
	require.Error(t, err)
}

// writeTestShapefile creates a small polyline shapefile with a NAME field.
func writeTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trails.shp")

	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 64)}))

	lines := []struct {
		name   string
		points []shp.Point
	}{
		{"Mission Peak Trail", []shp.Point{{X: -121.90, Y: 37.50}, {X: -121.88, Y: 37.52}}},
		{"Del Valle Loop", []shp.Point{{X: -121.76, Y: 37.59}, {X: -121.74, Y: 37.61}}},
	}
	for _, l := range lines {
		idx := w.Write(&shp.PolyLine{
			NumParts:  1,
			NumPoints: int32(len(l.points)),
			Parts:     []int32{0},
			Points:    l.points,
			Box:       shp.Box{MinX: l.points[0].X, MinY: l.points[0].Y, MaxX: l.points[1].X, MaxY: l.points[1].Y},
		})
		require.NoError(t, w.WriteAttribute(int(idx), 0, l.name))
	}
	w.Close()
	// go-shp v0.1.1's Writer creates the attribute file without the dot
	// ("trailsdbf") while the Reader opens "trails.dbf"; rename so the
	// attributes are found on read.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestLoadShapefile(t *testing.T) {
	src, err := LoadShapefile(writeTestShapefile(t))
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	// A box around Mission Peak matches only the first trail.
	fc := src.Within(BBoxFromPoint(37.51, -121.89, 5))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Mission Peak Trail", fc.Features[0].Properties["NAME"])
	_, ok := fc.Features[0].Geometry.(*geom.MultiLineString)
	assert.True(t, ok)

	// A box far away matches nothing.
	assert.Empty(t, src.Within(BBoxFromPoint(40.0, -100.0, 5)).Features)
}

func TestLoadShapefile_MissingFile(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
}

func TestShapefileSource_NilSafe(t *testing.T) {
	var src *ShapefileSource
	assert.Equal(t, 0, src.Len())
	assert.Empty(t, src.Within(BBox{}).Features)
}
