package trails

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ShapefileSource serves trail geometries loaded once from a state trails
// shapefile. Records are held in memory; lookups filter by bounding box.
type ShapefileSource struct {
	features []*geojson.Feature
	boxes    []BBox
}

// LoadShapefile reads every polyline record from the shapefile at path,
// converting each to a MultiLineString feature carrying the record's
// attributes as properties.
func LoadShapefile(path string) (*ShapefileSource, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "trails: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = strings.TrimRight(f.String(), "\x00")
	}

	src := &ShapefileSource{}
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		line, ok := shape.(*shp.PolyLine)
		if !ok {
			skipped++
			continue
		}

		mls, err := polylineToGeom(line)
		if err != nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(fieldNames))
		for i, name := range fieldNames {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}

		src.features = append(src.features, &geojson.Feature{
			ID:         fmt.Sprintf("shp/%d", n),
			Geometry:   mls,
			Properties: props,
		})
		src.boxes = append(src.boxes, BBox{
			South: line.Box.MinY,
			West:  line.Box.MinX,
			North: line.Box.MaxY,
			East:  line.Box.MaxX,
		})
	}

	if skipped > 0 {
		zap.L().Debug("trails: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return src, nil
}

// polylineToGeom converts a shapefile polyline (possibly multi-part) to a
// go-geom MultiLineString in lon/lat order.
func polylineToGeom(line *shp.PolyLine) (*geom.MultiLineString, error) {
	mls := geom.NewMultiLineString(geom.XY)
	parts := append([]int32{}, line.Parts...)
	parts = append(parts, int32(len(line.Points)))

	for p := 0; p < len(parts)-1; p++ {
		start, end := parts[p], parts[p+1]
		if end-start < 2 {
			continue
		}
		coords := make([]geom.Coord, 0, end-start)
		for _, pt := range line.Points[start:end] {
			coords = append(coords, geom.Coord{pt.X, pt.Y})
		}
		ls := geom.NewLineString(geom.XY)
		if _, err := ls.SetCoords(coords); err != nil {
			return nil, eris.Wrap(err, "trails: build line string")
		}
		if err := mls.Push(ls); err != nil {
			return nil, eris.Wrap(err, "trails: push line string")
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil, eris.New("trails: polyline has no usable parts")
	}
	return mls, nil
}

// Within returns the features whose bounding boxes intersect the given box.
func (s *ShapefileSource) Within(bbox BBox) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	if s == nil {
		return fc
	}
	for i, f := range s.features {
		b := s.boxes[i]
		if b.South > bbox.North || b.North < bbox.South || b.West > bbox.East || b.East < bbox.West {
			continue
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}

// Len reports how many features were loaded.
func (s *ShapefileSource) Len() int {
	if s == nil {
		return 0
	}
	return len(s.features)
}
