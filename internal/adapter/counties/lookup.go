// Package counties resolves county FIPS codes to geographic extents from a
// GeoJSON boundary file.
package counties

import (
	"fmt"
	"os"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultProperty is the feature property holding the five-digit FIPS code
// in Census cartographic boundary files.
const DefaultProperty = "GEOID"

// Lookup implements domain.CountyLookup and domain.CountyShapes.
type Lookup struct {
	bounds map[string]domain.Bounds
	rings  map[string][][]domain.Coordinate
}

// LoadFile reads a GeoJSON FeatureCollection of county shapes.
func LoadFile(path, property string) (*Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read counties file: %w", err)
	}
	return Parse(data, property)
}

// Parse builds a Lookup from GeoJSON. Features without a FIPS property or
// without geometry are skipped. When property is empty DefaultProperty is
// used, then the feature id.
func Parse(data []byte, property string) (*Lookup, error) {
	if property == "" {
		property = DefaultProperty
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode counties: %w", err)
	}

	l := &Lookup{
		bounds: make(map[string]domain.Bounds, len(fc.Features)),
		rings:  make(map[string][][]domain.Coordinate, len(fc.Features)),
	}
	for _, f := range fc.Features {
		fips := fipsOf(f, property)
		if fips == "" || f.Geometry == nil {
			continue
		}
		bound := f.Geometry.Bound()
		b := domain.Bounds{
			North: bound.Max.Lat(),
			South: bound.Min.Lat(),
			East:  bound.Max.Lon(),
			West:  bound.Min.Lon(),
		}
		if existing, ok := l.bounds[fips]; ok {
			b = union(existing, b)
		}
		l.bounds[fips] = b
		if rings := ringsOf(f.Geometry); len(rings) > 0 {
			l.rings[fips] = append(l.rings[fips], rings...)
		}
	}
	return l, nil
}

// CountyBounds returns the extent of a county by five-digit FIPS code.
func (l *Lookup) CountyBounds(fips string) (domain.Bounds, bool) {
	b, ok := l.bounds[fips]
	return b, ok
}

// CountyRings returns the outline rings of a county. Counties given as
// points or lines have no outline.
func (l *Lookup) CountyRings(fips string) ([][]domain.Coordinate, bool) {
	r, ok := l.rings[fips]
	return r, ok
}

// Len returns the number of counties loaded.
func (l *Lookup) Len() int { return len(l.bounds) }

func ringsOf(g orb.Geometry) [][]domain.Coordinate {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	default:
		return nil
	}

	var rings [][]domain.Coordinate
	for _, poly := range polys {
		for _, ring := range poly {
			r := make([]domain.Coordinate, len(ring))
			for i, pt := range ring {
				r[i] = domain.Coordinate{pt.Lon(), pt.Lat()}
			}
			rings = append(rings, r)
		}
	}
	return rings
}

func fipsOf(f *geojson.Feature, property string) string {
	if v, ok := f.Properties[property]; ok {
		return normalize(v)
	}
	if f.ID != nil {
		return normalize(f.ID)
	}
	return ""
}

func normalize(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%05d", int(x))
	default:
		return ""
	}
}

func union(a, b domain.Bounds) domain.Bounds {
	return domain.Bounds{
		North: max(a.North, b.North),
		South: min(a.South, b.South),
		East:  max(a.East, b.East),
		West:  min(a.West, b.West),
	}
}
