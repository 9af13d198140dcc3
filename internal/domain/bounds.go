package domain

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// DefaultZoom is applied to derived bounds before rendering. Values below 1
// zoom out.
const DefaultZoom = 0.7

// Bounds is the outermost latitude/longitude extent of an alert's area.
// X is longitude and Y latitude throughout; arithmetic assumes an
// equirectangular (Plate Carrée) plane.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CountyLookup resolves county FIPS codes to the extent of each county's geometry.
type CountyLookup interface {
	CountyBounds(fips string) (Bounds, bool)
}

// CountyShapes is implemented by lookups that also keep county outlines.
type CountyShapes interface {
	CountyRings(fips string) ([][]Coordinate, bool)
}

// InvalidBounds is returned when there is nothing to derive an extent from.
func InvalidBounds() Bounds {
	nan := math.NaN()
	return Bounds{North: nan, South: nan, East: nan, West: nan}
}

// DeriveBounds computes the bounding box of an alert. Polygon alerts use every
// vertex of every ring; county-coded alerts use the union of the matching
// counties' extents. An empty coordinate set or no matched counties yields
// InvalidBounds.
func DeriveBounds(alert Alert, counties CountyLookup) Bounds {
	if alert.HasGeometry() {
		var points []r2.Point
		for _, ring := range alert.Geometry {
			for _, c := range ring {
				points = append(points, r2.Point{X: c.Lon(), Y: c.Lat()})
			}
		}
		if len(points) == 0 {
			return InvalidBounds()
		}
		return fromRect(r2.RectFromPoints(points...))
	}

	if counties == nil {
		return InvalidBounds()
	}
	rect := r2.EmptyRect()
	for _, code := range alert.SAMECodes {
		b, ok := counties.CountyBounds(SAMEToFIPS(code))
		if !ok || !b.Valid() {
			continue
		}
		rect = rect.Union(b.rect())
	}
	if rect.IsEmpty() {
		return InvalidBounds()
	}
	return fromRect(rect)
}

// CountyRings collects the outlines of the counties a county-coded alert
// covers. It returns nil for polygon alerts and when the lookup keeps no
// outlines.
func CountyRings(alert Alert, counties CountyLookup) [][]Coordinate {
	shapes, ok := counties.(CountyShapes)
	if !ok || alert.HasGeometry() {
		return nil
	}
	var rings [][]Coordinate
	for _, code := range alert.SAMECodes {
		if r, ok := shapes.CountyRings(SAMEToFIPS(code)); ok {
			rings = append(rings, r...)
		}
	}
	return rings
}

// SAMEToFIPS drops the leading subdivision digit of a six-digit SAME code,
// leaving the five-digit county FIPS code.
func SAMEToFIPS(code string) string {
	if code == "" {
		return ""
	}
	return code[1:]
}

// Valid reports whether all four edges are finite numbers.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Center returns the (lon, lat) midpoint of the box.
func (b Bounds) Center() (lon, lat float64) {
	return (b.East + b.West) / 2, (b.North + b.South) / 2
}

// Zoom scales the box about its center. Factors above 1 shrink it, factors
// below 1 grow it.
func (b Bounds) Zoom(factor float64) Bounds {
	lonCenter, latCenter := b.Center()
	latAdjust := math.Abs(b.North-b.South) / factor / 2
	lonAdjust := math.Abs(b.East-b.West) / factor / 2

	return Bounds{
		North: latCenter + latAdjust,
		South: latCenter - latAdjust,
		East:  lonCenter + lonAdjust,
		West:  lonCenter - lonAdjust,
	}
}

// SetAspect reshapes the box to a width:height ratio while keeping its
// center. A box already at least as wide as the ratio gets its latitude span
// set to lonSpan/ratio; a narrower box gets its longitude span widened to
// latSpan*ratio. Only meaningful in Plate Carrée coordinates.
func (b Bounds) SetAspect(ratio float64) Bounds {
	latRange := math.Abs(b.North - b.South)
	lonRange := math.Abs(b.East - b.West)
	lonCenter, latCenter := b.Center()

	out := b
	if lonRange/latRange >= ratio {
		latAdjust := lonRange / ratio / 2
		out.North = latCenter + latAdjust
		out.South = latCenter - latAdjust
	} else {
		lonAdjust := latRange * ratio / 2
		out.West = lonCenter - lonAdjust
		out.East = lonCenter + lonAdjust
	}
	return out
}

// Extent returns the box as [west, east, south, north].
func (b Bounds) Extent() [4]float64 {
	return [4]float64{b.West, b.East, b.South, b.North}
}

func (b Bounds) String() string {
	return fmt.Sprintf("Bounds(north=%.3f, south=%.3f, east=%.3f, west=%.3f)", b.North, b.South, b.East, b.West)
}

func (b Bounds) rect() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: b.West, Y: b.South}, r2.Point{X: b.East, Y: b.North})
}

func fromRect(r r2.Rect) Bounds {
	return Bounds{
		North: r.Y.Hi,
		South: r.Y.Lo,
		East:  r.X.Hi,
		West:  r.X.Lo,
	}
}
