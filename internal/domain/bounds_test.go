package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countyMap map[string]Bounds

func (m countyMap) CountyBounds(fips string) (Bounds, bool) {
	b, ok := m[fips]
	return b, ok
}

type shapeMap struct {
	countyMap
	rings map[string][][]Coordinate
}

func (m shapeMap) CountyRings(fips string) ([][]Coordinate, bool) {
	r, ok := m.rings[fips]
	return r, ok
}

func square() [][]Coordinate {
	return [][]Coordinate{{{-100, 40}, {-99, 40}, {-99, 41}, {-100, 41}, {-100, 40}}}
}

func TestDeriveBounds_Polygon(t *testing.T) {
	b := DeriveBounds(Alert{Geometry: square()}, nil)

	assert.Equal(t, Bounds{North: 41, South: 40, East: -99, West: -100}, b)
	assert.True(t, b.Valid())
}

func TestDeriveBounds_MultipleRings(t *testing.T) {
	geometry := append(square(), []Coordinate{{-97.5, 39.25}, {-96, 42.5}})
	b := DeriveBounds(Alert{Geometry: geometry}, nil)

	assert.Equal(t, Bounds{North: 42.5, South: 39.25, East: -96, West: -100}, b)
}

func TestDeriveBounds_EmptyGeometryIsInvalid(t *testing.T) {
	b := DeriveBounds(Alert{Geometry: [][]Coordinate{}}, nil)
	assert.False(t, b.Valid())

	b = DeriveBounds(Alert{Geometry: [][]Coordinate{{}}}, nil)
	assert.False(t, b.Valid())
}

func TestDeriveBounds_Counties(t *testing.T) {
	counties := countyMap{
		"30013": {North: 47.7, South: 47.0, East: -110.6, West: -111.8},
		"30015": {North: 48.3, South: 47.4, East: -109.8, West: -111.2},
	}

	t.Run("union of matched counties", func(t *testing.T) {
		alert := Alert{SAMECodes: []string{"030013", "030015", "099999"}}
		b := DeriveBounds(alert, counties)

		assert.Equal(t, Bounds{North: 48.3, South: 47.0, East: -109.8, West: -111.8}, b)
	})

	t.Run("no matches", func(t *testing.T) {
		b := DeriveBounds(Alert{SAMECodes: []string{"099999"}}, counties)
		assert.False(t, b.Valid())
	})

	t.Run("no codes", func(t *testing.T) {
		assert.False(t, DeriveBounds(Alert{}, counties).Valid())
	})

	t.Run("no lookup", func(t *testing.T) {
		assert.False(t, DeriveBounds(Alert{SAMECodes: []string{"030013"}}, nil).Valid())
	})
}

func TestCountyRings(t *testing.T) {
	outline := []Coordinate{{-111.8, 47.0}, {-110.6, 47.0}, {-110.6, 47.7}, {-111.8, 47.0}}
	lookup := shapeMap{
		countyMap: countyMap{"30013": {North: 47.7, South: 47.0, East: -110.6, West: -111.8}},
		rings:     map[string][][]Coordinate{"30013": {outline}},
	}

	rings := CountyRings(Alert{SAMECodes: []string{"030013", "099999"}}, lookup)
	assert.Equal(t, [][]Coordinate{outline}, rings)

	assert.Nil(t, CountyRings(Alert{Geometry: square(), SAMECodes: []string{"030013"}}, lookup))
	assert.Nil(t, CountyRings(Alert{SAMECodes: []string{"030013"}}, lookup.countyMap))
	assert.Nil(t, CountyRings(Alert{SAMECodes: []string{"030013"}}, nil))
}

func TestSAMEToFIPS(t *testing.T) {
	assert.Equal(t, "30013", SAMEToFIPS("030013"))
	assert.Equal(t, "48453", SAMEToFIPS("148453"))
	assert.Empty(t, SAMEToFIPS(""))
}

func TestBounds_Valid(t *testing.T) {
	assert.True(t, Bounds{}.Valid())
	assert.False(t, InvalidBounds().Valid())
	assert.False(t, Bounds{North: math.NaN()}.Valid())
	assert.False(t, Bounds{East: math.Inf(1)}.Valid())
}

func TestBounds_Zoom(t *testing.T) {
	b := Bounds{North: 41, South: 40, East: -99, West: -100}

	t.Run("factor 1 is a no-op", func(t *testing.T) {
		assert.Equal(t, b, b.Zoom(1))
	})

	t.Run("zoom out", func(t *testing.T) {
		z := b.Zoom(0.5)
		assert.InDelta(t, 41.5, z.North, 1e-9)
		assert.InDelta(t, 39.5, z.South, 1e-9)
		assert.InDelta(t, -98.5, z.East, 1e-9)
		assert.InDelta(t, -100.5, z.West, 1e-9)
	})

	t.Run("zoom in", func(t *testing.T) {
		z := b.Zoom(2)
		assert.InDelta(t, 40.75, z.North, 1e-9)
		assert.InDelta(t, 40.25, z.South, 1e-9)
	})

	t.Run("center is preserved", func(t *testing.T) {
		boxes := []Bounds{
			b,
			{North: 48.3, South: 47.0, East: -109.8, West: -111.8},
			{North: 0.001, South: -0.001, East: 179.9, West: 170},
		}
		for _, box := range boxes {
			for _, f := range []float64{0.1, 0.7, 1, 1.3, 5} {
				lon, lat := box.Center()
				zlon, zlat := box.Zoom(f).Center()
				assert.InDelta(t, lon, zlon, 1e-9)
				assert.InDelta(t, lat, zlat, 1e-9)
			}
		}
	})
}

func TestBounds_SetAspect(t *testing.T) {
	t.Run("wide box gets taller", func(t *testing.T) {
		b := Bounds{North: 41, South: 40, East: -96, West: -100}.SetAspect(2)
		assert.InDelta(t, 41.5, b.North, 1e-9)
		assert.InDelta(t, 39.5, b.South, 1e-9)
		assert.Equal(t, -96.0, b.East)
		assert.Equal(t, -100.0, b.West)
	})

	t.Run("tall box gets wider", func(t *testing.T) {
		b := Bounds{North: 44, South: 40, East: -99, West: -100}.SetAspect(1)
		assert.Equal(t, 44.0, b.North)
		assert.Equal(t, 40.0, b.South)
		assert.InDelta(t, -97.5, b.East, 1e-9)
		assert.InDelta(t, -101.5, b.West, 1e-9)
	})

	t.Run("result has the requested ratio", func(t *testing.T) {
		ratio := 16.0 / 9.0
		for _, b := range []Bounds{
			{North: 41, South: 40, East: -96, West: -100},
			{North: 44, South: 40, East: -99, West: -100},
		} {
			out := b.SetAspect(ratio)
			got := (out.East - out.West) / (out.North - out.South)
			assert.InDelta(t, ratio, got, 1e-9)
			lon, lat := b.Center()
			olon, olat := out.Center()
			assert.InDelta(t, lon, olon, 1e-9)
			assert.InDelta(t, lat, olat, 1e-9)
		}
	})
}

func TestBounds_Extent(t *testing.T) {
	b := Bounds{North: 41, South: 40, East: -99, West: -100}
	assert.Equal(t, [4]float64{-100, -99, 40, 41}, b.Extent())
	assert.Equal(t, "Bounds(north=41.000, south=40.000, east=-99.000, west=-100.000)", b.String())
}
