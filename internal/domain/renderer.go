package domain

import "context"

// RenderRequest describes the map to draw for one alert.
type RenderRequest struct {
	Alert  Alert
	Bounds Bounds
	Color  int
	// Areas holds the county outlines of a county-coded alert. Polygon
	// alerts carry their own rings in Alert.Geometry.
	Areas [][]Coordinate
}

// Renderer produces a map image for an alert and returns the stored file name.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}
