package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedAlert marks feed records that cannot be turned into an Alert.
var ErrMalformedAlert = errors.New("malformed alert")

// DecodeFeed unmarshals an /alerts/active response body.
func DecodeFeed(body []byte) (FeedResponse, error) {
	var resp FeedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return FeedResponse{}, fmt.Errorf("decode feed: %w", err)
	}
	return resp, nil
}

// ParseFeature validates a feed record and converts it into an Alert.
// The sent, effective, onset and expires timestamps are required; ends is
// optional and left nil when missing or unparseable.
func ParseFeature(f Feature) (Alert, error) {
	p := f.Properties
	if f.ID == "" {
		return Alert{}, fmt.Errorf("%w: missing id", ErrMalformedAlert)
	}

	var ts [4]time.Time
	for i, field := range []struct {
		name  string
		value string
	}{
		{"sent", p.Sent},
		{"effective", p.Effective},
		{"onset", p.Onset},
		{"expires", p.Expires},
	} {
		t, err := parseTimestamp(field.value)
		if err != nil {
			return Alert{}, fmt.Errorf("%w: %s %q: %v", ErrMalformedAlert, field.name, field.value, err)
		}
		ts[i] = t
	}

	alert := Alert{
		ID:          f.ID,
		Event:       p.Event,
		MessageType: p.MessageType,
		Status:      p.Status,
		Severity:    p.Severity,
		Certainty:   p.Certainty,
		Urgency:     p.Urgency,
		SenderName:  p.SenderName,
		AreaDesc:    p.AreaDesc,
		Headline:    p.Headline,
		Description: NormalizeDescription(p.Description),
		Sent:        ts[0],
		Effective:   ts[1],
		Onset:       ts[2],
		Expires:     ts[3],
	}
	if p.Instruction != nil {
		alert.Instruction = *p.Instruction
	}
	if p.Ends != nil {
		if t, err := parseTimestamp(*p.Ends); err == nil {
			alert.Ends = &t
		}
	}

	if f.Geometry != nil {
		rings, err := decodeRings(*f.Geometry)
		if err != nil {
			return Alert{}, fmt.Errorf("%w: %v", ErrMalformedAlert, err)
		}
		alert.Geometry = rings
	} else {
		alert.SAMECodes = p.Geocode.SAME
	}

	return alert, nil
}

// ParseExpires extracts only the expiry time, so already-expired records can
// be dropped before full validation.
func ParseExpires(f Feature) (time.Time, error) {
	t, err := parseTimestamp(f.Properties.Expires)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expires %q: %v", ErrMalformedAlert, f.Properties.Expires, err)
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

// NormalizeDescription keeps paragraph breaks (blank lines) and joins the
// hard-wrapped lines inside each paragraph with spaces.
func NormalizeDescription(desc string) string {
	paragraphs := strings.Split(desc, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = strings.ReplaceAll(p, "\n", " ")
	}
	return strings.Join(paragraphs, "\n\n")
}

// decodeRings flattens Polygon and MultiPolygon coordinates into a list of rings.
func decodeRings(g FeatureGeometry) ([][]Coordinate, error) {
	switch g.Type {
	case "Polygon":
		var rings [][]Coordinate
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("polygon coordinates: %w", err)
		}
		return nonNil(rings), nil
	case "MultiPolygon":
		var polys [][][]Coordinate
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		rings := make([][]Coordinate, 0)
		for _, poly := range polys {
			rings = append(rings, poly...)
		}
		return rings, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

// nonNil keeps "geometry present but empty" distinct from "no geometry".
func nonNil(rings [][]Coordinate) [][]Coordinate {
	if rings == nil {
		return [][]Coordinate{}
	}
	return rings
}
