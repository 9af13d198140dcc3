package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// FeedResponse is the GeoJSON FeatureCollection returned by /alerts/active.
type FeedResponse struct {
	Features []Feature `json:"features"`
}

// Feature represents one alert record as it arrives from the feed, before
// timestamps are parsed.
type Feature struct {
	ID         string            `json:"id"`
	Geometry   *FeatureGeometry  `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureGeometry holds the raw GeoJSON geometry. Coordinates are decoded
// lazily because their nesting depends on Type.
type FeatureGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// FeatureProperties mirrors the NWS CAP properties the service reads.
type FeatureProperties struct {
	ID          string   `json:"id"`
	Event       string   `json:"event"`
	MessageType string   `json:"messageType"`
	Status      string   `json:"status"`
	Severity    string   `json:"severity"`
	Certainty   string   `json:"certainty"`
	Urgency     string   `json:"urgency"`
	SenderName  string   `json:"senderName"`
	AreaDesc    string   `json:"areaDesc"`
	Headline    string   `json:"headline"`
	Description string   `json:"description"`
	Instruction *string  `json:"instruction"`
	Sent        string   `json:"sent"`
	Effective   string   `json:"effective"`
	Onset       string   `json:"onset"`
	Expires     string   `json:"expires"`
	Ends        *string  `json:"ends"`
	Geocode     Geocodes `json:"geocode"`
}

// Geocodes lists the areas an alert applies to.
type Geocodes struct {
	SAME []string `json:"SAME"`
	UGC  []string `json:"UGC"`
}

// Coordinate is a (lon, lat) pair in GeoJSON order.
type Coordinate [2]float64

// Lon returns the longitude.
func (c Coordinate) Lon() float64 { return c[0] }

// Lat returns the latitude.
func (c Coordinate) Lat() float64 { return c[1] }

// Alert is the validated, typed form of a Feature.
type Alert struct {
	ID          string     `json:"id" bson:"id"`
	Event       string     `json:"event" bson:"event"`
	MessageType string     `json:"message_type" bson:"message_type"`
	Status      string     `json:"status,omitempty" bson:"status,omitempty"`
	Severity    string     `json:"severity" bson:"severity"`
	Certainty   string     `json:"certainty,omitempty" bson:"certainty,omitempty"`
	Urgency     string     `json:"urgency,omitempty" bson:"urgency,omitempty"`
	SenderName  string     `json:"sender_name,omitempty" bson:"sender_name,omitempty"`
	AreaDesc    string     `json:"area_desc" bson:"area_desc"`
	Headline    string     `json:"headline" bson:"headline"`
	Description string     `json:"description" bson:"description"`
	Instruction string     `json:"instruction,omitempty" bson:"instruction,omitempty"`
	Sent        time.Time  `json:"sent" bson:"sent"`
	Effective   time.Time  `json:"effective" bson:"effective"`
	Onset       time.Time  `json:"onset" bson:"onset"`
	Expires     time.Time  `json:"expires" bson:"expires"`
	Ends        *time.Time `json:"ends,omitempty" bson:"ends,omitempty"`

	// Exactly one of Geometry and SAMECodes is used for bounds derivation:
	// Geometry when the alert carries a polygon, SAMECodes otherwise.
	Geometry  [][]Coordinate `json:"geometry,omitempty" bson:"geometry,omitempty"`
	SAMECodes []string       `json:"same_codes,omitempty" bson:"same_codes,omitempty"`
}

// HasGeometry reports whether the alert carries polygon geometry.
func (a Alert) HasGeometry() bool {
	return a.Geometry != nil
}

// IsWatch reports whether the event name marks the watch phase.
func (a Alert) IsWatch() bool {
	return strings.Contains(a.Event, "Watch")
}

// Attribute returns the value of a feed property by its feed name. The second
// return value is false for names the alert model does not carry.
func (a Alert) Attribute(name string) (string, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "event":
		return a.Event, true
	case "messageType":
		return a.MessageType, true
	case "status":
		return a.Status, true
	case "severity":
		return a.Severity, true
	case "certainty":
		return a.Certainty, true
	case "urgency":
		return a.Urgency, true
	case "senderName":
		return a.SenderName, true
	case "areaDesc":
		return a.AreaDesc, true
	case "headline":
		return a.Headline, true
	case "description":
		return a.Description, true
	case "instruction":
		return a.Instruction, true
	default:
		return "", false
	}
}

// NotificationEvent records a delivered (or attempted) notification for
// downstream consumers.
type NotificationEvent struct {
	AlertID    string    `json:"alert_id"`
	Event      string    `json:"event"`
	Severity   string    `json:"severity"`
	AreaDesc   string    `json:"area_desc"`
	Bounds     Bounds    `json:"bounds"`
	Image      string    `json:"image,omitempty"`
	Color      int       `json:"color"`
	StatusCode int       `json:"status_code"`
	Expires    time.Time `json:"expires"`
	NotifiedAt time.Time `json:"notified_at"`
}
