// Package domain models National Weather Service (NWS) active alerts and the
// pure logic applied to them before a notification goes out.
//
// # Data Source
//
// Alerts come from the NWS API endpoint GET /alerts/active, filtered by the
// severity query parameter. The response is a GeoJSON FeatureCollection; each
// feature carries CAP properties (event, headline, timestamps, area
// description) and either a polygon geometry or, when the geometry is null, a
// list of affected areas in properties.geocode.
//
// # NWS Data Conventions
//
// Timestamps:
//
//	RFC 3339 with offset, e.g. "2024-06-15T12:21:00-06:00".
//	sent, effective, onset and expires are required; ends may be null.
//
// SAME codes:
//
//	Six digits, "PSSCCC": P is a county subdivision digit (0 = whole county),
//	SS the state FIPS code, CCC the county FIPS code. Dropping the first
//	digit gives the five-digit county FIPS code used by county boundary files.
//
// Descriptions:
//
//	Hard-wrapped near 70 columns with blank lines between paragraphs. Wrapped
//	lines are joined before storage, see [NormalizeDescription].
//
// Event phases:
//
//	The same hazard is issued as a "Watch" (conditions favorable) and a
//	"Warning" (occurring or imminent). Colors are picked per phase, see
//	[ResolveColor].
//
// # Geometry
//
// Bounds are computed in plain longitude/latitude degrees. [Bounds.Zoom] and
// [Bounds.SetAspect] assume an equirectangular projection; renderers using a
// different projection must account for the distortion themselves.
package domain
