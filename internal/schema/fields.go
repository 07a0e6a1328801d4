// README: Alias-tolerant field access over loosely-typed store documents.
// Different client app versions write the same logical field under different
// names; the alias tables here are the single place that knowledge lives.
package schema

import (
	"strings"

	"google.golang.org/genproto/googleapis/type/latlng"

	"ridelink/internal/types"
)

// Fields is a raw document body as returned by a document store.
type Fields map[string]any

// Alias tables for the logical fields the engine reads. Order matters: the
// first alias that yields a value wins.
var (
	PickupAliases          = []string{"pickupLocation", "pickup_location", "pickup"}
	DestinationAliases     = []string{"destinationLocation", "destination", "destination_location"}
	DriverStartAliases     = []string{"currentRouteStart", "nextTargetLocation", "current_location", "currentLocation"}
	DriverEndAliases       = []string{"currentRouteEnd", "destination", "currentDestination"}
	DriverLocationAliases  = []string{"currentLocation", "current_location", "riderLocation"}
	CurrentRideAliases     = []string{"current_ride_request", "currentRideRequest", "current_ride"}
	RequestIDAliases       = []string{"request_id", "requestId", "request"}
	ProposalDriverAliases  = []string{"riderUid", "driverId", "riderId"}
	PassengerUIDAliases    = []string{"passengerId", "passengerUid", "riderUid"}
	DriverNameAliases      = []string{"driverName", "driver_name", "driver", "driverFullName"}
	DriverPhoneAliases     = []string{"driverPhone", "driver_phone", "driver_contact"}
	ProposalLocationAlias  = []string{"riderLocation", "driverLocation", "rider_location"}
	nestedLocationWrappers = []string{"coords", "location", "geo", "position"}
)

// Str returns the first non-empty string stored under any of the keys.
func (f Fields) Str(keys ...string) string {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Bool returns the first boolean stored under any of the keys.
func (f Fields) Bool(keys ...string) bool {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}

// Float returns the first numeric value stored under any of the keys.
func (f Fields) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if n, ok := toFloat(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Raw returns the first present value stored under any of the keys, without
// interpretation. Used when a field is mirrored verbatim between stores.
func (f Fields) Raw(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Status returns the lowercased document status.
func (f Fields) Status() string {
	return strings.ToLower(f.Str("status"))
}

// GeoPoint normalizes whatever is stored under the keys into a coordinate.
// Accepted shapes: *latlng.LatLng (the Firestore GeoPoint wire type), a
// types.Point, or a map with any of the latitude/longitude aliases, possibly
// nested one level under coords/location/geo/position.
func (f Fields) GeoPoint(keys ...string) (types.Point, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			if p, ok := normalizePoint(v); ok {
				return p, true
			}
		}
	}
	return types.Point{}, false
}

func normalizePoint(v any) (types.Point, bool) {
	switch loc := v.(type) {
	case nil:
		return types.Point{}, false
	case *latlng.LatLng:
		if loc == nil {
			return types.Point{}, false
		}
		return types.Point{Lat: loc.Latitude, Lng: loc.Longitude}, true
	case types.Point:
		return loc, true
	case Fields:
		return pointFromMap(loc)
	case map[string]any:
		return pointFromMap(loc)
	}
	return types.Point{}, false
}

func pointFromMap(m map[string]any) (types.Point, bool) {
	lat, latOK := firstFloat(m, "latitude", "lat", "Latitude")
	lng, lngOK := firstFloat(m, "longitude", "lng", "lon", "Longitude")
	if latOK && lngOK {
		return types.Point{Lat: lat, Lng: lng}, true
	}
	for _, wrap := range nestedLocationWrappers {
		if nested, ok := m[wrap].(map[string]any); ok {
			if p, ok := pointFromMap(nested); ok {
				return p, true
			}
		}
	}
	return types.Point{}, false
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if n, ok := toFloat(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ToLatLng converts a point to the Firestore GeoPoint wire type.
func ToLatLng(p types.Point) *latlng.LatLng {
	return &latlng.LatLng{Latitude: p.Lat, Longitude: p.Lng}
}
