// README: Pure geographic computations: great-circle distance and detour cost.
package geo

import (
	"math"

	"ridelink/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance in kilometres
// between two points specified in decimal degrees.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// IncrementalDetourKm quantifies the extra travel a driver incurs by serving
// a pickup/dropoff pair on the way from driverStart to driverEnd. It returns
// the incremental cost together with the base (direct) and new route costs.
func IncrementalDetourKm(driverStart, driverEnd, pickup, dropoff types.Point) (detour, base, newTotal float64) {
	base = DistanceKm(driverStart, driverEnd)
	newTotal = DistanceKm(driverStart, pickup) +
		DistanceKm(pickup, dropoff) +
		DistanceKm(dropoff, driverEnd)
	return newTotal - base, base, newTotal
}

// Midpoint returns the arithmetic midpoint of two nearby points. Good enough
// at rendezvous distances; not intended for antipodal inputs.
func Midpoint(a, b types.Point) types.Point {
	return types.Point{
		Lat: (a.Lat + b.Lat) / 2,
		Lng: (a.Lng + b.Lng) / 2,
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
