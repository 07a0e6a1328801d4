package schema

import (
	"testing"

	"google.golang.org/genproto/googleapis/type/latlng"

	"ridelink/internal/types"
)

func TestGeoPoint_Shapes(t *testing.T) {
	want := types.Point{Lat: 1.3, Lng: 103.8}

	tests := []struct {
		name string
		doc  Fields
	}{
		{
			name: "firestore geopoint",
			doc:  Fields{"pickupLocation": &latlng.LatLng{Latitude: 1.3, Longitude: 103.8}},
		},
		{
			name: "lat lng map",
			doc:  Fields{"pickupLocation": map[string]any{"lat": 1.3, "lng": 103.8}},
		},
		{
			name: "latitude longitude map",
			doc:  Fields{"pickupLocation": map[string]any{"latitude": 1.3, "longitude": 103.8}},
		},
		{
			name: "nested coords wrapper",
			doc:  Fields{"pickupLocation": map[string]any{"coords": map[string]any{"lat": 1.3, "lon": 103.8}}},
		},
		{
			name: "snake_case field alias",
			doc:  Fields{"pickup_location": map[string]any{"lat": 1.3, "lng": 103.8}},
		},
		{
			name: "bare pickup alias",
			doc:  Fields{"pickup": types.Point{Lat: 1.3, Lng: 103.8}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.doc.GeoPoint(PickupAliases...)
			if !ok {
				t.Fatalf("GeoPoint() not found")
			}
			if got != want {
				t.Fatalf("GeoPoint() = %v, want %v", got, want)
			}
		})
	}
}

func TestGeoPoint_Missing(t *testing.T) {
	docs := []Fields{
		{},
		{"pickupLocation": nil},
		{"pickupLocation": "not a point"},
		{"pickupLocation": map[string]any{"lat": 1.3}}, // longitude missing
	}
	for _, doc := range docs {
		if _, ok := doc.GeoPoint(PickupAliases...); ok {
			t.Errorf("GeoPoint(%v) unexpectedly parsed", doc)
		}
	}
}

func TestStr_AliasOrder(t *testing.T) {
	doc := Fields{"passengerUid": "u2", "passengerId": "u1"}
	if got := doc.Str(PassengerUIDAliases...); got != "u1" {
		t.Errorf("Str() = %q, want first alias to win", got)
	}
}

func TestStatus_Lowercases(t *testing.T) {
	doc := Fields{"status": "Pending"}
	if got := doc.Status(); got != "pending" {
		t.Errorf("Status() = %q", got)
	}
}

func TestFloat_IntegerValues(t *testing.T) {
	doc := Fields{"fareAmount": int64(12)}
	got, ok := doc.Float("fareAmount")
	if !ok || got != 12 {
		t.Errorf("Float() = %v, %v", got, ok)
	}
}

func TestIsEligibleDriverStatus(t *testing.T) {
	for _, s := range EligibleDriverStatuses {
		if !IsEligibleDriverStatus(s) {
			t.Errorf("expected %q to be eligible", s)
		}
	}
	for _, s := range []string{DriverReservedForProposal, DriverOnSitePickup, ""} {
		if IsEligibleDriverStatus(s) {
			t.Errorf("expected %q to be ineligible", s)
		}
	}
}
