// README: Matcher tests on in-memory stores: constraint filtering, detour
// scoring, the reservation race and its compensation path.
package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ridelink/internal/config"
	"ridelink/internal/geo"
	"ridelink/internal/retry"
	"ridelink/internal/schema"
	"ridelink/internal/store"
	"ridelink/internal/types"
)

func newMatchService(t *testing.T, passengers, drivers store.Store) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Config: config.MatchingConfig{
			MaxMatchDistanceKm:        5.0,
			MaxDestinationDeviationKm: 5.0,
		},
		Log:   log,
		Retry: retry.Policy{Initial: time.Millisecond, Cap: time.Millisecond, Attempts: 2},
	})
}

func pt(lat, lng float64) map[string]any {
	return map[string]any{"latitude": lat, "longitude": lng}
}

func mustPut(t *testing.T, m *store.Memory, col, id string, data map[string]any) {
	t.Helper()
	if err := m.Put(context.Background(), col, id, data); err != nil {
		t.Fatalf("seed %s/%s: %v", col, id, err)
	}
}

func seedRequest(t *testing.T, m *store.Memory, id string) {
	t.Helper()
	mustPut(t, m, schema.RequestsCollection, id, map[string]any{
		"status":              schema.RequestPending,
		"pickupLocation":      pt(1.300, 103.800),
		"destinationLocation": pt(1.310, 103.820),
		"passengerName":       "Alice",
		"passengerId":         "p-alice",
	})
}

func getFields(t *testing.T, m *store.Memory, col, id string) schema.Fields {
	t.Helper()
	doc, err := m.Get(context.Background(), col, id)
	if err != nil {
		t.Fatalf("get %s/%s: %v", col, id, err)
	}
	return schema.Fields(doc.Data)
}

func TestMatchRequest_SelectsNearbyDriver(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	seedRequest(t, passengers, "req-1")

	// ~0.15 km from the pickup, heading roughly the same way.
	mustPut(t, drivers, schema.DriversCollection, "drv-near", map[string]any{
		"status":            schema.DriverAvailable,
		"name":              "Ben",
		"phone":             "555-0100",
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.3010, 103.8010),
		"currentRouteEnd":   pt(1.3150, 103.8250),
	})
	// Eligible but much further out; must lose on detour.
	mustPut(t, drivers, schema.DriversCollection, "drv-far", map[string]any{
		"status":            schema.DriverIdle,
		"name":              "Cleo",
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.3350, 103.8350),
		"currentRouteEnd":   pt(1.3400, 103.8400),
	})

	svc := newMatchService(t, passengers, drivers)
	req := getFields(t, passengers, schema.RequestsCollection, "req-1")

	proposalID, err := svc.MatchRequest(context.Background(), "req-1", req)
	if err != nil {
		t.Fatalf("MatchRequest: %v", err)
	}
	if proposalID == "" {
		t.Fatal("expected a proposal id")
	}

	prop := getFields(t, drivers, schema.ProposalsCollection, proposalID)
	if got := prop.Str("riderUid"); got != "drv-near" {
		t.Fatalf("proposal riderUid = %q, want drv-near", got)
	}
	if got := prop.Status(); got != schema.ProposalPendingAcceptance {
		t.Fatalf("proposal status = %q", got)
	}
	if got := prop.Str("request_id"); got != "req-1" {
		t.Fatalf("proposal request_id = %q", got)
	}
	dist, ok := prop.Float("distanceToPickup")
	if !ok || dist < 0.1 || dist > 0.2 {
		t.Fatalf("distanceToPickup = %v, want ~0.15 km", dist)
	}

	drv := getFields(t, drivers, schema.DriversCollection, "drv-near")
	if got := drv.Status(); got != schema.DriverReservedForProposal {
		t.Fatalf("driver status = %q, want reserved", got)
	}
	if got := drv.Str("reserved_for_request"); got != "req-1" {
		t.Fatalf("reserved_for_request = %q", got)
	}

	reqAfter := getFields(t, passengers, schema.RequestsCollection, "req-1")
	if got := reqAfter.Status(); got != schema.RequestProposed {
		t.Fatalf("request status = %q, want proposed", got)
	}
	if got := reqAfter.Str("proposal_id"); got != proposalID {
		t.Fatalf("request proposal_id = %q, want %q", got, proposalID)
	}
	if got := reqAfter.Str("matchedDriverName"); got != "Ben" {
		t.Fatalf("matchedDriverName = %q", got)
	}
}

func TestMatchRequest_BadCoordinates(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	mustPut(t, passengers, schema.RequestsCollection, "req-1", map[string]any{
		"status":         schema.RequestPending,
		"pickupLocation": "not a point",
	})

	svc := newMatchService(t, passengers, drivers)
	req := getFields(t, passengers, schema.RequestsCollection, "req-1")
	if _, err := svc.MatchRequest(context.Background(), "req-1", req); !errors.Is(err, ErrBadCoordinates) {
		t.Fatalf("err = %v, want ErrBadCoordinates", err)
	}
}

func TestMatchRequest_ConstraintFiltering(t *testing.T) {
	tests := []struct {
		name    string
		request map[string]any
		driver  map[string]any
	}{
		{
			name: "pickup beyond max match distance",
			driver: map[string]any{
				"status":            schema.DriverAvailable,
				"vehicleType":       "Sedan",
				"currentRouteStart": pt(1.360, 103.800), // ~6.7 km north
				"currentRouteEnd":   pt(1.310, 103.820),
			},
		},
		{
			name: "destination deviation beyond limit",
			driver: map[string]any{
				"status":            schema.DriverAvailable,
				"vehicleType":       "Sedan",
				"currentRouteStart": pt(1.301, 103.801),
				"currentRouteEnd":   pt(1.400, 103.900), // ~13 km off
			},
		},
		{
			name: "vehicle preference mismatch",
			request: map[string]any{
				"vehiclePreference": "SUV",
			},
			driver: map[string]any{
				"status":            schema.DriverAvailable,
				"vehicleType":       "Sedan",
				"currentRouteStart": pt(1.301, 103.801),
				"currentRouteEnd":   pt(1.315, 103.825),
			},
		},
		{
			name: "driver missing route coordinates",
			driver: map[string]any{
				"status":      schema.DriverAvailable,
				"vehicleType": "Sedan",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passengers := store.NewMemory()
			drivers := store.NewMemory()
			seedRequest(t, passengers, "req-1")
			if tt.request != nil {
				if err := passengers.Update(context.Background(), schema.RequestsCollection, "req-1", tt.request); err != nil {
					t.Fatal(err)
				}
			}
			mustPut(t, drivers, schema.DriversCollection, "drv-1", tt.driver)

			svc := newMatchService(t, passengers, drivers)
			req := getFields(t, passengers, schema.RequestsCollection, "req-1")
			if _, err := svc.MatchRequest(context.Background(), "req-1", req); !errors.Is(err, ErrNoMatch) {
				t.Fatalf("err = %v, want ErrNoMatch", err)
			}
			if got := getFields(t, passengers, schema.RequestsCollection, "req-1").Status(); got != schema.RequestPending {
				t.Fatalf("request status = %q, want pending untouched", got)
			}
		})
	}
}

func TestMatchRequest_VehiclePreferenceSubstring(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	seedRequest(t, passengers, "req-1")
	if err := passengers.Update(context.Background(), schema.RequestsCollection, "req-1",
		map[string]any{"vehiclePreference": "suv"}); err != nil {
		t.Fatal(err)
	}
	mustPut(t, drivers, schema.DriversCollection, "drv-1", map[string]any{
		"status":            schema.DriverAvailable,
		"vehicleType":       "Black SUV",
		"currentRouteStart": pt(1.301, 103.801),
		"currentRouteEnd":   pt(1.315, 103.825),
	})

	svc := newMatchService(t, passengers, drivers)
	req := getFields(t, passengers, schema.RequestsCollection, "req-1")
	if _, err := svc.MatchRequest(context.Background(), "req-1", req); err != nil {
		t.Fatalf("case-insensitive substring match should succeed: %v", err)
	}
}

// Two candidates with identical (collinear, zero) detour: the one closer to
// the pickup must win the tie.
func TestPickDriver_TieBreakOnPickupDistance(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()

	pickup := types.Point{Lat: 1.300, Lng: 103.800}
	dest := types.Point{Lat: 1.310, Lng: 103.800}

	mustPut(t, drivers, schema.DriversCollection, "drv-farther", map[string]any{
		"status":            schema.DriverAvailable,
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.290, 103.800),
		"currentRouteEnd":   pt(1.320, 103.800),
	})
	mustPut(t, drivers, schema.DriversCollection, "drv-closer", map[string]any{
		"status":            schema.DriverAvailable,
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.295, 103.800),
		"currentRouteEnd":   pt(1.320, 103.800),
	})

	svc := newMatchService(t, passengers, drivers)
	best, err := svc.pickDriver(context.Background(), pickup, dest, "Any")
	if err != nil {
		t.Fatalf("pickDriver: %v", err)
	}
	if best == nil {
		t.Fatal("expected a candidate")
	}
	if math.Abs(best.detourKm) > costTieTolerance {
		t.Fatalf("collinear candidates should have ~zero detour, got %v", best.detourKm)
	}
	if best.id != "drv-closer" {
		t.Fatalf("tie broke to %q, want drv-closer", best.id)
	}
}

func TestMatchRequest_MidpointPickup(t *testing.T) {
	tests := []struct {
		name         string
		driverStart  types.Point
		wantMidpoint bool
	}{
		{"within 2km snaps to midpoint", types.Point{Lat: 1.3010, Lng: 103.8010}, true},
		{"beyond 2km keeps requested pickup", types.Point{Lat: 1.3300, Lng: 103.8000}, false},
	}
	requested := types.Point{Lat: 1.300, Lng: 103.800}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passengers := store.NewMemory()
			drivers := store.NewMemory()
			seedRequest(t, passengers, "req-1")
			mustPut(t, drivers, schema.DriversCollection, "drv-1", map[string]any{
				"status":            schema.DriverAvailable,
				"vehicleType":       "Sedan",
				"currentRouteStart": pt(tt.driverStart.Lat, tt.driverStart.Lng),
				"currentRouteEnd":   pt(1.315, 103.825),
			})

			svc := newMatchService(t, passengers, drivers)
			req := getFields(t, passengers, schema.RequestsCollection, "req-1")
			proposalID, err := svc.MatchRequest(context.Background(), "req-1", req)
			if err != nil {
				t.Fatalf("MatchRequest: %v", err)
			}

			prop := getFields(t, drivers, schema.ProposalsCollection, proposalID)
			got, ok := prop.GeoPoint("pickupLocation")
			if !ok {
				t.Fatal("proposal has no pickupLocation")
			}
			want := requested
			if tt.wantMidpoint {
				want = geo.Midpoint(tt.driverStart, requested)
			}
			if math.Abs(got.Lat-want.Lat) > 1e-9 || math.Abs(got.Lng-want.Lng) > 1e-9 {
				t.Fatalf("pickupLocation = %+v, want %+v", got, want)
			}
		})
	}
}

func TestMatchRequest_ReservationExclusivity(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	seedRequest(t, passengers, "req-a")
	seedRequest(t, passengers, "req-b")
	mustPut(t, drivers, schema.DriversCollection, "drv-1", map[string]any{
		"status":            schema.DriverAvailable,
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.301, 103.801),
		"currentRouteEnd":   pt(1.315, 103.825),
	})

	svc := newMatchService(t, passengers, drivers)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{"req-a", "req-b"} {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			req := getFields(t, passengers, schema.RequestsCollection, requestID)
			_, err := svc.MatchRequest(context.Background(), requestID, req)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	success, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrDriverContended) || errors.Is(err, ErrNoMatch):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || lost != 1 {
		t.Fatalf("got %d successes and %d losses, want exactly 1 each", success, lost)
	}
	if got := getFields(t, drivers, schema.DriversCollection, "drv-1").Status(); got != schema.DriverReservedForProposal {
		t.Fatalf("driver status = %q, want reserved", got)
	}
}

// failingUpdates wraps a store and fails every Update, simulating a passenger
// store outage after the driver reservation committed.
type failingUpdates struct {
	*store.Memory
}

func (f *failingUpdates) Update(ctx context.Context, col, id string, fields map[string]any) error {
	return fmt.Errorf("store unavailable")
}

func TestMatchRequest_CompensatesOnPassengerFailure(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	seedRequest(t, passengers, "req-1")
	mustPut(t, drivers, schema.DriversCollection, "drv-1", map[string]any{
		"status":            schema.DriverOnRouteToOriginal,
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.301, 103.801),
		"currentRouteEnd":   pt(1.315, 103.825),
	})

	svc := newMatchService(t, &failingUpdates{passengers}, drivers)
	req := getFields(t, passengers, schema.RequestsCollection, "req-1")
	if _, err := svc.MatchRequest(context.Background(), "req-1", req); err == nil {
		t.Fatal("expected an error when the passenger update fails")
	}

	drv := getFields(t, drivers, schema.DriversCollection, "drv-1")
	if got := drv.Status(); got != schema.DriverOnRouteToOriginal {
		t.Fatalf("driver status = %q, want reverted to prior status", got)
	}
	if _, ok := drv.Raw("reserved_for_request"); ok {
		t.Fatal("reserved_for_request should be cleared by compensation")
	}
	if got := getFields(t, passengers, schema.RequestsCollection, "req-1").Status(); got != schema.RequestPending {
		t.Fatalf("request status = %q, want pending untouched", got)
	}
}

func TestHandlePending_IgnoresStaleNotifications(t *testing.T) {
	passengers := store.NewMemory()
	drivers := store.NewMemory()
	seedRequest(t, passengers, "req-1")
	if err := passengers.Update(context.Background(), schema.RequestsCollection, "req-1",
		map[string]any{"status": schema.RequestProposed}); err != nil {
		t.Fatal(err)
	}
	mustPut(t, drivers, schema.DriversCollection, "drv-1", map[string]any{
		"status":            schema.DriverAvailable,
		"vehicleType":       "Sedan",
		"currentRouteStart": pt(1.301, 103.801),
		"currentRouteEnd":   pt(1.315, 103.825),
	})

	svc := newMatchService(t, passengers, drivers)
	svc.handlePending(context.Background(), "req-1")

	props, err := drivers.Query(context.Background(), schema.ProposalsCollection, store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(props) != 0 {
		t.Fatalf("stale notification created %d proposals, want 0", len(props))
	}
	if got := getFields(t, drivers, schema.DriversCollection, "drv-1").Status(); got != schema.DriverAvailable {
		t.Fatalf("driver status = %q, want untouched", got)
	}
}
