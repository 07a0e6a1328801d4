// README: End-to-end dispatch simulation on in-memory stores: seeds drivers
// and requests, runs the matcher and both synchronizers, scripts the driver
// side of each ride, and prints how far every request got. Useful as a smoke
// check without touching real stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"ridelink/internal/config"
	"ridelink/internal/logging"
	"ridelink/internal/modules/location"
	"ridelink/internal/modules/matching"
	"ridelink/internal/modules/proposal"
	"ridelink/internal/retry"
	"ridelink/internal/schema"
	"ridelink/internal/store"
)

func main() {
	var (
		nDrivers  = flag.Int("drivers", 5, "drivers to seed")
		nRequests = flag.Int("requests", 10, "ride requests to seed")
		timeout   = flag.Duration("timeout", 30*time.Second, "simulation budget")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		logLevel  = flag.String("log-level", "warn", "log level during simulation")
	)
	flag.Parse()

	logger := logging.New(*logLevel, "text")
	rng := rand.New(rand.NewSource(*seed))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	passengers := store.NewMemory()
	drivers := store.NewMemory()
	policy := retry.Policy{Initial: 10 * time.Millisecond, Cap: 100 * time.Millisecond, Attempts: 3}

	for i := 0; i < *nDrivers; i++ {
		id := fmt.Sprintf("driver-%02d", i)
		lat, lng := jitter(rng, 1.30, 103.80, 0.03)
		must(drivers.Put(ctx, schema.DriversCollection, id, map[string]any{
			"status":          schema.DriverAvailable,
			"name":            fmt.Sprintf("Driver %02d", i),
			"phone":           fmt.Sprintf("555-01%02d", i),
			"vehicleType":     "Sedan",
			"currentLocation": point(lat, lng),
			"currentRouteEnd": point(jitter(rng, 1.31, 103.82, 0.02)),
		}))
	}

	matchSvc := matching.NewService(matching.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Config:     config.MatchingConfig{MaxMatchDistanceKm: 5, MaxDestinationDeviationKm: 5},
		Log:        logger,
		Retry:      policy,
	})
	proposalSync := proposal.NewSync(proposal.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Log:        logger,
		Retry:      policy,
	})
	locationSync := location.NewSync(location.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Config:     config.SyncConfig{ArrivedDistanceThresholdKm: 0.05},
		Log:        logger,
		Retry:      policy,
	})

	go matchSvc.Run(ctx)
	go matchSvc.RunResweep(ctx, 500*time.Millisecond)
	go proposalSync.Run(ctx)
	go locationSync.Run(ctx)
	go driveAcceptances(ctx, drivers)

	for i := 0; i < *nRequests; i++ {
		id := fmt.Sprintf("request-%02d", i)
		lat, lng := jitter(rng, 1.30, 103.80, 0.02)
		must(passengers.Put(ctx, schema.RequestsCollection, id, map[string]any{
			"status":              schema.RequestPending,
			"passengerName":       fmt.Sprintf("Passenger %02d", i),
			"pickupLocation":      point(lat, lng),
			"destinationLocation": point(jitter(rng, 1.31, 103.82, 0.02)),
		}))
		time.Sleep(50 * time.Millisecond)
	}

	waitForQuiescence(ctx, passengers)

	docs, err := passengers.Query(context.Background(), schema.RequestsCollection, store.Query{})
	must(err)
	counts := map[string]int{}
	for _, doc := range docs {
		counts[schema.Fields(doc.Data).Status()]++
	}
	fmt.Println("== Request outcomes ==")
	for status, n := range counts {
		fmt.Printf("%-20s %d\n", status, n)
	}
	if counts[schema.RequestCompleted] == 0 {
		fmt.Println("no request completed; inspect with -log-level=debug")
		os.Exit(1)
	}
}

// driveAcceptances plays the driver app: whenever a proposal shows up it
// walks the ride through acceptance, pickup and completion.
func driveAcceptances(ctx context.Context, drivers *store.Memory) {
	drivers.Subscribe(ctx, schema.ProposalsCollection, store.Query{
		Field: "status",
		In:    []string{schema.ProposalPendingAcceptance},
	}, func(c store.Change) {
		if c.Kind == store.Removed {
			return
		}
		go func(proposalID string) {
			for _, status := range []string{"accepted", "arrived_at_pickup", "picked_up", "on_way", "completed"} {
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				if err := drivers.Update(ctx, schema.ProposalsCollection, proposalID, map[string]any{
					"status": status,
				}); err != nil {
					return
				}
			}
		}(c.ID)
	})
}

// waitForQuiescence polls until no request is mid-flight or the budget ends.
func waitForQuiescence(ctx context.Context, passengers *store.Memory) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
		docs, err := passengers.Query(context.Background(), schema.RequestsCollection, store.Query{})
		if err != nil {
			return
		}
		settled := true
		for _, doc := range docs {
			switch schema.Fields(doc.Data).Status() {
			case schema.RequestCompleted, schema.RequestRejected, schema.RequestPending, schema.RequestPendingAgain:
			default:
				settled = false
			}
		}
		if settled {
			return
		}
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func point(lat, lng float64) map[string]any {
	return map[string]any{"latitude": lat, "longitude": lng}
}

func jitter(rng *rand.Rand, lat, lng, spread float64) (float64, float64) {
	return lat + (rng.Float64()-0.5)*spread, lng + (rng.Float64()-0.5)*spread
}
