// README: Entry point; connects the two document stores, wires the matcher
// and both synchronizers, and serves the ops API until shutdown.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ridelink/internal/config"
	httptransport "ridelink/internal/http"
	"ridelink/internal/infra"
	"ridelink/internal/logging"
	"ridelink/internal/maps"
	"ridelink/internal/modules/journal"
	"ridelink/internal/modules/location"
	"ridelink/internal/modules/matching"
	"ridelink/internal/modules/proposal"
	"ridelink/internal/retry"
	"ridelink/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passengers, err := store.NewFirestore(ctx, cfg.PassengerCredentials, "passenger")
	if err != nil {
		log.Fatalf("passenger store init: %v", err)
	}
	defer passengers.Close()

	drivers, err := store.NewFirestore(ctx, cfg.DriverCredentials, "driver")
	if err != nil {
		log.Fatalf("driver store init: %v", err)
	}
	defer drivers.Close()

	retryPolicy := retry.Policy{
		Initial:  cfg.Retry.Initial,
		Cap:      cfg.Retry.Cap,
		Attempts: cfg.Retry.Attempts,
	}

	var geoIndex *location.GeoIndex
	if cfg.Redis.Addr != "" {
		geoIndex = location.NewGeoIndex(infra.NewRedis(cfg.Redis.Addr))
		logger.WithField("addr", cfg.Redis.Addr).Info("geo index enabled")
	}

	var journalStore *journal.Store
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("journal db init: %v", err)
		}
		defer pool.Close()
		journalStore = journal.NewStore(pool)
		if err := journalStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("journal schema: %v", err)
		}
		logger.Info("decision journal enabled")
	}

	var routes matching.Router
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routes = routeSvc
		logger.Info("route enrichment enabled")
	}

	matchSvc := matching.NewService(matching.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Config:     cfg.Matching,
		Log:        logger,
		Routes:     routes,
		Journal:    journalDep(journalStore),
		Retry:      retryPolicy,
	})
	proposalSync := proposal.NewSync(proposal.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Log:        logger,
		Journal:    journalDep(journalStore),
		Retry:      retryPolicy,
	})
	locationSync := location.NewSync(location.Deps{
		Passengers: passengers,
		Drivers:    drivers,
		Config:     cfg.Sync,
		Log:        logger,
		Geo:        geoIndex,
		Journal:    journalDep(journalStore),
		Retry:      retryPolicy,
	})

	errCh := make(chan error, 3)
	go func() { errCh <- matchSvc.Run(ctx) }()
	go func() { errCh <- proposalSync.Run(ctx) }()
	go func() { errCh <- locationSync.Run(ctx) }()
	go matchSvc.RunResweep(ctx, cfg.Sync.ResweepInterval)

	server := httptransport.NewServer(httptransport.ServerDeps{
		Passengers: passengers,
		Drivers:    drivers,
		Geo:        geoIndex,
		Log:        logger,
	})
	go func() { errCh <- server.Run(ctx, cfg.HTTP.Addr) }()

	logger.WithField("addr", cfg.HTTP.Addr).Info("dispatch engine running")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("engine stopped: %v", err)
		}
	}
}

// journalDep turns a nil *journal.Store into a nil interface so the services
// can test for absence.
func journalDep(s *journal.Store) matching.Journal {
	if s == nil {
		return nil
	}
	return s
}
