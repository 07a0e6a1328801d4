// README: Driver location synchronizer: listens to driver documents, mirrors
// fresh coordinates onto the active passenger request, maintains the geo
// index, and detects pickup arrival by proximity.
package location

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"ridelink/internal/config"
	"ridelink/internal/geo"
	"ridelink/internal/modules/journal"
	"ridelink/internal/observability"
	"ridelink/internal/retry"
	"ridelink/internal/schema"
	"ridelink/internal/store"
	"ridelink/internal/types"
)

// Journal records arrival detections. Optional.
type Journal interface {
	Append(ctx context.Context, e *journal.Event) error
}

// approachingStatuses are the driver states in which nearing the pickup
// point counts as arrival.
var approachingStatuses = map[string]bool{
	schema.DriverOnRouteToPickup:     true,
	schema.DriverOnRouteToOriginal:   true,
	schema.DriverReservedForProposal: true,
}

// mirrorableStatuses are the request states that still want live driver
// coordinates.
var mirrorableStatuses = map[string]bool{
	schema.RequestProposed:        true,
	schema.RequestAccepted:        true,
	schema.RequestArrivedAtPickup: true,
	schema.RequestPickedUp:        true,
	schema.RequestOnWay:           true,
}

// arrivableStatuses are the request states from which proximity may promote
// the request to arrived_at_pickup. Later states never regress.
var arrivableStatuses = map[string]bool{
	schema.RequestProposed: true,
	schema.RequestAccepted: true,
}

type Deps struct {
	Passengers store.Store
	Drivers    store.Store
	Config     config.SyncConfig
	Log        *logrus.Logger

	Geo     *GeoIndex    // optional geo index
	Journal Journal      // optional decision journal
	Retry   retry.Policy // zero value falls back to the default policy
}

type Sync struct {
	passengers store.Store
	drivers    store.Store
	cfg        config.SyncConfig
	geoIndex   *GeoIndex
	journal    Journal
	retry      retry.Policy
	log        *logrus.Logger
}

func NewSync(d Deps) *Sync {
	if d.Retry.Attempts <= 0 {
		d.Retry = retry.DefaultPolicy()
	}
	return &Sync{
		passengers: d.Passengers,
		drivers:    d.Drivers,
		cfg:        d.Config,
		geoIndex:   d.Geo,
		journal:    d.Journal,
		retry:      d.Retry,
		log:        d.Log,
	}
}

// Run subscribes to the full driver collection and processes every location
// change as it appears. It blocks until ctx ends; a non-nil return means the
// change feed could not be sustained, which is fatal to the engine.
func (s *Sync) Run(ctx context.Context) error {
	return s.drivers.Subscribe(ctx, schema.DriversCollection, store.Query{}, func(c store.Change) {
		if c.Kind == store.Removed {
			s.dropFromIndex(ctx, c.ID)
			return
		}
		go s.HandleDriver(ctx, c.ID, schema.Fields(c.Data))
	})
}

// HandleDriver processes one driver snapshot: index the position, mirror it
// onto the driver's active request, and run the arrival check.
func (s *Sync) HandleDriver(ctx context.Context, driverID string, drv schema.Fields) {
	pos, ok := drv.GeoPoint(schema.DriverLocationAliases...)
	if !ok {
		return
	}
	observability.LocationUpdatesTotal.Inc()

	if s.geoIndex != nil {
		if err := s.geoIndex.Upsert(ctx, types.ID(driverID), pos); err != nil {
			s.log.WithError(err).WithField("driver", driverID).Warn("geo index upsert failed")
		}
	}

	requestID := drv.Str(schema.CurrentRideAliases...)
	if requestID == "" {
		requestID = drv.Str("reserved_for_request")
	}
	if requestID == "" {
		return
	}
	reqDoc, err := s.passengers.Get(ctx, schema.RequestsCollection, requestID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).WithField("request", requestID).Warn("request read failed")
		}
		return
	}
	req := schema.Fields(reqDoc.Data)
	if !mirrorableStatuses[req.Status()] {
		return
	}

	rawLoc, _ := drv.Raw(schema.DriverLocationAliases...)
	update := map[string]any{
		"riderLocation":      rawLoc,
		"lastLocationUpdate": store.ServerTimestamp,
	}

	arrived := s.checkArrival(pos, drv, req)
	if arrived {
		update["status"] = schema.RequestArrivedAtPickup
		update["arrived_at"] = store.ServerTimestamp
	}

	err = s.retry.Do(ctx, func() error {
		return s.passengers.Update(ctx, schema.RequestsCollection, requestID, update)
	})
	if err != nil {
		s.log.WithError(err).WithField("request", requestID).Error("location mirror failed")
		return
	}

	if arrived {
		observability.ArrivalsDetectedTotal.Inc()
		s.record(ctx, &journal.Event{
			Kind:      journal.KindArrivalDetected,
			RequestID: requestID,
			DriverID:  driverID,
			Detail:    map[string]any{"distance_threshold_km": s.cfg.ArrivedDistanceThresholdKm},
		})
		s.log.WithFields(logrus.Fields{
			"driver":  driverID,
			"request": requestID,
		}).Info("driver arrived at pickup")
	}
}

// checkArrival reports whether this position update puts an approaching
// driver within the arrival threshold of the request's pickup point.
func (s *Sync) checkArrival(pos types.Point, drv, req schema.Fields) bool {
	if !approachingStatuses[drv.Status()] {
		return false
	}
	if !arrivableStatuses[req.Status()] {
		return false
	}
	pickup, ok := req.GeoPoint(schema.PickupAliases...)
	if !ok {
		return false
	}
	return geo.DistanceKm(pos, pickup) <= s.cfg.ArrivedDistanceThresholdKm
}

func (s *Sync) dropFromIndex(ctx context.Context, driverID string) {
	if s.geoIndex == nil {
		return
	}
	if err := s.geoIndex.Remove(ctx, types.ID(driverID)); err != nil {
		s.log.WithError(err).WithField("driver", driverID).Warn("geo index removal failed")
	}
}

func (s *Sync) record(ctx context.Context, e *journal.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, e); err != nil {
		s.log.WithError(err).Debug("journal append failed")
	}
}
