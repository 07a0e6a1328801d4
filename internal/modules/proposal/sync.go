// README: Proposal-to-passenger synchronizer: listens to the driver store's
// proposal feed and mirrors every lifecycle transition onto the passenger
// request, keeping the driver's occupancy status in step.
package proposal

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"ridelink/internal/modules/journal"
	"ridelink/internal/observability"
	"ridelink/internal/retry"
	"ridelink/internal/schema"
	"ridelink/internal/store"
)

// Journal records mirrored transitions. Optional.
type Journal interface {
	Append(ctx context.Context, e *journal.Event) error
}

type Deps struct {
	Passengers store.Store
	Drivers    store.Store
	Log        *logrus.Logger

	Journal Journal      // optional decision journal
	Retry   retry.Policy // zero value falls back to the default policy
}

type Sync struct {
	passengers store.Store
	drivers    store.Store
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
		journal:    d.Journal,
		retry:      d.Retry,
		log:        d.Log,
	}
}

// Run subscribes to proposal transitions on the driver store and applies each
// one as it appears. It blocks until ctx ends; a non-nil return means the
// change feed could not be sustained, which is fatal to the engine.
func (s *Sync) Run(ctx context.Context) error {
	q := store.Query{Field: "status", In: InterestingStatuses}
	return s.drivers.Subscribe(ctx, schema.ProposalsCollection, q, func(c store.Change) {
		if c.Kind == store.Removed {
			return
		}
		prop := schema.Fields(c.Data)
		go s.Apply(ctx, c.ID, prop)
	})
}

// Apply mirrors a single proposal snapshot onto the passenger request and the
// driver document. It is idempotent: re-delivering the same snapshot only
// refreshes ephemeral contact and location fields.
func (s *Sync) Apply(ctx context.Context, proposalID string, prop schema.Fields) {
	out, ok := mapStatus(prop.Status())
	if !ok {
		return
	}
	requestID := prop.Str(schema.RequestIDAliases...)
	if requestID == "" {
		s.log.WithField("proposal", proposalID).Warn("proposal carries no request reference")
		return
	}
	driverID := prop.Str(schema.ProposalDriverAliases...)

	reqDoc, err := s.passengers.Get(ctx, schema.RequestsCollection, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.WithFields(logrus.Fields{
				"proposal": proposalID,
				"request":  requestID,
			}).Warn("proposal references a missing request")
			return
		}
		s.log.WithError(err).WithField("request", requestID).Error("request read failed")
		return
	}
	req := schema.Fields(reqDoc.Data)

	switch {
	case out.flagField != "":
		s.applyFlag(ctx, requestID, req, out)
	case out.revert:
		s.applyRejection(ctx, proposalID, requestID, driverID, req)
	default:
		s.applyProgress(ctx, proposalID, requestID, driverID, prop, req, out)
	}
}

// applyFlag sets a one-shot verification flag. The request status does not
// move; a flag already set is left untouched so its timestamp survives.
func (s *Sync) applyFlag(ctx context.Context, requestID string, req schema.Fields, out outcome) {
	if req.Bool(out.flagField) {
		return
	}
	err := s.retry.Do(ctx, func() error {
		return s.passengers.Update(ctx, schema.RequestsCollection, requestID, map[string]any{
			out.flagField:     true,
			out.flagTimestamp: store.ServerTimestamp,
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("request", requestID).Error("verification flag update failed")
		return
	}
	observability.ProposalTransitionsTotal.WithLabelValues(out.stage).Inc()
}

// applyProgress moves the request to the stage's status and mirrors the
// driver's occupancy. When the request already sits at the target status only
// the ephemeral contact and location fields are refreshed.
func (s *Sync) applyProgress(ctx context.Context, proposalID, requestID, driverID string, prop, req schema.Fields, out outcome) {
	update := map[string]any{}
	if driverID != "" {
		update["riderUid"] = driverID
		update["riderId"] = driverID
	}
	if name := prop.Str(schema.DriverNameAliases...); name != "" {
		update["matchedDriverName"] = name
	}
	if phone := prop.Str(schema.DriverPhoneAliases...); phone != "" {
		update["matchedDriverPhone"] = phone
	}
	if loc, ok := prop.Raw(schema.ProposalLocationAlias...); ok {
		update["riderLocation"] = loc
		update["lastLocationUpdate"] = store.ServerTimestamp
	}

	alreadyThere := req.Status() == out.requestStatus
	if !alreadyThere {
		update["status"] = out.requestStatus
		for _, f := range out.timestampFields {
			update[f] = store.ServerTimestamp
		}
	}
	if len(update) > 0 {
		err := s.retry.Do(ctx, func() error {
			return s.passengers.Update(ctx, schema.RequestsCollection, requestID, update)
		})
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"request": requestID,
				"status":  out.requestStatus,
			}).Error("request status mirror failed")
			return
		}
	}

	s.mirrorDriver(ctx, driverID, requestID, out)

	if !alreadyThere {
		observability.ProposalTransitionsTotal.WithLabelValues(out.stage).Inc()
		s.record(ctx, &journal.Event{
			Kind:       journal.KindProposalMirrored,
			RequestID:  requestID,
			DriverID:   driverID,
			ProposalID: proposalID,
			Detail:     map[string]any{"status": out.requestStatus},
		})
		s.log.WithFields(logrus.Fields{
			"proposal": proposalID,
			"request":  requestID,
			"status":   out.requestStatus,
		}).Info("proposal transition mirrored")
	}
}

// mirrorDriver keeps the driver's occupancy status in step with the ride.
// Completion releases the driver back to idle and clears the ride reference.
func (s *Sync) mirrorDriver(ctx context.Context, driverID, requestID string, out outcome) {
	if driverID == "" || out.driverStatus == "" {
		return
	}
	fields := map[string]any{"status": out.driverStatus}
	if out.clearRide {
		fields["current_ride_request"] = store.Delete
		fields["reserved_for_request"] = store.Delete
	} else {
		fields["current_ride_request"] = requestID
	}
	if err := s.drivers.Update(ctx, schema.DriversCollection, driverID, fields); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"driver": driverID,
			"status": out.driverStatus,
		}).Warn("driver occupancy mirror failed")
	}
}

// applyRejection unwinds a declined proposal: the request returns to the
// pending pool with its matched-driver fields cleared, and the driver is
// released. Requests past acceptance are terminal for this path and are left
// untouched.
func (s *Sync) applyRejection(ctx context.Context, proposalID, requestID, driverID string, req schema.Fields) {
	if !revertableRequestStatuses[req.Status()] {
		s.log.WithFields(logrus.Fields{
			"proposal": proposalID,
			"request":  requestID,
			"status":   req.Status(),
		}).Debug("rejection ignored, request already past acceptance")
		return
	}
	err := s.retry.Do(ctx, func() error {
		return s.passengers.Update(ctx, schema.RequestsCollection, requestID, map[string]any{
			"status":               schema.RequestPending,
			"proposed_driver":      store.Delete,
			"riderUid":             store.Delete,
			"riderId":              store.Delete,
			"matchedDriverName":    store.Delete,
			"matchedDriverPhone":   store.Delete,
			"matchedDriverVehicle": store.Delete,
			"riderLocation":        store.Delete,
			"proposed_at":          store.Delete,
			"proposal_id":          store.Delete,
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("request", requestID).Error("rejection revert failed")
		return
	}
	if driverID != "" {
		err := s.drivers.Update(ctx, schema.DriversCollection, driverID, map[string]any{
			"status":               schema.DriverAvailable,
			"reserved_for_request": store.Delete,
		})
		if err != nil {
			s.log.WithError(err).WithField("driver", driverID).Warn("driver release failed")
		}
	}
	observability.ProposalTransitionsTotal.WithLabelValues(StageRejected).Inc()
	s.record(ctx, &journal.Event{
		Kind:       journal.KindReservationReleased,
		RequestID:  requestID,
		DriverID:   driverID,
		ProposalID: proposalID,
		Detail:     map[string]any{"reason": "rejected"},
	})
	s.log.WithFields(logrus.Fields{
		"proposal": proposalID,
		"request":  requestID,
	}).Info("proposal rejected, request returned to pending pool")
}

func (s *Sync) record(ctx context.Context, e *journal.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, e); err != nil {
		s.log.WithError(err).Debug("journal append failed")
	}
}
