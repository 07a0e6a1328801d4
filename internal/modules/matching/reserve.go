// README: Reservation protocol. Step 1 is atomic on the driver store:
// re-check eligibility, reserve the driver, create the proposal. Step 2 is a
// best-effort passenger update, compensated by releasing the reservation on
// failure; the proposal is left orphaned and inert.
package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"ridelink/internal/modules/journal"
	"ridelink/internal/observability"
	"ridelink/internal/schema"
	"ridelink/internal/store"
)

func (s *Service) reserve(ctx context.Context, requestID string, cand *candidate, payload map[string]any) (string, error) {
	var proposalID string
	err := s.drivers.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(schema.DriversCollection, cand.id)
		if err != nil {
			return err
		}
		if !schema.IsEligibleDriverStatus(schema.Fields(doc.Data).Status()) {
			return ErrDriverContended
		}
		if err := tx.Update(schema.DriversCollection, cand.id, map[string]any{
			"status":               schema.DriverReservedForProposal,
			"reserved_for_request": requestID,
		}); err != nil {
			return err
		}
		proposalID, err = tx.Create(schema.ProposalsCollection, payload)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDriverContended) || errors.Is(err, store.ErrNotFound) {
			observability.ReservationLossesTotal.Inc()
			s.record(ctx, &journal.Event{Kind: journal.KindReservationLost, RequestID: requestID, DriverID: cand.id})
			return "", ErrDriverContended
		}
		return "", fmt.Errorf("reserving driver %s: %w", cand.id, err)
	}

	update := map[string]any{
		"status":               schema.RequestProposed,
		"riderUid":             driverUID(cand),
		"riderName":            strOr(cand.data, "Unknown Driver", "name"),
		"riderPhone":           strOr(cand.data, "Not Provided", "phone"),
		"matchedDriverName":    strOr(cand.data, "Unknown Driver", "name"),
		"matchedDriverPhone":   strOr(cand.data, "Not Provided", "phone"),
		"matchedDriverVehicle": strOr(cand.data, "Unknown Vehicle", "vehicleType"),
		"proposed_at":          store.ServerTimestamp,
		"proposal_id":          proposalID,
	}
	if loc, ok := cand.data.Raw("current_location", "currentLocation"); ok {
		update["riderLocation"] = loc
	}

	perr := s.retry.Do(ctx, func() error {
		return s.passengers.Update(ctx, schema.RequestsCollection, requestID, update)
	})
	if perr == nil {
		return proposalID, nil
	}

	// Compensate: put the driver back the way we found it. The proposal
	// stays behind as an orphan and downstream consumers treat it as inert.
	s.log.WithError(perr).WithFields(logrus.Fields{
		"request_id":  requestID,
		"driver_id":   cand.id,
		"proposal_id": proposalID,
	}).Error("passenger update failed; releasing driver reservation")

	prior := cand.data.Str("status")
	if prior == "" {
		prior = schema.DriverAvailable
	}
	if rerr := s.drivers.Update(ctx, schema.DriversCollection, cand.id, map[string]any{
		"status":               prior,
		"reserved_for_request": store.Delete,
	}); rerr != nil {
		s.log.WithError(rerr).WithField("driver_id", cand.id).Warn("failed to revert driver reservation")
	}
	observability.ReservationCompensationsTotal.Inc()
	s.record(ctx, &journal.Event{Kind: journal.KindReservationReleased, RequestID: requestID, DriverID: cand.id, ProposalID: proposalID})

	return "", fmt.Errorf("updating passenger %s: %w", requestID, perr)
}
