// README: Greedy matcher: scans eligible drivers, scores them by incremental
// detour under distance and deviation constraints, and hands the winner to
// the reservation protocol.
package matching

import (
	"context"
	"strings"

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

// Router resolves encoded route polylines. Optional.
type Router interface {
	EncodedRoute(ctx context.Context, origin, destination types.Point) (string, error)
}

// Journal records dispatch decisions. Optional.
type Journal interface {
	Append(ctx context.Context, e *journal.Event) error
}

type Deps struct {
	Passengers store.Store
	Drivers    store.Store
	Config     config.MatchingConfig
	Log        *logrus.Logger

	Routes  Router       // optional route enrichment
	Journal Journal      // optional decision journal
	Retry   retry.Policy // zero value falls back to the default policy
}

type Service struct {
	passengers store.Store
	drivers    store.Store
	cfg        config.MatchingConfig
	routes     Router
	journal    Journal
	retry      retry.Policy
	log        *logrus.Logger
}

func NewService(d Deps) *Service {
	if d.Retry.Attempts <= 0 {
		d.Retry = retry.DefaultPolicy()
	}
	return &Service{
		passengers: d.Passengers,
		drivers:    d.Drivers,
		cfg:        d.Config,
		routes:     d.Routes,
		journal:    d.Journal,
		retry:      d.Retry,
		log:        d.Log,
	}
}

// MatchRequest runs the full match-and-reserve pipeline for one pending
// request and returns the created proposal id. Outcomes that simply leave
// the request pending surface as ErrNoMatch or ErrDriverContended.
func (s *Service) MatchRequest(ctx context.Context, requestID string, req schema.Fields) (string, error) {
	pickup, pickupOK := req.GeoPoint(schema.PickupAliases...)
	dest, destOK := req.GeoPoint(schema.DestinationAliases...)
	if !pickupOK || !destOK {
		return "", ErrBadCoordinates
	}
	vehiclePref := strOr(req, "Any", "vehiclePreference")

	best, err := s.pickDriver(ctx, pickup, dest, vehiclePref)
	if err != nil {
		return "", err
	}
	if best == nil {
		observability.NoMatchTotal.Inc()
		s.record(ctx, &journal.Event{Kind: journal.KindNoMatch, RequestID: requestID})
		return "", ErrNoMatch
	}

	s.log.WithFields(logrus.Fields{
		"request_id":     requestID,
		"driver_id":      best.id,
		"pickup_dist_km": best.pickupDistanceKm,
		"detour_km":      best.detourKm,
	}).Info("selected driver")

	finalPickup := pickup
	if best.pickupDistanceKm < midpointPickupKm {
		finalPickup = geo.Midpoint(best.start, pickup)
	}

	routeToPickup, routeToDest := s.resolveRoutes(ctx, req, best, finalPickup, dest)
	payload := buildProposalPayload(requestID, req, best, finalPickup, routeToPickup, routeToDest)

	proposalID, err := s.reserve(ctx, requestID, best, payload)
	if err != nil {
		return "", err
	}

	observability.MatchesTotal.Inc()
	s.record(ctx, &journal.Event{
		Kind:       journal.KindMatched,
		RequestID:  requestID,
		DriverID:   best.id,
		ProposalID: proposalID,
		Detail: map[string]any{
			"pickup_distance_km": best.pickupDistanceKm,
			"detour_km":          best.detourKm,
		},
	})
	return proposalID, nil
}

// pickDriver scans eligible drivers and returns the minimum-detour candidate,
// or nil when none survives the constraints.
func (s *Service) pickDriver(ctx context.Context, pickup, dest types.Point, vehiclePref string) (*candidate, error) {
	docs, err := s.drivers.Query(ctx, schema.DriversCollection, store.Query{
		Field: "status",
		In:    schema.EligibleDriverStatuses,
	})
	if err != nil {
		return nil, err
	}

	var best *candidate
	for _, doc := range docs {
		data := schema.Fields(doc.Data)

		start, startOK := data.GeoPoint(schema.DriverStartAliases...)
		end, endOK := data.GeoPoint(schema.DriverEndAliases...)
		if !startOK || !endOK {
			continue
		}

		if !strings.EqualFold(vehiclePref, "any") {
			vehicle := strings.ToLower(data.Str("vehicleType"))
			if !strings.Contains(vehicle, strings.ToLower(vehiclePref)) {
				continue
			}
		}

		pickupDist := geo.DistanceKm(start, pickup)
		if pickupDist > s.cfg.MaxMatchDistanceKm {
			continue
		}
		destDev := geo.DistanceKm(end, dest)
		if destDev > s.cfg.MaxDestinationDeviationKm {
			continue
		}

		detour, _, _ := geo.IncrementalDetourKm(start, end, pickup, dest)
		cand := &candidate{
			id:               doc.ID,
			data:             data,
			start:            start,
			end:              end,
			pickupDistanceKm: pickupDist,
			detourKm:         detour,
		}
		if best == nil ||
			cand.detourKm < best.detourKm-costTieTolerance ||
			(abs(cand.detourKm-best.detourKm) < costTieTolerance && cand.pickupDistanceKm < best.pickupDistanceKm) {
			best = cand
		}
	}
	return best, nil
}

// resolveRoutes prefers route polylines supplied by the passenger app and
// falls back to the Maps service when configured. Route geometry is
// decoration; failures only cost the fields.
func (s *Service) resolveRoutes(ctx context.Context, req schema.Fields, cand *candidate, finalPickup, dest types.Point) (toPickup, toDest string) {
	toPickup = req.Str("routeToPickupEncoded")
	toDest = req.Str("routeToDestinationEncoded")
	if s.routes == nil {
		return toPickup, toDest
	}
	if toPickup == "" {
		if enc, err := s.routes.EncodedRoute(ctx, cand.start, finalPickup); err == nil {
			toPickup = enc
		} else {
			s.log.WithError(err).Debug("route to pickup lookup failed")
		}
	}
	if toDest == "" {
		if enc, err := s.routes.EncodedRoute(ctx, finalPickup, dest); err == nil {
			toDest = enc
		} else {
			s.log.WithError(err).Debug("route to destination lookup failed")
		}
	}
	return toPickup, toDest
}

func (s *Service) record(ctx context.Context, e *journal.Event) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(ctx, e); err != nil {
		s.log.WithError(err).WithField("kind", e.Kind).Warn("journal append failed")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
