// README: Matching candidates and the denormalized proposal payload.
package matching

import (
	"errors"

	"ridelink/internal/geo"
	"ridelink/internal/schema"
	"ridelink/internal/store"
	"ridelink/internal/types"
)

var (
	// ErrBadCoordinates marks a request whose pickup or destination cannot
	// be parsed; the request is skipped without retry.
	ErrBadCoordinates = errors.New("request has unusable pickup or destination")
	// ErrNoMatch means no eligible driver survived the constraints; the
	// request stays pending and is re-evaluated on its next change event.
	ErrNoMatch = errors.New("no eligible driver satisfies constraints")
	// ErrDriverContended means the reservation transaction lost the race
	// for the chosen driver. Treated like ErrNoMatch for this cycle.
	ErrDriverContended = errors.New("driver reserved by a concurrent matcher")
)

const (
	// midpointPickupKm is the pickup distance under which the proposal's
	// effective pickup point is snapped to the driver/passenger midpoint.
	midpointPickupKm = 2.0
	// costTieTolerance is the detour-cost band within which two candidates
	// tie and the smaller pickup distance wins.
	costTieTolerance = 1e-6
)

// candidate is one eligible driver scored against a request.
type candidate struct {
	id               string
	data             schema.Fields
	start            types.Point
	end              types.Point
	pickupDistanceKm float64
	detourKm         float64
}

// buildProposalPayload denormalizes passenger and driver info into the
// proposal document so the driver app never has to cross-read the passenger
// store. Progression timestamps start null and are stamped by the driver app.
func buildProposalPayload(requestID string, req schema.Fields, cand *candidate, finalPickup types.Point, routeToPickup, routeToDestination string) map[string]any {
	driver := cand.data

	payload := map[string]any{
		"request_id": requestID,
		"status":     schema.ProposalPendingAcceptance,
		"createdAt":  store.ServerTimestamp,

		// Passenger info.
		"passengerUid":        req.Str(schema.PassengerUIDAliases...),
		"passengerName":       strOr(req, "Unknown Passenger", "passengerName", "name"),
		"passengerPhone":      strOr(req, "Not Provided", "passengerPhone", "phone"),
		"pickupLocation":      schema.ToLatLng(finalPickup),
		"destinationLocation": rawPoint(req, schema.DestinationAliases),
		"pickup_address":      req.Str("pickupAddress", "pickup_address"),
		"destination_address": req.Str("destinationAddress", "destination_address"),
		"fareAmount":          floatOr(req, 0, "fareAmount"),
		"paymentMethod":       strOr(req, "Cash", "paymentMethod"),
		"rideType":            strOr(req, "Standard", "rideType"),
		"passengerRating":     floatOr(req, 5.0, "passengerRating"),
		"estimatedDistance":   strOr(req, "N/A", "estimatedDistance"),
		"estimatedDuration":   strOr(req, "N/A", "estimatedDuration"),
		"specialRequests":     strOr(req, "None", "specialRequests"),
		"vehiclePreference":   strOr(req, "Any", "vehiclePreference"),
		"luggageCount":        floatOr(req, 0, "luggageCount"),
		"passengerCount":      floatOr(req, 1, "passengerCount"),
		"otp":                 strOr(req, "0000", "otp"),
		"otpVerified":         req.Bool("otpVerified"),
		"sosActive":           req.Bool("sosActive"),
		"sosReason":           rawOrNil(req, "sosReason"),
		"sosTimestamp":        rawOrNil(req, "sosTimestamp"),

		// Driver info.
		"riderUid":           driverUID(cand),
		"driverId":           driverUID(cand),
		"driverName":         strOr(driver, "Unknown Driver", "name", "driverName"),
		"driverPhone":        strOr(driver, "Not Provided", "phone"),
		"driverVehicle":      strOr(driver, "Unknown Vehicle", "vehicleType"),
		"riderLocation":      schema.ToLatLng(cand.start),
		"lastLocationUpdate": store.ServerTimestamp,

		// Route geometry, when available.
		"routeToPickupEncoded":      routeToPickup,
		"routeToDestinationEncoded": routeToDestination,

		// Progression timestamps.
		"acceptedTimestamp":     nil,
		"arrivalTimestamp":      nil,
		"pickupTimestamp":       nil,
		"completionTimestamp":   nil,
		"cancellationTimestamp": nil,
	}

	if pickup, ok := req.GeoPoint(schema.PickupAliases...); ok {
		payload["distanceToPickup"] = geo.DistanceKm(pickup, cand.start)
	} else {
		payload["distanceToPickup"] = nil
	}
	return payload
}

func driverUID(cand *candidate) string {
	if uid := cand.data.Str("uid"); uid != "" {
		return uid
	}
	return cand.id
}

func strOr(f schema.Fields, def string, keys ...string) string {
	if v := f.Str(keys...); v != "" {
		return v
	}
	return def
}

func floatOr(f schema.Fields, def float64, keys ...string) float64 {
	if v, ok := f.Float(keys...); ok {
		return v
	}
	return def
}

func rawOrNil(f schema.Fields, keys ...string) any {
	if v, ok := f.Raw(keys...); ok {
		return v
	}
	return nil
}

func rawPoint(f schema.Fields, aliases []string) any {
	if p, ok := f.GeoPoint(aliases...); ok {
		return schema.ToLatLng(p)
	}
	return nil
}
