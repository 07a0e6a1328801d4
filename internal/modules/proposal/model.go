// README: Proposal status vocabulary. Client apps write several aliases per
// lifecycle stage; the data-driven tables here map every alias onto one
// canonical outcome for the passenger request and the driver document.
package proposal

import "ridelink/internal/schema"

// Canonical proposal stages.
const (
	StageAccepted     = "accepted"
	StageArrived      = "arrived_at_pickup"
	StageOTPVerified  = "otp_verified"
	StageFaceVerified = "face_verified"
	StagePickedUp     = "picked_up"
	StageOnWay        = "on_way"
	StageCompleted    = "completed"
	StageRejected     = "rejected"
)

// statusAliases maps every accepted wire spelling to its canonical stage.
var statusAliases = map[string]string{
	"accepted":          StageAccepted,
	"driver_accepted":   StageAccepted,
	"driver_arrived":    StageArrived,
	"arrived":           StageArrived,
	"arrived_at_pickup": StageArrived,
	"otp_verified":      StageOTPVerified,
	"face_verified":     StageFaceVerified,
	"picked_up":         StagePickedUp,
	"pickedup":          StagePickedUp,
	"on_way":            StageOnWay,
	"on_the_way":        StageOnWay,
	"en_route":          StageOnWay,
	"completed":         StageCompleted,
	"finished":          StageCompleted,
	"rejected":          StageRejected,
	"cancelled":         StageRejected,
	"declined":          StageRejected,
}

// InterestingStatuses is the change-feed filter for the proposal listener:
// every alias the engine reacts to.
var InterestingStatuses = []string{
	"accepted", "driver_accepted",
	"driver_arrived", "arrived", "arrived_at_pickup",
	"otp_verified", "face_verified",
	"picked_up", "pickedup",
	"on_way", "on_the_way", "en_route",
	"completed", "finished",
	"rejected", "cancelled", "declined",
}

// outcome describes the passenger-side and driver-side effect of a stage.
type outcome struct {
	stage string

	// Progress transitions.
	requestStatus   string   // new request status, empty for flag-only stages
	timestampFields []string // server-timestamp fields stamped with the status
	driverStatus    string   // mirrored driver occupancy status
	clearRide       bool     // clear driver's current_ride_request (completion)

	// Flag-only transitions (OTP / face verification).
	flagField     string
	flagTimestamp string

	// Rejection.
	revert bool
}

var outcomes = map[string]outcome{
	StageAccepted: {
		stage:           StageAccepted,
		requestStatus:   schema.RequestAccepted,
		timestampFields: []string{"accepted_at"},
		driverStatus:    schema.DriverOnRouteToPickup,
	},
	StageArrived: {
		stage:           StageArrived,
		requestStatus:   schema.RequestArrivedAtPickup,
		timestampFields: []string{"arrived_at"},
		driverStatus:    schema.DriverOnSitePickup,
	},
	StageOTPVerified: {
		stage:         StageOTPVerified,
		flagField:     "otpVerified",
		flagTimestamp: "otp_verified_at",
	},
	StageFaceVerified: {
		stage:         StageFaceVerified,
		flagField:     "faceVerified",
		flagTimestamp: "face_verified_at",
	},
	StagePickedUp: {
		stage:           StagePickedUp,
		requestStatus:   schema.RequestPickedUp,
		timestampFields: []string{"pickupTimestamp", "picked_up_at"},
		driverStatus:    schema.DriverEnRoute,
	},
	StageOnWay: {
		stage:           StageOnWay,
		requestStatus:   schema.RequestOnWay,
		timestampFields: []string{"on_way_at"},
		driverStatus:    schema.DriverEnRoute,
	},
	StageCompleted: {
		stage:           StageCompleted,
		requestStatus:   schema.RequestCompleted,
		timestampFields: []string{"completed_at"},
		driverStatus:    schema.DriverIdle,
		clearRide:       true,
	},
	StageRejected: {
		stage:  StageRejected,
		revert: true,
	},
}

// mapStatus resolves a raw proposal status (already lowercased) to its
// outcome. Unrecognized statuses are a deliberate no-op.
func mapStatus(raw string) (outcome, bool) {
	stage, ok := statusAliases[raw]
	if !ok {
		return outcome{}, false
	}
	return outcomes[stage], true
}

// revertableRequestStatuses are the request states a rejection may unwind.
// Anything further along is terminal for the rejection path.
var revertableRequestStatuses = map[string]bool{
	schema.RequestProposed: true,
	"pending_accepted":     true,
	schema.RequestAccepted: true,
}
