// README: Document vocabulary shared by both stores: collection names and
// the status sets of requests, drivers and proposals.
package schema

// Collection names. The passenger store owns Requests; the driver store owns
// Drivers and Proposals.
const (
	RequestsCollection  = "public_ride_requests"
	DriversCollection   = "riders"
	ProposalsCollection = "driver_proposals"
)

// Ride request statuses as written by the passenger app and this engine.
const (
	RequestPending         = "pending"
	RequestPendingAgain    = "pending_again"
	RequestProposed        = "proposed"
	RequestAccepted        = "accepted"
	RequestArrivedAtPickup = "arrived_at_pickup"
	RequestPickedUp        = "picked_up"
	RequestOnWay           = "on_way"
	RequestCompleted       = "completed"
	RequestRejected        = "rejected"
)

// Driver occupancy statuses.
const (
	DriverAvailable           = "available"
	DriverIdle                = "idle"
	DriverEnRoute             = "en_route"
	DriverOnRouteToPickup     = "on_route_to_pickup"
	DriverOnRouteToOriginal   = "on_route_to_original_destination"
	DriverReservedForProposal = "reserved_for_proposal"
	DriverOnSitePickup        = "on_site_pickup"
)

// EligibleDriverStatuses is the set of occupancy states in which a driver may
// be matched. Reservation re-checks membership inside its transaction.
var EligibleDriverStatuses = []string{
	DriverOnRouteToOriginal,
	DriverAvailable,
	DriverIdle,
	DriverOnRouteToPickup,
	DriverEnRoute,
}

// IsEligibleDriverStatus reports whether a driver in status s may be matched.
func IsEligibleDriverStatus(s string) bool {
	for _, e := range EligibleDriverStatuses {
		if s == e {
			return true
		}
	}
	return false
}

// Proposal lifecycle statuses as created by this engine. Client apps write
// looser aliases; see the proposal module's mapping table.
const (
	ProposalPendingAcceptance = "pending_acceptance"
)
