// README: RideRequest aggregate, lifecycle statuses, and driver actions.
package ride

import (
	"time"

	"kijiwe/internal/types"
)

// Status is the ride-request lifecycle state.
type Status string

const (
	// StatusPendingMatch is the initial state of a new request, before the
	// dispatcher has run.
	StatusPendingMatch Status = "pending_match"
	// StatusPendingDriverAcceptance means the request is offered to a driver.
	StatusPendingDriverAcceptance Status = "pending_driver_acceptance"
	StatusAccepted                Status = "accepted"
	StatusArrivedAtPickup         Status = "arrivedAtPickup"
	StatusOnRide                  Status = "onRide"
	StatusCompleted               Status = "completed"
	StatusDeclinedByDriver        Status = "declined_by_driver"
	StatusCancelledByDriver       Status = "cancelled_by_driver"

	// Terminal dispatcher outcomes.
	StatusNoDriversAvailable Status = "no_drivers_available"
	StatusNoKijiwesNearby    Status = "no_kijiwes_nearby"
	StatusErrMissingPickup   Status = "matching_error_missing_pickup"
	StatusErrKijiweFetch     Status = "matching_error_kijiwe_fetch"
)

// Action is a driver-initiated lifecycle operation.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionDecline        Action = "decline"
	ActionArrived        Action = "arrivedAtPickup"
	ActionStartRide      Action = "startRide"
	ActionCompleteRide   Action = "completeRide"
	ActionCancelByDriver Action = "cancelRideByDriver"
	ActionRateCustomer   Action = "rateCustomer"
)

// Stop is an intermediate trip stop.
type Stop struct {
	Location    types.Point
	AddressName string
}

// RideRequest is the primary trip record. Customer and driver display fields
// are denormalized onto it at match/accept time so the reactive client UI
// need not join across entities.
type RideRequest struct {
	ID         types.ID
	CustomerID types.ID
	DriverID   types.ID
	KijiweID   types.ID
	Status     Status

	// Pickup is nil when the request document carries no pickup coordinate.
	// An exact (0,0) pickup is a valid location, not an absent one.
	Pickup             *types.Point
	Dropoff            types.Point
	Stops              []Stop
	PickupAddressName  string
	DropoffAddressName string
	CustomerNote       string
	Title              string

	EstimatedDistanceKm      float64
	EstimatedDurationMinutes float64
	// CustomerCalculatedEstimatedFare is the fare the customer app computed
	// before requesting; nil when the app did not supply one.
	CustomerCalculatedEstimatedFare *float64

	Fare             float64
	CommissionAmount float64
	DriverEarnings   float64

	ActualDistanceKm              float64
	ActualDrivingDurationMinutes  float64
	ActualTotalWaitingTimeMinutes float64

	RequestTime   time.Time
	AcceptedTime  time.Time
	CompletedTime time.Time

	CustomerName            string
	CustomerProfileImageURL string
	CustomerDetails         string

	DriverName            string
	DriverProfileImageURL string
	DriverGender          string
	DriverAgeGroup        string
	DriverLicenseNumber   string
	DriverVehicleType     string

	DriverRatingToCustomer  int
	DriverCommentToCustomer string

	// ScheduledRideParentID links a request materialized from a scheduled
	// ride back to its source.
	ScheduledRideParentID types.ID
}

// assignedTo reports whether the ride is currently assigned to the driver.
func (r *RideRequest) assignedTo(driverUID types.ID) bool {
	return r.DriverID != "" && r.DriverID == driverUID
}
