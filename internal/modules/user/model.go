// README: User aggregate with role-specific driver/customer profiles.
package user

import (
	"fmt"
	"time"

	"kijiwe/internal/types"
)

type Role string

const (
	RoleCustomer Role = "Customer"
	RoleDriver   Role = "Driver"
	RoleAdmin    Role = "Admin"
)

// DriverStatus tracks where a driver is in the dispatch cycle. It must stay
// consistent with the driver's presence in a kijiwe queue: a driver mid-ride
// is absent from every queue.
type DriverStatus string

const (
	DriverWaitingForRide    DriverStatus = "waitingForRide"
	DriverPendingAcceptance DriverStatus = "pending_ride_acceptance"
	DriverGoingToPickup     DriverStatus = "goingToPickup"
	DriverArrivedAtPickup   DriverStatus = "arrivedAtPickup"
	DriverOnRide            DriverStatus = "onRide"
)

type DriverProfile struct {
	IsOnline               bool         `firestore:"isOnline"`
	Status                 DriverStatus `firestore:"status"`
	KijiweID               types.ID     `firestore:"kijiweId"`
	VehicleType            string       `firestore:"vehicleType"`
	LicenseNumber          string       `firestore:"licenseNumber"`
	CompletedRidesCount    int64        `firestore:"completedRidesCount"`
	DeclinedByDriverCount  int64        `firestore:"declinedByDriverCount"`
	CancelledByDriverCount int64        `firestore:"cancelledByDriverCount"`
}

type CustomerProfile struct {
	SumOfRatingsReceived        float64 `firestore:"sumOfRatingsReceived"`
	TotalRatingsReceivedCount   int64   `firestore:"totalRatingsReceivedCount"`
	CompletedRidesCount         int64   `firestore:"completedRidesCount"`
	RidesCancelledByDriverCount int64   `firestore:"ridesCancelledByDriverForCustomerCount"`
}

// AverageRating derives the customer's running average; zero when unrated.
func (p CustomerProfile) AverageRating() float64 {
	if p.TotalRatingsReceivedCount == 0 {
		return 0
	}
	return p.SumOfRatingsReceived / float64(p.TotalRatingsReceivedCount)
}

type User struct {
	ID              types.ID         `firestore:"-"`
	Name            string           `firestore:"name"`
	Role            Role             `firestore:"role"`
	FCMToken        string           `firestore:"fcmToken"`
	ProfileImageURL string           `firestore:"profileImageUrl"`
	Gender          string           `firestore:"gender"`
	DOB             time.Time        `firestore:"dob"`
	DriverProfile   *DriverProfile   `firestore:"driverProfile"`
	CustomerProfile *CustomerProfile `firestore:"customerProfile"`
}

// AvailableForDispatch reports whether the dispatcher may offer this user a
// ride: an online driver currently waiting at a kijiwe.
func (u *User) AvailableForDispatch() bool {
	return u != nil && u.DriverProfile != nil &&
		u.DriverProfile.IsOnline &&
		u.DriverProfile.Status == DriverWaitingForRide
}

// AgeBracket renders a decade bracket ("20s", "30s") from a date of birth.
// Empty when the birth date is unset or the derived age falls below minAge.
func AgeBracket(dob, now time.Time, minAge int) string {
	if dob.IsZero() {
		return ""
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 || age < minAge {
		return ""
	}
	return fmt.Sprintf("%ds", age/10*10)
}
