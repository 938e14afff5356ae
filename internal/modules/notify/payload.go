// README: Typed notification kinds; each renders its own string-only FCM data payload.
package notify

import (
	"encoding/json"
	"fmt"
	"strconv"

	"kijiwe/internal/types"
)

// Notification is one of a fixed set of push kinds. Data returns the custom
// payload with every value already coerced to text, since FCM custom data is
// string-typed; the relay adds the tap-action marker and the kind tag.
type Notification interface {
	Kind() string
	Title() string
	Body() string
	Data() map[string]string
}

// Stop is an intermediate trip stop carried inside a ride-offer payload.
type Stop struct {
	Location    types.Point
	AddressName string
}

// RideOffer is sent to a driver when the dispatcher assigns them a request.
type RideOffer struct {
	RideRequestID      types.ID
	CustomerID         types.ID
	CustomerName       string
	CustomerImageURL   string
	CustomerDetails    string
	Pickup             types.Point
	Dropoff            types.Point
	Stops              []Stop
	PickupAddressName  string
	DropoffAddressName string
	CustomerNote       string
	EstimatedFare      float64
}

func (RideOffer) Kind() string  { return "ride_offer" }
func (RideOffer) Title() string { return "New Ride Request!" }
func (RideOffer) Body() string  { return "You have a new ride assignment." }

func (n RideOffer) Data() map[string]string {
	d := map[string]string{
		"rideRequestId":           string(n.RideRequestID),
		"status":                  "pending_driver_acceptance",
		"customerId":              string(n.CustomerID),
		"customerName":            n.CustomerName,
		"customerProfileImageUrl": n.CustomerImageURL,
		"customerDetails":         n.CustomerDetails,
		"pickupAddressName":       n.PickupAddressName,
		"dropoffAddressName":      n.DropoffAddressName,
		"pickupLat":               formatCoord(n.Pickup.Lat),
		"pickupLng":               formatCoord(n.Pickup.Lng),
		"dropoffLat":              formatCoord(n.Dropoff.Lat),
		"dropoffLng":              formatCoord(n.Dropoff.Lng),
		"customerNoteToDriver":    n.CustomerNote,
		"estimatedFare":           strconv.FormatFloat(n.EstimatedFare, 'f', 2, 64),
	}
	if len(n.Stops) > 0 {
		type wireStop struct {
			Location    string `json:"location"`
			AddressName string `json:"addressName"`
		}
		stops := make([]wireStop, len(n.Stops))
		for i, s := range n.Stops {
			stops[i] = wireStop{
				Location:    fmt.Sprintf("%v,%v", s.Location.Lat, s.Location.Lng),
				AddressName: s.AddressName,
			}
		}
		if b, err := json.Marshal(stops); err == nil {
			d["stops"] = string(b)
		}
	}
	return d
}

// RideStatus is sent to a customer when their ride changes state.
type RideStatus struct {
	RideRequestID types.ID
	Status        string
	NotifTitle    string
	NotifBody     string
	// Driver display fields, populated on accept.
	DriverName          string
	DriverImageURL      string
	DriverGender        string
	DriverAgeGroup      string
	DriverLicenseNumber string
	DriverVehicleType   string
	// Final fare, populated on completion.
	Fare *float64
}

func (RideStatus) Kind() string    { return "ride_status" }
func (n RideStatus) Title() string { return n.NotifTitle }
func (n RideStatus) Body() string  { return n.NotifBody }

func (n RideStatus) Data() map[string]string {
	d := map[string]string{
		"rideRequestId": string(n.RideRequestID),
		"status":        n.Status,
	}
	if n.DriverName != "" {
		d["driverName"] = n.DriverName
		d["driverProfileImageUrl"] = n.DriverImageURL
		d["driverGender"] = n.DriverGender
		d["driverAgeGroup"] = n.DriverAgeGroup
		d["driverLicenseNumber"] = n.DriverLicenseNumber
		d["driverVehicleType"] = n.DriverVehicleType
	}
	if n.Fare != nil {
		d["fare"] = strconv.FormatFloat(*n.Fare, 'f', -1, 64)
	}
	return d
}

// ChatMessage is relayed to the other party of an active ride.
type ChatMessage struct {
	RideRequestID types.ID
	SenderID      types.ID
	SenderName    string
	Text          string
}

func (ChatMessage) Kind() string    { return "chat_message" }
func (n ChatMessage) Title() string { return "New message from " + n.SenderName }
func (n ChatMessage) Body() string  { return n.Text }

func (n ChatMessage) Data() map[string]string {
	return map[string]string{
		"rideRequestId": string(n.RideRequestID),
		"senderId":      string(n.SenderID),
	}
}

// UserAlert is a generic account-level notification.
type UserAlert struct {
	NotificationID string
	NotifTitle     string
	NotifBody      string
}

func (UserAlert) Kind() string    { return "user_management_notification" }
func (n UserAlert) Title() string { return n.NotifTitle }
func (n UserAlert) Body() string  { return n.NotifBody }

func (n UserAlert) Data() map[string]string {
	return map[string]string{"notificationId": n.NotificationID}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
