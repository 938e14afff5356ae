// README: Scheduled rides: one-off bookings and recurring templates.
package schedule

import (
	"time"

	"kijiwe/internal/modules/ride"
	"kijiwe/internal/types"
)

type Status string

const (
	// StatusScheduled means the ride is waiting for its target time.
	StatusScheduled Status = "scheduled"
	// StatusActivated means the ride was materialized into a live request.
	StatusActivated Status = "activated"
)

type RecurrenceType string

const (
	RecurrenceDaily  RecurrenceType = "Daily"
	RecurrenceWeekly RecurrenceType = "Weekly"
)

// ScheduledRide is either a concrete dated booking or, when IsRecurring is
// set, a master template the processor expands into dated instances.
type ScheduledRide struct {
	ID         types.ID
	CustomerID types.ID
	Status     Status

	Pickup             types.Point
	Dropoff            types.Point
	Stops              []ride.Stop
	PickupAddressName  string
	DropoffAddressName string
	CustomerNote       string
	Title              string

	ScheduledDateTime time.Time

	IsRecurring          bool
	RecurrenceType       RecurrenceType
	RecurrenceDaysOfWeek []string
	RecurrenceEndDate    time.Time

	// LastInstanceGeneratedUpTo is the master's expansion watermark: dated
	// instances exist for every matching day up to it.
	LastInstanceGeneratedUpTo time.Time

	// MasterRecurringRideID links a generated instance back to its template.
	MasterRecurringRideID types.ID
	// ActualRideRequestID is set on activation.
	ActualRideRequestID types.ID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpandableAt reports whether the processor should expand this template at
// the given time. Templates with a missing recurrence descriptor or an
// already-past end date are skipped entirely.
func (s *ScheduledRide) ExpandableAt(now time.Time) bool {
	return s.IsRecurring &&
		s.RecurrenceType != "" &&
		!s.RecurrenceEndDate.IsZero() &&
		!s.RecurrenceEndDate.Before(now)
}

// matchesDay reports whether a recurrence instance falls due on the given
// day. Weekly templates carry three-letter day abbreviations.
func (s *ScheduledRide) matchesDay(day time.Time) bool {
	switch s.RecurrenceType {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		abbr := day.Weekday().String()[:3]
		for _, d := range s.RecurrenceDaysOfWeek {
			if d == abbr {
				return true
			}
		}
	}
	return false
}
