// README: Driver-action state machine; every transition commits one atomic write set.
package ride

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/modules/fare"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

const driverMinAgeForBracket = 18

// ActionRequest is the payload of a driver lifecycle call. Actual trip
// measurements are optional; nil means the driver app did not track them.
type ActionRequest struct {
	RideRequestID types.ID `json:"rideRequestId"`
	Action        Action   `json:"action"`
	Rating        int      `json:"rating,omitempty"`
	Comment       string   `json:"comment,omitempty"`

	ActualDistanceKm              *float64 `json:"actualDistanceKm,omitempty"`
	ActualDrivingDurationMinutes  *float64 `json:"actualDrivingDurationMinutes,omitempty"`
	ActualTotalWaitingTimeMinutes *float64 `json:"actualTotalWaitingTimeMinutes,omitempty"`
}

type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserSource resolves user profiles for authorization and denormalization.
type UserSource interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

// Notifier delivers a push to one user, best effort.
type Notifier interface {
	Send(ctx context.Context, userID types.ID, n notify.Notification)
}

type Service struct {
	store  Store
	users  UserSource
	fares  *fare.Service
	notify Notifier
	events EventSink
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store Store, users UserSource, fares *fare.Service, notifier Notifier, events EventSink, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		users:  users,
		fares:  fares,
		notify: notifier,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// HandleDriverAction advances a ride through its lifecycle on behalf of the
// authenticated driver. The caller's role is checked before any ride state
// is read; a guard violation on the current status fails the call without
// side effects.
func (s *Service) HandleDriverAction(ctx context.Context, driverUID types.ID, req ActionRequest) (ActionResult, error) {
	driver, err := s.users.Get(ctx, driverUID)
	if err != nil {
		return ActionResult{}, err
	}
	if driver.Role != user.RoleDriver {
		return ActionResult{}, apperrors.New(apperrors.PermissionDenied, "user is not authorized to perform this action (not a Driver)")
	}

	r, err := s.store.GetRide(ctx, req.RideRequestID)
	if err != nil {
		return ActionResult{}, err
	}

	switch req.Action {
	case ActionAccept:
		err = s.accept(ctx, driver, r)
	case ActionDecline:
		err = s.decline(ctx, driver, r)
	case ActionArrived:
		err = s.arrived(ctx, driver, r)
	case ActionStartRide:
		err = s.startRide(ctx, driver, r)
	case ActionCompleteRide:
		err = s.completeRide(ctx, driver, r, req)
	case ActionCancelByDriver:
		err = s.cancelByDriver(ctx, driver, r)
	case ActionRateCustomer:
		err = s.rateCustomer(ctx, driver, r, req.Rating, req.Comment)
	default:
		err = apperrors.Newf(apperrors.InvalidArgument, "unknown action %q", req.Action)
	}
	if err != nil {
		return ActionResult{}, err
	}

	s.log.Info("driver action applied",
		"ride_id", r.ID, "driver_id", driverUID, "action", req.Action)
	return ActionResult{Success: true, Message: fmt.Sprintf("Action '%s' successful.", req.Action)}, nil
}

func (s *Service) accept(ctx context.Context, driver *user.User, r *RideRequest) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusPendingDriverAcceptance {
		return apperrors.New(apperrors.FailedPrecondition, "ride cannot be accepted by this driver or is not in the correct state")
	}

	name := fallback(driver.Name, "Driver")
	gender := fallback(driver.Gender, "Unknown")
	ageGroup := fallback(user.AgeBracket(driver.DOB, s.now(), driverMinAgeForBracket), "Unknown")
	license := "N/A"
	vehicle := "N/A"
	if driver.DriverProfile != nil {
		license = fallback(driver.DriverProfile.LicenseNumber, "N/A")
		vehicle = fallback(driver.DriverProfile.VehicleType, "N/A")
	}

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{
		"status":                string(StatusAccepted),
		"acceptedTime":          s.now(),
		"driverName":            name,
		"driverProfileImageUrl": driver.ProfileImageURL,
		"driverGender":          gender,
		"driverAgeGroup":        ageGroup,
		"driverLicenseNumber":   license,
		"driverVehicleType":     vehicle,
	})
	b.SetDriverStatus(driver.ID, user.DriverGoingToPickup)
	if r.KijiweID != "" {
		b.RemoveDriverFromQueue(r.KijiweID, driver.ID)
	}
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "accepting ride", err)
	}
	s.appendEvent(ctx, r, StatusAccepted, ActionAccept, driver.ID)

	if r.CustomerID != "" {
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID:       r.ID,
			Status:              string(StatusAccepted),
			NotifTitle:          "Driver Found!",
			NotifBody:           fmt.Sprintf("%s is on the way to pick you up.", name),
			DriverName:          name,
			DriverImageURL:      driver.ProfileImageURL,
			DriverGender:        gender,
			DriverAgeGroup:      ageGroup,
			DriverLicenseNumber: license,
			DriverVehicleType:   vehicle,
		})
	}
	return nil
}

func (s *Service) decline(ctx context.Context, driver *user.User, r *RideRequest) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusPendingDriverAcceptance {
		return apperrors.New(apperrors.FailedPrecondition, "ride cannot be declined")
	}

	b := s.store.NewBatch()
	// driverId stays on the ride so the record shows who declined.
	b.UpdateRide(r.ID, map[string]any{"status": string(StatusDeclinedByDriver)})
	b.SetDriverStatus(driver.ID, user.DriverWaitingForRide)
	b.IncrementDriverCounter(driver.ID, "declinedByDriverCount")
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "declining ride", err)
	}
	s.appendEvent(ctx, r, StatusDeclinedByDriver, ActionDecline, driver.ID)

	if r.CustomerID != "" {
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID: r.ID,
			Status:        string(StatusDeclinedByDriver),
			NotifTitle:    "Ride Update",
			NotifBody:     "The driver declined the ride. Please try requesting again.",
		})
	}
	return nil
}

func (s *Service) arrived(ctx context.Context, driver *user.User, r *RideRequest) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusAccepted {
		return apperrors.New(apperrors.FailedPrecondition, "cannot confirm arrival: ride not accepted by this driver")
	}

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{"status": string(StatusArrivedAtPickup)})
	b.SetDriverStatus(driver.ID, user.DriverArrivedAtPickup)
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "confirming arrival", err)
	}
	s.appendEvent(ctx, r, StatusArrivedAtPickup, ActionArrived, driver.ID)

	if r.CustomerID != "" {
		name := fallback(driver.Name, "Your driver")
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID: r.ID,
			Status:        string(StatusArrivedAtPickup),
			NotifTitle:    "Driver Arrived!",
			NotifBody:     fmt.Sprintf("%s has arrived at your pickup location.", name),
			DriverName:    name,
		})
	}
	return nil
}

func (s *Service) startRide(ctx context.Context, driver *user.User, r *RideRequest) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusArrivedAtPickup {
		return apperrors.New(apperrors.FailedPrecondition, "cannot start ride: ride not at pickup or not assigned to this driver")
	}

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{"status": string(StatusOnRide)})
	b.SetDriverStatus(driver.ID, user.DriverOnRide)
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "starting ride", err)
	}
	s.appendEvent(ctx, r, StatusOnRide, ActionStartRide, driver.ID)

	if r.CustomerID != "" {
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID: r.ID,
			Status:        string(StatusOnRide),
			NotifTitle:    "Ride Started",
			NotifBody:     fmt.Sprintf("Your ride with %s has started.", fallback(driver.Name, "your driver")),
		})
	}
	return nil
}

func (s *Service) completeRide(ctx context.Context, driver *user.User, r *RideRequest, req ActionRequest) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusOnRide {
		return apperrors.New(apperrors.FailedPrecondition, "cannot complete ride")
	}

	cfg := s.fares.Load(ctx)
	quote := fare.Finalize(cfg, fare.Actuals{
		DistanceKm:             req.ActualDistanceKm,
		DrivingDurationMinutes: req.ActualDrivingDurationMinutes,
		TotalWaitingMinutes:    req.ActualTotalWaitingTimeMinutes,
	}, r.CustomerCalculatedEstimatedFare, r.EstimatedDistanceKm, r.EstimatedDurationMinutes)

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{
		"status":           string(StatusCompleted),
		"completedTime":    s.now(),
		"fare":             quote.Total,
		"commissionAmount": quote.Commission,
		"driverEarnings":   quote.DriverEarnings,
		"fareConfigUsed":   cfg,
		// Store what was actually tracked, falling back to the estimates
		// the fare was computed from.
		"actualDistanceKm":              valueOr(req.ActualDistanceKm, r.EstimatedDistanceKm),
		"actualDrivingDurationMinutes":  valueOr(req.ActualDrivingDurationMinutes, r.EstimatedDurationMinutes),
		"actualTotalWaitingTimeMinutes": valueOr(req.ActualTotalWaitingTimeMinutes, 0),
	})
	b.SetDriverStatus(driver.ID, user.DriverWaitingForRide)
	b.IncrementDriverCounter(driver.ID, "completedRidesCount")
	if r.CustomerID != "" {
		b.IncrementCustomerCounter(r.CustomerID, "completedRidesCount")
	}
	// The driver rejoins their own kijiwe's queue, which may differ from the
	// one the ride was matched from.
	if driver.DriverProfile != nil && driver.DriverProfile.KijiweID != "" {
		b.AddDriverToQueue(driver.DriverProfile.KijiweID, driver.ID)
	}
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "completing ride", err)
	}
	s.appendEvent(ctx, r, StatusCompleted, ActionCompleteRide, driver.ID)

	if r.CustomerID != "" {
		total := quote.Total
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID: r.ID,
			Status:        string(StatusCompleted),
			NotifTitle:    "Ride Completed!",
			NotifBody:     "Your ride has been completed. Thank you!",
			Fare:          &total,
		})
	}
	return nil
}

func (s *Service) cancelByDriver(ctx context.Context, driver *user.User, r *RideRequest) error {
	if !r.assignedTo(driver.ID) || (r.Status != StatusAccepted && r.Status != StatusArrivedAtPickup) {
		return apperrors.New(apperrors.FailedPrecondition, "ride cannot be cancelled by driver at this stage")
	}

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{"status": string(StatusCancelledByDriver)})
	b.SetDriverStatus(driver.ID, user.DriverWaitingForRide)
	b.IncrementDriverCounter(driver.ID, "cancelledByDriverCount")
	if r.CustomerID != "" {
		b.IncrementCustomerCounter(r.CustomerID, "ridesCancelledByDriverForCustomerCount")
	}
	if driver.DriverProfile != nil && driver.DriverProfile.KijiweID != "" {
		b.AddDriverToQueue(driver.DriverProfile.KijiweID, driver.ID)
	}
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "cancelling ride", err)
	}
	s.appendEvent(ctx, r, StatusCancelledByDriver, ActionCancelByDriver, driver.ID)

	if r.CustomerID != "" {
		s.notify.Send(ctx, r.CustomerID, notify.RideStatus{
			RideRequestID: r.ID,
			Status:        string(StatusCancelledByDriver),
			NotifTitle:    "Ride Cancelled",
			NotifBody:     fmt.Sprintf("Your ride has been cancelled by %s.", fallback(driver.Name, "the driver")),
		})
	}
	return nil
}

func (s *Service) rateCustomer(ctx context.Context, driver *user.User, r *RideRequest, rating int, comment string) error {
	if !r.assignedTo(driver.ID) || r.Status != StatusCompleted {
		return apperrors.New(apperrors.FailedPrecondition, "cannot rate customer for this ride")
	}
	if rating < 1 || rating > 5 {
		return apperrors.New(apperrors.InvalidArgument, "rating must be between 1 and 5")
	}

	b := s.store.NewBatch()
	b.UpdateRide(r.ID, map[string]any{
		"driverRatingToCustomer":  rating,
		"driverCommentToCustomer": comment,
	})
	if r.CustomerID != "" {
		b.AccumulateCustomerRating(r.CustomerID, rating)
	}
	if err := b.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.Internal, "rating customer", err)
	}
	return nil
}

// appendEvent records the transition in the audit log. Best effort: an
// outage there never fails the ride.
func (s *Service) appendEvent(ctx context.Context, r *RideRequest, to Status, action Action, actorID types.ID) {
	if s.events == nil {
		return
	}
	_ = s.events.AppendEvent(ctx, &Event{
		RideID:     r.ID,
		FromStatus: r.Status,
		ToStatus:   to,
		Action:     action,
		ActorType:  "driver",
		ActorID:    &actorID,
		CreatedAt:  s.now(),
	})
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func valueOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
