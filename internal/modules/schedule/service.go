// README: Scheduled-ride sweep: activates due bookings and expands recurring templates.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/types"
)

// Locker serializes sweeps across instances. Acquire returns false when
// another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const sweepLockKey = "schedule:sweep"

// Matcher dispatches a ride request to nearby drivers. Activated rides are
// handed to it once their batch has committed.
type Matcher interface {
	Match(ctx context.Context, rideID types.ID) error
}

type Service struct {
	store   Store
	locker  Locker
	matcher Matcher
	log     *slog.Logger

	sweepInterval    time.Duration
	activationWindow time.Duration
	horizon          time.Duration

	now func() time.Time
}

func NewService(store Store, locker Locker, matcher Matcher, sweepInterval, activationWindow, horizon time.Duration, log *slog.Logger) *Service {
	return &Service{
		store:            store,
		locker:           locker,
		matcher:          matcher,
		log:              log,
		sweepInterval:    sweepInterval,
		activationWindow: activationWindow,
		horizon:          horizon,
		now:              time.Now,
	}
}

// ProcessStats summarizes one sweep.
type ProcessStats struct {
	RidesActivated     int
	InstancesGenerated int
}

// Process runs one sweep: activation of due non-recurring rides and
// expansion of recurring templates, batched into a single atomic write set.
func (s *Service) Process(ctx context.Context, now time.Time) (ProcessStats, error) {
	var stats ProcessStats
	b := s.store.NewBatch()

	due, err := s.store.DueNonRecurring(ctx, now, now.Add(s.activationWindow))
	if err != nil {
		return stats, err
	}
	var activated []types.ID
	for i := range due {
		sr := &due[i]
		rideID := b.MaterializeRide(sr, now)
		b.UpdateScheduled(sr.ID, map[string]any{
			"status":              string(StatusActivated),
			"actualRideRequestId": string(rideID),
		})
		activated = append(activated, rideID)
		stats.RidesActivated++
		s.log.Info("activating scheduled ride", "scheduled_ride_id", sr.ID, "ride_id", rideID)
	}

	masters, err := s.store.RecurringMasters(ctx)
	if err != nil {
		return stats, err
	}
	cutoff := now.Add(s.horizon)
	for i := range masters {
		m := &masters[i]
		if !m.ExpandableAt(now) {
			s.log.Info("recurring ride ended or misconfigured, skipping", "scheduled_ride_id", m.ID)
			continue
		}
		stats.InstancesGenerated += s.expandMaster(b, m, now, cutoff)
	}

	if b.Len() == 0 {
		return stats, nil
	}
	if err := b.Commit(ctx); err != nil {
		return stats, err
	}
	s.log.Info("scheduled sweep committed",
		"activated", stats.RidesActivated, "instances_generated", stats.InstancesGenerated)

	// Activated requests are now live ride documents; run the dispatcher on
	// each so they get offered to drivers like any direct request.
	if s.matcher != nil {
		for _, rideID := range activated {
			if err := s.matcher.Match(ctx, rideID); err != nil {
				s.log.Error("dispatch of activated ride failed", "ride_id", rideID, "err", err)
			}
		}
	}
	return stats, nil
}

// expandMaster generates dated instances between the master's watermark and
// the cutoff, then advances the watermark. The watermark moves even when no
// instance was due, so a master past its window is not re-scanned forever.
func (s *Service) expandMaster(b Batch, m *ScheduledRide, now, cutoff time.Time) int {
	sched := m.ScheduledDateTime
	cur := sched
	if !m.LastInstanceGeneratedUpTo.IsZero() {
		resume := m.LastInstanceGeneratedUpTo.Add(24*time.Hour - time.Millisecond)
		if resume.After(cur) {
			cur = resume
		}
	}
	cur = time.Date(cur.Year(), cur.Month(), cur.Day(), sched.Hour(), sched.Minute(), 0, 0, sched.Location())

	generated := 0
	for !cur.After(m.RecurrenceEndDate) && !cur.After(cutoff) {
		if m.matchesDay(cur) {
			b.CreateInstance(&ScheduledRide{
				CustomerID:            m.CustomerID,
				Status:                StatusScheduled,
				Pickup:                m.Pickup,
				Dropoff:               m.Dropoff,
				Stops:                 m.Stops,
				PickupAddressName:     m.PickupAddressName,
				DropoffAddressName:    m.DropoffAddressName,
				CustomerNote:          m.CustomerNote,
				Title:                 m.Title,
				ScheduledDateTime:     cur,
				MasterRecurringRideID: m.ID,
				CreatedAt:             now,
			})
			generated++
		}
		cur = cur.AddDate(0, 0, 1)
	}

	watermark := cutoff
	if m.RecurrenceEndDate.Before(watermark) {
		watermark = m.RecurrenceEndDate
	}
	b.UpdateScheduled(m.ID, map[string]any{"lastInstanceGeneratedUpTo": watermark})
	return generated
}

// CreateRequest is a customer's new scheduled booking or recurring
// template.
type CreateRequest struct {
	Pickup             types.Point `json:"pickup"`
	Dropoff            types.Point `json:"dropoff"`
	PickupAddressName  string      `json:"pickupAddressName"`
	DropoffAddressName string      `json:"dropoffAddressName"`
	CustomerNote       string      `json:"customerNoteToDriver,omitempty"`
	Title              string      `json:"title,omitempty"`

	ScheduledDateTime time.Time `json:"scheduledDateTime"`

	IsRecurring          bool           `json:"isRecurring,omitempty"`
	RecurrenceType       RecurrenceType `json:"recurrenceType,omitempty"`
	RecurrenceDaysOfWeek []string       `json:"recurrenceDaysOfWeek,omitempty"`
	RecurrenceEndDate    time.Time      `json:"recurrenceEndDate,omitempty"`
}

// Create stores a new scheduled ride for the caller.
func (s *Service) Create(ctx context.Context, uid types.ID, req CreateRequest) (types.ID, error) {
	if uid == "" {
		return "", apperrors.New(apperrors.Unauthenticated, "user must be authenticated")
	}
	if req.ScheduledDateTime.IsZero() {
		return "", apperrors.New(apperrors.InvalidArgument, "scheduledDateTime is required")
	}
	if req.IsRecurring {
		if req.RecurrenceType != RecurrenceDaily && req.RecurrenceType != RecurrenceWeekly {
			return "", apperrors.New(apperrors.InvalidArgument, "recurring rides need a recurrenceType of Daily or Weekly")
		}
		if req.RecurrenceEndDate.IsZero() {
			return "", apperrors.New(apperrors.InvalidArgument, "recurring rides need a recurrenceEndDate")
		}
	}

	id, err := s.store.Create(ctx, &ScheduledRide{
		CustomerID:           uid,
		Status:               StatusScheduled,
		Pickup:               req.Pickup,
		Dropoff:              req.Dropoff,
		PickupAddressName:    req.PickupAddressName,
		DropoffAddressName:   req.DropoffAddressName,
		CustomerNote:         req.CustomerNote,
		Title:                req.Title,
		ScheduledDateTime:    req.ScheduledDateTime,
		IsRecurring:          req.IsRecurring,
		RecurrenceType:       req.RecurrenceType,
		RecurrenceDaysOfWeek: req.RecurrenceDaysOfWeek,
		RecurrenceEndDate:    req.RecurrenceEndDate,
		CreatedAt:            s.now(),
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.Internal, "creating scheduled ride", err)
	}
	s.log.Info("scheduled ride created", "scheduled_ride_id", id, "uid", uid, "recurring", req.IsRecurring)
	return id, nil
}

// ManageRequest is a customer's edit or delete of their own scheduled ride.
type ManageRequest struct {
	Action string    `json:"action"`
	RideID types.ID  `json:"rideId"`
	Edit   *EditData `json:"rideData,omitempty"`
}

// EditData carries the editable fields; nil fields are left untouched.
type EditData struct {
	ScheduledDateTime  *time.Time   `json:"scheduledDateTime,omitempty"`
	RecurrenceEndDate  *time.Time   `json:"recurrenceEndDate,omitempty"`
	Pickup             *types.Point `json:"pickup,omitempty"`
	Dropoff            *types.Point `json:"dropoff,omitempty"`
	PickupAddressName  *string      `json:"pickupAddressName,omitempty"`
	DropoffAddressName *string      `json:"dropoffAddressName,omitempty"`
	CustomerNote       *string      `json:"customerNoteToDriver,omitempty"`
	Title              *string      `json:"title,omitempty"`
}

// Manage edits or deletes a scheduled ride after checking the caller owns
// it.
func (s *Service) Manage(ctx context.Context, uid types.ID, req ManageRequest) error {
	if uid == "" {
		return apperrors.New(apperrors.Unauthenticated, "user must be authenticated")
	}
	if req.Action == "" || req.RideID == "" {
		return apperrors.New(apperrors.InvalidArgument, "missing action or rideId")
	}

	sr, err := s.store.Get(ctx, req.RideID)
	if err != nil {
		return err
	}
	if sr.CustomerID != uid {
		return apperrors.New(apperrors.PermissionDenied, "user does not own this scheduled ride")
	}

	switch req.Action {
	case "edit":
		if req.Edit == nil {
			return apperrors.New(apperrors.InvalidArgument, "missing rideData for edit action")
		}
		fields := editFields(req.Edit)
		fields["updatedAt"] = s.now()
		if err := s.store.Update(ctx, req.RideID, fields); err != nil {
			return apperrors.Wrap(apperrors.Internal, "could not manage scheduled ride", err)
		}
		s.log.Info("scheduled ride edited", "scheduled_ride_id", req.RideID, "uid", uid)
		return nil
	case "delete":
		if err := s.store.Delete(ctx, req.RideID); err != nil {
			return apperrors.Wrap(apperrors.Internal, "could not manage scheduled ride", err)
		}
		s.log.Info("scheduled ride deleted", "scheduled_ride_id", req.RideID, "uid", uid)
		return nil
	default:
		return apperrors.New(apperrors.InvalidArgument, "invalid action specified")
	}
}

func editFields(e *EditData) map[string]any {
	fields := map[string]any{}
	if e.ScheduledDateTime != nil {
		fields["scheduledDateTime"] = *e.ScheduledDateTime
	}
	if e.RecurrenceEndDate != nil {
		fields["recurrenceEndDate"] = *e.RecurrenceEndDate
	}
	if e.Pickup != nil {
		fields["pickup"] = geoPoint(*e.Pickup)
	}
	if e.Dropoff != nil {
		fields["dropoff"] = geoPoint(*e.Dropoff)
	}
	if e.PickupAddressName != nil {
		fields["pickupAddressName"] = *e.PickupAddressName
	}
	if e.DropoffAddressName != nil {
		fields["dropoffAddressName"] = *e.DropoffAddressName
	}
	if e.CustomerNote != nil {
		fields["customerNoteToDriver"] = *e.CustomerNote
	}
	if e.Title != nil {
		fields["title"] = *e.Title
	}
	return fields
}

// RunProcessor sweeps on a fixed interval until the context is cancelled.
// Each tick takes the distributed lock first, so overlapping instances of
// the service never run concurrent sweeps.
func (s *Service) RunProcessor(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.log.Info("scheduled ride processor started", "interval", s.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduled ride processor stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, sweepLockKey, s.sweepInterval)
		if err != nil {
			s.log.Error("sweep lock acquire failed", "err", err)
			return
		}
		if !ok {
			s.log.Info("sweep already running elsewhere, skipping tick")
			return
		}
	}
	if _, err := s.Process(ctx, s.now()); err != nil {
		s.log.Error("scheduled sweep failed", "err", err)
	}
}
