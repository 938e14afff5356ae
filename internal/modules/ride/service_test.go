package ride

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/modules/fare"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

// memStore keeps rides in memory and applies committed batches to them so a
// test can assert the post-transition state.
type memStore struct {
	rides   map[types.ID]*RideRequest
	drivers map[types.ID]user.DriverStatus
	queues  map[types.ID][]types.ID

	driverCounters   map[string]int
	customerCounters map[string]int
	ratingSum        int
	ratingCount      int

	commitErr error
	commits   int
}

func newMemStore() *memStore {
	return &memStore{
		rides:            map[types.ID]*RideRequest{},
		drivers:          map[types.ID]user.DriverStatus{},
		queues:           map[types.ID][]types.ID{},
		driverCounters:   map[string]int{},
		customerCounters: map[string]int{},
	}
}

func (m *memStore) GetRide(_ context.Context, id types.ID) (*RideRequest, error) {
	r, ok := m.rides[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.NotFound, "ride request %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) CreateRide(_ context.Context, r *RideRequest) (types.ID, error) {
	id := types.ID("ride-new")
	cp := *r
	cp.ID = id
	m.rides[id] = &cp
	return id, nil
}

func (m *memStore) UpdateRide(_ context.Context, id types.ID, fields map[string]any) error {
	applyRideFields(m.rides[id], fields)
	return nil
}

func (m *memStore) NewBatch() Batch { return &memBatch{store: m} }

type batchOp func(*memStore)

type memBatch struct {
	store *memStore
	ops   []batchOp
}

func (b *memBatch) UpdateRide(id types.ID, fields map[string]any) {
	b.ops = append(b.ops, func(m *memStore) { applyRideFields(m.rides[id], fields) })
}

func (b *memBatch) SetDriverStatus(driverID types.ID, s user.DriverStatus) {
	b.ops = append(b.ops, func(m *memStore) { m.drivers[driverID] = s })
}

func (b *memBatch) IncrementDriverCounter(_ types.ID, counter string) {
	b.ops = append(b.ops, func(m *memStore) { m.driverCounters[counter]++ })
}

func (b *memBatch) IncrementCustomerCounter(_ types.ID, counter string) {
	b.ops = append(b.ops, func(m *memStore) { m.customerCounters[counter]++ })
}

func (b *memBatch) AccumulateCustomerRating(_ types.ID, rating int) {
	b.ops = append(b.ops, func(m *memStore) {
		m.ratingSum += rating
		m.ratingCount++
	})
}

func (b *memBatch) AddDriverToQueue(kijiweID, driverID types.ID) {
	b.ops = append(b.ops, func(m *memStore) { m.queues[kijiweID] = append(m.queues[kijiweID], driverID) })
}

func (b *memBatch) RemoveDriverFromQueue(kijiweID, driverID types.ID) {
	b.ops = append(b.ops, func(m *memStore) {
		q := m.queues[kijiweID][:0]
		for _, id := range m.queues[kijiweID] {
			if id != driverID {
				q = append(q, id)
			}
		}
		m.queues[kijiweID] = q
	})
}

func (b *memBatch) Commit(context.Context) error {
	if b.store.commitErr != nil {
		return b.store.commitErr
	}
	for _, op := range b.ops {
		op(b.store)
	}
	b.store.commits++
	return nil
}

func applyRideFields(r *RideRequest, fields map[string]any) {
	if r == nil {
		return
	}
	for path, v := range fields {
		switch path {
		case "status":
			r.Status = Status(v.(string))
		case "acceptedTime":
			r.AcceptedTime = v.(time.Time)
		case "completedTime":
			r.CompletedTime = v.(time.Time)
		case "fare":
			r.Fare = v.(float64)
		case "commissionAmount":
			r.CommissionAmount = v.(float64)
		case "driverEarnings":
			r.DriverEarnings = v.(float64)
		case "actualDistanceKm":
			r.ActualDistanceKm = v.(float64)
		case "actualDrivingDurationMinutes":
			r.ActualDrivingDurationMinutes = v.(float64)
		case "actualTotalWaitingTimeMinutes":
			r.ActualTotalWaitingTimeMinutes = v.(float64)
		case "driverName":
			r.DriverName = v.(string)
		case "driverProfileImageUrl":
			r.DriverProfileImageURL = v.(string)
		case "driverGender":
			r.DriverGender = v.(string)
		case "driverAgeGroup":
			r.DriverAgeGroup = v.(string)
		case "driverLicenseNumber":
			r.DriverLicenseNumber = v.(string)
		case "driverVehicleType":
			r.DriverVehicleType = v.(string)
		case "driverRatingToCustomer":
			r.DriverRatingToCustomer = v.(int)
		case "driverCommentToCustomer":
			r.DriverCommentToCustomer = v.(string)
		}
	}
}

type stubUsers struct {
	users map[types.ID]*user.User
}

func (s *stubUsers) Get(_ context.Context, id types.ID) (*user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.NotFound, "user %s not found", id)
	}
	return u, nil
}

type sentNotification struct {
	userID types.ID
	n      notify.Notification
}

type captureNotifier struct {
	sent []sentNotification
}

func (c *captureNotifier) Send(_ context.Context, userID types.ID, n notify.Notification) {
	c.sent = append(c.sent, sentNotification{userID: userID, n: n})
}

type captureEvents struct {
	events []*Event
}

func (c *captureEvents) AppendEvent(_ context.Context, e *Event) error {
	c.events = append(c.events, e)
	return nil
}

type fixture struct {
	svc    *Service
	store  *memStore
	notes  *captureNotifier
	events *captureEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	notes := &captureNotifier{}
	events := &captureEvents{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dob := time.Date(1995, time.March, 12, 0, 0, 0, 0, time.UTC)
	users := &stubUsers{users: map[types.ID]*user.User{
		"driver-1": {
			ID:              "driver-1",
			Name:            "Juma",
			Role:            user.RoleDriver,
			Gender:          "Male",
			DOB:             dob,
			ProfileImageURL: "https://img.example/juma.jpg",
			DriverProfile: &user.DriverProfile{
				IsOnline:      true,
				Status:        user.DriverPendingAcceptance,
				KijiweID:      "kijiwe-home",
				VehicleType:   "Bodaboda",
				LicenseNumber: "T123",
			},
		},
		"customer-1": {ID: "customer-1", Name: "Asha", Role: user.RoleCustomer},
	}}

	svc := NewService(store, users, fare.NewService(nil, log), notes, events, log)
	svc.now = func() time.Time { return time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, store: store, notes: notes, events: events}
}

func (f *fixture) seedRide(status Status) *RideRequest {
	r := &RideRequest{
		ID:                       "ride-1",
		CustomerID:               "customer-1",
		DriverID:                 "driver-1",
		KijiweID:                 "kijiwe-match",
		Status:                   status,
		EstimatedDistanceKm:      4,
		EstimatedDurationMinutes: 9,
	}
	f.store.rides[r.ID] = r
	f.store.queues["kijiwe-match"] = []types.ID{"driver-1"}
	return r
}

func floatPtr(v float64) *float64 { return &v }

func TestHandleDriverActionRejectsNonDriver(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusPendingDriverAcceptance)

	_, err := f.svc.HandleDriverAction(context.Background(), "customer-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionAccept,
	})
	if !apperrors.IsKind(err, apperrors.PermissionDenied) {
		t.Fatalf("expected permission-denied, got %v", err)
	}
	if f.store.commits != 0 {
		t.Fatalf("expected no commits, got %d", f.store.commits)
	}
}

func TestHandleDriverActionUnknownAction(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusPendingDriverAcceptance)

	_, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: "teleport",
	})
	if !apperrors.IsKind(err, apperrors.InvalidArgument) {
		t.Fatalf("expected invalid-argument, got %v", err)
	}
}

func TestHandleDriverActionGuards(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		action Action
	}{
		{"accept requires pending acceptance", StatusAccepted, ActionAccept},
		{"decline requires pending acceptance", StatusOnRide, ActionDecline},
		{"arrival requires accepted", StatusPendingDriverAcceptance, ActionArrived},
		{"start requires arrival", StatusAccepted, ActionStartRide},
		{"complete requires on ride", StatusArrivedAtPickup, ActionCompleteRide},
		{"cancel rejected once on ride", StatusOnRide, ActionCancelByDriver},
		{"cancel rejected before acceptance", StatusPendingDriverAcceptance, ActionCancelByDriver},
		{"rating requires completion", StatusOnRide, ActionRateCustomer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedRide(tc.status)

			_, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
				RideRequestID: "ride-1", Action: tc.action, Rating: 5,
			})
			if !apperrors.IsKind(err, apperrors.FailedPrecondition) {
				t.Fatalf("expected failed-precondition, got %v", err)
			}
			if f.store.commits != 0 {
				t.Fatalf("guard violation must not commit, got %d commits", f.store.commits)
			}
		})
	}
}

func TestHandleDriverActionRejectsUnassignedDriver(t *testing.T) {
	f := newFixture(t)
	r := f.seedRide(StatusPendingDriverAcceptance)
	r.DriverID = "driver-other"

	_, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionAccept,
	})
	if !apperrors.IsKind(err, apperrors.FailedPrecondition) {
		t.Fatalf("expected failed-precondition, got %v", err)
	}
}

func TestAcceptDenormalizesDriverAndClearsQueue(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusPendingDriverAcceptance)

	res, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionAccept,
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success result, got %+v", res)
	}

	r := f.store.rides["ride-1"]
	if r.Status != StatusAccepted {
		t.Fatalf("status = %s, want %s", r.Status, StatusAccepted)
	}
	if r.AcceptedTime.IsZero() {
		t.Fatal("acceptedTime not stamped")
	}
	if r.DriverName != "Juma" || r.DriverVehicleType != "Bodaboda" || r.DriverLicenseNumber != "T123" {
		t.Fatalf("driver fields not denormalized: %+v", r)
	}
	// Born 1995-03-12, so 31 at the fixed clock.
	if r.DriverAgeGroup != "30s" {
		t.Fatalf("driverAgeGroup = %q, want 30s", r.DriverAgeGroup)
	}
	if f.store.drivers["driver-1"] != user.DriverGoingToPickup {
		t.Fatalf("driver status = %s, want goingToPickup", f.store.drivers["driver-1"])
	}
	if len(f.store.queues["kijiwe-match"]) != 0 {
		t.Fatalf("driver not removed from matched queue: %v", f.store.queues["kijiwe-match"])
	}

	if len(f.notes.sent) != 1 || f.notes.sent[0].userID != "customer-1" {
		t.Fatalf("expected one customer notification, got %+v", f.notes.sent)
	}
	data := f.notes.sent[0].n.Data()
	if data["status"] != "accepted" || data["driverName"] != "Juma" {
		t.Fatalf("notification payload = %v", data)
	}
}

func TestDeclineKeepsDriverOnRecord(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusPendingDriverAcceptance)

	if _, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionDecline,
	}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	r := f.store.rides["ride-1"]
	if r.Status != StatusDeclinedByDriver {
		t.Fatalf("status = %s, want %s", r.Status, StatusDeclinedByDriver)
	}
	if r.DriverID != "driver-1" {
		t.Fatalf("declining driver must stay on the ride, got %q", r.DriverID)
	}
	if f.store.drivers["driver-1"] != user.DriverWaitingForRide {
		t.Fatalf("driver status = %s, want waitingForRide", f.store.drivers["driver-1"])
	}
	if f.store.driverCounters["declinedByDriverCount"] != 1 {
		t.Fatalf("decline counter = %d, want 1", f.store.driverCounters["declinedByDriverCount"])
	}
	// No automatic re-dispatch: the ride stays terminal.
	if len(f.notes.sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(f.notes.sent))
	}
}

func TestFullLifecycleFareFromActuals(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusPendingDriverAcceptance)
	ctx := context.Background()

	steps := []ActionRequest{
		{RideRequestID: "ride-1", Action: ActionAccept},
		{RideRequestID: "ride-1", Action: ActionArrived},
		{RideRequestID: "ride-1", Action: ActionStartRide},
		{
			RideRequestID:                 "ride-1",
			Action:                        ActionCompleteRide,
			ActualDistanceKm:              floatPtr(10),
			ActualDrivingDurationMinutes:  floatPtr(20),
			ActualTotalWaitingTimeMinutes: floatPtr(2),
		},
	}
	for _, step := range steps {
		if _, err := f.svc.HandleDriverAction(ctx, "driver-1", step); err != nil {
			t.Fatalf("%s: %v", step.Action, err)
		}
	}

	r := f.store.rides["ride-1"]
	if r.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", r.Status)
	}
	// 300 + 10*350 + 20*60 + 2*60 = 5120, rounded up to the half increment.
	if r.Fare != 5250 {
		t.Fatalf("fare = %v, want 5250", r.Fare)
	}
	if r.CommissionAmount != 1024 {
		t.Fatalf("commission = %v, want 1024", r.CommissionAmount)
	}
	if r.DriverEarnings != 4096 {
		t.Fatalf("driverEarnings = %v, want 4096", r.DriverEarnings)
	}
	if r.ActualDistanceKm != 10 || r.ActualDrivingDurationMinutes != 20 || r.ActualTotalWaitingTimeMinutes != 2 {
		t.Fatalf("actuals not stored: %+v", r)
	}
	if r.CompletedTime.IsZero() {
		t.Fatal("completedTime not stamped")
	}

	if f.store.drivers["driver-1"] != user.DriverWaitingForRide {
		t.Fatalf("driver status = %s, want waitingForRide", f.store.drivers["driver-1"])
	}
	// Driver rejoins their own kijiwe, not the one the ride was matched from.
	if got := f.store.queues["kijiwe-home"]; len(got) != 1 || got[0] != "driver-1" {
		t.Fatalf("driver not requeued at home kijiwe: %v", got)
	}
	if f.store.driverCounters["completedRidesCount"] != 1 {
		t.Fatal("driver completed counter not incremented")
	}
	if f.store.customerCounters["completedRidesCount"] != 1 {
		t.Fatal("customer completed counter not incremented")
	}

	last := f.notes.sent[len(f.notes.sent)-1].n.Data()
	if last["status"] != "completed" || last["fare"] != "5250" {
		t.Fatalf("completion payload = %v", last)
	}

	if len(f.events.events) != 4 {
		t.Fatalf("expected 4 audit events, got %d", len(f.events.events))
	}
	if e := f.events.events[3]; e.FromStatus != StatusOnRide || e.ToStatus != StatusCompleted {
		t.Fatalf("last event = %+v", e)
	}
}

func TestCompleteRideUsesCustomerEstimateVerbatim(t *testing.T) {
	f := newFixture(t)
	r := f.seedRide(StatusOnRide)
	r.CustomerCalculatedEstimatedFare = floatPtr(980)

	if _, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionCompleteRide,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got := f.store.rides["ride-1"]
	// 980 is below the minimum fare but the customer's own estimate is not
	// floored; it is only rounded, 980-500=480 > 250 so up to 1000.
	if got.Fare != 1000 {
		t.Fatalf("fare = %v, want 1000", got.Fare)
	}
	if got.CommissionAmount != 196 {
		t.Fatalf("commission = %v, want 196", got.CommissionAmount)
	}
}

func TestCompleteRideFallsBackToStoredEstimates(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusOnRide)

	if _, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionCompleteRide,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got := f.store.rides["ride-1"]
	// 300 + 4*350 + 9*60 = 2240, no waiting term, rounded to 2250.
	if got.Fare != 2250 {
		t.Fatalf("fare = %v, want 2250", got.Fare)
	}
	if got.ActualDistanceKm != 4 || got.ActualDrivingDurationMinutes != 9 || got.ActualTotalWaitingTimeMinutes != 0 {
		t.Fatalf("fallback actuals = %+v", got)
	}
}

func TestCancelByDriverIncrementsBothCounters(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusArrivedAtPickup)

	if _, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionCancelByDriver,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if f.store.rides["ride-1"].Status != StatusCancelledByDriver {
		t.Fatalf("status = %s", f.store.rides["ride-1"].Status)
	}
	if f.store.driverCounters["cancelledByDriverCount"] != 1 {
		t.Fatal("driver cancel counter not incremented")
	}
	if f.store.customerCounters["ridesCancelledByDriverForCustomerCount"] != 1 {
		t.Fatal("customer cancel counter not incremented")
	}
	if got := f.store.queues["kijiwe-home"]; len(got) != 1 || got[0] != "driver-1" {
		t.Fatalf("driver not requeued: %v", got)
	}
}

func TestRateCustomerBounds(t *testing.T) {
	for _, rating := range []int{0, 6, -1} {
		f := newFixture(t)
		f.seedRide(StatusCompleted)

		_, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
			RideRequestID: "ride-1", Action: ActionRateCustomer, Rating: rating,
		})
		if !apperrors.IsKind(err, apperrors.InvalidArgument) {
			t.Fatalf("rating %d: expected invalid-argument, got %v", rating, err)
		}
	}
}

func TestRateCustomerAccumulates(t *testing.T) {
	f := newFixture(t)
	f.seedRide(StatusCompleted)

	if _, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ride-1", Action: ActionRateCustomer, Rating: 4, Comment: "polite",
	}); err != nil {
		t.Fatalf("rate: %v", err)
	}

	r := f.store.rides["ride-1"]
	if r.DriverRatingToCustomer != 4 || r.DriverCommentToCustomer != "polite" {
		t.Fatalf("rating not recorded: %+v", r)
	}
	if f.store.ratingSum != 4 || f.store.ratingCount != 1 {
		t.Fatalf("customer aggregate = sum %d count %d", f.store.ratingSum, f.store.ratingCount)
	}
	// Rating sends no push.
	if len(f.notes.sent) != 0 {
		t.Fatalf("unexpected notifications: %+v", f.notes.sent)
	}
}

func TestMissingRideIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleDriverAction(context.Background(), "driver-1", ActionRequest{
		RideRequestID: "ghost", Action: ActionAccept,
	})
	if !apperrors.IsKind(err, apperrors.NotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
