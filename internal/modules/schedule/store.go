// README: Firestore persistence for the scheduledRides collection.
package schedule

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/modules/ride"
	"kijiwe/internal/types"
)

const (
	scheduledCollection = "scheduledRides"
	ridesCollection     = "rideRequests"
)

// Store is the scheduled-ride persistence boundary.
type Store interface {
	Create(ctx context.Context, s *ScheduledRide) (types.ID, error)
	Get(ctx context.Context, id types.ID) (*ScheduledRide, error)
	Update(ctx context.Context, id types.ID, fields map[string]any) error
	Delete(ctx context.Context, id types.ID) error
	DueNonRecurring(ctx context.Context, from, to time.Time) ([]ScheduledRide, error)
	RecurringMasters(ctx context.Context) ([]ScheduledRide, error)
	NewBatch() Batch
}

// Batch accumulates one sweep's writes and commits them atomically.
type Batch interface {
	// MaterializeRide queues creation of a live ride request from a due
	// scheduled ride and returns the new request's ID.
	MaterializeRide(s *ScheduledRide, requestTime time.Time) types.ID
	// CreateInstance queues a generated dated instance of a recurring master.
	CreateInstance(s *ScheduledRide)
	UpdateScheduled(id types.ID, fields map[string]any)
	Len() int
	Commit(ctx context.Context) error
}

type stopDoc struct {
	Location    *latlng.LatLng `firestore:"location"`
	AddressName string         `firestore:"addressName"`
}

type scheduledDoc struct {
	CustomerID string         `firestore:"customerId"`
	Status     string         `firestore:"status"`
	Pickup     *latlng.LatLng `firestore:"pickup"`
	Dropoff    *latlng.LatLng `firestore:"dropoff"`
	Stops      []stopDoc      `firestore:"stops"`

	PickupAddressName  string `firestore:"pickupAddressName"`
	DropoffAddressName string `firestore:"dropoffAddressName"`
	CustomerNote       string `firestore:"customerNoteToDriver"`
	Title              string `firestore:"title"`

	ScheduledDateTime time.Time `firestore:"scheduledDateTime"`

	IsRecurring          bool       `firestore:"isRecurring"`
	RecurrenceType       string     `firestore:"recurrenceType"`
	RecurrenceDaysOfWeek []string   `firestore:"recurrenceDaysOfWeek"`
	RecurrenceEndDate    *time.Time `firestore:"recurrenceEndDate"`

	LastInstanceGeneratedUpTo *time.Time `firestore:"lastInstanceGeneratedUpTo"`
	MasterRecurringRideID     string     `firestore:"masterRecurringRideId"`
	ActualRideRequestID       string     `firestore:"actualRideRequestId"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func geoPoint(p types.Point) *latlng.LatLng {
	if p.IsZero() {
		return nil
	}
	return &latlng.LatLng{Latitude: p.Lat, Longitude: p.Lng}
}

func fromGeoPoint(g *latlng.LatLng) types.Point {
	if g == nil {
		return types.Point{}
	}
	return types.Point{Lat: g.Latitude, Lng: g.Longitude}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (d *scheduledDoc) toDomain(id types.ID) *ScheduledRide {
	s := &ScheduledRide{
		ID:                 id,
		CustomerID:         types.ID(d.CustomerID),
		Status:             Status(d.Status),
		Pickup:             fromGeoPoint(d.Pickup),
		Dropoff:            fromGeoPoint(d.Dropoff),
		PickupAddressName:  d.PickupAddressName,
		DropoffAddressName: d.DropoffAddressName,
		CustomerNote:       d.CustomerNote,
		Title:              d.Title,
		ScheduledDateTime:  d.ScheduledDateTime,

		IsRecurring:          d.IsRecurring,
		RecurrenceType:       RecurrenceType(d.RecurrenceType),
		RecurrenceDaysOfWeek: d.RecurrenceDaysOfWeek,
		RecurrenceEndDate:    timeOrZero(d.RecurrenceEndDate),

		LastInstanceGeneratedUpTo: timeOrZero(d.LastInstanceGeneratedUpTo),
		MasterRecurringRideID:     types.ID(d.MasterRecurringRideID),
		ActualRideRequestID:       types.ID(d.ActualRideRequestID),

		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, st := range d.Stops {
		s.Stops = append(s.Stops, ride.Stop{Location: fromGeoPoint(st.Location), AddressName: st.AddressName})
	}
	return s
}

func toDoc(s *ScheduledRide) *scheduledDoc {
	d := &scheduledDoc{
		CustomerID:         string(s.CustomerID),
		Status:             string(s.Status),
		Pickup:             geoPoint(s.Pickup),
		Dropoff:            geoPoint(s.Dropoff),
		PickupAddressName:  s.PickupAddressName,
		DropoffAddressName: s.DropoffAddressName,
		CustomerNote:       s.CustomerNote,
		Title:              s.Title,
		ScheduledDateTime:  s.ScheduledDateTime,

		IsRecurring:          s.IsRecurring,
		RecurrenceType:       string(s.RecurrenceType),
		RecurrenceDaysOfWeek: s.RecurrenceDaysOfWeek,
		RecurrenceEndDate:    timePtr(s.RecurrenceEndDate),

		LastInstanceGeneratedUpTo: timePtr(s.LastInstanceGeneratedUpTo),
		MasterRecurringRideID:     string(s.MasterRecurringRideID),
		ActualRideRequestID:       string(s.ActualRideRequestID),

		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	for _, st := range s.Stops {
		d.Stops = append(d.Stops, stopDoc{Location: geoPoint(st.Location), AddressName: st.AddressName})
	}
	return d
}

type FirestoreStore struct {
	fs *firestore.Client
}

func NewFirestoreStore(fs *firestore.Client) *FirestoreStore {
	return &FirestoreStore{fs: fs}
}

func (s *FirestoreStore) Create(ctx context.Context, sr *ScheduledRide) (types.ID, error) {
	ref := s.fs.Collection(scheduledCollection).NewDoc()
	if _, err := ref.Set(ctx, toDoc(sr)); err != nil {
		return "", fmt.Errorf("creating scheduled ride: %w", err)
	}
	return types.ID(ref.ID), nil
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (*ScheduledRide, error) {
	snap, err := s.fs.Collection(scheduledCollection).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, apperrors.New(apperrors.NotFound, "scheduled ride not found")
	}
	if err != nil {
		return nil, fmt.Errorf("fetching scheduled ride %s: %w", id, err)
	}
	var doc scheduledDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding scheduled ride %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (s *FirestoreStore) Update(ctx context.Context, id types.ID, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.fs.Collection(scheduledCollection).Doc(string(id)).Update(ctx, updates); err != nil {
		return fmt.Errorf("updating scheduled ride %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, id types.ID) error {
	if _, err := s.fs.Collection(scheduledCollection).Doc(string(id)).Delete(ctx); err != nil {
		return fmt.Errorf("deleting scheduled ride %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) DueNonRecurring(ctx context.Context, from, to time.Time) ([]ScheduledRide, error) {
	q := s.fs.Collection(scheduledCollection).
		Where("status", "==", string(StatusScheduled)).
		Where("isRecurring", "==", false).
		Where("scheduledDateTime", ">=", from).
		Where("scheduledDateTime", "<=", to)
	return s.collect(ctx, q)
}

func (s *FirestoreStore) RecurringMasters(ctx context.Context) ([]ScheduledRide, error) {
	q := s.fs.Collection(scheduledCollection).
		Where("status", "==", string(StatusScheduled)).
		Where("isRecurring", "==", true)
	return s.collect(ctx, q)
}

func (s *FirestoreStore) collect(ctx context.Context, q firestore.Query) ([]ScheduledRide, error) {
	var out []ScheduledRide
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying scheduled rides: %w", err)
		}
		var doc scheduledDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding scheduled ride %s: %w", snap.Ref.ID, err)
		}
		out = append(out, *doc.toDomain(types.ID(snap.Ref.ID)))
	}
	return out, nil
}

func (s *FirestoreStore) NewBatch() Batch {
	return &firestoreBatch{fs: s.fs, wb: s.fs.Batch()}
}

type firestoreBatch struct {
	fs  *firestore.Client
	wb  *firestore.WriteBatch
	len int
}

// activationDoc is the subset of ride-request fields a materialized
// scheduled ride starts with; the dispatcher fills in the rest.
type activationDoc struct {
	CustomerID            string         `firestore:"customerId"`
	Status                string         `firestore:"status"`
	Pickup                *latlng.LatLng `firestore:"pickup"`
	Dropoff               *latlng.LatLng `firestore:"dropoff"`
	Stops                 []stopDoc      `firestore:"stops"`
	PickupAddressName     string         `firestore:"pickupAddressName"`
	DropoffAddressName    string         `firestore:"dropoffAddressName"`
	CustomerNote          string         `firestore:"customerNoteToDriver"`
	Title                 string         `firestore:"title"`
	RequestTime           time.Time      `firestore:"requestTime"`
	ScheduledRideParentID string         `firestore:"scheduledRideParentId"`
}

func (b *firestoreBatch) MaterializeRide(s *ScheduledRide, requestTime time.Time) types.ID {
	ref := b.fs.Collection(ridesCollection).NewDoc()
	doc := &activationDoc{
		CustomerID:            string(s.CustomerID),
		Status:                string(ride.StatusPendingMatch),
		Pickup:                geoPoint(s.Pickup),
		Dropoff:               geoPoint(s.Dropoff),
		Stops:                 []stopDoc{},
		PickupAddressName:     s.PickupAddressName,
		DropoffAddressName:    s.DropoffAddressName,
		CustomerNote:          s.CustomerNote,
		Title:                 s.Title,
		RequestTime:           requestTime,
		ScheduledRideParentID: string(s.ID),
	}
	for _, st := range s.Stops {
		doc.Stops = append(doc.Stops, stopDoc{Location: geoPoint(st.Location), AddressName: st.AddressName})
	}
	b.wb.Set(ref, doc)
	b.len++
	return types.ID(ref.ID)
}

func (b *firestoreBatch) CreateInstance(s *ScheduledRide) {
	ref := b.fs.Collection(scheduledCollection).NewDoc()
	b.wb.Set(ref, toDoc(s))
	b.len++
}

func (b *firestoreBatch) UpdateScheduled(id types.ID, fields map[string]any) {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	b.wb.Update(b.fs.Collection(scheduledCollection).Doc(string(id)), updates)
	b.len++
}

func (b *firestoreBatch) Len() int { return b.len }

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if _, err := b.wb.Commit(ctx); err != nil {
		return fmt.Errorf("committing scheduled sweep: %w", err)
	}
	return nil
}
