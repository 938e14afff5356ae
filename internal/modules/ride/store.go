// README: Ride store backed by the rideRequests collection, with an atomic write-set batch.
package ride

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

const (
	ridesCollection  = "rideRequests"
	usersCollection  = "users"
	kijiweCollection = "kijiwe"
)

// Batch collects correlated document updates and commits them atomically,
// so a ride-status transition and its driver/queue/customer updates either
// all land or none do.
type Batch interface {
	UpdateRide(id types.ID, fields map[string]any)
	SetDriverStatus(driverID types.ID, s user.DriverStatus)
	IncrementDriverCounter(driverID types.ID, counter string)
	IncrementCustomerCounter(customerID types.ID, counter string)
	AccumulateCustomerRating(customerID types.ID, rating int)
	AddDriverToQueue(kijiweID, driverID types.ID)
	RemoveDriverFromQueue(kijiweID, driverID types.ID)
	Commit(ctx context.Context) error
}

// Store is the ride-request persistence boundary the services depend on.
type Store interface {
	GetRide(ctx context.Context, id types.ID) (*RideRequest, error)
	CreateRide(ctx context.Context, r *RideRequest) (types.ID, error)
	UpdateRide(ctx context.Context, id types.ID, fields map[string]any) error
	NewBatch() Batch
}

// stopDoc and rideDoc mirror the stored document shape; positions are
// GeoPoints the way the mobile clients write them.
type stopDoc struct {
	Location    *latlng.LatLng `firestore:"location"`
	AddressName string         `firestore:"addressName"`
}

type rideDoc struct {
	CustomerID string         `firestore:"customerId"`
	DriverID   string         `firestore:"driverId"`
	KijiweID   string         `firestore:"kijiweId"`
	Status     string         `firestore:"status"`
	Pickup     *latlng.LatLng `firestore:"pickup"`
	Dropoff    *latlng.LatLng `firestore:"dropoff"`
	Stops      []stopDoc      `firestore:"stops"`

	PickupAddressName  string `firestore:"pickupAddressName"`
	DropoffAddressName string `firestore:"dropoffAddressName"`
	CustomerNote       string `firestore:"customerNoteToDriver"`
	Title              string `firestore:"title"`

	EstimatedDistanceKm             float64  `firestore:"estimatedDistanceKm"`
	EstimatedDurationMinutes        float64  `firestore:"estimatedDurationMinutes"`
	CustomerCalculatedEstimatedFare *float64 `firestore:"customerCalculatedEstimatedFare"`

	Fare             float64 `firestore:"fare"`
	CommissionAmount float64 `firestore:"commissionAmount"`
	DriverEarnings   float64 `firestore:"driverEarnings"`

	ActualDistanceKm              float64 `firestore:"actualDistanceKm"`
	ActualDrivingDurationMinutes  float64 `firestore:"actualDrivingDurationMinutes"`
	ActualTotalWaitingTimeMinutes float64 `firestore:"actualTotalWaitingTimeMinutes"`

	RequestTime   time.Time `firestore:"requestTime"`
	AcceptedTime  time.Time `firestore:"acceptedTime"`
	CompletedTime time.Time `firestore:"completedTime"`

	CustomerName            string `firestore:"customerName"`
	CustomerProfileImageURL string `firestore:"customerProfileImageUrl"`
	CustomerDetails         string `firestore:"customerDetails"`

	DriverName            string `firestore:"driverName"`
	DriverProfileImageURL string `firestore:"driverProfileImageUrl"`
	DriverGender          string `firestore:"driverGender"`
	DriverAgeGroup        string `firestore:"driverAgeGroup"`
	DriverLicenseNumber   string `firestore:"driverLicenseNumber"`
	DriverVehicleType     string `firestore:"driverVehicleType"`

	DriverRatingToCustomer  int    `firestore:"driverRatingToCustomer"`
	DriverCommentToCustomer string `firestore:"driverCommentToCustomer"`

	ScheduledRideParentID string `firestore:"scheduledRideParentId"`
}

func geoPoint(p types.Point) *latlng.LatLng {
	if p.IsZero() {
		return nil
	}
	return &latlng.LatLng{Latitude: p.Lat, Longitude: p.Lng}
}

// geoPointPtr preserves the absent-vs-(0,0) distinction the pickup field
// needs: nil stays nil and any present coordinate round-trips, null island
// included.
func geoPointPtr(p *types.Point) *latlng.LatLng {
	if p == nil {
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

func fromGeoPointPtr(g *latlng.LatLng) *types.Point {
	if g == nil {
		return nil
	}
	return &types.Point{Lat: g.Latitude, Lng: g.Longitude}
}

func (d *rideDoc) toDomain(id types.ID) *RideRequest {
	r := &RideRequest{
		ID:         id,
		CustomerID: types.ID(d.CustomerID),
		DriverID:   types.ID(d.DriverID),
		KijiweID:   types.ID(d.KijiweID),
		Status:     Status(d.Status),

		Pickup:             fromGeoPointPtr(d.Pickup),
		Dropoff:            fromGeoPoint(d.Dropoff),
		PickupAddressName:  d.PickupAddressName,
		DropoffAddressName: d.DropoffAddressName,
		CustomerNote:       d.CustomerNote,
		Title:              d.Title,

		EstimatedDistanceKm:             d.EstimatedDistanceKm,
		EstimatedDurationMinutes:        d.EstimatedDurationMinutes,
		CustomerCalculatedEstimatedFare: d.CustomerCalculatedEstimatedFare,

		Fare:             d.Fare,
		CommissionAmount: d.CommissionAmount,
		DriverEarnings:   d.DriverEarnings,

		ActualDistanceKm:              d.ActualDistanceKm,
		ActualDrivingDurationMinutes:  d.ActualDrivingDurationMinutes,
		ActualTotalWaitingTimeMinutes: d.ActualTotalWaitingTimeMinutes,

		RequestTime:   d.RequestTime,
		AcceptedTime:  d.AcceptedTime,
		CompletedTime: d.CompletedTime,

		CustomerName:            d.CustomerName,
		CustomerProfileImageURL: d.CustomerProfileImageURL,
		CustomerDetails:         d.CustomerDetails,

		DriverName:            d.DriverName,
		DriverProfileImageURL: d.DriverProfileImageURL,
		DriverGender:          d.DriverGender,
		DriverAgeGroup:        d.DriverAgeGroup,
		DriverLicenseNumber:   d.DriverLicenseNumber,
		DriverVehicleType:     d.DriverVehicleType,

		DriverRatingToCustomer:  d.DriverRatingToCustomer,
		DriverCommentToCustomer: d.DriverCommentToCustomer,

		ScheduledRideParentID: types.ID(d.ScheduledRideParentID),
	}
	for _, s := range d.Stops {
		r.Stops = append(r.Stops, Stop{Location: fromGeoPoint(s.Location), AddressName: s.AddressName})
	}
	return r
}

func toDoc(r *RideRequest) *rideDoc {
	d := &rideDoc{
		CustomerID: string(r.CustomerID),
		DriverID:   string(r.DriverID),
		KijiweID:   string(r.KijiweID),
		Status:     string(r.Status),

		Pickup:             geoPointPtr(r.Pickup),
		Dropoff:            geoPoint(r.Dropoff),
		PickupAddressName:  r.PickupAddressName,
		DropoffAddressName: r.DropoffAddressName,
		CustomerNote:       r.CustomerNote,
		Title:              r.Title,

		EstimatedDistanceKm:             r.EstimatedDistanceKm,
		EstimatedDurationMinutes:        r.EstimatedDurationMinutes,
		CustomerCalculatedEstimatedFare: r.CustomerCalculatedEstimatedFare,

		RequestTime: r.RequestTime,

		ScheduledRideParentID: string(r.ScheduledRideParentID),
	}
	for _, s := range r.Stops {
		d.Stops = append(d.Stops, stopDoc{Location: geoPoint(s.Location), AddressName: s.AddressName})
	}
	return d
}

// FirestoreStore implements Store against Cloud Firestore.
type FirestoreStore struct {
	fs *firestore.Client
}

func NewFirestoreStore(fs *firestore.Client) *FirestoreStore {
	return &FirestoreStore{fs: fs}
}

func (s *FirestoreStore) GetRide(ctx context.Context, id types.ID) (*RideRequest, error) {
	snap, err := s.fs.Collection(ridesCollection).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, apperrors.Newf(apperrors.NotFound, "ride request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching ride request %s: %w", id, err)
	}
	var doc rideDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding ride request %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

func (s *FirestoreStore) CreateRide(ctx context.Context, r *RideRequest) (types.ID, error) {
	ref := s.fs.Collection(ridesCollection).NewDoc()
	if _, err := ref.Set(ctx, toDoc(r)); err != nil {
		return "", fmt.Errorf("creating ride request: %w", err)
	}
	return types.ID(ref.ID), nil
}

func (s *FirestoreStore) UpdateRide(ctx context.Context, id types.ID, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := s.fs.Collection(ridesCollection).Doc(string(id)).Update(ctx, updates); err != nil {
		return fmt.Errorf("updating ride request %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) NewBatch() Batch {
	return &firestoreBatch{fs: s.fs, updates: map[string][]firestore.Update{}}
}

// firestoreBatch merges queued updates per document so the committed write
// set touches each document exactly once.
type firestoreBatch struct {
	fs      *firestore.Client
	order   []string
	updates map[string][]firestore.Update
	refs    map[string]*firestore.DocumentRef
}

func (b *firestoreBatch) add(ref *firestore.DocumentRef, ups ...firestore.Update) {
	if b.refs == nil {
		b.refs = map[string]*firestore.DocumentRef{}
	}
	key := ref.Path
	if _, seen := b.updates[key]; !seen {
		b.order = append(b.order, key)
		b.refs[key] = ref
	}
	b.updates[key] = append(b.updates[key], ups...)
}

func (b *firestoreBatch) UpdateRide(id types.ID, fields map[string]any) {
	ref := b.fs.Collection(ridesCollection).Doc(string(id))
	for path, value := range fields {
		b.add(ref, firestore.Update{Path: path, Value: value})
	}
}

func (b *firestoreBatch) SetDriverStatus(driverID types.ID, s user.DriverStatus) {
	ref := b.fs.Collection(usersCollection).Doc(string(driverID))
	b.add(ref, firestore.Update{Path: "driverProfile.status", Value: string(s)})
}

func (b *firestoreBatch) IncrementDriverCounter(driverID types.ID, counter string) {
	ref := b.fs.Collection(usersCollection).Doc(string(driverID))
	b.add(ref, firestore.Update{Path: "driverProfile." + counter, Value: firestore.Increment(1)})
}

func (b *firestoreBatch) IncrementCustomerCounter(customerID types.ID, counter string) {
	ref := b.fs.Collection(usersCollection).Doc(string(customerID))
	b.add(ref, firestore.Update{Path: "customerProfile." + counter, Value: firestore.Increment(1)})
}

func (b *firestoreBatch) AccumulateCustomerRating(customerID types.ID, rating int) {
	ref := b.fs.Collection(usersCollection).Doc(string(customerID))
	b.add(ref,
		firestore.Update{Path: "customerProfile.sumOfRatingsReceived", Value: firestore.Increment(rating)},
		firestore.Update{Path: "customerProfile.totalRatingsReceivedCount", Value: firestore.Increment(1)},
	)
}

func (b *firestoreBatch) AddDriverToQueue(kijiweID, driverID types.ID) {
	ref := b.fs.Collection(kijiweCollection).Doc(string(kijiweID))
	b.add(ref, firestore.Update{Path: "queue", Value: firestore.ArrayUnion(string(driverID))})
}

func (b *firestoreBatch) RemoveDriverFromQueue(kijiweID, driverID types.ID) {
	ref := b.fs.Collection(kijiweCollection).Doc(string(kijiweID))
	b.add(ref, firestore.Update{Path: "queue", Value: firestore.ArrayRemove(string(driverID))})
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	wb := b.fs.Batch()
	for _, key := range b.order {
		wb.Update(b.refs[key], b.updates[key])
	}
	if _, err := wb.Commit(ctx); err != nil {
		return fmt.Errorf("committing ride write set: %w", err)
	}
	return nil
}
