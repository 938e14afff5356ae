// README: Dispatcher: matches a new ride request to the nearest waiting driver.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kijiwe/internal/apperrors"
	"kijiwe/internal/geo"
	"kijiwe/internal/maps"
	"kijiwe/internal/modules/fare"
	"kijiwe/internal/modules/kijiwe"
	"kijiwe/internal/modules/notify"
	"kijiwe/internal/modules/ride"
	"kijiwe/internal/modules/user"
	"kijiwe/internal/types"
)

// maxSearchKijiwes caps how many staging areas a single match scans, nearest
// first.
const defaultMaxSearchKijiwes = 7

// KijiweSource lists every registered staging area.
type KijiweSource interface {
	ListAll(ctx context.Context) ([]kijiwe.Kijiwe, error)
}

// UserSource resolves user profiles.
type UserSource interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

// Claimer atomically assigns a driver to a ride. The claim re-checks both
// sides inside a transaction, so two dispatch runs racing on the same queue
// cannot assign the same driver twice.
type Claimer interface {
	ClaimDriver(ctx context.Context, rideID, driverID, kijiweID types.ID) (bool, error)
}

// Notifier delivers a push to one user, best effort.
type Notifier interface {
	Send(ctx context.Context, userID types.ID, n notify.Notification)
}

// RouteEstimator fills in distance/duration for requests whose client did
// not supply estimates. Optional; satisfied by maps.RouteService.
type RouteEstimator interface {
	EstimateRoute(ctx context.Context, origin, destination types.Point) (maps.RouteEstimate, error)
}

type Service struct {
	rides   ride.Store
	kijiwes KijiweSource
	users   UserSource
	claimer Claimer
	fares   *fare.Service
	notify  Notifier
	routes  RouteEstimator
	log     *slog.Logger
	maxScan int
	now     func() time.Time
}

func NewService(rides ride.Store, kijiwes KijiweSource, users UserSource, claimer Claimer, fares *fare.Service, notifier Notifier, routes RouteEstimator, maxScan int, log *slog.Logger) *Service {
	if maxScan <= 0 {
		maxScan = defaultMaxSearchKijiwes
	}
	return &Service{
		rides:   rides,
		kijiwes: kijiwes,
		users:   users,
		claimer: claimer,
		fares:   fares,
		notify:  notifier,
		routes:  routes,
		log:     log,
		maxScan: maxScan,
		now:     time.Now,
	}
}

// SubmitRequest is a customer's new trip request.
type SubmitRequest struct {
	// Pickup is a pointer so an omitted field is distinguishable from a
	// genuine (0,0) coordinate.
	Pickup             *types.Point `json:"pickup"`
	Dropoff            types.Point `json:"dropoff"`
	Stops              []ride.Stop `json:"stops,omitempty"`
	PickupAddressName  string      `json:"pickupAddressName"`
	DropoffAddressName string      `json:"dropoffAddressName"`
	CustomerNote       string      `json:"customerNoteToDriver,omitempty"`

	EstimatedDistanceKm             float64  `json:"estimatedDistanceKm,omitempty"`
	EstimatedDurationMinutes        float64  `json:"estimatedDurationMinutes,omitempty"`
	CustomerCalculatedEstimatedFare *float64 `json:"customerCalculatedEstimatedFare,omitempty"`
}

// Submit records a new ride request and immediately runs matching on it.
// The returned ID is valid even when no driver was found; the request then
// carries a terminal status explaining why.
func (s *Service) Submit(ctx context.Context, customerID types.ID, req SubmitRequest) (types.ID, error) {
	if customerID == "" {
		return "", apperrors.New(apperrors.Unauthenticated, "the caller must be authenticated")
	}

	r := &ride.RideRequest{
		CustomerID:                      customerID,
		Status:                          ride.StatusPendingMatch,
		Pickup:                          req.Pickup,
		Dropoff:                         req.Dropoff,
		Stops:                           req.Stops,
		PickupAddressName:               req.PickupAddressName,
		DropoffAddressName:              req.DropoffAddressName,
		CustomerNote:                    req.CustomerNote,
		EstimatedDistanceKm:             req.EstimatedDistanceKm,
		EstimatedDurationMinutes:        req.EstimatedDurationMinutes,
		CustomerCalculatedEstimatedFare: req.CustomerCalculatedEstimatedFare,
		RequestTime:                     s.now(),
	}

	// Fill in server-side route estimates when the client sent none.
	if s.routes != nil && r.EstimatedDistanceKm == 0 && r.Pickup != nil && !r.Dropoff.IsZero() {
		est, err := s.routes.EstimateRoute(ctx, *r.Pickup, r.Dropoff)
		if err != nil {
			s.log.Warn("route estimate failed", "err", err)
		} else {
			r.EstimatedDistanceKm = est.DistanceKm
			r.EstimatedDurationMinutes = est.DurationMinutes
		}
	}

	id, err := s.rides.CreateRide(ctx, r)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Internal, "creating ride request", err)
	}
	r.ID = id

	if err := s.Match(ctx, id); err != nil {
		s.log.Error("matching failed", "ride_id", id, "err", err)
	}
	return id, nil
}

// Match assigns the nearest available driver to the ride request, or marks
// it with a terminal status when none is found. Customer display fields are
// denormalized onto the request regardless of match outcome.
func (s *Service) Match(ctx context.Context, rideID types.ID) error {
	r, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return err
	}

	offer := s.denormalizeCustomer(ctx, r)

	if r.Pickup == nil {
		s.log.Error("ride request missing pickup", "ride_id", rideID)
		return s.rides.UpdateRide(ctx, rideID, map[string]any{
			"status": string(ride.StatusErrMissingPickup),
		})
	}

	nearest, err := s.nearestKijiwes(ctx, *r.Pickup)
	if err != nil {
		_ = s.rides.UpdateRide(ctx, rideID, map[string]any{
			"status": string(ride.StatusErrKijiweFetch),
		})
		return err
	}
	if len(nearest) == 0 {
		return s.rides.UpdateRide(ctx, rideID, map[string]any{
			"status": string(ride.StatusNoKijiwesNearby),
		})
	}

	offer.EstimatedFare = s.offerFare(ctx, r)

	scan := nearest
	if len(scan) > s.maxScan {
		scan = scan[:s.maxScan]
	}
	for _, k := range scan {
		for _, driverID := range k.Queue {
			u, err := s.users.Get(ctx, driverID)
			if err != nil {
				s.log.Warn("queued driver lookup failed", "driver_id", driverID, "err", err)
				continue
			}
			if !u.AvailableForDispatch() {
				continue
			}
			claimed, err := s.claimer.ClaimDriver(ctx, rideID, driverID, k.ID)
			if err != nil {
				return fmt.Errorf("claiming driver %s: %w", driverID, err)
			}
			if !claimed {
				// Another dispatch run got there first; keep scanning.
				continue
			}

			s.log.Info("ride assigned",
				"ride_id", rideID, "driver_id", driverID, "kijiwe_id", k.ID)
			s.notify.Send(ctx, driverID, offer)
			return nil
		}
	}

	// Record the nearest kijiwe so the client can show where drivers were
	// looked for.
	s.log.Info("no available driver found",
		"ride_id", rideID, "kijiwes_checked", len(scan))
	return s.rides.UpdateRide(ctx, rideID, map[string]any{
		"status":   string(ride.StatusNoDriversAvailable),
		"kijiweId": string(nearest[0].ID),
	})
}

// denormalizeCustomer copies customer display fields onto the ride request
// and returns the offer payload built from them. Failures degrade to
// placeholder values; denormalization never blocks matching.
func (s *Service) denormalizeCustomer(ctx context.Context, r *ride.RideRequest) notify.RideOffer {
	name := "Customer"
	imageURL := ""
	details := "Customer details not available."

	if r.CustomerID != "" {
		if u, err := s.users.Get(ctx, r.CustomerID); err != nil {
			s.log.Warn("customer lookup failed", "customer_id", r.CustomerID, "err", err)
		} else {
			if u.Name != "" {
				name = u.Name
			}
			imageURL = u.ProfileImageURL

			var parts []string
			if u.Gender != "" {
				parts = append(parts, u.Gender)
			}
			if bracket := user.AgeBracket(u.DOB, s.now(), 0); bracket != "" {
				parts = append(parts, bracket)
			}
			if u.CustomerProfile != nil {
				if avg := u.CustomerProfile.AverageRating(); avg > 0 {
					parts = append(parts, fmt.Sprintf("Rating: %.1f", avg))
				}
			}
			if len(parts) > 0 {
				details = strings.Join(parts, ", ")
			}
		}
	}

	if err := s.rides.UpdateRide(ctx, r.ID, map[string]any{
		"customerName":            name,
		"customerProfileImageUrl": imageURL,
		"customerDetails":         details,
	}); err != nil {
		s.log.Warn("customer denormalization failed", "ride_id", r.ID, "err", err)
	}

	var offerStops []notify.Stop
	for _, st := range r.Stops {
		offerStops = append(offerStops, notify.Stop{Location: st.Location, AddressName: st.AddressName})
	}
	offer := notify.RideOffer{
		RideRequestID:      r.ID,
		CustomerID:         r.CustomerID,
		CustomerName:       name,
		CustomerImageURL:   imageURL,
		CustomerDetails:    details,
		Dropoff:            r.Dropoff,
		Stops:              offerStops,
		PickupAddressName:  r.PickupAddressName,
		DropoffAddressName: r.DropoffAddressName,
		CustomerNote:       r.CustomerNote,
	}
	if r.Pickup != nil {
		offer.Pickup = *r.Pickup
	}
	return offer
}

// offerFare is the estimated fare shown to the driver: the customer app's
// own figure when present, otherwise a server-side estimate.
func (s *Service) offerFare(ctx context.Context, r *ride.RideRequest) float64 {
	if r.CustomerCalculatedEstimatedFare != nil {
		return *r.CustomerCalculatedEstimatedFare
	}
	cfg := s.fares.Load(ctx)
	return fare.Estimate(cfg, r.EstimatedDistanceKm, r.EstimatedDurationMinutes)
}

func (s *Service) nearestKijiwes(ctx context.Context, pickup types.Point) ([]kijiwe.Kijiwe, error) {
	all, err := s.kijiwes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching kijiwes: %w", err)
	}
	usable := all[:0]
	for _, k := range all {
		if k.HasPosition() {
			usable = append(usable, k)
		}
	}
	geo.SortByDistance(usable, func(k kijiwe.Kijiwe) float64 {
		return geo.HaversineKm(pickup, k.Position)
	})
	return usable, nil
}
