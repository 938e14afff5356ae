// README: Google Maps routing client used to estimate trip distance and duration.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"kijiwe/internal/types"
)

// RouteEstimate is a driving-mode distance/duration pair for a trip.
type RouteEstimate struct {
	DistanceKm      float64
	DurationMinutes float64
}

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// EstimateRoute returns the driving distance and duration from origin to
// destination. Used to fill in ride requests whose client omitted estimates.
func (s *RouteService) EstimateRoute(ctx context.Context, origin, destination types.Point) (RouteEstimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return RouteEstimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return RouteEstimate{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return RouteEstimate{
		DistanceKm:      float64(leg.Distance.Meters) / 1000.0,
		DurationMinutes: leg.Duration.Minutes(),
	}, nil
}
