// README: Google Maps route lookups used to enrich proposals with encoded
// polylines. Entirely optional: the engine runs without an API key and every
// failure here degrades to a proposal without route geometry.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"ridelink/internal/types"
)

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

// EncodedRoute returns the encoded overview polyline of the driving route
// from origin to destination. It assumes driving mode.
func (s *RouteService) EncodedRoute(ctx context.Context, origin, destination types.Point) (string, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 {
		return "", fmt.Errorf("no route found")
	}
	return routes[0].OverviewPolyline.Points, nil
}
