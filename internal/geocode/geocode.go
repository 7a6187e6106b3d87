// Package geocode resolves place names to coordinates for new locations.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
)

var ErrNoAPIKey = errors.New("geocoder api key is not configured")

// Coordinates is a resolved point.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder turns a free-form place ("Lisbon, Portugal") into coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, place string) (Coordinates, error)
}

// GoogleGeocoder uses the Google Geocoding API through kelvins/geocoder.
type GoogleGeocoder struct {
	apiKey string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

// the library keeps its key in a package variable
var keyMu sync.Mutex

func (g *GoogleGeocoder) Lookup(ctx context.Context, place string) (Coordinates, error) {
	if g.apiKey == "" {
		return Coordinates{}, ErrNoAPIKey
	}
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	addr := ParsePlace(place)
	if addr.City == "" {
		return Coordinates{}, fmt.Errorf("place %q has no city", place)
	}

	keyMu.Lock()
	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(addr)
	keyMu.Unlock()
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	return Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}

// ParsePlace splits "city[, state], country" into a geocoder address.
func ParsePlace(place string) geocoder.Address {
	var parts []string
	for _, p := range strings.Split(place, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return geocoder.Address{}
	case 1:
		return geocoder.Address{City: parts[0]}
	case 2:
		return geocoder.Address{City: parts[0], Country: parts[1]}
	default:
		return geocoder.Address{City: parts[0], State: parts[1], Country: parts[len(parts)-1]}
	}
}
