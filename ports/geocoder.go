package ports

import "context"

// GeoPoint is a named point location.
type GeoPoint struct {
	Name string
	Lat  float64
	Lon  float64
}

// Geocoder resolves a free-text place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, placeName string) (GeoPoint, error)
}
