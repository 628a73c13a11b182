package weather

import (
	"fmt"
	"strings"
)

// Location is a configured place to sample. Coordinates of every Reading are
// taken from here, never from the provider response.
type Location struct {
	Name string  `json:"name" validate:"required"`
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func NewLocation(name string, lat, lon float64) (Location, error) {
	loc := Location{Name: strings.TrimSpace(name), Lat: lat, Lon: lon}
	if err := validate.Struct(loc); err != nil {
		return Location{}, fmt.Errorf("invalid location %q: %w", name, err)
	}
	return loc, nil
}

// ValidCoordinates reports whether lat/lon are inside the WGS-84 ranges.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
