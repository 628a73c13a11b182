package weather

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Observation is what the provider reports for one coordinate pair. It only
// exists when every required numeric field was present in the response.
type Observation struct {
	Name               string
	TemperatureCelsius float64
	Humidity           int
	Pressure           int
	WindSpeed          float64
	ObservedAtUnix     *int64
}

// Reading is one normalized observation for one location. The JSON tags are
// the canonical message encoding.
type Reading struct {
	City               string  `json:"city" validate:"required"`
	Latitude           float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude          float64 `json:"longitude" validate:"gte=-180,lte=180"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	Humidity           int     `json:"humidity"`
	Pressure           int     `json:"pressure"`
	WindSpeed          float64 `json:"wind_speed"`
	ObservedAtUnix     *int64  `json:"timestamp_unix"`
}

// NewReading builds a Reading from a configured Location and a provider
// Observation. City falls back to the Location name when the provider did
// not report one.
func NewReading(loc Location, obs Observation) (Reading, error) {
	city := strings.TrimSpace(obs.Name)
	if city == "" {
		city = loc.Name
	}
	r := Reading{
		City:               city,
		Latitude:           loc.Lat,
		Longitude:          loc.Lon,
		TemperatureCelsius: obs.TemperatureCelsius,
		Humidity:           obs.Humidity,
		Pressure:           obs.Pressure,
		WindSpeed:          obs.WindSpeed,
	}
	if obs.ObservedAtUnix != nil {
		ts := *obs.ObservedAtUnix
		r.ObservedAtUnix = &ts
	}
	if err := r.Validate(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// Validate checks the Reading invariants.
func (r Reading) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid reading for %q: %w", r.City, err)
	}
	if !finite(r.TemperatureCelsius) {
		return errors.New("temperature_celsius must be finite")
	}
	if !finite(r.WindSpeed) {
		return errors.New("wind_speed must be finite")
	}
	return nil
}

// ObservedAt is a log-friendly view of the optional timestamp.
func (r Reading) ObservedAt() any {
	if r.ObservedAtUnix == nil {
		return nil
	}
	return *r.ObservedAtUnix
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
