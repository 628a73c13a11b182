package weather

import (
	"math"
	"testing"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNewReading_CoordinatesComeFromLocation(t *testing.T) {
	loc := Location{Name: "Lagos", Lat: 6.5, Lon: 3.35}
	obs := Observation{
		TemperatureCelsius: 29.1,
		Humidity:           78,
		Pressure:           1011,
		WindSpeed:          3.2,
	}

	r, err := NewReading(loc, obs)
	if err != nil {
		t.Fatalf("NewReading: %v", err)
	}
	if r.Latitude != 6.5 || r.Longitude != 3.35 {
		t.Errorf("coordinates = (%v, %v), want (6.5, 3.35)", r.Latitude, r.Longitude)
	}
	if r.City != "Lagos" {
		t.Errorf("City = %q, want Lagos (defaulted from location)", r.City)
	}
	if r.ObservedAtUnix != nil {
		t.Errorf("ObservedAtUnix = %v, want nil", *r.ObservedAtUnix)
	}
}

func TestNewReading_ProviderNameWins(t *testing.T) {
	loc := Location{Name: "sp", Lat: -23.55, Lon: -46.63}
	obs := Observation{Name: "São Paulo", TemperatureCelsius: 21, Humidity: 60, Pressure: 1018, WindSpeed: 1, ObservedAtUnix: int64Ptr(1700000000)}

	r, err := NewReading(loc, obs)
	if err != nil {
		t.Fatalf("NewReading: %v", err)
	}
	if r.City != "São Paulo" {
		t.Errorf("City = %q, want São Paulo", r.City)
	}
	if r.ObservedAtUnix == nil || *r.ObservedAtUnix != 1700000000 {
		t.Errorf("ObservedAtUnix = %v, want 1700000000", r.ObservedAt())
	}
	// the reading must not alias the observation's timestamp
	*obs.ObservedAtUnix = 1
	if *r.ObservedAtUnix != 1700000000 {
		t.Error("reading timestamp changed with the observation")
	}
}

func TestNewReading_Rejects(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		obs  Observation
	}{
		{name: "empty city", loc: Location{Name: "", Lat: 1, Lon: 1}, obs: Observation{}},
		{name: "latitude out of range", loc: Location{Name: "x", Lat: 91, Lon: 0}, obs: Observation{}},
		{name: "longitude out of range", loc: Location{Name: "x", Lat: 0, Lon: -180.5}, obs: Observation{}},
		{name: "nan temperature", loc: Location{Name: "x"}, obs: Observation{TemperatureCelsius: math.NaN()}},
		{name: "inf wind", loc: Location{Name: "x"}, obs: Observation{WindSpeed: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReading(tt.loc, tt.obs); err == nil {
				t.Fatal("NewReading error = nil, want non-nil")
			}
		})
	}
}

func TestNewLocation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{name: "valid", in: "Lagos", lat: 6.5, lon: 3.35},
		{name: "poles and antimeridian", in: "edge", lat: -90, lon: 180},
		{name: "trims name", in: "  Lima ", lat: -12, lon: -77},
		{name: "blank name", in: "   ", wantErr: true},
		{name: "bad lat", in: "x", lat: 90.01, wantErr: true},
		{name: "bad lon", in: "x", lon: 200, wantErr: true},
		{name: "nan lat", in: "x", lat: math.NaN(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := NewLocation(tt.in, tt.lat, tt.lon)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewLocation error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLocation: %v", err)
			}
			if loc.Name == "" || loc.Name[0] == ' ' {
				t.Errorf("Name = %q, want trimmed", loc.Name)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	if !Delivered().OK() {
		t.Error("Delivered().OK() = false")
	}
	if RetriableFailure(nil).OK() || FatalFailure(nil).OK() {
		t.Error("failure outcome reported OK")
	}
	if got := StatusRetriable.String(); got != "retriable_failure" {
		t.Errorf("StatusRetriable.String() = %q", got)
	}
}
