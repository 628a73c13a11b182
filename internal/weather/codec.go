package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// DecodeError is returned for payloads that are not a valid canonical reading.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode reading: %v", e.Err)
	}
	return fmt.Sprintf("decode reading: %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wireReading mirrors the canonical encoding with presence tracking.
type wireReading struct {
	City               *string  `json:"city" validate:"required"`
	Latitude           *float64 `json:"latitude" validate:"required"`
	Longitude          *float64 `json:"longitude" validate:"required"`
	TemperatureCelsius *float64 `json:"temperature_celsius" validate:"required"`
	Humidity           *json.RawMessage `json:"humidity" validate:"required"`
	Pressure           *json.RawMessage `json:"pressure" validate:"required"`
	WindSpeed          *float64         `json:"wind_speed" validate:"required"`
	TimestampUnix      *json.RawMessage `json:"timestamp_unix"`
}

// Encode returns the canonical JSON encoding of r.
func Encode(r Reading) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Decode parses a canonical message. Every key except timestamp_unix must be
// present and non-null; integer fields must hold integral numbers.
func Decode(payload []byte) (Reading, error) {
	var w wireReading
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&w); err != nil {
		return Reading{}, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Reading{}, &DecodeError{Err: errors.New("trailing data after reading")}
	}
	if err := validate.Struct(w); err != nil {
		return Reading{}, &DecodeError{Field: missingField(err), Err: fmt.Errorf("required key missing or null")}
	}

	humidity, err := integral("humidity", *w.Humidity, strconv.IntSize)
	if err != nil {
		return Reading{}, err
	}
	pressure, err := integral("pressure", *w.Pressure, strconv.IntSize)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		City:               *w.City,
		Latitude:           *w.Latitude,
		Longitude:          *w.Longitude,
		TemperatureCelsius: *w.TemperatureCelsius,
		Humidity:           int(humidity),
		Pressure:           int(pressure),
		WindSpeed:          *w.WindSpeed,
	}
	if w.TimestampUnix != nil {
		ts, err := integral("timestamp_unix", *w.TimestampUnix, 64)
		if err != nil {
			return Reading{}, err
		}
		r.ObservedAtUnix = &ts
	}
	if err := r.Validate(); err != nil {
		return Reading{}, &DecodeError{Err: err}
	}
	return r, nil
}

// integral parses a JSON integer literal. Strings, fractions, exponents and
// values outside bitSize are rejected.
func integral(field string, raw json.RawMessage, bitSize int) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, bitSize)
	if err != nil {
		return 0, &DecodeError{Field: field, Err: fmt.Errorf("expected integer, got %s", raw)}
	}
	return n, nil
}
