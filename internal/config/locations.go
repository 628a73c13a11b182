package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"weatherstream/internal/weather"
)

type locationEntry struct {
	Name *string  `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// LoadLocations reads the ordered location list from a JSON file. A missing
// file, malformed JSON, an empty list or any invalid entry is an error.
func LoadLocations(path string) ([]weather.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations %s: %w", path, err)
	}
	return ParseLocations(data)
}

func ParseLocations(data []byte) ([]weather.Location, error) {
	var entries []locationEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode locations: trailing data after list")
	}
	if len(entries) == 0 {
		return nil, errors.New("no locations configured")
	}

	out := make([]weather.Location, 0, len(entries))
	var errs []error
	for i, e := range entries {
		if e.Name == nil || e.Lat == nil || e.Lon == nil {
			errs = append(errs, fmt.Errorf("location #%d: name, lat and lon are required", i))
			continue
		}
		loc, err := weather.NewLocation(*e.Name, *e.Lat, *e.Lon)
		if err != nil {
			errs = append(errs, fmt.Errorf("location #%d: %w", i, err))
			continue
		}
		out = append(out, loc)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
