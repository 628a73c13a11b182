package weather

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	readings := []Reading{
		{City: "Lagos", Latitude: 6.5, Longitude: 3.35, TemperatureCelsius: 29.4, Humidity: 81, Pressure: 1010, WindSpeed: 2.57, ObservedAtUnix: int64Ptr(1718000000)},
		{City: "Reykjavík", Latitude: 64.1466, Longitude: -21.9426, TemperatureCelsius: -3.25, Humidity: 0, Pressure: 980, WindSpeed: 0},
		{City: "max timestamp", Latitude: 1, Longitude: 1, Humidity: 1, Pressure: 1, ObservedAtUnix: int64Ptr(9007199254740993)},
		{City: "edge", Latitude: -90, Longitude: 180, TemperatureCelsius: 0, Humidity: 100, Pressure: 0, WindSpeed: 45.1, ObservedAtUnix: int64Ptr(0)},
	}
	for _, want := range readings {
		t.Run(want.City, func(t *testing.T) {
			b, err := Encode(want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode(%s): %v", b, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestEncode_CanonicalKeys(t *testing.T) {
	b, err := Encode(Reading{City: "Lima", Latitude: -12, Longitude: -77, TemperatureCelsius: 18, Humidity: 70, Pressure: 1014, WindSpeed: 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"city", "latitude", "longitude", "temperature_celsius", "humidity", "pressure", "wind_speed", "timestamp_unix"}
	if len(m) != len(want) {
		t.Errorf("got %d keys, want %d: %s", len(m), len(want), b)
	}
	for _, k := range want {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %q in %s", k, b)
		}
	}
	if m["timestamp_unix"] != nil {
		t.Errorf("timestamp_unix = %v, want null", m["timestamp_unix"])
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{name: "not json", payload: `{"city":`},
		{name: "missing temperature", payload: `{"city":"Lagos","latitude":6.5,"longitude":3.35,"humidity":80,"pressure":1010,"wind_speed":2,"timestamp_unix":null}`, wantField: "temperature_celsius"},
		{name: "null city", payload: `{"city":null,"latitude":6.5,"longitude":3.35,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2}`, wantField: "city"},
		{name: "fractional humidity", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80.5,"pressure":1010,"wind_speed":2}`, wantField: "humidity"},
		{name: "huge humidity", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":1e300,"pressure":1010,"wind_speed":2}`, wantField: "humidity"},
		{name: "exponent pressure", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1e3,"wind_speed":2}`, wantField: "pressure"},
		{name: "timestamp overflow", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2,"timestamp_unix":92233720368547758070}`, wantField: "timestamp_unix"},
		{name: "trailing garbage", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2} garbage`},
		{name: "second object", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2}{}`},
		{name: "string pressure", payload: `{"city":"x","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":"1010","wind_speed":2}`, wantField: "pressure"},
		{name: "latitude out of range", payload: `{"city":"x","latitude":100,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2}`},
		{name: "empty city", payload: `{"city":"","latitude":1,"longitude":1,"temperature_celsius":20,"humidity":80,"pressure":1010,"wind_speed":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if err == nil {
				t.Fatal("Decode error = nil, want non-nil")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DecodeError", err)
			}
			if tt.wantField != "" && de.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", de.Field, tt.wantField)
			}
			if tt.wantField != "" && !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not name %q", err, tt.wantField)
			}
		})
	}
}

func TestDecode_MissingTimestampIsAbsent(t *testing.T) {
	r, err := Decode([]byte(`{"city":"Oslo","latitude":59.9,"longitude":10.75,"temperature_celsius":-1.5,"humidity":90,"pressure":1002,"wind_speed":5.1}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.ObservedAtUnix != nil {
		t.Errorf("ObservedAtUnix = %v, want nil", *r.ObservedAtUnix)
	}
}
