package openweather

import "fmt"

type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindTransport    Kind = "transport"
	KindStatus       Kind = "status"
	KindMalformed    Kind = "malformed"
	KindCircuitOpen  Kind = "circuit_open"
)

// Error is the only error type Fetch returns.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openweather %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("openweather %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
