package weather

import "fmt"

// Status tags the result of handing a Reading to a publisher or a store.
type Status int

const (
	StatusDelivered Status = iota
	// StatusRetriable means this unit failed and is dropped; the loop goes on.
	StatusRetriable
	// StatusFatal means the collaborator can no longer accept work.
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRetriable:
		return "retriable_failure"
	case StatusFatal:
		return "fatal_failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the per-unit delivery result. Err is nil only when delivered.
type Outcome struct {
	Status Status
	Err    error
}

func Delivered() Outcome {
	return Outcome{Status: StatusDelivered}
}

func RetriableFailure(err error) Outcome {
	return Outcome{Status: StatusRetriable, Err: err}
}

func FatalFailure(err error) Outcome {
	return Outcome{Status: StatusFatal, Err: err}
}

func (o Outcome) OK() bool { return o.Status == StatusDelivered }

func (o Outcome) String() string {
	if o.Err == nil {
		return o.Status.String()
	}
	return o.Status.String() + ": " + o.Err.Error()
}
