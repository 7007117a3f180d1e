package control

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig       = errors.New("control: invalid config")
	ErrArcInitiationFailed = errors.New("control: arc initiation failed")
	ErrFeedbackImplausible = errors.New("control: feedback outside plausible bounds")
	ErrFaulted             = errors.New("control: controller faulted, power output held at zero")
)

// FaultKind names what tripped a fault.
type FaultKind string

const (
	FaultNone            FaultKind = ""
	FaultRawOutOfRange   FaultKind = "raw_out_of_range"
	FaultCurrentSaturate FaultKind = "current_saturated"
	FaultArcRetries      FaultKind = "arc_retries_exhausted"
	FaultHardware        FaultKind = "hardware_io"
)

// FaultError describes a condition that forced the power output to zero.
type FaultError struct {
	Kind    FaultKind
	Channel string
	Value   float64
	Err     error
}

func (e *FaultError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%v: %s on %s (value %g)", e.Err, e.Kind, e.Channel, e.Value)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Kind)
}

func (e *FaultError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the loop: implausible feedback,
// exhausted arc retries, a latched fault, or anything that is not one of
// the kernel's recoverable conditions.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return true
	}
	if errors.Is(err, ErrFaulted) {
		return true
	}
	return !errors.Is(err, ErrArcInitiationFailed)
}
