// Package fault classifies the failures a simulation step can raise.
package fault

import (
	"errors"
	"fmt"
	"math"
)

// Error kinds. Test with errors.Is.
var (
	// ErrConfiguration indicates an invalid topology or setting. Fatal at init.
	ErrConfiguration = errors.New("configuration error")

	// ErrNumerical indicates a non-finite result or an ill-conditioned network.
	ErrNumerical = errors.New("numerical failure")

	// ErrBounds indicates a quantity outside its allowed range.
	ErrBounds = errors.New("out of bounds")

	// ErrSchedule indicates no exchange schedule could be resolved.
	ErrSchedule = errors.New("schedule infeasible")

	// ErrMessage indicates a malformed or unexpected message.
	ErrMessage = errors.New("malformed message")
)

// Error carries the identity of the offending object and the violated
// quantity.
type Error struct {
	Kind      error
	Object    string
	Quantity  string
	Value     float64
	Threshold float64
	Detail    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Object, e.Kind)
	if e.Quantity != "" {
		msg += fmt.Sprintf(": %s=%g", e.Quantity, e.Value)
		if !math.IsNaN(e.Threshold) {
			msg += fmt.Sprintf(" (threshold %g)", e.Threshold)
		}
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Configuration returns a configuration error for object.
func Configuration(object, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrConfiguration, Object: object, Threshold: math.NaN(), Detail: fmt.Sprintf(format, args...)}
}

// Numerical returns a numerical failure on quantity.
func Numerical(object, quantity string, value float64, detail string) *Error {
	return &Error{Kind: ErrNumerical, Object: object, Quantity: quantity, Value: value, Threshold: math.NaN(), Detail: detail}
}

// Bounds returns a bounds violation of quantity against threshold.
func Bounds(object, quantity string, value, threshold float64) *Error {
	return &Error{Kind: ErrBounds, Object: object, Quantity: quantity, Value: value, Threshold: threshold}
}

// Schedule returns a schedule failure.
func Schedule(object, detail string) *Error {
	return &Error{Kind: ErrSchedule, Object: object, Threshold: math.NaN(), Detail: detail}
}

// Message returns a malformed message error.
func Message(object, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrMessage, Object: object, Threshold: math.NaN(), Detail: fmt.Sprintf(format, args...)}
}
