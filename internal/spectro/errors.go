package spectro

import "errors"

// Normalized device errors. Driver and transport failures are wrapped into
// one of these sentinels so callers can branch with errors.Is instead of
// matching vendor error strings.
var (
	// ErrNotConnected means no device is bound.
	ErrNotConnected = errors.New("spectrometer not connected")

	// ErrCommunication means a transient transport failure during a read
	// or write. The handle is unbound and rebinds on the next use.
	ErrCommunication = errors.New("spectrometer communication failure")

	// ErrValidation means an operator value fell outside its descriptor
	// bounds. Validation errors are rejected before dispatch.
	ErrValidation = errors.New("control value out of range")

	// ErrUnknownControl means a submitted id has no registered setter.
	ErrUnknownControl = errors.New("unknown control")
)

// ErrorKind maps a device error to a short status token for API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrCommunication):
		return "communication_failure"
	case errors.Is(err, ErrValidation):
		return "validation_failure"
	case errors.Is(err, ErrUnknownControl):
		return "unknown_control"
	default:
		return "internal"
	}
}
