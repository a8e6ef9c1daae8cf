package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownType) {
//	    // handle unsupported device class
//	}
var (
	// ErrUntyped is returned when a discovered device announced no type.
	ErrUntyped = errors.New("device: missing type")

	// ErrUnknownType is returned when a device type is not supported.
	ErrUnknownType = errors.New("device: unknown type")

	// ErrInvalidForm is returned when a submitted setpoint form cannot be parsed.
	ErrInvalidForm = errors.New("device: invalid form")

	// ErrUnexpectedPayload is returned when a CBOR payload is not a map,
	// lacks a required key, or carries an out-of-range value.
	ErrUnexpectedPayload = errors.New("device: unexpected payload shape")
)
