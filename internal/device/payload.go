package device

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// encMode produces deterministic CBOR so identical setpoints always encode
// to identical bytes.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("device: building CBOR encode mode: %v", err))
	}
	return em
}

// Fields is a decoded CBOR map restricted to its text keys.
type Fields map[string]any

// DecodeFields decodes a CBOR payload that must be a map.
// Entries whose key is not a text string are ignored.
func DecodeFields(payload []byte) (Fields, error) {
	var v any
	if err := cbor.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedPayload, err)
	}

	fields := make(Fields)
	switch m := v.(type) {
	case map[any]any:
		for k, val := range m {
			if key, ok := k.(string); ok {
				fields[key] = val
			}
		}
	case map[string]any:
		for k, val := range m {
			fields[k] = val
		}
	default:
		return nil, fmt.Errorf("%w: expected map, got %T", ErrUnexpectedPayload, v)
	}

	return fields, nil
}

// Byte returns the value stored under key as an unsigned 8-bit integer.
func (f Fields) Byte(key string) (uint8, error) {
	v, ok := f[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing value for parameter %q", ErrUnexpectedPayload, key)
	}

	var n int64
	switch x := v.(type) {
	case uint64:
		if x > math.MaxUint8 {
			return 0, fmt.Errorf("%w: parameter %q out of range: %d", ErrUnexpectedPayload, key, x)
		}
		return uint8(x), nil
	case int64:
		n = x
	default:
		return 0, fmt.Errorf("%w: parameter %q is not an integer (%T)", ErrUnexpectedPayload, key, v)
	}

	if n < 0 || n > math.MaxUint8 {
		return 0, fmt.Errorf("%w: parameter %q out of range: %d", ErrUnexpectedPayload, key, n)
	}
	return uint8(n), nil
}
