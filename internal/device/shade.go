package device

import (
	"fmt"
	"net/url"
	"strconv"
)

// Shade is the position of a shade controller on the device's 0..255 scale.
type Shade struct {
	Pos uint8
}

// shadeSetpoint is the CBOR body of a shade PUT.
type shadeSetpoint struct {
	Val uint8 `cbor:"val"`
}

// ParseShadeForm parses the pos field of a submitted form.
func ParseShadeForm(form url.Values) (Shade, error) {
	pos, err := parseByteField(form, "pos")
	if err != nil {
		return Shade{}, err
	}
	return Shade{Pos: pos}, nil
}

// DecodeShade decodes a controller's GET response.
// The controller reports its position under "r", not under the "val" key it
// accepts on PUT.
func DecodeShade(payload []byte) (Shade, error) {
	fields, err := DecodeFields(payload)
	if err != nil {
		return Shade{}, err
	}

	pos, err := fields.Byte("r")
	if err != nil {
		return Shade{}, err
	}
	return Shade{Pos: pos}, nil
}

// MarshalSetpoint encodes s as {val}.
func (s Shade) MarshalSetpoint() ([]byte, error) {
	return encMode.Marshal(shadeSetpoint{Val: s.Pos})
}

// Fields returns the position keyed for time-series export.
func (s Shade) Fields() map[string]any {
	return map[string]any{"pos": int(s.Pos)}
}

// parseByteField parses a decimal form field in 0..255.
func parseByteField(form url.Values, key string) (uint8, error) {
	raw, ok := form[key]
	if !ok || len(raw) == 0 {
		return 0, fmt.Errorf("%w: missing field %q", ErrInvalidForm, key)
	}

	n, err := strconv.ParseUint(raw[0], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer between 0 and 255, got %q", ErrInvalidForm, key, raw[0])
	}
	return uint8(n), nil
}
