package device

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// TransitionMS is the fade duration sent with every RGBW setpoint.
const TransitionMS = 3000

// RGBW is the colour state of a lighting fixture.
type RGBW struct {
	R uint8
	G uint8
	B uint8
	W uint8
}

// rgbwSetpoint is the CBOR body of an RGBW PUT.
type rgbwSetpoint struct {
	R uint8  `cbor:"r"`
	G uint8  `cbor:"g"`
	B uint8  `cbor:"b"`
	W uint8  `cbor:"w"`
	D uint16 `cbor:"d"`
}

// ParseRGBWForm parses the rgb and w fields of a submitted form.
//
// rgb must be six hex digits, optionally prefixed with '#', in either case.
// w must be an integer between 0 and 255.
func ParseRGBWForm(form url.Values) (RGBW, error) {
	rgb, err := ParseHexColor(form.Get("rgb"))
	if err != nil {
		return RGBW{}, err
	}

	w, err := parseByteField(form, "w")
	if err != nil {
		return RGBW{}, err
	}

	rgb.W = w
	return rgb, nil
}

// ParseHexColor decodes "#a1b2c3" or "a1b2c3" into the three colour channels.
func ParseHexColor(s string) (RGBW, error) {
	digits := strings.TrimPrefix(s, "#")
	if len(digits) != 6 {
		return RGBW{}, fmt.Errorf("%w: rgb must be 6 hex digits, got %q", ErrInvalidForm, s)
	}

	b, err := hex.DecodeString(digits)
	if err != nil {
		return RGBW{}, fmt.Errorf("%w: rgb %q is not hexadecimal", ErrInvalidForm, s)
	}

	return RGBW{R: b[0], G: b[1], B: b[2]}, nil
}

// DecodeRGBW decodes a fixture's GET response.
// The map must hold r, g, b and w as integers in 0..255; other keys are ignored.
func DecodeRGBW(payload []byte) (RGBW, error) {
	fields, err := DecodeFields(payload)
	if err != nil {
		return RGBW{}, err
	}

	var c RGBW
	for _, ch := range []struct {
		key string
		dst *uint8
	}{
		{"r", &c.R},
		{"g", &c.G},
		{"b", &c.B},
		{"w", &c.W},
	} {
		v, err := fields.Byte(ch.key)
		if err != nil {
			return RGBW{}, err
		}
		*ch.dst = v
	}

	return c, nil
}

// MarshalSetpoint encodes c as {r, g, b, w, d}.
func (c RGBW) MarshalSetpoint() ([]byte, error) {
	return encMode.Marshal(rgbwSetpoint{
		R: c.R,
		G: c.G,
		B: c.B,
		W: c.W,
		D: TransitionMS,
	})
}

// Hex returns the colour channels as six lower-case hex digits without '#'.
func (c RGBW) Hex() string {
	return hex.EncodeToString([]byte{c.R, c.G, c.B})
}

// Fields returns the channel values keyed like the device payload.
func (c RGBW) Fields() map[string]any {
	return map[string]any{
		"r": int(c.R),
		"g": int(c.G),
		"b": int(c.B),
		"w": int(c.W),
	}
}
