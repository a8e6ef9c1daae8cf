package device

import "fmt"

// Type is the device class announced during discovery (the CoRE "rt" attribute).
type Type string

// Supported device classes.
const (
	// TypeRGBW is an RGBW lighting fixture.
	TypeRGBW Type = "rgbw"

	// TypeShade is a shade position controller.
	TypeShade Type = "shcnt"
)

// AllTypes returns every supported device class.
func AllTypes() []Type {
	return []Type{TypeRGBW, TypeShade}
}

// ParseType resolves an announced type tag.
//
// Returns ErrUntyped for an empty tag and ErrUnknownType for any tag that is
// not a supported class.
func ParseType(tag string) (Type, error) {
	if tag == "" {
		return "", ErrUntyped
	}
	t := Type(tag)
	if !t.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return t, nil
}

// Known reports whether t is a supported device class.
func (t Type) Known() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}
