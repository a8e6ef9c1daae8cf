// Package device describes the device classes the gateway can drive and the
// codecs used to talk to them.
//
// Two classes are supported:
//
//   - rgbw:  RGBW lighting fixtures. The operator submits a hex colour and a
//     white level; the device receives {r, g, b, w, d} where d is a fixed
//     transition time in milliseconds.
//   - shcnt: shade controllers. The operator submits a position; the device
//     receives {val} and reports its current position under the key r.
//
// Every device payload is a CBOR map with text keys. Form parsing and payload
// decoding report failures as ErrInvalidForm and ErrUnexpectedPayload so the
// HTTP layer can name the cause on its error page.
//
// # Usage
//
//	c, err := device.ParseRGBWForm(r.PostForm)
//	if err != nil {
//	    return err // wraps ErrInvalidForm
//	}
//	payload, err := c.MarshalSetpoint()
//	...
//	state, err := device.DecodeRGBW(resp.Payload)
package device
