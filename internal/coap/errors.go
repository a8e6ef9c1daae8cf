package coap

import "errors"

// Domain errors for the coap package.
var (
	// ErrTransport indicates the CoAP exchange failed: dial error, timeout,
	// or a non-success response code.
	ErrTransport = errors.New("coap: transport failure")

	// ErrMissingContentType indicates a response carried no Content-Format option.
	ErrMissingContentType = errors.New("coap: missing content type")

	// ErrUnexpectedContentType indicates a response whose Content-Format is not CBOR.
	ErrUnexpectedContentType = errors.New("coap: unexpected content type")

	// ErrDiscovery indicates the multicast discovery query could not be issued.
	ErrDiscovery = errors.New("coap: discovery failed")

	// ErrInvalidLinkFormat indicates a malformed RFC 6690 link-format document.
	ErrInvalidLinkFormat = errors.New("coap: invalid link format")
)
