// Package coap is the gateway's CoAP transport.
//
// It provides multicast service discovery against the "All CoAP Nodes"
// group (RFC 7252 §12.8) using the RFC 6690 /.well-known/core resource, and
// unicast GET and PUT exchanges carrying application/cbor payloads.
//
// Discovery returns every announced resource together with the address of
// the node that answered; filtering by id or type is left to callers.
//
// Usage:
//
//	c := coap.NewClient(coap.Config{RequestTimeout: 5 * time.Second})
//	services, err := c.Discover(ctx)
//	payload, err := c.Get(ctx, services[0].Addr, services[0].ID)
package coap
