// Package api implements the gateway's HTTP front end.
//
// This package provides:
//   - HTML pages: the landing page, the device list, and one page per device
//     for reading its state and submitting a setpoint
//   - JSON endpoints for health, metrics and the directory contents
//   - A WebSocket hub broadcasting directory changes
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Architecture
//
// Handlers read the discovery Directory without blocking on the network and
// then talk to the device directly over CoAP using the address found there.
// They never modify the directory. Directory changes reach WebSocket clients
// through the Hub, which is registered as a directory observer.
//
// # Errors
//
// A failed device request renders a short error page naming the device and
// the cause. Status codes: 404 not discovered, 501 untyped or unsupported
// type, 400 invalid form, 502 device transport or payload errors.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
