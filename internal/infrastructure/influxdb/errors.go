package influxdb

import "errors"

// Sentinel errors for InfluxDB operations, checkable with errors.Is.
// Write failures are asynchronous and reported through SetOnError instead.
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates InfluxDB recording is disabled in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
