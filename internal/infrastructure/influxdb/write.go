package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementReadings  = "device_readings"
	MeasurementDiscovery = "discovery_cycles"
)

// ReadingPoint builds one device reading point.
//
// Tags:
//   - device_id: the directory id (e.g. "ll")
//   - device_type: "rgbw" or "shcnt"
//   - source: "get" for values read from the device, "set" for submitted setpoints
func ReadingPoint(deviceID, deviceType, source string, fields map[string]any, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
			"source":      source,
		},
		fields,
		ts,
	)
}

// DiscoveryCyclePoint builds the point describing one discovery cycle.
// A failed cycle is tagged outcome=failed and records zero devices.
func DiscoveryCyclePoint(devices int, duration time.Duration, failed bool, ts time.Time) *write.Point {
	outcome := "ok"
	if failed {
		outcome = "failed"
		devices = 0
	}
	return write.NewPoint(
		MeasurementDiscovery,
		map[string]string{"outcome": outcome},
		map[string]any{
			"devices":     devices,
			"duration_ms": duration.Milliseconds(),
		},
		ts,
	)
}

// WriteReading records a decoded device reading or a submitted setpoint.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Calls on a disconnected client are dropped.
//
// Example:
//
//	client.WriteReading("ll", "rgbw", "get", map[string]any{"r": 10, "g": 20, "b": 30, "w": 64})
func (c *Client) WriteReading(deviceID, deviceType, source string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(ReadingPoint(deviceID, deviceType, source, fields, time.Now()))
}

// WriteDiscoveryCycle records the outcome of a discovery cycle started at started.
func (c *Client) WriteDiscoveryCycle(started time.Time, devices int, duration time.Duration, failed bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(DiscoveryCyclePoint(devices, duration, failed, started))
}
