// Package influxdb provides optional InfluxDB recording for the home gateway.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes, and health monitoring.
//
// # Measurements
//
//	device_readings   tags device_id, device_type, source (get|set)
//	                  fields r, g, b, w for rgbw; pos for shcnt
//	discovery_cycles  tag outcome (ok|failed)
//	                  fields devices, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading("ll", "rgbw", "get", map[string]any{"r": 10, "g": 20, "b": 30, "w": 64})
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered through the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
