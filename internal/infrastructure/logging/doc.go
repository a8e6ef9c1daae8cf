// Package logging provides structured logging for the home gateway.
//
// Every component logs through one slog handler with the same level and
// the default fields service=homegw and version. Text output on stderr is
// the default; format "json" suits log shippers.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("discovery").Warn("discovery cycle skipped", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
