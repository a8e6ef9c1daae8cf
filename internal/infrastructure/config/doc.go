// Package config handles loading and validating the home gateway configuration.
//
// This package manages:
//   - Built-in defaults matching the documented discovery and expiry schedule
//   - Optional YAML configuration file
//   - Overriding with HOMEGW_* environment variables
//   - Validation of every section, reporting all problems at once
//
// The gateway runs without any configuration file; the defaults bind the
// HTTP front end to [::]:3000 and keep MQTT and InfluxDB disabled.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("HOMEGW_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.API.ListenAddress())
package config
