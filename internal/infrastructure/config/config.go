package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the home gateway.
// All configuration can be loaded from YAML and overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	CoAP      CoAPConfig      `yaml:"coap"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig contains the directory refresh and expiry schedule.
type GatewayConfig struct {
	// DiscoveryPeriod is the time between two multicast discovery cycles.
	// Default: 600s
	DiscoveryPeriod time.Duration `yaml:"discovery_period"`

	// CleanupInitialDelay gives the first discovery cycle time to populate
	// the directory before the first expiry sweep.
	// Default: 30s
	CleanupInitialDelay time.Duration `yaml:"cleanup_initial_delay"`

	// CleanupPeriod is the time between two expiry sweeps.
	// Default: 600s
	CleanupPeriod time.Duration `yaml:"cleanup_period"`

	// CleanupTimeout is the maximum age of a directory record.
	// Must be well above DiscoveryPeriod so one missed cycle evicts nothing.
	// Default: 3600s
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
}

// CoAPConfig contains CoAP transport settings.
type CoAPConfig struct {
	// MulticastAddress is the "All CoAP Nodes" group queried during discovery.
	MulticastAddress string `yaml:"multicast_address"`

	// DiscoveryPath is the resource requested from every node.
	DiscoveryPath string `yaml:"discovery_path"`

	// DiscoveryWindow is how long multicast responses are collected.
	DiscoveryWindow time.Duration `yaml:"discovery_window"`

	// RequestTimeout bounds unicast GET/PUT exchanges. Zero disables the bound.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// StaticDir, when set, serves /static/ from disk instead of the
	// embedded assets.
	StaticDir string `yaml:"static_dir"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is non-empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEGW_SECTION_KEY
// For example: HOMEGW_API_PORT, HOMEGW_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config holding the built-in defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			DiscoveryPeriod:     600 * time.Second,
			CleanupInitialDelay: 30 * time.Second,
			CleanupPeriod:       600 * time.Second,
			CleanupTimeout:      3600 * time.Second,
		},
		CoAP: CoAPConfig{
			MulticastAddress: "224.0.1.187:5683",
			DiscoveryPath:    "/.well-known/core",
			DiscoveryWindow:  3 * time.Second,
			RequestTimeout:   5 * time.Second,
		},
		API: APIConfig{
			Host: "::",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homegw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// API
	if v := os.Getenv("HOMEGW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HOMEGW_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOMEGW_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// CoAP
	if v := os.Getenv("HOMEGW_COAP_MULTICAST_ADDRESS"); v != "" {
		cfg.CoAP.MulticastAddress = v
	}

	// MQTT
	if v := os.Getenv("HOMEGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HOMEGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("HOMEGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway schedule
	if c.Gateway.DiscoveryPeriod <= 0 {
		errs = append(errs, "gateway.discovery_period must be positive")
	}
	if c.Gateway.CleanupInitialDelay < 0 {
		errs = append(errs, "gateway.cleanup_initial_delay must not be negative")
	}
	if c.Gateway.CleanupPeriod <= 0 {
		errs = append(errs, "gateway.cleanup_period must be positive")
	}
	if c.Gateway.CleanupTimeout <= c.Gateway.DiscoveryPeriod {
		errs = append(errs, "gateway.cleanup_timeout must exceed gateway.discovery_period")
	}

	// CoAP
	if _, _, err := net.SplitHostPort(c.CoAP.MulticastAddress); err != nil {
		errs = append(errs, "coap.multicast_address must be host:port")
	}
	if !strings.HasPrefix(c.CoAP.DiscoveryPath, "/") {
		errs = append(errs, "coap.discovery_path must start with /")
	}
	if c.CoAP.DiscoveryWindow <= 0 {
		errs = append(errs, "coap.discovery_window must be positive")
	}
	if c.CoAP.RequestTimeout < 0 {
		errs = append(errs, "coap.request_timeout must not be negative")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ListenAddress returns the host:port the HTTP server binds to.
func (a APIConfig) ListenAddress() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ReadTimeout returns the read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
