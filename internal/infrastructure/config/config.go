package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the HmIP mirror.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Transport TransportConfig `yaml:"transport"`
	Stream    StreamConfig    `yaml:"stream"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// CloudConfig holds the bootstrap fields handed over by the pairing flow.
type CloudConfig struct {
	RestURL         string `yaml:"rest_url"`
	StreamURL       string `yaml:"stream_url"`
	AuthToken       string `yaml:"auth_token"`
	ClientAuthToken string `yaml:"client_auth_token"`
	AccessPointID   string `yaml:"access_point_id"`
	APIVersion      string `yaml:"api_version"`
	ClientLanguage  string `yaml:"client_language"`
}

// LimiterConfig contains the command admission controller settings.
type LimiterConfig struct {
	// Capacity is the bucket size (maximum burst of commands).
	Capacity int `yaml:"capacity"`

	// FillRate is the number of tokens restored per second.
	FillRate float64 `yaml:"fill_rate"`

	// TakeTimeoutMS bounds how long a command waits for a token (milliseconds).
	TakeTimeoutMS int `yaml:"take_timeout_ms"`
}

// TransportConfig contains command transport settings.
type TransportConfig struct {
	// RequestTimeout is the hard upper bound for one command request (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// StreamConfig contains push stream settings.
type StreamConfig struct {
	ReconnectOnError    bool `yaml:"reconnect_on_error"`
	ReconnectDelayMS    int  `yaml:"reconnect_delay_ms"`
	MaxReconnectDelayMS int  `yaml:"max_reconnect_delay_ms"`
	PingInterval        int  `yaml:"ping_interval"`
	HandshakeTimeout    int  `yaml:"handshake_timeout"`
}

// APIConfig contains the read-only HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the notification relay socket.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
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

	// Tags are added to every point, e.g. {"site": "cottage"}.
	Tags map[string]string `yaml:"tags"`
}

// DatabaseConfig contains settings for the SQLite notification journal.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	WALMode        bool   `yaml:"wal_mode"`
	BusyTimeout    int    `yaml:"busy_timeout"`
	RetentionHours int    `yaml:"retention_hours"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the shared secret used to verify API bearer tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HMIP_SECTION_KEY
// For example: HMIP_AUTH_TOKEN, HMIP_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			APIVersion:     "12",
			ClientLanguage: "en_US",
		},
		Limiter: LimiterConfig{
			Capacity:      10,
			FillRate:      8,
			TakeTimeoutMS: 120000,
		},
		Transport: TransportConfig{
			RequestTimeout: 20,
		},
		Stream: StreamConfig{
			ReconnectOnError:    true,
			ReconnectDelayMS:    5000,
			MaxReconnectDelayMS: 120000,
			PingInterval:        20,
			HandshakeTimeout:    10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hmip-mirror",
			},
			QoS:         1,
			TopicPrefix: "hmip",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:           "./data/hmip-journal.db",
			WALMode:        true,
			BusyTimeout:    5,
			RetentionHours: 168,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HMIP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud bootstrap fields
	if v := os.Getenv("HMIP_REST_URL"); v != "" {
		cfg.Cloud.RestURL = v
	}
	if v := os.Getenv("HMIP_STREAM_URL"); v != "" {
		cfg.Cloud.StreamURL = v
	}
	if v := os.Getenv("HMIP_AUTH_TOKEN"); v != "" {
		cfg.Cloud.AuthToken = v
	}
	if v := os.Getenv("HMIP_CLIENT_AUTH_TOKEN"); v != "" {
		cfg.Cloud.ClientAuthToken = v
	}

	// Stream
	if v := os.Getenv("HMIP_STREAM_RECONNECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stream.ReconnectOnError = b
		}
	}

	// MQTT
	if v := os.Getenv("HMIP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HMIP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HMIP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HMIP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("HMIP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Security
	if v := os.Getenv("HMIP_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Bootstrap fields are mandatory; without them nothing can be mirrored.
	if c.Cloud.RestURL == "" {
		errs = append(errs, "cloud.rest_url is required")
	}
	if c.Cloud.StreamURL == "" {
		errs = append(errs, "cloud.stream_url is required")
	}
	if c.Cloud.AuthToken == "" {
		errs = append(errs, "cloud.auth_token is required (set HMIP_AUTH_TOKEN environment variable)")
	}
	if c.Cloud.ClientAuthToken == "" {
		errs = append(errs, "cloud.client_auth_token is required (set HMIP_CLIENT_AUTH_TOKEN environment variable)")
	}

	if c.Limiter.Capacity < 1 {
		errs = append(errs, "limiter.capacity must be at least 1")
	}
	if c.Limiter.FillRate <= 0 {
		errs = append(errs, "limiter.fill_rate must be positive")
	}
	if c.Limiter.TakeTimeoutMS <= 0 {
		errs = append(errs, "limiter.take_timeout_ms must be positive")
	}

	if c.Transport.RequestTimeout <= 0 {
		errs = append(errs, "transport.request_timeout must be positive")
	}

	if c.Stream.ReconnectDelayMS < 0 {
		errs = append(errs, "stream.reconnect_delay_ms must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TakeTimeout returns the admission controller take timeout as a Duration.
func (c *Config) TakeTimeout() time.Duration {
	return time.Duration(c.Limiter.TakeTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the command request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transport.RequestTimeout) * time.Second
}

// ReconnectDelay returns the initial stream reconnect delay as a Duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Stream.ReconnectDelayMS) * time.Millisecond
}

// MaxReconnectDelay returns the stream reconnect backoff cap as a Duration.
func (c *Config) MaxReconnectDelay() time.Duration {
	return time.Duration(c.Stream.MaxReconnectDelayMS) * time.Millisecond
}
