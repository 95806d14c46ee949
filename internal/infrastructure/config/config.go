package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for habsync.
// It is loaded from YAML (or TOML) and can be overridden by environment variables.
type Config struct {
	OpenHAB   OpenHABConfig   `yaml:"openhab" toml:"openhab"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Entities  EntitiesConfig  `yaml:"entities" toml:"entities"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
	API       APIConfig       `yaml:"api" toml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" toml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Security  SecurityConfig  `yaml:"security" toml:"security"`
}

// OpenHABConfig describes the controller connection.
type OpenHABConfig struct {
	// BaseURL is the controller address without the /rest suffix,
	// e.g. "http://openhab.local:8080".
	BaseURL string `yaml:"base_url" toml:"base_url"`

	Auth OpenHABAuthConfig `yaml:"auth" toml:"auth"`

	// RequestTimeout bounds every REST call, in seconds.
	RequestTimeout int `yaml:"request_timeout" toml:"request_timeout"`
}

// OpenHABAuthConfig selects exactly one authentication mode.
type OpenHABAuthConfig struct {
	Mode     string `yaml:"mode" toml:"mode"` // "token" or "basic"
	Token    string `yaml:"token" toml:"token"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// SyncConfig tunes polling, debouncing and the event stream.
type SyncConfig struct {
	// PollInterval between full item listings, in seconds.
	PollInterval int `yaml:"poll_interval" toml:"poll_interval"`

	// DebounceCooldown is the quiet period before a push-triggered refresh,
	// in milliseconds.
	DebounceCooldown int `yaml:"debounce_cooldown_ms" toml:"debounce_cooldown_ms"`

	// StreamEnabled turns the push-event subscription on or off.
	StreamEnabled bool `yaml:"stream_enabled" toml:"stream_enabled"`

	// StreamRetryDelay is the fixed reconnect delay, in seconds.
	StreamRetryDelay int `yaml:"stream_retry_delay" toml:"stream_retry_delay"`

	// StreamReadTimeout drops a silent connection, in seconds.
	StreamReadTimeout int `yaml:"stream_read_timeout" toml:"stream_read_timeout"`
}

// EntitiesConfig selects which entity categories are surfaced.
type EntitiesConfig struct {
	// Categories lists enabled categories. Empty means all.
	Categories []string `yaml:"categories" toml:"categories"`
}

// DatabaseConfig contains SQLite settings for the entity registry.
type DatabaseConfig struct {
	Path        string `yaml:"path" toml:"path"`
	WALMode     bool   `yaml:"wal_mode" toml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout" toml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" toml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS         int                 `yaml:"qos" toml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix" toml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" toml:"enabled"`
	Host     string           `yaml:"host" toml:"host"`
	Port     int              `yaml:"port" toml:"port"`
	TLS      TLSConfig        `yaml:"tls" toml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts" toml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors" toml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read" toml:"read"`
	Write int `yaml:"write" toml:"write"`
	Idle  int `yaml:"idle" toml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size" toml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout" toml:"pong_timeout"`
}

// InfluxDBConfig contains settings for optional sync telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"` // stdout, stderr or file
	File   string `yaml:"file" toml:"file"`     // path used when output is "file"
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt" toml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret" toml:"secret"`

	// TokenTTL is the lifetime of tokens issued by "habsync token", in minutes.
	TokenTTL int `yaml:"token_ttl" toml:"token_ttl"`
}

// Load reads configuration from a file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (YAML, or TOML when the path ends in .toml)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HABSYNC_SECTION_KEY
// For example: HABSYNC_OPENHAB_TOKEN, HABSYNC_API_PORT
//
// Parameters:
//   - path: Path to the configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
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
		OpenHAB: OpenHABConfig{
			Auth:           OpenHABAuthConfig{Mode: "token"},
			RequestTimeout: 10,
		},
		Sync: SyncConfig{
			PollInterval:      30,
			DebounceCooldown:  500,
			StreamEnabled:     true,
			StreamRetryDelay:  5,
			StreamReadTimeout: 300,
		},
		Database: DatabaseConfig{
			Path:        "./data/habsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "habsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "habsync",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{TokenTTL: 60 * 24 * 30},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HABSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// openHAB
	if v := os.Getenv("HABSYNC_OPENHAB_URL"); v != "" {
		cfg.OpenHAB.BaseURL = v
	}
	if v := os.Getenv("HABSYNC_OPENHAB_AUTH_MODE"); v != "" {
		cfg.OpenHAB.Auth.Mode = v
	}
	if v := os.Getenv("HABSYNC_OPENHAB_TOKEN"); v != "" {
		cfg.OpenHAB.Auth.Token = v
	}
	if v := os.Getenv("HABSYNC_OPENHAB_USERNAME"); v != "" {
		cfg.OpenHAB.Auth.Username = v
	}
	if v := os.Getenv("HABSYNC_OPENHAB_PASSWORD"); v != "" {
		cfg.OpenHAB.Auth.Password = v
	}

	// Sync
	if n, ok := envInt("HABSYNC_SYNC_POLL_INTERVAL"); ok {
		cfg.Sync.PollInterval = n
	}

	// Database
	if v := os.Getenv("HABSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HABSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HABSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HABSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HABSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if n, ok := envInt("HABSYNC_API_PORT"); ok {
		cfg.API.Port = n
	}

	// InfluxDB
	if v := os.Getenv("HABSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("HABSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("HABSYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// envInt reads an integer variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// openHAB
	if c.OpenHAB.BaseURL == "" {
		errs = append(errs, "openhab.base_url is required (set HABSYNC_OPENHAB_URL)")
	}
	switch c.OpenHAB.Auth.Mode {
	case "token":
		if c.OpenHAB.Auth.Token == "" {
			errs = append(errs, "openhab.auth.token is required in token mode (set HABSYNC_OPENHAB_TOKEN)")
		}
	case "basic":
		if c.OpenHAB.Auth.Username == "" {
			errs = append(errs, "openhab.auth.username is required in basic mode")
		}
	default:
		errs = append(errs, `openhab.auth.mode must be "token" or "basic"`)
	}

	// Sync
	if c.Sync.PollInterval < 1 {
		errs = append(errs, "sync.poll_interval must be at least 1 second")
	}
	if c.Sync.DebounceCooldown < 0 {
		errs = append(errs, "sync.debounce_cooldown_ms must not be negative")
	}
	if c.Sync.StreamRetryDelay < 1 {
		errs = append(errs, "sync.stream_retry_delay must be at least 1 second")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the API is enabled (set HABSYNC_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	// Logging
	if c.Logging.Output == "file" && c.Logging.File == "" {
		errs = append(errs, `logging.file is required when logging.output is "file"`)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPollInterval returns the periodic poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sync.PollInterval) * time.Second
}

// GetDebounceCooldown returns the debounce cooldown as a Duration.
func (c *Config) GetDebounceCooldown() time.Duration {
	return time.Duration(c.Sync.DebounceCooldown) * time.Millisecond
}

// GetStreamRetryDelay returns the event stream reconnect delay as a Duration.
func (c *Config) GetStreamRetryDelay() time.Duration {
	return time.Duration(c.Sync.StreamRetryDelay) * time.Second
}

// GetStreamReadTimeout returns the event stream idle timeout as a Duration.
func (c *Config) GetStreamReadTimeout() time.Duration {
	return time.Duration(c.Sync.StreamReadTimeout) * time.Second
}

// GetRequestTimeout returns the openHAB REST timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.OpenHAB.RequestTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetTokenTTL returns the lifetime of issued API tokens as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.TokenTTL) * time.Minute
}
