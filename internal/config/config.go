package config

import "time"

// Presence backends.
const (
	PresenceBackendMemory = "memory"
	PresenceBackendRedis  = "redis"
	PresenceBackendNATS   = "nats"
)

// Presence broadcast scopes for user:online / user:offline.
const (
	BroadcastScopeGlobal = "global"
	BroadcastScopeChats  = "chats"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	// StatusSweepInterval is how often expired statuses are purged.
	StatusSweepInterval time.Duration `mapstructure:"status_sweep_interval" yaml:"status_sweep_interval"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// Transport
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingTimeout        time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ClientBuffer       int           `mapstructure:"client_buffer" yaml:"client_buffer"`

	// Collaborator calls
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// PresenceConfig selects and tunes the presence store.
type PresenceConfig struct {
	Backend               string        `mapstructure:"backend" yaml:"backend"`
	TypingTTL             time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	BroadcastScope        string        `mapstructure:"broadcast_scope" yaml:"broadcast_scope"`
	TypingExpiryBroadcast bool          `mapstructure:"typing_expiry_broadcast" yaml:"typing_expiry_broadcast"`
	Redis                 RedisConfig   `mapstructure:"redis" yaml:"redis"`
	NATS                  NATSConfig    `mapstructure:"nats" yaml:"nats"`
}

// RedisConfig holds connection settings for the redis presence backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// NATSConfig holds connection settings for the NATS KV presence backend.
type NATSConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	BucketPrefix string `mapstructure:"bucket_prefix" yaml:"bucket_prefix"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure     bool    `mapstructure:"insecure" yaml:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "flowchat.db",

		StatusSweepInterval: time.Minute,

		JWTIssuer: "flowchat",
		TokenTTL:  7 * 24 * time.Hour,

		AllowedOrigins:     []string{"localhost:3000"},
		MaxMessageBytes:    1 << 20,
		PingInterval:       25 * time.Second,
		PingTimeout:        60 * time.Second,
		RateLimitPerMinute: 0,
		ClientBuffer:       64,

		OperationTimeout: 5 * time.Second,
		RetryAttempts:    2,
		RetryDelay:       100 * time.Millisecond,

		Presence: PresenceConfig{
			Backend:               PresenceBackendMemory,
			TypingTTL:             5 * time.Second,
			BroadcastScope:        BroadcastScopeGlobal,
			TypingExpiryBroadcast: true,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			NATS: NATSConfig{
				URL:          "nats://localhost:4222",
				BucketPrefix: "FLOWCHAT",
			},
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
		},
	}
}
