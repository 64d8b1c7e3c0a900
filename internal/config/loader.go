package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "FLOWCHAT"
	envConfigDefaultPath = "FLOWCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bare JWT_SECRET variable is what existing deployments export.
	if err := v.BindEnv("jwt_secret", envPrefix+"_JWT_SECRET", "JWT_SECRET"); err != nil {
		return cfg, "", fmt.Errorf("bind env: %w", err)
	}

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Validate rejects settings the server cannot start with.
// A missing JWT secret is not an error here: the gate refuses connections instead.
func (c Config) Validate() error {
	switch c.Presence.Backend {
	case PresenceBackendMemory, PresenceBackendRedis, PresenceBackendNATS:
	default:
		return fmt.Errorf("unknown presence backend %q", c.Presence.Backend)
	}
	switch c.Presence.BroadcastScope {
	case BroadcastScopeGlobal, BroadcastScopeChats:
	default:
		return fmt.Errorf("unknown presence broadcast scope %q", c.Presence.BroadcastScope)
	}
	if c.Presence.TypingTTL <= 0 {
		return errors.New("presence.typing_ttl must be positive")
	}
	if c.StatusSweepInterval <= 0 {
		return errors.New("status_sweep_interval must be positive")
	}
	if c.OperationTimeout <= 0 {
		return errors.New("operation_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("status_sweep_interval", cfg.StatusSweepInterval)

	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)
	v.SetDefault("jwt_audience", cfg.JWTAudience)
	v.SetDefault("token_ttl", cfg.TokenTTL)

	v.SetDefault("allowed_origins", cfg.AllowedOrigins)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("ping_timeout", cfg.PingTimeout)
	v.SetDefault("rate_limit_per_minute", cfg.RateLimitPerMinute)
	v.SetDefault("client_buffer", cfg.ClientBuffer)

	v.SetDefault("operation_timeout", cfg.OperationTimeout)
	v.SetDefault("retry_attempts", cfg.RetryAttempts)
	v.SetDefault("retry_delay", cfg.RetryDelay)

	v.SetDefault("presence.backend", cfg.Presence.Backend)
	v.SetDefault("presence.typing_ttl", cfg.Presence.TypingTTL)
	v.SetDefault("presence.broadcast_scope", cfg.Presence.BroadcastScope)
	v.SetDefault("presence.typing_expiry_broadcast", cfg.Presence.TypingExpiryBroadcast)
	v.SetDefault("presence.redis.addr", cfg.Presence.Redis.Addr)
	v.SetDefault("presence.redis.password", cfg.Presence.Redis.Password)
	v.SetDefault("presence.redis.db", cfg.Presence.Redis.DB)
	v.SetDefault("presence.nats.url", cfg.Presence.NATS.URL)
	v.SetDefault("presence.nats.user", cfg.Presence.NATS.User)
	v.SetDefault("presence.nats.password", cfg.Presence.NATS.Password)
	v.SetDefault("presence.nats.bucket_prefix", cfg.Presence.NATS.BucketPrefix)

	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("tracing.sampling_rate", cfg.Tracing.SamplingRate)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
