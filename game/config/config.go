package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wricardo/tabletop/game/session"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the complete server configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Room    RoomConfig    `mapstructure:"room"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	Ngrok   NgrokConfig   `mapstructure:"ngrok"`
}

// ServerConfig controls the HTTP listener and background upkeep
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// HealthAddress is where the gRPC health service listens; empty disables it
	HealthAddress   string        `mapstructure:"health_address"`
	IdleRoomTimeout time.Duration `mapstructure:"idle_room_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RoomConfig holds the per-room tunables
type RoomConfig struct {
	PatchInterval  time.Duration `mapstructure:"patch_interval"`
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
	MaxClients     int           `mapstructure:"max_clients"`
	DefaultLife    int           `mapstructure:"default_life"`
}

// RedisConfig enables the shared room directory
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	ListingTTL time.Duration `mapstructure:"listing_ttl"`
}

// LoggingConfig selects the zap level and encoder
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NgrokConfig controls the optional public tunnel
type NgrokConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"auth_token"`
	Domain    string `mapstructure:"domain"`
}

func setDefaults(v *viper.Viper) {
	room := session.DefaultRoomConfig()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_address", "")
	v.SetDefault("server.idle_room_timeout", 30*time.Minute)
	v.SetDefault("server.cleanup_interval", time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("room.patch_interval", room.PatchInterval)
	v.SetDefault("room.reconnect_grace", room.ReconnectGrace)
	v.SetDefault("room.max_clients", room.MaxClients)
	v.SetDefault("room.default_life", room.DefaultLife)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.listing_ttl", 2*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.auth_token", "")
	v.SetDefault("ngrok.domain", "")
}

// Load reads configuration from path (optional) and the environment.
// Every key can be overridden as TABLETOP_<SECTION>_<KEY>, for example
// TABLETOP_ROOM_MAX_CLIENTS. PORT and the NGROK_* variables are honored too.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TABLETOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("server.port", "TABLETOP_SERVER_PORT", "PORT")
	v.BindEnv("ngrok.enabled", "TABLETOP_NGROK_ENABLED", "NGROK_ENABLED")
	v.BindEnv("ngrok.auth_token", "TABLETOP_NGROK_AUTH_TOKEN", "NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	v.BindEnv("ngrok.domain", "TABLETOP_NGROK_DOMAIN", "NGROK_DOMAIN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tabletop")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot repair
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.Server.CleanupInterval <= 0:
		return fmt.Errorf("%w: server.cleanup_interval must be positive", ErrInvalidConfig)
	case c.Room.PatchInterval <= 0:
		return fmt.Errorf("%w: room.patch_interval must be positive", ErrInvalidConfig)
	case c.Room.ReconnectGrace <= 0:
		return fmt.Errorf("%w: room.reconnect_grace must be positive", ErrInvalidConfig)
	case c.Room.MaxClients < 1:
		return fmt.Errorf("%w: room.max_clients must be at least 1", ErrInvalidConfig)
	case c.Room.DefaultLife < 1:
		return fmt.Errorf("%w: room.default_life must be at least 1", ErrInvalidConfig)
	case c.Redis.Enabled && c.Redis.Address == "":
		return fmt.Errorf("%w: redis.address is required when redis is enabled", ErrInvalidConfig)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SessionConfig converts the room section for the session package
func (c *Config) SessionConfig() session.RoomConfig {
	return session.RoomConfig{
		PatchInterval:  c.Room.PatchInterval,
		ReconnectGrace: c.Room.ReconnectGrace,
		MaxClients:     c.Room.MaxClients,
		DefaultLife:    c.Room.DefaultLife,
	}
}
