package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer         int   `mapstructure:"send_buffer" yaml:"send_buffer"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// DatabasePath enables the SQLite mirror when set.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	GamesDir     string `mapstructure:"games_dir" yaml:"games_dir"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	RoomIDMin int `mapstructure:"room_id_min" yaml:"room_id_min"`
	RoomIDMax int `mapstructure:"room_id_max" yaml:"room_id_max"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		WriteTimeout:       5 * time.Second,
		LogLevel:           "info",
		MaxMessageBytes:    64 << 10,
		SendBuffer:         64,
		RateLimitPerMinute: 600,
		DatabasePath:       "partyhub.db",
		GamesDir:           "games",
		RoomIDMin:          100000,
		RoomIDMax:          999999,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.GamesDir != "" {
		c.GamesDir = other.GamesDir
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.RoomIDMin != 0 {
		c.RoomIDMin = other.RoomIDMin
	}
	if other.RoomIDMax != 0 {
		c.RoomIDMax = other.RoomIDMax
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errMissing("addr")
	case c.RoomIDMin <= 0 || c.RoomIDMax < c.RoomIDMin:
		return errInvalid("room_id_min/room_id_max", "need 0 < min <= max")
	case c.JWTRequired && c.JWTSecret == "":
		return errInvalid("jwt_required", "jwt_secret is empty")
	case c.SendBuffer <= 0:
		return errInvalid("send_buffer", "must be positive")
	}
	return nil
}
