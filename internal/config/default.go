package config

import "time"

// Default configuration values.
const (
	DefaultDatabases       = 16
	DefaultServerVersion   = 7
	DefaultProtocolVersion = 2
	DefaultAddr            = "127.0.0.1:6379"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultRateLimit       = 0
	DefaultSweepInterval   = 100 * time.Millisecond
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineSection{
			Databases:       DefaultDatabases,
			ServerVersion:   DefaultServerVersion,
			ProtocolVersion: DefaultProtocolVersion,
			LuaModules:      true,
			SweepInterval:   DefaultSweepInterval,
		},
		Server: ServerSection{
			Enabled:      false,
			Addr:         DefaultAddr,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			RateLimit:    DefaultRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
