// Package config defines the emulator configuration: engine behavior
// knobs and the optional TCP front-end settings. Values load from a
// YAML file and REDSIM_-prefixed environment variables via koanf,
// with later sources overriding earlier ones.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Engine EngineSection `koanf:"engine"`
	Server ServerSection `koanf:"server"`
	Log    LogSection    `koanf:"log"`
}

// EngineSection configures command-engine behavior.
type EngineSection struct {
	// Databases is the number of numbered keyspaces.
	Databases int `koanf:"databases"`

	// ServerVersion selects reference-server behavior (6 or 7). It
	// alters some error messages, reply shapes and option gating.
	ServerVersion int `koanf:"server_version"`

	// ProtocolVersion is the default per-connection protocol (2 or 3)
	// before HELLO renegotiates it.
	ProtocolVersion int `koanf:"protocol_version"`

	// LuaModules enables the scripting commands. The evaluator itself
	// is injected by the embedder.
	LuaModules bool `koanf:"lua_modules"`

	// NotifyKeyspaceEvents is the notification class mask, in the
	// reference server's flag-string form ("KEA", "Elg", ...).
	NotifyKeyspaceEvents string `koanf:"notify_keyspace_events"`

	// RequirePass, when non-empty, makes every connection authenticate
	// before running commands.
	RequirePass string `koanf:"requirepass"`

	// MaxMemory is accepted for CONFIG compatibility; enforcement is
	// out of scope and 0 means unlimited.
	MaxMemory int64 `koanf:"maxmemory"`

	// ClusterEnabled turns on slot discipline for multi-key commands.
	ClusterEnabled bool `koanf:"cluster_enabled"`

	// SweepInterval is the period of the active expiration sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// ServerSection configures the TCP front-end.
type ServerSection struct {
	// Enabled turns the listener on; the in-process API never needs it.
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address.
	Addr string `koanf:"addr"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// ReadTimeout bounds reading one command after its first byte.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds writing one reply.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// IdleTimeout bounds the gap between commands.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// RateLimit caps new connections per second per client IP; 0
	// disables. Commands on an open connection are not limited.
	RateLimit int `koanf:"rate_limit"`

	// MetricsAddr serves the prometheus endpoint when non-empty.
	MetricsAddr string `koanf:"metrics_addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
