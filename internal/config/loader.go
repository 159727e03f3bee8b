package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "REDSIM_"

// Load reads configuration with priority Env > File > Default. An
// empty path skips the file source.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// REDSIM_ENGINE__DATABASES -> engine.databases
	transformer := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transformer), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Verify validates a configuration, normalizing zero values back to
// the defaults where a zero makes no sense.
func Verify(cfg *Config) error {
	e := &cfg.Engine
	if e.Databases <= 0 {
		e.Databases = DefaultDatabases
	}
	if e.Databases > 1<<20 {
		return fmt.Errorf("engine.databases %d is unreasonably large", e.Databases)
	}
	switch e.ServerVersion {
	case 0:
		e.ServerVersion = DefaultServerVersion
	case 6, 7:
	default:
		return fmt.Errorf("engine.server_version must be 6 or 7, got %d", e.ServerVersion)
	}
	switch e.ProtocolVersion {
	case 0:
		e.ProtocolVersion = DefaultProtocolVersion
	case 2, 3:
	default:
		return fmt.Errorf("engine.protocol_version must be 2 or 3, got %d", e.ProtocolVersion)
	}
	if e.SweepInterval <= 0 {
		e.SweepInterval = DefaultSweepInterval
	}

	s := &cfg.Server
	if s.Enabled && s.Addr == "" {
		return fmt.Errorf("server.addr is required when the listener is enabled")
	}
	if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}
	return nil
}
