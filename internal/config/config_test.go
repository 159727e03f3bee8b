package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Engine.Databases != 16 {
		t.Errorf("Databases = %d, want 16", cfg.Engine.Databases)
	}
	if cfg.Engine.ServerVersion != 7 {
		t.Errorf("ServerVersion = %d, want 7", cfg.Engine.ServerVersion)
	}
	if cfg.Engine.ProtocolVersion != 2 {
		t.Errorf("ProtocolVersion = %d, want 2", cfg.Engine.ProtocolVersion)
	}
	if cfg.Server.Enabled {
		t.Error("listener enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redsim.yaml")
	body := `
engine:
  databases: 4
  server_version: 6
  notify_keyspace_events: "KEA"
server:
  enabled: true
  addr: "127.0.0.1:7777"
  read_timeout: 10s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Databases != 4 {
		t.Errorf("Databases = %d, want 4", cfg.Engine.Databases)
	}
	if cfg.Engine.ServerVersion != 6 {
		t.Errorf("ServerVersion = %d, want 6", cfg.Engine.ServerVersion)
	}
	if cfg.Engine.NotifyKeyspaceEvents != "KEA" {
		t.Errorf("NotifyKeyspaceEvents = %q", cfg.Engine.NotifyKeyspaceEvents)
	}
	if cfg.Server.Addr != "127.0.0.1:7777" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redsim.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  databases: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDSIM_ENGINE__DATABASES", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Databases != 8 {
		t.Errorf("Databases = %d, want 8 (env override)", cfg.Engine.Databases)
	}
}

func TestVerifyRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Engine.ServerVersion = 5
	if err := Verify(cfg); err == nil {
		t.Error("server_version 5 accepted")
	}

	cfg = Default()
	cfg.Engine.ProtocolVersion = 4
	if err := Verify(cfg); err == nil {
		t.Error("protocol_version 4 accepted")
	}

	cfg = Default()
	cfg.Server.TLSCertFile = "cert.pem"
	if err := Verify(cfg); err == nil {
		t.Error("lonely TLS cert accepted")
	}

	cfg = Default()
	cfg.Engine.Databases = -1
	if err := Verify(cfg); err != nil {
		t.Errorf("negative databases should normalize, got %v", err)
	}
	if cfg.Engine.Databases != DefaultDatabases {
		t.Errorf("Databases = %d, want default", cfg.Engine.Databases)
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redsim.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  databases: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	w.StartAsync()

	// Give the watcher a beat to register, then rewrite the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("engine:\n  databases: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Engine.Databases != 9 {
			t.Errorf("reloaded Databases = %d, want 9", cfg.Engine.Databases)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload observed")
	}
}
