package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndCount(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.Command("SET", "ok")
	m.Command("SET", "ok")
	m.Command("GET", "err")
	m.Expired(3)
	m.Published(2)
	m.ClientConnected(1)
	m.ClientBlocked(1)
	m.ClientBlocked(-1)
	m.SetKeys("0", 42)

	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("SET", "ok")); got != 2 {
		t.Errorf("commands SET/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExpiredKeysTotal); got != 3 {
		t.Errorf("expired = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PubSubMessages); got != 2 {
		t.Errorf("pubsub = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BlockedClients); got != 0 {
		t.Errorf("blocked = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.KeysTotal.WithLabelValues("0")); got != 42 {
		t.Errorf("keys db0 = %v, want 42", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.Command("SET", "ok")
	m.Expired(1)
	m.Published(1)
	m.ClientConnected(1)
	m.ClientBlocked(1)
	m.SetKeys("0", 1)
}

func TestDoubleRegisterFails(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register succeeded")
	}
}
