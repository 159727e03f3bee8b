package redsim

import (
	"net"
	"strings"
	"testing"
	"time"
)

func pipe() (net.Conn, net.Conn) { return net.Pipe() }

func newServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(WithSeed(7))
	t.Cleanup(s.Close)
	return s
}

func TestBasicCommands(t *testing.T) {
	s := newServer(t)
	c := s.Client()

	if v, err := c.Do("SET", "foo", "bar"); err != nil || v != "OK" {
		t.Fatalf("SET = %v, %v", v, err)
	}
	if v, err := c.Do("GET", "foo"); err != nil || v != "bar" {
		t.Fatalf("GET = %v, %v", v, err)
	}
	if v, err := c.Do("GET", "missing"); err != nil || v != nil {
		t.Fatalf("GET missing = %v, %v", v, err)
	}
	if _, err := c.Do("LPUSH", "foo", "x"); err == nil || !strings.HasPrefix(err.Error(), "WRONGTYPE") {
		t.Fatalf("type error = %v", err)
	}
}

func TestSharedVersusPrivateServers(t *testing.T) {
	shared := newServer(t)
	c1 := shared.Client()
	c2 := shared.Client()

	if _, err := c1.Do("SET", "k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c2.Do("GET", "k"); v != "v" {
		t.Fatalf("shared server: c2 sees %v", v)
	}

	private := newServer(t)
	if v, _ := private.Client().Do("GET", "k"); v != nil {
		t.Fatalf("private server leaked state: %v", v)
	}
}

func TestConnectivityToggle(t *testing.T) {
	s := newServer(t)
	c := s.Client()

	s.SetConnected(false)
	if _, err := c.Do("SET", "foo", "bar"); err == nil {
		t.Fatal("command succeeded while disconnected")
	}
	s.SetConnected(true)
	if v, err := c.Do("SET", "foo", "bar"); err != nil || v != "OK" {
		t.Fatalf("SET after reconnect = %v, %v", v, err)
	}
}

func TestClockControl(t *testing.T) {
	s := newServer(t)
	c := s.Client()

	if _, err := c.Do("SET", "k", "v", "EX", 10); err != nil {
		t.Fatal(err)
	}
	s.FastForward(9 * time.Second)
	if v, _ := c.Do("GET", "k"); v != "v" {
		t.Fatalf("key gone early: %v", v)
	}
	s.FastForward(2 * time.Second)
	if v, _ := c.Do("GET", "k"); v != nil {
		t.Fatalf("key survived its deadline: %v", v)
	}
}

func TestSeedingHelpers(t *testing.T) {
	s := newServer(t)
	c := s.Client()

	s.Set("str", "v")
	s.RPush("list", "a", "b")
	s.HSet("hash", "f", "v")
	s.SAdd("set", "m1", "m2")
	s.ZAdd("zset", 1.5, "m")
	id := s.XAdd("stream", "k", "v")
	s.SetTTL("str", time.Minute)

	if v, _ := s.Get("str"); v != "v" {
		t.Errorf("Get = %q", v)
	}
	if got := s.TTL("str"); got != time.Minute {
		t.Errorf("TTL = %v", got)
	}
	if !s.Exists("list") || !s.Exists("hash") || !s.Exists("set") || !s.Exists("zset") {
		t.Error("seeded keys missing")
	}
	if id == "" {
		t.Error("XAdd returned empty id")
	}
	if n, _ := c.Do("LLEN", "list"); n != int64(2) {
		t.Errorf("LLEN = %v", n)
	}
	if len(s.Keys("*")) != 6 {
		t.Errorf("Keys = %v", s.Keys("*"))
	}
	if s.Del("str") != 1 {
		t.Error("Del failed")
	}
}

func TestTransactionsAcrossClients(t *testing.T) {
	s := newServer(t)
	a := s.Client()
	b := s.Client()

	mustDo(t, a, "WATCH", "k")
	mustDo(t, a, "MULTI")
	if v, err := a.Do("SET", "k", "v1"); err != nil || v != "QUEUED" {
		t.Fatalf("queued = %v, %v", v, err)
	}
	mustDo(t, b, "SET", "k", "vX")

	v, err := a.Do("EXEC")
	if err != nil || v != nil {
		t.Fatalf("EXEC = %v, %v; want nil (watch conflict)", v, err)
	}
	if got, _ := a.Do("GET", "k"); got != "vX" {
		t.Fatalf("GET = %v", got)
	}
}

func TestBlockingPopAcrossClients(t *testing.T) {
	s := newServer(t)
	blocked := s.Client()
	pusher := s.Client()

	done := make(chan any, 1)
	go func() {
		v, _ := blocked.Do("BLPOP", "q", 0)
		done <- v
	}()

	// Give the waiter a beat to register.
	time.Sleep(50 * time.Millisecond)
	mustDo(t, pusher, "RPUSH", "q", "hello")

	select {
	case v := <-done:
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 || pair[0] != "q" || pair[1] != "hello" {
			t.Fatalf("BLPOP = %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("BLPOP never woke")
	}

	if n, _ := pusher.Do("LLEN", "q"); n != int64(0) {
		t.Fatalf("LLEN = %v", n)
	}
	if s.Exists("q") {
		t.Fatal("drained list key still present")
	}
}

func TestPubSubThroughClients(t *testing.T) {
	s := newServer(t)
	sub := s.Client()
	pub := s.Client()

	if _, err := sub.Do("SUBSCRIBE", "news"); err != nil {
		t.Fatal(err)
	}
	if n, _ := pub.Do("PUBLISH", "news", "flash"); n != int64(1) {
		t.Fatalf("PUBLISH = %v", n)
	}

	msg, ok := sub.NextPush(time.Second)
	if !ok {
		t.Fatal("no push delivered")
	}
	parts := msg.([]any)
	if parts[0] != "message" || parts[1] != "news" || parts[2] != "flash" {
		t.Fatalf("push = %v", parts)
	}
}

func TestServeConnByteStream(t *testing.T) {
	s := newServer(t)

	client, srvEnd := pipe()
	go func() { _ = s.ServeConn(srvEnd) }()
	defer client.Close()

	if _, err := client.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "+OK\r\n" {
		t.Fatalf("reply = %q", buf[:n])
	}
	if v, _ := s.Get("k"); v != "v" {
		t.Fatalf("state after wire SET = %q", v)
	}
}

func mustDo(t *testing.T, c *Client, args ...any) any {
	t.Helper()
	v, err := c.Do(args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return v
}
