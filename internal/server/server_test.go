package server

import (
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/resp"
)

// newTestServer builds an engine on a mock clock with seeded
// randomness.
func newTestServer(t *testing.T) (*Server, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	s := New(config.Default(), WithClock(mock), WithSeed(42))
	t.Cleanup(s.Close)
	return s, mock
}

func do(t *testing.T, c *Conn, args ...string) resp.Reply {
	t.Helper()
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return c.Dispatch(raw)
}

func wantSimple(t *testing.T, r resp.Reply, want string) {
	t.Helper()
	got, ok := r.(resp.Simple)
	if !ok || string(got) != want {
		t.Fatalf("reply = %#v, want +%s", r, want)
	}
}

func wantInt(t *testing.T, r resp.Reply, want int64) {
	t.Helper()
	got, ok := r.(resp.Integer)
	if !ok || int64(got) != want {
		t.Fatalf("reply = %#v, want :%d", r, want)
	}
}

func wantBulk(t *testing.T, r resp.Reply, want string) {
	t.Helper()
	got, ok := r.(resp.Bulk)
	if !ok || string(got) != want {
		t.Fatalf("reply = %#v, want $%q", r, want)
	}
}

func wantNull(t *testing.T, r resp.Reply) {
	t.Helper()
	switch r.(type) {
	case resp.Null, resp.NullArray:
	case resp.Bulk:
		if r.(resp.Bulk) != nil {
			t.Fatalf("reply = %#v, want null", r)
		}
	default:
		t.Fatalf("reply = %#v, want null", r)
	}
}

func wantErrPrefix(t *testing.T, r resp.Reply, prefix string) {
	t.Helper()
	got, ok := r.(resp.Error)
	if !ok || len(got) < len(prefix) || string(got[:len(prefix)]) != prefix {
		t.Fatalf("reply = %#v, want error with prefix %q", r, prefix)
	}
}

// ============================================================
// End-to-end scenarios
// ============================================================

func TestStringAndListScenario(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "SET", "foo", "bar"), "OK")
	wantBulk(t, do(t, c, "GET", "foo"), "bar")
	wantInt(t, do(t, c, "LPUSH", "bar", "1"), 1)
	wantInt(t, do(t, c, "LPUSH", "bar", "2"), 2)

	r := do(t, c, "LRANGE", "bar", "0", "-1")
	arr, ok := r.(resp.Array)
	if !ok || len(arr) != 2 {
		t.Fatalf("LRANGE reply = %#v", r)
	}
	wantBulk(t, arr[0], "2")
	wantBulk(t, arr[1], "1")
}

func TestConnectedFlag(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	s.SetConnected(false)
	wantErrPrefix(t, do(t, c, "SET", "foo", "bar"), "ERR connection refused")
	s.SetConnected(true)
	wantSimple(t, do(t, c, "SET", "foo", "bar"), "OK")
}

func TestSortedSetScenario(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantInt(t, do(t, c, "ZADD", "z", "1", "a", "2", "b", "3", "c"), 3)

	r := do(t, c, "ZRANGEBYSCORE", "z", "(1", "3")
	arr := r.(resp.Array)
	if len(arr) != 2 {
		t.Fatalf("ZRANGEBYSCORE = %#v", r)
	}
	wantBulk(t, arr[0], "b")
	wantBulk(t, arr[1], "c")

	// GT refuses a non-increasing update.
	wantInt(t, do(t, c, "ZADD", "z", "XX", "GT", "CH", "0", "b"), 0)
	wantBulk(t, do(t, c, "ZSCORE", "z", "b"), "2")
}

func TestWatchExecConflict(t *testing.T) {
	s, _ := newTestServer(t)
	a := s.NewConn()
	b := s.NewConn()

	wantSimple(t, do(t, a, "WATCH", "k"), "OK")
	wantSimple(t, do(t, a, "MULTI"), "OK")
	wantSimple(t, do(t, a, "SET", "k", "v1"), "QUEUED")

	wantSimple(t, do(t, b, "SET", "k", "vX"), "OK")

	wantNull(t, do(t, a, "EXEC"))
	wantBulk(t, do(t, a, "GET", "k"), "vX")
}

func TestExecWithoutConflict(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "WATCH", "k"), "OK")
	wantSimple(t, do(t, c, "MULTI"), "OK")
	wantSimple(t, do(t, c, "SET", "k", "v1"), "QUEUED")
	wantSimple(t, do(t, c, "INCR", "n"), "QUEUED")

	r := do(t, c, "EXEC")
	arr, ok := r.(resp.Array)
	if !ok || len(arr) != 2 {
		t.Fatalf("EXEC = %#v", r)
	}
	wantSimple(t, arr[0], "OK")
	wantInt(t, arr[1], 1)
}

func TestExecAbortOnBadQueuedCommand(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "MULTI"), "OK")
	wantErrPrefix(t, do(t, c, "NOSUCHCMD"), "ERR unknown command")
	wantSimple(t, do(t, c, "SET", "k", "v"), "QUEUED")
	wantErrPrefix(t, do(t, c, "EXEC"), "EXECABORT")
	// The queue was discarded.
	wantNull(t, do(t, c, "GET", "k"))
}

func TestExecEmbedsRuntimeErrors(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "SET", "s", "notanumber"), "OK")
	wantSimple(t, do(t, c, "MULTI"), "OK")
	wantSimple(t, do(t, c, "INCR", "s"), "QUEUED")
	wantSimple(t, do(t, c, "SET", "after", "1"), "QUEUED")

	r := do(t, c, "EXEC")
	arr := r.(resp.Array)
	wantErrPrefix(t, arr[0], "ERR")
	wantSimple(t, arr[1], "OK")
	// Later commands still ran; there is no rollback.
	wantBulk(t, do(t, c, "GET", "after"), "1")
}

func TestNestedMulti(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantSimple(t, do(t, c, "MULTI"), "OK")
	wantErrPrefix(t, do(t, c, "MULTI"), "ERR MULTI calls can not be nested")
	// State is unchanged; queuing continues.
	wantSimple(t, do(t, c, "SET", "k", "v"), "QUEUED")
	if r := do(t, c, "EXEC"); len(r.(resp.Array)) != 1 {
		t.Fatalf("EXEC = %#v", r)
	}
}

func TestBlockingPopWakesFIFO(t *testing.T) {
	s, _ := newTestServer(t)
	a := s.NewConn()
	b := s.NewConn()
	pusher := s.NewConn()

	type result struct {
		who   string
		reply resp.Reply
	}
	results := make(chan result, 2)

	go func() { results <- result{"a", do(t, a, "BLPOP", "q", "0")} }()
	// Let client a register first.
	waitForBlocked(t, s, 1)
	go func() { results <- result{"b", do(t, b, "BLPOP", "q", "0")} }()
	waitForBlocked(t, s, 2)

	wantInt(t, do(t, pusher, "RPUSH", "q", "hello"), 1)

	first := <-results
	if first.who != "a" {
		t.Fatalf("first wake = %s, want a (FIFO)", first.who)
	}
	arr := first.reply.(resp.Array)
	wantBulk(t, arr[0], "q")
	wantBulk(t, arr[1], "hello")

	// The consumed list is gone.
	wantInt(t, do(t, pusher, "LLEN", "q"), 0)
	wantInt(t, do(t, pusher, "EXISTS", "q"), 0)

	wantInt(t, do(t, pusher, "RPUSH", "q", "world"), 1)
	second := <-results
	if second.who != "b" {
		t.Fatalf("second wake = %s, want b", second.who)
	}
}

func waitForBlocked(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := 0
		for _, c := range s.clients {
			if c.wait != nil {
				n++
			}
		}
		s.mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never saw %d blocked clients", want)
}

func TestBlockingPopTimeout(t *testing.T) {
	s, mock := newTestServer(t)
	c := s.NewConn()

	done := make(chan resp.Reply, 1)
	go func() { done <- do(t, c, "BLPOP", "q", "1") }()
	waitForBlocked(t, s, 1)
	// The dispatcher arms its deadline timer after releasing the
	// lock; give it a beat before advancing the clock.
	time.Sleep(50 * time.Millisecond)

	mock.Add(1100 * time.Millisecond)
	select {
	case r := <-done:
		wantNull(t, r)
	case <-time.After(2 * time.Second):
		t.Fatal("BLPOP did not time out")
	}
}

func TestBlockingInsideExecDegrades(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantSimple(t, do(t, c, "MULTI"), "OK")
	wantSimple(t, do(t, c, "BLPOP", "q", "0"), "QUEUED")
	r := do(t, c, "EXEC")
	arr := r.(resp.Array)
	wantNull(t, arr[0])
}

func TestStreamScenario(t *testing.T) {
	s, mock := newTestServer(t)
	c := s.NewConn()

	nowMs := mock.Now().UnixMilli()
	id1 := do(t, c, "XADD", "s", "*", "f", "v")
	id2 := do(t, c, "XADD", "s", "*", "f", "v")

	want1 := strconv.FormatInt(nowMs, 10) + "-0"
	want2 := strconv.FormatInt(nowMs, 10) + "-1"
	if string(id1.(resp.Bulk)) != want1 || string(id2.(resp.Bulk)) != want2 {
		t.Fatalf("ids = %s, %s; want %s, %s", id1, id2, want1, want2)
	}
	wantInt(t, do(t, c, "XLEN", "s"), 2)

	r := do(t, c, "XRANGE", "s", "-", "+")
	arr := r.(resp.Array)
	if len(arr) != 2 {
		t.Fatalf("XRANGE = %#v", r)
	}
}

// ============================================================
// Expiry
// ============================================================

func TestLazyExpiryWithClock(t *testing.T) {
	s, mock := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "SET", "k", "v", "PX", "500"), "OK")
	wantBulk(t, do(t, c, "GET", "k"), "v")

	mock.Add(499 * time.Millisecond)
	wantBulk(t, do(t, c, "GET", "k"), "v")

	mock.Add(1 * time.Millisecond)
	wantNull(t, do(t, c, "GET", "k"))
	wantInt(t, do(t, c, "EXISTS", "k"), 0)
}

func TestTTLReplies(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantInt(t, do(t, c, "TTL", "missing"), -2)
	wantSimple(t, do(t, c, "SET", "k", "v"), "OK")
	wantInt(t, do(t, c, "TTL", "k"), -1)
	wantInt(t, do(t, c, "EXPIRE", "k", "10"), 1)
	wantInt(t, do(t, c, "TTL", "k"), 10)
	wantInt(t, do(t, c, "PERSIST", "k"), 1)
	wantInt(t, do(t, c, "TTL", "k"), -1)
}

func TestSetKeepTTLAndGet(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "SET", "k", "v1", "EX", "100"), "OK")
	wantBulk(t, do(t, c, "SET", "k", "v2", "KEEPTTL", "GET"), "v1")
	ttl := do(t, c, "TTL", "k")
	if int64(ttl.(resp.Integer)) <= 0 {
		t.Fatalf("TTL lost: %#v", ttl)
	}
	// Plain SET clears the TTL.
	wantSimple(t, do(t, c, "SET", "k", "v3"), "OK")
	wantInt(t, do(t, c, "TTL", "k"), -1)
}

func TestSetComparisonGates(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	// IFEQ only writes on an exact match.
	wantSimple(t, do(t, c, "SET", "k", "a"), "OK")
	wantNull(t, do(t, c, "SET", "k", "x", "IFEQ", "b"))
	wantBulk(t, do(t, c, "GET", "k"), "a")
	wantSimple(t, do(t, c, "SET", "k", "x", "IFEQ", "a"), "OK")
	wantBulk(t, do(t, c, "GET", "k"), "x")

	// IFGT requires the new gate value to be below the stored one.
	wantSimple(t, do(t, c, "SET", "n", "m"), "OK")
	wantNull(t, do(t, c, "SET", "n", "y", "IFGT", "z"))
	wantSimple(t, do(t, c, "SET", "n", "y", "IFGT", "a"), "OK")

	// The comparison gates reject NX/XX combinations.
	wantErrPrefix(t, do(t, c, "SET", "k", "v", "NX", "IFEQ", "x"), "ERR syntax")
}

// ============================================================
// Dispatch discipline
// ============================================================

func TestUnknownCommand(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantErrPrefix(t, do(t, c, "BOGUS", "x"), "ERR unknown command 'BOGUS'")
}

func TestArityErrors(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantErrPrefix(t, do(t, c, "GET"), "ERR wrong number of arguments for 'get'")
	wantErrPrefix(t, do(t, c, "SET", "k"), "ERR wrong number of arguments for 'set'")
}

func TestWrongTypeErrors(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantInt(t, do(t, c, "ZADD", "z", "1", "a"), 1)
	wantErrPrefix(t, do(t, c, "GET", "z"), "WRONGTYPE")
	wantErrPrefix(t, do(t, c, "LPUSH", "z", "x"), "WRONGTYPE")
	wantErrPrefix(t, do(t, c, "HSET", "z", "f", "v"), "WRONGTYPE")
}

func TestSelectAndDatabaseIsolation(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantSimple(t, do(t, c, "SET", "k", "db0"), "OK")
	wantSimple(t, do(t, c, "SELECT", "1"), "OK")
	wantNull(t, do(t, c, "GET", "k"))
	wantSimple(t, do(t, c, "SET", "k", "db1"), "OK")
	wantSimple(t, do(t, c, "SELECT", "0"), "OK")
	wantBulk(t, do(t, c, "GET", "k"), "db0")

	wantErrPrefix(t, do(t, c, "SELECT", "99"), "ERR DB index is out of range")
}

func TestSubscribeModeRestriction(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "SUBSCRIBE", "news")
	wantErrPrefix(t, do(t, c, "GET", "k"), "ERR Can't execute 'get'")
	// PING stays allowed.
	r := do(t, c, "PING")
	if _, ok := r.(resp.Array); !ok {
		t.Fatalf("PING in subscribe mode = %#v, want array form", r)
	}
}

func TestPubSubDelivery(t *testing.T) {
	s, _ := newTestServer(t)
	sub := s.NewConn()
	pub := s.NewConn()

	do(t, sub, "SUBSCRIBE", "news.tech")
	do(t, sub, "PSUBSCRIBE", "news.*")

	wantInt(t, do(t, pub, "PUBLISH", "news.tech", "hello"), 2)

	pushes := sub.TakePushes()
	if len(pushes) != 2 {
		t.Fatalf("pushes = %d, want 2 (message + pmessage)", len(pushes))
	}
	msg := pushes[0].(resp.Push)
	wantBulk(t, msg[0], "message")
	wantBulk(t, msg[1], "news.tech")
	wantBulk(t, msg[2], "hello")
	pmsg := pushes[1].(resp.Push)
	wantBulk(t, pmsg[0], "pmessage")
	wantBulk(t, pmsg[1], "news.*")
}

func TestKeyspaceNotifications(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.NotifyKeyspaceEvents = "KEA"
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	s := New(cfg, WithClock(mock), WithSeed(1))
	t.Cleanup(s.Close)

	sub := s.NewConn()
	client := s.NewConn()

	do(t, sub, "SUBSCRIBE", "__keyevent@0__:expired")

	do(t, client, "SET", "k", "v", "PX", "10")
	mock.Add(20 * time.Millisecond)
	// Lazy expiry on next access emits the notification.
	wantNull(t, do(t, client, "GET", "k"))

	pushes := sub.TakePushes()
	found := false
	for _, p := range pushes {
		msg, ok := p.(resp.Push)
		if ok && len(msg) == 3 && string(msg[0].(resp.Bulk)) == "message" &&
			string(msg[2].(resp.Bulk)) == "k" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expired notification not delivered; pushes = %#v", pushes)
	}
}

func TestAuthGate(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.RequirePass = "hunter2"
	s := New(cfg, WithSeed(1))
	t.Cleanup(s.Close)
	c := s.NewConn()

	wantErrPrefix(t, do(t, c, "GET", "k"), "NOAUTH")
	wantErrPrefix(t, do(t, c, "AUTH", "wrong"), "WRONGPASS")
	wantSimple(t, do(t, c, "AUTH", "hunter2"), "OK")
	wantNull(t, do(t, c, "GET", "k"))
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "RPUSH", "src", "a", "b", "c")
	payload := do(t, c, "DUMP", "src")
	raw, ok := payload.(resp.Bulk)
	if !ok {
		t.Fatalf("DUMP = %#v", payload)
	}

	r := c.Dispatch([][]byte{[]byte("RESTORE"), []byte("dst"), []byte("0"), raw})
	wantSimple(t, r, "OK")
	arr := do(t, c, "LRANGE", "dst", "0", "-1").(resp.Array)
	if len(arr) != 3 || string(arr[0].(resp.Bulk)) != "a" {
		t.Fatalf("restored list = %#v", arr)
	}

	// Existing destination requires REPLACE.
	r = c.Dispatch([][]byte{[]byte("RESTORE"), []byte("dst"), []byte("0"), raw})
	wantErrPrefix(t, r, "BUSYKEY")
	// Corrupt payloads are rejected.
	bad := append([]byte(nil), raw...)
	bad[len(bad)/2] ^= 0xff
	r = c.Dispatch([][]byte{[]byte("RESTORE"), []byte("dst2"), []byte("0"), bad})
	wantErrPrefix(t, r, "ERR")
}

func TestScriptCache(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	// No evaluator injected: EVAL fails, but the cache still works.
	sha := do(t, c, "SCRIPT", "LOAD", "return 1")
	shaStr, ok := sha.(resp.Bulk)
	if !ok || len(shaStr) != 40 {
		t.Fatalf("SCRIPT LOAD = %#v", sha)
	}
	exists := do(t, c, "SCRIPT", "EXISTS", string(shaStr), "0000000000000000000000000000000000000000").(resp.Array)
	wantInt(t, exists[0], 1)
	wantInt(t, exists[1], 0)

	wantErrPrefix(t, do(t, c, "EVALSHA", "ffffffffffffffffffffffffffffffffffffffff", "0"), "NOSCRIPT")
}

func TestHashFieldExpiry(t *testing.T) {
	s, mock := newTestServer(t)
	c := s.NewConn()

	do(t, c, "HSET", "h", "f1", "v1", "f2", "v2")
	r := do(t, c, "HEXPIRE", "h", "1", "FIELDS", "1", "f1").(resp.Array)
	wantInt(t, r[0], 1)

	mock.Add(1500 * time.Millisecond)
	wantNull(t, do(t, c, "HGET", "h", "f1"))
	wantBulk(t, do(t, c, "HGET", "h", "f2"), "v2")
	wantInt(t, do(t, c, "HLEN", "h"), 1)
}

func TestEmptyContainersAreRemoved(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "RPUSH", "l", "x")
	do(t, c, "LPOP", "l")
	wantInt(t, do(t, c, "EXISTS", "l"), 0)

	do(t, c, "SADD", "s", "x")
	do(t, c, "SREM", "s", "x")
	wantInt(t, do(t, c, "EXISTS", "s"), 0)

	do(t, c, "HSET", "h", "f", "v")
	do(t, c, "HDEL", "h", "f")
	wantInt(t, do(t, c, "EXISTS", "h"), 0)

	do(t, c, "ZADD", "z", "1", "m")
	do(t, c, "ZREM", "z", "m")
	wantInt(t, do(t, c, "EXISTS", "z"), 0)
}

func TestScanReturnsAllKeys(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	want := map[string]bool{}
	for _, k := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		do(t, c, "SET", k, "v")
		want[k] = true
	}

	cursor := "0"
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		r := do(t, c, "SCAN", cursor, "COUNT", "2").(resp.Array)
		cursor = string(r[0].(resp.Bulk))
		for _, k := range r[1].(resp.Array) {
			seen[string(k.(resp.Bulk))] = true
		}
		if cursor == "0" {
			break
		}
	}
	if cursor != "0" {
		t.Fatal("scan never completed")
	}
	for k := range want {
		if !seen[k] {
			t.Errorf("scan missed key %q", k)
		}
	}
}

func TestIncrSemantics(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantInt(t, do(t, c, "INCR", "n"), 1)
	wantInt(t, do(t, c, "INCRBY", "n", "41"), 42)
	wantInt(t, do(t, c, "DECRBY", "n", "2"), 40)

	do(t, c, "SET", "big", "9223372036854775807")
	wantErrPrefix(t, do(t, c, "INCR", "big"), "ERR")

	wantBulk(t, do(t, c, "INCRBYFLOAT", "f", "10.5"), "10.5")
	wantBulk(t, do(t, c, "INCRBYFLOAT", "f", "0.1"), "10.6")
}

func TestSetRangeZeroPads(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	wantInt(t, do(t, c, "SETRANGE", "k", "5", "x"), 6)
	wantBulk(t, do(t, c, "GET", "k"), "\x00\x00\x00\x00\x00x")
}

func TestBitOps(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	wantInt(t, do(t, c, "SETBIT", "b", "7", "1"), 0)
	wantInt(t, do(t, c, "GETBIT", "b", "7"), 1)
	wantInt(t, do(t, c, "BITCOUNT", "b"), 1)

	do(t, c, "SET", "x", "abc")
	do(t, c, "SET", "y", "a")
	// Shorter operands zero-extend; result length is the max.
	wantInt(t, do(t, c, "BITOP", "AND", "dest", "x", "y"), 3)
	wantBulk(t, do(t, c, "GET", "dest"), "a\x00\x00")

	// Empty inputs delete the destination.
	wantInt(t, do(t, c, "BITOP", "AND", "dest", "missing1", "missing2"), 0)
	wantInt(t, do(t, c, "EXISTS", "dest"), 0)
}

func TestRandomCommandsAreSeeded(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "SADD", "s", "a", "b", "c")
	if r := do(t, c, "SRANDMEMBER", "s"); r == nil {
		t.Fatal("SRANDMEMBER returned nil reply")
	}
	// Negative count may repeat; positive count is distinct.
	arr := do(t, c, "SRANDMEMBER", "s", "5").(resp.Array)
	if len(arr) != 3 {
		t.Fatalf("positive count drew %d, want 3 distinct", len(arr))
	}
	arr = do(t, c, "SRANDMEMBER", "s", "-5").(resp.Array)
	if len(arr) != 5 {
		t.Fatalf("negative count drew %d, want 5", len(arr))
	}
}

func TestFlushDBAndSize(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()
	do(t, c, "SET", "a", "1")
	do(t, c, "SET", "b", "2")
	wantInt(t, do(t, c, "DBSIZE"), 2)
	wantSimple(t, do(t, c, "FLUSHDB", "ASYNC"), "OK")
	wantInt(t, do(t, c, "DBSIZE"), 0)
}

func TestStreamGroupFlow(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "XADD", "st", "1-1", "k", "v1")
	do(t, c, "XADD", "st", "2-1", "k", "v2")
	wantSimple(t, do(t, c, "XGROUP", "CREATE", "st", "g", "0"), "OK")

	r := do(t, c, "XREADGROUP", "GROUP", "g", "c1", "COUNT", "10", "STREAMS", "st", ">")
	arr := r.(resp.Array)
	if len(arr) != 1 {
		t.Fatalf("XREADGROUP = %#v", r)
	}
	stream := arr[0].(resp.Array)
	entries := stream[1].(resp.Array)
	if len(entries) != 2 {
		t.Fatalf("delivered %d entries, want 2", len(entries))
	}

	pending := do(t, c, "XPENDING", "st", "g").(resp.Array)
	wantInt(t, pending[0], 2)

	wantInt(t, do(t, c, "XACK", "st", "g", "1-1"), 1)
	pending = do(t, c, "XPENDING", "st", "g").(resp.Array)
	wantInt(t, pending[0], 1)
}

func TestRESETClearsState(t *testing.T) {
	s, _ := newTestServer(t)
	c := s.NewConn()

	do(t, c, "SELECT", "2")
	do(t, c, "MULTI")

	wantSimple(t, do(t, c, "RESET"), "RESET")
	// Back on db 0 and out of MULTI.
	wantErrPrefix(t, do(t, c, "EXEC"), "ERR EXEC without MULTI")
	wantSimple(t, do(t, c, "SET", "k", "v"), "OK")
	wantBulk(t, do(t, c, "GET", "k"), "v")
}
