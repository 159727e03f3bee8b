package server

import (
	"sync"

	"github.com/yndnr/redsim-go/internal/resp"
)

// txState is the transaction state of a connection.
type txState uint8

const (
	txNone txState = iota
	txQueuing
	txAborted
)

// watchKey identifies a watched key and the version seen at WATCH.
type watchKey struct {
	db  int
	key string
}

// Conn is per-client state: selected database, authentication,
// protocol version, transaction queue, watch set, subscriptions and
// blocking descriptor. A Conn is bound to one Server.
type Conn struct {
	srv *Server

	id   uint64
	name string
	addr string

	db     int
	proto  int
	authed bool

	tx      txState
	queue   [][][]byte
	watched map[watchKey]uint64

	subs  map[string]struct{}
	psubs map[string]struct{}
	ssubs map[string]struct{}

	// now is the clock reading taken once per dispatched command.
	now int64

	// inExec marks execution inside EXEC or a script, where blocking
	// commands degrade to their non-blocking form.
	inExec bool

	// quit is set by QUIT; the session closes after the reply.
	quit bool

	// wait is the registered waiter when the current command blocked.
	wait *waiter

	pushMu   sync.Mutex
	pushQ    []resp.Reply
	pushCond chan struct{}

	closeMu  sync.Mutex
	closed   bool
	closedCh chan struct{}
}

// NewConn creates a connection handle bound to the server.
func (s *Server) NewConn() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &Conn{
		srv:      s,
		id:       s.nextID,
		proto:    s.cfg.ProtocolVersion,
		authed:   s.cfg.RequirePass == "",
		watched:  make(map[watchKey]uint64),
		subs:     make(map[string]struct{}),
		psubs:    make(map[string]struct{}),
		ssubs:    make(map[string]struct{}),
		pushCond: make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
	s.clients[c.id] = c
	s.metrics.ClientConnected(1)
	return c
}

// ID returns the client id.
func (c *Conn) ID() uint64 { return c.id }

// Name returns the client name set by CLIENT SETNAME.
func (c *Conn) Name() string {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.name
}

// SetAddr records the remote address reported by CLIENT LIST.
func (c *Conn) SetAddr(addr string) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.addr = addr
}

// Proto returns the connection's protocol version.
func (c *Conn) Proto() int {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.proto
}

// Close tears the connection down: waiters are cancelled, the
// transaction discarded, subscriptions dropped.
func (c *Conn) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closedCh)
	c.closeMu.Unlock()

	s := c.srv
	s.mu.Lock()
	if w := c.wait; w != nil {
		s.removeWaiter(w)
		c.wait = nil
		// Post the empty reply so the parked dispatcher returns.
		w.ch <- w.onTimeout
	}
	c.resetTxLocked()
	s.reg.Drop(c.id)
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.metrics.ClientConnected(-1)
}

// Closed reports whether the connection was torn down.
func (c *Conn) Closed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// ClosedCh is closed when the connection closes.
func (c *Conn) ClosedCh() <-chan struct{} { return c.closedCh }

// QuitRequested reports whether QUIT was executed on this connection.
func (c *Conn) QuitRequested() bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.quit
}

// resetTxLocked clears transaction state; the server lock is held.
func (c *Conn) resetTxLocked() {
	c.tx = txNone
	c.queue = nil
	c.watched = make(map[watchKey]uint64)
}

// subscriptionCount is the count reported by subscribe replies.
func (c *Conn) subscriptionCount() int {
	return len(c.subs) + len(c.psubs)
}

// inSubscribeMode reports whether the RESP2 subscriber command
// restriction applies.
func (c *Conn) inSubscribeMode() bool {
	return c.proto == 2 && (len(c.subs) > 0 || len(c.psubs) > 0 || len(c.ssubs) > 0)
}

// ============================================================
// Push mailbox
// ============================================================

// enqueuePush appends an out-of-band message for this connection.
func (c *Conn) enqueuePush(r resp.Reply) {
	c.pushMu.Lock()
	c.pushQ = append(c.pushQ, r)
	c.pushMu.Unlock()
	select {
	case c.pushCond <- struct{}{}:
	default:
	}
}

// TakePushes drains the mailbox.
func (c *Conn) TakePushes() []resp.Reply {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	out := c.pushQ
	c.pushQ = nil
	return out
}

// PushSignal receives a token whenever the mailbox becomes non-empty.
func (c *Conn) PushSignal() <-chan struct{} { return c.pushCond }
