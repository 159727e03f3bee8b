package server

import (
	"time"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
)

// The blocking coordinator keeps a FIFO of waiters per (db, key).
// A waiter carries a consume callback that, run under the server
// lock, either takes what it needs from the key and returns the
// final reply, or declines. Mutators drive wakeups: after a write,
// the dispatcher evaluates the modified key's waiters in FIFO order
// and completes every one whose consume succeeds. Timeouts post the
// command's empty reply instead.

type waiter struct {
	conn *Conn
	keys []dbKey
	seq  uint64

	// consume attempts to satisfy the wait against one key. It runs
	// under the server lock and returns the final reply on success.
	consume func(d *db.DB, key string, now int64) (resp.Reply, bool)

	// onTimeout is the reply for an elapsed deadline or cancellation.
	onTimeout resp.Reply

	timeout time.Duration // 0 means wait forever

	ch   chan resp.Reply
	done bool
}

// block registers a waiter for the current command. The handler
// returns nil afterwards; the dispatcher parks the connection until
// a mutator or the deadline completes the wait. Runs under the lock.
func (s *Server) block(c *Conn, keys []string, timeout time.Duration, onTimeout resp.Reply,
	consume func(d *db.DB, key string, now int64) (resp.Reply, bool)) {

	s.waiterSeq++
	w := &waiter{
		conn:      c,
		seq:       s.waiterSeq,
		consume:   consume,
		onTimeout: onTimeout,
		timeout:   timeout,
		ch:        make(chan resp.Reply, 1),
	}
	for _, k := range keys {
		dk := dbKey{db: c.db, key: k}
		w.keys = append(w.keys, dk)
		s.waiters[dk] = append(s.waiters[dk], w)
	}
	c.wait = w
	s.metrics.ClientBlocked(1)
}

// removeWaiter unlinks w from every key list. Runs under the lock.
func (s *Server) removeWaiter(w *waiter) {
	if w.done {
		return
	}
	w.done = true
	for _, dk := range w.keys {
		list := s.waiters[dk]
		for i, other := range list {
			if other == w {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(s.waiters, dk)
		} else {
			s.waiters[dk] = list
		}
	}
	s.metrics.ClientBlocked(-1)
}

// wakeKey offers one key to its waiters, earliest registered first.
// A waiter whose consume callback declines stays queued and the next
// one is tried; every waiter whose callback succeeds is completed.
// Runs under the lock, inside the mutator's turn on the executor.
func (s *Server) wakeKey(dbIdx int, key string) {
	dk := dbKey{db: dbIdx, key: key}
	d := s.dbs[dbIdx]
	tried := make(map[*waiter]bool)
	for {
		var w *waiter
		for _, cand := range s.waiters[dk] {
			if !tried[cand] {
				w = cand
				break
			}
		}
		if w == nil {
			return
		}
		tried[w] = true
		now := s.clock.Now().UnixMilli()
		reply, ok := w.consume(d, key, now)
		if !ok {
			continue
		}
		s.removeWaiter(w)
		w.conn.wait = nil
		w.ch <- reply
	}
}

// awaitWaiter parks the calling goroutine on w. The server lock is
// NOT held. Returns the final reply.
func (s *Server) awaitWaiter(c *Conn, w *waiter) resp.Reply {
	var timerC <-chan time.Time
	if w.timeout > 0 {
		t := s.clock.Timer(w.timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case reply := <-w.ch:
		return reply
	case <-timerC:
		return s.cancelWait(c, w, w.onTimeout)
	case <-c.closedCh:
		return s.cancelWait(c, w, w.onTimeout)
	}
}

// cancelWait removes the waiter if a mutator has not completed it in
// the meantime; the race is resolved under the lock.
func (s *Server) cancelWait(c *Conn, w *waiter, fallback resp.Reply) resp.Reply {
	s.mu.Lock()
	if w.done {
		s.mu.Unlock()
		// A completion crossed the deadline; honor it.
		return <-w.ch
	}
	s.removeWaiter(w)
	c.wait = nil
	s.mu.Unlock()
	return fallback
}

// UnblockClient cancels a blocked client's wait, as CLIENT UNPAUSE
// and RESET do. Returns whether a wait was cancelled.
func (s *Server) UnblockClient(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UnblockClientLocked(id)
}
