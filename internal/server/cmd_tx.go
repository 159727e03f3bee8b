package server

import (
	"github.com/yndnr/redsim-go/internal/resp"
)

// Transaction commands: MULTI queue, WATCH versions, atomic EXEC.

func init() {
	register("MULTI", 1, 0, cmdMulti)
	register("EXEC", 1, 0, cmdExec)
	register("DISCARD", 1, 0, cmdDiscard)
	register("WATCH", -2, 0, cmdWatch)
	register("UNWATCH", 1, 0, cmdUnwatch)
}

func cmdMulti(_ *Server, c *Conn, _ [][]byte) resp.Reply {
	if c.tx != txNone {
		return resp.Error(msgNestedMulti)
	}
	c.tx = txQueuing
	return resp.OK
}

func cmdDiscard(_ *Server, c *Conn, _ [][]byte) resp.Reply {
	if c.tx == txNone {
		return resp.Error(msgNoMultiDisc)
	}
	c.resetTxLocked()
	return resp.OK
}

func cmdWatch(s *Server, c *Conn, args [][]byte) resp.Reply {
	if c.tx != txNone {
		return resp.Error(msgWatchInMulti)
	}
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}
	for _, key := range keys {
		wk := watchKey{db: c.db, key: key}
		if _, ok := c.watched[wk]; !ok {
			c.watched[wk] = s.dbs[c.db].Version(key)
		}
	}
	return resp.OK
}

func cmdUnwatch(_ *Server, c *Conn, _ [][]byte) resp.Reply {
	c.watched = make(map[watchKey]uint64)
	return resp.OK
}

func cmdExec(s *Server, c *Conn, _ [][]byte) resp.Reply {
	switch c.tx {
	case txNone:
		return resp.Error(msgNoMulti)
	case txAborted:
		c.resetTxLocked()
		return resp.Error(msgExecAbort)
	}

	// Optimistic concurrency: any watched key whose version moved
	// since WATCH discards the whole transaction.
	for wk, seen := range c.watched {
		if s.dbs[wk.db].Version(wk.key) != seen {
			c.resetTxLocked()
			return resp.NullArray{}
		}
	}

	queue := c.queue
	c.resetTxLocked()

	out := make(resp.Array, 0, len(queue))
	for _, queued := range queue {
		out = append(out, s.execQueued(c, queued))
	}
	return out
}
