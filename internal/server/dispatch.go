package server

import (
	"fmt"
	"strings"

	"github.com/yndnr/redsim-go/internal/resp"
)

// handlerFunc executes one command under the executor lock. args
// includes the command name at index 0.
type handlerFunc func(s *Server, c *Conn, args [][]byte) resp.Reply

// cmdFlags classify commands for dispatch decisions.
type cmdFlags uint8

const (
	// flagWrite marks commands that may modify the keyspace.
	flagWrite cmdFlags = 1 << iota
	// flagPubSubOK marks commands allowed while subscribed (RESP2).
	flagPubSubOK
	// flagNoAuth marks commands allowed before authentication.
	flagNoAuth
	// flagBlocking marks commands that may suspend the connection.
	flagBlocking
)

// command is one entry in the dispatch table.
type command struct {
	name string
	// arity follows the reference convention: positive means exact
	// argument count including the name, negative means a minimum.
	arity int
	flags cmdFlags
	fn    handlerFunc
}

var commandTable = make(map[string]*command)

// register installs a command; called from init functions in the
// per-family files.
func register(name string, arity int, flags cmdFlags, fn handlerFunc) {
	name = strings.ToUpper(name)
	if _, dup := commandTable[name]; dup {
		panic(fmt.Sprintf("duplicate command registration: %s", name))
	}
	commandTable[name] = &command{name: name, arity: arity, flags: flags, fn: fn}
}

func lookupCommand(name string) *command {
	return commandTable[strings.ToUpper(name)]
}

func checkArity(cmd *command, args [][]byte) bool {
	if cmd.arity >= 0 {
		return len(args) == cmd.arity
	}
	return len(args) >= -cmd.arity
}

// queueExempt lists the commands executed immediately even while the
// connection is queuing a transaction.
var queueExempt = map[string]bool{
	"EXEC": true, "DISCARD": true, "MULTI": true,
	"WATCH": true, "UNWATCH": true, "RESET": true,
}

// Dispatch parses, validates and executes one command for c,
// returning the reply. Blocking commands suspend the calling
// goroutine until satisfied, timed out or cancelled.
func (c *Conn) Dispatch(args [][]byte) resp.Reply {
	s := c.srv
	if len(args) == 0 || len(args[0]) == 0 {
		return resp.Error("ERR empty command")
	}
	name := strings.ToUpper(string(args[0]))

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		s.metrics.Command(name, "err")
		return resp.Error(msgNotConnected)
	}

	cmd := lookupCommand(name)
	if cmd == nil {
		if c.tx == txQueuing {
			c.tx = txAborted
		}
		s.mu.Unlock()
		s.metrics.Command(name, "err")
		return errUnknownCommand(name, args[1:])
	}

	// Authentication gate.
	if !c.authed && cmd.flags&flagNoAuth == 0 {
		s.mu.Unlock()
		s.metrics.Command(name, "err")
		return resp.Error(msgNoAuth)
	}

	// Subscriber-mode restriction (protocol 2 only).
	if c.inSubscribeMode() && cmd.flags&flagPubSubOK == 0 {
		s.mu.Unlock()
		s.metrics.Command(name, "err")
		return resp.Error(fmt.Sprintf(msgSubscribeCtx, strings.ToLower(name)))
	}

	// Transaction queuing: validate syntactically, then stash.
	if c.tx != txNone && !queueExempt[name] {
		if !checkArity(cmd, args) {
			c.tx = txAborted
			s.mu.Unlock()
			s.metrics.Command(name, "err")
			return errWrongArity(name)
		}
		if c.tx == txQueuing {
			queued := make([][]byte, len(args))
			for i, a := range args {
				queued[i] = append([]byte(nil), a...)
			}
			c.queue = append(c.queue, queued)
		}
		s.mu.Unlock()
		s.metrics.Command(name, "ok")
		return resp.Simple("QUEUED")
	}

	if !checkArity(cmd, args) {
		s.mu.Unlock()
		s.metrics.Command(name, "err")
		return errWrongArity(name)
	}

	reply := s.executeLocked(cmd, c, args)

	// A nil reply with a registered waiter means the command blocked.
	w := c.wait
	s.mu.Unlock()

	if reply == nil && w != nil {
		reply = s.awaitWaiter(c, w)
	}
	if _, isErr := reply.(resp.Error); isErr {
		s.metrics.Command(name, "err")
	} else {
		s.metrics.Command(name, "ok")
	}
	return reply
}

// executeLocked runs a command handler under the lock, stamping the
// per-command clock reading first.
func (s *Server) executeLocked(cmd *command, c *Conn, args [][]byte) resp.Reply {
	c.now = s.clock.Now().UnixMilli()
	s.cmdCount++
	return cmd.fn(s, c, args)
}

// execQueued runs one queued command during EXEC. Blocking commands
// observe inExec and degrade to their non-blocking form.
func (s *Server) execQueued(c *Conn, args [][]byte) resp.Reply {
	name := strings.ToUpper(string(args[0]))
	cmd := lookupCommand(name)
	if cmd == nil {
		return errUnknownCommand(name, args[1:])
	}
	c.inExec = true
	defer func() { c.inExec = false }()
	reply := s.executeLocked(cmd, c, args)
	if reply == nil {
		// A blocking command that found nothing; inside EXEC that is
		// its empty reply.
		if c.wait != nil {
			s.removeWaiter(c.wait)
			fallback := c.wait.onTimeout
			c.wait = nil
			return fallback
		}
		return resp.NullArray{}
	}
	return reply
}
