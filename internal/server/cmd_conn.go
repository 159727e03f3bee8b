package server

import (
	"sort"
	"strconv"
	"strings"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Connection-level commands: PING, ECHO, SELECT, AUTH, HELLO, QUIT,
// RESET and the CLIENT subcommands.

func init() {
	register("PING", -1, flagPubSubOK, cmdPing)
	register("ECHO", 2, 0, cmdEcho)
	register("SELECT", 2, 0, cmdSelect)
	register("AUTH", -2, flagNoAuth|flagPubSubOK, cmdAuth)
	register("HELLO", -1, flagNoAuth, cmdHello)
	register("QUIT", 1, flagNoAuth|flagPubSubOK, cmdQuit)
	register("RESET", 1, flagNoAuth|flagPubSubOK, cmdReset)
	register("CLIENT", -2, 0, cmdClient)
	register("COMMAND", -1, 0, cmdCommand)
	register("LOLWUT", -1, 0, cmdLolwut)
}

func cmdPing(s *Server, c *Conn, args [][]byte) resp.Reply {
	// Subscribed connections get the array form, matching the
	// reference server's push framing.
	if c.inSubscribeMode() {
		msg := []byte("")
		if len(args) > 1 {
			msg = args[1]
		}
		return resp.Array{resp.BulkString("pong"), resp.Bulk(msg)}
	}
	switch len(args) {
	case 1:
		return resp.Simple("PONG")
	case 2:
		return resp.Bulk(args[1])
	default:
		return errWrongArity("ping")
	}
}

func cmdEcho(_ *Server, _ *Conn, args [][]byte) resp.Reply {
	return resp.Bulk(args[1])
}

func cmdSelect(s *Server, c *Conn, args [][]byte) resp.Reply {
	idx, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return resp.Error(msgNotInt)
	}
	if idx < 0 || idx >= len(s.dbs) {
		return resp.Error(msgDBIndex)
	}
	c.db = idx
	return resp.OK
}

func cmdAuth(s *Server, c *Conn, args [][]byte) resp.Reply {
	var pass string
	switch len(args) {
	case 2:
		pass = string(args[1])
	case 3:
		// Username form; only the default user exists.
		if string(args[1]) != "default" {
			return resp.Error(msgWrongPass)
		}
		pass = string(args[2])
	default:
		return errWrongArity("auth")
	}
	if s.cfg.RequirePass == "" {
		return resp.Error(msgNoPass)
	}
	if pass != s.cfg.RequirePass {
		return resp.Error(msgWrongPass)
	}
	c.authed = true
	return resp.OK
}

func cmdHello(s *Server, c *Conn, args [][]byte) resp.Reply {
	proto := c.proto
	i := 1
	if i < len(args) {
		p, err := strconv.Atoi(string(args[i]))
		if err != nil {
			return resp.Error("NOPROTO unsupported protocol version")
		}
		if p != 2 && p != 3 {
			return resp.Error("NOPROTO unsupported protocol version")
		}
		proto = p
		i++
	}
	for i < len(args) {
		switch argUpper(args[i]) {
		case "AUTH":
			if i+2 >= len(args) {
				return errWrongArity("hello")
			}
			if r := cmdAuth(s, c, [][]byte{[]byte("AUTH"), args[i+1], args[i+2]}); r != resp.OK {
				return r
			}
			i += 3
		case "SETNAME":
			if i+1 >= len(args) {
				return errWrongArity("hello")
			}
			c.name = string(args[i+1])
			i += 2
		default:
			return resp.Error(msgSyntax)
		}
	}
	if !c.authed {
		return resp.Error(msgNoAuth)
	}
	c.proto = proto
	return resp.Map{
		resp.BulkString("server"), resp.BulkString("redis"),
		resp.BulkString("version"), resp.BulkString(s.versionString()),
		resp.BulkString("proto"), resp.Integer(proto),
		resp.BulkString("id"), resp.Integer(int64(c.id)),
		resp.BulkString("mode"), resp.BulkString("standalone"),
		resp.BulkString("role"), resp.BulkString("master"),
		resp.BulkString("modules"), resp.Array{},
	}
}

func cmdQuit(_ *Server, c *Conn, _ [][]byte) resp.Reply {
	// The session layer closes connection and transport after the
	// reply has been written.
	c.quit = true
	return resp.OK
}

func cmdReset(s *Server, c *Conn, _ [][]byte) resp.Reply {
	c.resetTxLocked()
	for ch := range c.subs {
		s.reg.Unsubscribe(c.id, ch)
	}
	for p := range c.psubs {
		s.reg.PUnsubscribe(c.id, p)
	}
	for ch := range c.ssubs {
		s.reg.SUnsubscribe(c.id, ch)
	}
	c.subs = make(map[string]struct{})
	c.psubs = make(map[string]struct{})
	c.ssubs = make(map[string]struct{})
	c.db = 0
	c.name = ""
	c.authed = s.cfg.RequirePass == ""
	return resp.Simple("RESET")
}

func cmdClient(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "ID":
		return resp.Integer(int64(c.id))
	case "GETNAME":
		return resp.BulkString(c.name)
	case "SETNAME":
		if len(args) != 3 {
			return errWrongArity("client|setname")
		}
		name := string(args[2])
		if strings.ContainsAny(name, " \n") {
			return resp.Error("ERR Client names cannot contain spaces, newlines or special characters.")
		}
		c.name = name
		return resp.OK
	case "LIST":
		var b strings.Builder
		for _, other := range s.clientsSorted() {
			b.WriteString("id=" + strconv.FormatUint(other.id, 10))
			b.WriteString(" addr=" + other.addr)
			b.WriteString(" name=" + other.name)
			b.WriteString(" db=" + strconv.Itoa(other.db))
			b.WriteString(" resp=" + strconv.Itoa(other.proto))
			b.WriteString("\n")
		}
		return resp.BulkString(b.String())
	case "KILL":
		return cmdClientKill(s, c, args[2:])
	case "UNPAUSE":
		for id := range s.clients {
			s.UnblockClientLocked(id)
		}
		return resp.OK
	case "NO-EVICT", "NO-TOUCH":
		if len(args) != 3 {
			return errWrongArity("client|" + strings.ToLower(sub))
		}
		switch argUpper(args[2]) {
		case "ON", "OFF":
			return resp.OK
		}
		return resp.Error(msgSyntax)
	case "INFO":
		return resp.BulkString("id=" + strconv.FormatUint(c.id, 10) +
			" addr=" + c.addr + " name=" + c.name +
			" db=" + strconv.Itoa(c.db) + " resp=" + strconv.Itoa(c.proto))
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "CLIENT")
	}
}

func cmdClientKill(s *Server, c *Conn, args [][]byte) resp.Reply {
	if len(args) == 0 {
		return errWrongArity("client|kill")
	}
	// Filter form: ID <id> / ADDR <addr> / LADDR etc. Only ID and
	// ADDR are meaningful here.
	var target *Conn
	if len(args) == 1 {
		addr := string(args[0])
		for _, other := range s.clients {
			if other.addr == addr {
				target = other
				break
			}
		}
		if target == nil {
			return resp.Error("ERR No such client address in the client list")
		}
		go target.Close()
		return resp.OK
	}
	killed := 0
	for i := 0; i+1 < len(args); i += 2 {
		switch argUpper(args[i]) {
		case "ID":
			id, err := strconv.ParseUint(string(args[i+1]), 10, 64)
			if err != nil {
				return resp.Error(msgNotInt)
			}
			if other, ok := s.clients[id]; ok {
				go other.Close()
				killed++
			}
		case "ADDR":
			addr := string(args[i+1])
			for _, other := range s.clients {
				if other.addr == addr {
					go other.Close()
					killed++
				}
			}
		case "LADDR", "TYPE", "USER", "SKIPME", "MAXAGE":
			// Accepted, not used for matching beyond the above.
		default:
			return resp.Error(msgSyntax)
		}
	}
	return resp.Integer(int64(killed))
}

// UnblockClientLocked cancels a wait with the lock already held.
func (s *Server) UnblockClientLocked(id uint64) bool {
	c, ok := s.clients[id]
	if !ok || c.wait == nil {
		return false
	}
	w := c.wait
	s.removeWaiter(w)
	c.wait = nil
	w.ch <- w.onTimeout
	return true
}

func (s *Server) clientsSorted() []*Conn {
	out := make([]*Conn, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func cmdCommand(s *Server, _ *Conn, args [][]byte) resp.Reply {
	if len(args) >= 2 && argUpper(args[1]) == "COUNT" {
		return resp.Integer(int64(len(commandTable)))
	}
	if len(args) >= 2 && argUpper(args[1]) == "DOCS" {
		return resp.Map{}
	}
	out := make(resp.Array, 0, len(commandTable))
	for name, cmd := range commandTable {
		out = append(out, resp.Array{
			resp.BulkString(strings.ToLower(name)),
			resp.Integer(int64(cmd.arity)),
		})
	}
	return out
}

func cmdLolwut(s *Server, _ *Conn, _ [][]byte) resp.Reply {
	return resp.BulkString("Redis ver. " + s.versionString() + "\n")
}
