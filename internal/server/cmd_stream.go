package server

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// Stream commands: append, range, trim, consumer groups and the
// pending-entries machinery.

func init() {
	register("XADD", -5, flagWrite, cmdXAdd)
	register("XLEN", 2, 0, cmdXLen)
	register("XRANGE", -4, 0, cmdXRange)
	register("XREVRANGE", -4, 0, cmdXRevRange)
	register("XDEL", -3, flagWrite, cmdXDel)
	register("XTRIM", -4, flagWrite, cmdXTrim)
	register("XREAD", -4, flagBlocking, cmdXRead)
	register("XGROUP", -2, flagWrite, cmdXGroup)
	register("XREADGROUP", -7, flagWrite|flagBlocking, cmdXReadGroup)
	register("XACK", -4, flagWrite, cmdXAck)
	register("XPENDING", -3, 0, cmdXPending)
	register("XCLAIM", -6, flagWrite, cmdXClaim)
	register("XAUTOCLAIM", -7, flagWrite, cmdXAutoClaim)
	register("XSETID", -3, flagWrite, cmdXSetID)
	register("XINFO", -2, 0, cmdXInfo)
}

func entryReply(e value.StreamEntry) resp.Reply {
	fields := resp.Array{}
	for _, f := range e.Fields {
		fields = append(fields, resp.Bulk(f))
	}
	return resp.Array{resp.BulkString(e.ID.String()), fields}
}

func entriesReply(entries []value.StreamEntry) resp.Array {
	out := resp.Array{}
	for _, e := range entries {
		out = append(out, entryReply(e))
	}
	return out
}

// parseTrim parses MAXLEN/MINID with optional ~ or = and LIMIT.
type trimSpec struct {
	maxLen  int64
	minID   value.StreamID
	byMinID bool
	set     bool
}

func parseTrim(args [][]byte, i int) (trimSpec, int, resp.Reply) {
	var t trimSpec
	switch argUpper(args[i]) {
	case "MAXLEN", "MINID":
		t.byMinID = argUpper(args[i]) == "MINID"
	default:
		return t, i, nil
	}
	i++
	if i < len(args) && (string(args[i]) == "~" || string(args[i]) == "=") {
		// Approximate trimming is performed exactly; the reference
		// permits trimming more precisely than requested.
		i++
	}
	if i >= len(args) {
		return t, i, resp.Error(msgSyntax)
	}
	if t.byMinID {
		id, _, err := value.ParseRangeID(string(args[i]), true)
		if err != nil {
			return t, i, resp.Error("ERR " + err.Error())
		}
		t.minID = id
	} else {
		n, err := value.ParseInt(args[i])
		if err != nil {
			return t, i, resp.Error(msgNotInt)
		}
		t.maxLen = n
	}
	t.set = true
	i++
	if i+1 < len(args) && argUpper(args[i]) == "LIMIT" {
		if _, err := value.ParseInt(args[i+1]); err != nil {
			return t, i, resp.Error(msgNotInt)
		}
		i += 2
	}
	return t, i, nil
}

func (s *Server) applyTrim(c *Conn, key string, v *value.Value, t trimSpec) int64 {
	if !t.set {
		return 0
	}
	var n int64
	if t.byMinID {
		n = v.Stream.TrimMinID(t.minID)
	} else {
		n = v.Stream.TrimMaxLen(t.maxLen)
	}
	if n > 0 {
		s.writeEffect(c.db, key, classStream, "xtrim")
	}
	return n
}

func cmdXAdd(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	i := 2
	noMkStream := false
	if argUpper(args[i]) == "NOMKSTREAM" {
		noMkStream = true
		i++
	}
	trim, i, errReply := parseTrim(args, i)
	if errReply != nil {
		return errReply
	}
	if i >= len(args) {
		return errWrongArity("xadd")
	}
	idArg := string(args[i])
	i++
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return errWrongArity("xadd")
	}

	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if noMkStream {
			return resp.NullArray{}
		}
		v = value.NewStream()
		s.dbOf(c).SetKeepTTL(key, v)
	}

	id, err := v.Stream.NextID(idArg, c.now)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	fields := make([][]byte, len(rest))
	for j, f := range rest {
		fields[j] = append([]byte(nil), f...)
	}
	v.Stream.Add(id, fields)
	s.applyTrim(c, key, v, trim)
	s.keyModified(c.db, key, classStream, "xadd")
	return resp.BulkString(id.String())
}

func cmdXLen(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(v.Stream.Len()))
}

func xRange(s *Server, c *Conn, args [][]byte, rev bool) resp.Reply {
	loArg, hiArg := string(args[2]), string(args[3])
	if rev {
		loArg, hiArg = hiArg, loArg
	}
	start, startExcl, err := value.ParseRangeID(loArg, true)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	stop, stopExcl, err := value.ParseRangeID(hiArg, false)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	count := 0
	if len(args) >= 6 {
		if argUpper(args[4]) != "COUNT" {
			return resp.Error(msgSyntax)
		}
		n, err := value.ParseInt(args[5])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		count = int(n)
	} else if len(args) == 5 {
		return resp.Error(msgSyntax)
	}

	v, errReply := s.lookup(c, string(args[1]), value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	var entries []value.StreamEntry
	if rev {
		// Collect the window then reverse; count applies after
		// reversal so it takes the newest entries.
		all := v.Stream.Range(start, stop, startExcl, stopExcl, 0)
		for i := len(all) - 1; i >= 0; i-- {
			entries = append(entries, all[i])
			if count > 0 && len(entries) >= count {
				break
			}
		}
	} else {
		entries = v.Stream.Range(start, stop, startExcl, stopExcl, count)
	}
	return entriesReply(entries)
}

func cmdXRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	return xRange(s, c, args, false)
}

func cmdXRevRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	return xRange(s, c, args, true)
}

func cmdXDel(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	ids := make([]value.StreamID, 0, len(args)-2)
	for _, a := range args[2:] {
		id, err := value.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Error("ERR " + err.Error())
		}
		ids = append(ids, id)
	}
	n := v.Stream.Delete(ids)
	if n > 0 {
		s.writeEffect(c.db, key, classStream, "xdel")
	}
	return resp.Integer(int64(n))
}

func cmdXTrim(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	trim, i, errReply := parseTrim(args, 2)
	if errReply != nil {
		return errReply
	}
	if !trim.set || i != len(args) {
		return resp.Error(msgSyntax)
	}
	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(s.applyTrim(c, key, v, trim))
}

// xReadReply builds the per-protocol reply shape for XREAD and
// XREADGROUP: a map in RESP3, an array of pairs in RESP2.
func xReadReply(c *Conn, names []string, perStream []resp.Array) resp.Reply {
	if c.proto == 3 {
		out := resp.Map{}
		for i, name := range names {
			out = append(out, resp.BulkString(name), perStream[i])
		}
		return out
	}
	out := resp.Array{}
	for i, name := range names {
		out = append(out, resp.Array{resp.BulkString(name), perStream[i]})
	}
	return out
}

func cmdXRead(s *Server, c *Conn, args [][]byte) resp.Reply {
	count := 0
	blockMs := int64(-1)
	i := 1
	for i < len(args) {
		switch argUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			count = int(n)
			i += 2
		case "BLOCK":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil || n < 0 {
				return resp.Error(msgTimeoutFloat)
			}
			blockMs = n
			i += 2
		case "STREAMS":
			i++
			goto streams
		default:
			return resp.Error(msgSyntax)
		}
	}
	return resp.Error(msgSyntax)

streams:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.Error("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	n := len(rest) / 2
	keys := make([]string, n)
	afters := make([]value.StreamID, n)
	for j := 0; j < n; j++ {
		keys[j] = string(rest[j])
		idArg := string(rest[n+j])
		if idArg == "$" {
			// Latest id at call time; only future entries match.
			if v, ok := s.dbOf(c).Get(keys[j], c.now); ok && v.Kind == value.KindStream {
				afters[j] = v.Stream.LastID
			}
			continue
		}
		id, err := value.ParseStreamID(idArg, 0)
		if err != nil {
			return resp.Error("ERR " + err.Error())
		}
		afters[j] = id
	}

	collect := func(now int64) ([]string, []resp.Array) {
		var names []string
		var streams []resp.Array
		for j, key := range keys {
			v, ok := s.dbOf(c).Get(key, now)
			if !ok || v.Kind != value.KindStream {
				continue
			}
			entries := v.Stream.After(afters[j], count)
			if len(entries) == 0 {
				continue
			}
			names = append(names, key)
			streams = append(streams, entriesReply(entries))
		}
		return names, streams
	}

	if names, streams := collect(c.now); len(names) > 0 {
		return xReadReply(c, names, streams)
	}
	if blockMs < 0 || c.inExec {
		return resp.NullArray{}
	}
	s.block(c, keys, msToDuration(blockMs), resp.NullArray{}, func(d *db.DB, key string, now int64) (resp.Reply, bool) {
		names, streams := collect(now)
		if len(names) == 0 {
			return nil, false
		}
		return xReadReply(c, names, streams), true
	})
	return nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func cmdXGroup(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "CREATE":
		if len(args) < 5 {
			return errWrongArity("xgroup")
		}
		key, group, startArg := string(args[2]), string(args[3]), string(args[4])
		mkStream := len(args) == 6 && argUpper(args[5]) == "MKSTREAM"
		v, errReply := s.lookup(c, key, value.KindStream)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			if !mkStream {
				return resp.Error("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
			}
			v = value.NewStream()
			s.dbOf(c).SetKeepTTL(key, v)
		}
		var start value.StreamID
		if startArg == "$" {
			start = v.Stream.LastID
		} else {
			id, err := value.ParseStreamID(startArg, 0)
			if err != nil {
				return resp.Error("ERR " + err.Error())
			}
			start = id
		}
		if err := v.Stream.CreateGroup(group, start); err != nil {
			return resp.Error(err.Error())
		}
		s.writeEffect(c.db, key, classStream, "xgroup-create")
		return resp.OK
	case "DESTROY":
		if len(args) != 4 {
			return errWrongArity("xgroup")
		}
		key, group := string(args[2]), string(args[3])
		v, errReply := s.lookup(c, key, value.KindStream)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			return resp.Integer(0)
		}
		if _, ok := v.Stream.Group(group); !ok {
			return resp.Integer(0)
		}
		delete(v.Stream.Groups, group)
		s.writeEffect(c.db, key, classStream, "xgroup-destroy")
		return resp.Integer(1)
	case "CREATECONSUMER":
		if len(args) != 5 {
			return errWrongArity("xgroup")
		}
		g, errReply := s.resolveGroup(c, string(args[2]), string(args[3]), "XGROUP")
		if errReply != nil {
			return errReply
		}
		if _, ok := g.Consumers[string(args[4])]; ok {
			return resp.Integer(0)
		}
		g.Consumer(string(args[4]), c.now)
		return resp.Integer(1)
	case "DELCONSUMER":
		if len(args) != 5 {
			return errWrongArity("xgroup")
		}
		g, errReply := s.resolveGroup(c, string(args[2]), string(args[3]), "XGROUP")
		if errReply != nil {
			return errReply
		}
		name := string(args[4])
		pending := 0
		for id, p := range g.Pending {
			if p.Consumer == name {
				delete(g.Pending, id)
				pending++
			}
		}
		delete(g.Consumers, name)
		return resp.Integer(int64(pending))
	case "SETID":
		if len(args) < 5 {
			return errWrongArity("xgroup")
		}
		key, group, idArg := string(args[2]), string(args[3]), string(args[4])
		v, errReply := s.lookup(c, key, value.KindStream)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			return resp.Error(value.FormatNoGroupError("XGROUP", key, group))
		}
		g, ok := v.Stream.Group(group)
		if !ok {
			return resp.Error(value.FormatNoGroupError("XGROUP", key, group))
		}
		if idArg == "$" {
			g.LastDelivered = v.Stream.LastID
		} else {
			id, err := value.ParseStreamID(idArg, 0)
			if err != nil {
				return resp.Error("ERR " + err.Error())
			}
			g.LastDelivered = id
		}
		return resp.OK
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "XGROUP")
	}
}

// resolveGroup fetches a stream's consumer group or the NOGROUP error.
func (s *Server) resolveGroup(c *Conn, key, group, cmd string) (*value.StreamGroup, resp.Reply) {
	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return nil, errReply
	}
	if v == nil {
		return nil, resp.Error(value.FormatNoGroupError(cmd, key, group))
	}
	g, ok := v.Stream.Group(group)
	if !ok {
		return nil, resp.Error(value.FormatNoGroupError(cmd, key, group))
	}
	return g, nil
}

func cmdXReadGroup(s *Server, c *Conn, args [][]byte) resp.Reply {
	if argUpper(args[1]) != "GROUP" {
		return resp.Error(msgSyntax)
	}
	group, consumer := string(args[2]), string(args[3])
	count := 0
	blockMs := int64(-1)
	noAck := false
	i := 4
	for i < len(args) {
		switch argUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			count = int(n)
			i += 2
		case "BLOCK":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil || n < 0 {
				return resp.Error(msgTimeoutFloat)
			}
			blockMs = n
			i += 2
		case "NOACK":
			noAck = true
			i++
		case "STREAMS":
			i++
			goto streams
		default:
			return resp.Error(msgSyntax)
		}
	}
	return resp.Error(msgSyntax)

streams:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.Error("ERR Unbalanced XREADGROUP list of streams: for each stream key an ID or '>' must be specified.")
	}
	n := len(rest) / 2
	keys := make([]string, n)
	ids := make([]string, n)
	for j := 0; j < n; j++ {
		keys[j] = string(rest[j])
		ids[j] = string(rest[n+j])
	}

	readOne := func(key, idArg string, now int64) (resp.Array, resp.Reply, bool) {
		v, errReply := s.lookup(c, key, value.KindStream)
		if errReply != nil {
			return nil, errReply, false
		}
		if v == nil {
			return nil, resp.Error(value.FormatNoGroupError("XREADGROUP", key, group)), false
		}
		g, ok := v.Stream.Group(group)
		if !ok {
			return nil, resp.Error(value.FormatNoGroupError("XREADGROUP", key, group)), false
		}
		if idArg == ">" {
			entries := v.Stream.After(g.LastDelivered, count)
			if len(entries) == 0 {
				return nil, nil, false
			}
			g.Consumer(consumer, now)
			if !noAck {
				for _, e := range entries {
					g.Deliver(e.ID, consumer, now)
				}
			} else {
				for _, e := range entries {
					if g.LastDelivered.Less(e.ID) {
						g.LastDelivered = e.ID
					}
					g.EntriesRead++
				}
			}
			return entriesReply(entries), nil, true
		}
		// Explicit id: replay this consumer's pending entries after it.
		after, err := value.ParseStreamID(idArg, 0)
		if err != nil {
			return nil, resp.Error("ERR " + err.Error()), false
		}
		g.Consumer(consumer, now)
		out := resp.Array{}
		for _, p := range g.PendingSorted(consumer) {
			if !after.Less(p.ID) {
				continue
			}
			idx := -1
			for ei, e := range v.Stream.Entries {
				if e.ID == p.ID {
					idx = ei
					break
				}
			}
			if idx >= 0 {
				out = append(out, entryReply(v.Stream.Entries[idx]))
			} else {
				out = append(out, resp.Array{resp.BulkString(p.ID.String()), resp.NullArray{}})
			}
			if count > 0 && len(out) >= count {
				break
			}
		}
		return out, nil, true
	}

	attempt := func(now int64) (resp.Reply, bool) {
		var names []string
		var streams []resp.Array
		anyNewForm := false
		for j, key := range keys {
			entries, errReply, ok := readOne(key, ids[j], now)
			if errReply != nil {
				return errReply, true
			}
			if ids[j] == ">" {
				anyNewForm = true
				if ok {
					names = append(names, key)
					streams = append(streams, entries)
				}
				continue
			}
			// The replay form always reports the stream, even empty.
			names = append(names, key)
			streams = append(streams, entries)
		}
		if len(names) == 0 && anyNewForm {
			return nil, false
		}
		return xReadReply(c, names, streams), true
	}

	if reply, ok := attempt(c.now); ok {
		return reply
	}
	if blockMs < 0 || c.inExec {
		return resp.NullArray{}
	}
	s.block(c, keys, msToDuration(blockMs), resp.NullArray{}, func(d *db.DB, key string, now int64) (resp.Reply, bool) {
		return attempt(now)
	})
	return nil
}

func cmdXAck(s *Server, c *Conn, args [][]byte) resp.Reply {
	// A missing key or group acknowledges nothing.
	v, errReply := s.lookup(c, string(args[1]), value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	g, ok := v.Stream.Group(string(args[2]))
	if !ok {
		return resp.Integer(0)
	}
	ids := make([]value.StreamID, 0, len(args)-3)
	for _, a := range args[3:] {
		id, err := value.ParseStreamID(string(a), 0)
		if err != nil {
			return resp.Error("ERR " + err.Error())
		}
		ids = append(ids, id)
	}
	return resp.Integer(int64(g.Ack(ids)))
}

func cmdXPending(s *Server, c *Conn, args [][]byte) resp.Reply {
	key, group := string(args[1]), string(args[2])
	g, errReply := s.resolveGroup(c, key, group, "XPENDING")
	if errReply != nil {
		return errReply
	}

	if len(args) == 3 {
		// Summary form.
		pend := g.PendingSorted("")
		if len(pend) == 0 {
			return resp.Array{resp.Integer(0), resp.Null{}, resp.Null{}, resp.NullArray{}}
		}
		perConsumer := make(map[string]int)
		for _, p := range pend {
			perConsumer[p.Consumer]++
		}
		consumers := make([]string, 0, len(perConsumer))
		for name := range perConsumer {
			consumers = append(consumers, name)
		}
		sortStringsAsc(consumers)
		list := resp.Array{}
		for _, name := range consumers {
			list = append(list, resp.Array{
				resp.BulkString(name),
				resp.BulkString(strconv.Itoa(perConsumer[name])),
			})
		}
		return resp.Array{
			resp.Integer(int64(len(pend))),
			resp.BulkString(pend[0].ID.String()),
			resp.BulkString(pend[len(pend)-1].ID.String()),
			list,
		}
	}

	// Extended form: [IDLE ms] start end count [consumer].
	i := 3
	var minIdle int64
	if argUpper(args[i]) == "IDLE" {
		if i+1 >= len(args) {
			return resp.Error(msgSyntax)
		}
		n, err := value.ParseInt(args[i+1])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		minIdle = n
		i += 2
	}
	if i+2 >= len(args) {
		return resp.Error(msgSyntax)
	}
	start, _, err := value.ParseRangeID(string(args[i]), true)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	stop, _, err := value.ParseRangeID(string(args[i+1]), false)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	count, err := value.ParseInt(args[i+2])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	i += 3
	consumer := ""
	if i < len(args) {
		consumer = string(args[i])
	}

	out := resp.Array{}
	for _, p := range g.PendingSorted(consumer) {
		if p.ID.Less(start) || stop.Less(p.ID) {
			continue
		}
		idle := c.now - p.DeliveryTime
		if idle < minIdle {
			continue
		}
		out = append(out, resp.Array{
			resp.BulkString(p.ID.String()),
			resp.BulkString(p.Consumer),
			resp.Integer(idle),
			resp.Integer(p.DeliveryCount),
		})
		if count > 0 && int64(len(out)) >= count {
			break
		}
	}
	return out
}

func cmdXClaim(s *Server, c *Conn, args [][]byte) resp.Reply {
	key, group, consumer := string(args[1]), string(args[2]), string(args[3])
	minIdle, err := value.ParseInt(args[4])
	if err != nil {
		return resp.Error(msgNotInt)
	}

	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(value.FormatNoGroupError("XCLAIM", key, group))
	}
	g, ok := v.Stream.Group(group)
	if !ok {
		return resp.Error(value.FormatNoGroupError("XCLAIM", key, group))
	}

	var (
		ids      []value.StreamID
		force    bool
		justID   bool
		setIdle  = int64(-1)
		setTime  = int64(-1)
		setRetry = int64(-1)
	)
	i := 5
	for ; i < len(args); i++ {
		arg := string(args[i])
		if id, err := value.ParseStreamID(arg, 0); err == nil {
			ids = append(ids, id)
			continue
		}
		switch strings.ToUpper(arg) {
		case "FORCE":
			force = true
		case "JUSTID":
			justID = true
		case "IDLE", "TIME", "RETRYCOUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			switch strings.ToUpper(arg) {
			case "IDLE":
				setIdle = n
			case "TIME":
				setTime = n
			default:
				setRetry = n
			}
			i++
		case "LASTID":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}

	g.Consumer(consumer, c.now)
	out := resp.Array{}
	changed := false
	for _, id := range ids {
		p, pending := g.Pending[id]
		entryIdx := -1
		for ei, e := range v.Stream.Entries {
			if e.ID == id {
				entryIdx = ei
				break
			}
		}
		if !pending {
			if !force || entryIdx < 0 {
				continue
			}
			p = &value.PendingEntry{ID: id, DeliveryTime: c.now, DeliveryCount: 0}
			g.Pending[id] = p
		}
		if c.now-p.DeliveryTime < minIdle {
			continue
		}
		if entryIdx < 0 {
			// The entry was deleted; claiming drops it from the PEL.
			delete(g.Pending, id)
			changed = true
			continue
		}
		p.Consumer = consumer
		switch {
		case setTime >= 0:
			p.DeliveryTime = setTime
		case setIdle >= 0:
			p.DeliveryTime = c.now - setIdle
		default:
			p.DeliveryTime = c.now
		}
		if setRetry >= 0 {
			p.DeliveryCount = setRetry
		} else if !justID {
			p.DeliveryCount++
		}
		changed = true
		if justID {
			out = append(out, resp.BulkString(id.String()))
		} else {
			out = append(out, entryReply(v.Stream.Entries[entryIdx]))
		}
	}
	if changed {
		s.writeEffect(c.db, key, classStream, "xclaim")
	}
	return out
}

func cmdXAutoClaim(s *Server, c *Conn, args [][]byte) resp.Reply {
	key, group, consumer := string(args[1]), string(args[2]), string(args[3])
	minIdle, err := value.ParseInt(args[4])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	start, _, err := value.ParseRangeID(string(args[5]), true)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	count := 100
	justID := false
	for i := 6; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil || n <= 0 {
				return resp.Error(msgNotInt)
			}
			count = int(n)
			i++
		case "JUSTID":
			justID = true
		default:
			return resp.Error(msgSyntax)
		}
	}

	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(value.FormatNoGroupError("XAUTOCLAIM", key, group))
	}
	g, ok := v.Stream.Group(group)
	if !ok {
		return resp.Error(value.FormatNoGroupError("XAUTOCLAIM", key, group))
	}

	g.Consumer(consumer, c.now)
	claimed := resp.Array{}
	deleted := resp.Array{}
	next := value.StreamID{}
	taken := 0
	changed := false
	for _, p := range g.PendingSorted("") {
		if p.ID.Less(start) {
			continue
		}
		if taken >= count {
			next = p.ID
			break
		}
		if c.now-p.DeliveryTime < minIdle {
			continue
		}
		entryIdx := -1
		for ei, e := range v.Stream.Entries {
			if e.ID == p.ID {
				entryIdx = ei
				break
			}
		}
		if entryIdx < 0 {
			delete(g.Pending, p.ID)
			deleted = append(deleted, resp.BulkString(p.ID.String()))
			changed = true
			continue
		}
		p.Consumer = consumer
		p.DeliveryTime = c.now
		if !justID {
			p.DeliveryCount++
		}
		if justID {
			claimed = append(claimed, resp.BulkString(p.ID.String()))
		} else {
			claimed = append(claimed, entryReply(v.Stream.Entries[entryIdx]))
		}
		taken++
		changed = true
	}
	if changed {
		s.writeEffect(c.db, key, classStream, "xautoclaim")
	}
	return resp.Array{resp.BulkString(next.String()), claimed, deleted}
}

func cmdXSetID(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindStream)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error("ERR The XSETID command requires the key to exist.")
	}
	id, err := value.ParseStreamID(string(args[2]), 0)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	if v.Stream.Len() > 0 && id.Less(v.Stream.Entries[len(v.Stream.Entries)-1].ID) {
		return resp.Error("ERR The ID specified in XSETID is smaller than the target stream top item")
	}
	v.Stream.LastID = id
	for i := 3; i+1 < len(args); i += 2 {
		switch argUpper(args[i]) {
		case "ENTRIESADDED":
			n, err := value.ParseInt(args[i+1])
			if err != nil || n < 0 {
				return resp.Error(msgNotInt)
			}
			v.Stream.AddedCount = uint64(n)
		case "MAXDELETEDID":
			del, err := value.ParseStreamID(string(args[i+1]), 0)
			if err != nil {
				return resp.Error("ERR " + err.Error())
			}
			v.Stream.MaxDeletedID = del
		default:
			return resp.Error(msgSyntax)
		}
	}
	s.writeEffect(c.db, key, classStream, "xsetid")
	return resp.OK
}

func cmdXInfo(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "STREAM":
		if len(args) < 3 {
			return errWrongArity("xinfo")
		}
		v, errReply := s.lookup(c, string(args[2]), value.KindStream)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			return resp.Error(msgNoSuchKey)
		}
		st := v.Stream
		var first, last resp.Reply = resp.Null{}, resp.Null{}
		if st.Len() > 0 {
			first = entryReply(st.Entries[0])
			last = entryReply(st.Entries[st.Len()-1])
		}
		return resp.Map{
			resp.BulkString("length"), resp.Integer(int64(st.Len())),
			resp.BulkString("last-generated-id"), resp.BulkString(st.LastID.String()),
			resp.BulkString("max-deleted-entry-id"), resp.BulkString(st.MaxDeletedID.String()),
			resp.BulkString("entries-added"), resp.Integer(int64(st.AddedCount)),
			resp.BulkString("groups"), resp.Integer(int64(len(st.Groups))),
			resp.BulkString("first-entry"), first,
			resp.BulkString("last-entry"), last,
		}
	case "GROUPS":
		if len(args) < 3 {
			return errWrongArity("xinfo")
		}
		v, errReply := s.lookup(c, string(args[2]), value.KindStream)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			return resp.Error(msgNoSuchKey)
		}
		names := make([]string, 0, len(v.Stream.Groups))
		for name := range v.Stream.Groups {
			names = append(names, name)
		}
		sortStringsAsc(names)
		out := resp.Array{}
		for _, name := range names {
			g := v.Stream.Groups[name]
			lag := int64(v.Stream.Len())
			if read := g.EntriesRead; read < lag {
				lag -= read
			} else {
				lag = 0
			}
			out = append(out, resp.Map{
				resp.BulkString("name"), resp.BulkString(name),
				resp.BulkString("consumers"), resp.Integer(int64(len(g.Consumers))),
				resp.BulkString("pending"), resp.Integer(int64(len(g.Pending))),
				resp.BulkString("last-delivered-id"), resp.BulkString(g.LastDelivered.String()),
				resp.BulkString("entries-read"), resp.Integer(g.EntriesRead),
				resp.BulkString("lag"), resp.Integer(lag),
			})
		}
		return out
	case "CONSUMERS":
		if len(args) < 4 {
			return errWrongArity("xinfo")
		}
		g, errReply := s.resolveGroup(c, string(args[2]), string(args[3]), "XINFO")
		if errReply != nil {
			return errReply
		}
		names := make([]string, 0, len(g.Consumers))
		for name := range g.Consumers {
			names = append(names, name)
		}
		sortStringsAsc(names)
		out := resp.Array{}
		for _, name := range names {
			pending := 0
			for _, p := range g.Pending {
				if p.Consumer == name {
					pending++
				}
			}
			out = append(out, resp.Map{
				resp.BulkString("name"), resp.BulkString(name),
				resp.BulkString("pending"), resp.Integer(int64(pending)),
				resp.BulkString("idle"), resp.Integer(c.now - g.Consumers[name].SeenTime),
				resp.BulkString("inactive"), resp.Integer(c.now - g.Consumers[name].SeenTime),
			})
		}
		return out
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "XINFO")
	}
}

func sortStringsAsc(ss []string) { sort.Strings(ss) }
