package server

import (
	"strconv"
	"time"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// List commands, including the blocking variants.

func init() {
	register("LPUSH", -3, flagWrite, cmdLPush)
	register("RPUSH", -3, flagWrite, cmdRPush)
	register("LPUSHX", -3, flagWrite, cmdLPushX)
	register("RPUSHX", -3, flagWrite, cmdRPushX)
	register("LPOP", -2, flagWrite, cmdLPop)
	register("RPOP", -2, flagWrite, cmdRPop)
	register("LLEN", 2, 0, cmdLLen)
	register("LRANGE", 4, 0, cmdLRange)
	register("LINDEX", 3, 0, cmdLIndex)
	register("LSET", 4, flagWrite, cmdLSet)
	register("LINSERT", 5, flagWrite, cmdLInsert)
	register("LREM", 4, flagWrite, cmdLRem)
	register("LTRIM", 4, flagWrite, cmdLTrim)
	register("RPOPLPUSH", 3, flagWrite, cmdRPopLPush)
	register("LMOVE", 5, flagWrite, cmdLMove)
	register("LPOS", -3, 0, cmdLPos)
	register("BLPOP", -3, flagWrite|flagBlocking, cmdBLPop)
	register("BRPOP", -3, flagWrite|flagBlocking, cmdBRPop)
	register("BLMOVE", 6, flagWrite|flagBlocking, cmdBLMove)
	register("BRPOPLPUSH", 4, flagWrite|flagBlocking, cmdBRPopLPush)
}

// writeEffect bumps the version and emits the event without waking
// blocked clients; pops and deletes use it, pushes use keyModified.
func (s *Server) writeEffect(dbIdx int, key string, class byte, event string) {
	s.dbs[dbIdx].Bump(key)
	s.emitNotification(dbIdx, class, event, key)
}

func listPush(s *Server, c *Conn, args [][]byte, left, requireExists bool) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if requireExists {
			return resp.Integer(0)
		}
		v = value.NewList()
		s.dbOf(c).SetKeepTTL(key, v)
	}
	for _, a := range args[2:] {
		elem := append([]byte(nil), a...)
		if left {
			v.List.PushLeft(elem)
		} else {
			v.List.PushRight(elem)
		}
	}
	event := "rpush"
	if left {
		event = "lpush"
	}
	n := v.List.Len()
	s.keyModified(c.db, key, classList, event)
	return resp.Integer(int64(n))
}

func cmdLPush(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPush(s, c, args, true, false)
}

func cmdRPush(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPush(s, c, args, false, false)
}

func cmdLPushX(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPush(s, c, args, true, true)
}

func cmdRPushX(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPush(s, c, args, false, true)
}

func listPop(s *Server, c *Conn, args [][]byte, left bool) resp.Reply {
	key := string(args[1])
	hasCount := false
	count := 1
	if len(args) == 3 {
		n, err := value.ParseInt(args[2])
		if err != nil || n < 0 {
			return resp.Error(msgValueRange)
		}
		hasCount = true
		count = int(n)
	} else if len(args) > 3 {
		return errWrongArity(string(args[0]))
	}

	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if hasCount {
			return resp.NullArray{}
		}
		return resp.Null{}
	}

	event := "rpop"
	if left {
		event = "lpop"
	}
	popOne := func() ([]byte, bool) {
		if left {
			return v.List.PopLeft()
		}
		return v.List.PopRight()
	}

	if !hasCount {
		elem, _ := popOne()
		s.writeEffect(c.db, key, classList, event)
		s.dropIfEmpty(c, key, v)
		return resp.Bulk(elem)
	}
	out := resp.Array{}
	for i := 0; i < count; i++ {
		elem, ok := popOne()
		if !ok {
			break
		}
		out = append(out, resp.Bulk(elem))
	}
	if len(out) > 0 {
		s.writeEffect(c.db, key, classList, event)
		s.dropIfEmpty(c, key, v)
	}
	return out
}

func cmdLPop(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPop(s, c, args, true)
}

func cmdRPop(s *Server, c *Conn, args [][]byte) resp.Reply {
	return listPop(s, c, args, false)
}

func cmdLLen(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(v.List.Len()))
}

func cmdLRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return resp.Error(msgNotInt)
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	out := resp.Array{}
	for _, e := range v.List.Range(start, stop) {
		out = append(out, resp.Bulk(e))
	}
	return out
}

func cmdLIndex(s *Server, c *Conn, args [][]byte) resp.Reply {
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return resp.Error(msgNotInt)
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	elem, ok := v.List.Index(idx)
	if !ok {
		return resp.Null{}
	}
	return resp.Bulk(elem)
}

func cmdLSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return resp.Error(msgNotInt)
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(msgNoSuchKey)
	}
	if !v.List.SetIndex(idx, append([]byte(nil), args[3]...)) {
		return resp.Error(msgIndexRange)
	}
	s.writeEffect(c.db, key, classList, "lset")
	return resp.OK
}

func cmdLInsert(s *Server, c *Conn, args [][]byte) resp.Reply {
	var before bool
	switch argUpper(args[2]) {
	case "BEFORE":
		before = true
	case "AFTER":
	default:
		return resp.Error(msgSyntax)
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	n := v.List.Insert(args[3], append([]byte(nil), args[4]...), before)
	if n < 0 {
		return resp.Integer(-1)
	}
	s.keyModified(c.db, key, classList, "linsert")
	return resp.Integer(int64(n))
}

func cmdLRem(s *Server, c *Conn, args [][]byte) resp.Reply {
	count, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return resp.Error(msgNotInt)
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	removed := v.List.Remove(args[3], count)
	if removed > 0 {
		s.writeEffect(c.db, key, classList, "lrem")
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(removed))
}

func cmdLTrim(s *Server, c *Conn, args [][]byte) resp.Reply {
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return resp.Error(msgNotInt)
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.OK
	}
	v.List.Trim(start, stop)
	s.writeEffect(c.db, key, classList, "ltrim")
	s.dropIfEmpty(c, key, v)
	return resp.OK
}

// listMove pops from src on one end and pushes to dst on the other,
// atomically. Used by LMOVE, RPOPLPUSH and their blocking variants.
func (s *Server) listMove(dbIdx int, src, dst string, fromLeft, toLeft bool, now int64) (resp.Reply, bool) {
	d := s.dbs[dbIdx]
	sv, ok := d.Get(src, now)
	if !ok {
		return nil, false
	}
	if sv.Kind != value.KindList {
		return resp.Error(msgWrongType), true
	}
	dvVal, exists := d.Get(dst, now)
	if exists && dvVal.Kind != value.KindList {
		return resp.Error(msgWrongType), true
	}

	var elem []byte
	if fromLeft {
		elem, _ = sv.List.PopLeft()
	} else {
		elem, _ = sv.List.PopRight()
	}
	if !exists {
		dvVal = value.NewList()
		d.SetKeepTTL(dst, dvVal)
	}
	if toLeft {
		dvVal.List.PushLeft(elem)
	} else {
		dvVal.List.PushRight(elem)
	}

	popEvent := "rpop"
	if fromLeft {
		popEvent = "lpop"
	}
	pushEvent := "rpush"
	if toLeft {
		pushEvent = "lpush"
	}
	s.writeEffect(dbIdx, src, classList, popEvent)
	if sv.List.Len() == 0 {
		d.Delete(src)
		s.emitNotification(dbIdx, classGeneric, "del", src)
	}
	s.keyModified(dbIdx, dst, classList, pushEvent)
	return resp.Bulk(elem), true
}

func cmdRPopLPush(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	reply, ok := s.listMove(c.db, src, dst, false, true, c.now)
	if !ok {
		return resp.Null{}
	}
	return reply
}

func cmdLMove(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	fromLeft, ok1 := parseEnd(args[3])
	toLeft, ok2 := parseEnd(args[4])
	if !ok1 || !ok2 {
		return resp.Error(msgSyntax)
	}
	reply, ok := s.listMove(c.db, src, dst, fromLeft, toLeft, c.now)
	if !ok {
		return resp.Null{}
	}
	return reply
}

func parseEnd(b []byte) (left, ok bool) {
	switch argUpper(b) {
	case "LEFT":
		return true, true
	case "RIGHT":
		return false, true
	}
	return false, false
}

func cmdLPos(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	rank := 1
	count := -1 // -1: single reply; >=0: array reply
	maxLen := 0
	for i := 3; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "RANK":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil {
				return resp.Error(msgNotInt)
			}
			if n == 0 {
				return resp.Error("ERR RANK can't be zero")
			}
			rank = n
			i++
		case "COUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n < 0 {
				return resp.Error("ERR COUNT can't be negative")
			}
			count = n
			i++
		case "MAXLEN":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n < 0 {
				return resp.Error("ERR MAXLEN can't be negative")
			}
			maxLen = n
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}
	_ = maxLen // scan budget is meaningless for an in-memory walk

	v, errReply := s.lookup(c, key, value.KindList)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if count >= 0 {
			return resp.Array{}
		}
		return resp.Null{}
	}
	want := count
	if want < 0 {
		want = 1
	}
	hits := v.List.Pos(args[2], rank, want)
	if count < 0 {
		if len(hits) == 0 {
			return resp.Null{}
		}
		return resp.Integer(int64(hits[0]))
	}
	out := resp.Array{}
	for _, h := range hits {
		out = append(out, resp.Integer(int64(h)))
	}
	return out
}

// ============================================================
// Blocking variants
// ============================================================

// parseTimeout parses a blocking timeout in seconds (double); 0
// means wait forever.
func parseTimeout(b []byte) (time.Duration, resp.Reply) {
	f, err := value.ParseFloat(b)
	if err != nil {
		return 0, resp.Error(msgTimeoutFloat)
	}
	if f < 0 {
		return 0, resp.Error(msgNegTimeout)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func blockingPop(s *Server, c *Conn, args [][]byte, left bool) resp.Reply {
	timeout, errReply := parseTimeout(args[len(args)-1])
	if errReply != nil {
		return errReply
	}
	keys := make([]string, 0, len(args)-2)
	for _, a := range args[1 : len(args)-1] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}

	event := "rpop"
	if left {
		event = "lpop"
	}
	take := func(d *db.DB, key string, now int64) (resp.Reply, bool) {
		v, ok := d.Get(key, now)
		if !ok || v.Kind != value.KindList || v.List.Len() == 0 {
			return nil, false
		}
		var elem []byte
		if left {
			elem, _ = v.List.PopLeft()
		} else {
			elem, _ = v.List.PopRight()
		}
		s.writeEffect(d.Index, key, classList, event)
		if v.List.Len() == 0 {
			d.Delete(key)
			s.emitNotification(d.Index, classGeneric, "del", key)
		}
		return resp.Array{resp.BulkString(key), resp.Bulk(elem)}, true
	}

	for _, key := range keys {
		if reply, ok := take(s.dbOf(c), key, c.now); ok {
			return reply
		}
		// Surface a type error immediately rather than blocking on a
		// key that can never become a list.
		if v, ok := s.dbOf(c).Get(key, c.now); ok && v.Kind != value.KindList {
			return resp.Error(msgWrongType)
		}
	}
	if c.inExec {
		return resp.NullArray{}
	}
	s.block(c, keys, timeout, resp.NullArray{}, take)
	return nil
}

func cmdBLPop(s *Server, c *Conn, args [][]byte) resp.Reply {
	return blockingPop(s, c, args, true)
}

func cmdBRPop(s *Server, c *Conn, args [][]byte) resp.Reply {
	return blockingPop(s, c, args, false)
}

func blockingMove(s *Server, c *Conn, src, dst string, fromLeft, toLeft bool, timeoutArg []byte) resp.Reply {
	timeout, errReply := parseTimeout(timeoutArg)
	if errReply != nil {
		return errReply
	}
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	if reply, ok := s.listMove(c.db, src, dst, fromLeft, toLeft, c.now); ok {
		return reply
	}
	if c.inExec {
		return resp.Null{}
	}
	s.block(c, []string{src}, timeout, resp.Null{}, func(d *db.DB, key string, now int64) (resp.Reply, bool) {
		return s.listMove(d.Index, key, dst, fromLeft, toLeft, now)
	})
	return nil
}

func cmdBLMove(s *Server, c *Conn, args [][]byte) resp.Reply {
	fromLeft, ok1 := parseEnd(args[3])
	toLeft, ok2 := parseEnd(args[4])
	if !ok1 || !ok2 {
		return resp.Error(msgSyntax)
	}
	return blockingMove(s, c, string(args[1]), string(args[2]), fromLeft, toLeft, args[5])
}

func cmdBRPopLPush(s *Server, c *Conn, args [][]byte) resp.Reply {
	return blockingMove(s, c, string(args[1]), string(args[2]), false, true, args[3])
}
