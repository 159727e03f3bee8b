package server

import (
	"sort"
	"strconv"

	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
	"github.com/yndnr/redsim-go/pkg/glob"
)

// Set commands and the multi-key set algebra.

func init() {
	register("SADD", -3, flagWrite, cmdSAdd)
	register("SREM", -3, flagWrite, cmdSRem)
	register("SMEMBERS", 2, 0, cmdSMembers)
	register("SISMEMBER", 3, 0, cmdSIsMember)
	register("SMISMEMBER", -3, 0, cmdSMIsMember)
	register("SCARD", 2, 0, cmdSCard)
	register("SPOP", -2, flagWrite, cmdSPop)
	register("SRANDMEMBER", -2, 0, cmdSRandMember)
	register("SMOVE", 4, flagWrite, cmdSMove)
	register("SUNION", -2, 0, cmdSUnion)
	register("SINTER", -2, 0, cmdSInter)
	register("SDIFF", -2, 0, cmdSDiff)
	register("SUNIONSTORE", -3, flagWrite, cmdSUnionStore)
	register("SINTERSTORE", -3, flagWrite, cmdSInterStore)
	register("SDIFFSTORE", -3, flagWrite, cmdSDiffStore)
	register("SINTERCARD", -3, 0, cmdSInterCard)
	register("SSCAN", -3, 0, cmdSScan)
}

func cmdSAdd(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindSet, value.NewSet)
	if errReply != nil {
		return errReply
	}
	added := 0
	for _, m := range args[2:] {
		if v.Set.Add(string(m)) {
			added++
		}
	}
	if added > 0 {
		s.keyModified(c.db, key, classSet, "sadd")
	} else {
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(added))
}

func cmdSRem(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	removed := 0
	for _, m := range args[2:] {
		if v.Set.Remove(string(m)) {
			removed++
		}
	}
	if removed > 0 {
		s.writeEffect(c.db, key, classSet, "srem")
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(removed))
}

func cmdSMembers(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindSet)
	if errReply != nil {
		return errReply
	}
	out := resp.Set{}
	if v == nil {
		return out
	}
	for _, m := range v.Set.Members() {
		out = append(out, resp.BulkString(m))
	}
	return out
}

func cmdSIsMember(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindSet)
	if errReply != nil {
		return errReply
	}
	if v != nil && v.Set.Has(string(args[2])) {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdSMIsMember(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindSet)
	if errReply != nil {
		return errReply
	}
	out := make(resp.Array, 0, len(args)-2)
	for _, m := range args[2:] {
		if v != nil && v.Set.Has(string(m)) {
			out = append(out, resp.Integer(1))
		} else {
			out = append(out, resp.Integer(0))
		}
	}
	return out
}

func cmdSCard(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(v.Set.Len()))
}

func cmdSPop(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	hasCount := len(args) == 3
	count := 1
	if hasCount {
		n, err := value.ParseInt(args[2])
		if err != nil || n < 0 {
			return resp.Error(msgValueRange)
		}
		count = int(n)
	} else if len(args) > 3 {
		return errWrongArity("spop")
	}

	v, errReply := s.lookup(c, key, value.KindSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if hasCount {
			return resp.Set{}
		}
		return resp.Null{}
	}

	members := v.Set.Members()
	if !hasCount {
		m := members[s.rnd.Intn(len(members))]
		v.Set.Remove(m)
		s.writeEffect(c.db, key, classSet, "spop")
		s.dropIfEmpty(c, key, v)
		return resp.BulkString(m)
	}
	picked := pickRandom(s, members, count)
	out := resp.Set{}
	for _, m := range picked {
		v.Set.Remove(m)
		out = append(out, resp.BulkString(m))
	}
	if len(picked) > 0 {
		s.writeEffect(c.db, key, classSet, "spop")
		s.dropIfEmpty(c, key, v)
	}
	return out
}

func cmdSRandMember(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindSet)
	if errReply != nil {
		return errReply
	}
	hasCount := len(args) == 3
	count := 1
	if hasCount {
		n, err := value.ParseInt(args[2])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		count = int(n)
	} else if len(args) > 3 {
		return errWrongArity("srandmember")
	}
	if v == nil {
		if hasCount {
			return resp.Array{}
		}
		return resp.Null{}
	}
	members := v.Set.Members()
	if !hasCount {
		return resp.BulkString(members[s.rnd.Intn(len(members))])
	}
	out := resp.Array{}
	for _, m := range pickRandom(s, members, count) {
		out = append(out, resp.BulkString(m))
	}
	return out
}

func cmdSMove(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	member := string(args[3])

	sv, errReply := s.lookup(c, src, value.KindSet)
	if errReply != nil {
		return errReply
	}
	dv, errReply := s.lookup(c, dst, value.KindSet)
	if errReply != nil {
		return errReply
	}
	if sv == nil || !sv.Set.Has(member) {
		return resp.Integer(0)
	}
	sv.Set.Remove(member)
	if dv == nil {
		dv = value.NewSet()
		s.dbOf(c).SetKeepTTL(dst, dv)
	}
	dv.Set.Add(member)
	s.writeEffect(c.db, src, classSet, "srem")
	s.dropIfEmpty(c, src, sv)
	s.keyModified(c.db, dst, classSet, "sadd")
	return resp.Integer(1)
}

// gatherSets resolves keys into sets, nil for absent keys.
func (s *Server) gatherSets(c *Conn, keys [][]byte) ([]*value.Set, resp.Reply) {
	out := make([]*value.Set, 0, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, string(k))
	}
	if errReply := s.checkSlots(names...); errReply != nil {
		return nil, errReply
	}
	for _, k := range names {
		v, errReply := s.lookup(c, k, value.KindSet)
		if errReply != nil {
			return nil, errReply
		}
		if v == nil {
			out = append(out, nil)
		} else {
			out = append(out, v.Set)
		}
	}
	return out, nil
}

func setAlgebra(s *Server, c *Conn, keys [][]byte, op func(...*value.Set) *value.Set) (*value.Set, resp.Reply) {
	sets, errReply := s.gatherSets(c, keys)
	if errReply != nil {
		return nil, errReply
	}
	return op(sets...), nil
}

func setReply(result *value.Set) resp.Reply {
	out := resp.Set{}
	for _, m := range result.Members() {
		out = append(out, resp.BulkString(m))
	}
	return out
}

func cmdSUnion(s *Server, c *Conn, args [][]byte) resp.Reply {
	result, errReply := setAlgebra(s, c, args[1:], value.Union)
	if errReply != nil {
		return errReply
	}
	return setReply(result)
}

func cmdSInter(s *Server, c *Conn, args [][]byte) resp.Reply {
	result, errReply := setAlgebra(s, c, args[1:], value.Inter)
	if errReply != nil {
		return errReply
	}
	return setReply(result)
}

func cmdSDiff(s *Server, c *Conn, args [][]byte) resp.Reply {
	result, errReply := setAlgebra(s, c, args[1:], value.Diff)
	if errReply != nil {
		return errReply
	}
	return setReply(result)
}

func setStore(s *Server, c *Conn, args [][]byte, event string, op func(...*value.Set) *value.Set) resp.Reply {
	dst := string(args[1])
	result, errReply := setAlgebra(s, c, args[2:], op)
	if errReply != nil {
		return errReply
	}
	d := s.dbOf(c)
	if result.Len() == 0 {
		if d.Exists(dst, c.now) {
			d.Delete(dst)
			s.keyModified(c.db, dst, classGeneric, "del")
		}
		return resp.Integer(0)
	}
	d.Set(dst, &value.Value{Kind: value.KindSet, Set: result})
	s.keyModified(c.db, dst, classSet, event)
	return resp.Integer(int64(result.Len()))
}

func cmdSUnionStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return setStore(s, c, args, "sunionstore", value.Union)
}

func cmdSInterStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return setStore(s, c, args, "sinterstore", value.Inter)
}

func cmdSDiffStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return setStore(s, c, args, "sdiffstore", value.Diff)
}

func cmdSInterCard(s *Server, c *Conn, args [][]byte) resp.Reply {
	numKeys, err := strconv.Atoi(string(args[1]))
	if err != nil || numKeys <= 0 {
		return resp.Error("ERR numkeys should be greater than 0")
	}
	if len(args) < 2+numKeys {
		return resp.Error("ERR Number of keys can't be greater than number of args")
	}
	limit := 0
	rest := args[2+numKeys:]
	if len(rest) == 2 && argUpper(rest[0]) == "LIMIT" {
		n, err := strconv.Atoi(string(rest[1]))
		if err != nil || n < 0 {
			return resp.Error("ERR LIMIT can't be negative")
		}
		limit = n
	} else if len(rest) != 0 {
		return resp.Error(msgSyntax)
	}

	result, errReply := setAlgebra(s, c, args[2:2+numKeys], value.Inter)
	if errReply != nil {
		return errReply
	}
	card := result.Len()
	if limit > 0 && card > limit {
		card = limit
	}
	return resp.Integer(int64(card))
}

func cmdSScan(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindSet)
	if errReply != nil {
		return errReply
	}
	pattern, count, _, errReply := parseSubScanArgs(args, false)
	if errReply != nil {
		return errReply
	}
	cursorID, err := strconv.ParseUint(string(args[2]), 10, 64)
	if err != nil {
		return resp.Error("ERR invalid cursor")
	}
	if v == nil {
		return resp.Array{resp.BulkString("0"), resp.Array{}}
	}

	names := v.Set.Members()
	sort.Strings(names)
	batch, next := subScan(s.dbOf(c), key, cursorID, names, count)

	out := resp.Array{}
	for _, m := range batch {
		if pattern != "" && !glob.Match(pattern, m) {
			continue
		}
		out = append(out, resp.BulkString(m))
	}
	return resp.Array{resp.BulkString(next), out}
}
