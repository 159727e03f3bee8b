package server

import (
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// HyperLogLog commands. The sketch is represented internally as a
// set, so cardinality queries are exact; approximation fidelity is
// not part of the contract.

func init() {
	register("PFADD", -2, flagWrite, cmdPFAdd)
	register("PFCOUNT", -2, 0, cmdPFCount)
	register("PFMERGE", -2, flagWrite, cmdPFMerge)
}

func cmdPFAdd(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	existed := s.dbOf(c).Exists(key, c.now)
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
	// The reply is whether the estimate changed; creating the key
	// counts as a change even with no elements.
	if added > 0 || !existed {
		s.keyModified(c.db, key, classString, "pfadd")
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdPFCount(s *Server, c *Conn, args [][]byte) resp.Reply {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}
	union := value.NewSetData()
	for _, key := range keys {
		v, errReply := s.lookup(c, key, value.KindSet)
		if errReply != nil {
			return errReply
		}
		if v == nil {
			continue
		}
		for _, m := range v.Set.Members() {
			union.Add(m)
		}
	}
	return resp.Integer(int64(union.Len()))
}

func cmdPFMerge(s *Server, c *Conn, args [][]byte) resp.Reply {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}
	dst := keys[0]
	v, errReply := s.fetch(c, dst, value.KindSet, value.NewSet)
	if errReply != nil {
		return errReply
	}
	for _, key := range keys[1:] {
		src, errReply := s.lookup(c, key, value.KindSet)
		if errReply != nil {
			return errReply
		}
		if src == nil {
			continue
		}
		for _, m := range src.Set.Members() {
			v.Set.Add(m)
		}
	}
	s.keyModified(c.db, dst, classString, "pfadd")
	return resp.OK
}
