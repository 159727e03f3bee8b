package server

import (
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// dbOf returns the connection's selected database.
func (s *Server) dbOf(c *Conn) *db.DB { return s.dbs[c.db] }

// lookup resolves key against the live keyspace and checks its kind.
// Returns (nil, nil) for an absent key, (v, nil) on a match, and
// (nil, WRONGTYPE) on a kind mismatch.
func (s *Server) lookup(c *Conn, key string, kind value.Kind) (*value.Value, resp.Reply) {
	v, ok := s.dbOf(c).Get(key, c.now)
	if !ok {
		return nil, nil
	}
	if v.Kind != kind {
		return nil, resp.Error(msgWrongType)
	}
	if kind == value.KindHash {
		// Hash field deadlines resolve on access, before the handler
		// observes the fields.
		if gone := v.Hash.Prune(c.now); len(gone) > 0 && v.Hash.Len() == 0 {
			s.dbOf(c).Delete(key)
			s.keyModified(c.db, key, classGeneric, "del")
			return nil, nil
		}
	}
	return v, nil
}

// fetch is lookup for handlers that create the value when absent.
func (s *Server) fetch(c *Conn, key string, kind value.Kind, create func() *value.Value) (*value.Value, resp.Reply) {
	v, errReply := s.lookup(c, key, kind)
	if errReply != nil {
		return nil, errReply
	}
	if v == nil {
		v = create()
		s.dbOf(c).Set(key, v)
	}
	return v, nil
}

// dropIfEmpty removes a drained container and emits the del event.
func (s *Server) dropIfEmpty(c *Conn, key string, v *value.Value) {
	if v.Empty() {
		s.dbOf(c).Delete(key)
		s.emitNotification(c.db, classGeneric, "del", key)
	}
}

// argUpper uppercases an option token for comparison.
func argUpper(b []byte) string { return strings.ToUpper(string(b)) }

// ============================================================
// Cluster slots
// ============================================================

const clusterSlots = 16384

// slotOf derives a key's slot. Hash tags narrow the hashed portion to
// the first non-empty {...} segment, so multi-key operations can be
// pinned together.
func slotOf(key string) uint16 {
	if open := strings.IndexByte(key, '{'); open >= 0 {
		if end := strings.IndexByte(key[open+1:], '}'); end > 0 {
			key = key[open+1 : open+1+end]
		}
	}
	return uint16(murmur3.Sum32([]byte(key)) % clusterSlots)
}

// checkSlots enforces single-slot discipline for multi-key commands
// when cluster emulation is on. Returns nil when the keys agree.
func (s *Server) checkSlots(keys ...string) resp.Reply {
	if !s.cfg.ClusterEnabled || len(keys) < 2 {
		return nil
	}
	first := slotOf(keys[0])
	for _, k := range keys[1:] {
		if slotOf(k) != first {
			return resp.Error(msgCrossSlot)
		}
	}
	return nil
}
