package server

import (
	"strconv"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Keyspace notifications are pub/sub messages on conventional
// channels, filtered by the notify-keyspace-events class mask.

type notifyMask uint16

const (
	maskKeyspace notifyMask = 1 << iota // K
	maskKeyevent                        // E
	maskGeneric                         // g
	maskString                          // $
	maskList                            // l
	maskSet                             // s
	maskHash                            // h
	maskZSet                            // z
	maskExpired                         // x
	maskEvicted                         // e
	maskStream                          // t
	maskKeyMiss                         // m
	maskNewKey                          // n
)

// Event classes handlers tag modifications with.
const (
	classGeneric = 'g'
	classString  = '$'
	classList    = 'l'
	classSet     = 's'
	classHash    = 'h'
	classZSet    = 'z'
	classExpired = 'x'
	classStream  = 't'
)

// parseNotifyMask parses the flag-string form ("KEA", "Elg", ...).
// Unknown flags are ignored rather than rejected, at startup and on
// CONFIG SET alike.
func parseNotifyMask(s string) notifyMask {
	var m notifyMask
	for _, ch := range s {
		switch ch {
		case 'K':
			m |= maskKeyspace
		case 'E':
			m |= maskKeyevent
		case 'g':
			m |= maskGeneric
		case '$':
			m |= maskString
		case 'l':
			m |= maskList
		case 's':
			m |= maskSet
		case 'h':
			m |= maskHash
		case 'z':
			m |= maskZSet
		case 'x':
			m |= maskExpired
		case 'e':
			m |= maskEvicted
		case 't':
			m |= maskStream
		case 'm':
			m |= maskKeyMiss
		case 'n':
			m |= maskNewKey
		case 'A':
			m |= maskGeneric | maskString | maskList | maskSet | maskHash |
				maskZSet | maskExpired | maskEvicted | maskStream
		}
	}
	return m
}

// formatNotifyMask renders the mask back to its flag string for
// CONFIG GET.
func formatNotifyMask(m notifyMask) string {
	var out []byte
	pairs := []struct {
		flag notifyMask
		ch   byte
	}{
		{maskKeyspace, 'K'}, {maskKeyevent, 'E'}, {maskGeneric, 'g'},
		{maskString, '$'}, {maskList, 'l'}, {maskSet, 's'},
		{maskHash, 'h'}, {maskZSet, 'z'}, {maskExpired, 'x'},
		{maskEvicted, 'e'}, {maskStream, 't'}, {maskKeyMiss, 'm'},
		{maskNewKey, 'n'},
	}
	for _, p := range pairs {
		if m&p.flag != 0 {
			out = append(out, p.ch)
		}
	}
	return string(out)
}

func classFlag(class byte) notifyMask {
	switch class {
	case classGeneric:
		return maskGeneric
	case classString:
		return maskString
	case classList:
		return maskList
	case classSet:
		return maskSet
	case classHash:
		return maskHash
	case classZSet:
		return maskZSet
	case classExpired:
		return maskExpired
	case classStream:
		return maskStream
	}
	return 0
}

// emitNotification publishes the keyspace/keyevent pair for one
// event, subject to the mask. Runs with the server lock held.
func (s *Server) emitNotification(dbIdx int, class byte, event, key string) {
	if s.notifyMask&classFlag(class) == 0 {
		return
	}
	dbSuffix := strconv.Itoa(dbIdx)
	if s.notifyMask&maskKeyspace != 0 {
		s.publishLocked("__keyspace@"+dbSuffix+"__:"+key, []byte(event))
	}
	if s.notifyMask&maskKeyevent != 0 {
		s.publishLocked("__keyevent@"+dbSuffix+"__:"+event, []byte(key))
	}
}

// publishLocked fans a message out to subscribers. Runs with the
// server lock held; deliveries land in per-connection mailboxes.
func (s *Server) publishLocked(channel string, payload []byte) int {
	deliveries := s.reg.Route(channel)
	for _, d := range deliveries {
		c, ok := s.clients[d.ID]
		if !ok {
			continue
		}
		if d.Pattern != "" {
			c.enqueuePush(resp.Push{
				resp.BulkString("pmessage"),
				resp.BulkString(d.Pattern),
				resp.BulkString(channel),
				resp.Bulk(payload),
			})
		} else {
			c.enqueuePush(resp.Push{
				resp.BulkString("message"),
				resp.BulkString(channel),
				resp.Bulk(payload),
			})
		}
	}
	s.metrics.Published(len(deliveries))
	return len(deliveries)
}

// publishShardLocked fans out on the shard-channel namespace.
func (s *Server) publishShardLocked(channel string, payload []byte) int {
	deliveries := s.reg.RouteShard(channel)
	for _, d := range deliveries {
		c, ok := s.clients[d.ID]
		if !ok {
			continue
		}
		c.enqueuePush(resp.Push{
			resp.BulkString("smessage"),
			resp.BulkString(channel),
			resp.Bulk(payload),
		})
	}
	s.metrics.Published(len(deliveries))
	return len(deliveries)
}
