// Package dump implements the DUMP/RESTORE payload codec.
//
// The payload is an opaque, self-described envelope: a msgpack body
// tagged with a format version and kind, protected by a murmur3
// checksum. It round-trips any value this implementation stores;
// interoperability with the reference server's RDB payload is a
// non-goal. Decoding never executes input-controlled logic and
// rejects unknown versions, kinds and damaged checksums.
package dump

import (
	"errors"

	"github.com/spaolacci/murmur3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yndnr/redsim-go/internal/value"
)

// formatVersion is bumped whenever the body layout changes; RESTORE
// refuses payloads from other versions.
const formatVersion = 1

// ErrBadPayload is returned for any payload RESTORE cannot accept.
var ErrBadPayload = errors.New("DUMP payload version or checksum are wrong")

type envelope struct {
	Version uint8  `msgpack:"v"`
	Body    []byte `msgpack:"b"`
	Sum     uint64 `msgpack:"s"`
}

type body struct {
	Kind    uint8              `msgpack:"k"`
	Str     []byte             `msgpack:"str,omitempty"`
	List    [][]byte           `msgpack:"list,omitempty"`
	Hash    map[string][]byte  `msgpack:"hash,omitempty"`
	Set     []string           `msgpack:"set,omitempty"`
	ZSet    map[string]float64 `msgpack:"zset,omitempty"`
	Stream  *streamBody        `msgpack:"stream,omitempty"`
}

type streamBody struct {
	Entries []streamEntry          `msgpack:"e"`
	LastMs  uint64                 `msgpack:"lm"`
	LastSeq uint64                 `msgpack:"ls"`
	MaxDelMs  uint64               `msgpack:"dm"`
	MaxDelSeq uint64               `msgpack:"ds"`
	Added   uint64                 `msgpack:"n"`
	Groups  map[string]streamGroup `msgpack:"g,omitempty"`
}

type streamEntry struct {
	Ms     uint64   `msgpack:"m"`
	Seq    uint64   `msgpack:"q"`
	Fields [][]byte `msgpack:"f"`
}

type streamGroup struct {
	LastMs  uint64         `msgpack:"lm"`
	LastSeq uint64         `msgpack:"ls"`
	Pending []streamPEL    `msgpack:"p,omitempty"`
	Read    int64          `msgpack:"r"`
}

type streamPEL struct {
	Ms       uint64 `msgpack:"m"`
	Seq      uint64 `msgpack:"q"`
	Consumer string `msgpack:"c"`
	Time     int64  `msgpack:"t"`
	Count    int64  `msgpack:"n"`
}

// Encode serializes a value into a DUMP payload.
func Encode(v *value.Value) ([]byte, error) {
	b := body{Kind: uint8(v.Kind)}
	switch v.Kind {
	case value.KindString:
		b.Str = v.Str
	case value.KindList:
		b.List = v.List.Items()
	case value.KindHash:
		b.Hash = make(map[string][]byte, v.Hash.Len())
		for _, f := range v.Hash.Fields() {
			fv, _ := v.Hash.Get(f)
			b.Hash[f] = fv
		}
	case value.KindSet:
		b.Set = v.Set.Members()
	case value.KindZSet:
		b.ZSet = make(map[string]float64, v.ZSet.Len())
		for _, ms := range v.ZSet.Ordered() {
			b.ZSet[ms.Member] = ms.Score
		}
	case value.KindStream:
		b.Stream = encodeStream(v.Stream)
	default:
		return nil, errors.New("dump: unsupported value kind")
	}

	raw, err := msgpack.Marshal(&b)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&envelope{
		Version: formatVersion,
		Body:    raw,
		Sum:     murmur3.Sum64(raw),
	})
}

// Decode deserializes a DUMP payload back into a value.
func Decode(data []byte) (*value.Value, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, ErrBadPayload
	}
	if env.Version != formatVersion || murmur3.Sum64(env.Body) != env.Sum {
		return nil, ErrBadPayload
	}
	var b body
	if err := msgpack.Unmarshal(env.Body, &b); err != nil {
		return nil, ErrBadPayload
	}

	switch value.Kind(b.Kind) {
	case value.KindString:
		return value.NewString(b.Str), nil
	case value.KindList:
		v := value.NewList()
		v.List.PushRight(b.List...)
		return v, nil
	case value.KindHash:
		v := value.NewHash()
		for f, fv := range b.Hash {
			v.Hash.Set(f, fv)
		}
		return v, nil
	case value.KindSet:
		v := value.NewSet()
		for _, m := range b.Set {
			v.Set.Add(m)
		}
		return v, nil
	case value.KindZSet:
		v := value.NewZSet()
		for m, s := range b.ZSet {
			v.ZSet.Set(m, s)
		}
		return v, nil
	case value.KindStream:
		if b.Stream == nil {
			return nil, ErrBadPayload
		}
		return decodeStream(b.Stream), nil
	}
	return nil, ErrBadPayload
}

func encodeStream(s *value.Stream) *streamBody {
	sb := &streamBody{
		LastMs:    s.LastID.Ms,
		LastSeq:   s.LastID.Seq,
		MaxDelMs:  s.MaxDeletedID.Ms,
		MaxDelSeq: s.MaxDeletedID.Seq,
		Added:     s.AddedCount,
		Groups:    make(map[string]streamGroup, len(s.Groups)),
	}
	for _, e := range s.Entries {
		sb.Entries = append(sb.Entries, streamEntry{Ms: e.ID.Ms, Seq: e.ID.Seq, Fields: e.Fields})
	}
	for name, g := range s.Groups {
		sg := streamGroup{LastMs: g.LastDelivered.Ms, LastSeq: g.LastDelivered.Seq, Read: g.EntriesRead}
		for _, p := range g.PendingSorted("") {
			sg.Pending = append(sg.Pending, streamPEL{
				Ms: p.ID.Ms, Seq: p.ID.Seq,
				Consumer: p.Consumer, Time: p.DeliveryTime, Count: p.DeliveryCount,
			})
		}
		sb.Groups[name] = sg
	}
	return sb
}

func decodeStream(sb *streamBody) *value.Value {
	v := value.NewStream()
	s := v.Stream
	for _, e := range sb.Entries {
		s.Entries = append(s.Entries, value.StreamEntry{ID: value.StreamID{Ms: e.Ms, Seq: e.Seq}, Fields: e.Fields})
	}
	s.LastID = value.StreamID{Ms: sb.LastMs, Seq: sb.LastSeq}
	s.MaxDeletedID = value.StreamID{Ms: sb.MaxDelMs, Seq: sb.MaxDelSeq}
	s.AddedCount = sb.Added
	for name, sg := range sb.Groups {
		g := &value.StreamGroup{
			LastDelivered: value.StreamID{Ms: sg.LastMs, Seq: sg.LastSeq},
			Consumers:     make(map[string]*value.StreamConsumer),
			Pending:       make(map[value.StreamID]*value.PendingEntry),
			EntriesRead:   sg.Read,
		}
		for _, p := range sg.Pending {
			id := value.StreamID{Ms: p.Ms, Seq: p.Seq}
			g.Pending[id] = &value.PendingEntry{
				ID: id, Consumer: p.Consumer,
				DeliveryTime: p.Time, DeliveryCount: p.Count,
			}
			if _, ok := g.Consumers[p.Consumer]; !ok {
				g.Consumers[p.Consumer] = &value.StreamConsumer{Name: p.Consumer}
			}
		}
		s.Groups[name] = g
	}
	return v
}
