package value

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Stream is an append-only log of entries keyed by (ms, seq) ids,
// plus consumer groups, each holding a last-delivered id and a
// pending-entries list.
type Stream struct {
	Entries      []StreamEntry
	LastID       StreamID
	MaxDeletedID StreamID
	AddedCount   uint64
	Groups       map[string]*StreamGroup
}

// StreamEntry is one entry: an id plus a flat field-value list.
type StreamEntry struct {
	ID     StreamID
	Fields [][]byte
}

// StreamID is the (milliseconds, sequence) entry id.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// StreamGroup is a consumer group.
type StreamGroup struct {
	LastDelivered StreamID
	Consumers     map[string]*StreamConsumer
	Pending       map[StreamID]*PendingEntry
	EntriesRead   int64
}

// StreamConsumer tracks one consumer inside a group.
type StreamConsumer struct {
	Name     string
	SeenTime int64
}

// PendingEntry is a PEL record: delivered but not yet acknowledged.
type PendingEntry struct {
	ID            StreamID
	Consumer      string
	DeliveryTime  int64
	DeliveryCount int64
}

var (
	ErrInvalidStreamID  = errors.New("Invalid stream ID specified as stream command argument")
	ErrStreamIDTooSmall = errors.New("The ID specified in XADD is equal or smaller than the target stream top item")
	ErrGroupExists      = errors.New("BUSYGROUP Consumer Group name already exists")
	ErrZeroStreamID     = errors.New("The ID specified in XADD must be greater than 0-0")
)

// NewStreamData builds an empty stream.
func NewStreamData() *Stream {
	return &Stream{Groups: make(map[string]*StreamGroup)}
}

// String renders the id as "ms-seq".
func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Less orders ids by (ms, seq).
func (id StreamID) Less(o StreamID) bool {
	if id.Ms != o.Ms {
		return id.Ms < o.Ms
	}
	return id.Seq < o.Seq
}

// Next returns the smallest id strictly greater than id.
func (id StreamID) Next() StreamID {
	if id.Seq == math.MaxUint64 {
		return StreamID{Ms: id.Ms + 1, Seq: 0}
	}
	return StreamID{Ms: id.Ms, Seq: id.Seq + 1}
}

// ParseStreamID parses an explicit id. A bare ms gets the default
// sequence (0 for starts, MaxUint64 for ends).
func ParseStreamID(arg string, defaultSeq uint64) (StreamID, error) {
	ms, seq, ok := splitID(arg)
	if !ok {
		return StreamID{}, ErrInvalidStreamID
	}
	if seq == "" {
		return StreamID{Ms: ms, Seq: defaultSeq}, nil
	}
	s, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	return StreamID{Ms: ms, Seq: s}, nil
}

func splitID(arg string) (uint64, string, bool) {
	msPart, seqPart, found := strings.Cut(arg, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	if !found {
		return ms, "", true
	}
	return ms, seqPart, true
}

// ParseRangeID parses an XRANGE endpoint: "-", "+", an id, or an
// exclusive "(id" form. start selects the defaults for bare ms and
// the unbounded symbols.
func ParseRangeID(arg string, start bool) (id StreamID, excl bool, err error) {
	if strings.HasPrefix(arg, "(") {
		excl = true
		arg = arg[1:]
	}
	switch arg {
	case "-":
		return StreamID{}, excl, nil
	case "+":
		return StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}, excl, nil
	}
	defSeq := uint64(0)
	if !start {
		defSeq = math.MaxUint64
	}
	id, err = ParseStreamID(arg, defSeq)
	return id, excl, err
}

// NextID resolves the id for an XADD: "*" assigns from the clock,
// "ms-*" assigns the next sequence within ms, an explicit id must be
// strictly greater than the current top.
func (s *Stream) NextID(arg string, nowMs int64) (StreamID, error) {
	if arg == "*" {
		id := StreamID{Ms: uint64(nowMs)}
		if !s.LastID.Less(id) {
			id = s.LastID.Next()
		}
		return id, nil
	}
	ms, seq, ok := splitID(arg)
	if !ok {
		return StreamID{}, ErrInvalidStreamID
	}
	if seq == "*" {
		if ms < s.LastID.Ms {
			return StreamID{}, ErrStreamIDTooSmall
		}
		if ms == s.LastID.Ms {
			return s.LastID.Next(), nil
		}
		return StreamID{Ms: ms, Seq: 0}, nil
	}
	id, err := ParseStreamID(arg, 0)
	if err != nil {
		return StreamID{}, err
	}
	if id == (StreamID{}) {
		return StreamID{}, ErrZeroStreamID
	}
	if !s.LastID.Less(id) {
		return StreamID{}, ErrStreamIDTooSmall
	}
	return id, nil
}

// Add appends an entry with the given id. The id must already be
// validated by NextID.
func (s *Stream) Add(id StreamID, fields [][]byte) {
	s.Entries = append(s.Entries, StreamEntry{ID: id, Fields: fields})
	s.LastID = id
	s.AddedCount++
}

// Len returns the number of live entries.
func (s *Stream) Len() int { return len(s.Entries) }

// find returns the index of the first entry with id >= target.
func (s *Stream) find(target StreamID) int {
	return sort.Search(len(s.Entries), func(i int) bool {
		return !s.Entries[i].ID.Less(target)
	})
}

// Range returns entries within [start, stop], honoring exclusive
// endpoints, up to count entries (count <= 0 means all).
func (s *Stream) Range(start, stop StreamID, startExcl, stopExcl bool, count int) []StreamEntry {
	if startExcl {
		start = start.Next()
	}
	var out []StreamEntry
	for i := s.find(start); i < len(s.Entries); i++ {
		e := s.Entries[i]
		if stop.Less(e.ID) || (stopExcl && e.ID == stop) {
			break
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}

// After returns up to count entries with id strictly greater than
// after (count <= 0 means all).
func (s *Stream) After(after StreamID, count int) []StreamEntry {
	return s.Range(after.Next(), StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}, false, false, count)
}

// Delete removes the entries with the given ids, returning how many
// existed. The PELs keep their references; XPENDING reports them with
// no underlying entry, as the reference server does.
func (s *Stream) Delete(ids []StreamID) int {
	deleted := 0
	for _, id := range ids {
		i := s.find(id)
		if i < len(s.Entries) && s.Entries[i].ID == id {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			if s.MaxDeletedID.Less(id) {
				s.MaxDeletedID = id
			}
			deleted++
		}
	}
	return deleted
}

// TrimMaxLen drops the oldest entries beyond maxLen, returning the
// number removed.
func (s *Stream) TrimMaxLen(maxLen int64) int64 {
	if maxLen < 0 {
		maxLen = 0
	}
	drop := int64(len(s.Entries)) - maxLen
	if drop <= 0 {
		return 0
	}
	for _, e := range s.Entries[:drop] {
		if s.MaxDeletedID.Less(e.ID) {
			s.MaxDeletedID = e.ID
		}
	}
	s.Entries = s.Entries[drop:]
	return drop
}

// TrimMinID drops entries with id strictly below minID, returning
// the number removed.
func (s *Stream) TrimMinID(minID StreamID) int64 {
	i := s.find(minID)
	if i == 0 {
		return 0
	}
	for _, e := range s.Entries[:i] {
		if s.MaxDeletedID.Less(e.ID) {
			s.MaxDeletedID = e.ID
		}
	}
	s.Entries = s.Entries[i:]
	return int64(i)
}

// CreateGroup registers a consumer group starting after start.
func (s *Stream) CreateGroup(name string, start StreamID) error {
	if _, ok := s.Groups[name]; ok {
		return ErrGroupExists
	}
	s.Groups[name] = &StreamGroup{
		LastDelivered: start,
		Consumers:     make(map[string]*StreamConsumer),
		Pending:       make(map[StreamID]*PendingEntry),
	}
	return nil
}

// Group looks up a consumer group.
func (s *Stream) Group(name string) (*StreamGroup, bool) {
	g, ok := s.Groups[name]
	return g, ok
}

// Consumer returns the named consumer, creating it if needed.
func (g *StreamGroup) Consumer(name string, now int64) *StreamConsumer {
	c, ok := g.Consumers[name]
	if !ok {
		c = &StreamConsumer{Name: name}
		g.Consumers[name] = c
	}
	c.SeenTime = now
	return c
}

// Deliver records a delivery of id to consumer in the PEL.
func (g *StreamGroup) Deliver(id StreamID, consumer string, now int64) {
	g.Pending[id] = &PendingEntry{
		ID:            id,
		Consumer:      consumer,
		DeliveryTime:  now,
		DeliveryCount: 1,
	}
	if g.LastDelivered.Less(id) {
		g.LastDelivered = id
	}
	g.EntriesRead++
}

// Ack removes ids from the PEL, returning how many were pending.
func (g *StreamGroup) Ack(ids []StreamID) int {
	n := 0
	for _, id := range ids {
		if _, ok := g.Pending[id]; ok {
			delete(g.Pending, id)
			n++
		}
	}
	return n
}

// PendingSorted returns the PEL ordered by id, optionally filtered to
// one consumer (empty selects all).
func (g *StreamGroup) PendingSorted(consumer string) []*PendingEntry {
	out := make([]*PendingEntry, 0, len(g.Pending))
	for _, p := range g.Pending {
		if consumer != "" && p.Consumer != consumer {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// Clone deep-copies the stream, groups included.
func (s *Stream) Clone() *Stream {
	out := NewStreamData()
	out.LastID = s.LastID
	out.MaxDeletedID = s.MaxDeletedID
	out.AddedCount = s.AddedCount
	out.Entries = make([]StreamEntry, len(s.Entries))
	for i, e := range s.Entries {
		fields := make([][]byte, len(e.Fields))
		for j, f := range e.Fields {
			fields[j] = append([]byte(nil), f...)
		}
		out.Entries[i] = StreamEntry{ID: e.ID, Fields: fields}
	}
	for name, g := range s.Groups {
		ng := &StreamGroup{
			LastDelivered: g.LastDelivered,
			Consumers:     make(map[string]*StreamConsumer),
			Pending:       make(map[StreamID]*PendingEntry),
			EntriesRead:   g.EntriesRead,
		}
		for cn, c := range g.Consumers {
			cc := *c
			ng.Consumers[cn] = &cc
		}
		for id, p := range g.Pending {
			pp := *p
			ng.Pending[id] = &pp
		}
		out.Groups[name] = ng
	}
	return out
}

// Equal compares entries and group book-keeping.
func (s *Stream) Equal(o *Stream) bool {
	if len(s.Entries) != len(o.Entries) || s.LastID != o.LastID {
		return false
	}
	for i, e := range s.Entries {
		oe := o.Entries[i]
		if e.ID != oe.ID || len(e.Fields) != len(oe.Fields) {
			return false
		}
		for j := range e.Fields {
			if string(e.Fields[j]) != string(oe.Fields[j]) {
				return false
			}
		}
	}
	if len(s.Groups) != len(o.Groups) {
		return false
	}
	for name, g := range s.Groups {
		og, ok := o.Groups[name]
		if !ok || g.LastDelivered != og.LastDelivered || len(g.Pending) != len(og.Pending) {
			return false
		}
	}
	return true
}

// FormatNoGroupError builds the NOGROUP error text for a key/group pair.
func FormatNoGroupError(cmd, key, group string) string {
	return fmt.Sprintf("NOGROUP No such key '%s' or consumer group '%s' in %s", key, group, cmd)
}
