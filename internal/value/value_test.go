package value

import (
	"math"
	"testing"
)

// ============================================================
// List
// ============================================================

func TestListPushPopOrder(t *testing.T) {
	l := &List{}
	l.PushLeft([]byte("1"))
	l.PushLeft([]byte("2"))
	l.PushRight([]byte("0"))

	got := l.Range(0, -1)
	want := []string{"2", "1", "0"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}

	v, ok := l.PopLeft()
	if !ok || string(v) != "2" {
		t.Fatalf("PopLeft = %q, %v", v, ok)
	}
	v, ok = l.PopRight()
	if !ok || string(v) != "0" {
		t.Fatalf("PopRight = %q, %v", v, ok)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestListRangeClamping(t *testing.T) {
	l := &List{}
	l.PushRight([]byte("a"), []byte("b"), []byte("c"))

	tests := []struct {
		start, stop int
		want        []string
	}{
		{0, -1, []string{"a", "b", "c"}},
		{-2, -1, []string{"b", "c"}},
		{-100, 100, []string{"a", "b", "c"}},
		{1, 1, []string{"b"}},
		{2, 1, nil},
		{5, 10, nil},
	}
	for _, tt := range tests {
		got := l.Range(tt.start, tt.stop)
		if len(got) != len(tt.want) {
			t.Errorf("Range(%d, %d) len = %d, want %d", tt.start, tt.stop, len(got), len(tt.want))
			continue
		}
		for i := range tt.want {
			if string(got[i]) != tt.want[i] {
				t.Errorf("Range(%d, %d)[%d] = %q, want %q", tt.start, tt.stop, i, got[i], tt.want[i])
			}
		}
	}
}

func TestListInsertRemove(t *testing.T) {
	l := &List{}
	l.PushRight([]byte("a"), []byte("b"), []byte("a"), []byte("b"))

	if n := l.Insert([]byte("b"), []byte("x"), true); n != 5 {
		t.Fatalf("Insert = %d, want 5", n)
	}
	if v, _ := l.Index(1); string(v) != "x" {
		t.Fatalf("item 1 = %q, want x", v)
	}
	if n := l.Insert([]byte("zz"), []byte("y"), false); n != -1 {
		t.Fatalf("Insert missing pivot = %d, want -1", n)
	}

	if n := l.Remove([]byte("a"), 1); n != 1 {
		t.Fatalf("Remove head = %d, want 1", n)
	}
	if n := l.Remove([]byte("b"), 0); n != 2 {
		t.Fatalf("Remove all = %d, want 2", n)
	}
}

func TestListPos(t *testing.T) {
	l := &List{}
	for _, s := range []string{"a", "b", "c", "b", "b"} {
		l.PushRight([]byte(s))
	}
	if got := l.Pos([]byte("b"), 1, 1); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Pos rank 1 = %v", got)
	}
	if got := l.Pos([]byte("b"), -1, 2); len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Fatalf("Pos rank -1 count 2 = %v", got)
	}
	if got := l.Pos([]byte("b"), 2, 0); len(got) != 2 {
		t.Fatalf("Pos rank 2 all = %v", got)
	}
}

// ============================================================
// Hash
// ============================================================

func TestHashFieldExpiry(t *testing.T) {
	h := NewHashData()
	h.Set("a", []byte("1"))
	h.Set("b", []byte("2"))
	if !h.SetTTL("a", 1000) {
		t.Fatal("SetTTL failed")
	}
	if h.SetTTL("missing", 1000) {
		t.Fatal("SetTTL on missing field succeeded")
	}

	if gone := h.Prune(999); len(gone) != 0 {
		t.Fatalf("premature prune: %v", gone)
	}
	gone := h.Prune(1000)
	if len(gone) != 1 || gone[0] != "a" {
		t.Fatalf("Prune = %v, want [a]", gone)
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
}

func TestHashPersist(t *testing.T) {
	h := NewHashData()
	h.Set("a", []byte("1"))
	h.SetTTL("a", 5000)
	if !h.Persist("a") {
		t.Fatal("Persist returned false")
	}
	if _, ok := h.TTL("a"); ok {
		t.Fatal("TTL survived Persist")
	}
	if h.Persist("a") {
		t.Fatal("second Persist returned true")
	}
}

// ============================================================
// Set algebra
// ============================================================

func newSet(members ...string) *Set {
	s := NewSetData()
	for _, m := range members {
		s.Add(m)
	}
	return s
}

func TestSetAlgebra(t *testing.T) {
	a := newSet("a", "b", "c")
	b := newSet("b", "c", "d")

	if got := Union(a, b); got.Len() != 4 {
		t.Fatalf("Union len = %d, want 4", got.Len())
	}
	inter := Inter(a, b)
	if inter.Len() != 2 || !inter.Has("b") || !inter.Has("c") {
		t.Fatalf("Inter = %v", inter.Members())
	}
	diff := Diff(a, b)
	if diff.Len() != 1 || !diff.Has("a") {
		t.Fatalf("Diff = %v", diff.Members())
	}
}

// ============================================================
// Sorted set
// ============================================================

func TestZSetOrdering(t *testing.T) {
	z := NewZSetData()
	z.Set("b", 2)
	z.Set("a", 1)
	z.Set("c", 2)

	ordered := z.Ordered()
	want := []string{"a", "b", "c"}
	for i, ms := range ordered {
		if ms.Member != want[i] {
			t.Errorf("rank %d = %q, want %q", i, ms.Member, want[i])
		}
	}
	if r, ok := z.Rank("c"); !ok || r != 2 {
		t.Fatalf("Rank(c) = %d, %v", r, ok)
	}
	if z.Len() != len(ordered) {
		t.Fatalf("Len/Ordered disagree: %d vs %d", z.Len(), len(ordered))
	}
}

func TestScoreRange(t *testing.T) {
	r, err := ParseScoreRange([]byte("(1"), []byte("3"))
	if err != nil {
		t.Fatalf("ParseScoreRange: %v", err)
	}
	if r.Contains(1) || !r.Contains(2) || !r.Contains(3) {
		t.Fatalf("exclusive bound handling wrong: %+v", r)
	}

	r, err = ParseScoreRange([]byte("-inf"), []byte("+inf"))
	if err != nil {
		t.Fatalf("ParseScoreRange inf: %v", err)
	}
	if !r.Contains(math.Inf(-1)) || !r.Contains(0) || !r.Contains(math.Inf(1)) {
		t.Fatal("infinite range excluded a score")
	}

	if _, err := ParseScoreRange([]byte("abc"), []byte("1")); err == nil {
		t.Fatal("bad min accepted")
	}
}

func TestLexRange(t *testing.T) {
	z := NewZSetData()
	for _, m := range []string{"a", "b", "c", "d"} {
		z.Set(m, 0)
	}
	r, err := ParseLexRange([]byte("[b"), []byte("(d"))
	if err != nil {
		t.Fatalf("ParseLexRange: %v", err)
	}
	got := z.SelectByLex(r)
	if len(got) != 2 || got[0].Member != "b" || got[1].Member != "c" {
		t.Fatalf("SelectByLex = %v", got)
	}

	r, _ = ParseLexRange([]byte("-"), []byte("+"))
	if len(z.SelectByLex(r)) != 4 {
		t.Fatal("unbounded lex range incomplete")
	}

	if _, err := ParseLexRange([]byte("b"), []byte("+")); err == nil {
		t.Fatal("missing bracket accepted")
	}
}

func TestAggregate(t *testing.T) {
	if got := Aggregate("SUM", 1, 2); got != 3 {
		t.Errorf("SUM = %v", got)
	}
	if got := Aggregate("MIN", 1, 2); got != 1 {
		t.Errorf("MIN = %v", got)
	}
	if got := Aggregate("MAX", 1, 2); got != 2 {
		t.Errorf("MAX = %v", got)
	}
	if got := Aggregate("SUM", math.Inf(1), math.Inf(-1)); got != 0 {
		t.Errorf("inf + -inf = %v, want 0", got)
	}
}

// ============================================================
// Stream
// ============================================================

func TestStreamIDAssignment(t *testing.T) {
	s := NewStreamData()

	id, err := s.NextID("*", 5)
	if err != nil || id.String() != "5-0" {
		t.Fatalf("auto id = %v, %v", id, err)
	}
	s.Add(id, nil)

	// Same millisecond: sequence disambiguates.
	id, err = s.NextID("*", 5)
	if err != nil || id.String() != "5-1" {
		t.Fatalf("auto id same ms = %v, %v", id, err)
	}
	s.Add(id, nil)

	// Clock behind the top entry still moves forward.
	id, err = s.NextID("*", 3)
	if err != nil || id.String() != "5-2" {
		t.Fatalf("auto id behind clock = %v, %v", id, err)
	}
	s.Add(id, nil)

	if _, err := s.NextID("5-1", 0); err != ErrStreamIDTooSmall {
		t.Fatalf("small explicit id err = %v", err)
	}
	if _, err := s.NextID("0-0", 0); err != ErrZeroStreamID {
		t.Fatalf("zero id err = %v", err)
	}

	id, err = s.NextID("7-*", 0)
	if err != nil || id.String() != "7-0" {
		t.Fatalf("ms wildcard = %v, %v", id, err)
	}
}

func TestStreamRangeAndTrim(t *testing.T) {
	s := NewStreamData()
	for i := uint64(1); i <= 5; i++ {
		s.Add(StreamID{Ms: i}, [][]byte{[]byte("k"), []byte("v")})
	}

	start, _, _ := ParseRangeID("-", true)
	stop, _, _ := ParseRangeID("+", false)
	if got := s.Range(start, stop, false, false, 0); len(got) != 5 {
		t.Fatalf("full range len = %d", len(got))
	}

	start, sx, _ := ParseRangeID("(2", true)
	got := s.Range(start, stop, sx, false, 0)
	if len(got) != 3 || got[0].ID.Ms != 3 {
		t.Fatalf("exclusive range = %v", got)
	}

	if n := s.TrimMaxLen(2); n != 3 {
		t.Fatalf("TrimMaxLen removed %d, want 3", n)
	}
	if s.Len() != 2 || s.Entries[0].ID.Ms != 4 {
		t.Fatalf("post-trim state wrong: %v", s.Entries)
	}
	if n := s.TrimMinID(StreamID{Ms: 5}); n != 1 {
		t.Fatalf("TrimMinID removed %d, want 1", n)
	}
}

func TestStreamGroups(t *testing.T) {
	s := NewStreamData()
	s.Add(StreamID{Ms: 1}, nil)
	s.Add(StreamID{Ms: 2}, nil)

	if err := s.CreateGroup("g", StreamID{}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := s.CreateGroup("g", StreamID{}); err != ErrGroupExists {
		t.Fatalf("duplicate group err = %v", err)
	}

	g, _ := s.Group("g")
	entries := s.After(g.LastDelivered, 10)
	for _, e := range entries {
		g.Deliver(e.ID, "c1", 100)
	}
	if len(g.Pending) != 2 || g.LastDelivered.Ms != 2 {
		t.Fatalf("delivery state: pending=%d last=%v", len(g.Pending), g.LastDelivered)
	}

	if n := g.Ack([]StreamID{{Ms: 1}}); n != 1 {
		t.Fatalf("Ack = %d", n)
	}
	pend := g.PendingSorted("")
	if len(pend) != 1 || pend[0].ID.Ms != 2 {
		t.Fatalf("PendingSorted = %v", pend)
	}
}

// ============================================================
// Numbers
// ============================================================

func TestParseFloat(t *testing.T) {
	if f, err := ParseFloat([]byte("+inf")); err != nil || !math.IsInf(f, 1) {
		t.Errorf("+inf: %v, %v", f, err)
	}
	if _, err := ParseFloat([]byte("nan")); err == nil {
		t.Error("NaN accepted")
	}
	if _, err := ParseFloat([]byte("")); err == nil {
		t.Error("empty accepted")
	}
}

func TestAddFloatFormatting(t *testing.T) {
	got, err := AddFloat([]byte("10.5"), []byte("0.1"))
	if err != nil || got != "10.6" {
		t.Fatalf("AddFloat = %q, %v", got, err)
	}
	got, err = AddFloat([]byte("3.0"), []byte("1.000000000000000005"))
	if err != nil {
		t.Fatalf("AddFloat: %v", err)
	}
	if got == "4.0" {
		t.Fatalf("trailing zero survived: %q", got)
	}
	if _, err := AddFloat([]byte("abc"), []byte("1")); err == nil {
		t.Fatal("non-numeric stored value accepted")
	}
}

func TestAddIntOverflow(t *testing.T) {
	if _, err := AddInt(math.MaxInt64, 1); err == nil {
		t.Fatal("overflow not detected")
	}
	if got, err := AddInt(1, 2); err != nil || got != 3 {
		t.Fatalf("AddInt = %d, %v", got, err)
	}
}

// ============================================================
// Value union
// ============================================================

func TestValueCloneEqual(t *testing.T) {
	v := NewZSet()
	v.ZSet.Set("a", 1)
	v.ZSet.Set("b", 2)

	c := v.Clone()
	if !v.Equal(c) {
		t.Fatal("clone not equal")
	}
	c.ZSet.Set("c", 3)
	if v.Equal(c) {
		t.Fatal("clone shares state with source")
	}
}

func TestValueEmpty(t *testing.T) {
	l := NewList()
	if !l.Empty() {
		t.Fatal("empty list not Empty")
	}
	l.List.PushRight([]byte("x"))
	if l.Empty() {
		t.Fatal("non-empty list Empty")
	}

	s := NewStream()
	if s.Empty() {
		t.Fatal("stream reported empty; streams persist after trims")
	}
}
