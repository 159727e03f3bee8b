package dump

import (
	"testing"

	"github.com/spaolacci/murmur3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yndnr/redsim-go/internal/value"
)

func roundTrip(t *testing.T, v *value.Value) *value.Value {
	t.Helper()
	data, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestRoundTripAllKinds(t *testing.T) {
	str := value.NewString([]byte("hello\x00world"))

	list := value.NewList()
	list.List.PushRight([]byte("a"), []byte("b"), []byte("c"))

	hash := value.NewHash()
	hash.Hash.Set("f1", []byte("v1"))
	hash.Hash.Set("f2", []byte("v2"))

	set := value.NewSet()
	set.Set.Add("x")
	set.Set.Add("y")

	zset := value.NewZSet()
	zset.ZSet.Set("a", 1.5)
	zset.ZSet.Set("b", -2)

	stream := value.NewStream()
	stream.Stream.Add(value.StreamID{Ms: 1, Seq: 0}, [][]byte{[]byte("k"), []byte("v")})
	stream.Stream.Add(value.StreamID{Ms: 2, Seq: 3}, [][]byte{[]byte("k2"), []byte("v2")})
	stream.Stream.CreateGroup("g", value.StreamID{Ms: 1})
	g, _ := stream.Stream.Group("g")
	g.Deliver(value.StreamID{Ms: 2, Seq: 3}, "c1", 42)

	for _, v := range []*value.Value{str, list, hash, set, zset, stream} {
		got := roundTrip(t, v)
		if !v.Equal(got) {
			t.Errorf("round trip of %s not structurally equal", v.Kind.TypeName())
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, err := Encode(value.NewString([]byte("payload")))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip a byte somewhere in the middle.
	bad := append([]byte(nil), data...)
	bad[len(bad)/2] ^= 0xff
	if _, err := Decode(bad); err == nil {
		t.Error("corrupted payload accepted")
	}

	if _, err := Decode([]byte("garbage")); err != ErrBadPayload {
		t.Errorf("garbage err = %v, want ErrBadPayload", err)
	}
	if _, err := Decode(nil); err == nil {
		t.Error("empty payload accepted")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	raw, err := msgpack.Marshal(&body{Kind: 99})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data, err := msgpack.Marshal(&envelope{
		Version: formatVersion,
		Body:    raw,
		Sum:     murmur3.Sum64(raw),
	})
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}
	if _, err := Decode(data); err != ErrBadPayload {
		t.Errorf("unknown kind err = %v, want ErrBadPayload", err)
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	raw, _ := msgpack.Marshal(&body{Kind: uint8(value.KindString)})
	data, _ := msgpack.Marshal(&envelope{
		Version: formatVersion + 1,
		Body:    raw,
		Sum:     murmur3.Sum64(raw),
	})
	if _, err := Decode(data); err != ErrBadPayload {
		t.Errorf("wrong version err = %v, want ErrBadPayload", err)
	}
}
