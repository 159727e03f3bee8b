// Package value defines the typed value variants stored under a key:
// string, list, hash, set, sorted set, and stream. The variant is a
// closed sum; command handlers check the kind tag before operating
// and surface WRONGTYPE otherwise.
package value

// Kind identifies the stored value variant.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindList
	KindHash
	KindSet
	KindZSet
	KindStream
)

// TypeName returns the name TYPE and error messages use.
func (k Kind) TypeName() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	case KindStream:
		return "stream"
	}
	return "none"
}

// Value is a tagged variant. Exactly one of the kind-specific fields
// is populated, matching Kind.
type Value struct {
	Kind   Kind
	Str    []byte
	List   *List
	Hash   *Hash
	Set    *Set
	ZSet   *ZSet
	Stream *Stream
}

// NewString builds a string value.
func NewString(b []byte) *Value { return &Value{Kind: KindString, Str: b} }

// NewList builds an empty list value.
func NewList() *Value { return &Value{Kind: KindList, List: &List{}} }

// NewHash builds an empty hash value.
func NewHash() *Value { return &Value{Kind: KindHash, Hash: NewHashData()} }

// NewSet builds an empty set value.
func NewSet() *Value { return &Value{Kind: KindSet, Set: NewSetData()} }

// NewZSet builds an empty sorted set value.
func NewZSet() *Value { return &Value{Kind: KindZSet, ZSet: NewZSetData()} }

// NewStream builds an empty stream value.
func NewStream() *Value { return &Value{Kind: KindStream, Stream: NewStreamData()} }

// Empty reports whether a container value has been drained and must
// be removed from the keyspace. String and stream values are never
// empty: a stream persists after trimming away all entries.
func (v *Value) Empty() bool {
	switch v.Kind {
	case KindList:
		return v.List.Len() == 0
	case KindHash:
		return v.Hash.Len() == 0
	case KindSet:
		return v.Set.Len() == 0
	case KindZSet:
		return v.ZSet.Len() == 0
	}
	return false
}

// Clone deep-copies the value. DUMP, COPY and the seeding helpers use
// it so borrows never escape the keyspace.
func (v *Value) Clone() *Value {
	out := &Value{Kind: v.Kind}
	switch v.Kind {
	case KindString:
		out.Str = append([]byte(nil), v.Str...)
	case KindList:
		out.List = v.List.Clone()
	case KindHash:
		out.Hash = v.Hash.Clone()
	case KindSet:
		out.Set = v.Set.Clone()
	case KindZSet:
		out.ZSet = v.ZSet.Clone()
	case KindStream:
		out.Stream = v.Stream.Clone()
	}
	return out
}

// Equal deep-compares two values structurally.
func (v *Value) Equal(o *Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return string(v.Str) == string(o.Str)
	case KindList:
		return v.List.Equal(o.List)
	case KindHash:
		return v.Hash.Equal(o.Hash)
	case KindSet:
		return v.Set.Equal(o.Set)
	case KindZSet:
		return v.ZSet.Equal(o.ZSet)
	case KindStream:
		return v.Stream.Equal(o.Stream)
	}
	return true
}
