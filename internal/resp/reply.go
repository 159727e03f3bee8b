// Package resp implements the Redis serialization protocol: the
// client-to-server command framing (arrays of bulk strings plus the
// inline form) and the server-to-client reply types for protocol
// versions 2 and 3.
//
// Replies are a closed set of typed values. Handlers build replies;
// the Writer renders them according to the negotiated protocol
// version, downgrading RESP3-only shapes (maps, sets, doubles,
// booleans, verbatim strings, pushes) to their RESP2 equivalents.
package resp

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Reply is a server reply value.
type Reply interface {
	isReply()
}

// Simple is a RESP simple string ("+OK").
type Simple string

// Error is an error reply. The value carries the full text including
// the conventional prefix (ERR, WRONGTYPE, ...).
type Error string

// Integer is an integer reply.
type Integer int64

// Bulk is a bulk string reply. A nil slice renders as a null.
type Bulk []byte

// Null is the null reply ($-1 in RESP2, _ in RESP3).
type Null struct{}

// NullArray is the null array reply (*-1 in RESP2, _ in RESP3).
type NullArray struct{}

// Array is an array reply.
type Array []Reply

// Map is a map reply: a flat list of alternating keys and values.
// RESP2 renders it as a flat array.
type Map []Reply

// Set is a set reply. RESP2 renders it as an array.
type Set []Reply

// Push is an out-of-band push reply (pub/sub messages). RESP2 renders
// it as an array.
type Push []Reply

// Double is a double reply. RESP2 renders it as a bulk string.
type Double float64

// Boolean is a boolean reply. RESP2 renders it as an integer.
type Boolean bool

// BigNumber is an arbitrary-precision integer reply, held as its
// decimal text. RESP2 renders it as a bulk string.
type BigNumber string

// Multi is a sequence of frames written back-to-back with no
// enclosing header. SUBSCRIBE and friends reply with one frame per
// channel; Multi lets a handler return them as one value.
type Multi []Reply

// Verbatim is a verbatim string reply with a three-character format
// hint ("txt", "mkd"). RESP2 renders it as a bulk string.
type Verbatim struct {
	Format string
	Text   string
}

func (Simple) isReply()    {}
func (Error) isReply()     {}
func (Integer) isReply()   {}
func (Bulk) isReply()      {}
func (Null) isReply()      {}
func (NullArray) isReply() {}
func (Array) isReply()     {}
func (Map) isReply()       {}
func (Set) isReply()       {}
func (Push) isReply()      {}
func (Double) isReply()    {}
func (Boolean) isReply()   {}
func (BigNumber) isReply() {}
func (Verbatim) isReply()  {}
func (Multi) isReply()     {}

// OK is the canonical success reply.
const OK = Simple("OK")

// BulkString builds a bulk reply from a string.
func BulkString(s string) Bulk { return Bulk([]byte(s)) }

// BulkInt builds a bulk reply from an integer, as commands that reply
// with numbers-as-strings (INCRBYFLOAT and friends) need.
func BulkInt(n int64) Bulk { return Bulk(strconv.AppendInt(nil, n, 10)) }

// StringArray builds an array of bulk strings.
func StringArray(ss ...string) Array {
	out := make(Array, len(ss))
	for i, s := range ss {
		out[i] = BulkString(s)
	}
	return out
}

// FormatDouble renders a float the way reply text expects it: "inf"
// and "-inf" for the infinities, integers without a decimal point,
// and the shortest decimal form that round-trips otherwise.
func FormatDouble(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(f).String()
}
