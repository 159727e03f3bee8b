package server

import (
	"math/bits"

	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// Bitmap commands operate on string values as bit arrays.

func init() {
	register("SETBIT", 4, flagWrite, cmdSetBit)
	register("GETBIT", 3, 0, cmdGetBit)
	register("BITCOUNT", -2, 0, cmdBitCount)
	register("BITPOS", -3, 0, cmdBitPos)
	register("BITOP", -4, flagWrite, cmdBitOp)
}

const maxBitOffset = int64(maxStringSize)*8 - 1

func cmdSetBit(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	offset, err := value.ParseInt(args[2])
	if err != nil || offset < 0 || offset > maxBitOffset {
		return resp.Error(msgOffsetRange)
	}
	bit, err := value.ParseInt(args[3])
	if err != nil || (bit != 0 && bit != 1) {
		return resp.Error(msgBitValue)
	}

	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	var cur []byte
	if v != nil {
		cur = v.Str
	}
	byteIdx := int(offset / 8)
	bitIdx := 7 - uint(offset%8)
	if len(cur) <= byteIdx {
		grown := make([]byte, byteIdx+1)
		copy(grown, cur)
		cur = grown
	} else {
		cur = append([]byte(nil), cur...)
	}
	old := (cur[byteIdx] >> bitIdx) & 1
	if bit == 1 {
		cur[byteIdx] |= 1 << bitIdx
	} else {
		cur[byteIdx] &^= 1 << bitIdx
	}
	if v != nil {
		v.Str = cur
	} else {
		s.dbOf(c).SetKeepTTL(key, value.NewString(cur))
	}
	s.keyModified(c.db, key, classString, "setbit")
	return resp.Integer(int64(old))
}

func cmdGetBit(s *Server, c *Conn, args [][]byte) resp.Reply {
	offset, err := value.ParseInt(args[2])
	if err != nil || offset < 0 || offset > maxBitOffset {
		return resp.Error(msgOffsetRange)
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	byteIdx := int(offset / 8)
	if byteIdx >= len(v.Str) {
		return resp.Integer(0)
	}
	return resp.Integer(int64((v.Str[byteIdx] >> (7 - uint(offset%8))) & 1))
}

// cmdBitCount counts set bits, optionally within a start/end pair
// (inclusive, negatives from the end) in BYTE or BIT units.
func cmdBitCount(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}

	useBit := false
	hasRange := false
	var start, end int64
	switch len(args) {
	case 2:
	case 4, 5:
		var err1, err2 error
		start, err1 = value.ParseInt(args[2])
		end, err2 = value.ParseInt(args[3])
		if err1 != nil || err2 != nil {
			return resp.Error(msgNotInt)
		}
		hasRange = true
		if len(args) == 5 {
			switch argUpper(args[4]) {
			case "BYTE":
			case "BIT":
				useBit = true
			default:
				return resp.Error(msgSyntax)
			}
		}
	default:
		return resp.Error(msgSyntax)
	}

	if v == nil {
		return resp.Integer(0)
	}
	data := v.Str
	if !hasRange {
		return resp.Integer(int64(popCount(data)))
	}

	if useBit {
		total := int64(len(data)) * 8
		start, end, ok := clampInt64Range(start, end, total)
		if !ok {
			return resp.Integer(0)
		}
		count := 0
		for i := start; i <= end; i++ {
			if data[i/8]>>(7-uint(i%8))&1 == 1 {
				count++
			}
		}
		return resp.Integer(int64(count))
	}

	start, end, ok := clampInt64Range(start, end, int64(len(data)))
	if !ok {
		return resp.Integer(0)
	}
	return resp.Integer(int64(popCount(data[start : end+1])))
}

func popCount(b []byte) int {
	n := 0
	for _, x := range b {
		n += bits.OnesCount8(x)
	}
	return n
}

func clampInt64Range(start, end, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end += n
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end || start >= n || end < 0 {
		return 0, 0, false
	}
	return start, end, true
}

func cmdBitPos(s *Server, c *Conn, args [][]byte) resp.Reply {
	bit, err := value.ParseInt(args[2])
	if err != nil || (bit != 0 && bit != 1) {
		return resp.Error("ERR The bit argument must be 1 or 0.")
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}

	useBit := false
	hasStart, hasEnd := false, false
	var start, end int64
	if len(args) >= 4 {
		start, err = value.ParseInt(args[3])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		hasStart = true
	}
	if len(args) >= 5 {
		end, err = value.ParseInt(args[4])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		hasEnd = true
	}
	if len(args) == 6 {
		switch argUpper(args[5]) {
		case "BYTE":
		case "BIT":
			useBit = true
		default:
			return resp.Error(msgSyntax)
		}
	} else if len(args) > 6 {
		return resp.Error(msgSyntax)
	}

	if v == nil {
		// Missing keys are all-zeros: bit 0 is at position 0, bit 1
		// is absent.
		if bit == 0 {
			return resp.Integer(0)
		}
		return resp.Integer(-1)
	}
	data := v.Str
	totalBits := int64(len(data)) * 8

	var lo, hi int64
	if useBit {
		lo, hi = 0, totalBits-1
	} else {
		lo, hi = 0, int64(len(data))-1
	}
	if hasStart {
		lo = start
	}
	if hasEnd {
		hi = end
	}
	var ok bool
	if useBit {
		lo, hi, ok = clampInt64Range(lo, hi, totalBits)
	} else {
		lo, hi, ok = clampInt64Range(lo, hi, int64(len(data)))
		if ok {
			lo, hi = lo*8, hi*8+7
		}
	}
	if !ok {
		return resp.Integer(-1)
	}

	for i := lo; i <= hi && i < totalBits; i++ {
		if int64(data[i/8]>>(7-uint(i%8))&1) == bit {
			return resp.Integer(i)
		}
	}
	// Searching for a 0 with no explicit end behaves as if the string
	// continued with zero bytes.
	if bit == 0 && !hasEnd {
		return resp.Integer(totalBits)
	}
	return resp.Integer(-1)
}

func cmdBitOp(s *Server, c *Conn, args [][]byte) resp.Reply {
	op := argUpper(args[1])
	dst := string(args[2])
	srcKeys := args[3:]
	if op == "NOT" && len(srcKeys) != 1 {
		return resp.Error("ERR BITOP NOT must be called with a single source key.")
	}
	switch op {
	case "AND", "OR", "XOR", "NOT":
	default:
		return resp.Error(msgSyntax)
	}
	names := []string{dst}
	for _, k := range srcKeys {
		names = append(names, string(k))
	}
	if errReply := s.checkSlots(names...); errReply != nil {
		return errReply
	}

	inputs := make([][]byte, 0, len(srcKeys))
	maxLen := 0
	for _, k := range srcKeys {
		v, errReply := s.lookup(c, string(k), value.KindString)
		if errReply != nil {
			return errReply
		}
		var b []byte
		if v != nil {
			b = v.Str
		}
		if len(b) > maxLen {
			maxLen = len(b)
		}
		inputs = append(inputs, b)
	}

	d := s.dbOf(c)
	if maxLen == 0 {
		// Zero-length result deletes the destination.
		if d.Exists(dst, c.now) {
			d.Delete(dst)
			s.keyModified(c.db, dst, classGeneric, "del")
		}
		return resp.Integer(0)
	}

	result := make([]byte, maxLen)
	// Shorter operands are zero-extended.
	at := func(b []byte, i int) byte {
		if i < len(b) {
			return b[i]
		}
		return 0
	}
	for i := 0; i < maxLen; i++ {
		switch op {
		case "NOT":
			result[i] = ^at(inputs[0], i)
		case "AND":
			acc := at(inputs[0], i)
			for _, b := range inputs[1:] {
				acc &= at(b, i)
			}
			result[i] = acc
		case "OR":
			acc := at(inputs[0], i)
			for _, b := range inputs[1:] {
				acc |= at(b, i)
			}
			result[i] = acc
		case "XOR":
			acc := at(inputs[0], i)
			for _, b := range inputs[1:] {
				acc ^= at(b, i)
			}
			result[i] = acc
		}
	}
	d.Set(dst, value.NewString(result))
	s.keyModified(c.db, dst, classString, "set")
	return resp.Integer(int64(maxLen))
}
