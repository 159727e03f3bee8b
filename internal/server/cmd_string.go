package server

import (
	"bytes"
	"math"
	"strconv"

	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
)

// String commands.

// maxStringSize caps APPEND/SETRANGE growth (proto-max-bulk-len).
const maxStringSize = 512 * 1024 * 1024

func init() {
	register("SET", -3, flagWrite, cmdSet)
	register("GET", 2, 0, cmdGet)
	register("GETSET", 3, flagWrite, cmdGetSet)
	register("GETDEL", 2, flagWrite, cmdGetDel)
	register("GETEX", -2, flagWrite, cmdGetEx)
	register("SETNX", 3, flagWrite, cmdSetNX)
	register("SETEX", 4, flagWrite, cmdSetEx)
	register("PSETEX", 4, flagWrite, cmdPSetEx)
	register("MSET", -3, flagWrite, cmdMSet)
	register("MSETNX", -3, flagWrite, cmdMSetNX)
	register("MGET", -2, 0, cmdMGet)
	register("APPEND", 3, flagWrite, cmdAppend)
	register("STRLEN", 2, 0, cmdStrlen)
	register("INCR", 2, flagWrite, cmdIncr)
	register("DECR", 2, flagWrite, cmdDecr)
	register("INCRBY", 3, flagWrite, cmdIncrBy)
	register("DECRBY", 3, flagWrite, cmdDecrBy)
	register("INCRBYFLOAT", 3, flagWrite, cmdIncrByFloat)
	register("SETRANGE", 4, flagWrite, cmdSetRange)
	register("GETRANGE", 4, 0, cmdGetRange)
	register("SUBSTR", 4, 0, cmdGetRange)
	register("LCS", -3, 0, cmdLCS)
}

// setCondition is the SET comparison gate: NX/XX presence checks or
// the value comparisons IFEQ/IFGT/IFLT.
type setCondition struct {
	nx, xx  bool
	cmp     byte // 0, '=', '>', '<'
	cmpWith []byte
}

func cmdSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	key, val := string(args[1]), args[2]
	var (
		cond     setCondition
		keepTTL  bool
		withGet  bool
		expireAt int64 // absolute ms; 0 = none
		expires  int
	)

	for i := 3; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "NX":
			cond.nx = true
		case "XX":
			cond.xx = true
		case "GET":
			withGet = true
		case "KEEPTTL":
			keepTTL = true
			expires++
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			opt := argUpper(args[i])
			at, ok := resolveExpiry(opt, n, c.now)
			if !ok {
				return errInvalidExpire("set")
			}
			expireAt = at
			expires++
			i++
		case "IFEQ", "IFGT", "IFLT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			switch argUpper(args[i]) {
			case "IFEQ":
				cond.cmp = '='
			case "IFGT":
				cond.cmp = '>'
			default:
				cond.cmp = '<'
			}
			cond.cmpWith = args[i+1]
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}
	if (cond.nx && cond.xx) || expires > 1 {
		return resp.Error(msgSyntax)
	}
	if cond.cmp != 0 && (cond.nx || cond.xx) {
		return resp.Error(msgSyntax)
	}
	if cond.nx && withGet && s.cfg.ServerVersion < 7 {
		// Allowed from 7.0 onward.
		return resp.Error(msgSyntax)
	}

	d := s.dbOf(c)
	existing, ok := d.Get(key, c.now)
	if ok && existing.Kind != value.KindString && (withGet || cond.cmp != 0) {
		return resp.Error(msgWrongType)
	}

	var old resp.Reply = resp.Null{}
	if ok && existing.Kind == value.KindString {
		old = resp.Bulk(existing.Str)
	}
	miss := func() resp.Reply {
		if withGet {
			return old
		}
		return resp.Null{}
	}

	if cond.nx && ok {
		return miss()
	}
	if cond.xx && !ok {
		return miss()
	}
	if cond.cmp != 0 {
		if !ok {
			return miss()
		}
		diff := bytes.Compare(existing.Str, cond.cmpWith)
		switch cond.cmp {
		case '=':
			if diff != 0 {
				return miss()
			}
		case '>':
			if diff <= 0 {
				return miss()
			}
		case '<':
			if diff >= 0 {
				return miss()
			}
		}
	}

	stored := value.NewString(append([]byte(nil), val...))
	if keepTTL {
		d.SetKeepTTL(key, stored)
	} else {
		d.Set(key, stored)
	}
	if expireAt > 0 {
		d.Expire(key, expireAt, c.now)
	}
	s.keyModified(c.db, key, classString, "set")

	if withGet {
		return old
	}
	return resp.OK
}

// resolveExpiry converts a relative or absolute expiry option to an
// absolute deadline in ms, rejecting non-positive relative values and
// overflow, matching the reference validation.
func resolveExpiry(opt string, n, now int64) (int64, bool) {
	switch opt {
	case "EX":
		if n <= 0 || willOverflowMs(now, n*1000) {
			return 0, false
		}
		return now + n*1000, true
	case "PX":
		if n <= 0 || willOverflowMs(now, n) {
			return 0, false
		}
		return now + n, true
	case "EXAT":
		if willOverflowMs(0, n*1000) {
			return 0, false
		}
		return n * 1000, true
	case "PXAT":
		return n, true
	}
	return 0, false
}

func willOverflowMs(base, delta int64) bool {
	return delta > math.MaxInt64-base
}

func cmdGet(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	return resp.Bulk(v.Str)
}

func cmdGetSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	var old resp.Reply = resp.Null{}
	if v != nil {
		old = resp.Bulk(v.Str)
	}
	s.dbOf(c).Set(key, value.NewString(append([]byte(nil), args[2]...)))
	s.keyModified(c.db, key, classString, "set")
	return old
}

func cmdGetDel(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	s.dbOf(c).Delete(key)
	s.keyModified(c.db, key, classGeneric, "del")
	return resp.Bulk(v.Str)
}

func cmdGetEx(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	var (
		persist  bool
		expireAt int64
		options  int
	)
	for i := 2; i < len(args); i++ {
		switch opt := argUpper(args[i]); opt {
		case "PERSIST":
			persist = true
			options++
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			at, ok := resolveExpiry(opt, n, c.now)
			if !ok {
				return errInvalidExpire("getex")
			}
			expireAt = at
			options++
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}
	if options > 1 {
		return resp.Error(msgSyntax)
	}

	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	d := s.dbOf(c)
	switch {
	case persist:
		if d.Persist(key) {
			s.keyModified(c.db, key, classGeneric, "persist")
		}
	case expireAt > 0:
		d.Expire(key, expireAt, c.now)
		s.keyModified(c.db, key, classGeneric, "expire")
	}
	return resp.Bulk(v.Str)
}

func cmdSetNX(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	if s.dbOf(c).Exists(key, c.now) {
		return resp.Integer(0)
	}
	s.dbOf(c).Set(key, value.NewString(append([]byte(nil), args[2]...)))
	s.keyModified(c.db, key, classString, "set")
	return resp.Integer(1)
}

func cmdSetEx(s *Server, c *Conn, args [][]byte) resp.Reply {
	return setWithTTL(s, c, args, "setex", 1000)
}

func cmdPSetEx(s *Server, c *Conn, args [][]byte) resp.Reply {
	return setWithTTL(s, c, args, "psetex", 1)
}

func setWithTTL(s *Server, c *Conn, args [][]byte, cmd string, unitMs int64) resp.Reply {
	key := string(args[1])
	n, err := value.ParseInt(args[2])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	if n <= 0 || willOverflowMs(c.now, n*unitMs) {
		return errInvalidExpire(cmd)
	}
	d := s.dbOf(c)
	d.Set(key, value.NewString(append([]byte(nil), args[3]...)))
	d.Expire(key, c.now+n*unitMs, c.now)
	s.keyModified(c.db, key, classString, "set")
	return resp.OK
}

func cmdMSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	if len(args)%2 != 1 {
		return errWrongArity("mset")
	}
	keys := make([]string, 0, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		keys = append(keys, string(args[i]))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}
	for i := 1; i < len(args); i += 2 {
		key := string(args[i])
		s.dbOf(c).Set(key, value.NewString(append([]byte(nil), args[i+1]...)))
		s.keyModified(c.db, key, classString, "set")
	}
	return resp.OK
}

func cmdMSetNX(s *Server, c *Conn, args [][]byte) resp.Reply {
	if len(args)%2 != 1 {
		return errWrongArity("msetnx")
	}
	for i := 1; i < len(args); i += 2 {
		if s.dbOf(c).Exists(string(args[i]), c.now) {
			return resp.Integer(0)
		}
	}
	for i := 1; i < len(args); i += 2 {
		key := string(args[i])
		s.dbOf(c).Set(key, value.NewString(append([]byte(nil), args[i+1]...)))
		s.keyModified(c.db, key, classString, "set")
	}
	return resp.Integer(1)
}

func cmdMGet(s *Server, c *Conn, args [][]byte) resp.Reply {
	out := make(resp.Array, 0, len(args)-1)
	for _, k := range args[1:] {
		v, ok := s.dbOf(c).Get(string(k), c.now)
		if !ok || v.Kind != value.KindString {
			out = append(out, resp.Null{})
			continue
		}
		out = append(out, resp.Bulk(v.Str))
	}
	return out
}

func cmdAppend(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	var cur []byte
	if v != nil {
		cur = v.Str
	}
	if len(cur)+len(args[2]) > maxStringSize {
		return resp.Error(msgStringExceeds)
	}
	joined := append(append([]byte(nil), cur...), args[2]...)
	if v != nil {
		v.Str = joined
	} else {
		s.dbOf(c).SetKeepTTL(key, value.NewString(joined))
	}
	s.keyModified(c.db, key, classString, "append")
	return resp.Integer(int64(len(joined)))
}

func cmdStrlen(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(v.Str)))
}

func cmdIncr(s *Server, c *Conn, args [][]byte) resp.Reply {
	return incrBy(s, c, string(args[1]), 1)
}

func cmdDecr(s *Server, c *Conn, args [][]byte) resp.Reply {
	return incrBy(s, c, string(args[1]), -1)
}

func cmdIncrBy(s *Server, c *Conn, args [][]byte) resp.Reply {
	n, err := value.ParseInt(args[2])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	return incrBy(s, c, string(args[1]), n)
}

func cmdDecrBy(s *Server, c *Conn, args [][]byte) resp.Reply {
	n, err := value.ParseInt(args[2])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	if n == math.MinInt64 {
		return resp.Error(msgNotInt)
	}
	return incrBy(s, c, string(args[1]), -n)
}

func incrBy(s *Server, c *Conn, key string, delta int64) resp.Reply {
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	cur := int64(0)
	if v != nil {
		n, err := value.ParseInt(v.Str)
		if err != nil {
			return resp.Error(msgNotInt)
		}
		cur = n
	}
	next, err := value.AddInt(cur, delta)
	if err != nil {
		return resp.Error(msgNotInt)
	}
	encoded := []byte(strconv.FormatInt(next, 10))
	if v != nil {
		v.Str = encoded
	} else {
		s.dbOf(c).SetKeepTTL(key, value.NewString(encoded))
	}
	s.keyModified(c.db, key, classString, "incrby")
	return resp.Integer(next)
}

func cmdIncrByFloat(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	cur := []byte("0")
	if v != nil {
		cur = v.Str
	}
	result, err := value.AddFloat(cur, args[2])
	if err != nil {
		return resp.Error(msgNotFloat)
	}
	if v != nil {
		v.Str = []byte(result)
	} else {
		s.dbOf(c).SetKeepTTL(key, value.NewString([]byte(result)))
	}
	s.keyModified(c.db, key, classString, "incrbyfloat")
	return resp.BulkString(result)
}

func cmdSetRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	offset, err := value.ParseInt(args[2])
	if err != nil || offset < 0 {
		return resp.Error("ERR offset is out of range")
	}
	v, errReply := s.lookup(c, key, value.KindString)
	if errReply != nil {
		return errReply
	}
	var cur []byte
	if v != nil {
		cur = v.Str
	}
	if len(args[3]) == 0 {
		return resp.Integer(int64(len(cur)))
	}
	if offset+int64(len(args[3])) > maxStringSize {
		return resp.Error(msgStringExceeds)
	}
	out := append([]byte(nil), cur...)
	if int64(len(out)) < offset {
		out = append(out, make([]byte, offset-int64(len(out)))...)
	}
	end := offset + int64(len(args[3]))
	if int64(len(out)) < end {
		out = append(out, make([]byte, end-int64(len(out)))...)
	}
	copy(out[offset:end], args[3])
	if v != nil {
		v.Str = out
	} else {
		s.dbOf(c).SetKeepTTL(key, value.NewString(out))
	}
	s.keyModified(c.db, key, classString, "setrange")
	return resp.Integer(int64(len(out)))
}

func cmdGetRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}
	start, err1 := value.ParseInt(args[2])
	end, err2 := value.ParseInt(args[3])
	if err1 != nil || err2 != nil {
		return resp.Error(msgNotInt)
	}
	if v == nil {
		return resp.BulkString("")
	}
	n := int64(len(v.Str))
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
	if n == 0 || start > end || start >= n {
		return resp.BulkString("")
	}
	return resp.Bulk(v.Str[start : end+1])
}

// cmdLCS computes the longest common subsequence of two string keys,
// with the LEN, IDX, MINMATCHLEN and WITHMATCHLEN options.
func cmdLCS(s *Server, c *Conn, args [][]byte) resp.Reply {
	v1, errReply := s.lookup(c, string(args[1]), value.KindString)
	if errReply != nil {
		return errReply
	}
	v2, errReply := s.lookup(c, string(args[2]), value.KindString)
	if errReply != nil {
		return errReply
	}
	var a, b []byte
	if v1 != nil {
		a = v1.Str
	}
	if v2 != nil {
		b = v2.Str
	}

	var (
		wantIdx, wantLen, withMatchLen bool
		minMatchLen                    int64
	)
	for i := 3; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "IDX":
			wantIdx = true
		case "LEN":
			wantLen = true
		case "WITHMATCHLEN":
			withMatchLen = true
		case "MINMATCHLEN":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := value.ParseInt(args[i+1])
			if err != nil {
				return resp.Error(msgNotInt)
			}
			minMatchLen = n
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}
	if wantIdx && wantLen {
		return resp.Error("ERR If you want both the length and indexes, please just use IDX.")
	}

	length, seq, matches := lcs(a, b)
	switch {
	case wantLen:
		return resp.Integer(int64(length))
	case wantIdx:
		items := make(resp.Array, 0, len(matches))
		for _, m := range matches {
			if int64(m.length) < minMatchLen {
				continue
			}
			entry := resp.Array{
				resp.Array{resp.Integer(int64(m.aStart)), resp.Integer(int64(m.aEnd))},
				resp.Array{resp.Integer(int64(m.bStart)), resp.Integer(int64(m.bEnd))},
			}
			if withMatchLen {
				entry = append(entry, resp.Integer(int64(m.length)))
			}
			items = append(items, entry)
		}
		return resp.Map{
			resp.BulkString("matches"), items,
			resp.BulkString("len"), resp.Integer(int64(length)),
		}
	default:
		return resp.Bulk(seq)
	}
}

type lcsMatch struct {
	aStart, aEnd int
	bStart, bEnd int
	length       int
}

// lcs runs the classic dynamic program and backtracks both the
// subsequence and the list of contiguous match segments, most recent
// first, matching the reference reply order.
func lcs(a, b []byte) (int, []byte, []lcsMatch) {
	la, lb := len(a), len(b)
	opt := make([][]int, la+1)
	for i := range opt {
		opt[i] = make([]int, lb+1)
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				opt[i][j] = opt[i-1][j-1] + 1
			} else if opt[i][j-1] >= opt[i-1][j] {
				opt[i][j] = opt[i][j-1]
			} else {
				opt[i][j] = opt[i-1][j]
			}
		}
	}

	var (
		seq     []byte
		matches []lcsMatch
		run     int
		i, j    = la, lb
	)
	for i > 0 && j > 0 {
		if a[i-1] == b[j-1] {
			seq = append([]byte{a[i-1]}, seq...)
			i--
			j--
			run++
			continue
		}
		if run > 0 {
			matches = append(matches, lcsMatch{
				aStart: i, aEnd: i + run - 1,
				bStart: j, bEnd: j + run - 1,
				length: run,
			})
			run = 0
		}
		if opt[i][j-1] >= opt[i-1][j] {
			j--
		} else {
			i--
		}
	}
	if run > 0 {
		matches = append(matches, lcsMatch{
			aStart: i, aEnd: i + run - 1,
			bStart: j, bEnd: j + run - 1,
			length: run,
		})
	}
	return opt[la][lb], seq, matches
}
