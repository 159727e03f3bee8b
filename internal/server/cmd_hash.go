package server

import (
	"sort"
	"strconv"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
	"github.com/yndnr/redsim-go/pkg/glob"
)

// Hash commands, including the field-expiry family.

func init() {
	register("HSET", -4, flagWrite, cmdHSet)
	register("HMSET", -4, flagWrite, cmdHMSet)
	register("HSETNX", 4, flagWrite, cmdHSetNX)
	register("HGET", 3, 0, cmdHGet)
	register("HMGET", -3, 0, cmdHMGet)
	register("HGETALL", 2, 0, cmdHGetAll)
	register("HDEL", -3, flagWrite, cmdHDel)
	register("HLEN", 2, 0, cmdHLen)
	register("HEXISTS", 3, 0, cmdHExists)
	register("HKEYS", 2, 0, cmdHKeys)
	register("HVALS", 2, 0, cmdHVals)
	register("HSTRLEN", 3, 0, cmdHStrlen)
	register("HINCRBY", 4, flagWrite, cmdHIncrBy)
	register("HINCRBYFLOAT", 4, flagWrite, cmdHIncrByFloat)
	register("HRANDFIELD", -2, 0, cmdHRandField)
	register("HSCAN", -3, 0, cmdHScan)
	register("HEXPIRE", -6, flagWrite, cmdHExpire)
	register("HPEXPIRE", -6, flagWrite, cmdHExpire)
	register("HEXPIREAT", -6, flagWrite, cmdHExpire)
	register("HPEXPIREAT", -6, flagWrite, cmdHExpire)
	register("HTTL", -5, 0, cmdHTTL)
	register("HPTTL", -5, 0, cmdHTTL)
	register("HPERSIST", -5, flagWrite, cmdHPersist)
}

func cmdHSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	if len(args)%2 != 0 {
		return errWrongArity(string(args[0]))
	}
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindHash, value.NewHash)
	if errReply != nil {
		return errReply
	}
	created := 0
	for i := 2; i < len(args); i += 2 {
		if v.Hash.Set(string(args[i]), append([]byte(nil), args[i+1]...)) {
			created++
		}
	}
	s.keyModified(c.db, key, classHash, "hset")
	return resp.Integer(int64(created))
}

func cmdHMSet(s *Server, c *Conn, args [][]byte) resp.Reply {
	if r := cmdHSet(s, c, args); isErrorReply(r) {
		return r
	}
	return resp.OK
}

func isErrorReply(r resp.Reply) bool {
	_, ok := r.(resp.Error)
	return ok
}

func cmdHSetNX(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindHash, value.NewHash)
	if errReply != nil {
		return errReply
	}
	field := string(args[2])
	if _, ok := v.Hash.Get(field); ok {
		s.dropIfEmpty(c, key, v)
		return resp.Integer(0)
	}
	v.Hash.Set(field, append([]byte(nil), args[3]...))
	s.keyModified(c.db, key, classHash, "hset")
	return resp.Integer(1)
}

func cmdHGet(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	fv, ok := v.Hash.Get(string(args[2]))
	if !ok {
		return resp.Null{}
	}
	return resp.Bulk(fv)
}

func cmdHMGet(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	out := make(resp.Array, 0, len(args)-2)
	for _, f := range args[2:] {
		if v == nil {
			out = append(out, resp.Null{})
			continue
		}
		fv, ok := v.Hash.Get(string(f))
		if !ok {
			out = append(out, resp.Null{})
			continue
		}
		out = append(out, resp.Bulk(fv))
	}
	return out
}

func cmdHGetAll(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	out := resp.Map{}
	if v == nil {
		return out
	}
	for _, f := range v.Hash.Fields() {
		fv, _ := v.Hash.Get(f)
		out = append(out, resp.BulkString(f), resp.Bulk(fv))
	}
	return out
}

func cmdHDel(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	deleted := 0
	for _, f := range args[2:] {
		if v.Hash.Delete(string(f)) {
			deleted++
		}
	}
	if deleted > 0 {
		s.writeEffect(c.db, key, classHash, "hdel")
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(deleted))
}

func cmdHLen(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(v.Hash.Len()))
}

func cmdHExists(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	if _, ok := v.Hash.Get(string(args[2])); ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func cmdHKeys(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	out := resp.Array{}
	if v == nil {
		return out
	}
	for _, f := range v.Hash.Fields() {
		out = append(out, resp.BulkString(f))
	}
	return out
}

func cmdHVals(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	out := resp.Array{}
	if v == nil {
		return out
	}
	for _, f := range v.Hash.Fields() {
		fv, _ := v.Hash.Get(f)
		out = append(out, resp.Bulk(fv))
	}
	return out
}

func cmdHStrlen(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	fv, ok := v.Hash.Get(string(args[2]))
	if !ok {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(fv)))
}

func cmdHIncrBy(s *Server, c *Conn, args [][]byte) resp.Reply {
	delta, err := value.ParseInt(args[3])
	if err != nil {
		return resp.Error(msgNotInt)
	}
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindHash, value.NewHash)
	if errReply != nil {
		return errReply
	}
	field := string(args[2])
	cur := int64(0)
	if fv, ok := v.Hash.Get(field); ok {
		n, err := value.ParseInt(fv)
		if err != nil {
			s.dropIfEmpty(c, key, v)
			return resp.Error("ERR hash value is not an integer")
		}
		cur = n
	}
	next, err := value.AddInt(cur, delta)
	if err != nil {
		s.dropIfEmpty(c, key, v)
		return resp.Error(msgNotInt)
	}
	v.Hash.Set(field, []byte(strconv.FormatInt(next, 10)))
	s.keyModified(c.db, key, classHash, "hincrby")
	return resp.Integer(next)
}

func cmdHIncrByFloat(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindHash, value.NewHash)
	if errReply != nil {
		return errReply
	}
	field := string(args[2])
	cur := []byte("0")
	if fv, ok := v.Hash.Get(field); ok {
		cur = fv
	}
	result, err := value.AddFloat(cur, args[3])
	if err != nil {
		s.dropIfEmpty(c, key, v)
		return resp.Error("ERR hash value is not a float")
	}
	v.Hash.Set(field, []byte(result))
	s.keyModified(c.db, key, classHash, "hincrbyfloat")
	return resp.BulkString(result)
}

func cmdHRandField(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindHash)
	if errReply != nil {
		return errReply
	}
	withValues := false
	hasCount := len(args) >= 3
	count := 1
	if hasCount {
		n, err := value.ParseInt(args[2])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		count = int(n)
		if len(args) == 4 {
			if argUpper(args[3]) != "WITHVALUES" {
				return resp.Error(msgSyntax)
			}
			withValues = true
		} else if len(args) > 4 {
			return resp.Error(msgSyntax)
		}
	}
	if v == nil {
		if hasCount {
			return resp.Array{}
		}
		return resp.Null{}
	}

	fields := v.Hash.Fields()
	if !hasCount {
		f := fields[s.rnd.Intn(len(fields))]
		return resp.BulkString(f)
	}
	picked := pickRandom(s, fields, count)
	out := resp.Array{}
	for _, f := range picked {
		out = append(out, resp.BulkString(f))
		if withValues {
			fv, _ := v.Hash.Get(f)
			out = append(out, resp.Bulk(fv))
		}
	}
	return out
}

// pickRandom draws count names: a positive count yields distinct
// names (at most all of them), a negative count may repeat.
func pickRandom(s *Server, names []string, count int) []string {
	if count < 0 {
		out := make([]string, -count)
		for i := range out {
			out[i] = names[s.rnd.Intn(len(names))]
		}
		return out
	}
	if count >= len(names) {
		return append([]string(nil), names...)
	}
	idx := s.rnd.Perm(len(names))[:count]
	out := make([]string, count)
	for i, j := range idx {
		out[i] = names[j]
	}
	return out
}

func cmdHScan(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindHash)
	if errReply != nil {
		return errReply
	}
	pattern, count, noValues, errReply := parseSubScanArgs(args, true)
	if errReply != nil {
		return errReply
	}
	cursorID, err := strconv.ParseUint(string(args[2]), 10, 64)
	if err != nil {
		return resp.Error("ERR invalid cursor")
	}
	if v == nil {
		return resp.Array{resp.BulkString("0"), resp.Array{}}
	}

	names := v.Hash.Fields()
	sort.Strings(names)
	batch, next := subScan(s.dbOf(c), key, cursorID, names, count)

	out := resp.Array{}
	for _, f := range batch {
		if pattern != "" && !glob.Match(pattern, f) {
			continue
		}
		out = append(out, resp.BulkString(f))
		if !noValues {
			fv, _ := v.Hash.Get(f)
			out = append(out, resp.Bulk(fv))
		}
	}
	return resp.Array{resp.BulkString(next), out}
}

// parseSubScanArgs parses MATCH/COUNT (and NOVALUES for HSCAN) from
// args[3:].
func parseSubScanArgs(args [][]byte, allowNoValues bool) (pattern string, count int, noValues bool, errReply resp.Reply) {
	count = 10
	for i := 3; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "MATCH":
			if i+1 >= len(args) {
				return "", 0, false, resp.Error(msgSyntax)
			}
			pattern = string(args[i+1])
			i++
		case "COUNT":
			if i+1 >= len(args) {
				return "", 0, false, resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n <= 0 {
				return "", 0, false, resp.Error(msgSyntax)
			}
			count = n
			i++
		case "NOVALUES":
			if !allowNoValues {
				return "", 0, false, resp.Error(msgSyntax)
			}
			noValues = true
		default:
			return "", 0, false, resp.Error(msgSyntax)
		}
	}
	return pattern, count, noValues, nil
}

// subScan advances a collection scan over sorted member names using
// the database cursor registry.
func subScan(d *db.DB, key string, cursorID uint64, sorted []string, count int) ([]string, string) {
	after := ""
	if cursorID != 0 {
		if cur := d.LoadCursor(cursorID); cur != nil && cur.Key == key {
			after = cur.Last
		}
	}
	batch, last, done := db.ScanAfter(sorted, after, count)
	if done {
		return batch, "0"
	}
	return batch, strconv.FormatUint(d.SaveCursor(&db.Cursor{Key: key, Last: last}), 10)
}

// ============================================================
// Field expiry family
// ============================================================

// parseHFields parses the shared "FIELDS numfields field..." suffix
// used by the HEXPIRE family, starting at args[from], and returns the
// field names.
func parseHFields(args [][]byte, from int) ([]string, resp.Reply) {
	if from+1 >= len(args) || argUpper(args[from]) != "FIELDS" {
		return nil, resp.Error("ERR Mandatory keyword FIELDS is missing or not at the right position")
	}
	n, err := strconv.Atoi(string(args[from+1]))
	if err != nil || n <= 0 {
		return nil, resp.Error("ERR Parameter `numFields` should be greater than 0")
	}
	rest := args[from+2:]
	if len(rest) != n {
		return nil, resp.Error("ERR Parameter `numFields` is more than number of arguments")
	}
	out := make([]string, n)
	for i, f := range rest {
		out[i] = string(f)
	}
	return out, nil
}

func cmdHExpire(s *Server, c *Conn, args [][]byte) resp.Reply {
	cmd := argUpper(args[0])
	key := string(args[1])
	n, err := value.ParseInt(args[2])
	if err != nil {
		return resp.Error(msgNotInt)
	}

	// Condition flags mirror EXPIRE.
	from := 3
	var nx, xx, gt, lt bool
	for from < len(args) {
		done := false
		switch argUpper(args[from]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		default:
			done = true
		}
		if done {
			break
		}
		from++
	}
	if (nx && (xx || gt || lt)) || (gt && lt) {
		return resp.Error("ERR NX and XX, GT or LT options at the same time are not compatible")
	}
	fields, errReply := parseHFields(args, from)
	if errReply != nil {
		return errReply
	}

	var deadline int64
	switch cmd {
	case "HEXPIRE":
		deadline = c.now + n*1000
	case "HPEXPIRE":
		deadline = c.now + n
	case "HEXPIREAT":
		deadline = n * 1000
	case "HPEXPIREAT":
		deadline = n
	}

	v, errReply := s.lookup(c, key, value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(msgNoSuchKey)
	}

	out := make(resp.Array, 0, len(fields))
	changed := false
	for _, f := range fields {
		if _, ok := v.Hash.Get(f); !ok {
			out = append(out, resp.Integer(-2))
			continue
		}
		cur, hasTTL := v.Hash.TTL(f)
		skip := (nx && hasTTL) || (xx && !hasTTL) ||
			(gt && (!hasTTL || deadline <= cur)) ||
			(lt && hasTTL && deadline >= cur)
		if skip {
			out = append(out, resp.Integer(0))
			continue
		}
		if deadline <= c.now {
			v.Hash.Delete(f)
			out = append(out, resp.Integer(2))
		} else {
			v.Hash.SetTTL(f, deadline)
			out = append(out, resp.Integer(1))
		}
		changed = true
	}
	if changed {
		s.writeEffect(c.db, key, classHash, "hexpire")
		s.dropIfEmpty(c, key, v)
	}
	return out
}

func cmdHTTL(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	fields, errReply := parseHFields(args, 2)
	if errReply != nil {
		return errReply
	}
	v, errReply := s.lookup(c, key, value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(msgNoSuchKey)
	}
	ms := argUpper(args[0]) == "HPTTL"
	out := make(resp.Array, 0, len(fields))
	for _, f := range fields {
		if _, ok := v.Hash.Get(f); !ok {
			out = append(out, resp.Integer(-2))
			continue
		}
		dl, ok := v.Hash.TTL(f)
		if !ok {
			out = append(out, resp.Integer(-1))
			continue
		}
		remaining := dl - c.now
		if ms {
			out = append(out, resp.Integer(remaining))
		} else {
			out = append(out, resp.Integer((remaining+999)/1000))
		}
	}
	return out
}

func cmdHPersist(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	fields, errReply := parseHFields(args, 2)
	if errReply != nil {
		return errReply
	}
	v, errReply := s.lookup(c, key, value.KindHash)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Error(msgNoSuchKey)
	}
	out := make(resp.Array, 0, len(fields))
	for _, f := range fields {
		if _, ok := v.Hash.Get(f); !ok {
			out = append(out, resp.Integer(-2))
			continue
		}
		if v.Hash.Persist(f) {
			out = append(out, resp.Integer(1))
		} else {
			out = append(out, resp.Integer(-1))
		}
	}
	return out
}
