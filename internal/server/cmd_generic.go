package server

import (
	"strconv"
	"strings"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/dump"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
	"github.com/yndnr/redsim-go/pkg/glob"
)

// Generic key commands: existence, expiry, rename, scans, DUMP.

func init() {
	register("DEL", -2, flagWrite, cmdDel)
	register("UNLINK", -2, flagWrite, cmdDel)
	register("EXISTS", -2, 0, cmdExists)
	register("TYPE", 2, 0, cmdType)
	register("KEYS", 2, 0, cmdKeys)
	register("RANDOMKEY", 1, 0, cmdRandomKey)
	register("RENAME", 3, flagWrite, cmdRename)
	register("RENAMENX", 3, flagWrite, cmdRenameNX)
	register("COPY", -3, flagWrite, cmdCopy)
	register("MOVE", 3, flagWrite, cmdMove)
	register("TOUCH", -2, 0, cmdTouch)
	register("EXPIRE", -3, flagWrite, cmdExpire)
	register("PEXPIRE", -3, flagWrite, cmdExpire)
	register("EXPIREAT", -3, flagWrite, cmdExpire)
	register("PEXPIREAT", -3, flagWrite, cmdExpire)
	register("TTL", 2, 0, cmdTTL)
	register("PTTL", 2, 0, cmdTTL)
	register("EXPIRETIME", 2, 0, cmdExpireTime)
	register("PEXPIRETIME", 2, 0, cmdExpireTime)
	register("PERSIST", 2, flagWrite, cmdPersist)
	register("DUMP", 2, 0, cmdDump)
	register("RESTORE", -4, flagWrite, cmdRestore)
	register("SCAN", -2, 0, cmdScan)
	register("OBJECT", -2, 0, cmdObject)
}

func cmdDel(s *Server, c *Conn, args [][]byte) resp.Reply {
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}
	deleted := 0
	for _, key := range keys {
		if !s.dbOf(c).Exists(key, c.now) {
			continue
		}
		s.dbOf(c).Delete(key)
		s.keyModified(c.db, key, classGeneric, "del")
		deleted++
	}
	return resp.Integer(int64(deleted))
}

func cmdExists(s *Server, c *Conn, args [][]byte) resp.Reply {
	count := 0
	for _, a := range args[1:] {
		if s.dbOf(c).Exists(string(a), c.now) {
			count++
		}
	}
	return resp.Integer(int64(count))
}

func cmdType(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, ok := s.dbOf(c).Get(string(args[1]), c.now)
	if !ok {
		return resp.Simple("none")
	}
	return resp.Simple(v.Kind.TypeName())
}

func cmdKeys(s *Server, c *Conn, args [][]byte) resp.Reply {
	pattern := string(args[1])
	out := resp.Array{}
	for _, k := range s.dbOf(c).Keys(c.now) {
		if glob.Match(pattern, k) {
			out = append(out, resp.BulkString(k))
		}
	}
	return out
}

func cmdRandomKey(s *Server, c *Conn, args [][]byte) resp.Reply {
	keys := s.dbOf(c).Keys(c.now)
	if len(keys) == 0 {
		return resp.Null{}
	}
	return resp.BulkString(keys[s.rnd.Intn(len(keys))])
}

func cmdRename(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	d := s.dbOf(c)
	if !d.Exists(src, c.now) {
		return resp.Error(msgNoSuchKey)
	}
	d.Rename(src, dst)
	s.keyModified(c.db, src, classGeneric, "rename_from")
	s.keyModified(c.db, dst, classGeneric, "rename_to")
	return resp.OK
}

func cmdRenameNX(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	if errReply := s.checkSlots(src, dst); errReply != nil {
		return errReply
	}
	d := s.dbOf(c)
	if !d.Exists(src, c.now) {
		return resp.Error(msgNoSuchKey)
	}
	if d.Exists(dst, c.now) {
		return resp.Integer(0)
	}
	d.Rename(src, dst)
	s.keyModified(c.db, src, classGeneric, "rename_from")
	s.keyModified(c.db, dst, classGeneric, "rename_to")
	return resp.Integer(1)
}

func cmdCopy(s *Server, c *Conn, args [][]byte) resp.Reply {
	src, dst := string(args[1]), string(args[2])
	dstDB := c.db
	replace := false
	for i := 3; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "DB":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil {
				return resp.Error(msgNotInt)
			}
			if n < 0 || n >= len(s.dbs) {
				return resp.Error(msgDBIndex)
			}
			dstDB = n
			i++
		case "REPLACE":
			replace = true
		default:
			return resp.Error(msgSyntax)
		}
	}
	if dstDB == c.db && src == dst {
		return resp.Error("ERR source and destination objects are the same")
	}
	v, ok := s.dbOf(c).Get(src, c.now)
	if !ok {
		return resp.Integer(0)
	}
	target := s.dbs[dstDB]
	if target.Exists(dst, c.now) && !replace {
		return resp.Integer(0)
	}
	target.Set(dst, v.Clone())
	if dl, hasTTL := s.dbOf(c).Deadline(src); hasTTL {
		target.Expire(dst, dl, c.now)
	}
	s.keyModified(dstDB, dst, classGeneric, "copy_to")
	return resp.Integer(1)
}

func cmdMove(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	n, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return resp.Error(msgNotInt)
	}
	if n < 0 || n >= len(s.dbs) {
		return resp.Error(msgDBIndex)
	}
	if n == c.db {
		return resp.Error("ERR source and destination objects are the same")
	}
	src := s.dbOf(c)
	v, ok := src.Get(key, c.now)
	if !ok {
		return resp.Integer(0)
	}
	dst := s.dbs[n]
	if dst.Exists(key, c.now) {
		return resp.Integer(0)
	}
	dl, hasTTL := src.Deadline(key)
	src.Delete(key)
	dst.Set(key, v)
	if hasTTL {
		dst.Expire(key, dl, c.now)
	}
	s.keyModified(c.db, key, classGeneric, "move_from")
	s.keyModified(n, key, classGeneric, "move_to")
	return resp.Integer(1)
}

func cmdTouch(s *Server, c *Conn, args [][]byte) resp.Reply {
	count := 0
	for _, a := range args[1:] {
		if s.dbOf(c).Exists(string(a), c.now) {
			count++
		}
	}
	return resp.Integer(int64(count))
}

// cmdExpire covers EXPIRE, PEXPIRE, EXPIREAT and PEXPIREAT with the
// NX/XX/GT/LT condition flags.
func cmdExpire(s *Server, c *Conn, args [][]byte) resp.Reply {
	cmd := argUpper(args[0])
	key := string(args[1])
	n, err := value.ParseInt(args[2])
	if err != nil {
		return resp.Error(msgNotInt)
	}

	var nx, xx, gt, lt bool
	for _, a := range args[3:] {
		switch argUpper(a) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		default:
			return resp.Error(msgSyntax)
		}
	}
	if (nx && (xx || gt || lt)) || (gt && lt) {
		return resp.Error("ERR NX and XX, GT or LT options at the same time are not compatible")
	}

	var deadline int64
	switch cmd {
	case "EXPIRE":
		if willOverflowMs(c.now, n*1000) {
			return errInvalidExpire(cmd)
		}
		deadline = c.now + n*1000
	case "PEXPIRE":
		if willOverflowMs(c.now, n) {
			return errInvalidExpire(cmd)
		}
		deadline = c.now + n
	case "EXPIREAT":
		if willOverflowMs(0, n*1000) {
			return errInvalidExpire(cmd)
		}
		deadline = n * 1000
	case "PEXPIREAT":
		deadline = n
	}

	d := s.dbOf(c)
	if !d.Exists(key, c.now) {
		return resp.Integer(0)
	}
	cur, hasTTL := d.Deadline(key)
	switch {
	case nx && hasTTL:
		return resp.Integer(0)
	case xx && !hasTTL:
		return resp.Integer(0)
	case gt && (!hasTTL || deadline <= cur):
		// A key without a TTL is treated as infinite, so GT never
		// replaces it.
		return resp.Integer(0)
	case lt && hasTTL && deadline >= cur:
		return resp.Integer(0)
	}

	if deadline <= c.now {
		// Expiring in the past deletes immediately.
		d.Delete(key)
		s.keyModified(c.db, key, classGeneric, "del")
		return resp.Integer(1)
	}
	d.Expire(key, deadline, c.now)
	s.keyModified(c.db, key, classGeneric, "expire")
	return resp.Integer(1)
}

func cmdTTL(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	d := s.dbOf(c)
	if !d.Exists(key, c.now) {
		return resp.Integer(-2)
	}
	dl, ok := d.Deadline(key)
	if !ok {
		return resp.Integer(-1)
	}
	remaining := dl - c.now
	if argUpper(args[0]) == "PTTL" {
		return resp.Integer(remaining)
	}
	return resp.Integer((remaining + 999) / 1000)
}

func cmdExpireTime(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	d := s.dbOf(c)
	if !d.Exists(key, c.now) {
		return resp.Integer(-2)
	}
	dl, ok := d.Deadline(key)
	if !ok {
		return resp.Integer(-1)
	}
	if argUpper(args[0]) == "PEXPIRETIME" {
		return resp.Integer(dl)
	}
	return resp.Integer(dl / 1000)
}

func cmdPersist(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	if !s.dbOf(c).Exists(key, c.now) {
		return resp.Integer(0)
	}
	if !s.dbOf(c).Persist(key) {
		return resp.Integer(0)
	}
	s.keyModified(c.db, key, classGeneric, "persist")
	return resp.Integer(1)
}

func cmdDump(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, ok := s.dbOf(c).Get(string(args[1]), c.now)
	if !ok {
		return resp.Null{}
	}
	payload, err := dump.Encode(v)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	return resp.Bulk(payload)
}

func cmdRestore(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	ttl, err := value.ParseInt(args[2])
	if err != nil || ttl < 0 {
		return resp.Error("ERR Invalid TTL value, must be >= 0")
	}
	var replace, absTTL bool
	for i := 4; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "REPLACE":
			replace = true
		case "ABSTTL":
			absTTL = true
		case "IDLETIME", "FREQ":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			if _, err := value.ParseInt(args[i+1]); err != nil {
				return resp.Error(msgNotInt)
			}
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}

	d := s.dbOf(c)
	if d.Exists(key, c.now) && !replace {
		return resp.Error("BUSYKEY Target key name already exists.")
	}
	v, err := dump.Decode(args[3])
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	d.Set(key, v)
	if ttl > 0 {
		deadline := ttl
		if !absTTL {
			deadline = c.now + ttl
		}
		d.Expire(key, deadline, c.now)
	}
	s.keyModified(c.db, key, classGeneric, "restore")
	return resp.OK
}

func cmdScan(s *Server, c *Conn, args [][]byte) resp.Reply {
	cursorID, err := strconv.ParseUint(string(args[1]), 10, 64)
	if err != nil {
		return resp.Error("ERR invalid cursor")
	}
	var (
		pattern  string
		typeName string
		count    = 10
	)
	for i := 2; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "MATCH":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			pattern = string(args[i+1])
			i++
		case "COUNT":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n <= 0 {
				return resp.Error(msgSyntax)
			}
			count = n
			i++
		case "TYPE":
			if i+1 >= len(args) {
				return resp.Error(msgSyntax)
			}
			typeName = strings.ToLower(string(args[i+1]))
			i++
		default:
			return resp.Error(msgSyntax)
		}
	}

	d := s.dbOf(c)
	after := ""
	if cursorID != 0 {
		if cur := d.LoadCursor(cursorID); cur != nil {
			after = cur.Last
		}
	}
	batch, last, done := db.ScanAfter(d.KeysSorted(c.now), after, count)

	out := resp.Array{}
	for _, k := range batch {
		if pattern != "" && !glob.Match(pattern, k) {
			continue
		}
		if typeName != "" {
			if v, ok := d.Get(k, c.now); !ok || v.Kind.TypeName() != typeName {
				continue
			}
		}
		out = append(out, resp.BulkString(k))
	}

	next := "0"
	if !done {
		next = strconv.FormatUint(d.SaveCursor(&db.Cursor{Last: last}), 10)
	}
	return resp.Array{resp.BulkString(next), out}
}

func cmdObject(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	if len(args) != 3 {
		if sub == "HELP" {
			return resp.Array{resp.BulkString("OBJECT ENCODING|REFCOUNT|IDLETIME|FREQ <key>")}
		}
		return errUnknownSubcommand(strings.ToLower(sub), "OBJECT")
	}
	v, ok := s.dbOf(c).Get(string(args[2]), c.now)
	if !ok {
		return resp.Error(msgNoSuchKey)
	}
	switch sub {
	case "ENCODING":
		return resp.BulkString(encodingHint(v))
	case "REFCOUNT":
		return resp.Integer(1)
	case "IDLETIME":
		return resp.Integer(0)
	case "FREQ":
		return resp.Error("ERR An LFU maxmemory policy is not selected, access frequency not tracked.")
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "OBJECT")
	}
}

// encodingHint synthesizes the encoding name the reference server
// would most plausibly report; DEBUG OBJECT uses it too.
func encodingHint(v *value.Value) string {
	switch v.Kind {
	case value.KindString:
		if _, err := value.ParseInt(v.Str); err == nil {
			return "int"
		}
		if len(v.Str) <= 44 {
			return "embstr"
		}
		return "raw"
	case value.KindList:
		if v.List.Len() <= 128 {
			return "listpack"
		}
		return "quicklist"
	case value.KindHash:
		if v.Hash.Len() <= 128 {
			return "listpack"
		}
		return "hashtable"
	case value.KindSet:
		allInts := true
		for _, m := range v.Set.Members() {
			if _, err := value.ParseInt([]byte(m)); err != nil {
				allInts = false
				break
			}
		}
		if allInts && v.Set.Len() <= 512 {
			return "intset"
		}
		if v.Set.Len() <= 128 {
			return "listpack"
		}
		return "hashtable"
	case value.KindZSet:
		if v.ZSet.Len() <= 128 {
			return "listpack"
		}
		return "skiplist"
	case value.KindStream:
		return "stream"
	}
	return "unknown"
}
