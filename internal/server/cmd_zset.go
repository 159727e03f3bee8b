package server

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/value"
	"github.com/yndnr/redsim-go/pkg/glob"
)

// Sorted-set commands.

func init() {
	register("ZADD", -4, flagWrite, cmdZAdd)
	register("ZSCORE", 3, 0, cmdZScore)
	register("ZMSCORE", -3, 0, cmdZMScore)
	register("ZCARD", 2, 0, cmdZCard)
	register("ZCOUNT", 4, 0, cmdZCount)
	register("ZLEXCOUNT", 4, 0, cmdZLexCount)
	register("ZINCRBY", 4, flagWrite, cmdZIncrBy)
	register("ZRANGE", -4, 0, cmdZRange)
	register("ZREVRANGE", -4, 0, cmdZRevRange)
	register("ZRANGEBYSCORE", -4, 0, cmdZRangeByScore)
	register("ZREVRANGEBYSCORE", -4, 0, cmdZRevRangeByScore)
	register("ZRANGEBYLEX", -4, 0, cmdZRangeByLex)
	register("ZREVRANGEBYLEX", -4, 0, cmdZRevRangeByLex)
	register("ZRANK", -3, 0, cmdZRank)
	register("ZREVRANK", -3, 0, cmdZRevRank)
	register("ZREM", -3, flagWrite, cmdZRem)
	register("ZREMRANGEBYRANK", 4, flagWrite, cmdZRemRangeByRank)
	register("ZREMRANGEBYSCORE", 4, flagWrite, cmdZRemRangeByScore)
	register("ZREMRANGEBYLEX", 4, flagWrite, cmdZRemRangeByLex)
	register("ZPOPMIN", -2, flagWrite, cmdZPopMin)
	register("ZPOPMAX", -2, flagWrite, cmdZPopMax)
	register("BZPOPMIN", -3, flagWrite|flagBlocking, cmdBZPopMin)
	register("BZPOPMAX", -3, flagWrite|flagBlocking, cmdBZPopMax)
	register("ZRANDMEMBER", -2, 0, cmdZRandMember)
	register("ZUNIONSTORE", -4, flagWrite, cmdZUnionStore)
	register("ZINTERSTORE", -4, flagWrite, cmdZInterStore)
	register("ZDIFFSTORE", -4, flagWrite, cmdZDiffStore)
	register("ZUNION", -3, 0, cmdZUnion)
	register("ZINTER", -3, 0, cmdZInter)
	register("ZDIFF", -3, 0, cmdZDiff)
	register("ZSCAN", -3, 0, cmdZScan)
}

func cmdZAdd(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	var nx, xx, gt, lt, ch, incr bool
	i := 2
scanFlags:
	for i < len(args) {
		switch argUpper(args[i]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		case "CH":
			ch = true
		case "INCR":
			incr = true
		default:
			break scanFlags
		}
		i++
	}
	if nx && (xx || gt || lt) {
		return resp.Error("ERR GT, LT, and/or NX options at the same time are not compatible")
	}
	if gt && lt {
		return resp.Error("ERR GT, LT, and/or NX options at the same time are not compatible")
	}
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.Error(msgSyntax)
	}
	if incr && len(rest) != 2 {
		return resp.Error("ERR INCR option supports a single increment-element pair")
	}

	// Validate all scores before mutating anything.
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := value.ParseFloat(rest[j])
		if err != nil {
			return resp.Error(msgNotFloat)
		}
		pairs = append(pairs, pair{member: string(rest[j+1]), score: score})
	}

	v, errReply := s.fetch(c, key, value.KindZSet, value.NewZSet)
	if errReply != nil {
		return errReply
	}

	if incr {
		p := pairs[0]
		cur, exists := v.ZSet.Score(p.member)
		if (nx && exists) || (xx && !exists) {
			s.dropIfEmpty(c, key, v)
			return resp.Null{}
		}
		next := p.score
		if exists {
			next = cur + p.score
			if math.IsNaN(next) {
				s.dropIfEmpty(c, key, v)
				return resp.Error("ERR resulting score is not a number (NaN)")
			}
			if (gt && next <= cur) || (lt && next >= cur) {
				s.dropIfEmpty(c, key, v)
				return resp.Null{}
			}
		}
		v.ZSet.Set(p.member, next)
		s.keyModified(c.db, key, classZSet, "zincr")
		return resp.BulkString(value.FormatFloat(next))
	}

	added, changed := 0, 0
	for _, p := range pairs {
		cur, exists := v.ZSet.Score(p.member)
		if (nx && exists) || (xx && !exists) {
			continue
		}
		if exists && ((gt && p.score <= cur) || (lt && p.score >= cur)) {
			continue
		}
		if v.ZSet.Set(p.member, p.score) {
			added++
		} else if p.score != cur {
			changed++
		}
	}
	if added+changed > 0 {
		s.keyModified(c.db, key, classZSet, "zadd")
	} else {
		s.dropIfEmpty(c, key, v)
	}
	if ch {
		return resp.Integer(int64(added + changed))
	}
	return resp.Integer(int64(added))
}

func cmdZScore(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Null{}
	}
	score, ok := v.ZSet.Score(string(args[2]))
	if !ok {
		return resp.Null{}
	}
	return scoreReply(c, score)
}

// scoreReply renders a score: a double in RESP3, the formatted bulk
// string in RESP2.
func scoreReply(c *Conn, score float64) resp.Reply {
	if c.proto == 3 {
		return resp.Double(score)
	}
	return resp.BulkString(value.FormatFloat(score))
}

func cmdZMScore(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	out := make(resp.Array, 0, len(args)-2)
	for _, m := range args[2:] {
		if v == nil {
			out = append(out, resp.Null{})
			continue
		}
		score, ok := v.ZSet.Score(string(m))
		if !ok {
			out = append(out, resp.Null{})
			continue
		}
		out = append(out, scoreReply(c, score))
	}
	return out
}

func cmdZCard(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(v.ZSet.Len()))
}

func cmdZCount(s *Server, c *Conn, args [][]byte) resp.Reply {
	r, err := value.ParseScoreRange(args[2], args[3])
	if err != nil {
		return resp.Error("ERR min or max is not a float")
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(v.ZSet.SelectByScore(r))))
}

func cmdZLexCount(s *Server, c *Conn, args [][]byte) resp.Reply {
	r, err := value.ParseLexRange(args[2], args[3])
	if err != nil {
		return resp.Error("ERR min or max not valid string range item")
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return resp.Integer(int64(len(v.ZSet.SelectByLex(r))))
}

func cmdZIncrBy(s *Server, c *Conn, args [][]byte) resp.Reply {
	delta, err := value.ParseFloat(args[2])
	if err != nil {
		return resp.Error(msgNotFloat)
	}
	key := string(args[1])
	v, errReply := s.fetch(c, key, value.KindZSet, value.NewZSet)
	if errReply != nil {
		return errReply
	}
	member := string(args[3])
	cur, _ := v.ZSet.Score(member)
	next := cur + delta
	if math.IsNaN(next) {
		s.dropIfEmpty(c, key, v)
		return resp.Error("ERR resulting score is not a number (NaN)")
	}
	v.ZSet.Set(member, next)
	s.keyModified(c.db, key, classZSet, "zincr")
	return resp.BulkString(value.FormatFloat(next))
}

// rangeReply renders members with optional scores.
func rangeReply(c *Conn, members []value.MemberScore, withScores bool) resp.Reply {
	out := resp.Array{}
	for _, ms := range members {
		out = append(out, resp.BulkString(ms.Member))
		if withScores {
			out = append(out, scoreReply(c, ms.Score))
		}
	}
	return out
}

func reverseMembers(ms []value.MemberScore) []value.MemberScore {
	out := make([]value.MemberScore, len(ms))
	for i, m := range ms {
		out[len(ms)-1-i] = m
	}
	return out
}

func applyLimit(ms []value.MemberScore, offset, count int) []value.MemberScore {
	if offset < 0 {
		return nil
	}
	if offset >= len(ms) {
		return nil
	}
	ms = ms[offset:]
	if count >= 0 && count < len(ms) {
		ms = ms[:count]
	}
	return ms
}

// cmdZRange implements the consolidated ZRANGE with the REV, BYSCORE,
// BYLEX and LIMIT options.
func cmdZRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	var (
		rev, byScore, byLex, withScores, hasLimit bool
		offset, count                             int
	)
	for i := 4; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "REV":
			rev = true
		case "BYSCORE":
			byScore = true
		case "BYLEX":
			byLex = true
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return resp.Error(msgSyntax)
			}
			o, err1 := strconv.Atoi(string(args[i+1]))
			n, err2 := strconv.Atoi(string(args[i+2]))
			if err1 != nil || err2 != nil {
				return resp.Error(msgNotInt)
			}
			offset, count = o, n
			hasLimit = true
			i += 2
		default:
			return resp.Error(msgSyntax)
		}
	}
	if byScore && byLex {
		return resp.Error(msgSyntax)
	}
	if hasLimit && !byScore && !byLex {
		return resp.Error("ERR syntax error, LIMIT is only supported in combination with either BYSCORE or BYLEX")
	}
	if byLex && withScores {
		return resp.Error(msgSyntax)
	}

	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}

	lo, hi := args[2], args[3]
	if rev {
		// REV swaps the bound order on the wire.
		lo, hi = hi, lo
	}

	var members []value.MemberScore
	switch {
	case byScore:
		r, err := value.ParseScoreRange(lo, hi)
		if err != nil {
			return resp.Error("ERR min or max is not a float")
		}
		members = v.ZSet.SelectByScore(r)
	case byLex:
		r, err := value.ParseLexRange(lo, hi)
		if err != nil {
			return resp.Error("ERR min or max not valid string range item")
		}
		members = v.ZSet.SelectByLex(r)
	default:
		start, err1 := strconv.Atoi(string(args[2]))
		stop, err2 := strconv.Atoi(string(args[3]))
		if err1 != nil || err2 != nil {
			return resp.Error(msgNotInt)
		}
		// Rank ranges apply REV before indexing, so the result is
		// already in output order.
		return rangeReply(c, selectByRank(v.ZSet, start, stop, rev), withScores)
	}
	if rev {
		members = reverseMembers(members)
	}
	if hasLimit {
		members = applyLimit(members, offset, count)
	}
	return rangeReply(c, members, withScores)
}

// selectByRank resolves an index range, already in output order when
// rev is set.
func selectByRank(z *value.ZSet, start, stop int, rev bool) []value.MemberScore {
	ordered := z.Ordered()
	if rev {
		ordered = reverseMembers(ordered)
	}
	n := len(ordered)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n || stop < 0 {
		return nil
	}
	return ordered[start : stop+1]
}

func cmdZRevRange(s *Server, c *Conn, args [][]byte) resp.Reply {
	withScores := false
	if len(args) == 5 {
		if argUpper(args[4]) != "WITHSCORES" {
			return resp.Error(msgSyntax)
		}
		withScores = true
	} else if len(args) > 5 {
		return resp.Error(msgSyntax)
	}
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return resp.Error(msgNotInt)
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	return rangeReply(c, selectByRank(v.ZSet, start, stop, true), withScores)
}

func zRangeByScore(s *Server, c *Conn, args [][]byte, rev bool) resp.Reply {
	lo, hi := args[2], args[3]
	if rev {
		lo, hi = hi, lo
	}
	r, err := value.ParseScoreRange(lo, hi)
	if err != nil {
		return resp.Error("ERR min or max is not a float")
	}
	withScores := false
	hasLimit := false
	offset, count := 0, -1
	for i := 4; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return resp.Error(msgSyntax)
			}
			o, err1 := strconv.Atoi(string(args[i+1]))
			n, err2 := strconv.Atoi(string(args[i+2]))
			if err1 != nil || err2 != nil {
				return resp.Error(msgNotInt)
			}
			offset, count = o, n
			hasLimit = true
			i += 2
		default:
			return resp.Error(msgSyntax)
		}
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	members := v.ZSet.SelectByScore(r)
	if rev {
		members = reverseMembers(members)
	}
	if hasLimit {
		members = applyLimit(members, offset, count)
	}
	return rangeReply(c, members, withScores)
}

func cmdZRangeByScore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRangeByScore(s, c, args, false)
}

func cmdZRevRangeByScore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRangeByScore(s, c, args, true)
}

func zRangeByLex(s *Server, c *Conn, args [][]byte, rev bool) resp.Reply {
	lo, hi := args[2], args[3]
	if rev {
		lo, hi = hi, lo
	}
	r, err := value.ParseLexRange(lo, hi)
	if err != nil {
		return resp.Error("ERR min or max not valid string range item")
	}
	hasLimit := false
	offset, count := 0, -1
	for i := 4; i < len(args); i++ {
		switch argUpper(args[i]) {
		case "LIMIT":
			if i+2 >= len(args) {
				return resp.Error(msgSyntax)
			}
			o, err1 := strconv.Atoi(string(args[i+1]))
			n, err2 := strconv.Atoi(string(args[i+2]))
			if err1 != nil || err2 != nil {
				return resp.Error(msgNotInt)
			}
			offset, count = o, n
			hasLimit = true
			i += 2
		default:
			return resp.Error(msgSyntax)
		}
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	members := v.ZSet.SelectByLex(r)
	if rev {
		members = reverseMembers(members)
	}
	if hasLimit {
		members = applyLimit(members, offset, count)
	}
	return rangeReply(c, members, false)
}

func cmdZRangeByLex(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRangeByLex(s, c, args, false)
}

func cmdZRevRangeByLex(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRangeByLex(s, c, args, true)
}

func zRank(s *Server, c *Conn, args [][]byte, rev bool) resp.Reply {
	withScore := false
	if len(args) == 4 {
		if argUpper(args[3]) != "WITHSCORE" {
			return resp.Error(msgSyntax)
		}
		withScore = true
	} else if len(args) > 4 {
		return resp.Error(msgSyntax)
	}
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		if withScore {
			return resp.NullArray{}
		}
		return resp.Null{}
	}
	rank, ok := v.ZSet.Rank(string(args[2]))
	if !ok {
		if withScore {
			return resp.NullArray{}
		}
		return resp.Null{}
	}
	if rev {
		rank = v.ZSet.Len() - 1 - rank
	}
	if withScore {
		score, _ := v.ZSet.Score(string(args[2]))
		return resp.Array{resp.Integer(int64(rank)), scoreReply(c, score)}
	}
	return resp.Integer(int64(rank))
}

func cmdZRank(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRank(s, c, args, false)
}

func cmdZRevRank(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zRank(s, c, args, true)
}

func cmdZRem(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	removed := 0
	for _, m := range args[2:] {
		if v.ZSet.Delete(string(m)) {
			removed++
		}
	}
	if removed > 0 {
		s.writeEffect(c.db, key, classZSet, "zrem")
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(removed))
}

func zRemMembers(s *Server, c *Conn, key string, v *value.Value, members []value.MemberScore) resp.Reply {
	for _, ms := range members {
		v.ZSet.Delete(ms.Member)
	}
	if len(members) > 0 {
		s.writeEffect(c.db, key, classZSet, "zremrangebyscore")
		s.dropIfEmpty(c, key, v)
	}
	return resp.Integer(int64(len(members)))
}

func cmdZRemRangeByRank(s *Server, c *Conn, args [][]byte) resp.Reply {
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return resp.Error(msgNotInt)
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return zRemMembers(s, c, key, v, selectByRank(v.ZSet, start, stop, false))
}

func cmdZRemRangeByScore(s *Server, c *Conn, args [][]byte) resp.Reply {
	r, err := value.ParseScoreRange(args[2], args[3])
	if err != nil {
		return resp.Error("ERR min or max is not a float")
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return zRemMembers(s, c, key, v, v.ZSet.SelectByScore(r))
}

func cmdZRemRangeByLex(s *Server, c *Conn, args [][]byte) resp.Reply {
	r, err := value.ParseLexRange(args[2], args[3])
	if err != nil {
		return resp.Error("ERR min or max not valid string range item")
	}
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Integer(0)
	}
	return zRemMembers(s, c, key, v, v.ZSet.SelectByLex(r))
}

// zPop removes count members from one end of the order.
func (s *Server) zPop(dbIdx int, key string, v *value.Value, count int, min bool) []value.MemberScore {
	ordered := v.ZSet.Ordered()
	if !min {
		ordered = reverseMembers(ordered)
	}
	if count > len(ordered) {
		count = len(ordered)
	}
	popped := ordered[:count]
	for _, ms := range popped {
		v.ZSet.Delete(ms.Member)
	}
	if len(popped) > 0 {
		event := "zpopmax"
		if min {
			event = "zpopmin"
		}
		s.writeEffect(dbIdx, key, classZSet, event)
		if v.ZSet.Len() == 0 {
			s.dbs[dbIdx].Delete(key)
			s.emitNotification(dbIdx, classGeneric, "del", key)
		}
	}
	return popped
}

func zPopCmd(s *Server, c *Conn, args [][]byte, min bool) resp.Reply {
	key := string(args[1])
	hasCount := len(args) == 3
	count := 1
	if hasCount {
		n, err := value.ParseInt(args[2])
		if err != nil || n < 0 {
			return resp.Error(msgValueRange)
		}
		count = int(n)
	} else if len(args) > 3 {
		return errWrongArity(string(args[0]))
	}
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	if v == nil {
		return resp.Array{}
	}
	popped := s.zPop(c.db, key, v, count, min)
	out := resp.Array{}
	for _, ms := range popped {
		out = append(out, resp.BulkString(ms.Member), scoreReply(c, ms.Score))
	}
	return out
}

func cmdZPopMin(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zPopCmd(s, c, args, true)
}

func cmdZPopMax(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zPopCmd(s, c, args, false)
}

func bzPop(s *Server, c *Conn, args [][]byte, min bool) resp.Reply {
	timeout, errReply := parseTimeout(args[len(args)-1])
	if errReply != nil {
		return errReply
	}
	keys := make([]string, 0, len(args)-2)
	for _, a := range args[1 : len(args)-1] {
		keys = append(keys, string(a))
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return errReply
	}

	take := func(d *db.DB, key string, now int64) (resp.Reply, bool) {
		v, ok := d.Get(key, now)
		if !ok || v.Kind != value.KindZSet || v.ZSet.Len() == 0 {
			return nil, false
		}
		popped := s.zPop(d.Index, key, v, 1, min)
		ms := popped[0]
		return resp.Array{
			resp.BulkString(key),
			resp.BulkString(ms.Member),
			scoreReply(c, ms.Score),
		}, true
	}

	for _, key := range keys {
		if reply, ok := take(s.dbOf(c), key, c.now); ok {
			return reply
		}
		if v, ok := s.dbOf(c).Get(key, c.now); ok && v.Kind != value.KindZSet {
			return resp.Error(msgWrongType)
		}
	}
	if c.inExec {
		return resp.NullArray{}
	}
	s.block(c, keys, timeout, resp.NullArray{}, take)
	return nil
}

func cmdBZPopMin(s *Server, c *Conn, args [][]byte) resp.Reply {
	return bzPop(s, c, args, true)
}

func cmdBZPopMax(s *Server, c *Conn, args [][]byte) resp.Reply {
	return bzPop(s, c, args, false)
}

func cmdZRandMember(s *Server, c *Conn, args [][]byte) resp.Reply {
	v, errReply := s.lookup(c, string(args[1]), value.KindZSet)
	if errReply != nil {
		return errReply
	}
	hasCount := len(args) >= 3
	count := 1
	withScores := false
	if hasCount {
		n, err := value.ParseInt(args[2])
		if err != nil {
			return resp.Error(msgNotInt)
		}
		count = int(n)
		if len(args) == 4 {
			if argUpper(args[3]) != "WITHSCORES" {
				return resp.Error(msgSyntax)
			}
			withScores = true
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
	members := make([]string, 0, v.ZSet.Len())
	for _, ms := range v.ZSet.Ordered() {
		members = append(members, ms.Member)
	}
	if !hasCount {
		return resp.BulkString(members[s.rnd.Intn(len(members))])
	}
	out := resp.Array{}
	for _, m := range pickRandom(s, members, count) {
		out = append(out, resp.BulkString(m))
		if withScores {
			score, _ := v.ZSet.Score(m)
			out = append(out, scoreReply(c, score))
		}
	}
	return out
}

// zStoreArgs is the parsed shape of the union/inter/diff commands.
type zStoreArgs struct {
	keys      []string
	weights   []float64
	aggregate string
}

func parseZStoreArgs(s *Server, args [][]byte, from int, allowOptions bool) (*zStoreArgs, resp.Reply) {
	numKeys, err := strconv.Atoi(string(args[from]))
	if err != nil || numKeys <= 0 {
		return nil, resp.Error("ERR at least 1 input key is needed for ZUNIONSTORE/ZINTERSTORE")
	}
	if len(args) < from+1+numKeys {
		return nil, resp.Error(msgSyntax)
	}
	za := &zStoreArgs{aggregate: "SUM"}
	for _, k := range args[from+1 : from+1+numKeys] {
		za.keys = append(za.keys, string(k))
	}
	if errReply := s.checkSlots(za.keys...); errReply != nil {
		return nil, errReply
	}
	za.weights = make([]float64, numKeys)
	for i := range za.weights {
		za.weights[i] = 1
	}
	rest := args[from+1+numKeys:]
	for i := 0; i < len(rest); i++ {
		switch argUpper(rest[i]) {
		case "WEIGHTS":
			if !allowOptions || i+numKeys >= len(rest) {
				return nil, resp.Error(msgSyntax)
			}
			for j := 0; j < numKeys; j++ {
				w, err := value.ParseFloat(rest[i+1+j])
				if err != nil {
					return nil, resp.Error("ERR weight value is not a float")
				}
				za.weights[j] = w
			}
			i += numKeys
		case "AGGREGATE":
			if !allowOptions || i+1 >= len(rest) {
				return nil, resp.Error(msgSyntax)
			}
			agg := argUpper(rest[i+1])
			if agg != "SUM" && agg != "MIN" && agg != "MAX" {
				return nil, resp.Error(msgSyntax)
			}
			za.aggregate = agg
			i++
		case "WITHSCORES":
			// Consumed by the non-store callers; reject elsewhere.
			return nil, resp.Error(msgSyntax)
		default:
			return nil, resp.Error(msgSyntax)
		}
	}
	return za, nil
}

// zCollect resolves one input key into member scores; plain sets
// participate with score 1.
func (s *Server) zCollect(c *Conn, key string) (map[string]float64, resp.Reply) {
	v, ok := s.dbOf(c).Get(key, c.now)
	if !ok {
		return nil, nil
	}
	out := make(map[string]float64)
	switch v.Kind {
	case value.KindZSet:
		for _, ms := range v.ZSet.Ordered() {
			out[ms.Member] = ms.Score
		}
	case value.KindSet:
		for _, m := range v.Set.Members() {
			out[m] = 1
		}
	default:
		return nil, resp.Error(msgWrongType)
	}
	return out, nil
}

// zCombine computes the weighted union/inter/diff result.
func (s *Server) zCombine(c *Conn, za *zStoreArgs, mode string) (*value.ZSet, resp.Reply) {
	inputs := make([]map[string]float64, len(za.keys))
	for i, key := range za.keys {
		m, errReply := s.zCollect(c, key)
		if errReply != nil {
			return nil, errReply
		}
		inputs[i] = m
	}

	result := value.NewZSetData()
	switch mode {
	case "DIFF":
		for m, score := range inputs[0] {
			inOthers := false
			for _, other := range inputs[1:] {
				if other == nil {
					continue
				}
				if _, ok := other[m]; ok {
					inOthers = true
					break
				}
			}
			if !inOthers {
				result.Set(m, score)
			}
		}
	case "INTER":
		if inputs[0] == nil {
			return result, nil
		}
		for m, score := range inputs[0] {
			acc := score * za.weights[0]
			in := true
			for i, other := range inputs[1:] {
				if other == nil {
					in = false
					break
				}
				os, ok := other[m]
				if !ok {
					in = false
					break
				}
				acc = value.Aggregate(za.aggregate, acc, os*za.weights[i+1])
			}
			if in {
				result.Set(m, acc)
			}
		}
	default: // UNION
		for i, input := range inputs {
			for m, score := range input {
				w := score * za.weights[i]
				if cur, ok := result.Score(m); ok {
					result.Set(m, value.Aggregate(za.aggregate, cur, w))
				} else {
					result.Set(m, w)
				}
			}
		}
	}
	return result, nil
}

func zStore(s *Server, c *Conn, args [][]byte, mode string) resp.Reply {
	dst := string(args[1])
	za, errReply := parseZStoreArgs(s, args, 2, mode != "DIFF")
	if errReply != nil {
		return errReply
	}
	result, errReply := s.zCombine(c, za, mode)
	if errReply != nil {
		return errReply
	}
	d := s.dbOf(c)
	if result.Len() == 0 {
		if d.Exists(dst, c.now) {
			d.Delete(dst)
			s.keyModified(c.db, dst, classGeneric, "del")
		}
		return resp.Integer(0)
	}
	d.Set(dst, &value.Value{Kind: value.KindZSet, ZSet: result})
	s.keyModified(c.db, dst, classZSet, strings.ToLower("z"+mode+"store"))
	return resp.Integer(int64(result.Len()))
}

func cmdZUnionStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zStore(s, c, args, "UNION")
}

func cmdZInterStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zStore(s, c, args, "INTER")
}

func cmdZDiffStore(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zStore(s, c, args, "DIFF")
}

func zCombineCmd(s *Server, c *Conn, args [][]byte, mode string) resp.Reply {
	withScores := false
	trimmed := args
	if argUpper(args[len(args)-1]) == "WITHSCORES" {
		withScores = true
		trimmed = args[:len(args)-1]
	}
	za, errReply := parseZStoreArgs(s, trimmed, 1, mode != "DIFF")
	if errReply != nil {
		return errReply
	}
	result, errReply := s.zCombine(c, za, mode)
	if errReply != nil {
		return errReply
	}
	return rangeReply(c, result.Ordered(), withScores)
}

func cmdZUnion(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zCombineCmd(s, c, args, "UNION")
}

func cmdZInter(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zCombineCmd(s, c, args, "INTER")
}

func cmdZDiff(s *Server, c *Conn, args [][]byte) resp.Reply {
	return zCombineCmd(s, c, args, "DIFF")
}

func cmdZScan(s *Server, c *Conn, args [][]byte) resp.Reply {
	key := string(args[1])
	v, errReply := s.lookup(c, key, value.KindZSet)
	if errReply != nil {
		return errReply
	}
	pattern, count, _, errReply := parseSubScanArgs(args, false)
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

	names := make([]string, 0, v.ZSet.Len())
	for _, ms := range v.ZSet.Ordered() {
		names = append(names, ms.Member)
	}
	sort.Strings(names)
	batch, next := subScan(s.dbOf(c), key, cursorID, names, count)

	out := resp.Array{}
	for _, m := range batch {
		if pattern != "" && !glob.Match(pattern, m) {
			continue
		}
		score, _ := v.ZSet.Score(m)
		out = append(out, resp.BulkString(m), resp.BulkString(value.FormatFloat(score)))
	}
	return resp.Array{resp.BulkString(next), out}
}
