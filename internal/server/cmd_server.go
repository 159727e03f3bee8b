package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/telemetry/logger"
	"github.com/yndnr/redsim-go/pkg/glob"
)

// Server administration commands.

func init() {
	register("FLUSHDB", -1, flagWrite, cmdFlushDB)
	register("FLUSHALL", -1, flagWrite, cmdFlushAll)
	register("DBSIZE", 1, 0, cmdDBSize)
	register("SWAPDB", 3, flagWrite, cmdSwapDB)
	register("INFO", -1, 0, cmdInfo)
	register("TIME", 1, 0, cmdTime)
	register("CONFIG", -2, 0, cmdConfig)
	register("DEBUG", -2, 0, cmdDebug)
	register("CLUSTER", -2, 0, cmdCluster)
	register("WAIT", 3, 0, cmdWait)
}

func checkFlushArgs(args [][]byte) resp.Reply {
	// ASYNC and SYNC are accepted; flushing is synchronous either way.
	if len(args) == 2 {
		switch argUpper(args[1]) {
		case "ASYNC", "SYNC":
			return nil
		}
		return resp.Error(msgSyntax)
	}
	if len(args) > 2 {
		return errWrongArity(string(args[0]))
	}
	return nil
}

func cmdFlushDB(s *Server, c *Conn, args [][]byte) resp.Reply {
	if errReply := checkFlushArgs(args); errReply != nil {
		return errReply
	}
	s.dbOf(c).Flush()
	return resp.OK
}

func cmdFlushAll(s *Server, c *Conn, args [][]byte) resp.Reply {
	if errReply := checkFlushArgs(args); errReply != nil {
		return errReply
	}
	for _, d := range s.dbs {
		d.Flush()
	}
	return resp.OK
}

func cmdDBSize(s *Server, c *Conn, _ [][]byte) resp.Reply {
	n := s.dbOf(c).Len(c.now)
	s.metrics.SetKeys(strconv.Itoa(c.db), n)
	return resp.Integer(int64(n))
}

func cmdSwapDB(s *Server, c *Conn, args [][]byte) resp.Reply {
	a, err1 := strconv.Atoi(string(args[1]))
	b, err2 := strconv.Atoi(string(args[2]))
	if err1 != nil || err2 != nil {
		return resp.Error("ERR invalid first DB index")
	}
	if a < 0 || a >= len(s.dbs) || b < 0 || b >= len(s.dbs) {
		return resp.Error(msgDBIndex)
	}
	s.dbs[a], s.dbs[b] = s.dbs[b], s.dbs[a]
	s.dbs[a].Index, s.dbs[b].Index = a, b
	return resp.OK
}

func cmdTime(s *Server, c *Conn, _ [][]byte) resp.Reply {
	now := s.clock.Now()
	return resp.Array{
		resp.BulkString(strconv.FormatInt(now.Unix(), 10)),
		resp.BulkString(strconv.FormatInt(int64(now.Nanosecond())/1000, 10)),
	}
}

func cmdInfo(s *Server, c *Conn, args [][]byte) resp.Reply {
	want := make(map[string]bool)
	for _, a := range args[1:] {
		want[strings.ToLower(string(a))] = true
	}
	include := func(section string) bool {
		return len(want) == 0 || want[section] || want["all"] || want["everything"] || want["default"]
	}

	var b strings.Builder
	if include("server") {
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "redis_version:%s\r\n", s.versionString())
		fmt.Fprintf(&b, "redis_mode:standalone\r\n")
		fmt.Fprintf(&b, "run_id:%s\r\n", s.runID)
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(s.clock.Now().Sub(s.started).Seconds()))
		b.WriteString("\r\n")
	}
	if include("clients") {
		fmt.Fprintf(&b, "# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", len(s.clients))
		blocked := 0
		for _, other := range s.clients {
			if other.wait != nil {
				blocked++
			}
		}
		fmt.Fprintf(&b, "blocked_clients:%d\r\n", blocked)
		b.WriteString("\r\n")
	}
	if include("memory") {
		fmt.Fprintf(&b, "# Memory\r\n")
		fmt.Fprintf(&b, "maxmemory:%d\r\n", s.cfg.MaxMemory)
		fmt.Fprintf(&b, "maxmemory_policy:noeviction\r\n")
		b.WriteString("\r\n")
	}
	if include("stats") {
		fmt.Fprintf(&b, "# Stats\r\n")
		fmt.Fprintf(&b, "total_commands_processed:%d\r\n", s.cmdCount)
		b.WriteString("\r\n")
	}
	if include("replication") {
		fmt.Fprintf(&b, "# Replication\r\n")
		fmt.Fprintf(&b, "role:master\r\n")
		fmt.Fprintf(&b, "connected_slaves:0\r\n")
		b.WriteString("\r\n")
	}
	if include("keyspace") {
		fmt.Fprintf(&b, "# Keyspace\r\n")
		for i, d := range s.dbs {
			if n := d.Len(c.now); n > 0 {
				fmt.Fprintf(&b, "db%d:keys=%d,expires=0,avg_ttl=0\r\n", i, n)
			}
		}
		b.WriteString("\r\n")
	}
	return resp.Verbatim{Format: "txt", Text: b.String()}
}

func cmdConfig(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "GET":
		if len(args) < 3 {
			return errWrongArity("config|get")
		}
		settings := s.configSettings()
		out := resp.Map{}
		seen := make(map[string]bool)
		for _, a := range args[2:] {
			pattern := strings.ToLower(string(a))
			for name, val := range settings {
				if seen[name] || !glob.Match(pattern, name) {
					continue
				}
				seen[name] = true
				out = append(out, resp.BulkString(name), resp.BulkString(val))
			}
		}
		return out
	case "SET":
		if len(args) < 4 || len(args)%2 != 0 {
			return errWrongArity("config|set")
		}
		for i := 2; i < len(args); i += 2 {
			if errReply := s.configSet(strings.ToLower(string(args[i])), string(args[i+1])); errReply != nil {
				return errReply
			}
		}
		return resp.OK
	case "RESETSTAT":
		s.cmdCount = 0
		return resp.OK
	case "REWRITE":
		return resp.Error("ERR The server is running without a config file")
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "CONFIG")
	}
}

// configSettings is the CONFIG GET view of the dictionary.
func (s *Server) configSettings() map[string]string {
	return map[string]string{
		"maxmemory":              strconv.FormatInt(s.cfg.MaxMemory, 10),
		"maxmemory-policy":       "noeviction",
		"notify-keyspace-events": formatNotifyMask(s.notifyMask),
		"databases":              strconv.Itoa(len(s.dbs)),
		"requirepass":            s.cfg.RequirePass,
		"appendonly":             "no",
		"save":                   "",
		"loglevel":               logger.GetLevel(),
	}
}

func (s *Server) configSet(name, val string) resp.Reply {
	switch name {
	case "notify-keyspace-events":
		s.notifyMask = parseNotifyMask(val)
	case "maxmemory":
		n, err := parseMemory(val)
		if err != nil {
			return resp.Error("ERR argument must be a memory value")
		}
		s.cfg.MaxMemory = n
	case "requirepass":
		s.cfg.RequirePass = val
	case "loglevel":
		logger.SetLevel(val)
	case "maxmemory-policy", "appendonly", "save":
		// Accepted for compatibility; behavior is fixed.
	default:
		return resp.Error("ERR Unknown option or number of arguments for CONFIG SET - '" + name + "'")
	}
	return resp.OK
}

func parseMemory(val string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(val))
	mult := int64(1)
	for _, suffix := range []struct {
		s string
		m int64
	}{{"kb", 1024}, {"mb", 1024 * 1024}, {"gb", 1024 * 1024 * 1024}, {"k", 1000}, {"m", 1000000}, {"g", 1000000000}, {"b", 1}} {
		if strings.HasSuffix(v, suffix.s) {
			v = strings.TrimSuffix(v, suffix.s)
			mult = suffix.m
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad memory value %q", val)
	}
	return n * mult, nil
}

func cmdDebug(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "SLEEP":
		if len(args) != 3 {
			return errWrongArity("debug")
		}
		f, err := strconv.ParseFloat(string(args[2]), 64)
		if err != nil || f < 0 {
			return resp.Error(msgNotFloat)
		}
		// Holds the executor, as the reference DEBUG SLEEP does.
		time.Sleep(time.Duration(f * float64(time.Second)))
		return resp.OK
	case "OBJECT":
		if len(args) != 3 {
			return errWrongArity("debug")
		}
		v, ok := s.dbOf(c).Get(string(args[2]), c.now)
		if !ok {
			return resp.Error(msgNoSuchKey)
		}
		return resp.Simple("Value at:0x0 refcount:1 encoding:" + encodingHint(v) + " serializedlength:0 lru:0 lru_seconds_idle:0")
	case "JMAP", "SET-ACTIVE-EXPIRE", "QUICKLIST-PACKED-THRESHOLD", "STRINGMATCH-LEN", "CHANGE-REPL-ID":
		return resp.OK
	default:
		return resp.Error("ERR DEBUG subcommand '" + strings.ToLower(sub) + "' not supported")
	}
}

func cmdCluster(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	enabled := 0
	if s.cfg.ClusterEnabled {
		enabled = 1
	}
	switch sub {
	case "INFO":
		state := "ok"
		var b strings.Builder
		fmt.Fprintf(&b, "cluster_enabled:%d\r\n", enabled)
		fmt.Fprintf(&b, "cluster_state:%s\r\n", state)
		fmt.Fprintf(&b, "cluster_slots_assigned:%d\r\n", enabled*clusterSlots)
		fmt.Fprintf(&b, "cluster_known_nodes:1\r\n")
		return resp.Verbatim{Format: "txt", Text: b.String()}
	case "MYID":
		return resp.BulkString(s.runID)
	case "KEYSLOT":
		if len(args) != 3 {
			return errWrongArity("cluster|keyslot")
		}
		return resp.Integer(int64(slotOf(string(args[2]))))
	case "SLOTS":
		// A single node owns everything when enabled; the in-process
		// surface has no address to advertise.
		return resp.Array{}
	case "SHARDS", "NODES":
		if sub == "NODES" {
			return resp.BulkString("")
		}
		return resp.Array{}
	case "COUNTKEYSINSLOT":
		if len(args) != 3 {
			return errWrongArity("cluster|countkeysinslot")
		}
		slot, err := strconv.Atoi(string(args[2]))
		if err != nil || slot < 0 || slot >= clusterSlots {
			return resp.Error("ERR Invalid slot")
		}
		count := 0
		for _, k := range s.dbOf(c).Keys(c.now) {
			if int(slotOf(k)) == slot {
				count++
			}
		}
		return resp.Integer(int64(count))
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "CLUSTER")
	}
}

func cmdWait(_ *Server, _ *Conn, _ [][]byte) resp.Reply {
	// No replicas exist to wait for.
	return resp.Integer(0)
}
