// Package redsim is an in-process emulator of a Redis-compatible
// server for tests: the full command surface runs against in-memory
// state inside the test process. Construct a Server, attach any
// number of Clients (or serve raw RESP over a byte stream), and use
// the clock and connectivity knobs to drive time-dependent behavior
// deterministically.
//
// By default a Server runs on a manual clock anchored at wall time:
// nothing expires and no blocking deadline fires until the test calls
// FastForward or SetTime. WithRealClock restores wall-clock behavior
// for servers that face real sockets.
package redsim

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/server"
	"github.com/yndnr/redsim-go/internal/telemetry/logger"
	"github.com/yndnr/redsim-go/internal/telemetry/metric"
)

// Server is an emulated server instance. Multiple clients sharing a
// Server observe each other's writes; servers are otherwise fully
// isolated from one another.
type Server struct {
	engine *server.Server
	mock   *clock.Mock
	admin  *Client
}

// Option configures a Server.
type Option func(*options)

type options struct {
	cfg       *config.Config
	realClock bool
	seed      *int64
	log       logger.Logger
	metrics   *metric.Metrics
	evaluator server.Evaluator
}

// WithConfig supplies a full configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithRealClock runs the server on the wall clock; SetTime and
// FastForward become unavailable.
func WithRealClock() Option {
	return func(o *options) { o.realClock = true }
}

// WithSeed fixes the randomness used by SRANDMEMBER and friends.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger attaches a logger; servers are silent by default.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics attaches a metric set.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithEvaluator injects the script evaluator backing EVAL/EVALSHA.
func WithEvaluator(e server.Evaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// NewServer creates a server.
func NewServer(opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}

	engineOpts := []server.Option{}
	var mock *clock.Mock
	if !o.realClock {
		mock = clock.NewMock()
		mock.Set(time.Now())
		engineOpts = append(engineOpts, server.WithClock(mock))
	}
	if o.seed != nil {
		engineOpts = append(engineOpts, server.WithSeed(*o.seed))
	}
	if o.log != nil {
		engineOpts = append(engineOpts, server.WithLogger(o.log))
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, server.WithMetrics(o.metrics))
	}
	if o.evaluator != nil {
		engineOpts = append(engineOpts, server.WithEvaluator(o.evaluator))
	}

	s := &Server{engine: server.New(o.cfg, engineOpts...), mock: mock}
	s.engine.StartSweeper()
	s.admin = s.Client()
	return s
}

// Engine exposes the underlying command engine; the TCP front-end
// builds sessions from it.
func (s *Server) Engine() *server.Server { return s.engine }

// Client creates a new client handle bound to this server.
func (s *Server) Client() *Client {
	return &Client{srv: s, conn: s.engine.NewConn()}
}

// ServeConn pumps RESP frames between rw and the engine until the
// peer disconnects. Use it behind a real socket or a loopback pipe.
func (s *Server) ServeConn(rw io.ReadWriter) error {
	return s.engine.NewSession(rw).Serve()
}

// Close disconnects all clients and stops background work.
func (s *Server) Close() { s.engine.Close() }

// SetConnected toggles the simulated connectivity flag; while false,
// every command fails with a connection error.
func (s *Server) SetConnected(v bool) { s.engine.SetConnected(v) }

// Connected reports the connectivity flag.
func (s *Server) Connected() bool { return s.engine.Connected() }

// FlushAll clears every database.
func (s *Server) FlushAll() { s.engine.FlushAll() }

// SetTime moves the manual clock to t. Panics on a real-clock server.
func (s *Server) SetTime(t time.Time) {
	if s.mock == nil {
		panic("redsim: SetTime requires the manual clock")
	}
	s.mock.Set(t)
}

// FastForward advances the manual clock, firing due timers (expiry
// sweeps, blocking deadlines). Panics on a real-clock server.
func (s *Server) FastForward(d time.Duration) {
	if s.mock == nil {
		panic("redsim: FastForward requires the manual clock")
	}
	s.mock.Add(d)
}

// Now reports the server clock reading.
func (s *Server) Now() time.Time {
	return time.UnixMilli(s.engine.Now())
}

// ============================================================
// Seeding and inspection helpers
// ============================================================

func (s *Server) must(result any, err error) any {
	if err != nil {
		panic("redsim: seeding helper failed: " + err.Error())
	}
	return result
}

// Set stores a string key.
func (s *Server) Set(key, val string) {
	s.must(s.admin.Do("SET", key, val))
}

// Get reads a string key; absent keys return "" and false.
func (s *Server) Get(key string) (string, bool) {
	v, err := s.admin.Do("GET", key)
	if err != nil || v == nil {
		return "", false
	}
	return v.(string), true
}

// Del removes keys, reporting how many existed.
func (s *Server) Del(keys ...string) int {
	args := append([]any{"DEL"}, toAnySlice(keys)...)
	return int(s.must(s.admin.Do(args...)).(int64))
}

// Exists reports whether key is present.
func (s *Server) Exists(key string) bool {
	return s.must(s.admin.Do("EXISTS", key)).(int64) == 1
}

// Keys lists keys matching pattern in the selected database.
func (s *Server) Keys(pattern string) []string {
	return toStringSlice(s.must(s.admin.Do("KEYS", pattern)))
}

// LPush prepends values to a list key.
func (s *Server) LPush(key string, vals ...string) {
	args := append([]any{"LPUSH", key}, toAnySlice(vals)...)
	s.must(s.admin.Do(args...))
}

// RPush appends values to a list key.
func (s *Server) RPush(key string, vals ...string) {
	args := append([]any{"RPUSH", key}, toAnySlice(vals)...)
	s.must(s.admin.Do(args...))
}

// HSet stores a hash field.
func (s *Server) HSet(key, field, val string) {
	s.must(s.admin.Do("HSET", key, field, val))
}

// SAdd inserts set members.
func (s *Server) SAdd(key string, members ...string) {
	args := append([]any{"SADD", key}, toAnySlice(members)...)
	s.must(s.admin.Do(args...))
}

// ZAdd inserts one scored member.
func (s *Server) ZAdd(key string, score float64, member string) {
	s.must(s.admin.Do("ZADD", key, score, member))
}

// XAdd appends a stream entry with an auto id and returns the id.
func (s *Server) XAdd(key string, fieldVals ...string) string {
	args := append([]any{"XADD", key, "*"}, toAnySlice(fieldVals)...)
	return s.must(s.admin.Do(args...)).(string)
}

// SetTTL puts a relative expiry on a key.
func (s *Server) SetTTL(key string, ttl time.Duration) {
	s.must(s.admin.Do("PEXPIRE", key, ttl.Milliseconds()))
}

// TTL reports a key's remaining time to live; 0 when none is set.
func (s *Server) TTL(key string) time.Duration {
	ms := s.must(s.admin.Do("PTTL", key)).(int64)
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
