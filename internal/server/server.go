// Package server implements the command engine: server state,
// per-connection state, the dispatcher and every command family.
//
// A single mutex serializes command execution against server state,
// matching the reference server's one-command-at-a-time model.
// Connections run on arbitrary goroutines and serialize through the
// dispatcher; blocking commands release the executor while suspended
// and are resumed by the mutator that satisfies them.
package server

import (
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/db"
	"github.com/yndnr/redsim-go/internal/pubsub"
	"github.com/yndnr/redsim-go/internal/telemetry/logger"
	"github.com/yndnr/redsim-go/internal/telemetry/metric"
	"github.com/yndnr/redsim-go/pkg/cmap"
)

// Server is the emulated server: databases, pub/sub registry, script
// cache, clients, clock and configuration. One Server may be shared
// by any number of client handles.
type Server struct {
	mu sync.Mutex

	cfg     config.EngineSection
	clock   clock.Clock
	dbs     []*db.DB
	reg     *pubsub.Registry
	scripts *cmap.Map[string]

	clients   map[uint64]*Conn
	nextID    uint64
	connected bool

	waiters   map[dbKey][]*waiter
	waiterSeq uint64

	// cmdCount is the monotonically increasing command clock.
	cmdCount uint64

	notifyMask notifyMask
	evaluator  Evaluator
	rnd        *rand.Rand
	log        logger.Logger
	metrics    *metric.Metrics

	runID   string
	started time.Time

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// dbKey addresses one key in one database.
type dbKey struct {
	db  int
	key string
}

// Option configures the Server.
type Option func(*Server)

// WithClock injects the clock; a mock clock drives expiry and
// blocking deadlines deterministically.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger injects the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics injects the metric set.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEvaluator injects the script evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(s *Server) { s.evaluator = e }
}

// WithSeed seeds the randomness used by SRANDMEMBER and friends.
func WithSeed(seed int64) Option {
	return func(s *Server) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// New creates a server from the engine configuration section.
func New(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		cfg:       cfg.Engine,
		clock:     clock.New(),
		reg:       pubsub.New(),
		scripts:   cmap.New[string](),
		clients:   make(map[uint64]*Conn),
		connected: true,
		waiters:   make(map[dbKey][]*waiter),
		log:       logger.Discard(),
		metrics:   nil,
		stopSweep: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	}
	s.runID = ulid.MustNew(uint64(s.clock.Now().UnixMilli()), ulidEntropy{s.rnd}).String()
	s.started = s.clock.Now()
	s.notifyMask = parseNotifyMask(s.cfg.NotifyKeyspaceEvents)

	n := s.cfg.Databases
	if n <= 0 {
		n = config.DefaultDatabases
	}
	s.dbs = make([]*db.DB, n)
	for i := range s.dbs {
		d := db.New(i)
		idx := i
		d.OnExpired = func(key string) { s.onExpired(idx, key) }
		s.dbs[i] = d
	}
	return s
}

// ulidEntropy adapts the server's seeded source for ulid generation.
type ulidEntropy struct{ r *rand.Rand }

func (e ulidEntropy) Read(p []byte) (int, error) { return e.r.Read(p) }

// StartSweeper runs the periodic expiration sweep until Close. The
// ticker runs off the injected clock, so a mock clock's Add drives
// sweeps in tests.
func (s *Server) StartSweeper() {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	ticker := s.clock.Ticker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepExpired()
			case <-s.stopSweep:
				return
			}
		}
	}()
}

// Close stops background work and disconnects all clients.
func (s *Server) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UnixMilli()
	for _, d := range s.dbs {
		// onExpired counts each swept key.
		d.SweepExpired(now)
	}
}

// onExpired runs inside the lock whenever lazy expiry or the sweep
// removes a key.
func (s *Server) onExpired(dbIdx int, key string) {
	s.metrics.Expired(1)
	s.emitNotification(dbIdx, classExpired, "expired", key)
}

// Now returns the server clock reading in milliseconds.
func (s *Server) Now() int64 { return s.clock.Now().UnixMilli() }

// Clock exposes the injected clock.
func (s *Server) Clock() clock.Clock { return s.clock }

// RunID returns the server run id reported by INFO.
func (s *Server) RunID() string { return s.runID }

// SetConnected toggles the simulated connectivity flag. While false,
// every client-initiated operation fails with a connection error.
func (s *Server) SetConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
}

// Connected reports the connectivity flag.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// DB returns the database at index, or nil when out of range.
func (s *Server) DB(i int) *db.DB {
	if i < 0 || i >= len(s.dbs) {
		return nil
	}
	return s.dbs[i]
}

// NumDBs returns the configured database count.
func (s *Server) NumDBs() int { return len(s.dbs) }

// FlushAll clears every database.
func (s *Server) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dbs {
		d.Flush()
	}
}

// Lock acquires the executor for direct state access; the root
// package's seeding helpers use it.
func (s *Server) Lock() { s.mu.Lock() }

// Unlock releases the executor.
func (s *Server) Unlock() { s.mu.Unlock() }

// ServerVersion reports the emulated reference-server major version.
func (s *Server) ServerVersion() int { return s.cfg.ServerVersion }

func (s *Server) versionString() string {
	if s.cfg.ServerVersion == 6 {
		return "6.2.14"
	}
	return "7.4.0"
}

// keyModified is the single choke point for write effects: it bumps
// the key's version for watchers, emits the keyspace notification and
// wakes blocked clients whose key may now be ready.
func (s *Server) keyModified(dbIdx int, key string, class byte, event string) {
	d := s.dbs[dbIdx]
	d.Bump(key)
	s.emitNotification(dbIdx, class, event, key)
	s.wakeKey(dbIdx, key)
}
