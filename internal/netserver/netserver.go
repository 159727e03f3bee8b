// Package netserver exposes the engine behind real sockets: a TCP
// (optionally TLS) listener whose connections are pumped through
// engine sessions, with read/write/idle deadlines and per-IP rate
// limiting.
package netserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/redsim-go/internal/config"
	"github.com/yndnr/redsim-go/internal/server"
	"github.com/yndnr/redsim-go/internal/telemetry/logger"
)

// Server accepts RESP connections and serves them off one engine.
type Server struct {
	cfg    config.ServerSection
	engine *server.Server
	log    logger.Logger

	ln      net.Listener
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New creates a front-end for the engine.
func New(cfg config.ServerSection, engine *server.Server, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		cfg:      cfg,
		engine:   engine,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start begins accepting connections. It returns once the listener
// is bound; serving continues until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return err
		}
		ln, err = tls.Listen("tcp", s.cfg.Addr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		if err != nil {
			return err
		}
	} else {
		ln, err = net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.ln = ln
	s.running = true
	s.mu.Unlock()

	s.log.Info("listener started", "addr", ln.Addr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	return nil
}

// Addr returns the bound address, useful with ":0" listeners.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown closes the listener and waits for in-flight connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running || errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.log.Error("accept failed", "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// deadlineConn tightens read/write deadlines around each frame so a
// stalled peer cannot hold a session goroutine forever.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	mu           sync.Mutex
	sawFirstByte bool
}

func (dc *deadlineConn) Read(p []byte) (int, error) {
	dc.mu.Lock()
	timeout := dc.idleTimeout
	if dc.sawFirstByte {
		timeout = dc.readTimeout
	}
	dc.mu.Unlock()
	if timeout > 0 {
		if err := dc.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	n, err := dc.Conn.Read(p)
	if n > 0 {
		dc.mu.Lock()
		dc.sawFirstByte = true
		dc.mu.Unlock()
	}
	return n, err
}

func (dc *deadlineConn) Write(p []byte) (int, error) {
	if dc.writeTimeout > 0 {
		if err := dc.Conn.SetWriteDeadline(time.Now().Add(dc.writeTimeout)); err != nil {
			return 0, err
		}
	}
	// The next frame starts after this reply; fall back to the idle
	// deadline for its first byte.
	dc.mu.Lock()
	dc.sawFirstByte = false
	dc.mu.Unlock()
	return dc.Conn.Write(p)
}

func (s *Server) serveConn(nc net.Conn) {
	defer nc.Close()

	ip := nc.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if !s.allow(ip) {
		_, _ = io.WriteString(nc, "-ERR rate limit exceeded\r\n")
		return
	}

	dc := &deadlineConn{
		Conn:         nc,
		readTimeout:  s.cfg.ReadTimeout,
		writeTimeout: s.cfg.WriteTimeout,
		idleTimeout:  s.cfg.IdleTimeout,
	}
	sess := s.engine.NewSession(dc)
	sess.Conn().SetAddr(nc.RemoteAddr().String())
	if err := sess.Serve(); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.log.Debug("connection timed out", "remote", nc.RemoteAddr())
			return
		}
		s.log.Debug("connection closed", "remote", nc.RemoteAddr(), "error", err)
	}
}

// allow enforces the per-IP rate limit once per accepted connection.
func (s *Server) allow(ip string) bool {
	if s.cfg.RateLimit <= 0 {
		return true
	}
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	lim, ok := s.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateLimit)
		s.limiters[ip] = lim
	}
	return lim.Allow()
}
