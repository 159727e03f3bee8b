package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Session pumps one byte stream through the engine: client frames in,
// server frames out. It serves a socket when given a net.Conn, or any
// in-process pipe for loopback transports.
type Session struct {
	conn *Conn
	rw   io.ReadWriter
	br   *bufio.Reader
	w    *resp.Writer

	writeMu sync.Mutex
}

// NewSession binds a fresh connection to a byte stream.
func (s *Server) NewSession(rw io.ReadWriter) *Session {
	c := s.NewConn()
	return &Session{
		conn: c,
		rw:   rw,
		br:   bufio.NewReader(rw),
		w:    resp.NewWriter(bufio.NewWriter(rw), c.proto),
	}
}

// Conn exposes the session's connection state.
func (sess *Session) Conn() *Conn { return sess.conn }

// Serve reads commands until EOF, a protocol error or connection
// close, dispatching each and writing its reply. Out-of-band pushes
// (pub/sub deliveries) are written by a pump goroutine interleaved at
// frame boundaries.
func (sess *Session) Serve() error {
	defer sess.conn.Close()

	done := make(chan struct{})
	defer close(done)
	go sess.pushPump(done)

	if closer, ok := sess.rw.(io.Closer); ok {
		defer closer.Close()
		// QUIT and CLIENT KILL close the connection state first; the
		// transport must follow so the read loop unblocks.
		go func() {
			select {
			case <-sess.conn.ClosedCh():
				closer.Close()
			case <-done:
			}
		}()
	}

	for {
		if sess.conn.Closed() {
			return nil
		}
		args, err := resp.ReadCommand(sess.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// Transport timeouts close silently; malformed framing is
			// answered once and is fatal for the connection.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return err
			}
			sess.writeReply(resp.Error("ERR Protocol error: " + err.Error()))
			return err
		}
		if args == nil {
			continue
		}
		reply := sess.conn.Dispatch(args)
		if err := sess.writeReply(reply); err != nil {
			return err
		}
		if sess.conn.Closed() || sess.conn.QuitRequested() {
			return nil
		}
	}
}

func (sess *Session) writeReply(r resp.Reply) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.w.SetProtocol(sess.conn.Proto())
	if err := sess.w.Write(r); err != nil {
		return err
	}
	return sess.w.Flush()
}

// pushPump drains the connection mailbox onto the stream.
func (sess *Session) pushPump(done <-chan struct{}) {
	for {
		select {
		case <-sess.conn.ClosedCh():
			return
		case <-done:
			return
		case <-sess.conn.PushSignal():
			for _, push := range sess.conn.TakePushes() {
				if err := sess.writeReply(push); err != nil {
					return
				}
			}
		}
	}
}
