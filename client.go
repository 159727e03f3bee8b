package redsim

import (
	"fmt"
	"strconv"
	"time"

	"github.com/yndnr/redsim-go/internal/resp"
	"github.com/yndnr/redsim-go/internal/server"
)

// Client is an in-process client handle: one emulated connection with
// its own selected database, transaction state and subscriptions.
type Client struct {
	srv  *Server
	conn *server.Conn

	// pending buffers mailbox messages drained but not yet consumed
	// by NextPush.
	pending []resp.Reply
}

// Error is an error reply from the server, carrying the full text
// including the conventional prefix.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// Do executes one command. Arguments may be string, []byte, int,
// int64, float64 or fmt.Stringer. Error replies come back as *Error;
// nested errors inside array replies (EXEC results) are embedded as
// *Error values in the returned slice.
func (c *Client) Do(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, &Error{Msg: "ERR empty command"}
	}
	raw := make([][]byte, len(args))
	for i, a := range args {
		b, err := argBytes(a)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	reply := c.conn.Dispatch(raw)
	if c.conn.QuitRequested() {
		c.conn.Close()
	}
	if e, ok := reply.(resp.Error); ok {
		return nil, &Error{Msg: string(e)}
	}
	return decodeReply(reply), nil
}

// ID returns the client id the server assigned.
func (c *Client) ID() uint64 { return c.conn.ID() }

// Close tears the connection down, cancelling any blocked wait.
func (c *Client) Close() { c.conn.Close() }

// NextPush waits up to timeout for an out-of-band message (pub/sub
// delivery or subscription acknowledgement) and returns it decoded.
func (c *Client) NextPush(timeout time.Duration) (any, bool) {
	deadline := time.After(timeout)
	for {
		if len(c.pending) == 0 {
			c.pending = c.conn.TakePushes()
		}
		if len(c.pending) > 0 {
			head := c.pending[0]
			c.pending = c.pending[1:]
			return decodeReply(head), true
		}
		select {
		case <-c.conn.PushSignal():
		case <-c.conn.ClosedCh():
			return nil, false
		case <-deadline:
			return nil, false
		}
	}
}

func argBytes(a any) ([]byte, error) {
	switch v := a.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case int:
		return []byte(strconv.Itoa(v)), nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return nil, &Error{Msg: fmt.Sprintf("ERR unsupported argument type %T", a)}
	}
}

// decodeReply converts a typed reply into plain Go values: strings,
// int64, float64, bool, nil, []any and map[string]any.
func decodeReply(r resp.Reply) any {
	switch v := r.(type) {
	case resp.Simple:
		return string(v)
	case resp.Error:
		return &Error{Msg: string(v)}
	case resp.Integer:
		return int64(v)
	case resp.Bulk:
		if v == nil {
			return nil
		}
		return string(v)
	case resp.Null, resp.NullArray:
		return nil
	case resp.Array:
		return decodeList([]resp.Reply(v))
	case resp.Set:
		return decodeList([]resp.Reply(v))
	case resp.Push:
		return decodeList([]resp.Reply(v))
	case resp.Multi:
		return decodeList([]resp.Reply(v))
	case resp.Map:
		out := make(map[string]any, len(v)/2)
		for i := 0; i+1 < len(v); i += 2 {
			key := fmt.Sprintf("%v", decodeReply(v[i]))
			out[key] = decodeReply(v[i+1])
		}
		return out
	case resp.Double:
		return float64(v)
	case resp.Boolean:
		return bool(v)
	case resp.BigNumber:
		return string(v)
	case resp.Verbatim:
		return v.Text
	default:
		return nil
	}
}

func decodeList(items []resp.Reply) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = decodeReply(it)
	}
	return out
}
