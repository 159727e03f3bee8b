package server

import (
	"strings"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Pub/sub commands. Subscription acknowledgements are rendered one
// frame per channel, as the reference server sends them.

func init() {
	register("SUBSCRIBE", -2, flagPubSubOK, cmdSubscribe)
	register("UNSUBSCRIBE", -1, flagPubSubOK, cmdUnsubscribe)
	register("PSUBSCRIBE", -2, flagPubSubOK, cmdPSubscribe)
	register("PUNSUBSCRIBE", -1, flagPubSubOK, cmdPUnsubscribe)
	register("SSUBSCRIBE", -2, flagPubSubOK, cmdSSubscribe)
	register("SUNSUBSCRIBE", -1, flagPubSubOK, cmdSUnsubscribe)
	register("PUBLISH", 3, flagPubSubOK, cmdPublish)
	register("SPUBLISH", 3, flagPubSubOK, cmdSPublish)
	register("PUBSUB", -2, flagPubSubOK, cmdPubSub)
}

func subAck(kind, name string, count int) resp.Reply {
	return resp.Push{
		resp.BulkString(kind),
		resp.BulkString(name),
		resp.Integer(int64(count)),
	}
}

func cmdSubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	out := resp.Multi{}
	for _, a := range args[1:] {
		ch := string(a)
		s.reg.Subscribe(c.id, ch)
		c.subs[ch] = struct{}{}
		out = append(out, subAck("subscribe", ch, c.subscriptionCount()))
	}
	return out
}

func cmdUnsubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	channels := make([]string, 0, len(args)-1)
	if len(args) == 1 {
		for ch := range c.subs {
			channels = append(channels, ch)
		}
		sortStringsAsc(channels)
	} else {
		for _, a := range args[1:] {
			channels = append(channels, string(a))
		}
	}
	out := resp.Multi{}
	if len(channels) == 0 {
		return resp.Multi{subAck("unsubscribe", "", c.subscriptionCount())}
	}
	for _, ch := range channels {
		s.reg.Unsubscribe(c.id, ch)
		delete(c.subs, ch)
		out = append(out, subAck("unsubscribe", ch, c.subscriptionCount()))
	}
	return out
}

func cmdPSubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	out := resp.Multi{}
	for _, a := range args[1:] {
		p := string(a)
		s.reg.PSubscribe(c.id, p)
		c.psubs[p] = struct{}{}
		out = append(out, subAck("psubscribe", p, c.subscriptionCount()))
	}
	return out
}

func cmdPUnsubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	patterns := make([]string, 0, len(args)-1)
	if len(args) == 1 {
		for p := range c.psubs {
			patterns = append(patterns, p)
		}
		sortStringsAsc(patterns)
	} else {
		for _, a := range args[1:] {
			patterns = append(patterns, string(a))
		}
	}
	if len(patterns) == 0 {
		return resp.Multi{subAck("punsubscribe", "", c.subscriptionCount())}
	}
	out := resp.Multi{}
	for _, p := range patterns {
		s.reg.PUnsubscribe(c.id, p)
		delete(c.psubs, p)
		out = append(out, subAck("punsubscribe", p, c.subscriptionCount()))
	}
	return out
}

func cmdSSubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	out := resp.Multi{}
	for _, a := range args[1:] {
		ch := string(a)
		s.reg.SSubscribe(c.id, ch)
		c.ssubs[ch] = struct{}{}
		out = append(out, subAck("ssubscribe", ch, len(c.ssubs)))
	}
	return out
}

func cmdSUnsubscribe(s *Server, c *Conn, args [][]byte) resp.Reply {
	channels := make([]string, 0, len(args)-1)
	if len(args) == 1 {
		for ch := range c.ssubs {
			channels = append(channels, ch)
		}
		sortStringsAsc(channels)
	} else {
		for _, a := range args[1:] {
			channels = append(channels, string(a))
		}
	}
	if len(channels) == 0 {
		return resp.Multi{subAck("sunsubscribe", "", len(c.ssubs))}
	}
	out := resp.Multi{}
	for _, ch := range channels {
		s.reg.SUnsubscribe(c.id, ch)
		delete(c.ssubs, ch)
		out = append(out, subAck("sunsubscribe", ch, len(c.ssubs)))
	}
	return out
}

func cmdPublish(s *Server, c *Conn, args [][]byte) resp.Reply {
	n := s.publishLocked(string(args[1]), append([]byte(nil), args[2]...))
	return resp.Integer(int64(n))
}

func cmdSPublish(s *Server, c *Conn, args [][]byte) resp.Reply {
	n := s.publishShardLocked(string(args[1]), append([]byte(nil), args[2]...))
	return resp.Integer(int64(n))
}

func cmdPubSub(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "CHANNELS":
		pattern := ""
		if len(args) == 3 {
			pattern = string(args[2])
		}
		out := resp.Array{}
		for _, ch := range s.reg.Channels(pattern) {
			out = append(out, resp.BulkString(ch))
		}
		return out
	case "NUMSUB":
		out := resp.Array{}
		for _, a := range args[2:] {
			ch := string(a)
			out = append(out, resp.BulkString(ch), resp.Integer(int64(s.reg.NumSub(ch))))
		}
		return out
	case "NUMPAT":
		return resp.Integer(int64(s.reg.NumPat()))
	case "SHARDCHANNELS":
		pattern := ""
		if len(args) == 3 {
			pattern = string(args[2])
		}
		out := resp.Array{}
		for _, ch := range s.reg.ShardChannels(pattern) {
			out = append(out, resp.BulkString(ch))
		}
		return out
	case "SHARDNUMSUB":
		out := resp.Array{}
		for _, a := range args[2:] {
			ch := string(a)
			out = append(out, resp.BulkString(ch), resp.Integer(int64(s.reg.ShardNumSub(ch))))
		}
		return out
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "PUBSUB")
	}
}
