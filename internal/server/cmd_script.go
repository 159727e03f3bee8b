package server

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Scripting commands. The engine owns the SHA-1 script cache; the
// interpreter is an injected Evaluator.

func init() {
	register("EVAL", -3, flagWrite, cmdEval)
	register("EVALSHA", -3, flagWrite, cmdEvalSha)
	register("EVAL_RO", -3, 0, cmdEval)
	register("EVALSHA_RO", -3, 0, cmdEvalSha)
	register("SCRIPT", -2, 0, cmdScript)
}

func scriptSHA(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

func parseEvalKeys(s *Server, c *Conn, args [][]byte) ([]string, [][]byte, resp.Reply) {
	numKeys, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return nil, nil, resp.Error(msgNotInt)
	}
	if numKeys < 0 {
		return nil, nil, resp.Error("ERR Number of keys can't be negative")
	}
	if len(args) < 3+numKeys {
		return nil, nil, resp.Error("ERR Number of keys can't be greater than number of args")
	}
	keys := make([]string, numKeys)
	for i := 0; i < numKeys; i++ {
		keys[i] = string(args[3+i])
	}
	if errReply := s.checkSlots(keys...); errReply != nil {
		return nil, nil, errReply
	}
	return keys, args[3+numKeys:], nil
}

func (s *Server) runScript(c *Conn, body string, keys []string, scriptArgs [][]byte) resp.Reply {
	if s.evaluator == nil {
		return resp.Error(msgLuaDisabled)
	}
	// Script execution runs under the same serialization as any other
	// command; the evaluator receives only the script body, keys and
	// arguments.
	reply, err := s.evaluator.Eval(context.Background(), body, keys, scriptArgs)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}
	if reply == nil {
		return resp.Null{}
	}
	return reply
}

func cmdEval(s *Server, c *Conn, args [][]byte) resp.Reply {
	if !s.cfg.LuaModules {
		return resp.Error(msgLuaDisabled)
	}
	keys, scriptArgs, errReply := parseEvalKeys(s, c, args)
	if errReply != nil {
		return errReply
	}
	body := string(args[1])
	s.scripts.Set(scriptSHA(body), body)
	return s.runScript(c, body, keys, scriptArgs)
}

func cmdEvalSha(s *Server, c *Conn, args [][]byte) resp.Reply {
	if !s.cfg.LuaModules {
		return resp.Error(msgLuaDisabled)
	}
	keys, scriptArgs, errReply := parseEvalKeys(s, c, args)
	if errReply != nil {
		return errReply
	}
	sha := strings.ToLower(string(args[1]))
	body, ok := s.scripts.Get(sha)
	if !ok {
		return resp.Error(msgNoScript)
	}
	return s.runScript(c, body, keys, scriptArgs)
}

func cmdScript(s *Server, c *Conn, args [][]byte) resp.Reply {
	sub := argUpper(args[1])
	switch sub {
	case "LOAD":
		if len(args) != 3 {
			return errWrongArity("script|load")
		}
		if !s.cfg.LuaModules {
			return resp.Error(msgLuaDisabled)
		}
		body := string(args[2])
		sha := scriptSHA(body)
		s.scripts.Set(sha, body)
		return resp.BulkString(sha)
	case "EXISTS":
		out := make(resp.Array, 0, len(args)-2)
		for _, a := range args[2:] {
			if s.scripts.Has(strings.ToLower(string(a))) {
				out = append(out, resp.Integer(1))
			} else {
				out = append(out, resp.Integer(0))
			}
		}
		return out
	case "FLUSH":
		// ASYNC/SYNC are accepted and ignored; flushing is immediate.
		if len(args) == 3 {
			switch argUpper(args[2]) {
			case "ASYNC", "SYNC":
			default:
				return resp.Error(msgSyntax)
			}
		}
		s.scripts.Clear()
		return resp.OK
	default:
		return errUnknownSubcommand(strings.ToLower(sub), "SCRIPT")
	}
}
