package server

import (
	"strings"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Error text follows the reference server's conventions: a prefix
// word (ERR, WRONGTYPE, ...) followed by the message. Matching the
// exact wording for overlapping conditions is a non-goal.
const (
	msgWrongType     = "WRONGTYPE Operation against a key holding the wrong kind of value"
	msgSyntax        = "ERR syntax error"
	msgNotInt        = "ERR value is not an integer or out of range"
	msgNotFloat      = "ERR value is not a valid float"
	msgNoSuchKey     = "ERR no such key"
	msgIndexRange    = "ERR index out of range"
	msgDBIndex       = "ERR DB index is out of range"
	msgNegTimeout    = "ERR timeout is negative"
	msgTimeoutFloat  = "ERR timeout is not a float or out of range"
	msgExecAbort     = "EXECABORT Transaction discarded because of previous errors."
	msgNoMulti       = "ERR EXEC without MULTI"
	msgNoMultiDisc   = "ERR DISCARD without MULTI"
	msgNestedMulti   = "ERR MULTI calls can not be nested"
	msgNoAuth        = "NOAUTH Authentication required."
	msgWrongPass     = "WRONGPASS invalid username-password pair or user is disabled."
	msgNoPass        = "ERR Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?"
	msgNotConnected  = "ERR connection refused: server is not connected"
	msgValueRange    = "ERR value is out of range, must be positive"
	msgBitValue      = "ERR bit is not an integer or out of range"
	msgOffsetRange   = "ERR bit offset is not an integer or out of range"
	msgStringExceeds = "ERR string exceeds maximum allowed size (proto-max-bulk-len)"
	msgNoScript      = "NOSCRIPT No matching script. Please use EVAL."
	msgLuaDisabled   = "ERR Lua scripting is not enabled on this server"
	msgCrossSlot     = "CROSSSLOT Keys in request don't hash to the same slot"
	msgWatchInMulti  = "ERR WATCH inside MULTI is not allowed"
	msgSubscribeCtx  = "ERR Can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context"
)

func errWrongArity(cmd string) resp.Error {
	return resp.Error("ERR wrong number of arguments for '" + strings.ToLower(cmd) + "' command")
}

func errUnknownCommand(cmd string, args [][]byte) resp.Error {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		s := string(a)
		if len(s) > 32 {
			s = s[:32]
		}
		parts = append(parts, "'"+s+"'")
	}
	return resp.Error("ERR unknown command '" + cmd + "', with args beginning with: " + strings.Join(parts, ", "))
}

func errUnknownSubcommand(sub, cmd string) resp.Error {
	return resp.Error("ERR Unknown " + cmd + " subcommand or wrong number of arguments for '" + sub + "'")
}

func errInvalidExpire(cmd string) resp.Error {
	return resp.Error("ERR invalid expire time in '" + strings.ToLower(cmd) + "' command")
}
