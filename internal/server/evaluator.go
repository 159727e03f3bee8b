package server

import (
	"context"

	"github.com/yndnr/redsim-go/internal/resp"
)

// Evaluator is the narrow interface to the embedded scripting
// interpreter. The interpreter itself is injected by the embedder;
// the engine only stores script bodies by SHA-1 and routes EVAL and
// EVALSHA through this interface under the same serialization as any
// other command.
type Evaluator interface {
	// Eval runs a script body with the given keys and arguments and
	// returns the reply to send. A returned error becomes an ERR
	// reply.
	Eval(ctx context.Context, script string, keys []string, args [][]byte) (resp.Reply, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, script string, keys []string, args [][]byte) (resp.Reply, error)

// Eval implements Evaluator.
func (f EvaluatorFunc) Eval(ctx context.Context, script string, keys []string, args [][]byte) (resp.Reply, error) {
	return f(ctx, script, keys, args)
}
