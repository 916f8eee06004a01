// Package graph implements the turn orchestration core: a fixed directed
// graph of processing nodes evaluated once per user turn.
//
// Topology (compiled once at construction, reused for every turn):
//
//	START → classify → retrieve → answer_with_context → END
//	                 ↘ answer_direct ────────────────→ END
//
// classify asks the completion model whether the turn needs course
// material; the conditional edge routes on that flag; exactly one of the
// two terminal answer nodes runs per turn, never both, never neither.
//
// The graph is data: an immutable value of named nodes with static or
// conditional successors, interpreted by a stateless Executor that
// receives its gateways and audit sink as injected dependencies. Nodes
// are pure functions of State returning a partial Patch; the executor
// owns merging and the node_enter/node_exit audit envelope.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/aulalab/maisa/internal/audit"
	"github.com/aulalab/maisa/internal/gateway"
	"github.com/aulalab/maisa/internal/log"
)

// Node names, as they appear in the audit trail.
const (
	NodeClassify          = "classify"
	NodeRetrieve          = "retrieve"
	NodeAnswerWithContext = "answer_with_context"
	NodeAnswerDirect      = "answer_direct"
)

// nodeFunc computes a node's partial state patch. Gateway calls and audit
// emission are its only side effects.
type nodeFunc func(ctx context.Context, st State) (Patch, error)

// node is one vertex of the compiled graph. Exactly one of next/route is
// set for non-terminal nodes; terminal nodes have neither.
type node struct {
	run   nodeFunc
	next  string             // static successor ("" = terminal)
	route func(State) string // conditional successor (nil = use next)
}

// Config contains all required parameters for the executor.
type Config struct {
	Completion gateway.Completion
	Retriever  gateway.Retriever
	Audit      audit.Logger
	Logger     log.Logger
}

func (cfg Config) validate() error {
	if cfg.Completion == nil {
		return errors.New("completion gateway is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retrieval gateway is required")
	}
	if cfg.Audit == nil {
		return errors.New("audit logger is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Executor interprets the compiled turn graph. It is stateless across
// turns and safe for concurrent use; all per-turn data lives in State.
type Executor struct {
	completion gateway.Completion
	retriever  gateway.Retriever
	audit      audit.Logger
	logger     log.Logger

	entry string
	nodes map[string]node
}

// New compiles the turn graph once and returns its executor.
func New(cfg Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		completion: cfg.Completion,
		retriever:  cfg.Retriever,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
	}

	e.entry = NodeClassify
	e.nodes = map[string]node{
		NodeClassify: {
			run: e.classify,
			route: func(st State) string {
				if st.NeedsSearch != nil && *st.NeedsSearch {
					return NodeRetrieve
				}
				return NodeAnswerDirect
			},
		},
		NodeRetrieve:          {run: e.retrieve, next: NodeAnswerWithContext},
		NodeAnswerWithContext: {run: e.answerWithContext},
		NodeAnswerDirect:      {run: e.answerDirect},
	}

	return e, nil
}

// Run evaluates the graph over the initial state and returns the final
// state, whose last message is the turn's assistant output.
//
// initial.Messages must already contain the turn's new human message
// appended to prior history. Node failures are not recovered here: the
// first failing node aborts the turn and the error propagates to the
// session controller boundary.
func (e *Executor) Run(ctx context.Context, initial State) (State, error) {
	st := initial
	name := e.entry
	for name != "" {
		n, ok := e.nodes[name]
		if !ok {
			return State{}, fmt.Errorf("graph has no node %q", name)
		}

		e.audit.NodeEnter(st.SessionID, st.TurnID, name, st.snapshot())

		patch, err := n.run(ctx, st)
		if err != nil {
			return State{}, fmt.Errorf("node %s: %w", name, err)
		}
		st = st.apply(patch)

		e.audit.NodeExit(st.SessionID, st.TurnID, name, patch.summary())

		if n.route != nil {
			name = n.route(st)
		} else {
			name = n.next
		}
	}
	return st, nil
}
