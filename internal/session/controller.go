// Package session owns conversational session lifecycle: first-contact
// priming, turn-id allocation, dispatch into the turn graph, and the
// per-session message log that gives the agent memory across turns.
//
// Sessions are identified by an opaque caller-supplied key and live in
// process memory only. A per-session mutex serializes turns within one
// session while distinct sessions proceed concurrently. Idle sessions are
// evicted after a TTL so memory stays bounded.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/audit"
	"github.com/aulalab/maisa/internal/graph"
	"github.com/aulalab/maisa/internal/log"
	"github.com/aulalab/maisa/internal/prompt"
)

const (
	// FallbackText is the user-safe reply when a turn fails. This is the
	// only boundary that converts errors into fallback text.
	FallbackText = "I'm sorry, something went wrong while preparing your answer. Please try again."

	// primingPlaceholder is the synthetic user text logged for the
	// zero-turn priming case, where no real user message exists yet.
	primingPlaceholder = "(chat initialization)"

	// DefaultIdleTTL evicts sessions with no traffic for this long.
	DefaultIdleTTL = 2 * time.Hour

	// sweepInterval rate-limits eviction sweeps piggybacked on Reply.
	sweepInterval = 5 * time.Minute
)

// ErrEmptyInput rejects blank user text on an already-primed session.
// This is a caller-contract violation: no turn id is allocated and the
// graph never runs.
var ErrEmptyInput = errors.New("empty user text on a primed session")

// Executor runs one turn of the conversation graph over the given state.
// Implemented by graph.Executor.
type Executor interface {
	Run(ctx context.Context, initial graph.State) (graph.State, error)
}

// session is the in-memory state owned by one session key.
type session struct {
	mu       sync.Mutex // serializes turns within this session
	primed   bool
	messages []*ai.Message // the durable message log, append-only
	lastSeen time.Time
}

// Config contains all required parameters for the Controller.
type Config struct {
	Executor Executor
	Audit    audit.Logger
	Logger   log.Logger

	// IdleTTL evicts sessions idle longer than this (zero-value uses
	// DefaultIdleTTL; negative disables eviction).
	IdleTTL time.Duration
}

func (cfg Config) validate() error {
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Audit == nil {
		return errors.New("audit logger is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Controller dispatches user turns into the turn graph and maintains
// per-session memory. Safe for concurrent use across sessions; turns
// within one session are serialized.
type Controller struct {
	exec    Executor
	audit   audit.Logger
	logger  log.Logger
	idleTTL time.Duration

	mu        sync.Mutex // guards sessions map and lastSweep
	sessions  map[string]*session
	lastSweep time.Time

	now func() time.Time // injectable for tests
}

// New creates a session controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ttl := cfg.IdleTTL
	if ttl == 0 {
		ttl = DefaultIdleTTL
	}

	return &Controller{
		exec:     cfg.Executor,
		audit:    cfg.Audit,
		logger:   cfg.Logger,
		idleTTL:  ttl,
		sessions: make(map[string]*session),
		now:      time.Now,
	}, nil
}

// Reply processes one user turn for the session key and returns the
// assistant text.
//
// Rules:
//   - New/unprimed session, blank text: return the canned welcome without
//     running the graph. Repeatable; the session stays unprimed.
//   - Unprimed session, real text: backfill the welcome exchange into the
//     model-visible history exactly once, run the graph, mark primed.
//   - Primed session, real text: append the human message to history, run
//     the graph, persist only the human input and the final assistant
//     output (the executor's internal fan-out is not persisted).
//   - Primed session, blank text: ErrEmptyInput, before any turn id.
//
// Any dispatch failure is converted here, and only here, into FallbackText
// with a nil error; committed turn ids are never rolled back.
func (c *Controller) Reply(ctx context.Context, sessionKey, userText string) (string, error) {
	sess := c.lookup(sessionKey)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = c.now()

	blank := isBlank(userText)

	if sess.primed && blank {
		return "", ErrEmptyInput
	}

	if !sess.primed && blank {
		// Zero-turn priming case: greet without running the graph. The
		// welcome exchange is anchored into history only when the first
		// real message arrives.
		turnID := c.audit.AllocateTurn(sessionKey)
		c.audit.TurnStart(sessionKey, turnID, primingPlaceholder)
		c.audit.TurnEnd(sessionKey, turnID, prompt.Welcome)
		return prompt.Welcome, nil
	}

	turnID := c.audit.AllocateTurn(sessionKey)
	c.audit.TurnStart(sessionKey, turnID, userText)

	var initial []*ai.Message
	if !sess.primed {
		// First real turn: the model "remembers" having greeted the user.
		initial = []*ai.Message{
			ai.NewSystemMessage(ai.NewTextPart(prompt.PersonaSystem)),
			ai.NewModelMessage(ai.NewTextPart(prompt.Welcome)),
			ai.NewUserMessage(ai.NewTextPart(userText)),
		}
	} else {
		initial = make([]*ai.Message, 0, len(sess.messages)+1)
		initial = append(initial, sess.messages...)
		initial = append(initial, ai.NewUserMessage(ai.NewTextPart(userText)))
	}

	final, err := c.exec.Run(ctx, graph.State{
		SessionID: sessionKey,
		TurnID:    turnID,
		Messages:  initial,
	})
	if err != nil {
		// Best-effort diagnostic; no turn_end with real assistant text is
		// written for a failed turn. Priming state stays as committed.
		c.logger.Error("turn failed",
			"session_id", sessionKey,
			"turn_id", turnID,
			"error", err,
		)
		return FallbackText, nil
	}

	assistant := final.Messages[len(final.Messages)-1]
	assistantText := assistant.Text()

	if !sess.primed {
		// Baseline: persist the full resulting list, welcome exchange
		// included, not just the new human+assistant pair.
		sess.messages = final.Messages
		sess.primed = true
	} else {
		sess.messages = append(sess.messages,
			ai.NewUserMessage(ai.NewTextPart(userText)),
			assistant,
		)
	}

	c.audit.TurnEnd(sessionKey, turnID, assistantText)
	return assistantText, nil
}

// History returns a copy of the session's persisted message log. Missing
// sessions yield an empty history.
func (c *Controller) History(sessionKey string) []*ai.Message {
	c.mu.Lock()
	sess, ok := c.sessions[sessionKey]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]*ai.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Len reports how many sessions are currently held.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// lookup resolves or creates the session for a key, sweeping idle
// sessions opportunistically.
func (c *Controller) lookup(sessionKey string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.idleTTL > 0 && now.Sub(c.lastSweep) >= sweepInterval {
		c.evictIdleLocked(now)
		c.lastSweep = now
	}

	sess, ok := c.sessions[sessionKey]
	if !ok {
		sess = &session{lastSeen: now}
		c.sessions[sessionKey] = sess
	}
	return sess
}

// evictIdleLocked drops sessions idle past the TTL. Sessions with a turn
// in flight hold their own mutex and are skipped via TryLock. Caller
// holds c.mu.
func (c *Controller) evictIdleLocked(now time.Time) {
	for key, sess := range c.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		idle := now.Sub(sess.lastSeen)
		sess.mu.Unlock()
		if idle >= c.idleTTL {
			delete(c.sessions, key)
			c.logger.Debug("evicted idle session", "session_id", key, "idle", idle)
		}
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
