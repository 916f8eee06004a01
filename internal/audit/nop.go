package audit

import (
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/gateway"
)

// NopLogger discards every event but still allocates well-formed turn ids,
// so components can run without a sink configured (and in tests that don't
// inspect the trail).
type NopLogger struct {
	mu    sync.Mutex
	turns map[string]int
}

// NewNop creates a NopLogger.
func NewNop() *NopLogger {
	return &NopLogger{turns: make(map[string]int)}
}

func (l *NopLogger) AllocateTurn(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.turns == nil {
		l.turns = make(map[string]int)
	}
	l.turns[sessionID]++
	return l.turns[sessionID]
}

func (l *NopLogger) TurnStart(string, int, string)                           {}
func (l *NopLogger) TurnEnd(string, int, string)                             {}
func (l *NopLogger) NodeEnter(string, int, string, Snapshot)                 {}
func (l *NopLogger) NodeExit(string, int, string, map[string]any)            {}
func (l *NopLogger) RouteDecision(string, int, bool)                         {}
func (l *NopLogger) LLMCall(string, int, string, []*ai.Message, *ai.Message) {}
func (l *NopLogger) Retrieve(string, int, string, []gateway.Passage)         {}

var _ Logger = (*NopLogger)(nil)
