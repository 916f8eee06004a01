package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/gateway"
	"github.com/aulalab/maisa/internal/log"
)

// tsLayout is the audit timestamp format: ISO-8601 with millisecond
// precision and a Z suffix.
const tsLayout = "2006-01-02T15:04:05.000Z"

// FileLogger writes one JSON event per line to an append-only sink.
//
// Two independent critical sections: turnsMu guards the per-session turn
// counters, mu guards the sink. Events for a single session are written in
// call order; no total order across sessions is guaranteed.
//
// Write and marshal failures never reach the caller: they are counted,
// logged at debug level, and dropped.
type FileLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer // nil when constructed over a plain writer

	turnsMu sync.Mutex
	turns   map[string]int

	dropped atomic.Uint64
	logger  log.Logger

	now func() time.Time // injectable for tests
}

// NewFileLogger opens (or creates) the audit file at path in append mode.
func NewFileLogger(path string, logger log.Logger) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	l := NewWriterLogger(f, logger)
	l.closer = f
	return l, nil
}

// NewWriterLogger creates a FileLogger over an arbitrary writer.
// Useful for testing or custom sinks.
func NewWriterLogger(w io.Writer, logger log.Logger) *FileLogger {
	if logger == nil {
		logger = log.NewNop()
	}
	return &FileLogger{
		w:      w,
		turns:  make(map[string]int),
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the underlying file, if any.
func (l *FileLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Dropped reports how many events could not be written.
func (l *FileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// AllocateTurn returns the next turn id for the session key, strictly
// increasing per key and starting at 1.
func (l *FileLogger) AllocateTurn(sessionID string) int {
	l.turnsMu.Lock()
	defer l.turnsMu.Unlock()
	l.turns[sessionID]++
	return l.turns[sessionID]
}

// append serializes and writes one event. Failures are dropped, never
// returned: the audit trail must not be able to abort a turn.
func (l *FileLogger) append(sessionID, eventType string, fields map[string]any) {
	event := map[string]any{
		"ts":         l.now().UTC().Format(tsLayout),
		"session_id": sessionID,
		"type":       eventType,
	}
	for k, v := range fields {
		event[k] = v
	}

	line, err := json.Marshal(event)
	if err != nil {
		l.dropped.Add(1)
		l.logger.Debug("dropping unmarshalable audit event", "type", eventType, "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		l.dropped.Add(1)
		l.logger.Debug("dropping audit event on write failure", "type", eventType, "error", err)
	}
}

func (l *FileLogger) TurnStart(sessionID string, turnID int, userText string) {
	l.append(sessionID, TypeTurnStart, map[string]any{
		"turn_id":   turnID,
		"user_text": userText,
	})
}

func (l *FileLogger) TurnEnd(sessionID string, turnID int, assistantText string) {
	l.append(sessionID, TypeTurnEnd, map[string]any{
		"turn_id":        turnID,
		"assistant_text": assistantText,
	})
}

func (l *FileLogger) NodeEnter(sessionID string, turnID int, node string, state Snapshot) {
	l.append(sessionID, TypeNodeEnter, map[string]any{
		"turn_id": turnID,
		"node":    node,
		"state":   state,
	})
}

func (l *FileLogger) NodeExit(sessionID string, turnID int, node string, result map[string]any) {
	l.append(sessionID, TypeNodeExit, map[string]any{
		"turn_id": turnID,
		"node":    node,
		"result":  result,
	})
}

func (l *FileLogger) RouteDecision(sessionID string, turnID int, needsSearch bool) {
	l.append(sessionID, TypeRouteDecision, map[string]any{
		"turn_id":      turnID,
		"needs_search": needsSearch,
	})
}

func (l *FileLogger) LLMCall(sessionID string, turnID int, node string, prompt []*ai.Message, response *ai.Message) {
	var resp *Message
	if response != nil {
		resp = &Message{Role: wireRole(response.Role), Content: response.Text()}
	}
	l.append(sessionID, TypeLLMCall, map[string]any{
		"turn_id":          turnID,
		"node":             node,
		"prompt_messages":  WireMessages(prompt),
		"response_message": resp,
	})
}

func (l *FileLogger) Retrieve(sessionID string, turnID int, query string, passages []gateway.Passage) {
	l.append(sessionID, TypeRetrieve, map[string]any{
		"turn_id":         turnID,
		"query":           query,
		"results_count":   len(passages),
		"results_preview": buildPreviews(passages),
	})
}

// compile-time interface check
var _ Logger = (*FileLogger)(nil)
