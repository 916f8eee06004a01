// Package audit records the structured, ordered trail of every turn the
// orchestration engine processes: turn boundaries, node transitions,
// routing decisions, and every model or retrieval call.
//
// The audit trail is a side channel, not control flow. A Logger must never
// fail a turn: implementations swallow their own write errors (counting
// them for diagnostics) so callers are structurally unable to abort on a
// logging failure.
//
// The Logger also owns turn-id allocation: ids are strictly increasing per
// session key, starting at 1, and are never reused for the lifetime of the
// process.
package audit

import (
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/gateway"
)

// Event types written to the audit sink, one JSON object per line.
const (
	TypeTurnStart     = "turn_start"
	TypeTurnEnd       = "turn_end"
	TypeNodeEnter     = "node_enter"
	TypeNodeExit      = "node_exit"
	TypeRouteDecision = "route_decision"
	TypeLLMCall       = "llm_call"
	TypeRetrieve      = "retrieve"
)

// previewLimit bounds the per-passage preview stored for retrieve events.
const previewLimit = 240

// Logger is the audit sink consumed by the executor and the session
// controller. All methods are safe for concurrent use. Emit methods never
// return errors: a sink that cannot write drops the event.
type Logger interface {
	// AllocateTurn returns the next turn id for the session key.
	// Ids are strictly increasing per key, starting at 1.
	AllocateTurn(sessionID string) int

	TurnStart(sessionID string, turnID int, userText string)
	TurnEnd(sessionID string, turnID int, assistantText string)
	NodeEnter(sessionID string, turnID int, node string, state Snapshot)
	NodeExit(sessionID string, turnID int, node string, result map[string]any)
	RouteDecision(sessionID string, turnID int, needsSearch bool)
	LLMCall(sessionID string, turnID int, node string, prompt []*ai.Message, response *ai.Message)
	Retrieve(sessionID string, turnID int, query string, passages []gateway.Passage)
}

// Snapshot is the reduced state recorded on node entry: scalar flags and
// counts only, never raw message text.
type Snapshot struct {
	MessagesCount    int   `json:"messages_count"`
	NeedsSearch      *bool `json:"needs_search,omitempty"`
	ContextChunksLen *int  `json:"context_chunks_len,omitempty"`
}

// Message is the wire form of a prompt or response message in llm_call
// events.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preview is the bounded per-passage record in retrieve events.
type Preview struct {
	Rank     int            `json:"rank"`
	Preview  string         `json:"preview"`
	Metadata map[string]any `json:"metadata"`
}

// wireRole maps genkit roles onto the role vocabulary of the audit trail.
func wireRole(r ai.Role) string {
	switch r {
	case ai.RoleSystem:
		return "system"
	case ai.RoleUser:
		return "human"
	case ai.RoleModel:
		return "ai"
	default:
		return string(r)
	}
}

// WireMessages converts messages to their audit wire form.
func WireMessages(msgs []*ai.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Role: wireRole(m.Role), Content: m.Text()})
	}
	return out
}

// buildPreviews converts retrieval passages to bounded previews in rank
// order. Rank is 1-based, best first.
func buildPreviews(passages []gateway.Passage) []Preview {
	previews := make([]Preview, 0, len(passages))
	for i, p := range passages {
		text := p.Text
		if len(text) > previewLimit {
			text = truncateUTF8(text, previewLimit)
		}
		previews = append(previews, Preview{
			Rank:     i + 1,
			Preview:  text,
			Metadata: p.Metadata,
		})
	}
	return previews
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
