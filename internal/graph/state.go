package graph

import (
	"strings"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/audit"
)

// assistantPreviewLimit bounds the response preview in node_exit events.
const assistantPreviewLimit = 200

// State is the transient per-turn working state threaded through the
// graph. Messages holds the full model-visible history for the turn, with
// the turn's new human message last on entry.
//
// NeedsSearch and ContextChunks are tri-state: nil means the owning node
// has not run yet. A non-nil empty ContextChunks means retrieval ran and
// returned nothing, which is valid.
type State struct {
	SessionID     string
	TurnID        int
	Messages      []*ai.Message
	NeedsSearch   *bool
	ContextChunks []string
}

// Patch is the partial update a node returns. Patches are merged
// additively into State: sequences are concatenated, scalars overwritten.
// Fields a node does not touch survive later nodes untouched.
type Patch struct {
	Messages      []*ai.Message
	NeedsSearch   *bool
	ContextChunks []string
}

// apply merges a patch into the state and returns the result. The
// receiver is taken by value so earlier states held by callers are never
// mutated; appends use full slice expressions to force reallocation.
func (s State) apply(p Patch) State {
	if len(p.Messages) > 0 {
		s.Messages = append(s.Messages[:len(s.Messages):len(s.Messages)], p.Messages...)
	}
	if p.NeedsSearch != nil {
		v := *p.NeedsSearch
		s.NeedsSearch = &v
	}
	if p.ContextChunks != nil {
		if s.ContextChunks == nil {
			s.ContextChunks = make([]string, 0, len(p.ContextChunks))
		}
		s.ContextChunks = append(s.ContextChunks[:len(s.ContextChunks):len(s.ContextChunks)], p.ContextChunks...)
	}
	return s
}

// snapshot reduces the state to the scalar flags and counts recorded on
// node entry. Raw message text never enters the audit state snapshot.
func (s State) snapshot() audit.Snapshot {
	snap := audit.Snapshot{MessagesCount: len(s.Messages)}
	if s.NeedsSearch != nil {
		v := *s.NeedsSearch
		snap.NeedsSearch = &v
	}
	if s.ContextChunks != nil {
		n := len(s.ContextChunks)
		snap.ContextChunksLen = &n
	}
	return snap
}

// summary builds the small node_exit result record from a node's patch.
func (p Patch) summary() map[string]any {
	result := make(map[string]any)
	if p.NeedsSearch != nil {
		result["needs_search"] = *p.NeedsSearch
	}
	if p.ContextChunks != nil {
		result["chunks_len"] = len(p.ContextChunks)
	}
	if len(p.Messages) > 0 {
		result["assistant_preview"] = previewText(p.Messages[len(p.Messages)-1].Text())
	}
	return result
}

// lastUserText returns the text of the most recent human message, or ""
// when there is none.
func lastUserText(msgs []*ai.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			return msgs[i].Text()
		}
	}
	return ""
}

// needsSearch parses the classifier's raw reply. Lenient by policy: only a
// leading affirmative token selects the retrieval path; anything else,
// including garbage, fails toward the cheaper direct answer.
func needsSearch(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	return trimmed != "" && (trimmed[0] == 'Y' || trimmed[0] == 'y')
}

func previewText(s string) string {
	if len(s) <= assistantPreviewLimit {
		return s
	}
	n := assistantPreviewLimit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
