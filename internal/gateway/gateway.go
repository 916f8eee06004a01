// Package gateway defines the external collaborator boundaries of the
// orchestration engine: the completion model and the retrieval index.
//
// Both gateways are synchronous from the graph's perspective; a node does
// not proceed until its call resolves. Production implementations impose a
// bounded timeout so an unresponsive provider cannot stall a session
// forever. Gateway failures are never retried here: they propagate to the
// session controller boundary, which owns the user-facing fallback.
package gateway

import (
	"context"

	"github.com/firebase/genkit/go/ai"
)

// Passage is one retrieved reference passage, best-rank first in the
// slices returned by Retriever implementations.
type Passage struct {
	Text     string
	Metadata map[string]any
}

// Completion is the completion-model boundary. Implementations must
// preserve message order as the prompt and return exactly one response
// message of role model.
type Completion interface {
	Complete(ctx context.Context, msgs []*ai.Message) (*ai.Message, error)
}

// Retriever is the retrieval-index boundary. Results are ordered by
// similarity rank, best first. An empty result is valid, not an error.
type Retriever interface {
	Search(ctx context.Context, query string) ([]Passage, error)
}
