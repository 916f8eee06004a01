package gateway

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// StubCompletion is a scripted Completion for tests. Replies are returned
// in order; the last reply repeats once the script runs out. A non-nil
// Err is returned on every call instead.
//
// Every prompt is captured so tests can assert on the exact message list
// the graph sent.
type StubCompletion struct {
	mu      sync.Mutex
	Replies []string
	Err     error

	calls   int
	prompts [][]*ai.Message
}

// Complete implements Completion.
func (s *StubCompletion) Complete(_ context.Context, msgs []*ai.Message) (*ai.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Capture a copy of the prompt slice (messages themselves are shared).
	captured := make([]*ai.Message, len(msgs))
	copy(captured, msgs)
	s.prompts = append(s.prompts, captured)

	if s.Err != nil {
		return nil, s.Err
	}

	idx := s.calls
	s.calls++
	if idx >= len(s.Replies) {
		idx = len(s.Replies) - 1
	}
	if idx < 0 {
		return ai.NewModelMessage(ai.NewTextPart("")), nil
	}
	return ai.NewModelMessage(ai.NewTextPart(s.Replies[idx])), nil
}

// Calls reports how many completions were requested.
func (s *StubCompletion) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Prompts returns the captured prompt message lists in call order.
func (s *StubCompletion) Prompts() [][]*ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*ai.Message, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// StubRetriever is a canned Retriever for tests.
type StubRetriever struct {
	mu       sync.Mutex
	Passages []Passage
	Err      error

	queries []string
}

// Search implements Retriever.
func (s *StubRetriever) Search(_ context.Context, query string) ([]Passage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Passages, nil
}

// Queries returns the captured queries in call order.
func (s *StubRetriever) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

var (
	_ Completion = (*StubCompletion)(nil)
	_ Retriever  = (*StubRetriever)(nil)
)
