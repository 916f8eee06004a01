package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/prompt"
)

// classify asks the model whether the latest human message needs course
// material. A completion failure here is not recovered locally: it aborts
// the turn. An unparseable verdict is not a failure; see needsSearch.
func (e *Executor) classify(ctx context.Context, st State) (Patch, error) {
	userText := lastUserText(st.Messages)

	msgs := []*ai.Message{
		ai.NewSystemMessage(ai.NewTextPart(prompt.Classifier(userText))),
		ai.NewUserMessage(ai.NewTextPart(userText)),
	}

	verdict, err := e.completion.Complete(ctx, msgs)
	if err != nil {
		return Patch{}, fmt.Errorf("classifying turn: %w", err)
	}
	e.audit.LLMCall(st.SessionID, st.TurnID, NodeClassify, msgs, verdict)

	needs := needsSearch(verdict.Text())
	e.audit.RouteDecision(st.SessionID, st.TurnID, needs)

	e.logger.Debug("classified turn",
		"session_id", st.SessionID,
		"turn_id", st.TurnID,
		"needs_search", needs,
	)

	return Patch{NeedsSearch: &needs}, nil
}

// retrieve queries the retrieval gateway with the latest human message and
// stores the passage texts in rank order. No deduplication, no score
// filtering: the top results are used as returned. An empty result is
// passed through as an empty (but set) chunk list.
func (e *Executor) retrieve(ctx context.Context, st State) (Patch, error) {
	query := lastUserText(st.Messages)

	passages, err := e.retriever.Search(ctx, query)
	if err != nil {
		return Patch{}, fmt.Errorf("retrieving context: %w", err)
	}
	e.audit.Retrieve(st.SessionID, st.TurnID, query, passages)

	chunks := make([]string, 0, len(passages))
	for _, p := range passages {
		chunks = append(chunks, p.Text)
	}

	return Patch{ContextChunks: chunks}, nil
}

// answerWithContext builds a system message from the base instruction and
// the retrieved chunks (joined with a blank line, rank order, inside a
// delimited context block), prepends it to the accumulated history, and
// appends the model's answer as the turn's output message.
func (e *Executor) answerWithContext(ctx context.Context, st State) (Patch, error) {
	contextBlock := strings.Join(st.ContextChunks, "\n\n")
	sys := ai.NewSystemMessage(ai.NewTextPart(prompt.ContextAnswer(contextBlock)))

	msgs := make([]*ai.Message, 0, len(st.Messages)+1)
	msgs = append(msgs, sys)
	msgs = append(msgs, st.Messages...)

	resp, err := e.completion.Complete(ctx, msgs)
	if err != nil {
		return Patch{}, fmt.Errorf("answering with context: %w", err)
	}
	e.audit.LLMCall(st.SessionID, st.TurnID, NodeAnswerWithContext, msgs, resp)

	return Patch{Messages: []*ai.Message{resp}}, nil
}

// answerDirect answers from the accumulated history alone. The persona
// system message is prepended only when no prior system message anchors
// the persona already; with primed sessions the history always leads with
// one, so this is a safety net for bare states.
func (e *Executor) answerDirect(ctx context.Context, st State) (Patch, error) {
	msgs := st.Messages
	if len(msgs) == 0 || msgs[0].Role != ai.RoleSystem {
		msgs = make([]*ai.Message, 0, len(st.Messages)+1)
		msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(prompt.PersonaSystem)))
		msgs = append(msgs, st.Messages...)
	}

	resp, err := e.completion.Complete(ctx, msgs)
	if err != nil {
		return Patch{}, fmt.Errorf("answering directly: %w", err)
	}
	e.audit.LLMCall(st.SessionID, st.TurnID, NodeAnswerDirect, msgs, resp)

	return Patch{Messages: []*ai.Message{resp}}, nil
}
