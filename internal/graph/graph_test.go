package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/audit"
	"github.com/aulalab/maisa/internal/gateway"
	"github.com/aulalab/maisa/internal/log"
	"github.com/aulalab/maisa/internal/prompt"
)

func TestConfig_validate(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{}
	retriever := &gateway.StubRetriever{}

	tests := []struct {
		name        string
		cfg         Config
		errContains string
	}{
		{
			name:        "nil completion",
			cfg:         Config{},
			errContains: "completion gateway is required",
		},
		{
			name:        "nil retriever",
			cfg:         Config{Completion: completion},
			errContains: "retrieval gateway is required",
		},
		{
			name:        "nil audit",
			cfg:         Config{Completion: completion, Retriever: retriever},
			errContains: "audit logger is required",
		},
		{
			name: "nil logger",
			cfg: Config{
				Completion: completion,
				Retriever:  retriever,
				Audit:      audit.NewNop(),
			},
			errContains: "logger is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.validate()
			if err == nil {
				t.Fatal("validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("validate() error = %q, want to contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

// newExecutor builds an executor over stub gateways and an audit recorder.
func newExecutor(t *testing.T, completion gateway.Completion, retriever gateway.Retriever) (*Executor, *audit.Recorder) {
	t.Helper()
	rec := audit.NewRecorder()
	e, err := New(Config{
		Completion: completion,
		Retriever:  retriever,
		Audit:      rec,
		Logger:     log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, rec
}

// primedState mimics what the session controller dispatches: persona,
// welcome, then the new human message.
func primedState(userText string) State {
	return State{
		SessionID: "s1",
		TurnID:    1,
		Messages: []*ai.Message{
			ai.NewSystemMessage(ai.NewTextPart(prompt.PersonaSystem)),
			ai.NewModelMessage(ai.NewTextPart(prompt.Welcome)),
			ai.NewUserMessage(ai.NewTextPart(userText)),
		},
	}
}

func TestRun_RoutesToRetrievalOnYes(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{Replies: []string{"YES", "here is a grounded answer"}}
	retriever := &gateway.StubRetriever{Passages: []gateway.Passage{
		{Text: "HTML tables use <table>.", Metadata: map[string]any{"title": "Tables"}},
		{Text: "Rows are <tr>, cells <td>.", Metadata: map[string]any{"title": "Tables"}},
	}}
	e, rec := newExecutor(t, completion, retriever)

	final, err := e.Run(context.Background(), primedState("how do HTML tables work?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := final.Messages[len(final.Messages)-1].Text(); got != "here is a grounded answer" {
		t.Errorf("final assistant text = %q", got)
	}
	if final.NeedsSearch == nil || !*final.NeedsSearch {
		t.Error("needs_search should be set true")
	}
	if len(final.ContextChunks) != 2 {
		t.Fatalf("context chunks = %d, want 2", len(final.ContextChunks))
	}
	// Rank order preserved, no filtering.
	if final.ContextChunks[0] != "HTML tables use <table>." {
		t.Errorf("chunk order not preserved: %q", final.ContextChunks[0])
	}

	// Exactly the retrieval branch ran.
	var visited []string
	for _, r := range rec.ByType(audit.TypeNodeEnter) {
		visited = append(visited, r.Node)
	}
	want := []string{NodeClassify, NodeRetrieve, NodeAnswerWithContext}
	if len(visited) != len(want) {
		t.Fatalf("visited nodes = %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visited nodes = %v, want %v", visited, want)
		}
	}

	if got := retriever.Queries(); len(got) != 1 || got[0] != "how do HTML tables work?" {
		t.Errorf("retriever queries = %v", got)
	}

	// The grounded answer call prepends one system message carrying both
	// chunks joined with a blank line inside the context block.
	prompts := completion.Prompts()
	if len(prompts) != 2 {
		t.Fatalf("completion calls = %d, want 2", len(prompts))
	}
	answerPrompt := prompts[1]
	if answerPrompt[0].Role != ai.RoleSystem {
		t.Fatal("grounded answer must start with a system message")
	}
	sysText := answerPrompt[0].Text()
	if !strings.Contains(sysText, "HTML tables use <table>.\n\nRows are <tr>, cells <td>.") {
		t.Errorf("context block missing rank-ordered chunks:\n%s", sysText)
	}
	// History follows untouched: persona, welcome, human.
	if len(answerPrompt) != 4 {
		t.Errorf("grounded prompt has %d messages, want 4", len(answerPrompt))
	}
}

func TestRun_RoutesDirectOnNo(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{Replies: []string{"NO", "a direct answer"}}
	retriever := &gateway.StubRetriever{}
	e, rec := newExecutor(t, completion, retriever)

	final, err := e.Run(context.Background(), primedState("thanks!"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := final.Messages[len(final.Messages)-1].Text(); got != "a direct answer" {
		t.Errorf("final assistant text = %q", got)
	}
	if final.ContextChunks != nil {
		t.Error("direct path must leave context chunks unset")
	}
	if len(retriever.Queries()) != 0 {
		t.Error("direct path must not hit the retriever")
	}

	var visited []string
	for _, r := range rec.ByType(audit.TypeNodeEnter) {
		visited = append(visited, r.Node)
	}
	if len(visited) != 2 || visited[0] != NodeClassify || visited[1] != NodeAnswerDirect {
		t.Errorf("visited nodes = %v, want [classify answer_direct]", visited)
	}

	routes := rec.ByType(audit.TypeRouteDecision)
	if len(routes) != 1 || routes[0].NeedsSearch {
		t.Errorf("route decisions = %+v, want one needs_search=false", routes)
	}
}

func TestRun_ClassifierLeniency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reply      string
		wantSearch bool
	}{
		{"YES", true},
		{"yes, definitely", true},
		{"  Y", true},
		{"NO", false},
		{"No idea", false},
		{"maybe?", false},
		{"", false},
		{"¯\\_(ツ)_/¯", false},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			t.Parallel()
			if got := needsSearch(tt.reply); got != tt.wantSearch {
				t.Errorf("needsSearch(%q) = %v, want %v", tt.reply, got, tt.wantSearch)
			}
		})
	}
}

func TestRun_EmptyRetrievalIsNotAnError(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{Replies: []string{"YES", "honest answer"}}
	retriever := &gateway.StubRetriever{Passages: []gateway.Passage{}}
	e, rec := newExecutor(t, completion, retriever)

	final, err := e.Run(context.Background(), primedState("what is PHP?"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Retrieval ran and returned nothing: chunks are set but empty.
	if final.ContextChunks == nil || len(final.ContextChunks) != 0 {
		t.Errorf("context chunks = %#v, want set-but-empty", final.ContextChunks)
	}

	// The grounded answer still happened, with an empty context block.
	prompts := completion.Prompts()
	sysText := prompts[1][0].Text()
	if !strings.Contains(sysText, "[CONTEXT]\n\n[/CONTEXT]") {
		t.Errorf("expected empty context block, got:\n%s", sysText)
	}

	retrieves := rec.ByType(audit.TypeRetrieve)
	if len(retrieves) != 1 || retrieves[0].ResultsCount != 0 {
		t.Errorf("retrieve events = %+v, want one with zero results", retrieves)
	}
}

func TestRun_ClassifyFailurePropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("quota exceeded")
	completion := &gateway.StubCompletion{Err: wantErr}
	e, rec := newExecutor(t, completion, &gateway.StubRetriever{})

	_, err := e.Run(context.Background(), primedState("anything"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, wantErr)
	}

	// The failing node entered but never exited; no terminal node ran.
	if got := len(rec.ByType(audit.TypeNodeExit)); got != 0 {
		t.Errorf("node_exit events = %d, want 0", got)
	}
	if got := len(rec.ByType(audit.TypeLLMCall)); got != 0 {
		t.Errorf("llm_call events = %d, want 0", got)
	}
}

func TestRun_RetrieverFailurePropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("index unavailable")
	completion := &gateway.StubCompletion{Replies: []string{"YES"}}
	retriever := &gateway.StubRetriever{Err: wantErr}
	e, _ := newExecutor(t, completion, retriever)

	_, err := e.Run(context.Background(), primedState("html lists"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, wantErr)
	}
}

func TestRun_AnswerDirectPrependsPersonaForBareHistory(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{Replies: []string{"NO", "ok"}}
	e, _ := newExecutor(t, completion, &gateway.StubRetriever{})

	bare := State{
		SessionID: "s1",
		TurnID:    1,
		Messages:  []*ai.Message{ai.NewUserMessage(ai.NewTextPart("hi"))},
	}
	if _, err := e.Run(context.Background(), bare); err != nil {
		t.Fatalf("Run: %v", err)
	}

	answerPrompt := completion.Prompts()[1]
	if answerPrompt[0].Role != ai.RoleSystem {
		t.Fatal("bare history must gain a persona system message")
	}
	if !strings.Contains(answerPrompt[0].Text(), "Professora Maísa") {
		t.Error("prepended system message should carry the persona")
	}
}

func TestRun_LLMCallRoundTrip(t *testing.T) {
	t.Parallel()

	completion := &gateway.StubCompletion{Replies: []string{"NO", "final answer"}}
	e, rec := newExecutor(t, completion, &gateway.StubRetriever{})

	if _, err := e.Run(context.Background(), primedState("hello")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The audited prompt lists reconstruct exactly what the completion
	// gateway received, call for call.
	llmCalls := rec.ByType(audit.TypeLLMCall)
	prompts := completion.Prompts()
	if len(llmCalls) != len(prompts) {
		t.Fatalf("llm_call events = %d, completion calls = %d", len(llmCalls), len(prompts))
	}
	for i, call := range llmCalls {
		if len(call.Prompt) != len(prompts[i]) {
			t.Fatalf("call %d: audited %d messages, sent %d", i, len(call.Prompt), len(prompts[i]))
		}
		for j, wire := range call.Prompt {
			if wire.Content != prompts[i][j].Text() {
				t.Errorf("call %d message %d: audited %q, sent %q", i, j, wire.Content, prompts[i][j].Text())
			}
		}
	}
}

func TestApply_MergeSemantics(t *testing.T) {
	t.Parallel()

	yes := true
	no := false
	st := State{
		Messages:    []*ai.Message{ai.NewUserMessage(ai.NewTextPart("q"))},
		NeedsSearch: &no,
	}

	// Sequences concatenate; scalars overwrite; untouched fields survive.
	st2 := st.apply(Patch{
		Messages:      []*ai.Message{ai.NewModelMessage(ai.NewTextPart("a"))},
		ContextChunks: []string{"c1"},
	})
	if len(st2.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(st2.Messages))
	}
	if st2.NeedsSearch == nil || *st2.NeedsSearch != false {
		t.Error("untouched scalar must survive the merge")
	}

	st3 := st2.apply(Patch{NeedsSearch: &yes, ContextChunks: []string{"c2"}})
	if st3.NeedsSearch == nil || !*st3.NeedsSearch {
		t.Error("scalar must be overwritten")
	}
	if len(st3.ContextChunks) != 2 || st3.ContextChunks[1] != "c2" {
		t.Errorf("chunks = %v, want [c1 c2]", st3.ContextChunks)
	}

	// The original state is untouched by later merges.
	if len(st.Messages) != 1 {
		t.Error("apply must not mutate the input state")
	}
}
