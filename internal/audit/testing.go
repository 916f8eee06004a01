package audit

import (
	"sync"

	"github.com/firebase/genkit/go/ai"

	"github.com/aulalab/maisa/internal/gateway"
)

// Record is one captured event, kept in typed form so tests can assert on
// payloads without re-parsing JSON.
type Record struct {
	SessionID     string
	Type          string
	TurnID        int
	UserText      string
	AssistantText string
	Node          string
	State         Snapshot
	Result        map[string]any
	NeedsSearch   bool
	Prompt        []Message
	Response      *Message
	Query         string
	ResultsCount  int
	Previews      []Preview
}

// Recorder is an in-memory Logger for tests. It captures events in call
// order and allocates turn ids like the real sink.
type Recorder struct {
	mu      sync.Mutex
	turns   map[string]int
	records []Record
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{turns: make(map[string]int)}
}

// Records returns a copy of the captured events in call order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ByType returns captured events of one type, in call order.
func (r *Recorder) ByType(eventType string) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.Type == eventType {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Recorder) add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *Recorder) AllocateTurn(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[sessionID]++
	return r.turns[sessionID]
}

func (r *Recorder) TurnStart(sessionID string, turnID int, userText string) {
	r.add(Record{SessionID: sessionID, Type: TypeTurnStart, TurnID: turnID, UserText: userText})
}

func (r *Recorder) TurnEnd(sessionID string, turnID int, assistantText string) {
	r.add(Record{SessionID: sessionID, Type: TypeTurnEnd, TurnID: turnID, AssistantText: assistantText})
}

func (r *Recorder) NodeEnter(sessionID string, turnID int, node string, state Snapshot) {
	r.add(Record{SessionID: sessionID, Type: TypeNodeEnter, TurnID: turnID, Node: node, State: state})
}

func (r *Recorder) NodeExit(sessionID string, turnID int, node string, result map[string]any) {
	r.add(Record{SessionID: sessionID, Type: TypeNodeExit, TurnID: turnID, Node: node, Result: result})
}

func (r *Recorder) RouteDecision(sessionID string, turnID int, needsSearch bool) {
	r.add(Record{SessionID: sessionID, Type: TypeRouteDecision, TurnID: turnID, NeedsSearch: needsSearch})
}

func (r *Recorder) LLMCall(sessionID string, turnID int, node string, prompt []*ai.Message, response *ai.Message) {
	var resp *Message
	if response != nil {
		resp = &Message{Role: wireRole(response.Role), Content: response.Text()}
	}
	r.add(Record{
		SessionID: sessionID,
		Type:      TypeLLMCall,
		TurnID:    turnID,
		Node:      node,
		Prompt:    WireMessages(prompt),
		Response:  resp,
	})
}

func (r *Recorder) Retrieve(sessionID string, turnID int, query string, passages []gateway.Passage) {
	r.add(Record{
		SessionID:    sessionID,
		Type:         TypeRetrieve,
		TurnID:       turnID,
		Query:        query,
		ResultsCount: len(passages),
		Previews:     buildPreviews(passages),
	})
}

var _ Logger = (*Recorder)(nil)
