package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/pgvector/pgvector-go"

	"github.com/aulalab/maisa/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr      error
	returnEmpty   bool
	embeddings    []float32
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{}, nil
	}
	emb := m.embeddings
	if emb == nil {
		emb = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: emb}},
	}, nil
}

// fakeQuerier records upserts and replies with canned search rows.
type fakeQuerier struct {
	upserts    []UpsertSectionParams
	searchRows []SectionRow
	lastLimit  int32
	upsertErr  error
	searchErr  error
	count      int64
}

func (f *fakeQuerier) UpsertSection(_ context.Context, arg UpsertSectionParams) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, arg)
	return nil
}

func (f *fakeQuerier) SearchSections(_ context.Context, _ pgvector.Vector, limit int32) ([]SectionRow, error) {
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRows, nil
}

func (f *fakeQuerier) CountSections(context.Context) (int64, error) {
	return f.count, nil
}

func TestConfig_validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         Config
		errContains string
	}{
		{"missing querier", Config{}, "querier is required"},
		{"missing embedder", Config{Querier: &fakeQuerier{}}, "embedder is required"},
		{"missing logger", Config{Querier: &fakeQuerier{}, Embedder: &mockEmbedder{}}, "logger is required"},
		{
			"negative top k",
			Config{Querier: &fakeQuerier{}, Embedder: &mockEmbedder{}, Logger: log.NewNop(), TopK: -1},
			"top k must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("New() error = %v, want %q", err, tt.errContains)
			}
		})
	}
}

func newStore(t *testing.T, querier Querier, embedder ai.Embedder) *Store {
	t.Helper()
	s, err := New(Config{Querier: querier, Embedder: embedder, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_Add(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{}
	embedder := &mockEmbedder{embeddings: []float32{1, 2, 3}}
	store := newStore(t, querier, embedder)

	doc := Document{
		ID:       "handbook.pdf#variables",
		Title:    "Variables",
		Content:  "A variable holds a value.",
		Keywords: []string{"$name", "assignment"},
		Source:   "handbook.pdf",
	}
	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if len(querier.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(querier.upserts))
	}
	got := querier.upserts[0]
	if got.ID != doc.ID || got.Title != doc.Title || got.Source != doc.Source {
		t.Errorf("upsert row = %+v", got)
	}
	if len(got.Keywords) != 2 {
		t.Errorf("keywords = %v", got.Keywords)
	}

	// Title participates in the embedded text.
	if !strings.HasPrefix(embedder.lastInputText, "Variables\n\n") {
		t.Errorf("embedded text = %q, want title prefix", embedder.lastInputText)
	}
}

func TestStore_Add_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		store := newStore(t, &fakeQuerier{}, &mockEmbedder{})
		err := store.Add(context.Background(), Document{Content: "x"})
		if err == nil || !strings.Contains(err.Error(), "id is required") {
			t.Errorf("Add error = %v", err)
		}
	})

	t.Run("empty embedding", func(t *testing.T) {
		t.Parallel()
		store := newStore(t, &fakeQuerier{}, &mockEmbedder{returnEmpty: true})
		err := store.Add(context.Background(), Document{ID: "a", Content: "x"})
		if !errors.Is(err, ErrEmptyEmbedding) {
			t.Errorf("Add error = %v, want ErrEmptyEmbedding", err)
		}
	})

	t.Run("embedder failure", func(t *testing.T) {
		t.Parallel()
		embedErr := errors.New("quota exceeded")
		store := newStore(t, &fakeQuerier{}, &mockEmbedder{embedErr: embedErr})
		err := store.Add(context.Background(), Document{ID: "a", Content: "x"})
		if !errors.Is(err, embedErr) {
			t.Errorf("Add error = %v, want wrapped embedder error", err)
		}
	})
}

func TestStore_Search(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{
		searchRows: []SectionRow{
			{ID: "h#loops", Title: "Loops", Content: "while repeats", Source: "handbook.pdf", Similarity: 0.91},
			{ID: "h#arrays", Title: "Arrays", Content: "arrays hold lists", Source: "handbook.pdf", Similarity: 0.74},
		},
	}
	store := newStore(t, querier, &mockEmbedder{})

	passages, err := store.Search(context.Background(), "how do loops work")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if querier.lastLimit != DefaultTopK {
		t.Errorf("limit = %d, want %d", querier.lastLimit, DefaultTopK)
	}
	if len(passages) != 2 {
		t.Fatalf("passages = %d, want 2", len(passages))
	}
	if passages[0].Text != "while repeats" {
		t.Errorf("passages[0].Text = %q", passages[0].Text)
	}
	if passages[0].Metadata["title"] != "Loops" {
		t.Errorf("metadata title = %v", passages[0].Metadata["title"])
	}
	if passages[0].Metadata["similarity"] != 0.91 {
		t.Errorf("metadata similarity = %v", passages[0].Metadata["similarity"])
	}
}

func TestStore_Search_EmptyIndexIsNotAnError(t *testing.T) {
	t.Parallel()

	store := newStore(t, &fakeQuerier{}, &mockEmbedder{})
	passages, err := store.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("passages = %d, want 0", len(passages))
	}
}

func TestStore_Search_QuerierFailurePropagates(t *testing.T) {
	t.Parallel()

	searchErr := errors.New("connection refused")
	store := newStore(t, &fakeQuerier{searchErr: searchErr}, &mockEmbedder{})
	_, err := store.Search(context.Background(), "anything")
	if !errors.Is(err, searchErr) {
		t.Errorf("Search error = %v, want wrapped querier error", err)
	}
}

func TestStore_Count(t *testing.T) {
	t.Parallel()

	store := newStore(t, &fakeQuerier{count: 42}, &mockEmbedder{})
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("Count = %d, want 42", n)
	}
}
