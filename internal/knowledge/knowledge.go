// Package knowledge stores indexed course material and serves semantic
// retrieval over it. Sections of the course handbook are embedded once at
// index time and searched by vector similarity at answer time.
//
// Store satisfies the retrieval gateway consumed by the turn graph; the
// database side is abstracted behind Querier so tests run without
// PostgreSQL.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/aulalab/maisa/internal/gateway"
	"github.com/aulalab/maisa/internal/log"
)

const (
	// DefaultTopK bounds how many sections a search returns by default.
	DefaultTopK = 4

	// searchTimeout caps one embed-and-search round trip.
	searchTimeout = 10 * time.Second
)

// ErrEmptyEmbedding reports an embedder that returned no vector.
var ErrEmptyEmbedding = errors.New("embedder returned an empty embedding")

// Document is one indexed course section.
type Document struct {
	ID       string
	Title    string
	Content  string
	Keywords []string
	Source   string
}

// UpsertSectionParams carries one section row to the database.
type UpsertSectionParams struct {
	ID        string
	Title     string
	Content   string
	Keywords  []string
	Source    string
	Embedding pgvector.Vector
}

// SectionRow is one vector-search hit, closest first.
type SectionRow struct {
	ID         string
	Title      string
	Content    string
	Keywords   []string
	Source     string
	Similarity float64
}

// Querier is the database dependency, defined here by the consumer so the
// store can run against a fake in tests.
type Querier interface {
	UpsertSection(ctx context.Context, arg UpsertSectionParams) error
	SearchSections(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SectionRow, error)
	CountSections(ctx context.Context) (int64, error)
}

// Config contains all required parameters for the Store.
type Config struct {
	Querier  Querier
	Embedder ai.Embedder
	Logger   log.Logger

	// TopK is how many sections Search returns (zero uses DefaultTopK).
	TopK int32
}

func (cfg Config) validate() error {
	if cfg.Querier == nil {
		return errors.New("querier is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.TopK < 0 {
		return fmt.Errorf("top k must not be negative, got %d", cfg.TopK)
	}
	return nil
}

// Store embeds and persists course sections and answers similarity
// queries. Safe for concurrent use.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
	topK     int32
}

// New creates a knowledge store.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	topK := cfg.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	return &Store{
		queries:  cfg.Querier,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
		topK:     topK,
	}, nil
}

// Add embeds a document and upserts it, keyed by ID, so re-indexing the
// same source is idempotent.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}

	embedding, err := s.embed(ctx, embeddingText(doc))
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	err = s.queries.UpsertSection(ctx, UpsertSectionParams{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   doc.Content,
		Keywords:  doc.Keywords,
		Source:    doc.Source,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed section",
		"id", doc.ID,
		"title", doc.Title,
		"content_length", len(doc.Content),
	)
	return nil
}

// Search returns the sections most similar to the query, closest first.
// An empty result is valid and means the index has nothing relevant.
func (s *Store) Search(ctx context.Context, query string) ([]gateway.Passage, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.SearchSections(ctx, embedding, s.topK)
	if err != nil {
		return nil, fmt.Errorf("searching sections: %w", err)
	}

	passages := make([]gateway.Passage, 0, len(rows))
	for _, row := range rows {
		passages = append(passages, gateway.Passage{
			Text: row.Content,
			Metadata: map[string]any{
				"id":         row.ID,
				"title":      row.Title,
				"source":     row.Source,
				"keywords":   row.Keywords,
				"similarity": row.Similarity,
			},
		})
	}
	return passages, nil
}

// Count reports how many sections are indexed.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.queries.CountSections(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting sections: %w", err)
	}
	return int(n), nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, ErrEmptyEmbedding
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// embeddingText is what gets embedded for a section. The title carries
// much of the signal in handbook material, so it is embedded with the
// body.
func embeddingText(doc Document) string {
	if doc.Title == "" {
		return doc.Content
	}
	return doc.Title + "\n\n" + doc.Content
}

var _ gateway.Retriever = (*Store)(nil)
