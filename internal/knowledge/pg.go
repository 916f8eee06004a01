package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const upsertSectionSQL = `
INSERT INTO course_sections (id, title, content, keywords, source, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    title      = EXCLUDED.title,
    content    = EXCLUDED.content,
    keywords   = EXCLUDED.keywords,
    source     = EXCLUDED.source,
    embedding  = EXCLUDED.embedding,
    updated_at = now()`

const searchSectionsSQL = `
SELECT id, title, content, keywords, source,
       1 - (embedding <=> $1) AS similarity
FROM course_sections
ORDER BY embedding <=> $1
LIMIT $2`

const countSectionsSQL = `SELECT count(*) FROM course_sections`

// PG implements Querier over a pgx connection pool.
//
// pgvector.Vector encodes itself in the vector text format, so no custom
// type registration is needed on the pool.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates a PostgreSQL querier. The pool is owned by the caller.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (q *PG) UpsertSection(ctx context.Context, arg UpsertSectionParams) error {
	_, err := q.pool.Exec(ctx, upsertSectionSQL,
		arg.ID, arg.Title, arg.Content, arg.Keywords, arg.Source, arg.Embedding)
	return err
}

func (q *PG) SearchSections(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SectionRow, error) {
	rows, err := q.pool.Query(ctx, searchSectionsSQL, embedding, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SectionRow
	for rows.Next() {
		var r SectionRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Content, &r.Keywords, &r.Source, &r.Similarity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *PG) CountSections(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx, countSectionsSQL).Scan(&n)
	return n, err
}

var _ Querier = (*PG)(nil)
