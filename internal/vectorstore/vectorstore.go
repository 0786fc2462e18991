// Package vectorstore is the §4.2 Vector Store: pgvector-backed KNN and
// range search over tender and company-profile embeddings, grounded on
// the hybrid tsquery+pgvector query pattern used for opportunity
// listing search.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/tender-finder/internal/obs"
)

// Store issues embedding upserts and KNN/range queries against the
// tenders.embedding and company_tender_profiles.embedding columns.
type Store struct {
	pool    *pgxpool.Pool
	metrics *obs.Metrics
}

func NewStore(pool *pgxpool.Pool, metrics *obs.Metrics) *Store {
	return &Store{pool: pool, metrics: metrics}
}

// UpsertTenderVector writes the tender's current embedding. Per-id
// writes are linearizable: a write always supersedes an older one for
// the same tender_id, but concurrent KNN readers may briefly observe
// either the old or new vector for a different tender_id mid-query
// (eventually consistent across ids).
func (s *Store) UpsertTenderVector(ctx context.Context, tenderID string, vec []float32, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tenders SET embedding = $1, embedding_updated_at = $2 WHERE id = $3
	`, pgvector.NewVector(vec), updatedAt, tenderID)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert tender vector: %w", err)
	}
	return nil
}

// UpsertProfileVector writes the company profile's current embedding.
func (s *Store) UpsertProfileVector(ctx context.Context, profileID string, vec []float32, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE company_tender_profiles SET embedding = $1, embedding_updated_at = $2, embedding_dirty = false WHERE id = $3
	`, pgvector.NewVector(vec), updatedAt, profileID)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert profile vector: %w", err)
	}
	return nil
}

// Candidate is one row of a KNN/range search result: a tender id and
// its cosine similarity to the query vector.
type Candidate struct {
	TenderID   string
	Similarity float64
}

// KNN returns the k tenders whose embedding is nearest (by cosine
// similarity) to query, restricted to effectively-published, currently
// open tenders. Ordering is strict: descending similarity, ties broken
// by ascending tender id so repeated calls with an unchanged embedding
// set return a stable order.
func (s *Store) KNN(ctx context.Context, query []float32, k int, excludeTenderID string) ([]Candidate, error) {
	start := time.Now()
	defer func() { s.metrics.KNNLatency.Observe(time.Since(start).Seconds()) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS similarity
		FROM tenders
		WHERE embedding IS NOT NULL
		  AND status = 'published'
		  AND (deadline IS NULL OR deadline > now())
		  AND ($3 = '' OR id::text != $3)
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2
	`, pgvector.NewVector(query), k, excludeTenderID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: knn query: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.TenderID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("vectorstore: scan knn row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RangeByScore returns candidates whose cosine similarity to query is at
// least minSimilarity, up to limit rows, in the same strict order as
// KNN. Used by the Similar-Tender Service, which filters on an absolute
// similarity floor rather than a fixed k.
func (s *Store) RangeByScore(ctx context.Context, query []float32, minSimilarity float64, limit int, excludeTenderID string) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $1) AS similarity
		FROM tenders
		WHERE embedding IS NOT NULL
		  AND status = 'published'
		  AND (deadline IS NULL OR deadline > now())
		  AND ($4 = '' OR id::text != $4)
		  AND 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3
	`, pgvector.NewVector(query), minSimilarity, limit, excludeTenderID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: range query: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.TenderID, &c.Similarity); err != nil {
			return nil, fmt.Errorf("vectorstore: scan range row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
