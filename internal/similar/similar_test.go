package similar

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/vectorstore"
)

type fakeTenderStore struct {
	ref     models.Tender
	many    []models.Tender
	getErr  error
}

func (f *fakeTenderStore) GetTenderByID(ctx context.Context, id uuid.UUID) (models.Tender, error) {
	return f.ref, f.getErr
}
func (f *fakeTenderStore) GetTendersByID(ctx context.Context, ids []uuid.UUID) ([]models.Tender, error) {
	return f.many, nil
}

type fakeVectorStore struct {
	candidates []vectorstore.Candidate
}

func (f *fakeVectorStore) RangeByScore(ctx context.Context, query []float32, minSim float64, limit int, exclude string) ([]vectorstore.Candidate, error) {
	return f.candidates, nil
}

func TestSimilar_ReferenceNotEmbedded(t *testing.T) {
	svc := New(&fakeTenderStore{ref: models.Tender{ID: uuid.New()}}, &fakeVectorStore{})
	_, err := svc.Similar(context.Background(), uuid.New(), 10)
	if err != ErrReferenceNotEmbedded {
		t.Fatalf("expected ErrReferenceNotEmbedded, got %v", err)
	}
}

func TestSimilar_ReturnsCommonKeywords(t *testing.T) {
	refID := uuid.New()
	otherID := uuid.New()
	ref := models.Tender{ID: refID, Title: "Cloud ERP rollout for ministries", Embedding: []float32{1, 0}}
	other := models.Tender{ID: otherID, Title: "Cloud ERP support and maintenance", Embedding: []float32{0.9, 0.1}}

	svc := New(
		&fakeTenderStore{ref: ref, many: []models.Tender{other}},
		&fakeVectorStore{candidates: []vectorstore.Candidate{{TenderID: otherID.String(), Similarity: 0.95}}},
	)

	resp, err := svc.Similar(context.Background(), refID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].SimilarityScore != 95 {
		t.Fatalf("expected similarity_score 95, got %d", resp.Items[0].SimilarityScore)
	}
	found := false
	for _, kw := range resp.Items[0].CommonKeywords {
		if kw == "cloud" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'cloud' in common keywords, got %v", resp.Items[0].CommonKeywords)
	}
}
