package match

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/obs"
	"github.com/david/tender-finder/internal/vectorstore"
)

type fakeProfileStore struct {
	profile   models.CompanyProfile
	err       error
	dismissed map[uuid.UUID]bool
	p95       float64
}

func (f *fakeProfileStore) GetProfile(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error) {
	return f.profile, f.err
}
func (f *fakeProfileStore) DismissedTenderIDs(ctx context.Context, companyID uuid.UUID) (map[uuid.UUID]bool, error) {
	return f.dismissed, nil
}
func (f *fakeProfileStore) PopularityP95(ctx context.Context) (float64, error) { return f.p95, nil }

type fakeTenderStore struct {
	byID []models.Tender
	rule []models.Tender
}

func (f *fakeTenderStore) GetTendersByID(ctx context.Context, ids []uuid.UUID) ([]models.Tender, error) {
	return f.byID, nil
}
func (f *fakeTenderStore) ListOpenBySectorRegion(ctx context.Context, sectors, regions []string, daysAhead, limit int) ([]models.Tender, error) {
	return f.rule, nil
}

type fakeVectorStore struct {
	candidates []vectorstore.Candidate
	err        error
}

func (f *fakeVectorStore) KNN(ctx context.Context, query []float32, k int, exclude string) ([]vectorstore.Candidate, error) {
	return f.candidates, f.err
}

func testProfile() models.CompanyProfile {
	return models.CompanyProfile{
		ID:                uuid.New(),
		ActiveSectors:     []string{"IT"},
		PreferredRegions:  []string{"Addis Ababa"},
		Keywords:          []string{"cloud", "erp", "software"},
		Tier1Complete:     true,
		MinMatchThreshold: 0,
	}
}

func newMatcher(profiles ProfileStore, tenders TenderStore, vectors VectorStore) *Matcher {
	reg := obs.NewMetrics(newTestRegistry())
	return New(profiles, tenders, vectors, nil, Config{}, obs.NewNoOp(), reg)
}

func TestRecommend_ProfileNotFound(t *testing.T) {
	m := newMatcher(&fakeProfileStore{err: context.DeadlineExceeded}, &fakeTenderStore{}, &fakeVectorStore{})
	_, err := m.Recommend(context.Background(), uuid.New(), Filters{})
	if err != ErrProfileNotFound {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestRecommend_ProfileIncomplete(t *testing.T) {
	p := testProfile()
	p.Tier1Complete = false
	m := newMatcher(&fakeProfileStore{profile: p}, &fakeTenderStore{}, &fakeVectorStore{})
	_, err := m.Recommend(context.Background(), uuid.New(), Filters{})
	if err != ErrProfileIncomplete {
		t.Fatalf("expected ErrProfileIncomplete, got %v", err)
	}
}

func TestRecommend_DegradesWhenNoProfileEmbedding(t *testing.T) {
	deadline := time.Now().Add(10 * 24 * time.Hour)
	tender := models.Tender{ID: uuid.New(), Category: "IT", Region: "Addis Ababa", Status: models.TenderPublished, Deadline: &deadline}

	m := newMatcher(
		&fakeProfileStore{profile: testProfile(), dismissed: map[uuid.UUID]bool{}},
		&fakeTenderStore{rule: []models.Tender{tender}},
		&fakeVectorStore{},
	)

	resp, err := m.Recommend(context.Background(), uuid.New(), Filters{DaysAhead: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.SemanticUnavailable {
		t.Fatal("expected semantic_unavailable=true when profile has no embedding")
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item from rule fallback, got %d", len(resp.Items))
	}
}

func TestRecommend_ThresholdCutsLowScoringItems(t *testing.T) {
	deadline := time.Now().Add(10 * 24 * time.Hour)
	tender := models.Tender{ID: uuid.New(), Category: "Construction", Region: "Somewhere Else", Status: models.TenderPublished, Deadline: &deadline}

	p := testProfile()
	p.MinMatchThreshold = 70

	m := newMatcher(
		&fakeProfileStore{profile: p, dismissed: map[uuid.UUID]bool{}},
		&fakeTenderStore{rule: []models.Tender{tender}},
		&fakeVectorStore{},
	)

	resp, err := m.Recommend(context.Background(), uuid.New(), Filters{DaysAhead: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected non-matching tender to be cut by threshold, got %d items", len(resp.Items))
	}
}

func TestRecommend_DismissedTenderExcluded(t *testing.T) {
	deadline := time.Now().Add(10 * 24 * time.Hour)
	id := uuid.New()
	tender := models.Tender{ID: id, Category: "IT", Region: "Addis Ababa", Status: models.TenderPublished, Deadline: &deadline}

	m := newMatcher(
		&fakeProfileStore{profile: testProfile(), dismissed: map[uuid.UUID]bool{id: true}},
		&fakeTenderStore{rule: []models.Tender{tender}},
		&fakeVectorStore{},
	)

	resp, err := m.Recommend(context.Background(), uuid.New(), Filters{DaysAhead: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected dismissed tender to be excluded, got %d items", len(resp.Items))
	}
}
