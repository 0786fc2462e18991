package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/david/tender-finder/internal/embed"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/obs"
)

type fakeStore struct {
	inserted          map[string]bool
	popularity        map[uuid.UUID]int
	profile           models.CompanyProfile
	positiveCounts    map[string]int
	dismissedCounts   map[string]int
	updateCalls       int
}

func newFakeStore(profile models.CompanyProfile) *fakeStore {
	return &fakeStore{
		inserted:        map[string]bool{},
		popularity:      map[uuid.UUID]int{},
		profile:         profile,
		positiveCounts:  map[string]int{},
		dismissedCounts: map[string]int{},
	}
}

func (f *fakeStore) InsertInteraction(ctx context.Context, in models.Interaction, bucket time.Time) (bool, error) {
	key := in.UserID.String() + "|" + in.TenderID.String() + "|" + string(in.Type) + "|" + bucket.String()
	if f.inserted[key] {
		return false, nil
	}
	f.inserted[key] = true
	return true, nil
}
func (f *fakeStore) IncrementPopularity(ctx context.Context, tenderID uuid.UUID, weight int) error {
	f.popularity[tenderID] += weight
	return nil
}
func (f *fakeStore) GetProfileByCompanyID(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error) {
	return f.profile, nil
}
func (f *fakeStore) UpdateProfile(ctx context.Context, profile models.CompanyProfile) error {
	f.updateCalls++
	f.profile = profile
	return nil
}
func (f *fakeStore) UserInteractionStats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	return Stats{}, nil
}
func (f *fakeStore) PositiveInteractionCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	return f.positiveCounts, nil
}
func (f *fakeStore) DismissedCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	return f.dismissedCounts, nil
}

type fakeVectorStore struct {
	upsertCalls int
}

func (f *fakeVectorStore) UpsertProfileVector(ctx context.Context, profileID string, vec []float32, updatedAt time.Time) error {
	f.upsertCalls++
	return nil
}

func testTunables() Tunables {
	return Tunables{
		MinDiscoveredInterest:     3,
		MaxDiscoveredInterests:    10,
		ReembedInteractionCount:   25,
		ReembedMinInterval:        time.Hour,
		DismissedPatternThreshold: 3,
	}
}

func newTestProcessor(store Store, embedder embed.Embedder) (*Processor, *obs.Metrics) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)
	p := New(store, embedder, &fakeVectorStore{}, testTunables(), obs.NewNoOp(), metrics)
	return p, metrics
}

func TestRecordInteraction_DedupesWithinBucket(t *testing.T) {
	store := newFakeStore(models.CompanyProfile{ID: uuid.New()})
	p, _ := newTestProcessor(store, nil)

	userID, tenderID, companyID := uuid.New(), uuid.New(), uuid.New()
	p.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 3, 0, time.UTC) }

	id1, err := p.RecordInteraction(context.Background(), userID, tenderID, companyID, models.InteractionSave, nil, "", nil, "IT", "Addis Ababa", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := p.RecordInteraction(context.Background(), userID, tenderID, companyID, models.InteractionSave, nil, "", nil, "IT", "Addis Ababa", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same interaction id returned for deduped call")
	}
	if store.popularity[tenderID] != 5 {
		t.Fatalf("expected popularity incremented exactly once to 5, got %d", store.popularity[tenderID])
	}
}

func TestRecordInteraction_ViewBelowTimeThresholdHasZeroWeight(t *testing.T) {
	store := newFakeStore(models.CompanyProfile{ID: uuid.New()})
	p, _ := newTestProcessor(store, nil)

	short := 2
	_, err := p.RecordInteraction(context.Background(), uuid.New(), uuid.New(), uuid.New(), models.InteractionView, &short, "", nil, "IT", "Addis Ababa", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range store.popularity {
		if v != 0 {
			t.Fatalf("expected no popularity increment for sub-5s view, got %d", v)
		}
	}
}

func TestRecordInteraction_InvalidTypeRejected(t *testing.T) {
	store := newFakeStore(models.CompanyProfile{ID: uuid.New()})
	p, _ := newTestProcessor(store, nil)

	_, err := p.RecordInteraction(context.Background(), uuid.New(), uuid.New(), uuid.New(), models.InteractionType("rating"), nil, "", nil, "IT", "Addis Ababa", 1000)
	if err == nil {
		t.Fatal("expected error for unrecognized interaction type")
	}
}

func TestDiscoveredInterests_LearnedAfterThreshold(t *testing.T) {
	profile := models.CompanyProfile{ID: uuid.New(), ActiveSectors: []string{"IT"}}
	store := newFakeStore(profile)
	store.positiveCounts = map[string]int{"Construction": 3}
	p, _ := newTestProcessor(store, nil)

	_, err := p.RecordInteraction(context.Background(), uuid.New(), uuid.New(), uuid.New(), models.InteractionSave, nil, "", nil, "Construction", "Addis Ababa", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, c := range store.profile.DiscoveredInterests {
		if c == "Construction" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Construction to be learned as discovered interest, got %v", store.profile.DiscoveredInterests)
	}
	if !store.profile.EmbeddingDirty {
		t.Fatal("expected embedding dirty flag set after learning a new interest")
	}
}
