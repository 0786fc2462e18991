// Package match is the §4.4 Matcher (C4): orchestrates candidate
// generation, fuses semantic + rule + popularity scores, applies
// thresholds, paginates and explains. Grounded on the fan-out shape of
// rushteam-reckit's recall.Fanout (parallel sub-request execution
// joined by golang.org/x/sync/errgroup) and on the hybrid-query
// candidate pipeline in db.Store's tender lookups.
package match

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/david/tender-finder/internal/embed"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/obs"
	"github.com/david/tender-finder/internal/scoring"
	"github.com/david/tender-finder/internal/status"
	"github.com/david/tender-finder/internal/vectorstore"
)

// ProfileStore is the persistence contract the Matcher needs for
// profiles and the feedback-derived dismissed-tender predicate.
type ProfileStore interface {
	GetProfile(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error)
	DismissedTenderIDs(ctx context.Context, companyID uuid.UUID) (map[uuid.UUID]bool, error)
	PopularityP95(ctx context.Context) (float64, error)
}

// TenderStore is the persistence contract the Matcher needs for tender
// lookups and the rule-only candidate fallback.
type TenderStore interface {
	GetTendersByID(ctx context.Context, ids []uuid.UUID) ([]models.Tender, error)
	ListOpenBySectorRegion(ctx context.Context, sectors, regions []string, daysAhead, limit int) ([]models.Tender, error)
}

// VectorStore is the subset of vectorstore.Store the Matcher depends on.
type VectorStore interface {
	KNN(ctx context.Context, query []float32, k int, excludeTenderID string) ([]vectorstore.Candidate, error)
}

// Filters is the client-supplied Recommend request shape (§4.4).
type Filters struct {
	Limit     int
	MinScore  int
	DaysAhead int
	Sectors   []string
	Regions   []string
}

// normalize applies the documented defaults and bounds.
func (f Filters) normalize() Filters {
	out := f
	if out.Limit <= 0 {
		out.Limit = 20
	}
	if out.Limit > 100 {
		out.Limit = 100
	}
	if out.MinScore < 0 {
		out.MinScore = 0
	}
	if out.DaysAhead <= 0 {
		out.DaysAhead = 7
	}
	if out.DaysAhead > 90 {
		out.DaysAhead = 90
	}
	return out
}

// Response is the §4.4 Recommend return shape.
type Response struct {
	Items               []models.Recommendation `json:"items"`
	Total               int                      `json:"total"`
	ProfileCompletion   float64                  `json:"profile_completion"`
	FiltersApplied      Filters                  `json:"filters_applied"`
	GeneratedAt         time.Time                `json:"generated_at"`
	SemanticUnavailable bool                     `json:"semantic_unavailable"`
}

// Matcher wires together the profile/tender stores, the vector store,
// the embedding client and the rule scorer into the Recommend
// state machine.
type Matcher struct {
	profiles ProfileStore
	tenders  TenderStore
	vectors  VectorStore
	embedder embed.Embedder
	limiter  *rate.Limiter
	log      obs.Logger
	metrics  *obs.Metrics
	now      func() time.Time
}

// Config bundles the Matcher's tunables.
type Config struct {
	// RequestsPerSecond and Burst bound the recommendation endpoint's
	// admitted rate; excess requests are shed with a 429 (§5 backpressure).
	RequestsPerSecond float64
	Burst             int
}

func New(profiles ProfileStore, tenders TenderStore, vectors VectorStore, embedder embed.Embedder, cfg Config, log obs.Logger, metrics *obs.Metrics) *Matcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 100
	}
	return &Matcher{
		profiles: profiles,
		tenders:  tenders,
		vectors:  vectors,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// ErrShed is returned when the rate limiter rejects a request under
// sustained overload (§5 backpressure, §7 429).
var ErrShed = errShed{}

type errShed struct{}

func (errShed) Error() string { return "match: request shed under overload" }

// Recommend runs the LOAD_PROFILE -> BUILD_FILTERS -> VECTOR_CANDIDATES
// (fallback RULE_CANDIDATES) -> SCORE -> THRESHOLD -> RANK -> EXPLAIN ->
// RESPOND state machine.
func (m *Matcher) Recommend(ctx context.Context, companyID uuid.UUID, filters Filters) (Response, error) {
	if !m.limiter.Allow() {
		m.metrics.RecommendShed.Inc()
		return Response{}, ErrShed
	}

	filters = filters.normalize()
	generatedAt := m.now()

	// LOAD_PROFILE
	profile, err := m.profiles.GetProfile(ctx, companyID)
	if err != nil {
		return Response{}, ErrProfileNotFound
	}
	if !profile.Tier1Complete {
		return Response{}, ErrProfileIncomplete
	}

	dismissed, err := m.profiles.DismissedTenderIDs(ctx, companyID)
	if err != nil {
		dismissed = map[uuid.UUID]bool{}
	}

	limit := filters.Limit
	k := limit * 10
	if k < 200 {
		k = 200
	}

	var candidateIDs []uuid.UUID
	semanticUnavailable := false

	if len(profile.Embedding) > 0 {
		results, err := m.vectors.KNN(ctx, profile.Embedding, k, "")
		if err != nil {
			m.log.Warn("vector store unavailable, degrading to rule candidates", map[string]interface{}{"error": err.Error()})
			semanticUnavailable = true
		} else {
			for _, c := range results {
				id, parseErr := uuid.Parse(c.TenderID)
				if parseErr == nil {
					candidateIDs = append(candidateIDs, id)
				}
			}
		}
	} else {
		semanticUnavailable = true
	}

	var candidates []models.Tender
	if semanticUnavailable || len(candidateIDs) == 0 {
		candidates, err = m.tenders.ListOpenBySectorRegion(ctx, unionSectors(profile, filters), unionRegions(profile, filters), filters.DaysAhead, k)
		if err != nil {
			return Response{}, ErrVectorStoreUnavailable
		}
	} else {
		candidates, err = m.tenders.GetTendersByID(ctx, candidateIDs)
		if err != nil {
			return Response{}, ErrVectorStoreUnavailable
		}
	}

	popP95, _ := m.profiles.PopularityP95(ctx)

	// SCORE — fan out across candidates, joined with errgroup. Every
	// goroutine returns nil, so no candidate cancels the others; panics
	// are not recovered.
	type scored struct {
		rec models.Recommendation
	}
	results := make([]scored, len(candidates))
	group, gctx := errgroup.WithContext(ctx)
	_ = gctx
	for i, cand := range candidates {
		i, cand := i, cand
		group.Go(func() error {
			if dismissed[cand.ID] {
				return nil
			}
			if !passesHardFilters(cand, filters, generatedAt) {
				return nil
			}

			days := cand.DaysUntilDeadline(generatedAt)
			semantic := 0.0
			semanticAvailable := false
			if len(profile.Embedding) > 0 && len(cand.Embedding) > 0 {
				semantic = cosine(profile.Embedding, cand.Embedding)
				semanticAvailable = true
			}

			result := scoring.Score(scoring.Input{
				Profile:           profile,
				Tender:            cand,
				Semantic:          semantic,
				SemanticAvailable: semanticAvailable,
				DaysUntilDeadline: days,
				PopularityP95:     popP95,
			})

			results[i] = scored{rec: models.Recommendation{
				Tender:             cand,
				MatchScore:         result.MatchScore,
				MatchReasons:       result.Reasons,
				SemanticSimilarity: semantic,
				DaysUntilDeadline:  days,
			}}
			return nil
		})
	}
	_ = group.Wait()

	threshold := filters.MinScore
	if profile.MinMatchThreshold > float64(threshold) {
		threshold = int(profile.MinMatchThreshold)
	}

	var kept []models.Recommendation
	for _, s := range results {
		if s.rec.Tender.ID == uuid.Nil {
			continue
		}
		if s.rec.MatchScore < threshold {
			continue
		}
		kept = append(kept, s.rec)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].MatchScore != kept[j].MatchScore {
			return kept[i].MatchScore > kept[j].MatchScore
		}
		if kept[i].SemanticSimilarity != kept[j].SemanticSimilarity {
			return kept[i].SemanticSimilarity > kept[j].SemanticSimilarity
		}
		return kept[i].Tender.ID.String() < kept[j].Tender.ID.String()
	})

	total := len(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}

	if semanticUnavailable {
		m.metrics.RecommendDegraded.Inc()
	}

	return Response{
		Items:               kept,
		Total:               total,
		ProfileCompletion:   profile.CompletionPercentage,
		FiltersApplied:      filters,
		GeneratedAt:         generatedAt,
		SemanticUnavailable: semanticUnavailable,
	}, nil
}

func passesHardFilters(t models.Tender, filters Filters, now time.Time) bool {
	if !status.IsOpenForMatching(t, now, filters.DaysAhead) {
		return false
	}
	if len(filters.Sectors) > 0 && !containsFold(filters.Sectors, t.Category) {
		return false
	}
	if len(filters.Regions) > 0 && !containsFold(filters.Regions, t.Region) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func unionSectors(p models.CompanyProfile, f Filters) []string {
	if len(f.Sectors) > 0 {
		return f.Sectors
	}
	return p.ActiveSectors
}

func unionRegions(p models.CompanyProfile, f Filters) []string {
	if len(f.Regions) > 0 {
		return f.Regions
	}
	return p.PreferredRegions
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot > 1 {
		return 1
	}
	if dot < -1 {
		return -1
	}
	return dot
}
