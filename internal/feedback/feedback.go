// Package feedback is the §4.5 Feedback Processor (C5): interaction
// ingestion, per-tender popularity counters, per-profile preference
// learning, and re-embed triggering. Re-embedding is single-flight per
// profile via golang.org/x/sync/singleflight, grounded on the same
// x/sync family the Matcher's errgroup fan-out uses.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/david/tender-finder/internal/embed"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/obs"
)

// Store is the persistence contract the Feedback Processor needs.
type Store interface {
	// InsertInteraction appends the interaction if no row exists for
	// (user_id, tender_id, type, bucket) within the dedup window;
	// created reports whether a new row was written.
	InsertInteraction(ctx context.Context, in models.Interaction, bucket time.Time) (created bool, err error)
	IncrementPopularity(ctx context.Context, tenderID uuid.UUID, weight int) error
	GetProfileByCompanyID(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error)
	UpdateProfile(ctx context.Context, profile models.CompanyProfile) error
	UserInteractionStats(ctx context.Context, userID uuid.UUID) (Stats, error)
	PositiveInteractionCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error)
	DismissedCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error)
}

// Stats is the §4.5 GetUserInteractionStats return shape.
type Stats struct {
	CountsByType   map[models.InteractionType]int
	AverageTimeSpentSeconds float64
}

// Tunables bundles the dirty-trigger thresholds named in §4.5 and §9's
// config section.
type Tunables struct {
	MinDiscoveredInterest int
	MaxDiscoveredInterests int
	ReembedInteractionCount int
	ReembedMinInterval      time.Duration
	DismissedPatternThreshold int
}

// Processor implements RecordInteraction, GetUserInteractionStats and
// TriggerReembedIfDirty.
type Processor struct {
	store    Store
	embedder embed.Embedder
	vectors  VectorStore
	tunables Tunables
	sf       singleflight.Group
	log      obs.Logger
	metrics  *obs.Metrics
	now      func() time.Time
}

// VectorStore is the subset of vectorstore.Store the processor needs to
// atomically swap in a freshly computed profile embedding.
type VectorStore interface {
	UpsertProfileVector(ctx context.Context, profileID string, vec []float32, updatedAt time.Time) error
}

func New(store Store, embedder embed.Embedder, vectors VectorStore, tunables Tunables, log obs.Logger, metrics *obs.Metrics) *Processor {
	return &Processor{store: store, embedder: embedder, vectors: vectors, tunables: tunables, log: log, metrics: metrics, now: time.Now}
}

// RecordInteraction appends one interaction, idempotent per
// (user, tender, type, 10s-bucket) per §4.5, and runs its four
// downstream effects: popularity increment, aggregate update,
// discovered-interest learning, and dirty-flag evaluation.
func (p *Processor) RecordInteraction(ctx context.Context, userID, tenderID uuid.UUID, companyID uuid.UUID, itype models.InteractionType, timeSpent *int, feedbackReason string, matchScoreAtTime *int, tenderCategory, tenderRegion string, tenderBudget float64) (uuid.UUID, error) {
	if !itype.Valid() {
		return uuid.Nil, fmt.Errorf("feedback: invalid interaction type %q", itype)
	}

	weight := models.InteractionWeights[itype]
	if itype == models.InteractionView {
		if timeSpent == nil || *timeSpent < 5 {
			weight = 0
		}
	}

	now := p.now()
	bucket := now.Truncate(10 * time.Second)

	// The id is derived from the dedup key, so a deduped call returns the
	// id of the row the first call wrote.
	dedupKey := userID.String() + "|" + tenderID.String() + "|" + string(itype) + "|" + bucket.UTC().Format(time.RFC3339)

	interaction := models.Interaction{
		ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(dedupKey)),
		UserID:           userID,
		TenderID:         tenderID,
		Type:             itype,
		Weight:           weight,
		TimeSpentSeconds: timeSpent,
		MatchScoreAtTime: matchScoreAtTime,
		FeedbackReason:   feedbackReason,
		TenderCategory:   tenderCategory,
		TenderRegion:     tenderRegion,
		TenderBudget:     tenderBudget,
		CreatedAt:        now,
	}

	created, err := p.store.InsertInteraction(ctx, interaction, bucket)
	if err != nil {
		return uuid.Nil, fmt.Errorf("feedback: insert interaction: %w", err)
	}
	p.metrics.InteractionsRecorded.WithLabelValues(string(itype)).Inc()
	if !created {
		p.metrics.InteractionsDeduped.Inc()
		return interaction.ID, nil
	}

	if weight != 0 {
		if err := p.store.IncrementPopularity(ctx, tenderID, weight); err != nil {
			p.log.Error("popularity increment failed", map[string]interface{}{"tender_id": tenderID.String(), "error": err.Error()})
		}
	}

	if err := p.applyProfileLearning(ctx, userID, companyID, itype, tenderCategory, tenderRegion); err != nil {
		p.log.Error("profile learning failed", map[string]interface{}{"company_id": companyID.String(), "error": err.Error()})
	}

	return interaction.ID, nil
}

// applyProfileLearning implements §4.5 effects 3 and 4: discovered
// interest learning and the embedding dirty flag.
func (p *Processor) applyProfileLearning(ctx context.Context, userID, companyID uuid.UUID, itype models.InteractionType, category, region string) error {
	profile, err := p.store.GetProfileByCompanyID(ctx, companyID)
	if err != nil {
		return err
	}

	profile.InteractionCount++
	profile.InteractionsSinceEmbed++
	dirty := false

	if itype.IsPositive() && category != "" && !containsFold(profile.ActiveSectors, category) && !containsFold(profile.DiscoveredInterests, category) {
		counts, err := p.store.PositiveInteractionCategoryCounts(ctx, userID)
		if err == nil && counts[category] >= p.tunables.MinDiscoveredInterest && len(profile.DiscoveredInterests) < p.tunables.MaxDiscoveredInterests {
			profile.DiscoveredInterests = append(profile.DiscoveredInterests, category)
			dirty = true
		}
	}

	if itype == models.InteractionDismiss && region != "" {
		counts, err := p.store.DismissedCategoryCounts(ctx, userID)
		if err == nil && counts[region] >= p.tunables.DismissedPatternThreshold {
			profile.DiscoveredInterests = removeFold(profile.DiscoveredInterests, region)
			dirty = true
		}
	}

	if profile.InteractionsSinceEmbed >= p.tunables.ReembedInteractionCount {
		dirty = true
	}

	if dirty {
		profile.EmbeddingDirty = true
	}

	return p.store.UpdateProfile(ctx, profile)
}

// GetUserInteractionStats returns per-type counts and the average
// view time_spent_seconds.
func (p *Processor) GetUserInteractionStats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	return p.store.UserInteractionStats(ctx, userID)
}

// TriggerReembedIfDirty re-embeds the profile if explicitly forced, or
// if the implicit trigger conditions in §4.5 hold: dirty and enough
// time has elapsed since the last embed, or enough interactions have
// accumulated since. Concurrent calls for the same profile collapse
// into a single upstream embedding call via singleflight.
func (p *Processor) TriggerReembedIfDirty(ctx context.Context, profileID uuid.UUID, companyID uuid.UUID, composedText string, force bool) (reembedded bool, err error) {
	profile, err := p.store.GetProfileByCompanyID(ctx, companyID)
	if err != nil {
		return false, err
	}

	if !force {
		due := profile.EmbeddingDirty && (
			profile.EmbeddingUpdatedAt == nil ||
				p.now().Sub(*profile.EmbeddingUpdatedAt) >= p.tunables.ReembedMinInterval ||
				profile.InteractionsSinceEmbed >= p.tunables.ReembedInteractionCount)
		if !due {
			return false, nil
		}
	}

	v, err, shared := p.sf.Do(profileID.String(), func() (interface{}, error) {
		return p.embedder.Embed(ctx, composedText)
	})
	if shared {
		p.metrics.ReembedSingleFlightCollapsed.Inc()
	}
	if err != nil {
		// Cancel-safe: the dirty flag and previous vector are left
		// intact on failure (§5).
		return false, err
	}

	vec := v.([]float32)
	now := p.now()
	if err := p.vectors.UpsertProfileVector(ctx, profileID.String(), vec, now); err != nil {
		return false, err
	}

	profile.Embedding = vec
	profile.EmbeddingUpdatedAt = &now
	profile.EmbeddingDirty = false
	profile.InteractionsSinceEmbed = 0
	if err := p.store.UpdateProfile(ctx, profile); err != nil {
		return false, err
	}

	trigger := "explicit"
	if !force {
		trigger = "implicit"
	}
	p.metrics.ReembedTriggered.WithLabelValues(trigger).Inc()

	return true, nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func removeFold(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if !strings.EqualFold(s, v) {
			out = append(out, s)
		}
	}
	return out
}
