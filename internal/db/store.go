package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/tender-finder/internal/feedback"
	"github.com/david/tender-finder/internal/models"
)

// Store is the Postgres-backed persistence layer for tenders, company
// profiles and user interactions: a pool-wrapping struct with manual
// column scanning; optional list filters are passed as NULL-able query
// parameters.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tenderCols = `id, source_url, title, raw_description, clean_description, summary, highlights,
	category, region, budget_amount, budget_currency, language, deadline, status, published_at,
	organization, extracted_data, embedding, embedding_updated_at, popularity_counts, popularity_score,
	created_at, updated_at`

func scanTender(row pgx.Row) (models.Tender, error) {
	var t models.Tender
	var extractedRaw, popularityRaw []byte
	var emb *pgvector.Vector

	err := row.Scan(
		&t.ID, &t.SourceURL, &t.Title, &t.RawDescription, &t.CleanDescription, &t.Summary, &t.Highlights,
		&t.Category, &t.Region, &t.BudgetAmount, &t.BudgetCurrency, &t.Language, &t.Deadline, &t.Status, &t.PublishedAt,
		&t.Organization, &extractedRaw, &emb, &t.EmbeddingUpdatedAt, &popularityRaw, &t.PopularityScore,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	if len(extractedRaw) > 0 {
		_ = json.Unmarshal(extractedRaw, &t.Extracted)
	}
	if len(popularityRaw) > 0 {
		_ = json.Unmarshal(popularityRaw, &t.PopularityCounts)
	}
	if emb != nil {
		t.Embedding = emb.Slice()
	}
	return t, nil
}

func (s *Store) queryTenders(ctx context.Context, query string, args ...interface{}) ([]models.Tender, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTenderByID loads a single tender.
func (s *Store) GetTenderByID(ctx context.Context, id uuid.UUID) (models.Tender, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+tenderCols+" FROM tenders WHERE id = $1", id)
	if err != nil {
		return models.Tender{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		return models.Tender{}, pgx.ErrNoRows
	}
	return scanTender(rows)
}

// GetTendersByID loads tenders in bulk, preserving no particular order
// (callers re-sort as needed).
func (s *Store) GetTendersByID(ctx context.Context, ids []uuid.UUID) ([]models.Tender, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryTenders(ctx, "SELECT "+tenderCols+" FROM tenders WHERE id = ANY($1)", ids)
}

// ListOpenBySectorRegion is the rule-only candidate-generation fallback
// (§4.4 step 3) used when a profile has no embedding yet: tenders
// intersecting the requested sectors/regions, ordered by recency.
func (s *Store) ListOpenBySectorRegion(ctx context.Context, sectors, regions []string, daysAhead, limit int) ([]models.Tender, error) {
	query := `SELECT ` + tenderCols + ` FROM tenders
		WHERE status = 'published'
		  AND (deadline IS NULL OR deadline > now())
		  AND (deadline IS NULL OR deadline <= now() + ($1 || ' days')::interval)
		  AND ($2::text[] IS NULL OR category = ANY($2))
		  AND ($3::text[] IS NULL OR region = ANY($3))
		ORDER BY published_at DESC
		LIMIT $4`

	var sectorArg, regionArg []string
	if len(sectors) > 0 {
		sectorArg = sectors
	}
	if len(regions) > 0 {
		regionArg = regions
	}
	return s.queryTenders(ctx, query, daysAhead, sectorArg, regionArg, limit)
}

const profileCols = `id, company_id, primary_sector, active_sectors, sub_sectors, preferred_regions, keywords,
	company_size, years_in_operation, certifications, budget_min, budget_max, budget_currency,
	discovered_interests, preferred_sources, preferred_languages, min_deadline_days,
	min_match_threshold, scoring_weights, embedding, embedding_updated_at, embedding_dirty,
	interaction_count, interactions_since_embed, completion_percentage, tier1_complete, tier2_complete,
	onboarding_step, created_at, updated_at`

func scanProfile(row pgx.Row) (models.CompanyProfile, error) {
	var p models.CompanyProfile
	var weightsRaw []byte
	var emb *pgvector.Vector
	var companySize, years string

	err := row.Scan(
		&p.ID, &p.CompanyID, &p.PrimarySector, &p.ActiveSectors, &p.SubSectors, &p.PreferredRegions, &p.Keywords,
		&companySize, &years, &p.Certifications, &p.BudgetMin, &p.BudgetMax, &p.BudgetCurrency,
		&p.DiscoveredInterests, &p.PreferredSources, &p.PreferredLanguages, &p.MinDeadlineDays,
		&p.MinMatchThreshold, &weightsRaw, &emb, &p.EmbeddingUpdatedAt, &p.EmbeddingDirty,
		&p.InteractionCount, &p.InteractionsSinceEmbed, &p.CompletionPercentage, &p.Tier1Complete, &p.Tier2Complete,
		&p.OnboardingStep, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.CompanySize = models.CompanySize(companySize)
	p.YearsInOperation = models.YearsInOperation(years)
	if len(weightsRaw) > 0 {
		_ = json.Unmarshal(weightsRaw, &p.ScoringWeights)
	}
	if emb != nil {
		p.Embedding = emb.Slice()
	}
	return p, nil
}

// GetProfile and GetProfileByCompanyID are the same lookup; both exist
// because the Matcher and Feedback Processor depend on narrower
// interfaces that each name the method they need.
func (s *Store) GetProfile(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+profileCols+" FROM company_tender_profiles WHERE company_id = $1", companyID)
	return scanProfile(row)
}

func (s *Store) GetProfileByCompanyID(ctx context.Context, companyID uuid.UUID) (models.CompanyProfile, error) {
	return s.GetProfile(ctx, companyID)
}

// UpsertProfile inserts a profile for a company or updates its tier1/
// tier2 fields on a PUT /company-profile call.
func (s *Store) UpsertProfile(ctx context.Context, p models.CompanyProfile) (models.CompanyProfile, error) {
	weights, _ := json.Marshal(p.ScoringWeights)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO company_tender_profiles (
			company_id, primary_sector, active_sectors, sub_sectors, preferred_regions, keywords,
			company_size, years_in_operation, certifications, budget_min, budget_max, budget_currency,
			preferred_languages, min_deadline_days, min_match_threshold, scoring_weights,
			completion_percentage, tier1_complete, tier2_complete, onboarding_step, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20, now())
		ON CONFLICT (company_id) DO UPDATE SET
			primary_sector = EXCLUDED.primary_sector,
			active_sectors = EXCLUDED.active_sectors,
			sub_sectors = EXCLUDED.sub_sectors,
			preferred_regions = EXCLUDED.preferred_regions,
			keywords = EXCLUDED.keywords,
			company_size = EXCLUDED.company_size,
			years_in_operation = EXCLUDED.years_in_operation,
			certifications = EXCLUDED.certifications,
			budget_min = EXCLUDED.budget_min,
			budget_max = EXCLUDED.budget_max,
			budget_currency = EXCLUDED.budget_currency,
			preferred_languages = EXCLUDED.preferred_languages,
			min_deadline_days = EXCLUDED.min_deadline_days,
			min_match_threshold = EXCLUDED.min_match_threshold,
			scoring_weights = EXCLUDED.scoring_weights,
			completion_percentage = EXCLUDED.completion_percentage,
			tier1_complete = EXCLUDED.tier1_complete,
			tier2_complete = EXCLUDED.tier2_complete,
			onboarding_step = EXCLUDED.onboarding_step,
			embedding_dirty = true,
			updated_at = now()
		RETURNING `+profileCols,
		p.CompanyID, p.PrimarySector, p.ActiveSectors, p.SubSectors, p.PreferredRegions, p.Keywords,
		string(p.CompanySize), string(p.YearsInOperation), p.Certifications, p.BudgetMin, p.BudgetMax, p.BudgetCurrency,
		p.PreferredLanguages, p.MinDeadlineDays, p.MinMatchThreshold, weights,
		p.CompletionPercentage, p.Tier1Complete, p.Tier2Complete, p.OnboardingStep,
	)
	return scanProfile(row)
}

// UpdateProfile persists the learned Tier-3 fields and embedding
// bookkeeping the Feedback Processor mutates.
func (s *Store) UpdateProfile(ctx context.Context, p models.CompanyProfile) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE company_tender_profiles SET
			discovered_interests = $1,
			interaction_count = $2,
			interactions_since_embed = $3,
			embedding_dirty = $4,
			updated_at = now()
		WHERE id = $5
	`, p.DiscoveredInterests, p.InteractionCount, p.InteractionsSinceEmbed, p.EmbeddingDirty, p.ID)
	return err
}

// PopularityP95 computes the rolling 95th-percentile popularity score
// across published tenders (§4.4 step 4's P*).
func (s *Store) PopularityP95(ctx context.Context) (float64, error) {
	var p95 *float64
	err := s.pool.QueryRow(ctx, `
		SELECT percentile_cont(0.95) WITHIN GROUP (ORDER BY popularity_score)
		FROM tenders WHERE status = 'published'
	`).Scan(&p95)
	if err != nil {
		return 0, err
	}
	if p95 == nil {
		return 0, nil
	}
	return *p95, nil
}

// DismissedTenderIDs returns the set of tenders the company has
// dismissed, joined from the interaction log per §4.4 step 2.
func (s *Store) DismissedTenderIDs(ctx context.Context, companyID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT tender_id FROM user_interactions WHERE user_id = $1 AND type = 'dismiss'
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// InsertInteraction appends an interaction row, relying on the unique
// (user_id, tender_id, type, bucket) constraint for idempotency.
func (s *Store) InsertInteraction(ctx context.Context, in models.Interaction, bucket time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_interactions (
			id, user_id, tender_id, type, interaction_weight, time_spent_seconds, match_score_at_time,
			feedback_reason, tender_category_snapshot, tender_region_snapshot, tender_budget_snapshot,
			bucket, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (user_id, tender_id, type, bucket) DO NOTHING
	`, in.ID, in.UserID, in.TenderID, string(in.Type), in.Weight, in.TimeSpentSeconds, in.MatchScoreAtTime,
		in.FeedbackReason, in.TenderCategory, in.TenderRegion, in.TenderBudget, bucket, in.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementPopularity adds weight to a tender's scalar popularity_score,
// floored at 0 per §4.5. The per-type popularity_counts column is not
// updated.
func (s *Store) IncrementPopularity(ctx context.Context, tenderID uuid.UUID, weight int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tenders SET popularity_score = GREATEST(0, popularity_score + $1), updated_at = now()
		WHERE id = $2
	`, weight, tenderID)
	return err
}

// UserInteractionStats aggregates per-type counts and average view
// time_spent_seconds for a user.
func (s *Store) UserInteractionStats(ctx context.Context, userID uuid.UUID) (feedback.Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type, COUNT(*) FROM user_interactions WHERE user_id = $1 GROUP BY type
	`, userID)
	if err != nil {
		return feedback.Stats{}, err
	}
	defer rows.Close()

	stats := feedback.Stats{CountsByType: map[models.InteractionType]int{}}
	for rows.Next() {
		var t string
		var count int
		if err := rows.Scan(&t, &count); err != nil {
			return feedback.Stats{}, err
		}
		stats.CountsByType[models.InteractionType(t)] = count
	}
	if err := rows.Err(); err != nil {
		return feedback.Stats{}, err
	}

	var avg *float64
	err = s.pool.QueryRow(ctx, `
		SELECT AVG(time_spent_seconds) FROM user_interactions WHERE user_id = $1 AND type = 'view' AND time_spent_seconds IS NOT NULL
	`, userID).Scan(&avg)
	if err != nil {
		return feedback.Stats{}, err
	}
	if avg != nil {
		stats.AverageTimeSpentSeconds = *avg
	}
	return stats, nil
}

// PositiveInteractionCategoryCounts counts save/apply/rate_positive
// interactions per tender category, for discovered-interest learning.
func (s *Store) PositiveInteractionCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tender_category_snapshot, COUNT(*) FROM user_interactions
		WHERE user_id = $1 AND type IN ('save','apply','rate_positive') AND tender_category_snapshot != ''
		GROUP BY tender_category_snapshot
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var cat string
		var count int
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, err
		}
		out[cat] = count
	}
	return out, rows.Err()
}

// DismissedCategoryCounts counts dismiss interactions per tender
// region, for the dismissed-pattern pruning rule (§8 S6).
func (s *Store) DismissedCategoryCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tender_region_snapshot, COUNT(*) FROM user_interactions
		WHERE user_id = $1 AND type = 'dismiss' AND tender_region_snapshot != ''
		GROUP BY tender_region_snapshot
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var region string
		var count int
		if err := rows.Scan(&region, &count); err != nil {
			return nil, err
		}
		out[region] = count
	}
	return out, rows.Err()
}

// CreateTender inserts a new tender, used by the seed CLI in place of
// the dropped ingestion pipeline. If a tender with the same source_url
// exists, only its updated_at is touched and the existing row is
// returned.
func (s *Store) CreateTender(ctx context.Context, t models.Tender) (models.Tender, error) {
	extracted, _ := json.Marshal(t.Extracted)
	popularity, _ := json.Marshal(t.PopularityCounts)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenders (
			source_url, title, raw_description, clean_description, summary, highlights,
			category, region, budget_amount, budget_currency, language, deadline, status, published_at,
			organization, extracted_data, popularity_counts, popularity_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (source_url) DO UPDATE SET updated_at = now()
		RETURNING `+tenderCols,
		t.SourceURL, t.Title, t.RawDescription, t.CleanDescription, t.Summary, t.Highlights,
		t.Category, t.Region, t.BudgetAmount, t.BudgetCurrency, t.Language, t.Deadline, string(t.Status), t.PublishedAt,
		t.Organization, extracted, popularity, t.PopularityScore,
	)
	return scanTender(row)
}
