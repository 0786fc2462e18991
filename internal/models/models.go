// Package models defines the core entities of the tender-recommendation
// domain: Tender, CompanyProfile, Interaction, MatchReason and the
// Recommendation response row.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TenderStatus enumerates the lifecycle states a Tender can be in.
type TenderStatus string

const (
	TenderPublished TenderStatus = "published"
	TenderClosed    TenderStatus = "closed"
	TenderDraft     TenderStatus = "draft"
	TenderCancelled TenderStatus = "cancelled"
)

// ExtractedData mirrors the closed tagged structure the LLM content
// extractor (an out-of-scope collaborator) produces. Extra holds only a
// nested "extra" object; other keys not named below are dropped on
// decode. Scoring never reads Extra.
type ExtractedData struct {
	Financial     map[string]interface{} `json:"financial,omitempty"`
	Contact       map[string]interface{} `json:"contact,omitempty"`
	Dates         map[string]interface{} `json:"dates,omitempty"`
	Requirements  []string                `json:"requirements,omitempty"`
	Specifications map[string]interface{} `json:"specifications,omitempty"`
	Organization  map[string]interface{} `json:"organization,omitempty"`
	Addresses     []string                `json:"addresses,omitempty"`
	LanguageFlag  string                  `json:"language_flag,omitempty"`
	TenderType    string                  `json:"tender_type,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Tender is a published procurement opportunity.
type Tender struct {
	ID                uuid.UUID    `json:"id"`
	SourceURL         string       `json:"source_url"`
	Title             string       `json:"title"`
	RawDescription    string       `json:"raw_description"`
	CleanDescription  string       `json:"clean_description,omitempty"`
	Summary           string       `json:"summary,omitempty"`
	Highlights        []string     `json:"highlights,omitempty"`
	Category          string       `json:"category"`
	Region            string       `json:"region"`
	BudgetAmount      float64      `json:"budget_amount"`
	BudgetCurrency    string       `json:"budget_currency"`
	Language          string       `json:"language"`
	Deadline          *time.Time   `json:"deadline"`
	Status            TenderStatus `json:"status"`
	PublishedAt       time.Time    `json:"published_at"`
	Organization      string       `json:"organization,omitempty"`
	Extracted         ExtractedData `json:"extracted"`
	Embedding         []float32    `json:"embedding,omitempty"`
	EmbeddingUpdatedAt *time.Time  `json:"embedding_updated_at,omitempty"`

	// Popularity counters, owned exclusively by the feedback processor.
	PopularityCounts map[InteractionType]int `json:"popularity_counts"`
	PopularityScore  float64                  `json:"popularity_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveStatus applies the §3 read-time invariant: a published
// tender whose deadline has passed reads as closed, without requiring
// a write to flip the stored status column.
func (t Tender) EffectiveStatus(now time.Time) TenderStatus {
	if t.Status == TenderPublished && t.Deadline != nil && t.Deadline.Before(now) {
		return TenderClosed
	}
	return t.Status
}

// DaysUntilDeadline returns the number of whole days between now and
// the tender's deadline. Returns a large sentinel when there is no
// deadline (rolling / open-ended).
func (t Tender) DaysUntilDeadline(now time.Time) int {
	if t.Deadline == nil {
		return 1 << 20
	}
	d := t.Deadline.Sub(now)
	days := int(d.Hours() / 24)
	if d > 0 && days == 0 {
		return 1
	}
	return days
}

// CompanySize enumerates the Tier-2 company-size bucket.
type CompanySize string

const (
	CompanyStartup CompanySize = "startup"
	CompanySmall   CompanySize = "small"
	CompanyMedium  CompanySize = "medium"
	CompanyLarge   CompanySize = "large"
)

// YearsInOperation enumerates the Tier-2 years-in-operation bucket.
type YearsInOperation string

const (
	YearsUnderOne  YearsInOperation = "<1"
	Years1to3      YearsInOperation = "1-3"
	Years3to5      YearsInOperation = "3-5"
	Years5to10     YearsInOperation = "5-10"
	Years10Plus    YearsInOperation = "10+"
)

// ScoringWeights maps each rule dimension (§4.3) to a non-negative
// weight share. Keys are the dimension identifiers used throughout
// the scoring package (e.g. "category", "keyword", "budget").
type ScoringWeights map[string]float64

// CompanyProfile is a company's stated and learned preferences used
// for matching. One profile per company.
type CompanyProfile struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`

	// Tier 1 — required.
	PrimarySector    string   `json:"primary_sector"`
	ActiveSectors    []string `json:"active_sectors"`
	SubSectors       []string `json:"sub_sectors"`
	PreferredRegions []string `json:"preferred_regions"`
	Keywords         []string `json:"keywords"`

	// Tier 2 — optional.
	CompanySize      CompanySize      `json:"company_size,omitempty"`
	YearsInOperation YearsInOperation `json:"years_in_operation,omitempty"`
	Certifications   []string         `json:"certifications,omitempty"`
	BudgetMin        float64          `json:"budget_min,omitempty"`
	BudgetMax        float64          `json:"budget_max,omitempty"`
	BudgetCurrency   string           `json:"budget_currency,omitempty"`

	// Tier 3 — learned.
	DiscoveredInterests []string `json:"discovered_interests,omitempty"`
	PreferredSources    []string `json:"preferred_sources,omitempty"`
	PreferredLanguages  []string `json:"preferred_languages,omitempty"`
	MinDeadlineDays     int      `json:"min_deadline_days"`

	// Matching config.
	MinMatchThreshold float64        `json:"min_match_threshold"`
	ScoringWeights    ScoringWeights `json:"scoring_weights,omitempty"`

	// Embedding.
	Embedding          []float32  `json:"embedding,omitempty"`
	EmbeddingUpdatedAt *time.Time `json:"embedding_updated_at,omitempty"`
	EmbeddingDirty     bool       `json:"embedding_dirty"`

	// Counters.
	InteractionCount      int     `json:"interaction_count"`
	InteractionsSinceEmbed int    `json:"interactions_since_embed"`
	CompletionPercentage  float64 `json:"completion_percentage"`
	Tier1Complete         bool    `json:"tier1_complete"`
	Tier2Complete         bool    `json:"tier2_complete"`
	OnboardingStep        int     `json:"onboarding_step"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferredLanguages is used whenever a profile has not set any.
var DefaultPreferredLanguages = []string{"english"}

// EffectivePreferredLanguages returns PreferredLanguages, falling back
// to DefaultPreferredLanguages when empty (§4.3 Language dimension).
func (p CompanyProfile) EffectivePreferredLanguages() []string {
	if len(p.PreferredLanguages) == 0 {
		return DefaultPreferredLanguages
	}
	return p.PreferredLanguages
}

// ComputeCompletion derives tier1/tier2 completeness and the overall
// completion_percentage counter from the profile's current fields.
func (p *CompanyProfile) ComputeCompletion() {
	tier1 := p.PrimarySector != "" &&
		len(p.ActiveSectors) >= 1 && len(p.ActiveSectors) <= 5 &&
		len(p.PreferredRegions) >= 1 && len(p.PreferredRegions) <= 5 &&
		len(p.Keywords) >= 3 && len(p.Keywords) <= 10
	p.Tier1Complete = tier1

	tier2Fields := 0
	tier2Filled := 0
	for _, filled := range []bool{
		p.CompanySize != "",
		p.YearsInOperation != "",
		len(p.Certifications) > 0,
		p.BudgetMax > 0,
	} {
		tier2Fields++
		if filled {
			tier2Filled++
		}
	}
	p.Tier2Complete = tier2Filled == tier2Fields

	pct := 0.0
	if tier1 {
		pct += 60
	}
	if tier2Fields > 0 {
		pct += 40 * float64(tier2Filled) / float64(tier2Fields)
	}
	p.CompletionPercentage = pct
}

// InteractionType enumerates the allowed feedback interactions.
type InteractionType string

const (
	InteractionView         InteractionType = "view"
	InteractionSave         InteractionType = "save"
	InteractionApply        InteractionType = "apply"
	InteractionDismiss      InteractionType = "dismiss"
	InteractionRatePositive InteractionType = "rate_positive"
	InteractionRateNegative InteractionType = "rate_negative"
)

// Valid reports whether t is one of the six enumerated interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionView, InteractionSave, InteractionApply,
		InteractionDismiss, InteractionRatePositive, InteractionRateNegative:
		return true
	}
	return false
}

// InteractionWeights are the server-assigned weights from §4.5. Never
// accepted from the client.
var InteractionWeights = map[InteractionType]int{
	InteractionView:         1,
	InteractionSave:         5,
	InteractionApply:        10,
	InteractionDismiss:      -5,
	InteractionRatePositive: 7,
	InteractionRateNegative: -7,
}

// IsPositive reports whether the interaction counts toward discovered-interest
// learning (§4.5 effect 3).
func (t InteractionType) IsPositive() bool {
	switch t {
	case InteractionSave, InteractionApply, InteractionRatePositive:
		return true
	}
	return false
}

// Interaction is an immutable, append-only record of a user action on
// a tender. Composite logical key: (UserID, TenderID, CreatedAt).
type Interaction struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	TenderID          uuid.UUID       `json:"tender_id"`
	Type              InteractionType `json:"type"`
	Weight            int             `json:"interaction_weight"`
	TimeSpentSeconds  *int            `json:"time_spent_seconds,omitempty"`
	MatchScoreAtTime  *int            `json:"match_score_at_time,omitempty"`
	FeedbackReason    string          `json:"feedback_reason,omitempty"`
	TenderCategory    string          `json:"tender_category_snapshot"`
	TenderRegion      string          `json:"tender_region_snapshot"`
	TenderBudget      float64         `json:"tender_budget_snapshot"`
	CreatedAt         time.Time       `json:"created_at"`
}

// MatchReasonTag enumerates the explanation tags §3 defines.
type MatchReasonTag string

const (
	ReasonSemanticMatch      MatchReasonTag = "semantic_match"
	ReasonSectorMatch        MatchReasonTag = "sector_match"
	ReasonSubsectorMatch     MatchReasonTag = "subsector_match"
	ReasonKeywordMatch       MatchReasonTag = "keyword_match"
	ReasonRegionMatch        MatchReasonTag = "region_match"
	ReasonBudgetMatch        MatchReasonTag = "budget_match"
	ReasonUrgency            MatchReasonTag = "urgency"
	ReasonCertificationMatch MatchReasonTag = "certification_match"
	ReasonLanguageMatch      MatchReasonTag = "language_match"
	ReasonDeadlineMatch      MatchReasonTag = "deadline_match"
	ReasonPopularityBoost    MatchReasonTag = "popularity_boost"
)

// MatchReason is an ephemeral explanation token produced on each
// recommendation response. Never stored.
type MatchReason struct {
	Tag      MatchReasonTag `json:"tag"`
	Category string         `json:"category"`
	Reason   string         `json:"reason"`
	Weight   int            `json:"weight"`
}

// Recommendation is a single response row.
type Recommendation struct {
	Tender             Tender        `json:"tender"`
	MatchScore         int           `json:"match_score"`
	MatchReasons       []MatchReason `json:"match_reasons"`
	SemanticSimilarity float64       `json:"semantic_similarity"`
	DaysUntilDeadline  int           `json:"days_until_deadline"`
}

// ProfileOptions enumerates the closed vocabularies the onboarding UI
// and tier-1 validation draw from.
type ProfileOptions struct {
	Sectors         []string `json:"sectors"`
	Regions         []string `json:"regions"`
	Certifications  []string `json:"certifications"`
	Languages       []string `json:"languages"`
	CompanySizes    []string `json:"company_sizes"`
	YearsInOperation []string `json:"years_in_operation"`
}
