package scoring

import (
	"testing"
	"time"

	"github.com/david/tender-finder/internal/models"
)

func perfectMatchInput() Input {
	deadline := time.Now().Add(14 * 24 * time.Hour)
	profile := models.CompanyProfile{
		ActiveSectors:    []string{"IT"},
		PreferredRegions: []string{"Addis Ababa"},
		Keywords:         []string{"cloud", "erp"},
		BudgetMin:        50000,
		BudgetMax:        500000,
		MinDeadlineDays:  0,
	}
	tender := models.Tender{
		Category:       "IT",
		Region:         "Addis Ababa",
		BudgetAmount:   120000,
		BudgetCurrency: "ETB",
		Title:          "Cloud ERP rollout",
		Deadline:       &deadline,
		Status:         models.TenderPublished,
	}
	return Input{
		Profile:           profile,
		Tender:            tender,
		Semantic:          0.82,
		SemanticAvailable: true,
		DaysUntilDeadline: 14,
	}
}

func TestScore_PerfectMatchScoresHigh(t *testing.T) {
	result := Score(perfectMatchInput())
	if result.MatchScore < 85 {
		t.Fatalf("expected match_score >= 85 for S1 scenario, got %d", result.MatchScore)
	}

	tags := map[models.MatchReasonTag]bool{}
	for _, r := range result.Reasons {
		tags[r.Tag] = true
	}
	for _, want := range []models.MatchReasonTag{
		models.ReasonSectorMatch, models.ReasonRegionMatch,
		models.ReasonBudgetMatch, models.ReasonKeywordMatch, models.ReasonSemanticMatch,
	} {
		if !tags[want] {
			t.Errorf("expected reason tag %s present, got %v", want, result.Reasons)
		}
	}
}

func TestScore_WrongRegionDropsScoreAndReason(t *testing.T) {
	in := perfectMatchInput()
	in.Tender.Region = "Oromia"

	base := Score(perfectMatchInput())
	wrongRegion := Score(in)

	if wrongRegion.MatchScore >= base.MatchScore {
		t.Fatalf("expected score to drop when region mismatches: base=%d wrong=%d", base.MatchScore, wrongRegion.MatchScore)
	}
	for _, r := range wrongRegion.Reasons {
		if r.Tag == models.ReasonRegionMatch {
			t.Fatalf("expected no region_match reason, got %v", wrongRegion.Reasons)
		}
	}
}

func TestScore_UrgentTenderGetsUrgencyReason(t *testing.T) {
	in := perfectMatchInput()
	in.DaysUntilDeadline = 2
	deadline := time.Now().Add(2 * 24 * time.Hour)
	in.Tender.Deadline = &deadline

	result := Score(in)
	found := false
	for _, r := range result.Reasons {
		if r.Tag == models.ReasonUrgency {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected urgency reason for a 2-day deadline, got %v", result.Reasons)
	}
}

func TestScore_ScoreIsClampedToBounds(t *testing.T) {
	in := perfectMatchInput()
	in.Profile.ScoringWeights = models.ScoringWeights{"semantic": 1000}
	result := Score(in)
	if result.MatchScore < 0 || result.MatchScore > 100 {
		t.Fatalf("expected match_score in [0,100], got %d", result.MatchScore)
	}
}

func TestScore_ReasonsCappedAtSix(t *testing.T) {
	result := Score(perfectMatchInput())
	if len(result.Reasons) > 6 {
		t.Fatalf("expected at most 6 reasons, got %d", len(result.Reasons))
	}
}

func TestEffectiveShares_SumsToHundred(t *testing.T) {
	shares := effectiveShares(models.ScoringWeights{"category": 40})
	var sum float64
	for _, v := range shares {
		sum += v
	}
	if sum < 99.9 || sum > 100.1 {
		t.Fatalf("expected shares to renormalize to 100, got %f", sum)
	}
}
