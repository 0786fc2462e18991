package status

import (
	"testing"
	"time"

	"github.com/david/tender-finder/internal/models"
)

func TestEvaluate_PastDeadlineClosesPublished(t *testing.T) {
	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)

	decision := Evaluate(models.Tender{Status: models.TenderPublished, Deadline: &past}, now)
	if decision.EffectiveStatus != models.TenderClosed {
		t.Fatalf("expected closed, got %s", decision.EffectiveStatus)
	}
	if decision.Reason != "deadline_passed" {
		t.Fatalf("expected deadline_passed, got %s", decision.Reason)
	}
}

func TestEvaluate_FutureDeadlineStaysPublished(t *testing.T) {
	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)

	decision := Evaluate(models.Tender{Status: models.TenderPublished, Deadline: &future}, now)
	if decision.EffectiveStatus != models.TenderPublished {
		t.Fatalf("expected published, got %s", decision.EffectiveStatus)
	}
}

func TestEvaluate_NonPublishedStatusUnaffected(t *testing.T) {
	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)

	decision := Evaluate(models.Tender{Status: models.TenderDraft, Deadline: &past}, now)
	if decision.EffectiveStatus != models.TenderDraft {
		t.Fatalf("expected draft, got %s", decision.EffectiveStatus)
	}
}

func TestIsOpenForMatching_RollingTenderHasNoDeadlineCeiling(t *testing.T) {
	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	if !IsOpenForMatching(models.Tender{Status: models.TenderPublished}, now, 7) {
		t.Fatal("expected rolling (nil-deadline) tender to be open for matching")
	}
}

func TestIsOpenForMatching_RespectsDaysAhead(t *testing.T) {
	now := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	farFuture := now.Add(90 * 24 * time.Hour)

	if IsOpenForMatching(models.Tender{Status: models.TenderPublished, Deadline: &farFuture}, now, 7) {
		t.Fatal("expected tender past days_ahead window to be excluded")
	}
}
