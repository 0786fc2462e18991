package embed

import (
	"strings"
	"testing"

	"github.com/david/tender-finder/internal/models"
)

func TestComposeTenderText_PrefersCleanDescription(t *testing.T) {
	tender := models.Tender{
		Title:            "Cloud ERP Rollout",
		RawDescription:   "raw text should be ignored",
		CleanDescription: "Cleaned procurement description",
		Highlights:       []string{"cloud", "erp"},
		Organization:     "Ministry of Finance",
		Category:         "IT",
		Region:           "Addis Ababa",
	}

	text := ComposeTenderText(tender)
	if strings.Contains(text, "raw text") {
		t.Fatalf("expected raw description to be dropped when clean_description present: %s", text)
	}
	if !strings.Contains(text, "cleaned procurement description") {
		t.Fatalf("expected lowercased clean description in composed text: %s", text)
	}
	if !strings.Contains(text, "addis ababa") {
		t.Fatalf("expected region in composed text: %s", text)
	}
}

func TestComposeTenderText_FallsBackToTruncatedRaw(t *testing.T) {
	tender := models.Tender{
		Title:          "T",
		RawDescription: strings.Repeat("x", MaxDescriptionChars+500),
	}
	text := ComposeTenderText(tender)
	if len(text) > MaxDescriptionChars+len("t")+2 {
		t.Fatalf("expected raw description to be truncated to %d chars, got text of len %d", MaxDescriptionChars, len(text))
	}
}

func TestComposeTenderText_Deterministic(t *testing.T) {
	tender := models.Tender{Title: "Same Tender", Category: "IT", Region: "Oromia"}
	a := ComposeTenderText(tender)
	b := ComposeTenderText(tender)
	if a != b {
		t.Fatalf("expected composition to be deterministic: %q != %q", a, b)
	}
}

func TestComposeProfileText_JoinsListsInOrder(t *testing.T) {
	profile := models.CompanyProfile{
		PrimarySector:    "IT",
		ActiveSectors:    []string{"IT", "Construction"},
		Keywords:         []string{"cloud", "erp"},
		PreferredRegions: []string{"Addis Ababa"},
	}
	text := ComposeProfileText(profile)
	if !strings.Contains(text, "cloud erp") {
		t.Fatalf("expected keywords joined in order: %s", text)
	}
}
