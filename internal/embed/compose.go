package embed

import (
	"strings"

	"github.com/david/tender-finder/internal/models"
)

// MaxDescriptionChars (T in spec §4.1) caps the raw description when no
// clean_description is available.
const MaxDescriptionChars = 2000

// ComposeTenderText builds the deterministic text fed to the embedding
// model for a tender: title, description (clean preferred over raw,
// truncated), highlights, organization, category, region — each on its
// own line, lowercased, whitespace-normalized.
func ComposeTenderText(t models.Tender) string {
	desc := t.CleanDescription
	if desc == "" {
		desc = truncate(t.RawDescription, MaxDescriptionChars)
	}

	lines := []string{
		t.Title,
		desc,
		strings.Join(t.Highlights, " "),
		t.Organization,
		t.Category,
		t.Region,
	}
	return normalizeText(strings.Join(nonEmpty(lines), "\n"))
}

// ComposeProfileText builds the deterministic text fed to the
// embedding model for a company profile.
func ComposeProfileText(p models.CompanyProfile) string {
	lines := []string{
		p.PrimarySector,
		strings.Join(p.ActiveSectors, " "),
		strings.Join(p.SubSectors, " "),
		strings.Join(p.Keywords, " "),
		strings.Join(p.PreferredRegions, " "),
		strings.Join(p.Certifications, " "),
		strings.Join(p.DiscoveredInterests, " "),
	}
	return normalizeText(strings.Join(nonEmpty(lines), "\n"))
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// normalizeText lowercases, collapses runs of whitespace within each
// line to a single space, and drops lines left empty, keeping the
// remaining lines separated by single newlines.
func normalizeText(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.ToLower(strings.Join(lines, "\n"))
}
