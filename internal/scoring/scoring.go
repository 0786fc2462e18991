// Package scoring is the §4.3 Rule Scorer: bounded per-dimension
// contributions from structured tender/profile signals, normalized to a
// 100-point rule score, with human-readable MatchReasons attached.
package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/david/tender-finder/internal/models"
)

// Dimension names the eleven fixed scoring dimensions.
type Dimension string

const (
	DimCategory      Dimension = "category"
	DimSubSector     Dimension = "subsector"
	DimKeyword       Dimension = "keyword"
	DimRegion        Dimension = "region"
	DimBudget        Dimension = "budget"
	DimCertification Dimension = "certification"
	DimLanguage      Dimension = "language"
	DimDeadline      Dimension = "deadline"
	DimUrgency       Dimension = "urgency"
	DimPopularity    Dimension = "popularity"
	DimSemantic      Dimension = "semantic"
)

// DefaultShares are the default weight shares out of 100, per §4.3's
// table, before any profile override/renormalization.
var DefaultShares = map[Dimension]float64{
	DimCategory:      20,
	DimSubSector:     10,
	DimKeyword:       15,
	DimRegion:        10,
	DimBudget:        10,
	DimCertification: 5,
	DimLanguage:      5,
	DimDeadline:      5,
	DimUrgency:       5,
	DimPopularity:    5,
	DimSemantic:      10,
}

var dimOrder = []Dimension{
	DimCategory, DimSubSector, DimKeyword, DimRegion, DimBudget,
	DimCertification, DimLanguage, DimUrgency, DimDeadline,
	DimPopularity, DimSemantic,
}

// certKeywords maps a certification name to the description keywords
// that imply a tender requires it — certification detection is a
// keyword set on the description, not a structured field.
var certKeywords = map[string][]string{
	"iso9001": {"iso 9001", "iso9001", "quality management certification"},
	"iso14001": {"iso 14001", "iso14001", "environmental management certification"},
	"ohsas18001": {"ohsas 18001", "ohsas18001", "occupational health and safety certification"},
}

// Input bundles everything the scorer needs for one candidate.
type Input struct {
	Profile           models.CompanyProfile
	Tender            models.Tender
	Semantic          float64 // cosine similarity, clamped to [0,1] when scored; 0 if unavailable
	SemanticAvailable bool
	DaysUntilDeadline int
	PopularityP95     float64 // rolling 95th-percentile popularity, see §4.4 step 4
}

// Result is a scored candidate: the final [0,100] match score and the
// reasons that produced it.
type Result struct {
	MatchScore int
	Reasons    []models.MatchReason
}

// wordBoundary builds a case-insensitive, word-bounded regexp for
// sub-sector token matching; a new regexp is compiled on every call.
func wordBoundary(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
}

// Score computes the rule+semantic+popularity fused score for one
// candidate, returning the normalized match score and its reasons.
func Score(in Input) Result {
	shares := effectiveShares(in.Profile.ScoringWeights)

	contributions := map[Dimension]float64{}   // 0..1 normalized sub-score per dimension
	labels := map[Dimension]string{}
	sentences := map[Dimension]string{}

	scoreCategory(in, shares, contributions, labels, sentences)
	scoreSubSector(in, contributions, labels, sentences)
	scoreKeyword(in, contributions, labels, sentences)
	scoreRegion(in, contributions, labels, sentences)
	scoreBudget(in, contributions, labels, sentences)
	scoreCertification(in, contributions, labels, sentences)
	scoreLanguage(in, contributions, labels, sentences)
	scoreDeadline(in, contributions, labels, sentences)
	scoreUrgency(in, contributions, labels, sentences)
	scorePopularity(in, contributions, labels, sentences)
	scoreSemantic(in, contributions, labels, sentences)

	var reasons []models.MatchReason
	total := 0.0
	for _, dim := range dimOrder {
		sub := contributions[dim]
		if sub <= 0 {
			continue
		}
		points := sub * shares[dim]
		total += points
		reasons = append(reasons, models.MatchReason{
			Tag:      tagFor(dim),
			Category: labels[dim],
			Reason:   sentences[dim],
			Weight:   int(math.Round(points)),
		})
	}

	total = clamp(total, 0, 100)

	sort.SliceStable(reasons, func(i, j int) bool { return reasons[i].Weight > reasons[j].Weight })
	if len(reasons) > 6 {
		reasons = reasons[:6]
	}

	return Result{MatchScore: int(math.Round(total)), Reasons: reasons}
}

// effectiveShares applies a profile's scoring_weights override to the
// default shares and renormalizes the result to sum to 100, per §4.3.
func effectiveShares(overrides models.ScoringWeights) map[Dimension]float64 {
	out := map[Dimension]float64{}
	for dim, def := range DefaultShares {
		out[dim] = def
		if overrides == nil {
			continue
		}
		if ov, ok := overrides[string(dim)]; ok && def > 0 {
			out[dim] = def * (ov / def)
		}
	}

	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if sum <= 0 {
		return DefaultShares
	}
	for dim, v := range out {
		out[dim] = v * 100 / sum
	}
	return out
}

func tagFor(dim Dimension) models.MatchReasonTag {
	switch dim {
	case DimCategory:
		return models.ReasonSectorMatch
	case DimSubSector:
		return models.ReasonSubsectorMatch
	case DimKeyword:
		return models.ReasonKeywordMatch
	case DimRegion:
		return models.ReasonRegionMatch
	case DimBudget:
		return models.ReasonBudgetMatch
	case DimCertification:
		return models.ReasonCertificationMatch
	case DimLanguage:
		return models.ReasonLanguageMatch
	case DimDeadline:
		return models.ReasonDeadlineMatch
	case DimUrgency:
		return models.ReasonUrgency
	case DimPopularity:
		return models.ReasonPopularityBoost
	case DimSemantic:
		return models.ReasonSemanticMatch
	}
	return ""
}

func scoreCategory(in Input, shares map[Dimension]float64, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	for _, s := range in.Profile.ActiveSectors {
		if strings.EqualFold(s, in.Tender.Category) {
			contrib[DimCategory] = 1
			labels[DimCategory] = in.Tender.Category
			sentences[DimCategory] = fmt.Sprintf("Matches your active sector %q", s)
			return
		}
	}
	if strings.EqualFold(in.Profile.PrimarySector, in.Tender.Category) {
		contrib[DimCategory] = 0.5
		labels[DimCategory] = in.Tender.Category
		sentences[DimCategory] = fmt.Sprintf("Matches your primary sector %q", in.Profile.PrimarySector)
	}
}

func scoreSubSector(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if len(in.Profile.SubSectors) == 0 {
		return
	}
	haystack := in.Tender.Title + " " + in.Tender.CleanDescription
	hits := 0
	var matched []string
	for _, token := range in.Profile.SubSectors {
		if token == "" {
			continue
		}
		if wordBoundary(token).MatchString(haystack) {
			hits++
			matched = append(matched, token)
		}
	}
	if hits == 0 {
		return
	}
	sub := float64(hits) / float64(len(in.Profile.SubSectors))
	contrib[DimSubSector] = clamp(sub, 0, 1)
	labels[DimSubSector] = strings.Join(matched, ", ")
	sentences[DimSubSector] = fmt.Sprintf("Mentions your sub-sector(s): %s", strings.Join(matched, ", "))
}

func scoreKeyword(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if len(in.Profile.Keywords) == 0 {
		return
	}
	title := strings.ToLower(in.Tender.Title)
	highlights := strings.ToLower(strings.Join(in.Tender.Highlights, " "))
	desc := strings.ToLower(in.Tender.CleanDescription)

	var sum float64
	var matched []string
	for _, kw := range in.Profile.Keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		switch {
		case strings.Contains(title, k):
			sum += 2
			matched = append(matched, kw)
		case strings.Contains(highlights, k):
			sum += 1.5
			matched = append(matched, kw)
		case strings.Contains(desc, k):
			sum += 1
			matched = append(matched, kw)
		}
	}
	if sum == 0 {
		return
	}
	maxPossible := float64(len(in.Profile.Keywords)) * 2
	contrib[DimKeyword] = clamp(sum/maxPossible, 0, 1)
	labels[DimKeyword] = strings.Join(matched, ", ")
	sentences[DimKeyword] = fmt.Sprintf("Contains keyword(s): %s", strings.Join(matched, ", "))
}

func scoreRegion(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	for _, r := range in.Profile.PreferredRegions {
		if strings.EqualFold(r, in.Tender.Region) {
			contrib[DimRegion] = 1
			labels[DimRegion] = in.Tender.Region
			sentences[DimRegion] = fmt.Sprintf("Located in your preferred region %q", r)
			return
		}
	}
	if strings.EqualFold(in.Tender.Region, "national") {
		contrib[DimRegion] = 0.5
		labels[DimRegion] = in.Tender.Region
		sentences[DimRegion] = "National-scope tender, partially matches your regions"
	}
}

func scoreBudget(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if in.Profile.BudgetMin == 0 && in.Profile.BudgetMax == 0 {
		return
	}
	if in.Tender.BudgetAmount <= 0 {
		return
	}
	if in.Tender.BudgetAmount >= in.Profile.BudgetMin && in.Tender.BudgetAmount <= in.Profile.BudgetMax {
		contrib[DimBudget] = 1
		labels[DimBudget] = in.Tender.BudgetCurrency
		sentences[DimBudget] = "Budget within your preferred range"
		return
	}
	band := in.Profile.BudgetMax * 0.2
	if in.Tender.BudgetAmount >= in.Profile.BudgetMin-band && in.Tender.BudgetAmount <= in.Profile.BudgetMax+band {
		contrib[DimBudget] = 0.5
		labels[DimBudget] = in.Tender.BudgetCurrency
		sentences[DimBudget] = "Budget within 20% of your preferred range"
	}
}

func scoreCertification(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if len(in.Profile.Certifications) == 0 {
		return
	}
	desc := strings.ToLower(in.Tender.CleanDescription)
	var matched []string
	var required int
	for cert, keywords := range certKeywords {
		needsIt := false
		for _, kw := range keywords {
			if strings.Contains(desc, kw) {
				needsIt = true
				break
			}
		}
		if !needsIt {
			continue
		}
		required++
		for _, held := range in.Profile.Certifications {
			if normalizeCert(held) == cert {
				matched = append(matched, held)
				break
			}
		}
	}
	if required == 0 {
		return
	}
	contrib[DimCertification] = clamp(float64(len(matched))/float64(required), 0, 1)
	if len(matched) > 0 {
		labels[DimCertification] = strings.Join(matched, ", ")
		sentences[DimCertification] = fmt.Sprintf("You hold required certification(s): %s", strings.Join(matched, ", "))
	}
}

func normalizeCert(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func scoreLanguage(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	langs := in.Profile.EffectivePreferredLanguages()
	for _, l := range langs {
		if strings.EqualFold(l, in.Tender.Language) {
			contrib[DimLanguage] = 1
			labels[DimLanguage] = in.Tender.Language
			sentences[DimLanguage] = fmt.Sprintf("Published in your preferred language %q", l)
			return
		}
	}
}

func scoreDeadline(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if in.Tender.Deadline == nil {
		return
	}
	d := in.DaysUntilDeadline
	if d >= in.Profile.MinDeadlineDays && d <= 60 {
		contrib[DimDeadline] = 1
		labels[DimDeadline] = fmt.Sprintf("%dd", d)
		sentences[DimDeadline] = fmt.Sprintf("%d days remain, within your preferred window", d)
		return
	}
	// linear falloff outside the window
	var dist int
	if d < in.Profile.MinDeadlineDays {
		dist = in.Profile.MinDeadlineDays - d
	} else {
		dist = d - 60
	}
	falloff := clamp(1-float64(dist)/30, 0, 1)
	if falloff > 0 {
		contrib[DimDeadline] = falloff
		labels[DimDeadline] = fmt.Sprintf("%dd", d)
		sentences[DimDeadline] = fmt.Sprintf("%d days remain, just outside your preferred window", d)
	}
}

func scoreUrgency(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	d := in.DaysUntilDeadline
	if d >= 1 && d <= 7 {
		contrib[DimUrgency] = 1
		labels[DimUrgency] = fmt.Sprintf("%dd", d)
		sentences[DimUrgency] = fmt.Sprintf("Deadline in %d days — act soon", d)
	}
}

func scorePopularity(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if in.PopularityP95 <= 0 {
		return
	}
	norm := clamp(in.Tender.PopularityScore/in.PopularityP95, 0, 1)
	if norm <= 0 {
		return
	}
	contrib[DimPopularity] = norm
	labels[DimPopularity] = "popularity"
	sentences[DimPopularity] = "Popular among similar companies"
}

func scoreSemantic(in Input, contrib map[Dimension]float64, labels, sentences map[Dimension]string) {
	if !in.SemanticAvailable {
		return
	}
	sim := clamp(in.Semantic, 0, 1)
	if sim <= 0 {
		return
	}
	contrib[DimSemantic] = sim
	labels[DimSemantic] = "semantic"
	sentences[DimSemantic] = "Strong overall content similarity"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
