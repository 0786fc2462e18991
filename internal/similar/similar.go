// Package similar is the §4.6 Similar-Tender Service: reference-tender
// nearest-neighbor lookup with keyword-overlap annotation.
package similar

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/vectorstore"
)

// ErrReferenceNotEmbedded is returned when the reference tender has no
// stored embedding.
var ErrReferenceNotEmbedded = errors.New("similar: reference tender not embedded")

// TenderStore is the subset of persistence the service needs.
type TenderStore interface {
	GetTenderByID(ctx context.Context, id uuid.UUID) (models.Tender, error)
	GetTendersByID(ctx context.Context, ids []uuid.UUID) ([]models.Tender, error)
}

// VectorStore is the subset of vectorstore.Store the service depends on.
type VectorStore interface {
	RangeByScore(ctx context.Context, query []float32, minSimilarity float64, limit int, excludeTenderID string) ([]vectorstore.Candidate, error)
}

// Item is one row of a Similar response.
type Item struct {
	Tender          models.Tender `json:"tender"`
	SimilarityScore int           `json:"similarity_score"`
	CommonKeywords  []string      `json:"common_keywords"`
}

// Response is the §4.6 return shape.
type Response struct {
	Ref   models.Tender `json:"ref"`
	Items []Item        `json:"items"`
}

// Service implements Similar.
type Service struct {
	tenders TenderStore
	vectors VectorStore
}

func New(tenders TenderStore, vectors VectorStore) *Service {
	return &Service{tenders: tenders, vectors: vectors}
}

// minSimilarity is the floor below which a candidate isn't worth
// returning as "similar" — chosen low enough that RangeByScore's limit
// parameter, not this floor, is normally the binding constraint.
const minSimilarity = 0.05

// Similar loads the reference tender's vector and returns the closest
// published tenders by cosine similarity, annotated with keyword
// overlap.
func (s *Service) Similar(ctx context.Context, tenderID uuid.UUID, limit int) (Response, error) {
	if limit <= 0 {
		limit = 10
	}

	ref, err := s.tenders.GetTenderByID(ctx, tenderID)
	if err != nil {
		return Response{}, err
	}
	if len(ref.Embedding) == 0 {
		return Response{}, ErrReferenceNotEmbedded
	}

	candidates, err := s.vectors.RangeByScore(ctx, ref.Embedding, minSimilarity, limit, tenderID.String())
	if err != nil {
		return Response{}, err
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	simByID := map[uuid.UUID]float64{}
	for _, c := range candidates {
		id, parseErr := uuid.Parse(c.TenderID)
		if parseErr != nil {
			continue
		}
		ids = append(ids, id)
		simByID[id] = c.Similarity
	}

	tenders, err := s.tenders.GetTendersByID(ctx, ids)
	if err != nil {
		return Response{}, err
	}

	refKeywords := keywordSet(ref)

	items := make([]Item, 0, len(tenders))
	for _, t := range tenders {
		sim := simByID[t.ID]
		items = append(items, Item{
			Tender:          t,
			SimilarityScore: clampScore(int(math.Round(100 * sim))),
			CommonKeywords:  commonKeywords(refKeywords, keywordSet(t)),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SimilarityScore != items[j].SimilarityScore {
			return items[i].SimilarityScore > items[j].SimilarityScore
		}
		return items[i].Tender.ID.String() < items[j].Tender.ID.String()
	})

	return Response{Ref: ref, Items: items}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"for": true, "to": true, "in": true, "on": true, "with": true, "by": true,
	"is": true, "at": true, "as": true, "from": true, "this": true, "that": true,
}

// keywordSet derives case-folded, stop-word-stripped tokens from a
// tender's title and highlights.
func keywordSet(t models.Tender) map[string]bool {
	text := strings.ToLower(t.Title + " " + strings.Join(t.Highlights, " "))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	set := map[string]bool{}
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// commonKeywords intersects two keyword sets, sorted for determinism
// and capped at 10.
func commonKeywords(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
