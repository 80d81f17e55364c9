// Package retriever turns a question into deduplicated, cited and ranked matches.
package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"document-chat/internal/models"
)

// Searcher is the part of the vector store gateway used for retrieval
type Searcher interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Query(ctx context.Context, vector []float32, topK int, minSimilarity float64) ([]models.Match, error)
}

type Retriever struct {
	searcher            Searcher
	confidenceThreshold float64
}

func New(searcher Searcher, confidenceThreshold float64) (*Retriever, error) {
	if confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold must be in [0, 1], got %v", models.ErrInvalidConfig, confidenceThreshold)
	}
	return &Retriever{
		searcher:            searcher,
		confidenceThreshold: confidenceThreshold,
	}, nil
}

func (r *Retriever) ConfidenceThreshold() float64 {
	return r.confidenceThreshold
}

// Retrieve returns up to k results that clear the confidence threshold
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	return r.RetrieveAbove(ctx, question, k, r.confidenceThreshold)
}

// RetrieveAbove is Retrieve with an explicit similarity floor
func (r *Retriever) RetrieveAbove(ctx context.Context, question string, k int, minSimilarity float64) ([]models.RetrievalResult, error) {
	vector, err := r.searcher.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err := r.searcher.Query(ctx, vector, k, minSimilarity)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{}, len(matches))
	results := make([]models.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		h := xxhash.Sum64String(m.Content)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		results = append(results, r.toResult(m))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})

	log.Debug().Int("matches", len(matches)).Int("results", len(results)).Msg("Retrieved results")
	return results, nil
}

func (r *Retriever) toResult(m models.Match) models.RetrievalResult {
	source := m.Metadata[models.MetaSource]
	if source == "" {
		source = models.UnknownSource
	}
	page, _ := strconv.Atoi(m.Metadata[models.MetaPageNumber])

	return models.RetrievalResult{
		Content:         m.Content,
		Source:          source,
		PageNumber:      page,
		SimilarityScore: m.SimilarityScore,
		Metadata:        m.Metadata,
		Citations:       []string{Citation(m.Metadata, page)},
	}
}

// Citation formats "[file, page N]", or "[file]" for page-less sources
func Citation(meta map[string]string, page int) string {
	name := meta[models.MetaFileName]
	if name == "" {
		if src := meta[models.MetaSource]; src != "" {
			name = filepath.Base(src)
		} else {
			name = models.UnknownSource
		}
	}
	if page > 0 {
		return fmt.Sprintf("[%s, page %d]", name, page)
	}
	return fmt.Sprintf("[%s]", name)
}

// CheckConfidence reports whether the best result clears the threshold
func (r *Retriever) CheckConfidence(results []models.RetrievalResult) bool {
	if len(results) == 0 {
		return false
	}
	return results[0].SimilarityScore >= r.confidenceThreshold
}

// FilterBySource keeps results whose source contains substr, ignoring case
func FilterBySource(results []models.RetrievalResult, substr string) []models.RetrievalResult {
	needle := strings.ToLower(substr)
	var out []models.RetrievalResult
	for _, res := range results {
		if strings.Contains(strings.ToLower(res.Source), needle) {
			out = append(out, res)
		}
	}
	return out
}

// UniqueSources returns the sorted distinct file names in the results
func UniqueSources(results []models.RetrievalResult) []string {
	set := make(map[string]struct{})
	for _, res := range results {
		if name := res.Metadata[models.MetaFileName]; name != "" {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
