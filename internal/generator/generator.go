// Package generator composes answers from retrieval results, with a language model
// when one is configured and by sentence extraction otherwise.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

const (
	extractiveSentences = 3
	minSentenceChars    = 20
	fallbackPrefixRunes = 300
	repeatWindow        = 3
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// Completer is a generative text backend
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	llm                 Completer
	confidenceThreshold float64
	maxContextResults   int
	maxWords            int
	includeCitations    bool
	maxCitations        int
}

// New builds a generator; a nil llm selects the extractive fallback
func New(llm Completer, cfg *config.Config) *Generator {
	return &Generator{
		llm:                 llm,
		confidenceThreshold: cfg.Retrieval.ConfidenceThreshold,
		maxContextResults:   cfg.Retrieval.MaxContextResults,
		maxWords:            cfg.Generation.MaxWords,
		includeCitations:    cfg.Citation.IncludePageNumbers,
		maxCitations:        cfg.Citation.MaxCitations,
	}
}

// HasLLM reports whether a generative backend is configured
func (g *Generator) HasLLM() bool {
	return g.llm != nil
}

// GenerateAnswer never fails: backend errors turn into a fixed apology
func (g *Generator) GenerateAnswer(ctx context.Context, question string, results []models.RetrievalResult) models.AnswerRecord {
	start := time.Now()

	if len(results) == 0 {
		return models.AnswerRecord{
			Answer:         models.NoInformationAnswer,
			Citations:      []string{},
			Sources:        []string{},
			GenerationTime: time.Since(start),
		}
	}

	avg := averageScore(results)
	if avg < g.confidenceThreshold {
		log.Debug().Float64("avg_confidence", avg).Float64("threshold", g.confidenceThreshold).Msg("Results below confidence threshold")
		return models.AnswerRecord{
			Answer:         models.LowRelevanceAnswer,
			Confidence:     avg,
			Citations:      []string{},
			Sources:        []string{},
			GenerationTime: time.Since(start),
		}
	}

	var answer string
	if g.llm != nil {
		raw, err := g.llm.Complete(ctx, g.buildPrompt(question, results))
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate answer")
			answer = models.GenerationErrorAnswer
		} else {
			answer = g.cleanResponse(raw)
		}
	} else {
		answer = extractiveAnswer(question, results[0].Content)
	}

	citations := g.collectCitations(results)
	if g.includeCitations && len(citations) > 0 {
		answer = answer + " " + strings.Join(citations, ", ")
	}

	return models.AnswerRecord{
		Answer:         answer,
		Confidence:     avg,
		Citations:      citations,
		Sources:        distinctSources(results),
		GenerationTime: time.Since(start),
	}
}

func averageScore(results []models.RetrievalResult) float64 {
	sum := 0.0
	for _, r := range results {
		sum += r.SimilarityScore
	}
	return sum / float64(len(results))
}

// buildContext renders the top results as numbered blocks headed by their citations
func (g *Generator) buildContext(results []models.RetrievalResult) string {
	n := min(len(results), g.maxContextResults)
	blocks := make([]string, 0, n)
	for i, r := range results[:n] {
		blocks = append(blocks, fmt.Sprintf("Context %d %s:\n%s\n", i+1, strings.Join(r.Citations, " "), r.Content))
	}
	return strings.Join(blocks, models.ContextSeparator)
}

func (g *Generator) buildPrompt(question string, results []models.RetrievalResult) string {
	return fmt.Sprintf(models.AnswerPromptTemplate, g.maxWords, g.buildContext(results), question)
}

// cleanResponse drops lines repeated within the last few kept lines,
// collapses whitespace and caps the word count
func (g *Generator) cleanResponse(raw string) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		recent := kept[max(0, len(kept)-repeatWindow):]
		if contains(recent, line) {
			continue
		}
		kept = append(kept, line)
	}

	words := strings.Fields(strings.Join(kept, " "))
	if len(words) > g.maxWords {
		return strings.Join(words[:g.maxWords], " ") + models.Ellipsis
	}
	return strings.Join(words, " ")
}

func contains(lines []string, s string) bool {
	for _, l := range lines {
		if l == s {
			return true
		}
	}
	return false
}

type scoredSentence struct {
	text  string
	score int
}

// extractiveAnswer picks the sentences of content sharing the most words with the question
func extractiveAnswer(question, content string) string {
	questionWords := wordSet(question)

	var scored []scoredSentence
	for _, s := range sentenceBoundary.Split(content, -1) {
		s = strings.TrimSpace(s)
		if len(s) <= minSentenceChars {
			continue
		}
		overlap := 0
		for w := range wordSet(s) {
			if _, ok := questionWords[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			scored = append(scored, scoredSentence{text: s, score: overlap})
		}
	}

	if len(scored) == 0 {
		return models.ExtractivePrefix + truncateRunes(strings.TrimSpace(content), fallbackPrefixRunes) + models.Ellipsis
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	top := make([]string, 0, extractiveSentences)
	for _, s := range scored[:min(len(scored), extractiveSentences)] {
		top = append(top, s.text)
	}
	answer := strings.Join(top, ". ")
	if !strings.HasSuffix(answer, ".") {
		answer += "."
	}
	return answer
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,;:!?"'()[]`)
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// collectCitations gathers the citations of the top results, deduplicated in order and capped
func (g *Generator) collectCitations(results []models.RetrievalResult) []string {
	seen := make(map[string]struct{})
	citations := []string{}
	for _, r := range results[:min(len(results), g.maxCitations)] {
		for _, c := range r.Citations {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			citations = append(citations, c)
		}
	}
	if len(citations) > g.maxCitations {
		citations = citations[:g.maxCitations]
	}
	return citations
}

// distinctSources lists every source across the results in first-seen order
func distinctSources(results []models.RetrievalResult) []string {
	seen := make(map[string]struct{})
	sources := []string{}
	for _, r := range results {
		if _, dup := seen[r.Source]; dup {
			continue
		}
		seen[r.Source] = struct{}{}
		sources = append(sources, r.Source)
	}
	return sources
}
