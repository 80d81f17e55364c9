// Package rag sequences ingestion and question answering over the vector store.
// Every public operation returns a result envelope; none of them returns an error or panics.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-chat/internal/chunker"
	"document-chat/internal/config"
	"document-chat/internal/generator"
	"document-chat/internal/helper"
	"document-chat/internal/models"
	"document-chat/internal/parser"
	"document-chat/internal/retriever"
	"document-chat/internal/vectorstore"
)

const (
	defaultSearchK   = 10
	sourcesProbe     = "dummy"
	sourcesProbeK    = 100
	summaryMaxRunes  = 200
	scoreRoundFactor = 1000
)

type RAG struct {
	cfg       *config.Config
	parser    *parser.Registry
	chunker   *chunker.Chunker
	store     *vectorstore.Store
	retriever *retriever.Retriever
	generator *generator.Generator
}

// NewRAG wires the pipeline around an opened store. A nil llm selects extractive answers.
func NewRAG(cfg *config.Config, store *vectorstore.Store, llm generator.Completer) (*RAG, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.VectorStore.ChunkSize, cfg.VectorStore.ChunkOverlap, cfg.VectorStore.MinChunkChars)
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(store, cfg.Retrieval.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	return &RAG{
		cfg:       cfg,
		parser:    parser.NewRegistry(),
		chunker:   ch,
		store:     store,
		retriever: ret,
		generator: generator.New(llm, cfg),
	}, nil
}

func (r *RAG) Close() error {
	return r.store.Close()
}

func requestLogger(op string) zerolog.Logger {
	return log.With().Str("request_id", helper.NewRequestID()).Str("op", op).Logger()
}

// Ask answers a question from the indexed documents. k <= 0 uses the configured default.
func (r *RAG) Ask(ctx context.Context, question string, k int) (resp models.ChatResponse) {
	start := time.Now()
	logger := requestLogger("ask")
	if k <= 0 {
		k = r.cfg.Retrieval.K
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Recovered while answering question")
			resp = askFailure(fmt.Errorf("internal error: %v", rec), start)
		}
	}()

	results, err := r.retriever.Retrieve(ctx, question, k)
	if err != nil {
		logger.Error().Err(err).Msg("Error answering question")
		return askFailure(err, start)
	}

	if len(results) == 0 {
		logger.Info().Msg("No relevant results")
		return refusal(models.NoResultsAnswer, start)
	}
	if !r.retriever.CheckConfidence(results) {
		logger.Info().
			Float64("top_score", results[0].SimilarityScore).
			Float64("threshold", r.retriever.ConfidenceThreshold()).
			Msg("Top result below confidence threshold")
		return refusal(models.LowRelevanceAnswer, start)
	}

	record := r.generator.GenerateAnswer(ctx, question, results)
	logger.Info().
		Int("results", len(results)).
		Float64("confidence", record.Confidence).
		Dur("generation_time", record.GenerationTime).
		Msg("Answered question")

	return models.ChatResponse{
		AnswerRecord:     record,
		RetrievalResults: r.summaries(results),
		TotalTime:        time.Since(start),
	}
}

func refusal(answer string, start time.Time) models.ChatResponse {
	return models.ChatResponse{
		AnswerRecord: models.AnswerRecord{
			Answer:    answer,
			Citations: []string{},
			Sources:   []string{},
		},
		RetrievalResults: []models.RetrievalSummary{},
		TotalTime:        time.Since(start),
	}
}

func askFailure(err error, start time.Time) models.ChatResponse {
	resp := refusal(models.ProcessingErrorAnswer, start)
	resp.Error = err.Error()
	return resp
}

func (r *RAG) summaries(results []models.RetrievalResult) []models.RetrievalSummary {
	n := min(len(results), r.cfg.Retrieval.SummaryResults)
	out := make([]models.RetrievalSummary, 0, n)
	for _, res := range results[:n] {
		out = append(out, models.RetrievalSummary{
			Content: truncate(res.Content, summaryMaxRunes),
			Source:  filepath.Base(res.Source),
			Page:    res.PageNumber,
			Score:   roundScore(res.SimilarityScore),
		})
	}
	return out
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + models.Ellipsis
}

func roundScore(v float64) float64 {
	return math.Round(v*scoreRoundFactor) / scoreRoundFactor
}

// Search lists matching chunks without generating an answer. A non-empty source keeps only
// results whose path contains it, ignoring case. Failures yield an empty list.
func (r *RAG) Search(ctx context.Context, query string, k int, source string) (out []models.SearchResult) {
	logger := requestLogger("search")
	if k <= 0 {
		k = defaultSearchK
	}
	out = []models.SearchResult{}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Recovered while searching documents")
			out = []models.SearchResult{}
		}
	}()

	results, err := r.retriever.Retrieve(ctx, query, k)
	if err != nil {
		logger.Error().Err(err).Msg("Error searching documents")
		return out
	}
	if source != "" {
		results = retriever.FilterBySource(results, source)
	}
	for _, res := range results {
		out = append(out, models.SearchResult{
			Content:         res.Content,
			Source:          filepath.Base(res.Source),
			Page:            res.PageNumber,
			SimilarityScore: roundScore(res.SimilarityScore),
			Citations:       res.Citations,
		})
	}
	logger.Debug().Int("results", len(out)).Msg("Searched documents")
	return out
}

// AvailableSources lists the file names present in the index, probing without a similarity floor
func (r *RAG) AvailableSources(ctx context.Context) (sources []string) {
	logger := requestLogger("sources")
	sources = []string{}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Recovered while listing sources")
			sources = []string{}
		}
	}()

	results, err := r.retriever.RetrieveAbove(ctx, sourcesProbe, sourcesProbeK, 0)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting available sources")
		return sources
	}
	return retriever.UniqueSources(results)
}

func (r *RAG) Stats(ctx context.Context) models.SystemStats {
	stats := models.SystemStats{
		ChunkSize:           r.cfg.VectorStore.ChunkSize,
		ChunkOverlap:        r.cfg.VectorStore.ChunkOverlap,
		RetrievalK:          r.cfg.Retrieval.K,
		ConfidenceThreshold: r.cfg.Retrieval.ConfidenceThreshold,
	}
	vs, err := r.store.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error getting collection stats")
		stats.Error = err.Error()
		return stats
	}
	stats.VectorStore = vs
	return stats
}

func (r *RAG) Reset(ctx context.Context) models.OperationResult {
	return r.operation("reset", "Knowledge base reset successfully", "Error resetting knowledge base", func() error {
		return r.store.Reset(ctx)
	})
}

// DeleteSource removes every chunk ingested from the given path
func (r *RAG) DeleteSource(ctx context.Context, source string) models.OperationResult {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	return r.operation("delete-source", "Deleted source "+source, "Error deleting source", func() error {
		return r.store.DeleteSource(ctx, source)
	})
}

func (r *RAG) Export(ctx context.Context, path string) models.OperationResult {
	return r.operation("export", "Knowledge base exported", "Error exporting knowledge base", func() error {
		return r.store.Export(ctx, path)
	})
}

func (r *RAG) Import(ctx context.Context, path string) models.OperationResult {
	return r.operation("import", "Knowledge base imported", "Error importing knowledge base", func() error {
		return r.store.Import(ctx, path)
	})
}

// operation runs fn and converts its error or panic into an envelope
func (r *RAG) operation(op, success, failure string, fn func() error) (res models.OperationResult) {
	logger := requestLogger(op)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg(failure)
			res = models.OperationResult{Message: fmt.Sprintf("%s: internal error: %v", failure, rec)}
		}
	}()

	if err := fn(); err != nil {
		if errors.Is(err, models.ErrNotSupported) {
			logger.Warn().Err(err).Msg(failure)
		} else {
			logger.Error().Err(err).Msg(failure)
		}
		return models.OperationResult{Message: fmt.Sprintf("%s: %v", failure, err)}
	}
	logger.Info().Msg(success)
	return models.OperationResult{Success: true, Message: success}
}
