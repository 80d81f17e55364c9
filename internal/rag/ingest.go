package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

const (
	noDocumentsMessage = "No supported documents found in the folder"
	noTextMessage      = "No text could be extracted from the file"
	noEmbeddingMessage = "No chunks could be indexed: every chunk produced an empty embedding"
)

// IngestFolder indexes every supported document under folder, recursively.
// A file that cannot be read or parsed is skipped and reported; it never aborts the folder.
func (r *RAG) IngestFolder(ctx context.Context, folder string) (res models.IngestResult) {
	start := time.Now()
	logger := requestLogger("ingest")
	defer r.recoverIngest(logger, start, &res)

	if abs, err := filepath.Abs(folder); err == nil {
		folder = abs
	}
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		logger.Warn().Str("folder", folder).Msg("Folder not found")
		return ingestFailure(fmt.Sprintf("Folder not found: %s", folder), start)
	}

	files, skipped := r.collectFiles(folder, logger)
	logger.Info().Str("folder", folder).Int("files", len(files)).Msg("Processing documents")

	var chunks []models.Chunk
	processed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return ingestFailure(fmt.Sprintf("Error processing documents: %v", err), start)
		}
		fileChunks, issue := r.chunkFile(path, logger)
		if issue != nil {
			skipped = append(skipped, *issue)
			continue
		}
		processed++
		chunks = append(chunks, fileChunks...)
	}

	if len(chunks) == 0 {
		res = ingestFailure(noDocumentsMessage, start)
		res.Skipped = skipped
		return res
	}

	res = r.storeChunks(ctx, chunks, logger, start)
	res.Stats.FilesProcessed = processed
	res.Skipped = append(skipped, res.Skipped...)
	if res.Success {
		res.Message = fmt.Sprintf("Successfully processed %d chunks from %d files", res.Stats.NewChunks, processed)
	}
	return res
}

// IngestFile indexes a single document
func (r *RAG) IngestFile(ctx context.Context, path string) (res models.IngestResult) {
	start := time.Now()
	logger := requestLogger("ingest-file")
	defer r.recoverIngest(logger, start, &res)

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ingestFailure(fmt.Sprintf("File not found: %s", path), start)
	}

	chunks, issue := r.chunkFile(path, logger)
	if issue != nil {
		res = ingestFailure(fmt.Sprintf("Error processing %s: %s", filepath.Base(path), issue.Reason), start)
		res.Skipped = []models.FileIssue{*issue}
		return res
	}
	if len(chunks) == 0 {
		return ingestFailure(noTextMessage, start)
	}

	res = r.storeChunks(ctx, chunks, logger, start)
	res.Stats.FilesProcessed = 1
	if res.Success {
		res.Message = fmt.Sprintf("Successfully processed %d chunks", res.Stats.NewChunks)
	}
	return res
}

func (r *RAG) recoverIngest(logger zerolog.Logger, start time.Time, res *models.IngestResult) {
	if rec := recover(); rec != nil {
		logger.Error().Interface("panic", rec).Msg("Recovered while ingesting documents")
		*res = ingestFailure(fmt.Sprintf("Error processing documents: internal error: %v", rec), start)
	}
}

func ingestFailure(message string, start time.Time) models.IngestResult {
	return models.IngestResult{
		Message: message,
		Stats:   models.IngestStats{ProcessingTime: time.Since(start)},
	}
}

// collectFiles walks the folder in lexical order. Hidden entries are ignored;
// files with other extensions are reported as skipped.
func (r *RAG) collectFiles(folder string, logger zerolog.Logger) ([]string, []models.FileIssue) {
	var files []string
	var skipped []models.FileIssue
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Cannot read path")
			skipped = append(skipped, models.FileIssue{Path: path, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != folder && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(config.SupportedExtensions, ext) || !r.parser.Supports(path) {
			logger.Warn().Str("file", path).Msg("Skipping unsupported file")
			skipped = append(skipped, models.FileIssue{Path: path, Reason: fmt.Sprintf("%v: %s", models.ErrUnsupportedFormat, ext)})
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("folder", folder).Msg("Folder walk stopped early")
	}
	return files, skipped
}

// chunkFile extracts and chunks one document; the chunk counter spans all of its pages
func (r *RAG) chunkFile(path string, logger zerolog.Logger) ([]models.Chunk, *models.FileIssue) {
	pages, err := r.parser.Extract(path)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnsupportedFormat):
			logger.Warn().Str("file", path).Msg("Skipping unsupported file")
		default:
			logger.Warn().Err(err).Str("file", path).Msg("Skipping file after extraction failure")
		}
		return nil, &models.FileIssue{Path: path, Reason: err.Error()}
	}
	chunks := r.chunker.Chunk(pages)
	logger.Debug().Str("file", path).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Chunked document")
	return chunks, nil
}

// storeChunks embeds and upserts in batches. A failing batch ends ingestion;
// chunks from earlier batches stay indexed and are reported. Chunks whose
// embedding came back empty are not indexed and are reported per source.
func (r *RAG) storeChunks(ctx context.Context, chunks []models.Chunk, logger zerolog.Logger, start time.Time) models.IngestResult {
	batchSize := r.cfg.VectorStore.BatchSize
	stored := 0
	var dropped []models.Chunk
	var storeErr error
	for i := 0; i < len(chunks); i += batchSize {
		batch := chunks[i:min(i+batchSize, len(chunks))]
		skipped, err := r.store.AddChunks(ctx, batch)
		if err != nil {
			storeErr = err
			break
		}
		stored += len(batch) - len(skipped)
		dropped = append(dropped, skipped...)
		logger.Debug().Int("stored", stored).Int("total", len(chunks)).Msg("Stored batch")
	}

	res := models.IngestResult{Success: storeErr == nil && stored > 0}
	res.Stats.NewChunks = stored
	res.Skipped = emptyEmbeddingIssues(dropped)
	if vs, err := r.store.Stats(ctx); err == nil {
		res.Stats.CollectionStats = vs
	} else {
		logger.Error().Err(err).Msg("Error getting collection stats")
	}
	res.Stats.ProcessingTime = time.Since(start)

	switch {
	case storeErr != nil:
		logger.Error().Err(storeErr).Int("stored", stored).Msg("Error ingesting documents")
		res.Message = fmt.Sprintf("Error processing documents: %v", storeErr)
		return res
	case stored == 0:
		logger.Warn().Int("chunks", len(chunks)).Msg("No chunk produced a usable embedding")
		res.Message = noEmbeddingMessage
		return res
	}
	logger.Info().Int("chunks", stored).Int("total_documents", res.Stats.TotalDocuments).Msg("Ingested documents")
	return res
}

// emptyEmbeddingIssues groups chunks that were not indexed by their source file,
// in first-seen order.
func emptyEmbeddingIssues(chunks []models.Chunk) []models.FileIssue {
	if len(chunks) == 0 {
		return nil
	}
	counts := make(map[string]int)
	var order []string
	for _, ch := range chunks {
		if counts[ch.Source] == 0 {
			order = append(order, ch.Source)
		}
		counts[ch.Source]++
	}
	issues := make([]models.FileIssue, 0, len(order))
	for _, src := range order {
		issues = append(issues, models.FileIssue{
			Path:   src,
			Reason: fmt.Sprintf("%d chunk(s) produced an empty embedding", counts[src]),
		})
	}
	return issues
}
