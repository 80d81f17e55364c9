// Package vectorstore is the gateway to the embedding capability and the persistent vector index.
// It owns the collection exclusively: every write to it goes through a Store.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-chat/internal/models"
)

// Store combines an embedder and a backend for one collection.
// Upsert, Reset and DeleteSource are atomic with respect to all other Store calls.
type Store struct {
	backend    Backend
	embedder   embeddings.Embedder
	collection string
	mu         sync.RWMutex
}

// New opens the collection, creating it on first use
func New(ctx context.Context, backend Backend, embedder embeddings.Embedder, collection string) (*Store, error) {
	s := &Store{
		backend:    backend,
		embedder:   embedder,
		collection: collection,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	state, err := s.backend.Lookup(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to look up collection %s: %v", models.ErrBackend, s.collection, err)
	}
	switch state {
	case CollectionFound:
		log.Info().Str("collection", s.collection).Msg("Loaded existing collection")
	case CollectionNotFound:
		if err := s.backend.Create(ctx, s.collection); err != nil {
			return fmt.Errorf("%w: failed to create collection %s: %v", models.ErrBackend, s.collection, err)
		}
		log.Info().Str("collection", s.collection).Msg("Created new collection")
	}
	return nil
}

// Similarity converts a non-negative distance into a score in (0, 1]
func Similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

func (s *Store) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed %d texts: %v", models.ErrBackend, len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", models.ErrBackend, len(vectors), len(texts))
	}
	return vectors, nil
}

func (s *Store) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", models.ErrBackend, err)
	}
	return vector, nil
}

// Upsert writes chunks keyed by chunk id; an existing id is overwritten.
// Chunks with an all-zero embedding are not written and are returned as skipped.
func (s *Store) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) ([]models.Chunk, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", models.ErrBackend, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		log.Warn().Msg("No chunks provided to add to vector store")
		return nil, nil
	}

	var skipped []models.Chunk
	entries := make([]Entry, 0, len(chunks))
	for i, ch := range chunks {
		// a zero vector has no direction and can never be retrieved
		if isZero(vectors[i]) {
			log.Warn().Str("chunk_id", ch.ChunkID).Msg("Skipping chunk with empty embedding")
			skipped = append(skipped, ch)
			continue
		}
		entries = append(entries, Entry{
			ID:        ch.ChunkID,
			Content:   ch.Content,
			Metadata:  entryMetadata(ch),
			Embedding: vectors[i],
		})
	}
	if len(entries) == 0 {
		return skipped, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Upsert(ctx, s.collection, entries); err != nil {
		return nil, fmt.Errorf("%w: failed to upsert %d chunks: %v", models.ErrBackend, len(entries), err)
	}
	log.Info().Int("chunks", len(entries)).Str("collection", s.collection).Msg("Added chunks to vector store")
	return skipped, nil
}

// AddChunks embeds the chunk contents in one batch and upserts them.
// It returns the chunks that were not written because their embedding was empty.
func (s *Store) AddChunks(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := s.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	return s.Upsert(ctx, chunks, vectors)
}

func entryMetadata(ch models.Chunk) map[string]string {
	meta := make(map[string]string, len(ch.Metadata)+3)
	for k, v := range ch.Metadata {
		meta[k] = v
	}
	meta[models.MetaSource] = ch.Source
	meta[models.MetaChunkID] = ch.ChunkID
	if ch.PageNumber > 0 {
		meta[models.MetaPageNumber] = strconv.Itoa(ch.PageNumber)
	}
	return meta
}

// Query returns up to topK entries whose similarity is at least minSimilarity,
// ordered by descending similarity
func (s *Store) Query(ctx context.Context, vector []float32, topK int, minSimilarity float64) ([]models.Match, error) {
	if topK <= 0 || isZero(vector) {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.backend.Query(ctx, s.collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query by similarity: %v", models.ErrBackend, err)
	}

	matches := make([]models.Match, 0, len(hits))
	for _, h := range hits {
		score := Similarity(h.Distance)
		if score < minSimilarity {
			continue
		}
		matches = append(matches, models.Match{
			ID:              h.ID,
			Content:         h.Content,
			Metadata:        h.Metadata,
			Distance:        h.Distance,
			SimilarityScore: score,
		})
	}
	log.Debug().Int("hits", len(hits)).Int("relevant", len(matches)).Msg("Similarity search finished")
	return matches, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (s *Store) Stats(ctx context.Context) (models.CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.backend.Count(ctx, s.collection)
	if err != nil {
		return models.CollectionStats{}, fmt.Errorf("%w: failed to count collection: %v", models.ErrBackend, err)
	}
	return models.CollectionStats{
		TotalDocuments: count,
		CollectionName: s.collection,
		Location:       s.backend.Location(),
	}, nil
}

// Reset drops the collection and recreates it empty. Resetting a missing collection is not an error.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.backend.Lookup(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to look up collection: %v", models.ErrBackend, err)
	}
	if state == CollectionFound {
		if err := s.backend.Drop(ctx, s.collection); err != nil {
			return fmt.Errorf("%w: failed to drop collection: %v", models.ErrBackend, err)
		}
	}
	if err := s.backend.Create(ctx, s.collection); err != nil {
		return fmt.Errorf("%w: failed to recreate collection: %v", models.ErrBackend, err)
	}
	log.Info().Str("collection", s.collection).Msg("Reset collection")
	return nil
}

// DeleteSource removes every chunk whose source equals the given path
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteWhere(ctx, s.collection, map[string]string{models.MetaSource: source}); err != nil {
		return fmt.Errorf("%w: failed to delete chunks of %s: %v", models.ErrBackend, source, err)
	}
	log.Info().Str("source", source).Msg("Deleted source from vector store")
	return nil
}

func (s *Store) Export(ctx context.Context, path string) error {
	snap, ok := s.backend.(Snapshotter)
	if !ok {
		return fmt.Errorf("%w: backend at %s cannot export", models.ErrNotSupported, s.backend.Location())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := snap.Export(ctx, s.collection, path); err != nil {
		return fmt.Errorf("%w: failed to export collection: %v", models.ErrBackend, err)
	}
	return nil
}

func (s *Store) Import(ctx context.Context, path string) error {
	snap, ok := s.backend.(Snapshotter)
	if !ok {
		return fmt.Errorf("%w: backend at %s cannot import", models.ErrNotSupported, s.backend.Location())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := snap.Import(ctx, s.collection, path); err != nil {
		return fmt.Errorf("%w: failed to import collection: %v", models.ErrBackend, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
