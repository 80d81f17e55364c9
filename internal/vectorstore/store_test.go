package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-chat/internal/models"
)

// memBackend keeps collections in maps and uses squared euclidean distance
type memBackend struct {
	mu          sync.Mutex
	collections map[string]map[string]Entry
	failQuery   error
	drops       int
}

func newMemBackend() *memBackend {
	return &memBackend{collections: map[string]map[string]Entry{}}
}

func (b *memBackend) Lookup(_ context.Context, c string) (CollectionState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[c]; ok {
		return CollectionFound, nil
	}
	return CollectionNotFound, nil
}

func (b *memBackend) Create(_ context.Context, c string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[c]; !ok {
		b.collections[c] = map[string]Entry{}
	}
	return nil
}

func (b *memBackend) Drop(_ context.Context, c string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections, c)
	b.drops++
	return nil
}

func (b *memBackend) Upsert(_ context.Context, c string, entries []Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		b.collections[c][e.ID] = e
	}
	return nil
}

func (b *memBackend) Query(_ context.Context, c string, v []float32, topK int) ([]Hit, error) {
	if b.failQuery != nil {
		return nil, b.failQuery
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var hits []Hit
	for _, e := range b.collections[c] {
		d := 0.0
		for i := range v {
			diff := float64(v[i] - e.Embedding[i])
			d += diff * diff
		}
		hits = append(hits, Hit{ID: e.ID, Content: e.Content, Metadata: e.Metadata, Distance: d})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (b *memBackend) Count(_ context.Context, c string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.collections[c]), nil
}

func (b *memBackend) DeleteWhere(_ context.Context, c string, where map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.collections[c] {
		match := true
		for k, v := range where {
			if e.Metadata[k] != v {
				match = false
			}
		}
		if match {
			delete(b.collections[c], id)
		}
	}
	return nil
}

func (b *memBackend) Location() string { return "mem" }
func (b *memBackend) Close() error     { return nil }

// axisEmbedder maps a text to a one-hot vector chosen by a lookup table
type axisEmbedder struct {
	axes map[string]int
	dim  int
	err  error
}

func (e *axisEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	if i, ok := e.axes[text]; ok {
		v[i] = 1
	}
	return v
}

func (e *axisEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func chunk(id, content, source string, page int) models.Chunk {
	return models.Chunk{
		ChunkID:    id,
		Content:    content,
		Source:     source,
		PageNumber: page,
		Metadata:   map[string]string{models.MetaFileName: source},
	}
}

func newTestStore(t *testing.T) (*Store, *memBackend, *axisEmbedder) {
	t.Helper()
	backend := newMemBackend()
	emb := &axisEmbedder{axes: map[string]int{"alpha": 0, "beta": 1, "gamma": 2}, dim: 3}
	s, err := New(context.Background(), backend, emb, "documents")
	require.NoError(t, err)
	return s, backend, emb
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(0))
	assert.Equal(t, 0.5, Similarity(1))
	assert.InDelta(t, 1.0/3, Similarity(2), 1e-12)
	assert.Equal(t, 1.0, Similarity(-0.1), "negative distance clamps to zero")

	prev := Similarity(0)
	for d := 0.1; d < 10; d += 0.1 {
		cur := Similarity(d)
		assert.Less(t, cur, prev, "monotonically decreasing")
		assert.Greater(t, cur, 0.0)
		prev = cur
	}
}

func TestNew_CreatesCollectionOnce(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	emb := &axisEmbedder{dim: 3}

	_, err := New(ctx, backend, emb, "documents")
	require.NoError(t, err)
	state, err := backend.Lookup(ctx, "documents")
	require.NoError(t, err)
	assert.Equal(t, CollectionFound, state)

	backend.collections["documents"]["keep"] = Entry{ID: "keep", Embedding: []float32{1, 0, 0}}
	_, err = New(ctx, backend, emb, "documents")
	require.NoError(t, err)
	assert.Len(t, backend.collections["documents"], 1, "existing collection is reused")
}

func addChunks(t *testing.T, s *Store, chunks []models.Chunk) {
	t.Helper()
	skipped, err := s.AddChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Empty(t, skipped)
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	addChunks(t, s, []models.Chunk{
		chunk("a", "alpha", "/d/a.txt", 0),
		chunk("b", "beta", "/d/b.pdf", 2),
	})

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, "documents", stats.CollectionName)
	assert.Equal(t, "mem", stats.Location)

	q, err := s.EmbedOne(ctx, "alpha")
	require.NoError(t, err)
	matches, err := s.Query(ctx, q, 5, 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, 1.0, matches[0].SimilarityScore)
	assert.InDelta(t, 1.0/3, matches[1].SimilarityScore, 1e-9)
	assert.Equal(t, "/d/b.pdf", matches[1].Metadata[models.MetaSource])
	assert.Equal(t, "2", matches[1].Metadata[models.MetaPageNumber])
	assert.Equal(t, "b", matches[1].Metadata[models.MetaChunkID])

	filtered, err := s.Query(ctx, q, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}

func TestUpsert_OverwritesByID(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	addChunks(t, s, []models.Chunk{chunk("a", "alpha", "/d/a.txt", 0)})
	addChunks(t, s, []models.Chunk{chunk("a", "beta", "/d/a.txt", 0)})

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)

	q, _ := s.EmbedOne(ctx, "beta")
	matches, err := s.Query(ctx, q, 1, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "beta", matches[0].Content)
}

func TestUpsert_LengthMismatch(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Upsert(context.Background(), []models.Chunk{chunk("a", "alpha", "x", 0)}, nil)
	assert.ErrorIs(t, err, models.ErrBackend)
}

func TestUpsert_EmptyAndZeroVectors(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	skipped, err := s.Upsert(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	skipped, err = s.AddChunks(ctx, []models.Chunk{
		chunk("a", "alpha", "x", 0),
		chunk("z", "unknown words", "y", 0),
	})
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "z", skipped[0].ChunkID)
	assert.Equal(t, "y", skipped[0].Source)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments, "only the chunk with a direction is written")

	skipped, err = s.AddChunks(ctx, []models.Chunk{chunk("z2", "unknown", "y", 0)})
	require.NoError(t, err)
	assert.Len(t, skipped, 1, "a batch of empty embeddings writes nothing")
}

func TestQuery_EdgeCases(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	t.Run("empty collection", func(t *testing.T) {
		matches, err := s.Query(ctx, []float32{1, 0, 0}, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("zero vector", func(t *testing.T) {
		addChunks(t, s, []models.Chunk{chunk("a", "alpha", "x", 0)})
		matches, err := s.Query(ctx, []float32{0, 0, 0}, 5, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("non-positive k", func(t *testing.T) {
		matches, err := s.Query(ctx, []float32{1, 0, 0}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("backend failure", func(t *testing.T) {
		backend.failQuery = errors.New("connection refused")
		defer func() { backend.failQuery = nil }()
		_, err := s.Query(ctx, []float32{1, 0, 0}, 5, 0)
		assert.ErrorIs(t, err, models.ErrBackend)
	})
}

func TestEmbed_Failure(t *testing.T) {
	ctx := context.Background()
	s, _, emb := newTestStore(t)
	emb.err = errors.New("model not loaded")

	_, err := s.EmbedOne(ctx, "alpha")
	assert.ErrorIs(t, err, models.ErrBackend)
	_, err = s.AddChunks(ctx, []models.Chunk{chunk("a", "alpha", "x", 0)})
	assert.ErrorIs(t, err, models.ErrBackend)

	vectors, err := s.EmbedMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	addChunks(t, s, []models.Chunk{chunk("a", "alpha", "x", 0)})

	require.NoError(t, s.Reset(ctx))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
	assert.Equal(t, 1, backend.drops)

	// collection already gone
	delete(backend.collections, "documents")
	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 1, backend.drops)
	state, _ := backend.Lookup(ctx, "documents")
	assert.Equal(t, CollectionFound, state)
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	addChunks(t, s, []models.Chunk{
		chunk("a1", "alpha", "/d/a.txt", 0),
		chunk("a2", "gamma", "/d/a.txt", 0),
		chunk("b", "beta", "/d/b.txt", 0),
	})

	require.NoError(t, s.DeleteSource(ctx, "/d/a.txt"))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
}

func TestSnapshot_NotSupported(t *testing.T) {
	s, _, _ := newTestStore(t)
	assert.ErrorIs(t, s.Export(context.Background(), "out.gob"), models.ErrNotSupported)
	assert.ErrorIs(t, s.Import(context.Background(), "out.gob"), models.ErrNotSupported)
}

func TestConcurrentWritesAndReads(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_, err := s.AddChunks(ctx, []models.Chunk{chunk(id, "alpha", "x", 0)})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.Query(ctx, []float32{1, 0, 0}, 3, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.TotalDocuments)
}
