package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-chat/internal/chromemdb"
	"document-chat/internal/config"
	"document-chat/internal/embedding"
	"document-chat/internal/models"
	"document-chat/internal/vectorstore"
)

const mlSentence = "Machine learning is a subset of artificial intelligence."

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.VectorStore.InMemory = true
	cfg.EmbedLLM = config.LLMConfig{Provider: config.ProviderHash, Dimensions: 512}
	cfg.InferenceLLM = config.LLMConfig{Provider: config.ProviderNone}
	cfg.Retrieval.ConfidenceThreshold = 0.4
	return cfg
}

func openTestRAG(t *testing.T, cfg *config.Config) *RAG {
	t.Helper()
	r, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mlFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDoc(t, dir, "ml.txt", mlSentence)
	return dir
}

func TestScenarioA_IngestAndAnswer(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())

	res := r.IngestFolder(ctx, mlFolder(t))
	require.True(t, res.Success, res.Message)
	assert.GreaterOrEqual(t, res.Stats.NewChunks, 1)
	assert.Equal(t, 1, res.Stats.FilesProcessed)
	assert.Equal(t, 1, res.Stats.TotalDocuments)
	assert.Equal(t, "documents", res.Stats.CollectionName)

	resp := r.Ask(ctx, "What is machine learning?", 0)
	assert.Empty(t, resp.Error)
	assert.Greater(t, resp.Confidence, 0.0)
	assert.Contains(t, resp.Answer, "[ml.txt]")
	assert.Equal(t, []string{"[ml.txt]"}, resp.Citations)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "ml.txt", filepath.Base(resp.Sources[0]))

	require.Len(t, resp.RetrievalResults, 1)
	assert.Equal(t, "ml.txt", resp.RetrievalResults[0].Source)
	assert.Equal(t, mlSentence, resp.RetrievalResults[0].Content)
	assert.Greater(t, resp.RetrievalResults[0].Score, 0.4)
	assert.GreaterOrEqual(t, resp.TotalTime, resp.GenerationTime)
}

func TestScenarioB_Unrelated(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	require.True(t, r.IngestFolder(ctx, mlFolder(t)).Success)

	resp := r.Ask(ctx, "What is the weather today?", 0)
	refused := strings.Contains(resp.Answer, "I don't know")
	assert.True(t, resp.Confidence < 0.4 || refused)
	assert.Equal(t, models.NoResultsAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Citations)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.RetrievalResults)
}

func TestScenarioC_EmptyFolder(t *testing.T) {
	r := openTestRAG(t, testConfig())

	res := r.IngestFolder(context.Background(), t.TempDir())
	assert.False(t, res.Success)
	assert.Zero(t, res.Stats.NewChunks)
	assert.Equal(t, noDocumentsMessage, res.Message)
}

func TestScenarioD_ExtractiveWithoutLLM(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	require.False(t, r.generator.HasLLM())

	dir := t.TempDir()
	writeDoc(t, dir, "ml.txt", mlSentence+" Supervised machine learning relies on labeled training examples.")
	writeDoc(t, dir, "cooking.txt", "Bread dough needs flour, water, salt and yeast before it can rise in a warm oven.")
	require.True(t, r.IngestFolder(ctx, dir).Success)

	resp := r.Ask(ctx, "What is machine learning?", 0)
	require.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.Answer)
	assert.True(t, strings.HasPrefix(resp.Answer, "Machine learning is a subset of artificial intelligence."), resp.Answer)
	assert.Contains(t, resp.Answer, "Supervised machine learning relies on labeled training examples.")
	assert.NotContains(t, resp.Answer, "flour")
}

func TestIngestFolder_NotFound(t *testing.T) {
	r := openTestRAG(t, testConfig())
	missing := filepath.Join(t.TempDir(), "missing")

	res := r.IngestFolder(context.Background(), missing)
	assert.False(t, res.Success)
	assert.Zero(t, res.Stats.NewChunks)
	assert.Equal(t, "Folder not found: "+missing, res.Message)
}

func TestIngestFolder_IsolatesBadFiles(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())

	dir := mlFolder(t)
	writeDoc(t, dir, "nested/deep/ai.md", "# Notes\n\nArtificial intelligence covers planning, reasoning and machine learning.")
	writeDoc(t, dir, "table.csv", "a,b,c")
	writeDoc(t, dir, "broken.pdf", "not a pdf at all")
	writeDoc(t, dir, ".hidden/secret.txt", "this hidden file must never be ingested by the folder walk")

	res := r.IngestFolder(ctx, dir)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.Stats.FilesProcessed)
	assert.Equal(t, 2, res.Stats.NewChunks)
	assert.Equal(t, "Successfully processed 2 chunks from 2 files", res.Message)

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[filepath.Base(s.Path)] = s.Reason
	}
	assert.Len(t, reasons, 2)
	assert.Contains(t, reasons["table.csv"], "unsupported")
	assert.Contains(t, reasons["broken.pdf"], "extraction failed")

	assert.Equal(t, []string{"ai.md", "ml.txt"}, r.AvailableSources(ctx))
}

func TestIngest_ChunksWithoutTermsAreNotCounted(t *testing.T) {
	ctx := context.Background()
	symbols := strings.Repeat("---- ==== **** ", 6)

	t.Run("only symbols", func(t *testing.T) {
		r := openTestRAG(t, testConfig())
		dir := t.TempDir()
		writeDoc(t, dir, "sym.txt", symbols)

		res := r.IngestFolder(ctx, dir)
		assert.False(t, res.Success)
		assert.Equal(t, noEmbeddingMessage, res.Message)
		assert.Zero(t, res.Stats.NewChunks)
		assert.Zero(t, res.Stats.TotalDocuments)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "sym.txt", filepath.Base(res.Skipped[0].Path))
		assert.Contains(t, res.Skipped[0].Reason, "empty embedding")

		single := r.IngestFile(ctx, filepath.Join(dir, "sym.txt"))
		assert.False(t, single.Success)
		assert.Zero(t, single.Stats.NewChunks)
		assert.Len(t, single.Skipped, 1)
	})

	t.Run("mixed with text", func(t *testing.T) {
		r := openTestRAG(t, testConfig())
		dir := mlFolder(t)
		writeDoc(t, dir, "sym.txt", symbols)

		res := r.IngestFolder(ctx, dir)
		require.True(t, res.Success, res.Message)
		assert.Equal(t, 2, res.Stats.FilesProcessed)
		assert.Equal(t, 1, res.Stats.NewChunks)
		assert.Equal(t, res.Stats.TotalDocuments, res.Stats.NewChunks)
		assert.Equal(t, "Successfully processed 1 chunks from 2 files", res.Message)
		require.Len(t, res.Skipped, 1)
		assert.Equal(t, "sym.txt", filepath.Base(res.Skipped[0].Path))
	})
}

func TestIngestFolder_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	dir := mlFolder(t)

	first := r.IngestFolder(ctx, dir)
	second := r.IngestFolder(ctx, dir)
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Stats.TotalDocuments, second.Stats.TotalDocuments, "same chunk ids overwrite")

	writeDoc(t, dir, "more.txt", "Deep learning is a family of machine learning methods based on neural networks.")
	third := r.IngestFolder(ctx, dir)
	assert.Greater(t, third.Stats.TotalDocuments, second.Stats.TotalDocuments)
}

type flakyEmbedder struct {
	*embedding.HashEmbedder
	calls     int
	failAfter int
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("embedding server unavailable")
	}
	return f.HashEmbedder.EmbedDocuments(ctx, texts)
}

func TestIngestFolder_BatchFailureReportsStored(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.VectorStore.BatchSize = 1

	backend, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	store, err := vectorstore.New(ctx, backend, &flakyEmbedder{HashEmbedder: embedding.NewHashEmbedder(512), failAfter: 1}, "documents")
	require.NoError(t, err)
	r, err := NewRAG(cfg, store, nil)
	require.NoError(t, err)

	dir := mlFolder(t)
	writeDoc(t, dir, "second.txt", "Reinforcement learning trains agents through rewards and penalties over time.")

	res := r.IngestFolder(ctx, dir)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Stats.NewChunks)
	assert.Equal(t, 1, res.Stats.TotalDocuments)
	assert.Contains(t, res.Message, "embedding server unavailable")
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	dir := t.TempDir()

	res := r.IngestFile(ctx, writeDoc(t, dir, "ml.txt", mlSentence))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, res.Stats.NewChunks)

	res = r.IngestFile(ctx, filepath.Join(dir, "missing.txt"))
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "File not found: "))

	res = r.IngestFile(ctx, writeDoc(t, dir, "data.csv", "a,b"))
	assert.False(t, res.Success)
	require.Len(t, res.Skipped, 1)

	res = r.IngestFile(ctx, writeDoc(t, dir, "tiny.txt", "too short"))
	assert.False(t, res.Success)
	assert.Equal(t, noTextMessage, res.Message)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	require.True(t, r.IngestFolder(ctx, mlFolder(t)).Success)

	results := r.Search(ctx, "machine learning", 0, "")
	require.Len(t, results, 1)
	assert.Equal(t, "ml.txt", results[0].Source)
	assert.Equal(t, []string{"[ml.txt]"}, results[0].Citations)
	assert.Equal(t, roundScore(results[0].SimilarityScore), results[0].SimilarityScore)

	assert.Empty(t, r.Search(ctx, "weather today", 0, ""))
	assert.Len(t, r.Search(ctx, "machine learning", 0, "ML.TXT"), 1)
	assert.Empty(t, r.Search(ctx, "machine learning", 0, "report"))
}

func TestStatsResetDelete(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	r := openTestRAG(t, cfg)
	dir := mlFolder(t)
	other := writeDoc(t, dir, "other.txt", "Neural networks are layered function approximators used in deep learning.")
	require.True(t, r.IngestFolder(ctx, dir).Success)

	stats := r.Stats(ctx)
	assert.Empty(t, stats.Error)
	assert.Equal(t, 2, stats.VectorStore.TotalDocuments)
	assert.Equal(t, cfg.VectorStore.ChunkSize, stats.ChunkSize)
	assert.Equal(t, cfg.VectorStore.ChunkOverlap, stats.ChunkOverlap)
	assert.Equal(t, cfg.Retrieval.K, stats.RetrievalK)
	assert.Equal(t, 0.4, stats.ConfidenceThreshold)

	del := r.DeleteSource(ctx, other)
	require.True(t, del.Success, del.Message)
	assert.Equal(t, 1, r.Stats(ctx).VectorStore.TotalDocuments)
	assert.Equal(t, []string{"ml.txt"}, r.AvailableSources(ctx))

	reset := r.Reset(ctx)
	require.True(t, reset.Success)
	assert.Equal(t, "Knowledge base reset successfully", reset.Message)
	assert.Zero(t, r.Stats(ctx).VectorStore.TotalDocuments)
	assert.Empty(t, r.AvailableSources(ctx))

	require.True(t, r.Reset(ctx).Success, "reset of an empty collection")

	resp := r.Ask(ctx, "What is machine learning?", 0)
	assert.Equal(t, models.NoResultsAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	r := openTestRAG(t, testConfig())
	require.True(t, r.IngestFolder(ctx, mlFolder(t)).Success)

	file := filepath.Join(t.TempDir(), "documents.gob")
	exp := r.Export(ctx, file)
	require.True(t, exp.Success, exp.Message)

	fresh := openTestRAG(t, testConfig())
	imp := fresh.Import(ctx, file)
	require.True(t, imp.Success, imp.Message)
	assert.Equal(t, 1, fresh.Stats(ctx).VectorStore.TotalDocuments)

	resp := fresh.Ask(ctx, "What is machine learning?", 0)
	assert.Contains(t, resp.Answer, "[ml.txt]")
}

type panicBackend struct {
	*chromemdb.VectorDBManager
}

func (p panicBackend) Query(context.Context, string, []float32, int) ([]vectorstore.Hit, error) {
	panic("index corrupted")
}

func TestAsk_RecoversPanics(t *testing.T) {
	ctx := context.Background()
	m, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	store, err := vectorstore.New(ctx, panicBackend{m}, embedding.NewHashEmbedder(64), "documents")
	require.NoError(t, err)
	r, err := NewRAG(testConfig(), store, nil)
	require.NoError(t, err)

	resp := r.Ask(ctx, "What is machine learning?", 3)
	assert.Equal(t, models.ProcessingErrorAnswer, resp.Answer)
	assert.Contains(t, resp.Error, "index corrupted")
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Citations)

	assert.Empty(t, r.Search(ctx, "anything", 3, ""))
	assert.Empty(t, r.AvailableSources(ctx))
}

func TestNewRAG_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.VectorStore.ChunkOverlap = cfg.VectorStore.ChunkSize
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestOpen_Pgvector_NoDSN(t *testing.T) {
	cfg := testConfig()
	cfg.VectorStore.Backend = config.BackendPgvector
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}
