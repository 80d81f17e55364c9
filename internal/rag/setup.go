package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"document-chat/internal/chromemdb"
	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/generator"
	"document-chat/internal/helper"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/vectorstore"
)

// Open builds the pipeline from configuration: embedder, vector backend, store and optional llm
func Open(ctx context.Context, cfg *config.Config) (*RAG, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, cfg.VectorStore.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New(ctx, backend, embedder, cfg.VectorStore.CollectionName)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	client, err := llmservice.NewClient(&cfg.InferenceLLM, &cfg.Generation)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	var llm generator.Completer
	if client != nil {
		llm = client
	}

	r, err := NewRAG(cfg, store, llm)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info().
		Str("backend", cfg.VectorStore.Backend).
		Str("embedder", cfg.EmbedLLM.Provider).
		Str("llm", cfg.InferenceLLM.Provider).
		Bool("generative", r.generator.HasLLM()).
		Strs("extensions", r.parser.Extensions()).
		Msg("Document chat initialized")
	return r, nil
}

// OpenBackend opens the configured vector index
func OpenBackend(ctx context.Context, cfg *config.Config) (vectorstore.Backend, error) {
	vs := cfg.VectorStore
	switch vs.Backend {
	case config.BackendChromem:
		if !vs.InMemory {
			if err := helper.CreateFolder(vs.PersistDirectory); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrBackend, err)
			}
		}
		m, err := chromemdb.NewVectorDBManager(vs.PersistDirectory, vs.InMemory, vs.Compress, vs.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrBackend, err)
		}
		return m, nil
	case config.BackendPgvector:
		s, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrBackend, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store backend %q", models.ErrInvalidConfig, vs.Backend)
	}
}
