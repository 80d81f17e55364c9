// Package chromemdb is the embedded chromem-go vector index backend.
package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-chat/internal/vectorstore"
)

const memoryLocation = ":memory:"

// errNoEmbedding is returned by the collection embedding func. Every document
// and query carries its own vector, so chromem must never compute one.
var errNoEmbedding = errors.New("embeddings are computed by the gateway")

func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errNoEmbedding
}

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	inMemory      bool
	compress      bool
	encryptionKey string
}

var _ vectorstore.Backend = (*VectorDBManager)(nil)
var _ vectorstore.Snapshotter = (*VectorDBManager)(nil)

// NewVectorDBManager opens a persistent database under dbPath, or an in-memory one
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}
	log.Debug().Str("path", dbPath).Bool("in_memory", inMemory).Msg("Opened chromem database")

	return &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		inMemory:      inMemory,
		compress:      compress,
		encryptionKey: encryptionKey,
	}, nil
}

func (m *VectorDBManager) collection(name string) (*chromem.Collection, error) {
	c := m.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	return c, nil
}

func (m *VectorDBManager) Lookup(_ context.Context, name string) (vectorstore.CollectionState, error) {
	if m.db.GetCollection(name, noEmbedding) == nil {
		return vectorstore.CollectionNotFound, nil
	}
	return vectorstore.CollectionFound, nil
}

func (m *VectorDBManager) Create(_ context.Context, name string) error {
	_, err := m.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %v", err)
	}
	return nil
}

func (m *VectorDBManager) Drop(_ context.Context, name string) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}

// Upsert adds documents; chromem overwrites an existing id
func (m *VectorDBManager) Upsert(ctx context.Context, name string, entries []vectorstore.Entry) error {
	c, err := m.collection(name)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Embedding: e.Embedding,
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

// Query reports distance as the squared euclidean distance between the normalized
// vectors, derived from chromem's cosine similarity
func (m *VectorDBManager) Query(ctx context.Context, name string, vector []float32, topK int) ([]vectorstore.Hit, error) {
	c, err := m.collection(name)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size
	n := min(topK, c.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	hits := make([]vectorstore.Hit, len(results))
	for i, r := range results {
		hits[i] = vectorstore.Hit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Distance: max(0, 2-2*float64(r.Similarity)),
		}
	}
	return hits, nil
}

func (m *VectorDBManager) Count(_ context.Context, name string) (int, error) {
	c, err := m.collection(name)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (m *VectorDBManager) DeleteWhere(ctx context.Context, name string, where map[string]string) error {
	c, err := m.collection(name)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete documents: %v", err)
	}
	return nil
}

func (m *VectorDBManager) Location() string {
	if m.inMemory {
		return memoryLocation
	}
	return m.dbPath
}

func (m *VectorDBManager) exportPath(name, path string) string {
	if path != "" {
		return path
	}
	ext := ".gob"
	if m.compress {
		ext += ".gz"
	}
	if m.encryptionKey != "" {
		ext += ".enc"
	}
	return filepath.Join(m.dbPath, name+ext)
}

// Export writes the collection to a file, compressed and encrypted as configured
func (m *VectorDBManager) Export(_ context.Context, name, path string) error {
	if _, err := m.collection(name); err != nil {
		return err
	}
	path = m.exportPath(name, path)
	log.Debug().Str("collection", name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")

	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import replaces the collection with the one stored in the file
func (m *VectorDBManager) Import(_ context.Context, name, path string) error {
	path = m.exportPath(name, path)
	log.Debug().Str("collection", name).Str("file", path).Msg("Importing collection")

	if err := m.db.ImportFromFile(path, m.encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	return nil
}

// Close is a no-op; the persistent database writes through on every change
func (m *VectorDBManager) Close() error {
	return nil
}
