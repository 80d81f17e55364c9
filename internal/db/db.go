// Package db is the PostgreSQL + pgvector vector index backend, built on bun.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-chat/internal/config"
	"document-chat/internal/vectorstore"
)

type Collection struct {
	bun.BaseModel `bun:"table:rag_collections,alias:c"`
	Name          string    `bun:"name,pk"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Document struct {
	bun.BaseModel `bun:"table:rag_chunks,alias:d"`
	Collection    string            `bun:"collection,pk"`
	ID            string            `bun:"id,pk"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull,type:vector"`
	Distance      float64           `bun:"distance,scanonly"`
}

// Store implements the vector index on top of a bun database
type Store struct {
	db  *bun.DB
	dsn string
}

var _ vectorstore.Backend = (*Store)(nil)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the DSN with the configured driver: bun's pgdriver or lib/pq
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %v", err)
		}
		return sqldb, nil
	case config.DriverPgdriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Open connects, verifies the connection and creates the schema
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: NewDB(sqldb, cfg.Debug), dsn: cfg.DSN}

	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := InitDB(ctx, s.db); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("Connected to pgvector database")
	return s, nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*Collection)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *Store) Lookup(ctx context.Context, name string) (vectorstore.CollectionState, error) {
	exists, err := s.db.NewSelect().Model((*Collection)(nil)).Where("name = ?", name).Exists(ctx)
	if err != nil {
		return vectorstore.CollectionNotFound, err
	}
	if exists {
		return vectorstore.CollectionFound, nil
	}
	return vectorstore.CollectionNotFound, nil
}

func (s *Store) Create(ctx context.Context, name string) error {
	_, err := s.db.NewInsert().
		Model(&Collection{Name: name}).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	return err
}

// drop the collection and its chunks
func (s *Store) Drop(ctx context.Context, name string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Document)(nil)).Where("collection = ?", name).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*Collection)(nil)).Where("name = ?", name).Exec(ctx)
		return err
	})
}

func (s *Store) Upsert(ctx context.Context, name string, entries []vectorstore.Entry) error {
	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = Document{
			Collection: name,
			ID:         e.ID,
			Content:    e.Content,
			Metadata:   e.Metadata,
			Embedding:  pgvector.NewVector(e.Embedding),
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&docs).
			Column("collection", "id", "content", "metadata", "embedding").
			On("CONFLICT (collection, id) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("metadata = EXCLUDED.metadata").
			Set("embedding = EXCLUDED.embedding").
			Exec(ctx)
		return err
	})
}

// Query orders by euclidean distance, the <-> operator
func (s *Store) Query(ctx context.Context, name string, vector []float32, topK int) ([]vectorstore.Hit, error) {
	var docs []Document
	err := s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "metadata").
		ColumnExpr("embedding <-> ? AS distance", pgvector.NewVector(vector)).
		Where("collection = ?", name).
		OrderExpr("distance").
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]vectorstore.Hit, len(docs))
	for i, d := range docs {
		hits[i] = vectorstore.Hit{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Distance: d.Distance,
		}
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context, name string) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Where("collection = ?", name).Count(ctx)
}

func (s *Store) DeleteWhere(ctx context.Context, name string, where map[string]string) error {
	q := s.db.NewDelete().Model((*Document)(nil)).Where("collection = ?", name)
	for k, v := range where {
		q = q.Where("metadata->>? = ?", k, v)
	}
	_, err := q.Exec(ctx)
	return err
}

// Location is the DSN with the password redacted
func (s *Store) Location() string {
	u, err := url.Parse(s.dsn)
	if err != nil {
		return "postgres"
	}
	return u.Redacted()
}

func (s *Store) Close() error {
	return s.db.Close()
}
