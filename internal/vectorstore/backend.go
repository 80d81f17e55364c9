package vectorstore

import "context"

// CollectionState is the result of an existence check on a collection
type CollectionState int

const (
	CollectionNotFound CollectionState = iota
	CollectionFound
)

func (s CollectionState) String() string {
	if s == CollectionFound {
		return "found"
	}
	return "not found"
}

// Entry is the persisted form of a chunk: content, vector and metadata keyed by id
type Entry struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Hit is a nearest-neighbour match carrying the backend's native, non-negative distance
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// Backend is a persistent vector index holding named collections.
// Implementations do not need to serialize writes; the Store does.
type Backend interface {
	Lookup(ctx context.Context, collection string) (CollectionState, error)
	Create(ctx context.Context, collection string) error
	Drop(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, entries []Entry) error
	// Query returns up to topK hits ordered by ascending distance
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context, collection string) (int, error)
	DeleteWhere(ctx context.Context, collection string, where map[string]string) error
	Location() string
	Close() error
}

// Snapshotter is implemented by backends able to export and import a collection
type Snapshotter interface {
	Export(ctx context.Context, collection, path string) error
	Import(ctx context.Context, collection, path string) error
}
