package memory

import (
	"context"
)

// Record is a single persisted memory: text, its embedding, and flexible
// metadata. Records are immutable once stored except for deletion, and are
// owned exclusively by the Store.
//
// Metadata values are stored as strings. Callers with richer values go
// through ContextManager.AddContext, which stringifies them on the way in.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Source returns the record's declared source, or "" if none was set.
func (r Record) Source() string {
	return r.Metadata["source"]
}

// SearchResult pairs a record with its similarity to the query embedding.
type SearchResult struct {
	Record     Record
	Similarity float32
}

// Store is the vector storage backend interface.
// Implementations: chromem.Store (local SDK); a pgvector-backed store is the
// intended production swap.
type Store interface {
	// Insert saves a record. The record must have its embedding set.
	Insert(ctx context.Context, rec Record) error

	// Search retrieves the k nearest records by similarity,
	// most-similar first. An empty store yields an empty result, not
	// an error.
	Search(ctx context.Context, embedding []float32, k int) ([]SearchResult, error)

	// ContainsText reports whether a record whose trimmed text exactly
	// equals text already exists. The embedding is the caller's embedding
	// of that same text; backends that can only look up by vector use it
	// to drive the probe. Used only for duplicate suppression.
	ContainsText(ctx context.Context, text string, embedding []float32) (bool, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// DeleteWhere bulk-deletes records whose metadata matches every
	// key/value in filter, returning how many were removed. Maintenance
	// path, not on the request hot path.
	DeleteWhere(ctx context.Context, filter map[string]string) (int, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing and model-free operation),
// onnx.Embedder (local all-MiniLM-L6-v2), cache.Embedder (ristretto
// read-through wrapper).
//
// The only requirement on the algorithm is that semantically similar texts
// yield close vectors under the store's distance metric.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
