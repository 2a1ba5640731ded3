// Package chromem backs the memory.Store interface with chromem-go,
// a pure Go embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/anigma-ai/anigma/memory"
)

// collectionName is the single collection holding all assistant memory.
const collectionName = "agent_memory"

// Store wraps a chromem-go collection.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
}

// New creates a chromem-backed store. With an empty path the database lives
// in memory; otherwise records are persisted under path and survive restarts.
func New(path string) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	return &Store{db: db, col: col}, nil
}

// Insert saves a record with its embedding.
func (s *Store) Insert(ctx context.Context, rec memory.Record) error {
	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata:  rec.Metadata,
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search retrieves the k nearest records by cosine similarity.
// chromem-go rejects result counts larger than the collection, so the
// requested k is clamped to the current size.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]memory.SearchResult, error) {
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k < 1 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	out := make([]memory.SearchResult, 0, len(results))
	for _, res := range results {
		out = append(out, memory.SearchResult{
			Record: memory.Record{
				ID:        res.ID,
				Text:      res.Content,
				Embedding: res.Embedding,
				Metadata:  res.Metadata,
			},
			Similarity: res.Similarity,
		})
	}
	return out, nil
}

// ContainsText reports whether a record with byte-identical trimmed text
// already exists, by querying with a content filter and comparing exactly.
func (s *Store) ContainsText(ctx context.Context, text string, embedding []float32) (bool, error) {
	if s.col.Count() == 0 {
		return false, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, 1, nil, map[string]string{"$contains": text})
	if err != nil {
		// chromem reports an empty filtered set as an nResults error,
		// which simply means no candidate duplicates.
		if isInsufficientDocsError(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe documents: %w", err)
	}

	for _, res := range results {
		if strings.TrimSpace(res.Content) == text {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.col.Count(), nil
}

// DeleteWhere removes records whose metadata matches every key/value in
// filter and reports how many were removed.
func (s *Store) DeleteWhere(ctx context.Context, filter map[string]string) (int, error) {
	before := s.col.Count()
	if before == 0 {
		return 0, nil
	}
	if err := s.col.Delete(ctx, filter, nil); err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	removed := before - s.col.Count()
	if removed > 0 {
		log.Printf("[CHROMEM] Deleted %d documents", removed)
	}
	return removed, nil
}

// Close releases resources. chromem persists on mutation, so there is
// nothing to flush.
func (s *Store) Close() error {
	return nil
}

// isInsufficientDocsError checks whether err is chromem's complaint that
// fewer documents matched than results were requested.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
