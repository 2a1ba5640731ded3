package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/anigma-ai/anigma/core"
)

// ContextManager implements the memory contract the agent pipeline consumes.
// It owns the embed-then-store and embed-then-search sequences and the
// best-effort exact-text duplicate suppression.
type ContextManager struct {
	store    Store
	embedder Embedder
}

// NewContextManager creates a ContextManager over the given store and embedder.
func NewContextManager(store Store, embedder Embedder) *ContextManager {
	return &ContextManager{
		store:    store,
		embedder: embedder,
	}
}

// AddContext embeds text and inserts it as a new record, unless a record
// with byte-identical trimmed text already exists, in which case the call
// is a no-op and returns false.
//
// The duplicate probe is best-effort: if the lookup fails, the failure is
// logged and the insert proceeds as if no duplicate was found. Keeping
// repeated small talk from bloating memory is not worth failing a write.
func (m *ContextManager) AddContext(ctx context.Context, text string, metadata map[string]any) (bool, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, nil
	}

	embedding, err := m.embedder.Embed(ctx, trimmed)
	if err != nil {
		return false, fmt.Errorf("embed text: %w", err)
	}

	exists, err := m.store.ContainsText(ctx, trimmed, embedding)
	if err != nil {
		log.Printf("[MEMORY] Duplicate probe failed, inserting anyway: %v", err)
	} else if exists {
		log.Printf("[MEMORY] Skipping duplicate: %q", truncateLog(trimmed, 50))
		return false, nil
	}

	rec := Record{
		ID:        uuid.New().String(),
		Text:      trimmed,
		Embedding: embedding,
		Metadata:  stringifyMetadata(metadata),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	return true, nil
}

// QueryContext embeds text, retrieves the k nearest records, and returns
// them as context items annotated with their declared source. Records whose
// metadata carries no source get a positional placeholder label.
//
// An empty store yields an empty slice and no error. Backend failures are
// returned to the caller; the pipeline's retrieve stage degrades them to
// "no context" rather than aborting the request.
func (m *ContextManager) QueryContext(ctx context.Context, text string, k int) ([]core.ContextItem, error) {
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := m.store.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search store: %w", err)
	}

	items := make([]core.ContextItem, 0, len(results))
	for i, res := range results {
		source := res.Record.Source()
		if source == "" {
			source = fmt.Sprintf("memory_%d", i)
		}
		items = append(items, core.ContextItem{
			Source: source,
			Text:   res.Record.Text,
		})
	}

	log.Printf("[MEMORY] Retrieved %d context items for query: %q", len(items), truncateLog(text, 50))
	return items, nil
}

// Stats reports counts from the underlying store.
func (m *ContextManager) Stats(ctx context.Context) (core.MemoryStats, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return core.MemoryStats{}, fmt.Errorf("count records: %w", err)
	}
	return core.MemoryStats{TotalItems: count}, nil
}

// ClearWhere bulk-deletes records whose metadata matches every key/value in
// filter. Intended for test and maintenance cleanup.
func (m *ContextManager) ClearWhere(ctx context.Context, filter map[string]string) (int, error) {
	removed, err := m.store.DeleteWhere(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	if removed > 0 {
		log.Printf("[MEMORY] Cleared %d records", removed)
	}
	return removed, nil
}

// stringifyMetadata flattens arbitrary metadata values into strings.
// Strings pass through; everything else is JSON-encoded.
func stringifyMetadata(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		if bytes, err := json.Marshal(v); err == nil {
			out[k] = string(bytes)
		}
	}
	return out
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
