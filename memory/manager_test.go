package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	records []Record

	insertErr   error
	searchErr   error
	containsErr error
}

func (s *fakeStore) Insert(_ context.Context, rec Record) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, k int) ([]SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	results := make([]SearchResult, 0, k)
	for _, rec := range s.records {
		if len(results) == k {
			break
		}
		results = append(results, SearchResult{Record: rec, Similarity: 1})
	}
	return results, nil
}

func (s *fakeStore) ContainsText(_ context.Context, text string, _ []float32) (bool, error) {
	if s.containsErr != nil {
		return false, s.containsErr
	}
	for _, rec := range s.records {
		if rec.Text == text {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Count(_ context.Context) (int, error) {
	return len(s.records), nil
}

func (s *fakeStore) DeleteWhere(_ context.Context, filter map[string]string) (int, error) {
	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		match := true
		for k, v := range filter {
			if rec.Metadata[k] != v {
				match = false
				break
			}
		}
		if match {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeEmbedder returns a fixed-size vector derived from text length.
type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *fakeEmbedder) Dimensions() int { return 3 }

func TestAddContextInsertsAndAssignsID(t *testing.T) {
	store := &fakeStore{}
	mgr := NewContextManager(store, &fakeEmbedder{})

	inserted, err := mgr.AddContext(context.Background(), "  I like tea  ", map[string]any{"source": "test"})
	if err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert to be reported")
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}

	rec := store.records[0]
	if rec.Text != "I like tea" {
		t.Fatalf("expected trimmed text, got %q", rec.Text)
	}
	if rec.ID == "" {
		t.Fatal("expected a generated record id")
	}
	if len(rec.Embedding) == 0 {
		t.Fatal("expected an embedding on the stored record")
	}
	if rec.Metadata["source"] != "test" {
		t.Fatalf("expected source metadata, got %v", rec.Metadata)
	}
}

func TestAddContextIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	mgr := NewContextManager(store, &fakeEmbedder{})

	ctx := context.Background()
	if _, err := mgr.AddContext(ctx, "I like tea", nil); err != nil {
		t.Fatalf("first AddContext: %v", err)
	}

	inserted, err := mgr.AddContext(ctx, "  I like tea\n", nil)
	if err != nil {
		t.Fatalf("second AddContext: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate to be suppressed")
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record after duplicate insert, got %d", len(store.records))
	}
}

func TestAddContextEmptyTextIsNoop(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	mgr := NewContextManager(store, embedder)

	inserted, err := mgr.AddContext(context.Background(), "   \n\t ", nil)
	if err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if inserted {
		t.Fatal("expected whitespace-only text to be rejected")
	}
	if embedder.calls != 0 {
		t.Fatalf("expected no embed call for empty text, got %d", embedder.calls)
	}
}

func TestAddContextProbeFailureStillInserts(t *testing.T) {
	store := &fakeStore{containsErr: errors.New("probe down")}
	mgr := NewContextManager(store, &fakeEmbedder{})

	inserted, err := mgr.AddContext(context.Background(), "resilient fact", nil)
	if err != nil {
		t.Fatalf("AddContext: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert despite probe failure")
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.records))
	}
}

func TestAddContextEmbedFailure(t *testing.T) {
	store := &fakeStore{}
	mgr := NewContextManager(store, &fakeEmbedder{err: errors.New("model gone")})

	if _, err := mgr.AddContext(context.Background(), "text", nil); err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if len(store.records) != 0 {
		t.Fatal("expected no record on embed failure")
	}
}

func TestAddContextStringifiesMetadata(t *testing.T) {
	store := &fakeStore{}
	mgr := NewContextManager(store, &fakeEmbedder{})

	_, err := mgr.AddContext(context.Background(), "fact", map[string]any{
		"source":   "api",
		"attempts": 3,
		"flagged":  true,
	})
	if err != nil {
		t.Fatalf("AddContext: %v", err)
	}

	meta := store.records[0].Metadata
	if meta["source"] != "api" {
		t.Fatalf("string value should pass through, got %q", meta["source"])
	}
	if meta["attempts"] != "3" {
		t.Fatalf("int value should be JSON-encoded, got %q", meta["attempts"])
	}
	if meta["flagged"] != "true" {
		t.Fatalf("bool value should be JSON-encoded, got %q", meta["flagged"])
	}
}

func TestQueryContextSourceLabels(t *testing.T) {
	store := &fakeStore{records: []Record{
		{ID: "a", Text: "labeled fact", Metadata: map[string]string{"source": "user_request"}},
		{ID: "b", Text: "anonymous fact"},
	}}
	mgr := NewContextManager(store, &fakeEmbedder{})

	items, err := mgr.QueryContext(context.Background(), "fact", 5)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Source != "user_request" {
		t.Fatalf("expected declared source, got %q", items[0].Source)
	}
	if items[1].Source != "memory_1" {
		t.Fatalf("expected positional fallback label, got %q", items[1].Source)
	}
}

func TestQueryContextEmptyStore(t *testing.T) {
	mgr := NewContextManager(&fakeStore{}, &fakeEmbedder{})

	items, err := mgr.QueryContext(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items from empty store, got %d", len(items))
	}
}

func TestQueryContextSearchFailure(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("backend down")}
	mgr := NewContextManager(store, &fakeEmbedder{})

	_, err := mgr.QueryContext(context.Background(), "anything", 5)
	if err == nil {
		t.Fatal("expected search failure to surface")
	}
	if !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestStatsAndClearWhere(t *testing.T) {
	store := &fakeStore{}
	mgr := NewContextManager(store, &fakeEmbedder{})
	ctx := context.Background()

	for _, text := range []string{"keep me", "clear me", "clear me too"} {
		source := "session"
		if text == "keep me" {
			source = "pinned"
		}
		if _, err := mgr.AddContext(ctx, text, map[string]any{"source": source}); err != nil {
			t.Fatalf("AddContext %q: %v", text, err)
		}
	}

	stats, err := mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", stats.TotalItems)
	}

	removed, err := mgr.ClearWhere(ctx, map[string]string{"source": "session"})
	if err != nil {
		t.Fatalf("ClearWhere: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	stats, err = mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after clear: %v", err)
	}
	if stats.TotalItems != 1 {
		t.Fatalf("expected 1 item left, got %d", stats.TotalItems)
	}
}
