// Package memory provides the retrieval-augmented memory layer for the
// assistant: a content-addressed, append-only collection of
// (text, embedding, metadata) records queryable by semantic similarity.
//
// Architecture:
//   - Store: vector storage backend (chromem-go embedded DB locally,
//     swappable for a server-backed vector store in production)
//   - Embedder: text-to-vector conversion (mock for tests, ONNX
//     all-MiniLM-L6-v2 behind the onnx build tag, ristretto cache wrapper)
//   - ContextManager: the contract the agent pipeline consumes:
//     AddContext, QueryContext, Stats, ClearWhere
//
// Consistency notes:
//   - Exact-duplicate suppression is a two-step exists?->insert protocol.
//     It is deliberately NOT atomic: two concurrent identical inserts can
//     both pass the probe and both land. That is an accepted weak-consistency
//     tradeoff, not a bug to fix with locking.
//   - The duplicate probe itself is best-effort. A probe failure is
//     swallowed and the insert proceeds; availability wins over perfect
//     dedup.
package memory
