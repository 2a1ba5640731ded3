// Package core holds the value types shared across package boundaries:
// chat messages, retrieved context items, and the stat shapes the memory
// layer reports. It has no dependencies on the rest of the module.
package core

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged turn sent to a chat-completion backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ContextItem is a transient projection of a stored memory record,
// produced for a single query and never persisted.
type ContextItem struct {
	// Source is the originating metadata's declared source, or a
	// positional placeholder like "memory_2" when the metadata has none.
	Source string `json:"source"`
	Text   string `json:"text"`
}

// MemoryStats reports counts from the memory store.
type MemoryStats struct {
	TotalItems int `json:"total_items"`
}
