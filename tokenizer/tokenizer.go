// Package tokenizer counts tokens for prompt accounting. It wraps
// tiktoken's cl100k_base encoding and degrades to a characters/4 heuristic
// when the encoding can't be initialized (e.g. offline first run), so
// callers never have to branch on availability.
package tokenizer

import (
	"log"

	"github.com/pkoukk/tiktoken-go"

	"github.com/anigma-ai/anigma/core"
)

const encodingName = "cl100k_base"

// perMessageOverhead approximates the per-turn framing tokens a
// chat-completion endpoint adds around each message.
const perMessageOverhead = 4

// Tokenizer counts tokens, exactly when tiktoken is available and
// heuristically otherwise.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New returns a ready Tokenizer. Initialization failure is logged once and
// the heuristic is used from then on.
func New() *Tokenizer {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		log.Printf("[TOKENIZER] %s unavailable, using heuristic counts: %v", encodingName, err)
		return &Tokenizer{}
	}
	return &Tokenizer{encoding: encoding}
}

// Heuristic returns a Tokenizer that always estimates. Useful in tests to
// pin behavior regardless of the environment.
func Heuristic() *Tokenizer {
	return &Tokenizer{}
}

// Count returns the token count of text.
func (t *Tokenizer) Count(text string) int {
	if t.encoding != nil {
		return len(t.encoding.Encode(text, nil, nil))
	}
	// Rough BPE average for English text.
	return (len(text) + 3) / 4
}

// CountMessages returns the approximate token cost of a chat payload,
// including per-message framing overhead.
func (t *Tokenizer) CountMessages(messages []core.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.Count(msg.Content) + perMessageOverhead
	}
	return total
}
