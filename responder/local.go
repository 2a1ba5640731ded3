package responder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// defaultLocalMaxNewTokens caps local generation length.
const defaultLocalMaxNewTokens = 128

// minAnswerLength is the minimum-quality gate: anything shorter gets
// wrapped in a clarifying fallback.
const minAnswerLength = 10

// lowInformation lists bare replies a weak local model tends to produce
// that carry no usable content.
var lowInformation = map[string]bool{
	"yes":  true,
	"no":   true,
	"ok":   true,
	"sure": true,
}

// Local is the fast in-process backend. Its generator is initialized
// lazily, exactly once for the lifetime of the process, behind a race-safe
// guard; concurrent first callers share the single initialization. If the
// loader fails or none is configured, the RuleBased stand-in takes over,
// so local generation can never be fatally unavailable.
type Local struct {
	loader func() (Generator, error)

	once sync.Once
	gen  Generator
}

// NewLocal creates the local backend. loader produces the real model
// handle on first use; pass nil to run on the rule-based stand-in.
func NewLocal(loader func() (Generator, error)) *Local {
	return &Local{loader: loader}
}

// Name returns "local".
func (l *Local) Name() string {
	return "local"
}

// Generate runs the local generator over req.Prompt and applies the
// minimum-quality gate against req.Query.
func (l *Local) Generate(ctx context.Context, req *Request) (string, error) {
	maxNew := req.MaxTokens
	if maxNew == 0 {
		maxNew = defaultLocalMaxNewTokens
	}

	raw, err := l.generator().Generate(ctx, req.Prompt, maxNew)
	if err != nil {
		return "", fmt.Errorf("local generation: %w", err)
	}

	return gate(raw, req.Query), nil
}

// generator returns the process-wide model handle, loading it at most once.
func (l *Local) generator() Generator {
	l.once.Do(func() {
		if l.loader == nil {
			l.gen = RuleBased{}
			return
		}
		log.Printf("[LOCAL] Loading local model...")
		gen, err := l.loader()
		if err != nil {
			log.Printf("[LOCAL] Model load failed, using rule-based stand-in: %v", err)
			l.gen = RuleBased{}
			return
		}
		l.gen = gen
	})
	return l.gen
}

// gate compensates for a weak local model's tendency to produce
// non-answers. Empty output becomes a canned clarification; very short or
// low-information output is wrapped in a sentence that echoes the original
// query and asks for more detail.
func gate(raw, query string) string {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "I'd be happy to help you with that. Could you provide a bit " +
			"more context or rephrase your question?"
	}
	if len(answer) < minAnswerLength || lowInformation[strings.ToLower(answer)] {
		return fmt.Sprintf("I understand your question about '%s'. %s Could you "+
			"provide more details so I can give you a better answer?", query, answer)
	}
	return answer
}
