// Package responder abstracts the two generation backends behind one
// contract: a fast local model and a heavy remote one. Backend selection
// happens upstream in the router; this package only knows how to turn a
// prepared input into text without ever letting a backend failure escape
// as anything worse than an error sentence.
package responder

import (
	"context"

	"github.com/anigma-ai/anigma/core"
)

// Request carries the input for one generation call. The local variant
// reads Prompt and Query; the remote variant reads Messages. MaxTokens of
// zero means the variant's default.
type Request struct {
	Messages  []core.Message
	Prompt    string
	Query     string
	MaxTokens int
}

// Responder is a generation backend.
type Responder interface {
	// Name returns the backend's wire name ("local" or "remote").
	Name() string

	// Generate produces text for the request. Implementations recover
	// expected failures (missing credentials, transport errors) into
	// human-readable sentences; a returned error means something the
	// caller should report, and the pipeline degrades it to an apology.
	Generate(ctx context.Context, req *Request) (string, error)
}
