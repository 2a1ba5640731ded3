// Package agent orchestrates one request through the fixed four-stage
// pipeline: retrieve relevant memory, route to a backend, generate a
// response, persist new facts. Stages run in order, never branch back, and
// every internal failure degrades at its stage boundary; nothing below
// Ask is allowed to terminate a request.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anigma-ai/anigma/core"
	"github.com/anigma-ai/anigma/responder"
	"github.com/anigma-ai/anigma/router"
)

// defaultRetrieveK is how many context items the retrieve stage asks for.
const defaultRetrieveK = 5

// rememberMarker prefixes lines the user wants stored verbatim.
const rememberMarker = "remember:"

// contextSummaryLimit caps the context excerpt embedded in local prompts.
const contextSummaryLimit = 300

// remoteSystemPrompt is the system instruction sent with remote requests.
const remoteSystemPrompt = "You are a helpful AI assistant. Use the provided " +
	"context to answer accurately. If context is not relevant, answer based " +
	"on your knowledge."

// noContextPlaceholder stands in for the context block when retrieval
// produced nothing.
const noContextPlaceholder = "No relevant context found."

// MemoryBank is the slice of the memory contract the pipeline consumes.
type MemoryBank interface {
	QueryContext(ctx context.Context, text string, k int) ([]core.ContextItem, error)
	AddContext(ctx context.Context, text string, metadata map[string]any) (bool, error)
}

// Result is the pipeline's terminal state. There is no failed variant:
// internal failures degrade to a textual response and are listed in
// Failures for inspection.
type Result struct {
	Response       string
	ModelUsed      string
	ContextItems   int
	MemorySaved    []string
	ProcessingTime float64
	Failures       []StageFailure
}

// StageFailure records a degraded stage and why, without having affected
// the response contract.
type StageFailure struct {
	Stage  string
	Reason string
}

// requestState is the per-request aggregate threaded through the stages.
// Single-owner and short-lived: created at request start, discarded after
// the result is returned, never shared across requests.
type requestState struct {
	userInput        string
	userID           string
	retrievedContext []core.ContextItem
	selection        router.Decision
	finalResponse    string
	memorySaved      []string
	failures         []StageFailure
}

func (s *requestState) fail(stage, reason string) {
	s.failures = append(s.failures, StageFailure{Stage: stage, Reason: reason})
}

// Pipeline composes the memory store, router, and responders.
type Pipeline struct {
	memory    MemoryBank
	router    *router.Router
	local     responder.Responder
	remote    responder.Responder
	retrieveK int
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithRetrieveK overrides how many context items are retrieved per query.
func WithRetrieveK(k int) Option {
	return func(p *Pipeline) {
		p.retrieveK = k
	}
}

// New creates a pipeline over the given collaborators.
func New(memory MemoryBank, rtr *router.Router, local, remote responder.Responder, opts ...Option) *Pipeline {
	p := &Pipeline{
		memory:    memory,
		router:    rtr,
		local:     local,
		remote:    remote,
		retrieveK: defaultRetrieveK,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask runs one request through the four stages and always returns a
// result. The stages share the request state in order; no stage runs
// concurrently with another for the same request.
func (p *Pipeline) Ask(ctx context.Context, userID, userInput string) *Result {
	state := &requestState{
		userInput:   userInput,
		userID:      userID,
		memorySaved: []string{},
	}

	start := time.Now()

	// === STAGE 1: RETRIEVE ===
	p.retrieve(ctx, state)

	// === STAGE 2: ROUTE ===
	p.route(state)

	// === STAGE 3: GENERATE ===
	p.generate(ctx, state)

	// === STAGE 4: PERSIST ===
	p.persist(ctx, state)

	return &Result{
		Response:       state.finalResponse,
		ModelUsed:      state.selection.String(),
		ContextItems:   len(state.retrievedContext),
		MemorySaved:    state.memorySaved,
		ProcessingTime: time.Since(start).Seconds(),
		Failures:       state.failures,
	}
}

// retrieve populates the request's context from memory. Any failure
// degrades to empty context; this stage never fails the request.
func (p *Pipeline) retrieve(ctx context.Context, state *requestState) {
	items, err := p.memory.QueryContext(ctx, state.userInput, p.retrieveK)
	if err != nil {
		log.Printf("[AGENT] Context retrieval failed: %v", err)
		state.fail("retrieve", err.Error())
		state.retrievedContext = nil
		return
	}
	state.retrievedContext = items
	log.Printf("[AGENT] Retrieved %d context items", len(items))
}

// route estimates the context size as the total word count across the
// labeled context lines and asks the router for a backend.
func (p *Pipeline) route(state *requestState) {
	contextTokens := 0
	for _, line := range labelContext(state.retrievedContext) {
		contextTokens += len(strings.Fields(line))
	}
	state.selection = p.router.Decide(state.userInput, contextTokens)
	log.Printf("[AGENT] Using %s model", state.selection)
}

// generate builds the backend-appropriate input and invokes the selected
// responder. A responder error becomes an apologetic response; the request
// still proceeds to the persist stage.
func (p *Pipeline) generate(ctx context.Context, state *requestState) {
	var req *responder.Request
	var backend responder.Responder

	if state.selection == router.Remote {
		backend = p.remote
		req = &responder.Request{
			Messages: []core.Message{
				{Role: core.RoleSystem, Content: remoteSystemPrompt},
				{Role: core.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
					joinContext(state.retrievedContext), state.userInput)},
			},
			Query: state.userInput,
		}
	} else {
		backend = p.local
		req = &responder.Request{
			Prompt: localPrompt(state.retrievedContext, state.userInput),
			Query:  state.userInput,
		}
	}

	text, err := backend.Generate(ctx, req)
	if err != nil {
		log.Printf("[AGENT] Response generation failed: %v", err)
		state.fail("generate", err.Error())
		state.finalResponse = fmt.Sprintf("Sorry, I encountered an error: %s", err)
		return
	}
	state.finalResponse = text
}

// persist stores explicit remember-facts and the conversation itself.
// Failures here are logged and swallowed; the response computed in the
// generate stage is never changed by this stage.
func (p *Pipeline) persist(ctx context.Context, state *requestState) {
	now := time.Now().UTC().Format(time.RFC3339)

	for _, line := range strings.Split(state.userInput, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(rememberMarker) || !strings.EqualFold(trimmed[:len(rememberMarker)], rememberMarker) {
			continue
		}
		fact := strings.TrimSpace(trimmed[len(rememberMarker):])
		if fact == "" {
			continue
		}

		inserted, err := p.memory.AddContext(ctx, fact, map[string]any{
			"source":    "user_request",
			"timestamp": now,
			"user_id":   state.userID,
		})
		if err != nil {
			log.Printf("[AGENT] Failed to save memory item: %v", err)
			state.fail("persist", err.Error())
			continue
		}
		if !inserted {
			log.Printf("[AGENT] Memory item already known: %q", fact)
		}
		state.memorySaved = append(state.memorySaved, fact)
	}

	conversation := fmt.Sprintf("User asked: %s\nAssistant replied: %s",
		state.userInput, state.finalResponse)
	_, err := p.memory.AddContext(ctx, conversation, map[string]any{
		"source":    "conversation",
		"timestamp": now,
		"user_id":   state.userID,
		"type":      "qa_pair",
	})
	if err != nil {
		log.Printf("[AGENT] Failed to save conversation: %v", err)
		state.fail("persist", err.Error())
	}
}

// labelContext renders items as "[source]: text" lines for prompts and
// size estimation.
func labelContext(items []core.ContextItem) []string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("[%s]: %s", item.Source, item.Text)
	}
	return lines
}

// joinContext renders the context block for remote prompts.
func joinContext(items []core.ContextItem) string {
	if len(items) == 0 {
		return noContextPlaceholder
	}
	return strings.Join(labelContext(items), "\n")
}

// localPrompt builds the conversational prompt for the local model,
// embedding a truncated context summary when any context was retrieved.
func localPrompt(items []core.ContextItem, userInput string) string {
	if len(items) == 0 {
		return fmt.Sprintf("User: %s\nAssistant:", userInput)
	}

	summary := strings.Join(labelContext(items), "\n")
	if len(summary) > contextSummaryLimit {
		summary = summary[:contextSummaryLimit] + "..."
	}
	return fmt.Sprintf("Based on this information: %s\n\nUser: %s\nAssistant:", summary, userInput)
}
