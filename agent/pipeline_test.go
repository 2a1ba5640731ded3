package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/anigma-ai/anigma/core"
	"github.com/anigma-ai/anigma/responder"
	"github.com/anigma-ai/anigma/router"
)

// fakeMemory is an in-memory MemoryBank with injectable failures.
type fakeMemory struct {
	items []core.ContextItem

	added    []string
	metadata []map[string]any

	queryErr error
	addErr   error
}

func (m *fakeMemory) QueryContext(_ context.Context, _ string, _ int) ([]core.ContextItem, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.items, nil
}

func (m *fakeMemory) AddContext(_ context.Context, text string, metadata map[string]any) (bool, error) {
	if m.addErr != nil {
		return false, m.addErr
	}
	m.added = append(m.added, text)
	m.metadata = append(m.metadata, metadata)
	return true, nil
}

// recordingResponder captures the request it was invoked with.
type recordingResponder struct {
	name  string
	reply string
	err   error

	lastReq *responder.Request
}

func (r *recordingResponder) Name() string { return r.name }

func (r *recordingResponder) Generate(_ context.Context, req *responder.Request) (string, error) {
	r.lastReq = req
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

func newTestPipeline(mem *fakeMemory, local, remote responder.Responder) *Pipeline {
	return New(mem, router.New(nil), local, remote)
}

func TestAskRemembersFacts(t *testing.T) {
	mem := &fakeMemory{}
	local := &recordingResponder{name: "local", reply: "Saved it for you, of course."}
	p := newTestPipeline(mem, local, &recordingResponder{name: "remote"})

	result := p.Ask(context.Background(), "u1", "Remember: I like tea")

	if len(result.MemorySaved) != 1 || result.MemorySaved[0] != "I like tea" {
		t.Fatalf("expected saved fact [I like tea], got %v", result.MemorySaved)
	}
	if result.ModelUsed != "local" {
		t.Fatalf("expected local model, got %s", result.ModelUsed)
	}

	// The fact plus the conversation record.
	if len(mem.added) != 2 {
		t.Fatalf("expected 2 memory writes, got %d: %v", len(mem.added), mem.added)
	}
	if mem.added[0] != "I like tea" {
		t.Fatalf("expected fact stored first, got %q", mem.added[0])
	}
	if mem.metadata[0]["source"] != "user_request" {
		t.Fatalf("expected user_request source on fact, got %v", mem.metadata[0])
	}
	if mem.metadata[0]["user_id"] != "u1" {
		t.Fatalf("expected user id on fact, got %v", mem.metadata[0])
	}

	conversation := mem.added[1]
	if !strings.Contains(conversation, "User asked: Remember: I like tea") {
		t.Fatalf("conversation record missing question: %q", conversation)
	}
	if !strings.Contains(conversation, "Assistant replied: Saved it for you, of course.") {
		t.Fatalf("conversation record missing reply: %q", conversation)
	}
	if mem.metadata[1]["source"] != "conversation" || mem.metadata[1]["type"] != "qa_pair" {
		t.Fatalf("unexpected conversation metadata: %v", mem.metadata[1])
	}
}

func TestAskRemembersMultipleLines(t *testing.T) {
	mem := &fakeMemory{}
	p := newTestPipeline(mem, &recordingResponder{name: "local", reply: "All noted."}, &recordingResponder{name: "remote"})

	input := "remember: first fact\nsome chatter\nREMEMBER: second fact\nremember:   "
	result := p.Ask(context.Background(), "u1", input)

	if len(result.MemorySaved) != 2 {
		t.Fatalf("expected 2 saved facts, got %v", result.MemorySaved)
	}
	if result.MemorySaved[0] != "first fact" || result.MemorySaved[1] != "second fact" {
		t.Fatalf("unexpected saved facts: %v", result.MemorySaved)
	}
}

func TestAskRoutesComplexQueryRemote(t *testing.T) {
	mem := &fakeMemory{items: []core.ContextItem{
		{Source: "user_request", Text: "the user studies physics"},
	}}
	remote := &recordingResponder{name: "remote", reply: "A long and careful explanation."}
	p := newTestPipeline(mem, &recordingResponder{name: "local"}, remote)

	result := p.Ask(context.Background(), "u1", "Explain quantum mechanics in detail")

	if result.ModelUsed != "remote" {
		t.Fatalf("expected remote model, got %s", result.ModelUsed)
	}
	if result.Response != "A long and careful explanation." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.ContextItems != 1 {
		t.Fatalf("expected 1 context item, got %d", result.ContextItems)
	}

	req := remote.lastReq
	if req == nil {
		t.Fatal("remote responder was not invoked")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != core.RoleSystem {
		t.Fatalf("expected system+user messages, got %+v", req.Messages)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "[user_request]: the user studies physics") {
		t.Fatalf("expected labeled context in prompt, got %q", user)
	}
	if !strings.Contains(user, "Question: Explain quantum mechanics in detail") {
		t.Fatalf("expected question in prompt, got %q", user)
	}
}

func TestAskRemotePromptWithoutContext(t *testing.T) {
	remote := &recordingResponder{name: "remote", reply: "answer"}
	p := newTestPipeline(&fakeMemory{}, &recordingResponder{name: "local"}, remote)

	p.Ask(context.Background(), "u1", "Analyze this codebase")

	if remote.lastReq == nil {
		t.Fatal("remote responder was not invoked")
	}
	if !strings.Contains(remote.lastReq.Messages[1].Content, "No relevant context found.") {
		t.Fatalf("expected context placeholder, got %q", remote.lastReq.Messages[1].Content)
	}
}

func TestAskRoutesSimpleQueryLocal(t *testing.T) {
	local := &recordingResponder{name: "local", reply: "Hello! How can I help?"}
	p := newTestPipeline(&fakeMemory{}, local, &recordingResponder{name: "remote"})

	result := p.Ask(context.Background(), "u1", "Good morning")

	if result.ModelUsed != "local" {
		t.Fatalf("expected local model, got %s", result.ModelUsed)
	}
	if local.lastReq == nil {
		t.Fatal("local responder was not invoked")
	}
	if local.lastReq.Prompt != "User: Good morning\nAssistant:" {
		t.Fatalf("unexpected local prompt %q", local.lastReq.Prompt)
	}
}

func TestAskLocalPromptEmbedsContextSummary(t *testing.T) {
	mem := &fakeMemory{items: []core.ContextItem{
		{Source: "conversation", Text: "the user's dog is named Rex"},
	}}
	local := &recordingResponder{name: "local", reply: "Your dog is Rex."}
	p := newTestPipeline(mem, local, &recordingResponder{name: "remote"})

	p.Ask(context.Background(), "u1", "What is my dog called?")

	prompt := local.lastReq.Prompt
	if !strings.HasPrefix(prompt, "Based on this information: ") {
		t.Fatalf("expected context-bearing prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "[conversation]: the user's dog is named Rex") {
		t.Fatalf("expected labeled context in prompt, got %q", prompt)
	}
	if !strings.Contains(prompt, "User: What is my dog called?\nAssistant:") {
		t.Fatalf("expected conversational frame, got %q", prompt)
	}
}

func TestAskLocalPromptTruncatesLongContext(t *testing.T) {
	mem := &fakeMemory{items: []core.ContextItem{
		{Source: "conversation", Text: strings.Repeat("words ", 200)},
	}}
	local := &recordingResponder{name: "local", reply: "ack"}
	// Lots of context words also push the length budget past the threshold,
	// so pin the check to the prompt builder via a high-threshold policy.
	policy := router.DefaultPolicy()
	policy.Keywords = nil
	policy.WordThreshold = 10_000
	p := New(mem, router.New(policy), local, &recordingResponder{name: "remote"})

	p.Ask(context.Background(), "u1", "what were we saying")

	prompt := local.lastReq.Prompt
	if !strings.Contains(prompt, "...") {
		t.Fatalf("expected truncated context summary, got %q", prompt)
	}
	marker := "Based on this information: "
	rest := strings.TrimPrefix(prompt, marker)
	summary := rest[:strings.Index(rest, "\n\nUser:")]
	if len(summary) > contextSummaryLimit+len("...") {
		t.Fatalf("context summary too long: %d chars", len(summary))
	}
}

func TestAskContextPushesBudgetRemote(t *testing.T) {
	// 201 context words with a 2-word query exceeds the 200 budget.
	items := make([]core.ContextItem, 0, 3)
	for i := 0; i < 3; i++ {
		items = append(items, core.ContextItem{
			Source: fmt.Sprintf("memory_%d", i),
			Text:   strings.Repeat("word ", 66),
		})
	}
	mem := &fakeMemory{items: items}
	remote := &recordingResponder{name: "remote", reply: "big answer"}
	p := newTestPipeline(mem, &recordingResponder{name: "local"}, remote)

	result := p.Ask(context.Background(), "u1", "sum up")

	if result.ModelUsed != "remote" {
		t.Fatalf("expected remote model under heavy context, got %s", result.ModelUsed)
	}
}

func TestAskDegradesWhenMemoryFails(t *testing.T) {
	mem := &fakeMemory{
		queryErr: errors.New("store offline"),
		addErr:   errors.New("store offline"),
	}
	local := &recordingResponder{name: "local", reply: "Still here and answering."}
	p := newTestPipeline(mem, local, &recordingResponder{name: "remote"})

	result := p.Ask(context.Background(), "u1", "Remember: resilience matters")

	if result.Response != "Still here and answering." {
		t.Fatalf("expected normal reply despite memory failure, got %q", result.Response)
	}
	if result.ContextItems != 0 {
		t.Fatalf("expected 0 context items, got %d", result.ContextItems)
	}
	if len(result.MemorySaved) != 0 {
		t.Fatalf("expected no saved facts, got %v", result.MemorySaved)
	}

	stages := make(map[string]bool)
	for _, f := range result.Failures {
		stages[f.Stage] = true
	}
	if !stages["retrieve"] || !stages["persist"] {
		t.Fatalf("expected retrieve and persist failures recorded, got %+v", result.Failures)
	}
}

func TestAskGenerateFailureBecomesApology(t *testing.T) {
	mem := &fakeMemory{}
	local := &recordingResponder{name: "local", err: errors.New("generator panic averted")}
	p := newTestPipeline(mem, local, &recordingResponder{name: "remote"})

	result := p.Ask(context.Background(), "u1", "Hello there")

	want := "Sorry, I encountered an error: generator panic averted"
	if result.Response != want {
		t.Fatalf("expected apology %q, got %q", want, result.Response)
	}

	// The persist stage still runs and records the conversation.
	if len(mem.added) != 1 {
		t.Fatalf("expected conversation persisted after generate failure, got %v", mem.added)
	}
	if !strings.Contains(mem.added[0], want) {
		t.Fatalf("conversation should carry the apology, got %q", mem.added[0])
	}
}

func TestAskAlwaysReturnsResult(t *testing.T) {
	mem := &fakeMemory{queryErr: errors.New("down"), addErr: errors.New("down")}
	local := &recordingResponder{name: "local", err: errors.New("down too")}
	p := newTestPipeline(mem, local, &recordingResponder{name: "remote"})

	result := p.Ask(context.Background(), "u1", "hi")

	if result == nil {
		t.Fatal("Ask must always return a result")
	}
	if result.Response == "" {
		t.Fatal("result must carry a response even when everything fails")
	}
	if result.ProcessingTime < 0 {
		t.Fatalf("negative processing time %f", result.ProcessingTime)
	}
	if result.MemorySaved == nil {
		t.Fatal("MemorySaved should be empty, not nil")
	}
}
