package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anigma-ai/anigma/core"
	"github.com/anigma-ai/anigma/tokenizer"
)

// defaultRemoteMaxTokens caps remote completion length.
const defaultRemoteMaxTokens = 512

// defaultRemoteTemperature is the sampling temperature sent on both the
// provider path and the raw fallback path.
const defaultRemoteTemperature = 0.7

// fallbackTimeout bounds the raw-HTTP fallback call.
const fallbackTimeout = 30 * time.Second

// ChatProvider is one hosted chat-completion backend.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, messages []core.Message, maxTokens int) (string, error)
}

// RemoteConfig configures the remote backend.
type RemoteConfig struct {
	// Provider is the primary inference client. Nil means no credential
	// was configured; generation then degrades to an unavailability
	// sentence instead of failing at startup.
	Provider ChatProvider

	// FallbackURL is a raw OpenAI-compatible chat-completions endpoint
	// tried when the provider path fails. Empty disables the fallback.
	FallbackURL string

	// Model and APIKey shape the fallback payload and its auth header.
	Model  string
	APIKey string

	// HTTPClient overrides the fallback path's client (tests).
	HTTPClient *http.Client

	// Tokens counts prompt tokens for logging. Nil means a heuristic
	// counter is created.
	Tokens *tokenizer.Tokenizer
}

// Remote is the heavy hosted backend. It never raises past its boundary:
// missing credentials and transport failures come back as human-readable
// sentences, raised only at the moment the backend is actually invoked.
type Remote struct {
	provider    ChatProvider
	fallbackURL string
	model       string
	apiKey      string
	client      *http.Client
	tokens      *tokenizer.Tokenizer
}

// NewRemote creates the remote backend.
func NewRemote(cfg RemoteConfig) *Remote {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fallbackTimeout}
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = tokenizer.Heuristic()
	}
	return &Remote{
		provider:    cfg.Provider,
		fallbackURL: cfg.FallbackURL,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		client:      client,
		tokens:      tokens,
	}
}

// Name returns "remote".
func (r *Remote) Name() string {
	return "remote"
}

// Available reports whether a credentialed provider is configured.
// Consumed by the health probe.
func (r *Remote) Available() bool {
	return r.provider != nil
}

// Generate forwards req.Messages to the provider, falling back to a raw
// HTTP call with the same payload shape, and finally to an error sentence.
func (r *Remote) Generate(ctx context.Context, req *Request) (string, error) {
	if r.provider == nil {
		return "Error: remote model unavailable (no API credential configured)", nil
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultRemoteMaxTokens
	}

	log.Printf("[REMOTE] Sending %d messages (~%d prompt tokens) to %s",
		len(req.Messages), r.tokens.CountMessages(req.Messages), r.provider.Name())

	text, err := r.provider.Complete(ctx, req.Messages, maxTokens)
	if err == nil {
		return strings.TrimSpace(text), nil
	}
	log.Printf("[REMOTE] Provider call failed: %v", err)

	if r.fallbackURL != "" {
		text, err = r.completeDirect(ctx, req.Messages, maxTokens)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		log.Printf("[REMOTE] Direct fallback failed: %v", err)
	}

	return "Error: Remote model unavailable", nil
}

// completeDirect is the secondary raw-HTTP path: same payload shape as the
// provider, posted straight at a chat-completions endpoint.
func (r *Remote) completeDirect(ctx context.Context, messages []core.Message, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":       r.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": defaultRemoteTemperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.fallbackURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote API status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) > 0 {
		return parsed.Choices[0].Message.Content, nil
	}
	if parsed.GeneratedText != "" {
		return parsed.GeneratedText, nil
	}
	return "", fmt.Errorf("response contained no completion")
}
