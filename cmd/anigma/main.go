// Command anigma runs the personal assistant agent: an HTTP and WebSocket
// server in front of the four-stage pipeline, backed by an embedded vector
// store for persistent memory.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/anigma-ai/anigma/agent"
	"github.com/anigma-ai/anigma/memory"
	"github.com/anigma-ai/anigma/memory/embedder/cache"
	"github.com/anigma-ai/anigma/memory/store/chromem"
	"github.com/anigma-ai/anigma/responder"
	"github.com/anigma-ai/anigma/router"
	"github.com/anigma-ai/anigma/server"
)

const (
	defaultRemoteModel   = "Qwen/Qwen2.5-7B-Instruct"
	defaultRemoteBaseURL = "https://router.huggingface.co/v1"
	defaultPort          = "8000"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("[MAIN] %v", err)
	}
}

func run() error {
	// Optional; a missing .env file is not an error.
	if err := godotenv.Load(); err == nil {
		log.Printf("[MAIN] Loaded environment from .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Memory: embedder (build-tag selected), read-through cache, vector store.
	base, err := newEmbedder()
	if err != nil {
		return fmt.Errorf("embedder init: %w", err)
	}
	embedder, err := cache.New(base)
	if err != nil {
		return fmt.Errorf("embedding cache init: %w", err)
	}
	defer embedder.Close()

	store, err := chromem.New(os.Getenv("MEMORY_PATH"))
	if err != nil {
		return fmt.Errorf("memory store init: %w", err)
	}
	defer store.Close()

	contextMgr := memory.NewContextManager(store, embedder)

	// Router policy, optionally loaded from a YAML file.
	policy := router.DefaultPolicy()
	if path := os.Getenv("ROUTER_POLICY"); path != "" {
		policy, err = router.LoadPolicy(path)
		if err != nil {
			return fmt.Errorf("router policy %s: %w", path, err)
		}
		log.Printf("[MAIN] Loaded router policy from %s", path)
	}
	rtr := router.New(policy)

	// Responders. The local generator loader is nil here so the rule-based
	// stand-in serves local traffic; the remote path uses a hosted provider
	// when a credential is present.
	local := responder.NewLocal(nil)
	remote := responder.NewRemote(newRemoteConfig())

	pipeline := agent.New(contextMgr, rtr, local, remote)

	srv := server.New(server.Config{
		Pipeline:        pipeline,
		Memory:          contextMgr,
		LocalAvailable:  true,
		RemoteAvailable: remote.Available(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	return srv.ListenAndServe(ctx, ":"+port)
}

// newRemoteConfig assembles the remote backend from the environment.
// HF_TOKEN (or API_KEY) selects whether a provider is configured at all;
// REMOTE_PROVIDER picks the client library.
func newRemoteConfig() responder.RemoteConfig {
	apiKey := os.Getenv("HF_TOKEN")
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}

	model := os.Getenv("REMOTE_MODEL")
	if model == "" {
		model = defaultRemoteModel
	}
	baseURL := os.Getenv("REMOTE_BASE_URL")
	if baseURL == "" {
		baseURL = defaultRemoteBaseURL
	}

	cfg := responder.RemoteConfig{
		FallbackURL: strings.TrimSuffix(baseURL, "/") + "/chat/completions",
		Model:       model,
		APIKey:      apiKey,
	}
	if apiKey == "" {
		log.Printf("[MAIN] No API credential configured, remote model unavailable")
		return cfg
	}

	switch provider := strings.ToLower(os.Getenv("REMOTE_PROVIDER")); provider {
	case "anthropic":
		cfg.Provider = responder.NewAnthropicProvider(apiKey, model)
		log.Printf("[MAIN] Remote provider: anthropic (%s)", model)
	case "", "openai":
		cfg.Provider = responder.NewOpenAIProvider(apiKey, baseURL, model)
		log.Printf("[MAIN] Remote provider: openai-compatible (%s via %s)", model, baseURL)
	default:
		log.Printf("[MAIN] Unknown REMOTE_PROVIDER %q, using openai-compatible client", provider)
		cfg.Provider = responder.NewOpenAIProvider(apiKey, baseURL, model)
	}
	return cfg
}
