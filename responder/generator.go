package responder

import (
	"context"
	"fmt"
	"strings"
)

// Generator is an in-process generative function: the local model's
// interface boundary. The real implementation loads model weights; the
// RuleBased stand-in keeps everything runnable without them.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, maxNewTokens int) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	return f(ctx, prompt, maxNewTokens)
}

// RuleBased is the deterministic stand-in generator used when no real
// local model is configured or its initialization fails. Keyword-triggered
// canned replies are enough to keep the pipeline, its tests, and demos
// running with zero model files.
type RuleBased struct{}

// Generate returns a canned reply keyed off the prompt's content.
func (RuleBased) Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error) {
	p := strings.ToLower(prompt)

	switch {
	case strings.Contains(p, "hello") || strings.Contains(p, "hi"):
		return "Hello! I'm your AI assistant. I can help you with questions, " +
			"remember information, and more. Try asking me something or say " +
			"'Remember: [some fact]' to store information!", nil

	case strings.Contains(p, "who are you"):
		return "I'm your personal assistant! I use a hybrid approach: a fast " +
			"local model for quick responses and a powerful remote model for " +
			"complex tasks. I also have persistent memory to remember our " +
			"conversations.", nil

	case strings.Contains(p, "remember:"):
		return "I've saved that information to my memory! You can ask me " +
			"about it later and I'll remember.", nil

	case strings.Contains(p, "help"):
		return "I can help you with various tasks:\n" +
			"- Answer questions\n" +
			"- Remember information (use 'Remember: [fact]')\n" +
			"- Have conversations\n" +
			"- Switch to my powerful remote model for complex reasoning\n\n" +
			"What would you like to know?", nil

	case strings.Contains(p, "weather"):
		return "I don't have access to real-time weather data, but I can help " +
			"you with other information! For weather updates I'd recommend a " +
			"weather service or app.", nil

	default:
		return fmt.Sprintf("I understand you're asking about: '%s'. I'm running "+
			"on a rule-based stand-in right now; configure a local model or a "+
			"remote API credential for full answers.", strings.TrimSpace(prompt)), nil
	}
}
