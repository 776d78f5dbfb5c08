// Package llm wraps the model providers behind a single completion
// interface and owns the parsing contract for model output. Model output
// is unreliable input: everything that leaves this package has either
// been validated or explicitly marked empty.
package llm

import "context"

// Completer is the prompt-in, text-out contract the pipeline depends on.
// Implementations are constructed explicitly and injected, never held as
// package globals, so tests can substitute fakes.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string // "anthropic" or "openai"
	APIKey    string
	Model     string
	MaxTokens int
}

// New builds a Completer for the configured provider. An unknown
// provider falls back to anthropic.
func New(cfg Config) Completer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return newAnthropicClient(cfg)
	}
}
