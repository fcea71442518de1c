// Package llm provides the model clients the orchestrator talks to. The
// whole transcript, system turn first, is sent on every call; clients
// keep no conversation state of their own.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/hearth/internal/config"
)

// ErrInference marks a failure to obtain any model output: transport
// errors, non-2xx responses and empty completions.
var ErrInference = errors.New("inference failed")

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry as sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a completed model call.
type Response struct {
	Model        string
	Content      string
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
}

// Client is implemented by every model provider.
type Client interface {
	// Chat sends the transcript and returns the model's reply. Errors
	// wrap ErrInference.
	Chat(ctx context.Context, messages []Message) (*Response, error)
	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
	// Model names the configured model.
	Model() string
}

// New builds the client selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", cfg.Provider, "model", cfg.Model)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout, logger), nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Timeout, logger), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func inferenceError(err error) error {
	if errors.Is(err, ErrInference) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInference, err)
}
