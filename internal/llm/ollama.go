package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/hearth/internal/httpkit"
)

// OllamaClient is a client for a local Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a client for baseURL (default
// http://localhost:11434).
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout == 0 {
		// Cold model loads on small hosts are slow.
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout), httpkit.WithLogger(logger)),
		logger:     logger,
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

// Chat sends a non-streaming /api/chat request.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	req := ollamaChatRequest{Model: c.model, Messages: messages}

	start := time.Now()
	var resp ollamaChatResponse
	if err := httpkit.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return nil, inferenceError(err)
	}
	elapsed := time.Since(start)

	if strings.TrimSpace(resp.Message.Content) == "" {
		return nil, inferenceError(errors.New("empty response"))
	}
	c.logger.Debug("chat completed", "elapsed", elapsed, "input_tokens", resp.PromptEvalCount, "output_tokens", resp.EvalCount)
	return &Response{
		Model:        resp.Model,
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Elapsed:      elapsed,
	}, nil
}

// Ping checks that Ollama answers /api/tags.
func (c *OllamaClient) Ping(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := httpkit.DoJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/tags", nil, nil, &tags); err != nil {
		return inferenceError(err)
	}
	return nil
}
