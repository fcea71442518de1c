package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/httpkit"
)

// OpenAIClient talks to any OpenAI-compatible chat completions
// endpoint: DeepSeek, OpenAI, vLLM, LM Studio.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient returns a client for baseURL. The SDK's own retries
// are disabled; the orchestrator reports inference failures rather than
// retrying them.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(timeout), httpkit.WithLogger(logger))),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Chat sends messages as a single non-streaming completion.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	c.logger.Log(ctx, config.LevelTrace, "chat request", "messages", len(messages))
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, inferenceError(fmt.Errorf("%s: status %d", c.model, apiErr.StatusCode))
		}
		return nil, inferenceError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, inferenceError(errors.New("empty response"))
	}

	out := &Response{
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Elapsed:      elapsed,
	}
	c.logger.Debug("chat completed", "elapsed", elapsed, "input_tokens", out.InputTokens, "output_tokens", out.OutputTokens)
	return out, nil
}

// Ping lists models, which any compatible endpoint serves.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return inferenceError(err)
	}
	return nil
}
