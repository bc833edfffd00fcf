package summary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/technews/internal/retry"
)

const defaultDeepSeekURL = "https://api.deepseek.com/v1"

// DeepSeekBackend talks to an OpenAI-compatible chat completions API.
type DeepSeekBackend struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewDeepSeekBackend accepts either the API base URL or the full
// chat completions URL as endpoint.
func NewDeepSeekBackend(apiKey, endpoint, model string, timeout time.Duration) *DeepSeekBackend {
	if endpoint == "" {
		endpoint = defaultDeepSeekURL
	}
	if model == "" {
		model = "deepseek-chat"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/chat/completions")
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &DeepSeekBackend{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.7,
	}
}

func (d *DeepSeekBackend) Name() string { return "deepseek" }

// Complete sends one chat request. Client errors other than 429 are marked
// permanent so they are not retried.
func (d *DeepSeekBackend) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: d.temperature,
	})
	if err != nil {
		if permanent(statusOf(err)) {
			return "", retry.Permanent(fmt.Errorf("API error: %w", err))
		}
		return "", fmt.Errorf("API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func permanent(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
