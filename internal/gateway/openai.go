package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider speaks the chat-completions contract. The endpoint is
// stateless, so sessions are local bookkeeping: a session pins the model
// and sampling options for the prompts issued under it.
type OpenAIProvider struct {
	client   *openai.Client
	timeouts Timeouts

	mu       sync.Mutex
	sessions map[string]SessionOptions
}

// NewOpenAIProvider builds a provider from a caller-supplied key. Keys are
// never compiled in; an empty key is rejected here rather than at the
// first 401.
func NewOpenAIProvider(apiKey, baseURL string, timeouts Timeouts) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		timeouts: timeouts,
		sessions: make(map[string]SessionOptions),
	}, nil
}

func (p *OpenAIProvider) Capabilities(ctx context.Context) (Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.sessionBudget())
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		return Capabilities{}, wrapOpenAIError(err)
	}
	return Capabilities{Available: true, Model: openai.GPT4o}, nil
}

func (p *OpenAIProvider) CreateSession(_ context.Context, opts SessionOptions) (string, error) {
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.sessions[id] = opts
	p.mu.Unlock()
	return id, nil
}

func (p *OpenAIProvider) Prompt(ctx context.Context, sessionID, text string) (string, error) {
	p.mu.Lock()
	opts, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown gateway session: %s", sessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeouts.promptBudget())
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Destroy(_ context.Context, sessionID string) error {
	p.mu.Lock()
	delete(p.sessions, sessionID)
	p.mu.Unlock()
	return nil
}

// wrapOpenAIError distinguishes credential rejections from everything else
// so the caller can warn about authentication instead of a generic failure.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 401 {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return fmt.Errorf("openai: %w", err)
}
