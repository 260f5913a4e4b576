package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// ClaudeProvider is the Anthropic backend. Same local-session model as the
// OpenAI provider.
type ClaudeProvider struct {
	client   *anthropic.Client
	timeouts Timeouts

	mu       sync.Mutex
	sessions map[string]SessionOptions
}

func NewClaudeProvider(apiKey string, timeouts Timeouts) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeProvider{
		client:   &client,
		timeouts: timeouts,
		sessions: make(map[string]SessionOptions),
	}, nil
}

func (p *ClaudeProvider) Capabilities(ctx context.Context) (Capabilities, error) {
	// No cheap ping endpoint; report the configured default model.
	return Capabilities{Available: true, Model: string(anthropic.ModelClaudeSonnet4_20250514)}, nil
}

func (p *ClaudeProvider) CreateSession(_ context.Context, opts SessionOptions) (string, error) {
	if opts.Model == "" {
		opts.Model = string(anthropic.ModelClaudeSonnet4_20250514)
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

func (p *ClaudeProvider) Prompt(ctx context.Context, sessionID, text string) (string, error) {
	p.mu.Lock()
	opts, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown gateway session: %s", sessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeouts.promptBudget())
	defer cancel()

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: int64(opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", wrapClaudeError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response from model")
}

func (p *ClaudeProvider) Destroy(_ context.Context, sessionID string) error {
	p.mu.Lock()
	delete(p.sessions, sessionID)
	p.mu.Unlock()
	return nil
}

func wrapClaudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
