package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAuth marks a credential rejection (HTTP 401 class). Callers surface it
// as an authentication warning instead of a generic batch failure.
var ErrAuth = errors.New("gateway: authentication failed")

// Capabilities reports whether the backend is reachable and which model
// will serve prompts.
type Capabilities struct {
	Available bool   `json:"available"`
	Model     string `json:"model"`
}

// SessionOptions tunes one prompting session.
type SessionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Provider is the opaque external collaborator of the pipeline. Every call
// may fail; a failure scopes to the batch that issued it, never the run.
type Provider interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	CreateSession(ctx context.Context, opts SessionOptions) (string, error)
	Prompt(ctx context.Context, sessionID, text string) (string, error)
	Destroy(ctx context.Context, sessionID string) error
}

// Timeouts carries the per-call allowances. Prompt calls get a materially
// longer budget than session and capability calls.
type Timeouts struct {
	Prompt  time.Duration
	Session time.Duration
}

// DefaultTimeouts matches the documented contract: ~30s prompts, ~20s
// session/capability calls.
func DefaultTimeouts() Timeouts {
	return Timeouts{Prompt: 30 * time.Second, Session: 20 * time.Second}
}

func (t Timeouts) promptBudget() time.Duration {
	if t.Prompt <= 0 {
		return 30 * time.Second
	}
	return t.Prompt
}

func (t Timeouts) sessionBudget() time.Duration {
	if t.Session <= 0 {
		return 20 * time.Second
	}
	return t.Session
}

// New selects a provider backend by name.
func New(name, apiKey, baseURL string, timeouts Timeouts) (Provider, error) {
	switch name {
	case "", "openai", "gpt":
		return NewOpenAIProvider(apiKey, baseURL, timeouts)
	case "claude", "anthropic":
		return NewClaudeProvider(apiKey, timeouts)
	default:
		return nil, fmt.Errorf("unknown gateway provider: %s (supported: openai, claude)", name)
	}
}
