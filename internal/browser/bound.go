package browser

import (
	"context"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// Bound scopes a Manager to one session so callers that work a single page
// do not carry the session id through every call.
type Bound struct {
	m         *Manager
	sessionID string
}

// Bind returns a single-session view of the manager.
func (m *Manager) Bind(sessionID string) *Bound {
	return &Bound{m: m, sessionID: sessionID}
}

func (b *Bound) SessionID() string {
	return b.sessionID
}

func (b *Bound) Collect(ctx context.Context) ([]field.Raw, error) {
	return b.m.Collect(ctx, b.sessionID)
}

func (b *Bound) Fill(ctx context.Context, d field.Descriptor, value string) error {
	return b.m.Fill(ctx, b.sessionID, d, value)
}

func (b *Bound) Clear(ctx context.Context, d field.Descriptor) error {
	return b.m.Clear(ctx, b.sessionID, d)
}
