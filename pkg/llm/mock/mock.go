// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxkey/voxkey/pkg/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a test double. If CompleteFunc is set it is called for every
// request; otherwise FixedContent is returned. Requests are recorded.
type Provider struct {
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)
	FixedContent string

	mu       sync.Mutex
	requests []llm.Request
}

// Complete implements llm.Provider.
func (m *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &llm.Response{Content: m.FixedContent}, nil
}

// Requests returns a snapshot of every request passed to Complete.
func (m *Provider) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
