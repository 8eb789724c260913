// Package mock provides an in-memory automation.Runner for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxkey/voxkey/internal/automation"
)

// Compile-time assertion that Runner satisfies automation.Runner.
var _ automation.Runner = (*Runner)(nil)

// Call records one Run invocation.
type Call struct {
	ScriptID string
	Params   automation.Params
}

// Runner is a scriptable test double. Outputs maps script IDs to canned
// outputs; Errs maps script IDs to canned errors; RunFunc, when set, takes
// precedence over both.
type Runner struct {
	RunFunc func(ctx context.Context, scriptID string, params automation.Params) (automation.Result, error)
	Outputs map[string]string
	Errs    map[string]error

	mu    sync.Mutex
	calls []Call
}

// Run implements automation.Runner.
func (m *Runner) Run(ctx context.Context, scriptID string, params automation.Params) (automation.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ScriptID: scriptID, Params: params})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, scriptID, params)
	}
	if err, ok := m.Errs[scriptID]; ok {
		return automation.Result{}, err
	}
	return automation.Result{Output: m.Outputs[scriptID]}, nil
}

// Calls returns a snapshot of recorded invocations.
func (m *Runner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns how many times scriptID was invoked.
func (m *Runner) CallsTo(scriptID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.ScriptID == scriptID {
			n++
		}
	}
	return n
}
