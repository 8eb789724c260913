// Package automation is the narrow boundary to OS scripting.
//
// Every interaction with the host desktop (frontmost-app queries, synthetic
// keystrokes, notifications) goes through [Runner.Run] with a registered
// script ID and structured parameters. Parameters are passed to the script
// runtime as argv, never interpolated into script source, so payload text can
// contain quotes or script syntax without risk.
package automation

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownScript is returned when a script ID has no registration.
var ErrUnknownScript = errors.New("unknown automation script")

// Params carries named arguments for one script invocation.
type Params map[string]string

// Result is the outcome of a script run.
type Result struct {
	// Output is the script's stdout, trimmed.
	Output string
}

// Runner executes a registered automation script.
type Runner interface {
	// Run executes the script registered under scriptID with the given
	// parameters. Implementations must honour ctx cancellation and enforce
	// any deadline it carries.
	Run(ctx context.Context, scriptID string, params Params) (Result, error)
}

// orderParams maps params onto the positional argv a script expects,
// failing on missing or unexpected names.
func orderParams(scriptID string, names []string, params Params) ([]string, error) {
	if len(params) != len(names) {
		return nil, fmt.Errorf("automation: script %q takes %d params, got %d", scriptID, len(names), len(params))
	}
	argv := make([]string, len(names))
	for i, name := range names {
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("automation: script %q missing param %q", scriptID, name)
		}
		argv[i] = v
	}
	return argv, nil
}
