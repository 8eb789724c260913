// Package agent wraps the language-model collaborator behind the two
// operations the pipeline needs: answering a spoken query and transforming
// selected text.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxkey/voxkey/pkg/llm"
)

const querySystemPrompt = `You are a voice assistant invoked by a spoken command.
Answer concisely in plain text. The answer may be pasted directly into the
user's current application, so do not use markdown formatting, headings, or
code fences unless the user explicitly asks for code.`

const editSystemPrompt = `You transform text according to an instruction.
Respond with ONLY the transformed text. No commentary, no explanation, no
quotation marks around the result, no markdown fences. Preserve the original
meaning unless the instruction says otherwise.`

// Option is a functional option for configuring an [Agent].
type Option func(*Agent)

// WithTemperature sets the sampling temperature for query completions.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// Agent answers queries and edits text through an llm.Provider.
type Agent struct {
	provider    llm.Provider
	temperature float64
}

// New creates an Agent backed by provider.
func New(provider llm.Provider, opts ...Option) *Agent {
	a := &Agent{provider: provider, temperature: 0.7}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ProcessQuery answers a spoken command. history carries prior exchanges of
// the active conversation session; userContext is optional surrounding
// information (selected text, recent transcripts) appended to the query.
func (a *Agent) ProcessQuery(ctx context.Context, query string, history []llm.Message, userContext string) (string, error) {
	content := query
	if userContext != "" {
		content = fmt.Sprintf("%s\n\nContext:\n%s", query, userContext)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: content})

	resp, err := a.provider.Complete(ctx, llm.Request{
		SystemPrompt: querySystemPrompt,
		Messages:     messages,
		Temperature:  a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("agent: process query: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// EditText applies instruction to selection and returns only the transformed
// text, suitable as the sole delivery payload.
func (a *Agent) EditText(ctx context.Context, instruction, selection string) (string, error) {
	prompt := fmt.Sprintf("Instruction: %s\n\nText:\n%s", instruction, selection)

	resp, err := a.provider.Complete(ctx, llm.Request{
		SystemPrompt: editSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		// Edits should be deterministic, not creative.
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("agent: edit text: %w", err)
	}
	return cleanEditResponse(resp.Content), nil
}

// cleanEditResponse strips wrapping the model adds despite the output
// contract: surrounding whitespace, markdown fences, matched quotes.
func cleanEditResponse(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
			// Drop a language tag on the opening fence.
			s = s[i+1:]
		}
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}
