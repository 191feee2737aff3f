// Package llm declares the text-completion capability consumed by the chat
// pipeline. The capability itself is an external collaborator; this package
// carries only the interface and a deterministic stand-in.
package llm

import "context"

// Request is one completion call. Context carries recent conversation
// snippets when the caller opted into memory.
type Request struct {
	SessionID string
	Prompt    string
	Context   []string
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// PromptCompleter narrows a Completer to the prompt-only shape consumers
// outside the chat pipeline expect.
type PromptCompleter struct {
	Completer Completer
}

func (p PromptCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return p.Completer.Complete(ctx, Request{Prompt: prompt})
}
