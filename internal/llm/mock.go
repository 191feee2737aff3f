package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock is a scripted completer for local runs and tests. Queued responses are
// returned in order; once drained it falls back to a deterministic echo.
type Mock struct {
	mu        sync.Mutex
	responses []string
	calls     []Request
}

func NewMock(responses ...string) *Mock {
	return &Mock{responses: responses}
}

func (m *Mock) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.responses) > 0 {
		out := m.responses[0]
		m.responses = m.responses[1:]
		return out, nil
	}
	prompt := strings.TrimSpace(req.Prompt)
	if len(prompt) > 80 {
		prompt = prompt[:80]
	}
	return fmt.Sprintf("(mock) %s", prompt), nil
}

// Calls returns a snapshot of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
