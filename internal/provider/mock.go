package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
)

// MockName is the routing name for offline connectors.
const MockName = "mock"

// MockStep is one scripted reply. Err takes precedence over Text.
type MockStep struct {
	Text  string
	Err   error
	Empty bool
	Delay time.Duration
}

// Mock is a scripted Connector for offline use and tests. Steps are
// consumed in order and the last one repeats. With no steps and no handler
// it echoes the prompt.
type Mock struct {
	name    string
	sink    log.ErrorSink
	handler func(Request) (string, error)

	mu    sync.Mutex
	steps []MockStep
	next  int
	calls []Request
}

func NewMock(name string, steps ...MockStep) *Mock {
	if name == "" {
		name = MockName
	}
	return &Mock{name: name, steps: steps}
}

// NewMockFunc returns a Mock that answers every request with fn.
func NewMockFunc(name string, fn func(Request) (string, error)) *Mock {
	m := NewMock(name)
	m.handler = fn
	return m
}

// WithSink sets the error sink failures are reported to.
func (m *Mock) WithSink(sink log.ErrorSink) *Mock {
	m.sink = sink
	return m
}

func (m *Mock) Name() string { return m.name }

// Calls returns the normalized requests received so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Mock) Generate(ctx context.Context, req Request) (*Response, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var step MockStep
	switch {
	case m.handler != nil:
	case len(m.steps) == 0:
		step.Text = fmt.Sprintf("Mock response: %s", req.Prompt)
	default:
		i := m.next
		if i >= len(m.steps) {
			i = len(m.steps) - 1
		}
		step = m.steps[i]
		m.next++
	}
	m.mu.Unlock()

	if m.handler != nil {
		step.Text, step.Err = m.handler(req)
	}

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, report(m.sink, m.name, &TransientError{Provider: m.name, Err: ctx.Err()})
		case <-t.C:
		}
	}

	if step.Err != nil {
		return nil, report(m.sink, m.name, step.Err)
	}
	if step.Empty {
		return fallback(m.name, MockName), nil
	}
	return &Response{Text: step.Text, Provider: m.name, Model: MockName}, nil
}
