// Package testutil provides deterministic Genkit doubles for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the name the scripted model registers under.
const MockModelName = "mock/test-model"

// MockLLM is a scripted model: each call pops the next queued step, so
// a test can stage a tool request followed by a text answer and watch
// the conversation loop walk through both. When the queue is empty the
// fallback text is returned.
//
// Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	queue    []mockStep
	fallback string
	requests []*ai.ModelRequest
}

type mockStep struct {
	parts []*ai.Part
	err   error
}

// NewMockLLM creates a scripted model with the given fallback text.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// EnqueueText stages a plain text response.
func (m *MockLLM) EnqueueText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockStep{parts: []*ai.Part{ai.NewTextPart(text)}})
}

// EnqueueToolRequest stages a response that asks for one tool call.
func (m *MockLLM) EnqueueToolRequest(name, ref string, input any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockStep{parts: []*ai.Part{{
		Kind:        ai.PartToolRequest,
		ToolRequest: &ai.ToolRequest{Name: name, Ref: ref, Input: input},
	}}})
}

// EnqueueError stages a failing model call.
func (m *MockLLM) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockStep{err: err})
}

// EnqueueErrorN stages the same failure n times.
func (m *MockLLM) EnqueueErrorN(err error, n int) {
	for range n {
		m.EnqueueError(err)
	}
}

// Calls returns how many times the model was invoked.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request the model received.
func (m *MockLLM) Requests() []*ai.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*ai.ModelRequest, len(m.requests))
	copy(cp, m.requests)
	return cp
}

// Register registers the mock as a Genkit model under MockModelName.
func (m *MockLLM) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)

	var step mockStep
	if len(m.queue) > 0 {
		step = m.queue[0]
		m.queue = m.queue[1:]
	} else {
		step = mockStep{parts: []*ai.Part{ai.NewTextPart(m.fallback)}}
	}
	m.mu.Unlock()

	if step.err != nil {
		return nil, step.err
	}
	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{Role: ai.RoleModel, Content: step.parts},
	}, nil
}
