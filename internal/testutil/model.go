package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiaot623/medeval/internal/adapter/llm"
)

// FakeModel is a scripted llm.Model that records every request.
type FakeModel struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.GenerateRequest

	// Block, when set, makes Generate wait until it is closed or ctx ends.
	Block chan struct{}
}

// NewFakeModel returns a model that answers with replies in order and then
// with a numbered default reply.
func NewFakeModel(replies ...string) *FakeModel {
	return &FakeModel{replies: replies}
}

// FailNext makes the next call return err.
func (m *FakeModel) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

func (m *FakeModel) Generate(ctx context.Context, req *llm.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	n := len(m.requests)
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) > 0 {
		reply := m.replies[0]
		m.replies = m.replies[1:]
		return reply, nil
	}
	return fmt.Sprintf("reply %d", n), nil
}

// Requests returns a copy of the recorded requests.
func (m *FakeModel) Requests() []llm.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls so far.
func (m *FakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func cloneRequest(req *llm.GenerateRequest) llm.GenerateRequest {
	out := *req
	out.Turns = append([]llm.Turn(nil), req.Turns...)
	return out
}
