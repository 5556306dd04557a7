package structcache

import (
	"context"
	"sync"

	"github.com/structcache/structcache/pkg/invoker"
)

// stubReply is one scripted invocation outcome.
type stubReply struct {
	text string
	err  error
}

// stubInvoker plays back scripted replies and records every request it
// receives. The last reply repeats once the script runs out.
type stubInvoker struct {
	mu         sync.Mutex
	replies    []stubReply
	calls      []*invoker.Request
	structured map[string]bool
	blocking   bool
}

func newStubInvoker(replies ...stubReply) *stubInvoker {
	return &stubInvoker{replies: replies}
}

func (s *stubInvoker) Invoke(ctx context.Context, req *invoker.Request) (*invoker.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	blocking := s.blocking
	s.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	idx := n - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	reply := s.replies[idx]
	if reply.err != nil {
		return nil, reply.err
	}
	return &invoker.Response{
		Text:     reply.text,
		Model:    "test-model",
		Provider: "stub",
	}, nil
}

func (s *stubInvoker) SupportsStructured(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structured[model]
}

func (s *stubInvoker) Name() string { return "stub" }

func (s *stubInvoker) setBlocking(blocking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocking = blocking
}

func (s *stubInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubInvoker) call(i int) *invoker.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}
