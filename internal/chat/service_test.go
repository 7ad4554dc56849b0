package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/edustack-labs/edustack/internal/llm"
)

// stubProvider scripts completions and counts calls.
type stubProvider struct {
	mu    sync.Mutex
	calls int32
	fail  error
	// reply receives the request so tests can inspect the effective context.
	reply func(req llm.Request) string

	lastReq llm.Request
}

func (p *stubProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	atomic.AddInt32(&p.calls, 1)
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	text := "ok"
	if p.reply != nil {
		text = p.reply(req)
	}
	return &llm.Response{Text: text, Model: "stub"}, nil
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub" }

func (p *stubProvider) callCount() int { return int(atomic.LoadInt32(&p.calls)) }

func (p *stubProvider) last() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

func newTestService(t *testing.T, p llm.Provider) *Service {
	t.Helper()
	s, err := NewService(Options{Provider: p})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestExchange_ContextCarriesAcrossCalls(t *testing.T) {
	t.Parallel()

	p := &stubProvider{reply: func(req llm.Request) string {
		return fmt.Sprintf("reply-%d", len(req.Messages))
	}}
	s := newTestService(t, p)
	ctx := context.Background()

	first, err := s.Exchange(ctx, "u1", "Hello")
	if err != nil {
		t.Fatalf("first Exchange: %v", err)
	}
	if _, err := s.Exchange(ctx, "u1", "What did I just say?"); err != nil {
		t.Fatalf("second Exchange: %v", err)
	}

	req := p.last()
	// history: user, assistant, user — the second call sees the first exchange.
	if len(req.Messages) != 3 {
		t.Fatalf("effective context has %d messages, want 3", len(req.Messages))
	}
	if req.Messages[0].Content != "Hello" {
		t.Fatalf("context[0] = %+v, want the first user message", req.Messages[0])
	}
	if req.Messages[1].Role != llm.RoleAssistant || req.Messages[1].Content != first {
		t.Fatalf("context[1] = %+v, want the first reply", req.Messages[1])
	}
}

func TestExchange_SessionIsolation(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)
	ctx := context.Background()

	if _, err := s.Exchange(ctx, "s1", "secret-s1"); err != nil {
		t.Fatalf("Exchange s1: %v", err)
	}
	if _, err := s.Exchange(ctx, "s2", "hello from s2"); err != nil {
		t.Fatalf("Exchange s2: %v", err)
	}

	req := p.last()
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "secret-s1") {
			t.Fatalf("s1 content leaked into s2 context: %+v", m)
		}
	}
	if n := s.Registry().Len(); n != 2 {
		t.Fatalf("registry size = %d, want 2", n)
	}
}

func TestExchange_ConcurrentFirstRequestsCreateOneBuffer(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)

	const workers = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if _, err := s.Exchange(context.Background(), "fresh", fmt.Sprintf("msg-%d", i)); err != nil {
				t.Errorf("Exchange: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if n := s.Registry().Len(); n != 1 {
		t.Fatalf("registry size = %d, want 1", n)
	}
	sess := s.Registry().GetOrCreate("fresh")
	// Every exchange landed in the single buffer: two messages per worker.
	if got := sess.Buffer.Len(); got != workers*2 {
		t.Fatalf("buffer len = %d, want %d", got, workers*2)
	}
}

func TestExchange_FailureLeavesBufferUnchanged(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)
	ctx := context.Background()

	if _, err := s.Exchange(ctx, "u1", "Hello"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	sess := s.Registry().GetOrCreate("u1")
	before := sess.Buffer.Len()

	p.fail = &llm.UpstreamError{Kind: llm.KindServer, Provider: "stub", Message: "boom"}
	if _, err := s.Exchange(ctx, "u1", "again"); err == nil {
		t.Fatalf("Exchange: want upstream error")
	}
	if got := sess.Buffer.Len(); got != before {
		t.Fatalf("buffer len changed on failure: %d -> %d", before, got)
	}

	// Retry after the failure sees the same prior state.
	p.fail = nil
	if _, err := s.Exchange(ctx, "u1", "again"); err != nil {
		t.Fatalf("retry Exchange: %v", err)
	}
	if got := sess.Buffer.Len(); got != before+2 {
		t.Fatalf("buffer len = %d, want %d", got, before+2)
	}
}

func TestExchange_EmptyMessageRejectedWithoutProviderCall(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)

	if _, err := s.Exchange(context.Background(), "u1", "   "); err != ErrEmptyMessage {
		t.Fatalf("Exchange = %v, want ErrEmptyMessage", err)
	}
	if p.callCount() != 0 {
		t.Fatalf("provider called %d times, want 0", p.callCount())
	}
}

func TestExchange_BlankSessionFallsBackToDefault(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)

	if _, err := s.Exchange(context.Background(), "", "hi"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if sess := s.Registry().GetOrCreate(DefaultSessionID); sess.Buffer.Len() != 2 {
		t.Fatalf("default session buffer len = %d, want 2", sess.Buffer.Len())
	}
}

func TestBuffer_MaxTurnsEvictsOldestPairs(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4)
	for i := 0; i < 5; i++ {
		b.AppendExchange(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	h := b.History()
	if len(h) != 4 {
		t.Fatalf("history len = %d, want 4", len(h))
	}
	if h[0].Content != "q3" || h[0].Role != llm.RoleUser {
		t.Fatalf("history[0] = %+v, want q3", h[0])
	}
	if h[3].Content != "a4" {
		t.Fatalf("history[3] = %+v, want a4", h[3])
	}
}

func TestRegistry_GetOrCreateNeverReplaces(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	s := newTestService(t, p)

	first := s.Registry().GetOrCreate("u1")
	first.Buffer.AppendExchange("q", "a")
	second := s.Registry().GetOrCreate("u1")
	if first != second {
		t.Fatalf("GetOrCreate returned a different session for the same id")
	}
	if second.Buffer.Len() != 2 {
		t.Fatalf("existing buffer replaced")
	}
}
