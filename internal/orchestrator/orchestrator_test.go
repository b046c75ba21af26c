package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/provider"
	"github.com/warriorcabo/ai-orchestration-system/internal/session"
)

func transient(msg string) error {
	return &provider.TransientError{Provider: "test", Err: errors.New(msg)}
}

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 5 * time.Millisecond
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func TestSummarizeScenario(t *testing.T) {
	gen := provider.NewMock("generator", provider.MockStep{Text: "Draft A"})
	rev := provider.NewMock("reviewer", provider.MockStep{Text: "Draft A (reviewed)"})
	store := session.NewMemoryStore(session.Options{})

	o := newTestOrchestrator(t, Options{
		Store:            store,
		Generator:        gen,
		Reviewer:         rev,
		MaxFeedbackLoops: 2,
	})

	reply := o.ProcessMessage(context.Background(), "u1", "Summarize X")
	if reply != "Draft A (reviewed)" {
		t.Fatalf("reply = %q, want %q", reply, "Draft A (reviewed)")
	}

	s, ok := store.Get("u1")
	if !ok {
		t.Fatal("session not created")
	}
	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].Role != session.RoleUser || h[0].Content != "Summarize X" {
		t.Errorf("entry 0 = %+v", h[0])
	}
	if h[1].Role != session.RoleAssistant || h[1].Content != "Draft A (reviewed)" {
		t.Errorf("entry 1 = %+v", h[1])
	}
	if s.FeedbackCount() != 0 {
		t.Errorf("FeedbackCount = %d, want reset to 0", s.FeedbackCount())
	}
	if rev.CallCount() != 2 {
		t.Errorf("reviewer calls = %d, want 2 (second one unchanged)", rev.CallCount())
	}
}

func TestHistoryGrowsByTwoPerMessage(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	o := newTestOrchestrator(t, Options{Store: store, Generator: provider.NewMock("g")})

	const n = 5
	for i := 0; i < n; i++ {
		res := o.Process(context.Background(), "u1", fmt.Sprintf("message %d", i))
		if res.State != StateReplied {
			t.Fatalf("message %d: state %s, err %v", i, res.State, res.Err)
		}
	}
	s, _ := store.Get("u1")
	if s.Len() != 2*n {
		t.Errorf("history length = %d, want %d", s.Len(), 2*n)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	var sink log.Recorder
	gen := provider.NewMock("g",
		provider.MockStep{Err: transient("503")},
		provider.MockStep{Err: transient("503")},
		provider.MockStep{Text: "finally"},
	).WithSink(&sink)

	o := newTestOrchestrator(t, Options{Generator: gen, Sink: &sink, MaxRetries: 3})
	res := o.Process(context.Background(), "u1", "hello")

	if res.State != StateReplied || res.Reply != "finally" {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if sink.Count("g") != 2 {
		t.Errorf("connector records = %d, want 2", sink.Count("g"))
	}
	if sink.Count("orchestrator") != 0 {
		t.Errorf("orchestrator records = %d, want 0", sink.Count("orchestrator"))
	}
}

func TestRetriesExhausted(t *testing.T) {
	for _, maxRetries := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("max_retries=%d", maxRetries), func(t *testing.T) {
			var sink log.Recorder
			gen := provider.NewMock("g", provider.MockStep{Err: transient("down")}).WithSink(&sink)
			store := session.NewMemoryStore(session.Options{})

			o := newTestOrchestrator(t, Options{Store: store, Generator: gen, Sink: &sink, MaxRetries: maxRetries})
			res := o.Process(context.Background(), "u1", "hello")

			if res.State != StateFailed || res.Reply != ErrorReply {
				t.Fatalf("result = %+v", res)
			}
			if gen.CallCount() != maxRetries || res.Attempts != maxRetries {
				t.Errorf("calls = %d, attempts = %d, want %d", gen.CallCount(), res.Attempts, maxRetries)
			}
			if sink.Count("g") != maxRetries {
				t.Errorf("connector records = %d, want %d", sink.Count("g"), maxRetries)
			}
			if sink.Count("orchestrator") != 1 {
				t.Errorf("orchestrator records = %d, want 1", sink.Count("orchestrator"))
			}

			var f *Failure
			if !errors.As(res.Err, &f) || f.Stage != StageGenerate || f.Provider != "g" {
				t.Errorf("Err = %v, want generate Failure from g", res.Err)
			}

			s, _ := store.Get("u1")
			if h := s.History(); len(h) != 1 || h[0].Role != session.RoleUser {
				t.Errorf("failed message should leave only the user entry, got %+v", h)
			}
		})
	}
}

func TestNonTransientErrorIsNotRetried(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Err: &provider.APIError{Provider: "g", StatusCode: 400, Message: "bad"}})
	o := newTestOrchestrator(t, Options{Generator: gen, MaxRetries: 3})

	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateFailed {
		t.Fatalf("state = %s", res.State)
	}
	if gen.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", gen.CallCount())
	}
}

func TestEmptyResponseFallback(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Empty: true})
	rev := provider.NewMock("r", provider.MockStep{Text: "something else entirely"})
	o := newTestOrchestrator(t, Options{Generator: gen, Reviewer: rev, MaxFeedbackLoops: 2})

	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateReplied || res.Reply != provider.FallbackText {
		t.Fatalf("result = %+v", res)
	}
	if gen.CallCount() != 1 {
		t.Errorf("empty response must not be retried, calls = %d", gen.CallCount())
	}
	if rev.CallCount() != 0 {
		t.Errorf("fallback text should not be reviewed, reviewer calls = %d", rev.CallCount())
	}
}

func TestReviewApprovedKeepsDraft(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Text: "Draft A"})
	rev := provider.NewMock("r", provider.MockStep{Text: "Approved."})
	o := newTestOrchestrator(t, Options{Generator: gen, Reviewer: rev, MaxFeedbackLoops: 2})

	res := o.Process(context.Background(), "u1", "hello")
	if res.Reply != "Draft A" {
		t.Errorf("reply = %q, want Draft A", res.Reply)
	}
	if res.Reviews != 1 || rev.CallCount() != 1 {
		t.Errorf("reviews = %d, reviewer calls = %d, want 1", res.Reviews, rev.CallCount())
	}
}

func TestReviewLoopBounded(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Text: "v0"})
	n := 0
	rev := provider.NewMockFunc("r", func(provider.Request) (string, error) {
		n++
		return fmt.Sprintf("revision number %d with plenty of new words %s", n, strings.Repeat("x", n*20)), nil
	})
	o := newTestOrchestrator(t, Options{Generator: gen, Reviewer: rev, MaxFeedbackLoops: 2})

	res := o.Process(context.Background(), "u1", "hello")
	if rev.CallCount() != 2 {
		t.Errorf("reviewer calls = %d, want 2", rev.CallCount())
	}
	if !strings.HasPrefix(res.Reply, "revision number 2") {
		t.Errorf("reply = %q, want second revision", res.Reply)
	}
}

func TestReviewFailureKeepsDraft(t *testing.T) {
	var sink log.Recorder
	gen := provider.NewMock("g", provider.MockStep{Text: "Draft A"})
	rev := provider.NewMock("r", provider.MockStep{Err: transient("down")}).WithSink(&sink)
	o := newTestOrchestrator(t, Options{Generator: gen, Reviewer: rev, MaxFeedbackLoops: 2, MaxRetries: 2, Sink: &sink})

	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateReplied || res.Reply != "Draft A" {
		t.Fatalf("result = %+v", res)
	}
	if sink.Count("r") != 2 {
		t.Errorf("reviewer records = %d, want 2", sink.Count("r"))
	}
	if sink.Count("orchestrator") != 0 {
		t.Error("a failed review must not fail the message")
	}
}

func TestPlannerFeedsGenerator(t *testing.T) {
	planner := provider.NewMock("p", provider.MockStep{Text: "TASK: write a haiku"})
	gen := provider.NewMock("g", provider.MockStep{Text: "haiku"})
	store := session.NewMemoryStore(session.Options{})
	o := newTestOrchestrator(t, Options{
		Store:         store,
		Planner:       planner,
		Generator:     gen,
		PlannerParams: provider.Params{Temperature: 0.2, MaxTokens: 2048, TopP: 1},
	})

	o.ProcessMessage(context.Background(), "u1", "first")
	o.ProcessMessage(context.Background(), "u1", "write a haiku")

	calls := planner.Calls()
	if len(calls) != 2 {
		t.Fatalf("planner calls = %d", len(calls))
	}
	if calls[1].Params.Temperature != 0.2 {
		t.Errorf("planner temperature = %v", calls[1].Params.Temperature)
	}
	if !strings.Contains(calls[1].Prompt, "User: first") || !strings.Contains(calls[1].Prompt, "Assistant: haiku") {
		t.Errorf("planner prompt missing history:\n%s", calls[1].Prompt)
	}
	if !strings.Contains(calls[1].Prompt, "Current user request: write a haiku") {
		t.Errorf("planner prompt missing request:\n%s", calls[1].Prompt)
	}
	if !strings.Contains(gen.Calls()[1].Prompt, "TASK: write a haiku") {
		t.Errorf("generator prompt missing task:\n%s", gen.Calls()[1].Prompt)
	}
}

func TestPlannerFailureFails(t *testing.T) {
	planner := provider.NewMock("p", provider.MockStep{Err: transient("down")})
	gen := provider.NewMock("g")
	o := newTestOrchestrator(t, Options{Planner: planner, Generator: gen, MaxRetries: 1})

	res := o.Process(context.Background(), "u1", "hello")
	var f *Failure
	if !errors.As(res.Err, &f) || f.Stage != StagePlan {
		t.Fatalf("Err = %v, want plan failure", res.Err)
	}
	if gen.CallCount() != 0 {
		t.Error("generator should not run after a failed plan")
	}
}

func TestValidation(t *testing.T) {
	gen := provider.NewMock("g")
	store := session.NewMemoryStore(session.Options{})
	o := newTestOrchestrator(t, Options{Store: store, Generator: gen})

	tests := []struct {
		name, user, message string
		want                error
	}{
		{"empty user", "", "hello", ErrEmptyUserID},
		{"blank message", "u1", "  \n", ErrEmptyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := o.Process(context.Background(), tt.user, tt.message)
			if res.State != StateFailed || res.Reply != ValidationReply || !errors.Is(res.Err, tt.want) {
				t.Errorf("result = %+v", res)
			}
		})
	}
	if gen.CallCount() != 0 || store.Len() != 0 {
		t.Errorf("invalid input reached providers (%d) or created sessions (%d)", gen.CallCount(), store.Len())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	var sink log.Recorder
	gen := provider.NewMockFunc("g", func(provider.Request) (string, error) {
		panic("connector bug")
	})
	o := newTestOrchestrator(t, Options{Generator: gen, Sink: &sink})

	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateFailed || res.Reply != ErrorReply {
		t.Fatalf("result = %+v", res)
	}
	if sink.Count("orchestrator") != 1 {
		t.Errorf("orchestrator records = %d, want 1", sink.Count("orchestrator"))
	}
}

func TestCircuitBreakerStopsCalls(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Err: transient("down")})
	o := newTestOrchestrator(t, Options{Generator: gen, MaxRetries: 3, BreakerThreshold: 1})

	res := o.Process(context.Background(), "u1", "hello")
	if !errors.Is(res.Err, ErrCircuitOpen) {
		t.Errorf("Err = %v, want ErrCircuitOpen", res.Err)
	}
	if gen.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", gen.CallCount())
	}

	o.Process(context.Background(), "u2", "hello")
	if gen.CallCount() != 1 {
		t.Errorf("open breaker should block further calls, got %d", gen.CallCount())
	}

	st := o.Stats()
	if len(st.Providers) != 1 || st.Providers[0].Breaker != BreakerOpen {
		t.Errorf("Stats providers = %+v", st.Providers)
	}
	if st.Failed != 2 || st.Received != 2 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestCallTimeout(t *testing.T) {
	gen := provider.NewMock("g", provider.MockStep{Text: "late", Delay: time.Second})
	o := newTestOrchestrator(t, Options{
		Generator:  gen,
		MaxRetries: 2,
		Limits:     map[string]Limits{"g": {Timeout: 10 * time.Millisecond}},
	})

	start := time.Now()
	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateFailed {
		t.Fatalf("state = %s", res.State)
	}
	if gen.CallCount() != 2 {
		t.Errorf("calls = %d, want 2", gen.CallCount())
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("per-call timeout not applied, took %v", time.Since(start))
	}
}

func TestConcurrentUsers(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	gen := provider.NewMockFunc("g", func(r provider.Request) (string, error) {
		return "ok", nil
	})
	o := newTestOrchestrator(t, Options{Store: store, Generator: gen})

	users := []string{"alice", "bob", "carol", "dave"}
	const perUser = 10

	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u string, i int) {
				defer wg.Done()
				o.ProcessMessage(context.Background(), u, fmt.Sprintf("%s says %d", u, i))
			}(u, i)
		}
	}
	wg.Wait()

	for _, u := range users {
		s, ok := store.Get(u)
		if !ok {
			t.Fatalf("missing session for %s", u)
		}
		h := s.History()
		if len(h) != 2*perUser {
			t.Errorf("%s: history length = %d, want %d", u, len(h), 2*perUser)
		}
		for _, e := range h {
			if e.Role == session.RoleUser && !strings.HasPrefix(e.Content, u+" says") {
				t.Errorf("%s: foreign entry %q", u, e.Content)
			}
		}
	}
	if st := o.Stats(); st.Replied != len(users)*perUser || st.InFlight != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

type recordingOutput struct {
	mu    sync.Mutex
	saved []Exchange
	err   error
}

func (r *recordingOutput) Save(_ context.Context, ex Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, ex)
	return nil
}

func TestOutputStore(t *testing.T) {
	out := &recordingOutput{}
	o := newTestOrchestrator(t, Options{Generator: provider.NewMock("g", provider.MockStep{Text: "reply"}), Output: out})

	o.ProcessMessage(context.Background(), "u1", "hello")
	if len(out.saved) != 1 || out.saved[0].Reply != "reply" || out.saved[0].Message != "hello" {
		t.Errorf("saved = %+v", out.saved)
	}

	var sink log.Recorder
	failing := &recordingOutput{err: errors.New("disk full")}
	o = newTestOrchestrator(t, Options{Generator: provider.NewMock("g", provider.MockStep{Text: "reply"}), Output: failing, Sink: &sink})
	res := o.Process(context.Background(), "u1", "hello")
	if res.State != StateReplied || res.Reply != "reply" {
		t.Errorf("output failure changed the result: %+v", res)
	}
	if sink.Count("output") != 1 {
		t.Errorf("output records = %d, want 1", sink.Count("output"))
	}
}

func TestEventsAreLogged(t *testing.T) {
	logger, err := log.NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := newTestOrchestrator(t, Options{Generator: provider.NewMock("g"), Logger: logger})
	o.ProcessMessage(context.Background(), "u1", "hello")

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range events {
		got = append(got, e.Event)
	}
	want := []string{
		log.EventMessageReceived,
		log.EventSessionReady,
		log.EventMessageDispatched,
		log.EventProviderCall,
		log.EventMessageReplied,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestNewRequiresGenerator(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a generator")
	}
}

func TestEvictionWhileInFlightKeepsHistory(t *testing.T) {
	store := session.NewMemoryStore(session.Options{MaxSessions: 1})

	started := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	gen := provider.NewMockFunc("g", func(provider.Request) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-unblock
		}
		return "ok", nil
	})
	o := newTestOrchestrator(t, Options{Store: store, Generator: gen})

	done := make(chan Result)
	go func() { done <- o.Process(context.Background(), "alice", "m1") }()
	<-started

	o.Process(context.Background(), "bob", "hi")
	close(unblock)
	if res := <-done; res.State != StateReplied {
		t.Fatalf("m1 state = %s", res.State)
	}

	o.Process(context.Background(), "alice", "m2")

	s, ok := store.Get("alice")
	if !ok {
		t.Fatal("missing session for alice")
	}
	h := s.History()
	want := []string{"m1", "ok", "m2", "ok"}
	if len(h) != len(want) {
		t.Fatalf("history = %+v, want %d entries", h, len(want))
	}
	for i, e := range h {
		if e.Content != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, e.Content, want[i])
		}
	}
}

func TestConcurrentMessagesCountOwnReviews(t *testing.T) {
	gen := provider.NewMockFunc("g", func(provider.Request) (string, error) {
		return "v0", nil
	})

	both := make(chan struct{})
	var calls atomic.Int32
	rev := provider.NewMockFunc("r", func(provider.Request) (string, error) {
		n := calls.Add(1)
		if n == 2 {
			close(both)
		}
		if n <= 2 {
			// Hold the first review of each message until both are in review.
			select {
			case <-both:
			case <-time.After(2 * time.Second):
			}
		}
		return fmt.Sprintf("revision %d %s", n, strings.Repeat("x", int(n)*20)), nil
	})
	o := newTestOrchestrator(t, Options{Generator: gen, Reviewer: rev, MaxFeedbackLoops: 2})

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Process(context.Background(), "u1", fmt.Sprintf("question %d", i))
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.State != StateReplied {
			t.Fatalf("message %d state = %s", i, res.State)
		}
		if res.Reviews != 2 {
			t.Errorf("message %d reviews = %d, want 2", i, res.Reviews)
		}
	}
	if rev.CallCount() != 4 {
		t.Errorf("reviewer calls = %d, want 4", rev.CallCount())
	}
}
