// Package orchestrator routes user messages through the configured
// providers and records the outcome in the user's session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/obs"
	"github.com/warriorcabo/ai-orchestration-system/internal/provider"
	"github.com/warriorcabo/ai-orchestration-system/internal/session"
)

// Replies returned when a message cannot be answered.
const (
	ErrorReply      = "I encountered an error while processing your request. Please try again."
	ValidationReply = "Please send a non-empty message."
)

// State is a step of the message lifecycle.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateSessionReady State = "SESSION_READY"
	StateDispatched   State = "DISPATCHED"
	StateReplied      State = "REPLIED"
	StateFailed       State = "FAILED"
)

// Stages a failure can come from.
const (
	StageValidate = "validate"
	StagePlan     = "plan"
	StageGenerate = "generate"
	StageReview   = "review"
	StageInternal = "internal"
)

var (
	ErrEmptyUserID  = errors.New("empty user id")
	ErrEmptyMessage = errors.New("empty message")
)

// Failure describes why a message ended in FAILED.
type Failure struct {
	Stage    string
	Provider string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Provider == "" {
		return fmt.Sprintf("%s failed: %v", f.Stage, f.Err)
	}
	return fmt.Sprintf("%s via %s failed after %d attempt(s): %v", f.Stage, f.Provider, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of one processed message.
type Result struct {
	Reply    string
	State    State
	Attempts int
	Reviews  int
	Err      error
}

// Exchange is a completed request/reply pair handed to the OutputStore.
type Exchange struct {
	UserID    string    `yaml:"user_id"`
	SessionID string    `yaml:"session_id"`
	Message   string    `yaml:"message"`
	Task      string    `yaml:"task,omitempty"`
	Reply     string    `yaml:"reply"`
	Reviews   int       `yaml:"reviews"`
	Attempts  int       `yaml:"attempts"`
	Time      time.Time `yaml:"time"`
}

// OutputStore persists completed exchanges.
type OutputStore interface {
	Save(ctx context.Context, ex Exchange) error
}

// Limits are per-connector call limits.
type Limits struct {
	Timeout        time.Duration
	RequestsPerMin int
}

// Options configures an Orchestrator. Planner and Reviewer are optional.
type Options struct {
	Store     session.Store
	Planner   provider.Connector
	Generator provider.Connector
	Reviewer  provider.Connector

	// Zero values mean provider.DefaultParams.
	PlannerParams   provider.Params
	GeneratorParams provider.Params
	ReviewerParams  provider.Params

	MaxRetries       int // attempts per provider call, default 3
	MaxFeedbackLoops int // review iterations, 0 disables review
	BackoffBase      time.Duration
	MaxBackoff       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Limits by connector name. DefaultLimits applies to the rest.
	Limits        map[string]Limits
	DefaultLimits Limits

	Logger  *log.Logger
	Sink    log.ErrorSink
	Output  OutputStore
	Metrics *obs.Metrics
}

// Orchestrator processes messages. Safe for concurrent use.
type Orchestrator struct {
	opts    Options
	store   session.Store
	guards  map[string]*guard
	metrics *obs.Metrics
	stats   counters
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Generator == nil {
		return nil, errors.New("orchestrator: generator connector is required")
	}
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore(session.Options{})
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxFeedbackLoops < 0 {
		opts.MaxFeedbackLoops = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.DefaultLimits.Timeout <= 0 {
		opts.DefaultLimits.Timeout = 60 * time.Second
	}
	if opts.Sink == nil && opts.Logger != nil {
		opts.Sink = opts.Logger
	}

	o := &Orchestrator{
		opts:    opts,
		store:   opts.Store,
		guards:  make(map[string]*guard),
		metrics: opts.Metrics,
	}
	for _, c := range []provider.Connector{opts.Planner, opts.Generator, opts.Reviewer} {
		if c == nil {
			continue
		}
		if _, ok := o.guards[c.Name()]; ok {
			continue
		}
		limits, ok := opts.Limits[c.Name()]
		if !ok {
			limits = opts.DefaultLimits
		}
		if limits.Timeout <= 0 {
			limits.Timeout = opts.DefaultLimits.Timeout
		}
		o.guards[c.Name()] = newGuard(c, limits, opts.BreakerThreshold, opts.BreakerCooldown)
	}
	return o, nil
}

// Store returns the session store.
func (o *Orchestrator) Store() session.Store { return o.store }

// ProcessMessage handles one inbound message and always returns a reply.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, message string) string {
	return o.Process(ctx, userID, message).Reply
}

// Process handles one inbound message and returns the typed outcome.
// It never panics; failures are reported in Result.Err.
func (o *Orchestrator) Process(ctx context.Context, userID, message string) (res Result) {
	start := time.Now()
	o.stats.recordReceived()
	o.logState(userID, StateReceived, "")

	defer func() {
		if r := recover(); r != nil {
			res = o.fail(ctx, userID, &Failure{Stage: StageInternal, Err: fmt.Errorf("panic: %v", r)}, res.Attempts, start)
		}
	}()

	if strings.TrimSpace(userID) == "" {
		res = o.fail(ctx, userID, &Failure{Stage: StageValidate, Err: ErrEmptyUserID}, 0, start)
		res.Reply = ValidationReply
		return res
	}
	if strings.TrimSpace(message) == "" {
		res = o.fail(ctx, userID, &Failure{Stage: StageValidate, Err: ErrEmptyMessage}, 0, start)
		res.Reply = ValidationReply
		return res
	}

	sess := o.store.Acquire(userID)
	defer o.store.Release(sess)
	sess.Begin(message)
	defer sess.EndMessage()
	o.logState(userID, StateSessionReady, sess.ID)

	history := sess.Recent(historyWindow + 1)
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	o.logState(userID, StateDispatched, "")
	out, err := o.dispatch(ctx, sess, userID, message, history)
	res.Attempts = out.attempts
	res.Reviews = out.reviews
	if err != nil {
		return o.fail(ctx, userID, err, out.attempts, start)
	}

	reply := cleanReply(out.reply)
	sess.Append(session.RoleAssistant, reply)
	o.save(ctx, Exchange{
		UserID:    userID,
		SessionID: sess.ID,
		Message:   message,
		Task:      out.task,
		Reply:     reply,
		Reviews:   out.reviews,
		Attempts:  out.attempts,
		Time:      time.Now().UTC(),
	})

	o.stats.recordReplied()
	o.metrics.RecordMessage(ctx, string(StateReplied))
	if o.opts.Logger != nil {
		_ = o.opts.Logger.Append(log.LogEvent{
			Event:      log.EventMessageReplied,
			UserID:     userID,
			State:      string(StateReplied),
			Attempt:    out.attempts,
			Iteration:  out.reviews,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return Result{Reply: reply, State: StateReplied, Attempts: out.attempts, Reviews: out.reviews}
}

type dispatchResult struct {
	task     string
	reply    string
	attempts int
	reviews  int
}

// dispatch runs plan, generate and the review loop.
func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, userID, message string, history []session.Entry) (dispatchResult, error) {
	var out dispatchResult

	if o.opts.Planner != nil {
		prompt, err := BuildTaskPrompt(message, history)
		if err != nil {
			return out, &Failure{Stage: StagePlan, Err: err}
		}
		resp, n, err := o.callWithRetry(ctx, userID, StagePlan, o.guards[o.opts.Planner.Name()],
			provider.Request{Prompt: prompt, Params: o.opts.PlannerParams})
		out.attempts += n
		if err != nil {
			return out, &Failure{Stage: StagePlan, Provider: o.opts.Planner.Name(), Attempts: n, Err: err}
		}
		if !resp.Empty {
			out.task = resp.Text
		}
	}

	prompt, err := BuildExecutePrompt(out.task, message, history)
	if err != nil {
		return out, &Failure{Stage: StageGenerate, Err: err}
	}
	resp, n, err := o.callWithRetry(ctx, userID, StageGenerate, o.guards[o.opts.Generator.Name()],
		provider.Request{Prompt: prompt, Params: o.opts.GeneratorParams})
	out.attempts += n
	if err != nil {
		return out, &Failure{Stage: StageGenerate, Provider: o.opts.Generator.Name(), Attempts: n, Err: err}
	}
	out.reply = resp.Text
	if resp.Empty || o.opts.Reviewer == nil {
		return out, nil
	}

	reviewer := o.opts.Reviewer.Name()
	for i := 0; i < o.opts.MaxFeedbackLoops; i++ {
		iteration := i + 1
		out.reviews = iteration
		sess.BeginReview()

		prompt, err := BuildReviewPrompt(message, out.reply)
		if err != nil {
			o.warn(userID, fmt.Sprintf("review prompt: %v", err))
			break
		}
		resp, n, err := o.callWithRetry(ctx, userID, StageReview, o.guards[reviewer],
			provider.Request{Prompt: prompt, Params: o.opts.ReviewerParams})
		out.attempts += n
		if err != nil {
			o.warn(userID, fmt.Sprintf("review via %s failed, keeping draft: %v", reviewer, err))
			break
		}
		if resp.Empty || isApproved(resp.Text) {
			o.logReview(log.EventReviewApproved, userID, reviewer, iteration)
			break
		}
		revised := cleanReply(resp.Text)
		if isSimilar(out.reply, revised) {
			o.logReview(log.EventReviewApproved, userID, reviewer, iteration)
			break
		}
		out.reply = revised
		o.logReview(log.EventReviewRevised, userID, reviewer, iteration)
	}
	return out, nil
}

// fail finishes a message in FAILED and reports it to the sink once.
func (o *Orchestrator) fail(ctx context.Context, userID string, err error, attempts int, start time.Time) Result {
	o.stats.recordFailed()
	o.metrics.RecordMessage(ctx, string(StateFailed))
	if o.opts.Sink != nil {
		o.opts.Sink.LogError("orchestrator", fmt.Sprintf("user %s: %v", userID, err))
	}
	if o.opts.Logger != nil {
		ev := log.LogEvent{
			Event:      log.EventMessageFailed,
			UserID:     userID,
			State:      string(StateFailed),
			Error:      err.Error(),
			Attempt:    attempts,
			DurationMs: time.Since(start).Milliseconds(),
		}
		var f *Failure
		if errors.As(err, &f) {
			ev.Stage = f.Stage
			ev.Provider = f.Provider
		}
		_ = o.opts.Logger.Append(ev)
	}
	return Result{Reply: ErrorReply, State: StateFailed, Attempts: attempts, Err: err}
}

func (o *Orchestrator) save(ctx context.Context, ex Exchange) {
	if o.opts.Output == nil {
		return
	}
	if err := o.opts.Output.Save(ctx, ex); err != nil {
		if o.opts.Sink != nil {
			o.opts.Sink.LogError("output", fmt.Sprintf("save output for %s: %v", ex.UserID, err))
		}
		return
	}
	if o.opts.Logger != nil {
		_ = o.opts.Logger.Append(log.LogEvent{Event: log.EventOutputSaved, UserID: ex.UserID})
	}
}

func (o *Orchestrator) logState(userID string, state State, sessionID string) {
	if o.opts.Logger == nil {
		return
	}
	event := log.EventMessageReceived
	switch state {
	case StateSessionReady:
		event = log.EventSessionReady
	case StateDispatched:
		event = log.EventMessageDispatched
	}
	ev := log.LogEvent{Event: event, UserID: userID, State: string(state)}
	if sessionID != "" {
		ev.Data = map[string]interface{}{"session_id": sessionID}
	}
	_ = o.opts.Logger.Append(ev)
}

func (o *Orchestrator) logReview(event, userID, reviewer string, iteration int) {
	if o.opts.Logger == nil {
		return
	}
	_ = o.opts.Logger.Append(log.LogEvent{
		Event:     event,
		UserID:    userID,
		Stage:     StageReview,
		Provider:  reviewer,
		Iteration: iteration,
	})
}

func (o *Orchestrator) warn(userID, msg string) {
	if o.opts.Logger == nil {
		return
	}
	_ = o.opts.Logger.Append(log.LogEvent{Event: log.EventWarning, UserID: userID, Source: "orchestrator", Message: msg})
}
