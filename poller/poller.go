// Package poller retries an attempt on a fixed interval until it succeeds or
// the retry budget is exhausted.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the state of a poller.
type State int

const (
	// StateIdle is the initial state.
	StateIdle State = iota
	// StatePolling is used while attempts are being made.
	StatePolling
	// StateSucceeded is used once an attempt succeeded.
	StateSucceeded
	// StateExhausted is used when the retry budget ran out.
	StateExhausted
	// StateCanceled is used when the context ended before a terminal state.
	StateCanceled
)

// String returns a string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePolling:
		return "POLLING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateExhausted:
		return "EXHAUSTED"
	case StateCanceled:
		return "CANCELED"
	}
	return "UNSPECIFIED"
}

// StateFromString returns a State from a string.
func StateFromString(s string) State {
	switch s {
	default:
		return StateIdle
	case "POLLING":
		return StatePolling
	case "SUCCEEDED":
		return StateSucceeded
	case "EXHAUSTED":
		return StateExhausted
	case "CANCELED":
		return StateCanceled
	}
}

// Terminal returns true if no attempt can follow this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateCanceled
}

// MarshalJSON marshals a State into a string.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON unmarshals a string into a State.
func (s *State) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	*s = StateFromString(str)
	return nil
}

// Policy bounds the polling.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPolicy polls every 500ms, 40 times (about 20 seconds).
var DefaultPolicy = Policy{
	Interval:    500 * time.Millisecond,
	MaxAttempts: 40,
}

// Attempt makes one try and returns true on success.
type Attempt func(ctx context.Context) bool

// Result is the outcome of a run.
type Result struct {
	State State `json:"state"`
	// Attempts counts the ticks. The immediate attempt on entry is not counted.
	Attempts int `json:"attempts"`
}

// Poller drives an Attempt with a Policy.
type Poller struct {
	policy    Policy
	scheduler Scheduler
	log       zerolog.Logger
	onState   func(State)
}

// Option configures a Poller.
type Option func(*Poller)

// WithScheduler sets the scheduler producing the ticks.
func WithScheduler(s Scheduler) Option {
	return func(p *Poller) {
		p.scheduler = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = logger
	}
}

// WithStateHook registers a function called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(p *Poller) {
		p.onState = fn
	}
}

// New creates a Poller.
func New(policy Policy, opts ...Option) *Poller {
	if policy.MaxAttempts <= 0 {
		log.Panic().Int("maxAttempts", policy.MaxAttempts).Msg("maxAttempts is 0 or negative")
	}
	if policy.Interval <= 0 {
		log.Panic().Dur("interval", policy.Interval).Msg("interval is 0 or negative")
	}
	p := &Poller{
		policy:    policy,
		scheduler: RealScheduler{},
		log:       log.Logger,
		onState:   func(State) {},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run attempts immediately, then once per tick until success or exhaustion.
//
// The ticker is stopped exactly once, when a terminal state is reached.
func (p *Poller) Run(ctx context.Context, attempt Attempt) Result {
	p.onState(StatePolling)

	if ctx.Err() != nil {
		return p.finish(Result{State: StateCanceled})
	}
	if attempt(ctx) {
		return p.finish(Result{State: StateSucceeded})
	}

	ticker := p.scheduler.Every(p.policy.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return p.finish(Result{State: StateCanceled, Attempts: attempts})
		case <-ticker.C():
			attempts++
			if attempt(ctx) {
				return p.finish(Result{State: StateSucceeded, Attempts: attempts})
			}
			if attempts >= p.policy.MaxAttempts {
				p.log.Warn().
					Int("attempts", attempts).
					Msg("reached max attempts, giving up")
				return p.finish(Result{State: StateExhausted, Attempts: attempts})
			}
		}
	}
}

func (p *Poller) finish(r Result) Result {
	p.onState(r.State)
	return r
}
