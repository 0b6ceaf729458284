// Package poller drives freshly attached domains to a terminal provisioning
// state by polling the hosting platform on a fixed interval under a wall
// clock budget.
package poller

import (
	"context"
	"log/slog"
	"time"

	"hangar/internal/hosting"
	"hangar/internal/poller/metrics"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// State is where a domain sits in its provisioning lifecycle.
//
// SUBMITTED and PENDING are transient. ACTIVE and FAILED come from the
// platform; TIMEOUT is entered locally when the budget runs out while the
// domain is still PENDING, and only then. The remote side may still finish
// after a TIMEOUT, so callers can poll again later.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateFailed    State = "FAILED"
	StateTimeout   State = "TIMEOUT"
)

// Terminal reports whether the state ends a wait.
func (s State) Terminal() bool {
	return s == StateActive || s == StateFailed || s == StateTimeout
}

const (
	DefaultInterval = 60 * time.Second
	DefaultDeadline = 30 * time.Minute
)

// StatusReader is the slice of the hosting client the poller consumes.
type StatusReader interface {
	DomainStatus(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (hosting.DomainStatus, error)
}

// Outcome is the result of one wait: the terminal (or last observed) state
// plus enough detail to explain it.
type Outcome struct {
	State       State
	Polls       int
	FailedPolls int
	LastStatus  hosting.DomainStatus
	Elapsed     time.Duration
}

// Poller polls domain status until a terminal state or the deadline.
type Poller struct {
	platform StatusReader
	interval time.Duration
	deadline time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the pause between polls.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDeadline sets the default wall clock budget per wait.
func WithDeadline(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.deadline = d
		}
	}
}

// WithClock injects the time source. Tests pass a fake.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSleep injects the inter-poll wait. Tests pass a clock-advancing fake.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics attaches poller metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// New builds a Poller over the given status reader.
func New(platform StatusReader, opts ...Option) (*Poller, error) {
	if platform == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "platform client is required")
	}
	p := &Poller{
		platform: platform,
		interval: DefaultInterval,
		deadline: DefaultDeadline,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// WaitActive polls until the domain reaches a terminal state or the budget
// runs out. A timeout of zero or below uses the configured deadline.
//
// A poll fetch that fails is counted and logged but never changes state;
// the domain stays SUBMITTED or PENDING and the next tick tries again.
// When the budget expires while PENDING the outcome is TIMEOUT, a normal
// return. When the budget expires without a single successful status read
// the wait fails with CodeUnavailable: the poller cannot claim TIMEOUT for
// a domain it never observed.
//
// Context cancellation returns the context error alongside the last
// observed non-terminal state.
func (p *Poller) WaitActive(ctx context.Context, siteID domain.SiteID, name domain.DomainName, timeout time.Duration) (Outcome, error) {
	if siteID.IsNil() {
		return Outcome{}, dErrors.New(dErrors.CodeInvalidInput, "site id is required")
	}
	if name.IsNil() {
		return Outcome{}, dErrors.New(dErrors.CodeInvalidInput, "domain is required")
	}
	if timeout <= 0 {
		timeout = p.deadline
	}

	start := p.now()
	outcome := Outcome{State: StateSubmitted}
	for {
		status, err := p.platform.DomainStatus(ctx, siteID, name)
		outcome.Polls++
		if err != nil {
			if ctx.Err() != nil {
				outcome.Elapsed = p.now().Sub(start)
				return outcome, ctx.Err()
			}
			outcome.FailedPolls++
			p.metrics.IncrementPollError()
			p.logger.WarnContext(ctx, "status poll failed",
				"domain", name,
				"site_id", siteID,
				"poll", outcome.Polls,
				"error", err,
			)
		} else {
			outcome.LastStatus = status
			switch {
			case status.FullyActive():
				outcome.State = StateActive
			case status.FailedEither():
				outcome.State = StateFailed
			default:
				outcome.State = StatePending
			}
		}
		outcome.Elapsed = p.now().Sub(start)

		if outcome.State.Terminal() {
			p.finish(ctx, name, outcome)
			return outcome, nil
		}
		if outcome.Elapsed >= timeout {
			if outcome.State == StatePending {
				outcome.State = StateTimeout
				p.finish(ctx, name, outcome)
				return outcome, nil
			}
			return outcome, dErrors.New(dErrors.CodeUnavailable, "domain status unobserved before deadline")
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			outcome.Elapsed = p.now().Sub(start)
			return outcome, err
		}
	}
}

func (p *Poller) finish(ctx context.Context, name domain.DomainName, outcome Outcome) {
	p.metrics.IncrementOutcome(string(outcome.State))
	p.metrics.ObserveWait(outcome.Elapsed, outcome.Polls)
	p.logger.InfoContext(ctx, "domain reached terminal state",
		"domain", name,
		"state", outcome.State,
		"polls", outcome.Polls,
		"failed_polls", outcome.FailedPolls,
		"elapsed", outcome.Elapsed,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
