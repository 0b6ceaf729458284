package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hangar/internal/hosting"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// scriptedReader replays a fixed sequence of status answers; the last step
// repeats once the script runs out.
type scriptedReader struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	status hosting.DomainStatus
	err    error
}

func (r *scriptedReader) DomainStatus(context.Context, domain.SiteID, domain.DomainName) (hosting.DomainStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i >= len(r.steps) {
		i = len(r.steps) - 1
	}
	return r.steps[i].status, r.steps[i].err
}

// fakeClock advances only when the poller sleeps, so waits that span hours
// of simulated wall clock run instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func pending() hosting.DomainStatus {
	return hosting.DomainStatus{Status: hosting.StatusPending, CertStatus: hosting.StatusPending}
}

func active() hosting.DomainStatus {
	return hosting.DomainStatus{Status: hosting.StatusActive, CertStatus: hosting.StatusActive}
}

func certLagging() hosting.DomainStatus {
	return hosting.DomainStatus{Status: hosting.StatusActive, CertStatus: hosting.StatusPending}
}

func certFailed() hosting.DomainStatus {
	return hosting.DomainStatus{Status: hosting.StatusActive, CertStatus: hosting.StatusFailed}
}

type PollerSuite struct {
	suite.Suite

	clock  *fakeClock
	siteID domain.SiteID
	name   domain.DomainName
}

func TestPollerSuite(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}

	var err error
	s.siteID, err = domain.ParseSiteID("opus-site-2")
	s.Require().NoError(err)
	s.name, err = domain.ParseDomainName("wing3.example.com")
	s.Require().NoError(err)
}

func (s *PollerSuite) poller(reader StatusReader, opts ...Option) *Poller {
	base := []Option{
		WithClock(s.clock.Now),
		WithSleep(s.clock.Sleep),
	}
	p, err := New(reader, append(base, opts...)...)
	s.Require().NoError(err)
	return p
}

// ============================================================
// Construction
// ============================================================

func (s *PollerSuite) TestNewValidation() {
	_, err := New(nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *PollerSuite) TestWaitActiveInputValidation() {
	p := s.poller(&scriptedReader{steps: []step{{status: active()}}})

	_, err := p.WaitActive(context.Background(), domain.SiteID(""), s.name, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = p.WaitActive(context.Background(), s.siteID, domain.DomainName(""), 0)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// ============================================================
// Terminal transitions
// ============================================================

func (s *PollerSuite) TestImmediatelyActive() {
	p := s.poller(&scriptedReader{steps: []step{{status: active()}}})

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateActive, outcome.State)
	s.Equal(1, outcome.Polls)
	s.Equal(time.Duration(0), outcome.Elapsed)
}

func (s *PollerSuite) TestPendingThenActive() {
	p := s.poller(&scriptedReader{steps: []step{
		{status: pending()},
		{status: pending()},
		{status: active()},
	}}, WithInterval(time.Minute))

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateActive, outcome.State)
	s.Equal(3, outcome.Polls)
	s.Equal(2*time.Minute, outcome.Elapsed)
}

func (s *PollerSuite) TestRoutingActiveAloneIsNotEnough() {
	p := s.poller(&scriptedReader{steps: []step{
		{status: certLagging()},
		{status: active()},
	}}, WithInterval(time.Minute))

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateActive, outcome.State)
	s.Equal(2, outcome.Polls, "cert still pending on the first poll must not terminate the wait")
}

func (s *PollerSuite) TestCertFailureIsTerminal() {
	p := s.poller(&scriptedReader{steps: []step{
		{status: pending()},
		{status: certFailed()},
	}}, WithInterval(time.Minute))

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateFailed, outcome.State)
	s.Equal(2, outcome.Polls)
	s.Equal(hosting.StatusFailed, outcome.LastStatus.CertStatus)
}

// ============================================================
// Deadline behavior
// ============================================================

func (s *PollerSuite) TestTimeoutFromPendingAtDeadline() {
	p := s.poller(&scriptedReader{steps: []step{{status: pending()}}},
		WithInterval(time.Minute),
		WithDeadline(30*time.Minute),
	)

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateTimeout, outcome.State)
	s.Equal(31, outcome.Polls)
	s.Equal(30*time.Minute, outcome.Elapsed)
}

func (s *PollerSuite) TestPerCallTimeoutOverridesDeadline() {
	p := s.poller(&scriptedReader{steps: []step{{status: pending()}}},
		WithInterval(time.Minute),
		WithDeadline(30*time.Minute),
	)

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 90*time.Second)
	s.Require().NoError(err)
	s.Equal(StateTimeout, outcome.State)
	s.Equal(3, outcome.Polls)
	s.Equal(2*time.Minute, outcome.Elapsed)
}

func (s *PollerSuite) TestActiveOnTheFinalPollBeatsTimeout() {
	// The poll landing exactly on the deadline still reads the remote
	// status, so a last-moment ACTIVE wins over TIMEOUT.
	p := s.poller(&scriptedReader{steps: []step{
		{status: pending()},
		{status: pending()},
		{status: active()},
	}}, WithInterval(time.Minute))

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 2*time.Minute)
	s.Require().NoError(err)
	s.Equal(StateActive, outcome.State)
	s.Equal(3, outcome.Polls)
}

// ============================================================
// Poll failures
// ============================================================

func (s *PollerSuite) TestFetchFailuresDoNotTransition() {
	boom := errors.New("connection reset")
	p := s.poller(&scriptedReader{steps: []step{
		{err: boom},
		{status: pending()},
		{err: boom},
		{status: active()},
	}}, WithInterval(time.Minute))

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 0)
	s.Require().NoError(err)
	s.Equal(StateActive, outcome.State)
	s.Equal(4, outcome.Polls)
	s.Equal(2, outcome.FailedPolls)
}

func (s *PollerSuite) TestNeverObservedIsUnavailableNotTimeout() {
	p := s.poller(&scriptedReader{steps: []step{{err: errors.New("connection reset")}}},
		WithInterval(time.Minute),
	)

	outcome, err := p.WaitActive(context.Background(), s.siteID, s.name, 2*time.Minute)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(StateSubmitted, outcome.State)
	s.Equal(3, outcome.Polls)
	s.Equal(3, outcome.FailedPolls)
}

// ============================================================
// Cancellation
// ============================================================

func (s *PollerSuite) TestCancellationReturnsLastObservedState() {
	ctx, cancel := context.WithCancel(context.Background())

	reader := &scriptedReader{steps: []step{{status: pending()}}}
	cancelingSleep := func(sleepCtx context.Context, d time.Duration) error {
		cancel()
		return s.clock.Sleep(sleepCtx, d)
	}

	p, err := New(reader,
		WithClock(s.clock.Now),
		WithSleep(cancelingSleep),
		WithInterval(time.Minute),
	)
	s.Require().NoError(err)

	outcome, err := p.WaitActive(ctx, s.siteID, s.name, 0)
	s.Require().ErrorIs(err, context.Canceled)
	s.Equal(StatePending, outcome.State)
	s.Equal(1, outcome.Polls)
}
