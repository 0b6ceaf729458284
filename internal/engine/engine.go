package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hangar/internal/allocator"
	"hangar/internal/poller"
	"hangar/internal/registry"
	"hangar/internal/scheduler"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// Engine is a facade composing the allocator, scheduler, poller and site
// registry. Transports depend on this unified surface and hand it raw wire
// input; parsing happens here so HTTP, CLI and test drivers stay thin.
type Engine struct {
	allocator *allocator.Service
	scheduler *scheduler.Service
	poller    *poller.Poller
	registry  *registry.Cache
	logger    *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(
	alloc *allocator.Service,
	sched *scheduler.Service,
	poll *poller.Poller,
	reg *registry.Cache,
	opts ...Option,
) (*Engine, error) {
	if alloc == nil {
		return nil, fmt.Errorf("allocator service is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler service is required")
	}
	if poll == nil {
		return nil, fmt.Errorf("poller is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry cache is required")
	}

	e := &Engine{
		allocator: alloc,
		scheduler: sched,
		poller:    poll,
		registry:  reg,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// BatchParams carries one batch submission as transports receive it.
type BatchParams struct {
	Scope   string
	Domains []string
	Wait    bool
}

// Allocate places a single domain. An empty category means classify from
// the name.
func (e *Engine) Allocate(ctx context.Context, name, category string) (allocator.Allocation, error) {
	dn, err := domain.ParseDomainName(name)
	if err != nil {
		return allocator.Allocation{}, err
	}

	var preferred domain.Category
	if category != "" {
		preferred, err = domain.ParseCategory(category)
		if err != nil {
			return allocator.Allocation{}, err
		}
	}

	return e.allocator.Allocate(ctx, dn, preferred)
}

// RunBatch executes one batch run to completion and returns it.
func (e *Engine) RunBatch(ctx context.Context, p BatchParams) (*scheduler.BatchRun, error) {
	scope, err := scheduler.ParseScope(p.Scope)
	if err != nil {
		return nil, err
	}

	return e.scheduler.RunBatch(ctx, scheduler.BatchRequest{
		Scope:   scope,
		Domains: p.Domains,
		Wait:    p.Wait,
	})
}

// StartBatch validates the submission, then executes the run in the
// background on a context detached from the caller's cancellation. The
// returned ID can be polled through Run while the batch is in flight.
func (e *Engine) StartBatch(ctx context.Context, p BatchParams) (domain.BatchID, error) {
	scope, err := scheduler.ParseScope(p.Scope)
	if err != nil {
		return domain.BatchID{}, err
	}
	if len(p.Domains) == 0 {
		return domain.BatchID{}, dErrors.New(dErrors.CodeInvalidInput, "at least one domain is required")
	}

	id := domain.NewBatchID()
	bg := context.WithoutCancel(ctx)
	go func() {
		_, err := e.scheduler.RunBatch(bg, scheduler.BatchRequest{
			ID:      id,
			Scope:   scope,
			Domains: p.Domains,
			Wait:    p.Wait,
		})
		if err != nil {
			e.logger.ErrorContext(bg, "background batch run failed",
				"batch_id", id,
				"error", err,
			)
		}
	}()

	return id, nil
}

// Run loads one archived batch run by ID.
func (e *Engine) Run(ctx context.Context, id string) (scheduler.BatchRun, error) {
	batchID, err := domain.ParseBatchID(id)
	if err != nil {
		return scheduler.BatchRun{}, err
	}
	return e.scheduler.Run(ctx, batchID)
}

// Runs lists archived batch runs, newest first. A non-positive limit
// returns all of them.
func (e *Engine) Runs(ctx context.Context, limit int) ([]scheduler.BatchRun, error) {
	return e.scheduler.Runs(ctx, limit)
}

// WaitActive drives a submitted domain to a terminal provisioning state.
// A non-positive timeout uses the poller's configured deadline.
func (e *Engine) WaitActive(ctx context.Context, siteID, name string, timeout time.Duration) (poller.Outcome, error) {
	sid, err := domain.ParseSiteID(siteID)
	if err != nil {
		return poller.Outcome{}, err
	}
	dn, err := domain.ParseDomainName(name)
	if err != nil {
		return poller.Outcome{}, err
	}
	return e.poller.WaitActive(ctx, sid, dn, timeout)
}

// Counts returns the registry occupancy snapshot, cached when fresh.
func (e *Engine) Counts(ctx context.Context, useCache bool) (registry.Snapshot, error) {
	return e.registry.Counts(ctx, useCache)
}

// RefreshRegistry forces a full registry fetch regardless of cache age.
func (e *Engine) RefreshRegistry(ctx context.Context) (registry.Snapshot, error) {
	return e.registry.Refresh(ctx)
}
