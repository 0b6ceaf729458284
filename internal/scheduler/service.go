package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	contracts "hangar/contracts/events"
	"hangar/internal/allocator"
	"hangar/internal/events"
	"hangar/internal/hosting"
	"hangar/internal/platform/config"
	"hangar/internal/poller"
	"hangar/internal/quota"
	"hangar/internal/registry"
	"hangar/internal/scheduler/metrics"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
	"hangar/pkg/platform/retry"
	"hangar/pkg/platform/sentinel"
)

// Defaults applied when options leave fields zero.
const (
	DefaultWorkers     = 3
	DefaultSubmitDelay = 2 * time.Second
	DefaultMaxPerBatch = 30
)

// Allocator picks sites for admitted domains.
type Allocator interface {
	Allocate(ctx context.Context, name domain.DomainName, preferred domain.Category) (allocator.Allocation, error)
	Topology() allocator.Topology
}

// Platform attaches domains to their allocated sites.
type Platform interface {
	AddDomain(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (hosting.AddDomainResult, error)
}

// Registrar pushes the DNS records the platform hands back on attach.
type Registrar interface {
	UpsertRecords(ctx context.Context, name domain.DomainName, records []domain.DNSRecord) error
}

// Waiter blocks until a submitted domain reaches a terminal provisioning
// state or the polling deadline passes.
type Waiter interface {
	WaitActive(ctx context.Context, siteID domain.SiteID, name domain.DomainName, timeout time.Duration) (poller.Outcome, error)
}

// Occupancy is the registry slice the quota arithmetic reads.
type Occupancy interface {
	Counts(ctx context.Context, useCache bool) (registry.Snapshot, error)
}

// BatchRequest is one batch submission.
type BatchRequest struct {
	// Scope selects whose occupancy counts against the quota. Empty means
	// platform. A category scope also pins every domain to that category.
	Scope Scope

	// Domains in submission order. Order decides who survives admission.
	Domains []string

	// ID pre-assigns the run ID. Zero means mint a fresh one; transports
	// that answer before the run completes need the ID up front.
	ID domain.BatchID

	// Quota overrides the configured limits for this run only.
	Quota *config.QuotaConfig

	// Wait holds each worker on its domain until provisioning reaches a
	// terminal state instead of returning at submission.
	Wait bool
}

// Service runs batches: it snapshots the quota, admits what fits, and
// drives the admitted domains through allocate, attach, DNS push and
// optionally the provisioning wait.
type Service struct {
	alloc     Allocator
	counts    Occupancy
	platform  Platform
	registrar Registrar
	waiter    Waiter

	runs        RunStore
	issuance    quota.Store
	quota       config.QuotaConfig
	workers     int
	submitDelay time.Duration
	maxPerBatch int
	retry       retry.Policy

	events  events.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures the Service.
type Option func(*Service)

// WithRunStore sets where batch runs are persisted. Defaults to memory.
func WithRunStore(store RunStore) Option {
	return func(s *Service) {
		if store != nil {
			s.runs = store
		}
	}
}

// WithQuotaStore sets the daily issuance ledger. Defaults to memory.
func WithQuotaStore(store quota.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.issuance = store
		}
	}
}

// WithQuotaConfig sets the project and daily limits.
func WithQuotaConfig(cfg config.QuotaConfig) Option {
	return func(s *Service) {
		s.quota = cfg
	}
}

// WithWorkers bounds how many domains provision concurrently.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSubmitDelay paces submissions within each worker.
func WithSubmitDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.submitDelay = d
		}
	}
}

// WithMaxPerBatch caps admissions per run regardless of quota headroom.
func WithMaxPerBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPerBatch = n
		}
	}
}

// WithRetryPolicy bounds platform and registrar call retries.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithEvents sets the lifecycle event publisher.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithLogger sets a logger for batch reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time source for quota days and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep sets the waiter used for submission pacing. Tests inject a
// recorder; the default honors context cancellation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// New creates a batch scheduler over the provisioning collaborators.
func New(alloc Allocator, counts Occupancy, platform Platform, registrar Registrar, waiter Waiter, opts ...Option) (*Service, error) {
	if alloc == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "allocator is required")
	}
	if counts == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "site counts are required")
	}
	if platform == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "hosting platform is required")
	}
	if registrar == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registrar is required")
	}
	if waiter == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "status waiter is required")
	}
	s := &Service{
		alloc:       alloc,
		counts:      counts,
		platform:    platform,
		registrar:   registrar,
		waiter:      waiter,
		runs:        NewMemoryRunStore(),
		issuance:    quota.NewMemoryStore(),
		workers:     DefaultWorkers,
		submitDelay: DefaultSubmitDelay,
		maxPerBatch: DefaultMaxPerBatch,
		events:      events.Nop{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("hangar/scheduler"),
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run returns one stored batch run.
func (s *Service) Run(ctx context.Context, id domain.BatchID) (BatchRun, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return BatchRun{}, dErrors.Wrap(err, dErrors.CodeNotFound, "batch run not found")
		}
		return BatchRun{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load batch run")
	}
	return run, nil
}

// Runs returns the most recently started runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]BatchRun, error) {
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list batch runs")
	}
	return runs, nil
}

// RunBatch executes one batch request and returns the finished run.
//
// The quota gate runs first: remaining headroom at or below zero fails every
// requested domain without touching the platform. Otherwise the request is
// split into admitted and deferred by submission order, and the admitted
// slice is provisioned by a bounded worker pool. One domain's failure never
// aborts the rest; every requested domain lands in exactly one of the
// successful, failed or skipped buckets.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (*BatchRun, error) {
	scope, err := ParseScope(req.Scope.String())
	if err != nil {
		return nil, err
	}
	if len(req.Domains) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch needs at least one domain")
	}

	limits := s.quota
	if req.Quota != nil {
		limits = *req.Quota
	}

	ctx, span := s.tracer.Start(ctx, "scheduler.RunBatch", trace.WithAttributes(
		attribute.String("batch.scope", scope.String()),
		attribute.Int("batch.requested", len(req.Domains)),
	))
	defer span.End()

	snapshot, err := s.quotaSnapshot(ctx, scope, limits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota snapshot")
		return nil, err
	}
	s.metrics.SetQuotaRemaining(snapshot.Remaining)

	runID := req.ID
	if runID == (domain.BatchID{}) {
		runID = domain.NewBatchID()
	}

	startedAt := s.now()
	run := BatchRun{
		ID:        runID,
		Scope:     scope,
		State:     RunStateRunning,
		Quota:     snapshot,
		Requested: append([]string(nil), req.Domains...),
		StartedAt: startedAt,
	}
	span.SetAttributes(attribute.String("batch.id", run.ID.String()))

	if snapshot.Remaining <= 0 {
		return s.finishExhausted(ctx, run)
	}

	admit := len(run.Requested)
	if snapshot.Remaining < admit {
		admit = snapshot.Remaining
	}
	if s.maxPerBatch < admit {
		admit = s.maxPerBatch
	}
	run.Admitted = append([]string(nil), run.Requested[:admit]...)
	for i, name := range run.Requested[admit:] {
		reason := ReasonExceedsBatchLimit
		if admit+i >= snapshot.Remaining {
			reason = ReasonExceedsQuota
		}
		run.Deferred = append(run.Deferred, name)
		run.Skipped = append(run.Skipped, DomainResult{
			Domain:      name,
			Reason:      reason,
			CompletedAt: startedAt,
		})
		s.metrics.IncrementDomain("skipped")
	}

	if _, err := s.issuance.AddIssued(ctx, quota.DayKey(startedAt), admit); err != nil {
		s.logger.WarnContext(ctx, "record daily issuance failed",
			"batch_id", run.ID,
			"admitted", admit,
			"error", err,
		)
	}
	if err := s.runs.Create(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist batch run")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist batch run")
	}
	s.publishBatch(ctx, contracts.TypeBatchStarted, run, "")

	s.logger.InfoContext(ctx, "batch started",
		"batch_id", run.ID,
		"scope", scope,
		"requested", len(run.Requested),
		"admitted", admit,
		"deferred", len(run.Deferred),
		"quota_remaining", snapshot.Remaining,
	)

	s.provisionAdmitted(ctx, &run, req.Wait)

	completedAt := s.now()
	run.State = RunStateCompleted
	run.CompletedAt = &completedAt
	if err := s.runs.Update(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "persist batch completion failed",
			"batch_id", run.ID,
			"error", err,
		)
	}
	s.publishBatch(ctx, contracts.TypeBatchCompleted, run, "")
	s.metrics.IncrementRun("completed")
	s.metrics.ObserveRun(admit, completedAt.Sub(run.StartedAt))

	s.logger.InfoContext(ctx, "batch completed",
		"batch_id", run.ID,
		"successful", len(run.Successful),
		"failed", len(run.Failed),
		"skipped", len(run.Skipped),
		"duration", completedAt.Sub(run.StartedAt),
	)
	return &run, nil
}

// quotaSnapshot computes the remaining headroom for a scope: project quota
// minus live occupancy, further capped by the daily gate when configured.
func (s *Service) quotaSnapshot(ctx context.Context, scope Scope, limits config.QuotaConfig) (QuotaSnapshot, error) {
	snap, err := s.counts.Counts(ctx, true)
	if err != nil {
		return QuotaSnapshot{}, err
	}

	occupied := 0
	unknown := 0
	if category, ok := scope.Category(); ok {
		for _, site := range s.alloc.Topology().Pool(category) {
			count, known := snap.Count(site.ID)
			if !known {
				unknown++
				continue
			}
			occupied += count
		}
	} else {
		for _, site := range snap.Sites {
			count, known := snap.Count(site.ID)
			if !known {
				unknown++
				continue
			}
			occupied += count
		}
	}
	if unknown > 0 {
		// Unknown counts are excluded, so the quota errs permissive.
		s.logger.WarnContext(ctx, "quota arithmetic missing site counts",
			"scope", scope,
			"unknown_sites", unknown,
		)
	}

	snapshot := QuotaSnapshot{
		ProjectQuota: limits.Project,
		Occupied:     occupied,
		Remaining:    limits.Project - occupied,
	}
	if limits.Daily > 0 {
		issued, err := s.issuance.IssuedOn(ctx, quota.DayKey(s.now()))
		if err != nil {
			return QuotaSnapshot{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read daily issuance")
		}
		snapshot.DailyLimit = limits.Daily
		snapshot.IssuedToday = issued
		if daily := limits.Daily - issued; daily < snapshot.Remaining {
			snapshot.Remaining = daily
		}
	}
	return snapshot, nil
}

// finishExhausted fails every requested domain without submitting any.
func (s *Service) finishExhausted(ctx context.Context, run BatchRun) (*BatchRun, error) {
	completedAt := s.now()
	for _, name := range run.Requested {
		run.Failed = append(run.Failed, DomainResult{
			Domain:      name,
			Reason:      ReasonQuotaExhausted,
			CompletedAt: completedAt,
		})
		s.metrics.IncrementDomain("failed")
	}
	run.State = RunStateCompleted
	run.CompletedAt = &completedAt
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "persist batch run")
	}
	s.publishBatch(ctx, contracts.TypeBatchCompleted, run, ReasonQuotaExhausted)
	s.metrics.IncrementRun("quota_exhausted")

	s.logger.WarnContext(ctx, "batch rejected, quota exhausted",
		"batch_id", run.ID,
		"scope", run.Scope,
		"requested", len(run.Requested),
		"occupied", run.Quota.Occupied,
		"project_quota", run.Quota.ProjectQuota,
	)
	return &run, nil
}

// provisionAdmitted drives the admitted domains through a bounded worker
// pool, pacing submissions within each worker.
func (s *Service) provisionAdmitted(ctx context.Context, run *BatchRun, wait bool) {
	jobs := make(chan string, len(run.Admitted))
	for _, name := range run.Admitted {
		jobs <- name
	}
	close(jobs)

	workers := s.workers
	if len(run.Admitted) < workers {
		workers = len(run.Admitted)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			first := true
			for name := range jobs {
				if !first {
					if err := s.sleep(ctx, s.submitDelay); err != nil {
						mu.Lock()
						run.Failed = append(run.Failed, DomainResult{
							Domain:      name,
							Reason:      fmt.Sprintf("batch interrupted: %v", err),
							CompletedAt: s.now(),
						})
						mu.Unlock()
						s.metrics.IncrementDomain("failed")
						continue
					}
				}
				first = false
				result, ok := s.provision(ctx, run.ID, name, run.Scope, wait)
				mu.Lock()
				if ok {
					run.Successful = append(run.Successful, result)
				} else {
					run.Failed = append(run.Failed, result)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// provision takes one domain through allocate, attach, DNS push and the
// optional provisioning wait. The returned bool reports which bucket the
// result belongs in; any failure is final for this run.
func (s *Service) provision(ctx context.Context, batchID domain.BatchID, raw string, scope Scope, wait bool) (DomainResult, bool) {
	ctx, span := s.tracer.Start(ctx, "scheduler.provision", trace.WithAttributes(
		attribute.String("domain", raw),
	))
	defer span.End()

	result := DomainResult{Domain: raw}

	name, err := domain.ParseDomainName(raw)
	if err != nil {
		return s.fail(ctx, span, batchID, result, fmt.Sprintf("invalid domain: %v", err)), false
	}

	preferred, _ := scope.Category()
	allocation, err := s.alloc.Allocate(ctx, name, preferred)
	if err != nil {
		if preferred != "" {
			result.Category = preferred
		} else {
			result.Category = allocator.Classify(name)
		}
		return s.fail(ctx, span, batchID, result, fmt.Sprintf("allocate site: %v", err)), false
	}
	result.Category = allocation.Category
	result.SiteID = allocation.SiteID
	result.FallbackUsed = allocation.FallbackUsed
	span.SetAttributes(
		attribute.String("category", allocation.Category.String()),
		attribute.String("site_id", allocation.SiteID.String()),
	)

	var added hosting.AddDomainResult
	attach := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		added, err = s.platform.AddDomain(ctx, allocation.SiteID, name)
		return err
	})
	result.Attempts = attach.Attempts
	if attach.Err != nil {
		// An already-attached domain is this run's work done earlier;
		// finish it instead of failing it.
		if !errors.Is(attach.Err, sentinel.ErrConflict) {
			return s.fail(ctx, span, batchID, result, fmt.Sprintf("attach domain: %v", attach.Err)), false
		}
		added = hosting.AddDomainResult{}
	}

	if len(added.Records) > 0 {
		push := retry.Do(ctx, s.retry, func(ctx context.Context) error {
			return s.registrar.UpsertRecords(ctx, name, added.Records)
		})
		result.Attempts += push.Attempts
		if push.Err != nil {
			return s.fail(ctx, span, batchID, result, fmt.Sprintf("push dns records: %v", push.Err)), false
		}
	}

	submittedAt := s.now()
	result.SubmittedAt = &submittedAt
	result.Status = poller.StateSubmitted

	if !wait {
		result.CompletedAt = submittedAt
		s.publishDomain(ctx, contracts.TypeDomainProvisioned, batchID, result)
		s.metrics.IncrementDomain("submitted")
		s.logger.InfoContext(ctx, "domain submitted",
			"batch_id", batchID,
			"domain", raw,
			"site_id", result.SiteID,
			"attempts", result.Attempts,
		)
		return result, true
	}

	outcome, err := s.waiter.WaitActive(ctx, allocation.SiteID, name, 0)
	result.Status = outcome.State
	if err != nil {
		return s.fail(ctx, span, batchID, result, fmt.Sprintf("await activation: %v", err)), false
	}
	switch outcome.State {
	case poller.StateActive:
		result.CompletedAt = s.now()
		s.publishDomain(ctx, contracts.TypeDomainProvisioned, batchID, result)
		s.metrics.IncrementDomain("active")
		s.logger.InfoContext(ctx, "domain active",
			"batch_id", batchID,
			"domain", raw,
			"site_id", result.SiteID,
			"polls", outcome.Polls,
		)
		return result, true
	case poller.StateTimeout:
		return s.fail(ctx, span, batchID, result, ReasonProvisioningTimeout), false
	default:
		return s.fail(ctx, span, batchID, result, ReasonProvisioningFailed), false
	}
}

// fail finalizes one domain's result into the failed bucket.
func (s *Service) fail(ctx context.Context, span trace.Span, batchID domain.BatchID, result DomainResult, reason string) DomainResult {
	result.Reason = reason
	result.CompletedAt = s.now()
	span.SetStatus(codes.Error, reason)
	s.publishDomain(ctx, contracts.TypeDomainFailed, batchID, result)
	s.metrics.IncrementDomain("failed")
	s.logger.WarnContext(ctx, "domain provisioning failed",
		"batch_id", batchID,
		"domain", result.Domain,
		"site_id", result.SiteID,
		"reason", reason,
		"attempts", result.Attempts,
	)
	return result
}

func (s *Service) publishBatch(ctx context.Context, eventType string, run BatchRun, reason string) {
	event := contracts.Event{
		Type:    eventType,
		BatchID: run.ID.String(),
		Scope:   run.Scope.String(),
		Reason:  reason,
		At:      s.now(),
	}
	if eventType == contracts.TypeBatchCompleted {
		summary := run.Summary()
		event.Summary = &summary
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish batch event failed",
			"batch_id", run.ID,
			"type", eventType,
			"error", err,
		)
	}
}

func (s *Service) publishDomain(ctx context.Context, eventType string, batchID domain.BatchID, result DomainResult) {
	err := s.events.Publish(ctx, contracts.Event{
		Type:     eventType,
		BatchID:  batchID.String(),
		Domain:   result.Domain,
		Category: result.Category.String(),
		SiteID:   result.SiteID.String(),
		Status:   string(result.Status),
		Reason:   result.Reason,
		Attempts: result.Attempts,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "publish domain event failed",
			"batch_id", batchID,
			"domain", result.Domain,
			"type", eventType,
			"error", err,
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
