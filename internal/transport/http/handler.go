package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hangar/internal/allocator"
	"hangar/internal/engine"
	"hangar/internal/poller"
	"hangar/internal/registry"
	"hangar/internal/scheduler"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
	"hangar/pkg/platform/httputil"
	"hangar/pkg/requestcontext"
)

// DefaultRunsLimit bounds GET /v1/batches when no limit is given.
const DefaultRunsLimit = 20

// Engine is the facade surface the HTTP layer drives.
type Engine interface {
	Allocate(ctx context.Context, name, category string) (allocator.Allocation, error)
	RunBatch(ctx context.Context, p engine.BatchParams) (*scheduler.BatchRun, error)
	StartBatch(ctx context.Context, p engine.BatchParams) (domain.BatchID, error)
	Run(ctx context.Context, id string) (scheduler.BatchRun, error)
	Runs(ctx context.Context, limit int) ([]scheduler.BatchRun, error)
	WaitActive(ctx context.Context, siteID, name string, timeout time.Duration) (poller.Outcome, error)
	Counts(ctx context.Context, useCache bool) (registry.Snapshot, error)
	RefreshRegistry(ctx context.Context) (registry.Snapshot, error)
}

// Handler wires the v1 API onto the engine facade.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// New constructs the API handler.
func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts the v1 routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/allocations", h.HandleAllocate)
		r.Post("/batches", h.HandleSubmitBatch)
		r.Get("/batches", h.HandleListRuns)
		r.Get("/batches/{id}", h.HandleGetRun)
		r.Get("/registry/counts", h.HandleCounts)
		r.Post("/domains/{domain}/poll", h.HandlePoll)
	})
}

// HandleAllocate handles POST /v1/allocations.
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AllocateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	alloc, err := h.engine.Allocate(ctx, req.Domain, req.Category)
	if err != nil {
		h.logFailure(ctx, "allocation failed", requestID, err, "domain", req.Domain)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "domain allocated",
		"request_id", requestID,
		"domain", req.Domain,
		"category", alloc.Category,
		"site_id", alloc.SiteID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromAllocation(alloc))
}

// HandleSubmitBatch handles POST /v1/batches. With wait=true the run
// executes within the request and the final run is returned; otherwise the
// run continues in the background and the response carries its ID.
func (h *Handler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchSubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	params := engine.BatchParams{
		Scope:   req.Scope,
		Domains: req.Domains,
		Wait:    req.Wait,
	}

	if req.Wait {
		run, err := h.engine.RunBatch(ctx, params)
		if err != nil {
			h.logFailure(ctx, "batch run failed", requestID, err, "scope", req.Scope)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, run)
		return
	}

	id, err := h.engine.StartBatch(ctx, params)
	if err != nil {
		h.logFailure(ctx, "batch submission rejected", requestID, err, "scope", req.Scope)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "batch accepted",
		"request_id", requestID,
		"batch_id", id,
		"requested", len(req.Domains),
	)
	httputil.WriteJSON(w, http.StatusAccepted, BatchAcceptedResponse{
		ID:    id.String(),
		State: string(scheduler.RunStateRunning),
	})
}

// HandleGetRun handles GET /v1/batches/{id}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	run, err := h.engine.Run(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "batch run lookup failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, run)
}

// HandleListRuns handles GET /v1/batches.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.engine.Runs(ctx, limit)
	if err != nil {
		h.logFailure(ctx, "batch run listing failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// HandleCounts handles GET /v1/registry/counts.
func (h *Handler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var (
		snap registry.Snapshot
		err  error
	)
	if r.URL.Query().Get("refresh") == "true" {
		snap, err = h.engine.RefreshRegistry(ctx)
	} else {
		snap, err = h.engine.Counts(ctx, true)
	}
	if err != nil {
		h.logFailure(ctx, "registry counts failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(snap, requestcontext.Now(ctx)))
}

// HandlePoll handles POST /v1/domains/{domain}/poll. The poll runs within
// the request, so the caller's timeout bounds it alongside the body's.
func (h *Handler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	name := chi.URLParam(r, "domain")

	req, ok := httputil.DecodeAndPrepare[PollRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	outcome, err := h.engine.WaitActive(ctx, req.SiteID, name, timeout)
	if err != nil {
		h.logFailure(ctx, "domain poll failed", requestID, err, "domain", name, "site_id", req.SiteID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "domain poll finished",
		"request_id", requestID,
		"domain", name,
		"site_id", req.SiteID,
		"state", outcome.State,
		"polls", outcome.Polls,
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(req.SiteID, name, outcome))
}

// logFailure logs client-class failures at warn and infrastructure-class
// ones at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error, attrs ...any) {
	args := append([]any{"request_id", requestID, "error", err}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, args...)
	default:
		h.logger.WarnContext(ctx, msg, args...)
	}
}
