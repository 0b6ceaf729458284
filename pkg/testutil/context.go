package testutil

import (
	"net/http"
	"time"

	"hangar/pkg/requestcontext"
)

// WithRequestID stamps a request ID on the request context, simulating what
// the request ID middleware does.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	if requestID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithBatchID stamps a batch run ID on the request context.
func WithBatchID(req *http.Request, batchID string) *http.Request {
	if batchID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithBatchID(req.Context(), batchID))
}

// WithFrozenTime pins the request clock so handlers observe a fixed time.
func WithFrozenTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
