package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
	"hangar/pkg/platform/circuit"
	"hangar/pkg/platform/sentinel"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "hangar_hosting_request_duration_seconds",
	Help:    "Duration of hosting platform API calls by endpoint and status",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"endpoint", "status"})

// HTTPClient is the real hosting platform client. Every call authenticates
// with a bearer token from the TokenSource and feeds the shared circuit
// breaker so dependents can degrade during platform outages.
type HTTPClient struct {
	baseURL string
	project string
	httpc   *http.Client
	tokens  TokenSource
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithLogger attaches a logger for degradation transitions.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(c *HTTPClient) {
		if b != nil {
			c.breaker = b
		}
	}
}

// NewHTTPClient validates the required collaborators and builds a client.
func NewHTTPClient(baseURL, project string, tokens TokenSource, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "hosting base URL is required")
	}
	if project == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "hosting project is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token source is required")
	}
	c := &HTTPClient{
		baseURL: baseURL,
		project: project,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		breaker: circuit.New("hosting"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Degraded reports whether the platform circuit is open. The registry cache
// serves stale snapshots instead of refreshing while degraded.
func (c *HTTPClient) Degraded() bool {
	return c.breaker.IsOpen()
}

func (c *HTTPClient) ListSites(ctx context.Context) ([]Site, error) {
	var out struct {
		Sites []Site `json:"sites"`
	}
	path := fmt.Sprintf("/v1/projects/%s/sites", url.PathEscape(c.project))
	if err := c.do(ctx, http.MethodGet, path, nil, "list_sites", &out); err != nil {
		return nil, err
	}
	return out.Sites, nil
}

func (c *HTTPClient) DomainCount(ctx context.Context, siteID domain.SiteID) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	path := fmt.Sprintf("/v1/sites/%s/domains/count", url.PathEscape(siteID.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, "domain_count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPClient) AddDomain(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (AddDomainResult, error) {
	payload := map[string]string{"domain": name.String()}
	var out AddDomainResult
	path := fmt.Sprintf("/v1/sites/%s/domains", url.PathEscape(siteID.String()))
	if err := c.do(ctx, http.MethodPost, path, payload, "add_domain", &out); err != nil {
		return AddDomainResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) DomainStatus(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (DomainStatus, error) {
	var out DomainStatus
	path := fmt.Sprintf("/v1/sites/%s/domains/%s",
		url.PathEscape(siteID.String()), url.PathEscape(name.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, "domain_status", &out); err != nil {
		return DomainStatus{}, err
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, endpoint string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "acquire platform token")
	}

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode platform request")
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build platform request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(endpoint, "transport_error").Observe(time.Since(start).Seconds())
		c.noteFailure(ctx, endpoint)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "call hosting platform")
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.noteSuccess(ctx, endpoint)
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode platform response")
		}
		return nil
	}

	apiErr := decodeAPIError(resp)
	if apiErr.Retriable() {
		c.noteFailure(ctx, endpoint)
	} else {
		// A definitive client-error answer means the platform is healthy.
		c.noteSuccess(ctx, endpoint)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("hosting platform %s: %w", endpoint, sentinel.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("hosting platform %s: %w", endpoint, sentinel.ErrConflict)
	}
	return apiErr
}

func (c *HTTPClient) noteFailure(ctx context.Context, endpoint string) {
	if degraded, change := c.breaker.RecordFailure(); degraded && change.Opened {
		c.logger.WarnContext(ctx, "hosting platform circuit opened",
			"breaker", c.breaker.Name(),
			"endpoint", endpoint,
		)
	}
}

func (c *HTTPClient) noteSuccess(ctx context.Context, endpoint string) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "hosting platform circuit closed",
			"breaker", c.breaker.Name(),
			"endpoint", endpoint,
		)
	}
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var wire struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err == nil {
		apiErr.Code = wire.Code
		apiErr.Message = wire.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if after := resp.Header.Get("Retry-After"); after != "" {
		if sec, err := strconv.Atoi(after); err == nil {
			apiErr.RetryAfterSec = sec
		}
	}
	return apiErr
}
