package registrar

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
	Name:    "hangar_registrar_request_duration_seconds",
	Help:    "Duration of registrar API calls by endpoint and status",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"endpoint", "status"})

// HTTPClient is the real registrar client. Requests authenticate with an
// sso-key header pair and optionally act on behalf of a shopper account.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	shopperID string
	httpc     *http.Client
	breaker   *circuit.Breaker
	logger    *slog.Logger
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

// WithShopperID sends the given account in the X-Shopper-Id header.
func WithShopperID(id string) HTTPOption {
	return func(c *HTTPClient) {
		c.shopperID = id
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

// NewHTTPClient validates the required credentials and builds a client.
func NewHTTPClient(baseURL, apiKey, apiSecret string, opts ...HTTPOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registrar base URL is required")
	}
	if apiKey == "" || apiSecret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registrar API key and secret are required")
	}
	c := &HTTPClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		breaker:   circuit.New("registrar"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Degraded reports whether the registrar circuit is open.
func (c *HTTPClient) Degraded() bool {
	return c.breaker.IsOpen()
}

func (c *HTTPClient) CheckAvailability(ctx context.Context, name domain.DomainName) (Availability, error) {
	var out Availability
	path := "/v1/domains/available?domain=" + url.QueryEscape(name.String())
	if err := c.do(ctx, http.MethodGet, path, nil, "check_availability", &out); err != nil {
		return Availability{}, err
	}
	return out, nil
}

func (c *HTTPClient) Records(ctx context.Context, name domain.DomainName) ([]domain.DNSRecord, error) {
	var out []domain.DNSRecord
	path := fmt.Sprintf("/v1/domains/%s/records", url.PathEscape(name.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, "get_records", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpsertRecords(ctx context.Context, name domain.DomainName, records []domain.DNSRecord) error {
	if len(records) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "no records to upsert")
	}
	path := fmt.Sprintf("/v1/domains/%s/records", url.PathEscape(name.String()))
	return c.do(ctx, http.MethodPatch, path, records, "upsert_records", nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, endpoint string, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode registrar request")
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build registrar request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("sso-key %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Accept", "application/json")
	if c.shopperID != "" {
		req.Header.Set("X-Shopper-Id", c.shopperID)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(endpoint, "transport_error").Observe(time.Since(start).Seconds())
		c.noteFailure(ctx, endpoint)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "call registrar")
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.noteSuccess(ctx, endpoint)
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode registrar response")
		}
		return nil
	}

	apiErr := decodeAPIError(resp)
	if apiErr.Retriable() {
		c.noteFailure(ctx, endpoint)
	} else {
		c.noteSuccess(ctx, endpoint)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("registrar %s: %w", endpoint, sentinel.ErrNotFound)
	}
	return apiErr
}

func (c *HTTPClient) noteFailure(ctx context.Context, endpoint string) {
	if degraded, change := c.breaker.RecordFailure(); degraded && change.Opened {
		c.logger.WarnContext(ctx, "registrar circuit opened",
			"breaker", c.breaker.Name(),
			"endpoint", endpoint,
		)
	}
}

func (c *HTTPClient) noteSuccess(ctx context.Context, endpoint string) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "registrar circuit closed",
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
