package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestContext drives the API over HTTP and carries the last response plus
// values captured between steps. Step packages declare their own narrow
// interface over it.
type TestContext struct {
	baseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte

	vars map[string]string
}

// NewTestContext points a fresh context at the running server.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 90 * time.Second},
		vars:    make(map[string]string),
	}
}

// POST sends a JSON body and captures the response.
func (tc *TestContext) POST(path string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := tc.client.Post(tc.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return tc.capture(resp)
}

// GET fetches a path with optional headers and captures the response.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return tc.capture(resp)
}

func (tc *TestContext) capture(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

// GetLastResponseStatus returns the status code of the last request.
func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

// GetLastResponseBody returns the raw body of the last request.
func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField resolves a dotted path in the last JSON response.
// Numeric segments index into arrays: "successful.0.siteId".
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("last response is not JSON: %w", err)
	}
	current := doc
	for _, seg := range strings.Split(field, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("field %q: segment %q not found", field, seg)
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("field %q: %q is not an array index", field, seg)
			}
			if idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("field %q: index %d out of range %d", field, idx, len(node))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("field %q: cannot descend into %T at %q", field, current, seg)
		}
	}
	return current, nil
}

// SetVar stores a value captured by one step for use by a later one.
func (tc *TestContext) SetVar(key, value string) {
	tc.vars[key] = value
}

// Var returns a value stored by SetVar.
func (tc *TestContext) Var(key string) (string, bool) {
	v, ok := tc.vars[key]
	return v, ok
}
