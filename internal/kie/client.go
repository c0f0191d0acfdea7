package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/maauso/vidgen/internal/fault"
)

// Static errors for client construction and arguments.
var (
	// ErrAPIKeyRequired is returned when no bearer credential is provided.
	ErrAPIKeyRequired = errors.New("kie: API key is required")
	// ErrTaskIDRequired is returned when FetchStatus is called without a task ID.
	ErrTaskIDRequired = errors.New("kie: task ID is required")
	// ErrUnknownAPI is returned for an API value the client does not serve.
	ErrUnknownAPI = errors.New("kie: unknown API")
)

// DefaultBaseURL is the provider API base URL.
const DefaultBaseURL = "https://api.kie.ai"

// DefaultTimeout bounds every HTTP call. It is shorter than the poll interval
// budget so one slow call never hides a whole poll window.
const DefaultTimeout = 30 * time.Second

// codeMaintenance is the provider's service-maintenance code.
const codeMaintenance = 455

// maxErrorBody caps how much of a response body is quoted in errors.
const maxErrorBody = 512

// Client submits jobs and fetches raw status records. Each method performs
// exactly one HTTP call; retry policy belongs to the caller.
type Client interface {
	// Submit posts the payload to its API and returns the provider task ID.
	Submit(ctx context.Context, payload Payload) (taskID string, err error)

	// FetchStatus returns the raw status record of a task.
	FetchStatus(ctx context.Context, api API, taskID string) (StatusRecord, error)
}

// HTTPClient is the HTTP implementation of Client. It is safe for concurrent
// use; its fields are read-only after construction.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	endpoints  Endpoints
	httpClient *http.Client
	timeout    time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithBaseURL sets a custom base URL for the provider API.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client. The client is never modified.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the HTTP
// client, whatever the option order.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEndpoints overrides endpoint paths. Empty fields keep their defaults.
func WithEndpoints(e Endpoints) ClientOption {
	return func(c *HTTPClient) {
		c.endpoints = e.merge(c.endpoints)
	}
}

// NewClient creates a provider client holding the bearer credential.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		endpoints:  DefaultEndpoints(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	return c, nil
}

// Submit posts the payload to its API and returns the provider task ID.
func (c *HTTPClient) Submit(ctx context.Context, payload Payload) (string, error) {
	const op = "kie.submit"

	var path string
	switch payload.API() {
	case APIFrames:
		path = c.endpoints.FramesSubmit
	case APIJobs:
		path = c.endpoints.JobsSubmit
	default:
		return "", errors.Wrapf(ErrUnknownAPI, "%q", payload.API())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "kie: marshal request")
	}

	data, err := c.do(ctx, op, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return "", err
	}

	var sd submitData
	if err := json.Unmarshal(data, &sd); err != nil {
		return "", fault.Wrap(fault.KindProtocol, op, errors.Wrapf(err, "decode submit data %s", excerpt(data)))
	}
	if sd.TaskID == "" {
		return "", fault.New(fault.KindProtocol, op, "no task ID returned")
	}

	return sd.TaskID, nil
}

// FetchStatus returns the raw status record of a task in the shape of api.
// An empty or undecodable status body is a retryable fault.KindProvider
// error; judging the record's content is left to the normalizers.
func (c *HTTPClient) FetchStatus(ctx context.Context, api API, taskID string) (StatusRecord, error) {
	const op = "kie.fetch_status"

	if taskID == "" {
		return StatusRecord{}, ErrTaskIDRequired
	}

	var path string
	switch api {
	case APIFrames:
		path = c.endpoints.FramesStatus
	case APIJobs:
		path = c.endpoints.JobsStatus
	default:
		return StatusRecord{}, errors.Wrapf(ErrUnknownAPI, "%q", api)
	}

	u := c.baseURL + path + "?" + url.Values{"taskId": {taskID}}.Encode()
	data, err := c.do(ctx, op, http.MethodGet, u, nil)
	if err != nil {
		return StatusRecord{}, err
	}
	if isNull(data) {
		return StatusRecord{}, fault.New(fault.KindProvider, op, "status response has no data")
	}

	rec := StatusRecord{Shape: api.Shape()}
	switch rec.Shape {
	case ShapeFlag:
		rec.Flag = &FlagRecord{}
		err = json.Unmarshal(data, rec.Flag)
	default:
		rec.State = &StateRecord{}
		err = json.Unmarshal(data, rec.State)
	}
	if err != nil {
		return StatusRecord{}, fault.Wrap(fault.KindProvider, op, errors.Wrapf(err, "decode status data %s", excerpt(data)))
	}

	return rec, nil
}

// do performs a single HTTP call and returns the envelope's data field.
func (c *HTTPClient) do(ctx context.Context, op, method, u string, body []byte) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "kie: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Msg
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("status %d: %s", resp.StatusCode, excerpt(respBody))
		}
		code := resp.StatusCode
		if decodeErr == nil && env.Code != 0 && env.Code != http.StatusOK {
			code = env.Code
		}
		return nil, classify(op, code, msg)
	}

	if decodeErr != nil {
		return nil, fault.Wrap(fault.KindProvider, op, errors.Wrapf(decodeErr, "decode response body %s", excerpt(respBody)))
	}
	if env.Code != http.StatusOK {
		return nil, classify(op, env.Code, env.Msg)
	}

	return env.Data, nil
}

// classify maps a provider error code to the fault taxonomy.
func classify(op string, code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	if msg == "" {
		msg = fmt.Sprintf("provider error code %d", code)
	}

	var kind fault.Kind
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = fault.KindAuth
	case code == http.StatusPaymentRequired:
		kind = fault.KindQuota
	case code == http.StatusTooManyRequests:
		kind = fault.KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		kind = fault.KindTimeout
	case code == codeMaintenance:
		kind = fault.KindProvider
	case code >= 400 && code < 500:
		kind = fault.KindRequest
	default:
		// 500 server error, 501 generation failed, 505 feature disabled.
		kind = fault.KindProvider
	}

	return fault.New(kind, op, msg)
}

// transportError classifies a failed round trip. Caller cancellation is
// returned as-is so it is never mistaken for a provider timeout.
func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "kie: request aborted")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.Wrap(fault.KindTimeout, op, err)
	}

	return &fault.Error{Kind: fault.KindTimeout, Op: op, Message: "network error: " + err.Error(), Err: err}
}

func isNull(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}

func excerpt(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
