package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnauthenticated means no credential was available or the server rejected it
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrServer means the server failed while evaluating the request
	ErrServer = errors.New("server error")

	// ErrConnectivity means the server could not be reached or did not answer in time
	ErrConnectivity = errors.New("connectivity error")

	// ErrUnexpected covers any other response the contract does not define
	ErrUnexpected = errors.New("unexpected response")
)

// DefaultTimeout bounds a single request to the scan endpoints
const DefaultTimeout = 15 * time.Second

// Client submits scans and fetches statistics for one scan kind
type Client struct {
	baseURL string
	kind    Kind
	tokens  TokenSource
	device  DeviceInfo
	timeout time.Duration
	client  *http.Client
}

// NewClient creates a Client with a default HTTP client
func NewClient(baseURL string, kind Kind, tokens TokenSource, device DeviceInfo, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, kind, tokens, device, timeout, &http.Client{})
}

// NewClientWithHTTP creates a Client with a custom HTTP client for testing
func NewClientWithHTTP(baseURL string, kind Kind, tokens TokenSource, device DeviceInfo, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		kind:    kind,
		tokens:  tokens,
		device:  device,
		timeout: timeout,
		client:  httpClient,
	}
}

// Kind returns the endpoint family this client talks to
func (c *Client) Kind() Kind {
	return c.kind
}

// Submit records p on the server. A duplicate verdict is a Result with Accepted false,
// not an error. Errors wrap ErrUnauthenticated, ErrServer, ErrConnectivity or ErrUnexpected.
func (c *Client) Submit(ctx context.Context, p Payload) (*Result, error) {
	if p.RawText == "" {
		return nil, ErrEmptyPayload
	}

	body, err := json.Marshal(SubmitRequest{
		QRData:        p.RawText,
		ScanTimestamp: p.CapturedAt.UTC().Format(time.RFC3339Nano),
		ScannerType:   string(p.ScannerType),
		DeviceInfo:    c.device,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.kind.ScansPath(), body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusConflict {
		if result, ok := duplicateVerdict(respBody); ok {
			return result, nil
		}
	}

	var resp SubmitResponse
	if jsonErr := json.Unmarshal(respBody, &resp); jsonErr != nil && status != http.StatusUnauthorized && status < 500 {
		return nil, fmt.Errorf("%w: status %d with malformed body: %v", ErrUnexpected, status, jsonErr)
	}

	if status >= 200 && status < 300 {
		if !resp.Success {
			return nil, fmt.Errorf("%w: status %d without success flag", ErrUnexpected, status)
		}
		return &Result{Accepted: true, Message: resp.Message}, nil
	}
	return nil, statusError(status, resp.Message)
}

// duplicateVerdict reads a conflict body. Only the isDuplicate flag decides the verdict;
// the message and original scan are best effort.
func duplicateVerdict(body []byte) (*Result, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	var isDuplicate bool
	if err := json.Unmarshal(fields["isDuplicate"], &isDuplicate); err != nil || !isDuplicate {
		return nil, false
	}

	result := &Result{Accepted: false, DuplicateOf: &ExistingScan{}}
	if err := json.Unmarshal(fields["message"], &result.Message); err != nil {
		result.Message = ""
	}
	if raw, ok := fields["existingScan"]; ok {
		if err := json.Unmarshal(raw, result.DuplicateOf); err != nil {
			slog.Warn("Ignoring malformed original scan in duplicate response", "error", err)
			result.DuplicateOf = &ExistingScan{}
		}
	}
	return result, true
}

// Stats fetches the server's running totals
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, c.kind.StatsPath(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, statusError(status, "")
	}

	var resp StatsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed stats body: %v", ErrUnexpected, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: stats without success flag", ErrUnexpected)
	}
	return &resp.Stats, nil
}

// do performs an authenticated request and returns the status and body.
// The bearer token is resolved first so a missing credential never reaches the network.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if token == "" {
		return 0, nil, fmt.Errorf("%w: no session token", ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("Scan API request failed", "method", method, "path", path, "error", err)
		return 0, nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", ErrConnectivity, err)
	}
	return resp.StatusCode, respBody, nil
}

// statusError maps a non-success status to the error taxonomy
func statusError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, message)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrServer, status, message)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnexpected, status, message)
	}
}
