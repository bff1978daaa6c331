// Package remote is the thin wrapper around the clock backend's HTTP API.
// Every call is bounded by a fixed timeout and every failure is folded into
// the closed error taxonomy in errors.go.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/resilience"
)

// CallTimeout bounds every clock call. Past this the call fails with
// KindClockTimeout and the queue retries it later.
const CallTimeout = 8 * time.Second

// ClockInRequest is the payload for a clock-in attempt. ClientEventID is the
// idempotency key; the backend treats a repeated key as a no-op replay.
type ClockInRequest struct {
	JobID          string  `json:"job_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	ClientEventID  string  `json:"client_event_id"`
	Notes          string  `json:"notes,omitempty"`
}

// ClockInResult is the backend's acknowledgement of a clock-in.
type ClockInResult struct {
	TimeEntryID string `json:"time_entry_id"`
}

// ClockOutRequest is the payload for a clock-out attempt.
type ClockOutRequest struct {
	TimeEntryID    string  `json:"time_entry_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	ClientEventID  string  `json:"client_event_id"`
}

// ClockOutResult is the backend's acknowledgement of a clock-out. Warning
// carries advisory text such as an auto-capped shift length.
type ClockOutResult struct {
	Warning string `json:"warning,omitempty"`
}

// Service is the clock backend surface the queue and orchestrator call.
type Service interface {
	ClockIn(ctx context.Context, req ClockInRequest) (ClockInResult, error)
	ClockOut(ctx context.Context, req ClockOutRequest) (ClockOutResult, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, keeping the call
// timeout if the replacement has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc.Timeout == 0 {
			hc.Timeout = CallTimeout
		}
		c.http = hc
	}
}

// NewClient builds a clock backend client. token is sent as a bearer token on
// every call.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: CallTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ClockIn(ctx context.Context, req ClockInRequest) (ClockInResult, error) {
	var res ClockInResult
	err := c.post(ctx, "/v1/clock/in", req, &res)
	return res, err
}

func (c *Client) ClockOut(ctx context.Context, req ClockOutRequest) (ClockOutResult, error) {
	var res ClockOutResult
	err := c.post(ctx, "/v1/clock/out", req, &res)
	return res, err
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "remote: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "remote: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			zap.L().Warn("remote: call timed out",
				zap.String("path", path),
				zap.Duration("elapsed", time.Since(start)),
			)
			return resilience.NewTransientError(&ClockError{Kind: KindClockTimeout}, 0)
		}
		// Connection-level failures are retriable by definition.
		return resilience.NewTransientError(eris.Wrapf(err, "remote: post %s", path), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "remote: read response %s", path), resp.StatusCode)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return eris.Wrapf(err, "remote: decode response %s", path)
		}
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	clockErr := classifyCode(eb.Code, eb.Detail)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(clockErr, resp.StatusCode)
	}
	return clockErr
}

// isTimeout distinguishes the call-budget timeout from other transport
// failures.
func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return eris.Is(ctx.Err(), context.DeadlineExceeded)
	}
	return os.IsTimeout(err)
}
