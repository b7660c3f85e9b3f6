// Package executor sends a resolved request exactly once and classifies the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"flowhook/internal/block"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
	"flowhook/internal/payload"
	"flowhook/internal/request"
	"flowhook/internal/util"
)

// TransportFailureStatus is reported when no HTTP response was obtained.
const TransportFailureStatus = http.StatusInternalServerError

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 << 20

// Log descriptions.
const (
	DescSuccess   = "Integration successfully executed."
	DescRemote    = "Integration returned an error."
	DescTransport = "Integration failed to execute."
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the normalized response record. Paths in response mappings are
// evaluated against its JSON form {"statusCode": ..., "data": ...}.
type Result struct {
	StatusCode int             `json:"statusCode"`
	Data       payload.Payload `json:"data"`
}

// IsError reports whether the status is 4xx or 5xx.
func (r Result) IsError() bool {
	return r.StatusCode >= 400
}

// TransportFailure builds the sentinel result for a request that got no response.
func TransportFailure(err error) Result {
	data, mErr := payload.FromValue(map[string]any{
		"message":  fmt.Sprintf("Error from server: %v", err),
		"protocol": "",
	})
	if mErr != nil {
		data = payload.Text(err.Error())
	}
	return Result{StatusCode: TransportFailureStatus, Data: data}
}

// Executor performs one request per call. It is safe for concurrent use when its Doer is.
type Executor struct {
	client       Doer
	maxBodyBytes int64
	metrics      *metrics.Collectors
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxBodyBytes limits how much of the response body is read. Zero or
// negative keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxBodyBytes = n
		}
	}
}

// WithMetrics records execution outcomes.
func WithMetrics(m *metrics.Collectors) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor. A nil client uses http.DefaultClient.
func New(client Doer, opts ...Option) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Executor{client: client, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends req once. It never returns an error: every outcome is
// described by the Result and the LogEntry.
func (e *Executor) Execute(ctx context.Context, req request.Resolved) (Result, block.LogEntry) {
	start := time.Now()

	httpReq, err := req.NewHTTPRequest(ctx)
	if err != nil {
		return e.transportFailure(req, err, start)
	}

	logging.Logf(logging.Debug, "Sending %s %s", req.Method, req.URL)
	resp, err := e.client.Do(httpReq)
	if err != nil {
		// No response at all: the status stays unknown.
		return e.transportFailure(req, err, start)
	}
	defer resp.Body.Close()

	body, err := e.readBody(resp)
	if err != nil {
		// A status without a readable body is still a transport failure.
		return e.transportFailure(req, fmt.Errorf("failed to read response body (status %d): %w", resp.StatusCode, err), start)
	}

	res := Result{StatusCode: resp.StatusCode, Data: payload.Parse(body)}
	details := block.LogDetails{
		StatusCode: res.StatusCode,
		Request:    req.View(),
		Response:   res.Data,
	}

	// 4xx and 5xx are remote errors; the body is still returned for extraction.
	if res.IsError() {
		e.metrics.ObserveExecution(metrics.OutcomeRemote, time.Since(start))
		logging.Logw(logging.Warning, "Integration returned an error status",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("status", res.StatusCode),
			zap.Error(block.ErrRemote),
			zap.String("body", util.Snippet(body)),
		)
		return res, block.ErrorLog(DescRemote, details)
	}

	// Anything below 400 counts as success.
	e.metrics.ObserveExecution(metrics.OutcomeSuccess, time.Since(start))
	logging.Logw(logging.Info, "Integration executed",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, block.SuccessLog(DescSuccess, details)
}

func (e *Executor) readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > e.maxBodyBytes {
		logging.Logf(logging.Warning, "Response body exceeds %d bytes, truncating", e.maxBodyBytes)
		body = body[:e.maxBodyBytes] // parsed as text below when truncation breaks JSON
	}
	return body, nil
}

func (e *Executor) transportFailure(req request.Resolved, err error, start time.Time) (Result, block.LogEntry) {
	cause := fmt.Errorf("%w: %w", block.ErrTransport, err)
	if errors.Is(err, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: deadline exceeded: %w", block.ErrTransport, err)
	}
	e.metrics.ObserveExecution(metrics.OutcomeTransport, time.Since(start))
	logging.Logw(logging.Error, "Integration request failed",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Error(cause),
	)

	res := TransportFailure(err)
	return res, block.ErrorLog(DescTransport, block.LogDetails{
		Request:  req.View(),
		Response: res,
	})
}
