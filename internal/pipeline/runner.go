// Package pipeline runs one integration block: resolve the request, send it,
// extract response fields and propose the updated session snapshot.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowhook/internal/block"
	"flowhook/internal/config"
	"flowhook/internal/executor"
	"flowhook/internal/extract"
	"flowhook/internal/httpclient"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
	"flowhook/internal/request"
	"flowhook/internal/session"
)

// requestExecutor sends a resolved request once.
type requestExecutor interface {
	Execute(ctx context.Context, req request.Resolved) (executor.Result, block.LogEntry)
}

// Output is returned for every invocation. NewSessionState is set only when
// at least one response mapping updated an existing variable.
type Output struct {
	OutgoingEdgeID  string            `json:"outgoingEdgeId,omitempty"`
	NewSessionState *session.Snapshot `json:"newSessionState,omitempty"`
	Logs            []block.LogEntry  `json:"logs"`
}

// Runner executes integration blocks. It holds no per-invocation state and
// is safe for concurrent use.
type Runner struct {
	cfg      *config.Config
	executor requestExecutor
	metrics  *metrics.Collectors
}

// RunnerOpts allows replacing the Runner's dependencies.
type RunnerOpts struct {
	Executor   requestExecutor
	HTTPClient executor.Doer
	Metrics    *metrics.Collectors
}

// NewRunner creates a runner with the default HTTP client built from cfg.
func NewRunner(cfg *config.Config) *Runner {
	return NewRunnerWithOpts(cfg, RunnerOpts{})
}

// NewRunnerWithOpts creates a runner with injected dependencies.
func NewRunnerWithOpts(cfg *config.Config, opts RunnerOpts) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	exec := opts.Executor
	if exec == nil {
		client := opts.HTTPClient
		if client == nil {
			client = httpclient.NewClient(&cfg.HTTP, opts.Metrics)
		}
		exec = executor.New(client,
			executor.WithMaxBodyBytes(cfg.HTTP.MaxResponseBytes),
			executor.WithMetrics(opts.Metrics),
		)
	}
	return &Runner{cfg: cfg, executor: exec, metrics: opts.Metrics}
}

type invocationKey struct{}

func withInvocationID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(invocationKey{}).(string); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, invocationKey{}, id), id
}

// Execute runs def against snap. It never fails: configuration problems,
// transport failures and remote errors all end up as error log entries and
// the outgoing edge is always returned.
func (r *Runner) Execute(ctx context.Context, def block.Definition, snap session.Snapshot) Output {
	ctx, id := withInvocationID(ctx)
	logging.Logw(logging.Debug, "Executing integration block",
		zap.String("invocation", id),
		zap.String("block", def.ID),
		zap.Int("variables", snap.Len()),
	)

	if def.Integration == nil {
		r.metrics.CountExecution(metrics.OutcomeConfig)
		return Output{
			OutgoingEdgeID: def.OutgoingEdgeID,
			Logs:           []block.LogEntry{block.ErrorLog(fmt.Sprintf("Couldn't find integration with id %s", def.IntegrationID), nil)},
		}
	}

	req, err := request.Build(*def.Integration, snap)
	if err != nil {
		r.metrics.CountExecution(metrics.OutcomeConfig)
		var cfgErr *block.ConfigurationError
		if errors.As(err, &cfgErr) {
			logging.Logw(logging.Warning, "Integration block is misconfigured",
				zap.String("invocation", id),
				zap.String("block", def.ID),
				zap.String("field", cfgErr.Field),
			)
		}
		return Output{
			OutgoingEdgeID: def.OutgoingEdgeID,
			Logs:           []block.LogEntry{block.ErrorLog(fmt.Sprintf("Couldn't parse integration attributes: %v", err), nil)},
		}
	}

	res, entry := r.executor.Execute(ctx, req)
	return r.Resume(ctx, def, snap, res, []block.LogEntry{entry})
}

// Resume applies a response obtained elsewhere, for example by a client that
// executed the request itself. When logs is empty a log entry classifying the
// status code is added.
func (r *Runner) Resume(ctx context.Context, def block.Definition, snap session.Snapshot, res executor.Result, logs []block.LogEntry) Output {
	_, id := withInvocationID(ctx)

	out := Output{
		OutgoingEdgeID: def.OutgoingEdgeID,
		Logs:           append([]block.LogEntry(nil), logs...),
	}
	if len(out.Logs) == 0 {
		out.Logs = append(out.Logs, classify(res))
	}

	updates := extract.Extract(res, def.ResponseMapping, snap)
	for i := len(updates); i < activeMappings(def.ResponseMapping); i++ {
		r.metrics.ExtractionMiss()
	}

	if updated, ok := session.Apply(snap, updates); ok {
		r.metrics.SessionUpdated()
		out.NewSessionState = &updated
	}

	logging.Logw(logging.Debug, "Integration block finished",
		zap.String("invocation", id),
		zap.String("block", def.ID),
		zap.Int("status", res.StatusCode),
		zap.Int("updates", len(updates)),
		zap.Bool("sessionUpdated", out.NewSessionState != nil),
	)
	return out
}

func classify(res executor.Result) block.LogEntry {
	// No status at all means the client never got a response.
	if res.StatusCode <= 0 {
		return block.ErrorLog(executor.DescTransport, res.Data)
	}
	if res.StatusCode >= 400 && res.StatusCode < 600 {
		return block.ErrorLog(executor.DescRemote, res.Data)
	}
	return block.SuccessLog(executor.DescSuccess, res.Data)
}

func activeMappings(mappings []block.ResponseMapping) int {
	n := 0
	for _, m := range mappings {
		if m.Active() {
			n++
		}
	}
	return n
}
