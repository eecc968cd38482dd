package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/logging"
	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/recordlog"
)

type RunEventType string

const (
	RunEventStatus  RunEventType = "status"
	RunEventOutcome RunEventType = "outcome"
	RunEventDone    RunEventType = "done"
)

type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunDone     RunStatus = "done"
	RunFailed   RunStatus = "failed"
	RunCanceled RunStatus = "canceled"
)

type RunEvent struct {
	RunID string       `json:"run_id"`
	Type  RunEventType `json:"type"`

	// For status and done events
	Status RunStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For outcome events
	Audit   string              `json:"audit,omitempty"`
	Outcome *model.AuditOutcome `json:"outcome,omitempty"`

	// Set on the done event
	Run *model.Run `json:"run,omitempty"`
}

// RunRequest is one recorded page load to audit. The URL artifact is present
// iff FinalURL is non-empty; the DevtoolsLog artifact iff Records is non-nil.
type RunRequest struct {
	FinalURL string
	Source   string
	Records  audit.RecordSource
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.Run) error
}

// Runner evaluates a set of audits against one recorded page load.
type Runner struct {
	cfg    *Config
	audits []audit.Audit
	store  RunStore
	logger logging.Logger
}

// NewRunner ties together config, audits, an optional store and a logger.
func NewRunner(cfg *Config, audits []audit.Audit, store RunStore, logger logging.Logger) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("runner: nil logger")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(audits) == 0 {
		audits = audit.Default()
	}
	for i, a := range audits {
		if a == nil {
			return nil, fmt.Errorf("runner: nil audit at index %d", i)
		}
	}
	return &Runner{
		cfg:    cfg,
		audits: audits,
		store:  store,
		logger: logger.With(logging.Field{Key: "component", Value: "runner"}),
	}, nil
}

// Audits returns the descriptors of the configured audits in report order.
func (r *Runner) Audits() []model.AuditMeta {
	out := make([]model.AuditMeta, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Meta())
	}
	return out
}

// Run evaluates every audit and returns the run. When saving fails the run is
// still returned together with the error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*model.Run, error) {
	return r.RunWithEvents(ctx, req, nil)
}

// RunWithEvents is Run with progress reported on events. Sends never block;
// events is closed before returning. A nil channel is allowed.
func (r *Runner) RunWithEvents(ctx context.Context, req RunRequest, events chan<- RunEvent) (*model.Run, error) {
	if events != nil {
		defer close(events)
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		FinalURL:  req.FinalURL,
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
	}
	logger := r.logger.With(logging.Field{Key: "run_id", Value: run.ID})
	emit := func(ev RunEvent) {
		if events == nil {
			return
		}
		ev.RunID = run.ID
		// Non-blocking send; drop if buffer is full.
		select {
		case events <- ev:
		default:
		}
	}
	finish := func(err error) (*model.Run, error) {
		ev := RunEvent{Type: RunEventDone, Status: RunDone, Run: run}
		switch {
		case err != nil && ctx.Err() != nil:
			ev.Status, ev.Error = RunCanceled, err.Error()
		case err != nil:
			ev.Status, ev.Error = RunFailed, err.Error()
		case run.Failed():
			ev.Status = RunFailed
		}
		emit(ev)
		return run, err
	}

	emit(RunEvent{Type: RunEventStatus, Status: RunRunning})
	logger.Info("run started",
		logging.Field{Key: "final_url", Value: req.FinalURL},
		logging.Field{Key: "audits", Value: len(r.audits)})

	artifacts := &audit.Artifacts{FinalURL: req.FinalURL}
	if req.Records != nil {
		artifacts.Records = recordlog.Once(req.Records)
		// Fetch up front so every audit sees the same records or the same error.
		records, err := artifacts.Records.NetworkRecords(ctx)
		if err != nil {
			logger.Warn("requesting network records", logging.Field{Key: "error", Value: err})
		}
		run.RecordCount = len(records)
	}
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	run.Outcomes = make([]model.AuditOutcome, len(r.audits))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}
	for i, a := range r.audits {
		g.Go(func() error {
			out := r.evaluate(gctx, a, artifacts)
			run.Outcomes[i] = out
			emit(RunEvent{Type: RunEventOutcome, Audit: out.Meta.Name, Outcome: &out})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	if r.store != nil {
		if err := r.store.SaveRun(ctx, run); err != nil {
			logger.Error("saving run", logging.Field{Key: "error", Value: err})
			return finish(fmt.Errorf("saving run %s: %w", run.ID, err))
		}
	}

	logger.Info("run finished",
		logging.Field{Key: "records", Value: run.RecordCount},
		logging.Field{Key: "failed", Value: run.Failed()})
	return finish(nil)
}

// evaluate runs one audit and folds its result, missing artifacts or error
// into an outcome.
func (r *Runner) evaluate(ctx context.Context, a audit.Audit, artifacts *audit.Artifacts) model.AuditOutcome {
	meta := a.Meta()
	out := model.AuditOutcome{Meta: meta}

	if missing := artifacts.Missing(meta.RequiredArtifacts...); len(missing) > 0 {
		r.logger.Debug("audit not applicable",
			logging.Field{Key: "audit", Value: meta.Name},
			logging.Field{Key: "missing", Value: missing})
		out.NotApplicable = true
		return out
	}
	if err := ctx.Err(); err != nil {
		out.Error = err.Error()
		return out
	}

	start := time.Now()
	res, err := safeEvaluate(ctx, a, artifacts)
	out.DurationMS = time.Since(start).Milliseconds()

	switch {
	case errors.Is(err, audit.ErrMissingArtifact):
		out.NotApplicable = true
	case err != nil:
		r.logger.Warn("audit failed",
			logging.Field{Key: "audit", Value: meta.Name},
			logging.Field{Key: "error", Value: err})
		out.Error = err.Error()
	case res == nil:
		out.Error = fmt.Sprintf("%s: no result", meta.Name)
	default:
		out.Result = res
	}
	return out
}

func safeEvaluate(ctx context.Context, a audit.Audit, artifacts *audit.Artifacts) (res *model.AuditResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%s: panic: %v", a.Meta().Name, p)
		}
	}()
	return a.Evaluate(ctx, artifacts)
}
