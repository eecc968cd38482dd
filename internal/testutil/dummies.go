// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/logging"
	"github.com/raysh454/netaudit/internal/model"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorCount returns how many Error lines were logged.
func (l *DummyLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

// ─── RecordSource ──────────────────────────────────────────────────────

// DummyRecordSource implements audit.RecordSource.
// It returns Records, or Err when set, after an optional Delay.
type DummyRecordSource struct {
	Records []model.NetworkRecord
	Err     error
	Delay   time.Duration

	calls atomic.Int32
}

func (d *DummyRecordSource) NetworkRecords(ctx context.Context) ([]model.NetworkRecord, error) {
	d.calls.Add(1)
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Records, nil
}

// Calls returns how many times NetworkRecords was invoked.
func (d *DummyRecordSource) Calls() int { return int(d.calls.Load()) }

// ─── Audit ─────────────────────────────────────────────────────────────

// DummyAudit implements audit.Audit with a fixed result or error.
// When Requires is empty it needs no artifacts at all.
type DummyAudit struct {
	Name     string
	Requires []string
	Result   *model.AuditResult
	Err      error
	Panics   bool
}

func (d *DummyAudit) Meta() model.AuditMeta {
	return model.AuditMeta{Name: d.Name, Description: "dummy " + d.Name, RequiredArtifacts: d.Requires}
}

func (d *DummyAudit) Evaluate(ctx context.Context, a *audit.Artifacts) (*model.AuditResult, error) {
	if d.Panics {
		panic("dummy audit " + d.Name)
	}
	if missing := a.Missing(d.Requires...); len(missing) > 0 {
		return nil, audit.ErrMissingArtifact
	}
	if a.Has(audit.ArtifactDevtoolsLog) {
		if _, err := a.Records.NetworkRecords(ctx); err != nil {
			return nil, err
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Result != nil {
		return d.Result, nil
	}
	return &model.AuditResult{Passed: true, Score: 1}, nil
}

// ─── Records ───────────────────────────────────────────────────────────

// Record builds a network record for rawURL with the given scheme/domain split.
func Record(rawURL, scheme, domain string, rt model.ResourceType, headers ...model.Header) model.NetworkRecord {
	return model.NetworkRecord{
		URL:             rawURL,
		Scheme:          scheme,
		Domain:          domain,
		ResourceType:    rt,
		ResponseHeaders: headers,
	}
}
