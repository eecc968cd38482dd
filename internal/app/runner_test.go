package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/netaudit/internal/app"
	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/testutil"
)

const finalURL = "https://example.com/"

func pageRecords() []model.NetworkRecord {
	return []model.NetworkRecord{
		testutil.Record("https://example.com/", "https", "example.com", model.ResourceDocument),
		testutil.Record("https://example.com/app.js", "https", "example.com", model.ResourceScript),
		testutil.Record("https://example.com/frame", "https", "example.com", model.ResourceDocument,
			model.Header{Name: "X-Content-Type-Options", Value: "nosniff"}),
		testutil.Record("http://cdn.example/x.png", "http", "cdn.example", model.ResourceImage),
	}
}

func newRunner(t *testing.T, audits []audit.Audit, store app.RunStore) *app.Runner {
	t.Helper()
	r, err := app.NewRunner(app.DefaultConfig(), audits, store, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

type memStore struct {
	mu   sync.Mutex
	runs []*model.Run
	err  error
}

func (m *memStore) SaveRun(_ context.Context, run *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

// slowAudit finishes after delay so completion order differs from registry order.
type slowAudit struct {
	name  string
	delay time.Duration
}

func (s slowAudit) Meta() model.AuditMeta { return model.AuditMeta{Name: s.name} }

func (s slowAudit) Evaluate(ctx context.Context, _ *audit.Artifacts) (*model.AuditResult, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.AuditResult{Passed: true, Score: 1}, nil
}

// ─── Constructor ───────────────────────────────────────────────────────

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()
	if _, err := app.NewRunner(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil logger")
	}
	if _, err := app.NewRunner(nil, []audit.Audit{nil}, nil, &testutil.DummyLogger{}); err == nil {
		t.Error("expected error for nil audit")
	}

	r, err := app.NewRunner(nil, nil, nil, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	metas := r.Audits()
	if len(metas) != 2 || metas[0].Name != "corb" || metas[1].Name != "mixed-content" {
		t.Errorf("expected default audits, got %+v", metas)
	}
}

// ─── Run ───────────────────────────────────────────────────────────────

func TestRunner_Run_DefaultAudits(t *testing.T) {
	t.Parallel()
	src := &testutil.DummyRecordSource{Records: pageRecords()}
	r := newRunner(t, nil, nil)

	run, err := r.Run(context.Background(), app.RunRequest{FinalURL: finalURL, Source: "test", Records: src})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("run id is not a uuid: %q", run.ID)
	}
	if run.RecordCount != 4 || run.FinalURL != finalURL || run.CreatedAt.Location() != time.UTC {
		t.Errorf("unexpected run header: %+v", run)
	}
	if src.Calls() != 1 {
		t.Errorf("records should be fetched once per run, got %d calls", src.Calls())
	}

	corb := run.Outcome("corb")
	if corb == nil || corb.Result == nil {
		t.Fatalf("corb outcome has no result: %+v", corb)
	}
	if corb.Result.Passed || len(corb.Result.Details.Rows) != 1 || corb.Result.URLs()[0] != finalURL {
		t.Errorf("expected the unprotected top document as the only CORB risk, got %+v", corb.Result)
	}

	mc := run.Outcome("mixed-content")
	if mc == nil || mc.Result == nil {
		t.Fatalf("mixed-content outcome has no result: %+v", mc)
	}
	if !mc.Result.Passed || len(mc.Result.Details.Rows) != 3 {
		t.Errorf("expected 3 secure requests, got %+v", mc.Result)
	}
	if run.Failed() {
		t.Error("run should not be marked failed")
	}
}

func TestRunner_Run_MissingArtifacts(t *testing.T) {
	t.Parallel()
	r := newRunner(t, nil, nil)

	run, err := r.Run(context.Background(), app.RunRequest{Records: &testutil.DummyRecordSource{Records: pageRecords()}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if corb := run.Outcome("corb"); !corb.NotApplicable || corb.Result != nil || corb.Error != "" {
		t.Errorf("corb without URL should be not applicable: %+v", corb)
	}
	if mc := run.Outcome("mixed-content"); mc.Result == nil {
		t.Errorf("mixed-content only needs the log: %+v", mc)
	}

	run, err = r.Run(context.Background(), app.RunRequest{FinalURL: finalURL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range run.Outcomes {
		if !o.NotApplicable {
			t.Errorf("%s without a log should be not applicable: %+v", o.Meta.Name, o)
		}
	}
}

func TestRunner_Run_FetchFailure(t *testing.T) {
	t.Parallel()
	upstream := errors.New("devtools log truncated")
	src := &testutil.DummyRecordSource{Err: upstream}
	r := newRunner(t, nil, nil)

	run, err := r.Run(context.Background(), app.RunRequest{FinalURL: finalURL, Records: src})
	if err != nil {
		t.Fatalf("fetch failure is reported per audit, not as a run error: %v", err)
	}
	for _, o := range run.Outcomes {
		if o.Result != nil || o.Error == "" {
			t.Errorf("%s: expected error and no result, got %+v", o.Meta.Name, o)
		}
	}
	if !run.Failed() {
		t.Error("run with errored audits should be failed")
	}
	if src.Calls() != 1 {
		t.Errorf("expected 1 upstream call, got %d", src.Calls())
	}
}

func TestRunner_Run_EmptyLogIsNormal(t *testing.T) {
	t.Parallel()
	r := newRunner(t, nil, nil)

	run, err := r.Run(context.Background(), app.RunRequest{FinalURL: finalURL, Records: &testutil.DummyRecordSource{}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	corb := run.Outcome("corb")
	if corb.Result == nil || !corb.Result.Passed || corb.Result.Score != 1 {
		t.Errorf("unexpected corb outcome: %+v", corb)
	}
	mc := run.Outcome("mixed-content")
	if mc.Result == nil || mc.Result.Passed || mc.Result.Score != 0 {
		t.Errorf("unexpected mixed-content outcome: %+v", mc)
	}
}

func TestRunner_Run_OrderIsRegistryOrder(t *testing.T) {
	t.Parallel()
	audits := []audit.Audit{
		slowAudit{name: "slow", delay: 30 * time.Millisecond},
		slowAudit{name: "medium", delay: 10 * time.Millisecond},
		slowAudit{name: "fast"},
	}
	r := newRunner(t, audits, nil)

	run, err := r.Run(context.Background(), app.RunRequest{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, want := range []string{"slow", "medium", "fast"} {
		if run.Outcomes[i].Meta.Name != want {
			t.Errorf("outcome %d: want %s got %s", i, want, run.Outcomes[i].Meta.Name)
		}
	}
}

func TestRunner_Run_PanicBecomesError(t *testing.T) {
	t.Parallel()
	r := newRunner(t, []audit.Audit{
		&testutil.DummyAudit{Name: "ok"},
		&testutil.DummyAudit{Name: "boom", Panics: true},
	}, nil)

	run, err := r.Run(context.Background(), app.RunRequest{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Outcome("ok").Result == nil {
		t.Error("healthy audit should still produce a result")
	}
	if o := run.Outcome("boom"); o.Error == "" || o.Result != nil {
		t.Errorf("panicking audit should be an error outcome: %+v", o)
	}
}

func TestRunner_Run_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRunner(t, nil, nil)
	if _, err := r.Run(ctx, app.RunRequest{FinalURL: finalURL, Records: &testutil.DummyRecordSource{}}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ─── Store ─────────────────────────────────────────────────────────────

func TestRunner_Run_Persists(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := newRunner(t, nil, st)

	run, err := r.Run(context.Background(), app.RunRequest{FinalURL: finalURL, Records: &testutil.DummyRecordSource{Records: pageRecords()}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(st.runs) != 1 || st.runs[0].ID != run.ID {
		t.Errorf("expected the run to be saved once, got %+v", st.runs)
	}
}

func TestRunner_Run_StoreFailure(t *testing.T) {
	t.Parallel()
	dbErr := errors.New("disk full")
	r := newRunner(t, nil, &memStore{err: dbErr})

	run, err := r.Run(context.Background(), app.RunRequest{FinalURL: finalURL, Records: &testutil.DummyRecordSource{}})
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if run == nil || len(run.Outcomes) != 2 {
		t.Errorf("run should still be returned with its outcomes: %+v", run)
	}
}

// ─── Events ────────────────────────────────────────────────────────────

func TestRunner_RunWithEvents(t *testing.T) {
	t.Parallel()
	r := newRunner(t, nil, nil)
	events := make(chan app.RunEvent, 16)

	run, err := r.RunWithEvents(context.Background(), app.RunRequest{FinalURL: finalURL, Records: &testutil.DummyRecordSource{Records: pageRecords()}}, events)
	if err != nil {
		t.Fatalf("RunWithEvents: %v", err)
	}

	var got []app.RunEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 4 {
		t.Fatalf("expected status, 2 outcomes and done, got %d events: %+v", len(got), got)
	}
	if got[0].Type != app.RunEventStatus || got[0].Status != app.RunRunning {
		t.Errorf("first event should be running status: %+v", got[0])
	}
	last := got[len(got)-1]
	if last.Type != app.RunEventDone || last.Status != app.RunDone || last.Run == nil || last.Run.ID != run.ID {
		t.Errorf("last event should be done with the run: %+v", last)
	}

	seen := map[string]bool{}
	for _, ev := range got[1:3] {
		if ev.Type != app.RunEventOutcome || ev.Outcome == nil || ev.RunID != run.ID {
			t.Errorf("unexpected outcome event: %+v", ev)
			continue
		}
		seen[ev.Audit] = true
	}
	if !seen["corb"] || !seen["mixed-content"] {
		t.Errorf("missing outcome events: %v", seen)
	}
}

func TestRunner_RunWithEvents_FullBufferDoesNotBlock(t *testing.T) {
	t.Parallel()
	r := newRunner(t, nil, nil)
	events := make(chan app.RunEvent) // unbuffered, nobody reading

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.RunWithEvents(context.Background(), app.RunRequest{FinalURL: finalURL}, events)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunWithEvents blocked on a full channel")
	}
	if _, ok := <-events; ok {
		t.Error("events channel should be closed")
	}
}
