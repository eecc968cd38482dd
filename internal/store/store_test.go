package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/raysh454/netaudit/internal/model"
	"github.com/raysh454/netaudit/internal/store"
	"github.com/raysh454/netaudit/internal/testutil"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func urlRows(urls ...string) []model.Row {
	rows := make([]model.Row, 0, len(urls))
	for _, u := range urls {
		rows = append(rows, model.Row{"url": u})
	}
	return rows
}

func sampleRun(id string, created time.Time, corbURLs ...string) *model.Run {
	return &model.Run{
		ID:          id,
		FinalURL:    "https://example.com/",
		Source:      "page.json",
		RecordCount: 12,
		CreatedAt:   created,
		Outcomes: []model.AuditOutcome{
			{
				Meta: model.AuditMeta{Name: "corb", Informative: true, RequiredArtifacts: []string{"DevtoolsLog", "URL"}},
				Result: &model.AuditResult{
					Passed:       len(corbURLs) == 0,
					Score:        1 / float64(len(corbURLs)+1),
					DisplayValue: "n resources",
					Details:      model.Details{Type: "table", Rows: urlRows(corbURLs...)},
				},
				DurationMS: 3,
			},
			{
				Meta:          model.AuditMeta{Name: "mixed-content"},
				NotApplicable: true,
			},
			{
				Meta:  model.AuditMeta{Name: "broken"},
				Error: "requesting network records: boom",
			},
		},
	}
}

func TestNew_RejectsNilDeps(t *testing.T) {
	t.Parallel()
	if _, err := store.New(nil, &testutil.DummyLogger{}); err == nil {
		t.Error("expected error for nil db")
	}
}

func TestStore_SaveAndGetRun(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := sampleRun("run-1", created, "https://example.com/a.json", "https://example.com/b.json")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.FinalURL != run.FinalURL || got.Source != run.Source || got.RecordCount != 12 {
		t.Errorf("unexpected run header: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at: want %v got %v", created, got.CreatedAt)
	}
	if len(got.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got.Outcomes))
	}

	corb := got.Outcome("corb")
	if corb == nil || corb.Result == nil {
		t.Fatalf("corb outcome missing result: %+v", corb)
	}
	if !reflect.DeepEqual(corb.Result.URLs(), []string{"https://example.com/a.json", "https://example.com/b.json"}) {
		t.Errorf("unexpected urls: %v", corb.Result.URLs())
	}
	if !corb.Meta.Informative || corb.DurationMS != 3 {
		t.Errorf("meta not round-tripped: %+v", corb)
	}
	if mc := got.Outcome("mixed-content"); !mc.NotApplicable || mc.Result != nil {
		t.Errorf("unexpected mixed-content outcome: %+v", mc)
	}
	if br := got.Outcome("broken"); br.Error == "" || br.Result != nil {
		t.Errorf("unexpected broken outcome: %+v", br)
	}
	if got.Outcomes[0].Meta.Name != "corb" || got.Outcomes[2].Meta.Name != "broken" {
		t.Error("outcome order not preserved")
	}
}

func TestStore_GetRun_NotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if _, err := s.GetRun(context.Background(), "nope"); !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_SaveRun_Invalid(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.SaveRun(context.Background(), &model.Run{}); !errors.Is(err, store.ErrInvalidRun) {
		t.Errorf("expected ErrInvalidRun, got %v", err)
	}
	run := sampleRun("dup", time.Now())
	if err := s.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(context.Background(), run); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		if r.Outcomes != nil {
			t.Errorf("list should not load outcomes for %s", r.ID)
		}
	}
	if !reflect.DeepEqual(ids, []string{"new", "mid", "old"}) {
		t.Errorf("unexpected order: %v", ids)
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns limit: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "new" {
		t.Errorf("unexpected limited list: %+v", limited)
	}
}

func TestStore_CompareRuns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	base := sampleRun("base", now, "https://example.com/a.json", "https://example.com/b.json")
	head := sampleRun("head", now.Add(time.Minute), "https://example.com/b.json", "https://example.com/c.json", "https://example.com/d.json")
	for _, r := range []*model.Run{base, head} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	cmp, err := s.CompareRuns(ctx, "base", "head")
	if err != nil {
		t.Fatalf("CompareRuns: %v", err)
	}
	if cmp.BaseID != "base" || cmp.HeadID != "head" {
		t.Errorf("unexpected ids: %+v", cmp)
	}
	// Only corb has a result in both runs.
	if len(cmp.Audits) != 1 {
		t.Fatalf("expected 1 audit comparison, got %d", len(cmp.Audits))
	}
	c := cmp.Audits[0]
	if c.Name != "corb" || c.PassedBase || c.PassedHead {
		t.Errorf("unexpected comparison: %+v", c)
	}
	if c.ScoreDelta >= 0 {
		t.Errorf("more risky resources should lower the score, delta %v", c.ScoreDelta)
	}
	if !reflect.DeepEqual(c.AddedURLs, []string{"https://example.com/c.json", "https://example.com/d.json"}) {
		t.Errorf("unexpected added: %v", c.AddedURLs)
	}
	if !reflect.DeepEqual(c.RemovedURLs, []string{"https://example.com/a.json"}) {
		t.Errorf("unexpected removed: %v", c.RemovedURLs)
	}

	if _, err := s.CompareRuns(ctx, "base", "missing"); !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCompare_IdenticalRuns(t *testing.T) {
	t.Parallel()
	now := time.Now()
	a := sampleRun("a", now, "https://example.com/x.json")
	b := sampleRun("b", now, "https://example.com/x.json")

	cmp := store.Compare(a, b)
	if len(cmp.Audits) != 1 {
		t.Fatalf("expected 1 comparison, got %d", len(cmp.Audits))
	}
	c := cmp.Audits[0]
	if c.ScoreDelta != 0 || len(c.AddedURLs) != 0 || len(c.RemovedURLs) != 0 {
		t.Errorf("identical runs should show no change: %+v", c)
	}
}
