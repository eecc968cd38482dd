package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/netaudit/internal/logging"
	"github.com/raysh454/netaudit/internal/model"

	_ "modernc.org/sqlite" // SQLite driver
)

// connPragmas are per-connection settings; passing them in the DSN makes the
// driver apply them to every connection the pool opens.
const connPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

var (
	ErrRunNotFound = errors.New("run not found")
	ErrInvalidRun  = errors.New("invalid run")
)

// Store persists audit runs in SQLite. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	ownsDB bool
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("opening run database: %w", err)
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an already opened database. The caller keeps ownership of db.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: nil db")
	}
	if logger == nil {
		return nil, errors.New("store: nil logger")
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "store"}),
	}, nil
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts a run and its outcomes in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *model.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRun)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, final_url, source, record_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.FinalURL, run.Source, run.RecordCount, run.CreatedAt.UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, o := range run.Outcomes {
		metaJSON, err := json.Marshal(o.Meta)
		if err != nil {
			return fmt.Errorf("marshal meta: %w", err)
		}
		var (
			resultJSON sql.NullString
			passed     sql.NullBool
			score      sql.NullFloat64
			errText    sql.NullString
		)
		if o.Result != nil {
			b, err := json.Marshal(o.Result)
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			resultJSON = sql.NullString{String: string(b), Valid: true}
			passed = sql.NullBool{Bool: o.Result.Passed, Valid: true}
			score = sql.NullFloat64{Float64: o.Result.Score, Valid: true}
		}
		if o.Error != "" {
			errText = sql.NullString{String: o.Error, Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, position, audit_name, meta_json, result_json, passed, score, not_applicable, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, o.Meta.Name, string(metaJSON), resultJSON, passed, score, o.NotApplicable, errText, o.DurationMS,
		); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Meta.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("saved run", logging.Field{Key: "run_id", Value: run.ID}, logging.Field{Key: "outcomes", Value: len(run.Outcomes)})
	return nil
}

// GetRun loads a run with its outcomes, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run := &model.Run{ID: id}
	var (
		source    sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT final_url, source, record_count, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.FinalURL, &source, &run.RecordCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	run.Source = source.String
	run.CreatedAt = time.Unix(0, createdAt).UTC()

	outcomes, err := s.outcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes
	return run, nil
}

func (s *Store) outcomes(ctx context.Context, runID string) ([]model.AuditOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meta_json, result_json, not_applicable, error, duration_ms
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditOutcome, 0)
	for rows.Next() {
		var (
			o          model.AuditOutcome
			metaJSON   string
			resultJSON sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&metaJSON, &resultJSON, &o.NotApplicable, &errText, &o.DurationMS); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &o.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		if resultJSON.Valid {
			o.Result = &model.AuditResult{}
			if err := json.Unmarshal([]byte(resultJSON.String), o.Result); err != nil {
				return nil, fmt.Errorf("decode result: %w", err)
			}
		}
		o.Error = errText.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListRuns returns runs newest first, without outcomes. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	query := `SELECT id, final_url, source, record_count, created_at FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]model.Run, 0)
	for rows.Next() {
		var (
			r         model.Run
			source    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.FinalURL, &source, &r.RecordCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Source = source.String
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompareRuns reports, per audit present in both runs, how the verdict, score
// and listed URLs changed from base to head.
func (s *Store) CompareRuns(ctx context.Context, baseID, headID string) (*model.RunComparison, error) {
	base, err := s.GetRun(ctx, baseID)
	if err != nil {
		return nil, err
	}
	head, err := s.GetRun(ctx, headID)
	if err != nil {
		return nil, err
	}
	return Compare(base, head), nil
}

// Compare is CompareRuns for runs already in memory. Audits without a result
// in either run are skipped.
func Compare(base, head *model.Run) *model.RunComparison {
	cmp := &model.RunComparison{BaseID: base.ID, HeadID: head.ID, Audits: []model.AuditComparison{}}
	for _, ho := range head.Outcomes {
		bo := base.Outcome(ho.Meta.Name)
		if bo == nil || bo.Result == nil || ho.Result == nil {
			continue
		}
		added, removed := diffURLLines(bo.Result.URLs(), ho.Result.URLs())
		cmp.Audits = append(cmp.Audits, model.AuditComparison{
			Name:        ho.Meta.Name,
			PassedBase:  bo.Result.Passed,
			PassedHead:  ho.Result.Passed,
			ScoreBase:   bo.Result.Score,
			ScoreHead:   ho.Result.Score,
			ScoreDelta:  ho.Result.Score - bo.Result.Score,
			AddedURLs:   added,
			RemovedURLs: removed,
		})
	}
	return cmp
}
