package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/opcheck/internal/canon"
	"github.com/roach88/opcheck/internal/harness"
)

// Run is one recorded suite execution.
type Run struct {
	ID         string
	Seq        int64 // assigned by WriteRun
	SuiteHash  string
	ResultHash string // computed by WriteRun
	Evaluator  string
	StartedAt  time.Time
	Result     *harness.RunResult
}

// NewRun builds a record for result of running s.
func NewRun(id string, s *harness.Suite, evaluator string, startedAt time.Time, result *harness.RunResult) Run {
	return Run{
		ID:        id,
		SuiteHash: s.Hash(),
		Evaluator: evaluator,
		StartedAt: startedAt,
		Result:    result,
	}
}

// ResultHash hashes the canonical snapshot of a result.
func ResultHash(r *harness.RunResult) (string, error) {
	snap, err := harness.Snapshot(r)
	if err != nil {
		return "", err
	}
	return canon.HashWithDomain(canon.DomainResult, snap), nil
}

// WriteRun inserts a run and its outcomes in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a duplicate run id is
// silently ignored and reported as inserted=false.
//
// The run's seq is assigned inside the transaction as one past the highest
// stored seq.
func (s *Store) WriteRun(ctx context.Context, run Run) (seq int64, inserted bool, err error) {
	if s.readOnly {
		return 0, false, fmt.Errorf("write run %s: store is read-only", run.ID)
	}
	if run.Result == nil {
		return 0, false, fmt.Errorf("write run %s: nil result", run.ID)
	}
	r := run.Result

	resultHash, err := ResultHash(r)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}
	errsJSON, err := marshalErrors(r.Errors)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("write run: next seq: %w", err)
	}

	var expectedFinal any
	if r.ExpectedFinal != nil {
		expectedFinal = *r.ExpectedFinal
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, suite, suite_hash, evaluator, pass, passed, mismatched, errored,
		 initial, final, expected_final, errors, result_hash, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		seq,
		r.Suite,
		run.SuiteHash,
		run.Evaluator,
		boolInt(r.Pass),
		r.Passed,
		r.Mismatched,
		r.Errored,
		r.Initial,
		r.Final,
		expectedFinal,
		errsJSON,
		resultHash,
		marshalTime(run.StartedAt),
	)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes
		(run_id, idx, name, expr, input, status, expected, actual, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, false, fmt.Errorf("write outcomes: prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range r.Outcomes {
		if _, err := stmt.ExecContext(ctx,
			run.ID, o.Index, o.Name, o.Expr, o.Input, string(o.Status), o.Expected, o.Actual, o.Err,
		); err != nil {
			return 0, false, fmt.Errorf("write outcome %d: %w", o.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, true, nil
}
