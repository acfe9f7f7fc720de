package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/opcheck/internal/harness"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Summary is a run without its outcomes.
type Summary struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Suite      string    `json:"suite"`
	SuiteHash  string    `json:"suite_hash"`
	Evaluator  string    `json:"evaluator"`
	Pass       bool      `json:"pass"`
	Passed     int       `json:"passed"`
	Mismatched int       `json:"mismatched"`
	Errored    int       `json:"errored"`
	Final      int64     `json:"final"`
	ResultHash string    `json:"result_hash"`
	StartedAt  time.Time `json:"started_at"`
}

const summaryColumns = `id, seq, suite, suite_hash, evaluator, pass, passed, mismatched, errored,
	final, result_hash, started_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (Summary, error) {
	var (
		sum     Summary
		pass    int
		started string
	)
	if err := row.Scan(&sum.ID, &sum.Seq, &sum.Suite, &sum.SuiteHash, &sum.Evaluator, &pass,
		&sum.Passed, &sum.Mismatched, &sum.Errored, &sum.Final, &sum.ResultHash, &started); err != nil {
		return Summary{}, err
	}
	sum.Pass = pass != 0
	t, err := unmarshalTime(started)
	if err != nil {
		return Summary{}, err
	}
	sum.StartedAt = t
	return sum, nil
}

// ListRuns returns run summaries newest first. An empty suite lists every
// suite; limit <= 0 means no limit.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, suite string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM runs
		WHERE ? = '' OR suite = ?
		ORDER BY seq DESC
		LIMIT ?
	`, suite, suite, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Summary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: iterate: %w", err)
	}
	return runs, nil
}

// LastRun returns the newest run of the suite with the given content hash
// under evaluator. Returns ErrNotFound if there is none.
func (s *Store) LastRun(ctx context.Context, suiteHash, evaluator string) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM runs
		WHERE suite_hash = ? AND evaluator = ?
		ORDER BY seq DESC
		LIMIT 1
	`, suiteHash, evaluator)

	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("last run of %s: %w", suiteHash, ErrNotFound)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("last run: %w", err)
	}
	return sum, nil
}

// ReadRun returns a run with its outcomes in case order.
// Returns ErrNotFound if the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var (
		r             harness.RunResult
		run           Run
		pass          int
		expectedFinal sql.NullInt64
		errsJSON      string
		started       string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, suite, suite_hash, evaluator, pass, passed, mismatched, errored,
		       initial, final, expected_final, errors, result_hash, started_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Seq, &r.Suite, &run.SuiteHash, &run.Evaluator, &pass,
		&r.Passed, &r.Mismatched, &r.Errored, &r.Initial, &r.Final, &expectedFinal,
		&errsJSON, &run.ResultHash, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	r.Pass = pass != 0
	if expectedFinal.Valid {
		v := expectedFinal.Int64
		r.ExpectedFinal = &v
	}
	if r.Errors, err = unmarshalErrors(errsJSON); err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	if run.StartedAt, err = unmarshalTime(started); err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	outcomes, err := s.readOutcomes(ctx, id)
	if err != nil {
		return Run{}, err
	}
	r.Outcomes = outcomes
	run.Result = &r
	return run, nil
}

// readOutcomes returns the outcomes of a run ordered by case index.
func (s *Store) readOutcomes(ctx context.Context, runID string) ([]harness.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, name, expr, input, status, expected, actual, error
		FROM outcomes
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []harness.Outcome{}
	for rows.Next() {
		var (
			o      harness.Outcome
			status string
		)
		if err := rows.Scan(&o.Index, &o.Name, &o.Expr, &o.Input, &status, &o.Expected, &o.Actual, &o.Err); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = harness.Status(status)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
