package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/Sayuri/internal/sayuri/jobs"
)

// Run is one row of the batch run history.
type Run struct {
	ID         int64
	RunID      string
	TraceID    string
	UserID     string
	Kind       string
	Count      int
	Failed     int
	Total      int
	Outcome    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordRun persists the terminal summary of a batch job. Satisfies
// jobs.Recorder.
func (s *Store) RecordRun(ctx context.Context, rec *jobs.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, trace_id, user_id, kind, count, failed, total, outcome, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.TraceID, rec.UserID, string(rec.Kind),
		rec.Count, rec.Failed, rec.Total, rec.Outcome, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns the user's most recent finished runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, userID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, trace_id, user_id, kind, count, failed, total, outcome, started_at, finished_at
		FROM runs
		WHERE user_id = ?
		ORDER BY finished_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID, &run.RunID, &run.TraceID, &run.UserID, &run.Kind,
			&run.Count, &run.Failed, &run.Total, &run.Outcome,
			&run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
