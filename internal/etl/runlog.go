package etl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deckhaven/cardsync/internal/db"
)

// RunEntry represents a row in card_data.run_log.
type RunEntry struct {
	ID          int64          `json:"id"`
	RunID       string         `json:"run_id"`
	Stage       string         `json:"stage"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Rows        int64          `json:"rows"`
	Skipped     int64          `json:"skipped"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunLog provides read/write access to the card_data.run_log table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a stage and returns the entry ID.
func (l *RunLog) Start(ctx context.Context, runID, stage string) (int64, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO card_data.run_log (run_id, stage, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		runID, stage,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s", stage)
	}
	return id, nil
}

// Complete marks a stage entry as successfully completed.
func (l *RunLog) Complete(ctx context.Context, entryID int64, result *StageResult) error {
	var metaJSON []byte
	if result != nil && result.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(result.Metadata)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal metadata")
		}
	}

	var rows, skipped int64
	if result != nil {
		rows = result.Rows
		skipped = result.Skipped
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE card_data.run_log
		 SET status = 'complete', completed_at = now(), rows = $2, skipped = $3, metadata = $4
		 WHERE id = $1`,
		entryID, rows, skipped, metaJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete entry %d", entryID)
	}
	return nil
}

// Fail marks a stage entry as failed with the error text.
func (l *RunLog) Fail(ctx context.Context, entryID int64, errText string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE card_data.run_log
		 SET status = 'failed', completed_at = now(), error = $2
		 WHERE id = $1`,
		entryID, errText,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail entry %d", entryID)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (l *RunLog) Recent(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, stage, status, started_at, completed_at,
		        COALESCE(rows, 0), COALESCE(skipped, 0), COALESCE(error, '')
		 FROM card_data.run_log
		 ORDER BY started_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: query recent")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Status, &e.StartedAt,
			&e.CompletedAt, &e.Rows, &e.Skipped, &e.Error); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate entries")
	}
	return entries, nil
}
