package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/brandon/mailarchive/pkg/types"
)

type syncRunRow struct {
	ID         string         `db:"id"`
	AccountID  int64          `db:"account_id"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	Status     string         `db:"status"`
	Fetched    int            `db:"fetched"`
	Error      sql.NullString `db:"error"`
}

// StartSyncRun records a running sync attempt and returns its id.
func (s *Store) StartSyncRun(ctx context.Context, accountID int64, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_runs (id, account_id, started_at, status) VALUES (?, ?, ?, ?)",
		id, accountID, formatTime(startedAt), string(types.SyncStatusRunning))
	if err != nil {
		return "", storeErr("start sync run", err)
	}
	return id, nil
}

// FinishSyncRun stamps the terminal status of a run.
func (s *Store) FinishSyncRun(ctx context.Context, id string, status types.SyncStatus, fetched int, runErr string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_runs SET finished_at = ?, status = ?, fetched = ?, error = ? WHERE id = ?",
		formatTime(time.Now()), string(status), fetched, nullString(runErr), id)
	if err != nil {
		return storeErr("finish sync run", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs of an account, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, accountID int64, limit int) ([]types.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []syncRunRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, started_at, finished_at, status, fetched, error
		FROM sync_runs WHERE account_id = ?
		ORDER BY started_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, storeErr("list sync runs", err)
	}

	runs := make([]types.SyncRun, 0, len(rows))
	for _, r := range rows {
		run := types.SyncRun{
			ID:         r.ID,
			AccountID:  r.AccountID,
			FinishedAt: parseNullTime(r.FinishedAt),
			Status:     types.SyncStatus(r.Status),
			Fetched:    r.Fetched,
			Error:      r.Error.String,
		}
		run.StartedAt, _ = parseTime(r.StartedAt)
		runs = append(runs, run)
	}
	return runs, nil
}
