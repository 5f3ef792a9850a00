package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

// accountRow mirrors the accounts table.
type accountRow struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	IMAPHost       string         `db:"imap_host"`
	IMAPPort       int            `db:"imap_port"`
	IMAPUsername   string         `db:"imap_username"`
	Enabled        bool           `db:"enabled"`
	LastSyncAt     sql.NullString `db:"last_sync_at"`
	LastSyncStatus sql.NullString `db:"last_sync_status"`
	LastSyncError  sql.NullString `db:"last_sync_error"`
	EmailsCount    int            `db:"emails_count"`
	LastTestAt     sql.NullString `db:"last_test_at"`
	LastTestOK     sql.NullBool   `db:"last_test_ok"`
	LastTestError  sql.NullString `db:"last_test_error"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

const accountColumns = `id, name, imap_host, imap_port, imap_username, enabled,
	last_sync_at, last_sync_status, last_sync_error, emails_count,
	last_test_at, last_test_ok, last_test_error, created_at, updated_at`

func (r *accountRow) toAccount() *types.Account {
	acc := &types.Account{
		ID:           r.ID,
		Name:         r.Name,
		IMAPHost:     r.IMAPHost,
		IMAPPort:     r.IMAPPort,
		IMAPUsername: r.IMAPUsername,
		Enabled:      r.Enabled,
		SyncState: types.SyncState{
			LastSyncAt:     parseNullTime(r.LastSyncAt),
			LastSyncStatus: types.SyncStatus(r.LastSyncStatus.String),
			LastSyncError:  r.LastSyncError.String,
			EmailsCount:    r.EmailsCount,
		},
		ConnectionTest: types.ConnectionTest{
			LastTestAt:    parseNullTime(r.LastTestAt),
			LastTestError: r.LastTestError.String,
		},
	}
	if r.LastTestOK.Valid {
		ok := r.LastTestOK.Bool
		acc.LastTestOK = &ok
	}
	acc.CreatedAt, _ = parseTime(r.CreatedAt)
	acc.UpdatedAt, _ = parseTime(r.UpdatedAt)
	return acc
}

// UpsertAccount registers an account by name, or refreshes its connection
// fields. Sync state is never touched.
func (s *Store) UpsertAccount(ctx context.Context, seed types.AccountSeed) (int64, error) {
	now := formatTime(time.Now())
	query := `
		INSERT INTO accounts (name, imap_host, imap_port, imap_username, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			imap_host = excluded.imap_host,
			imap_port = excluded.imap_port,
			imap_username = excluded.imap_username,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		seed.Name, seed.IMAPHost, seed.IMAPPort, seed.IMAPUsername, seed.Enabled, now, now); err != nil {
		return 0, storeErr("upsert account", err)
	}

	// LastInsertId is unreliable on the update path.
	var id int64
	if err := s.db.GetContext(ctx, &id, "SELECT id FROM accounts WHERE name = ?", seed.Name); err != nil {
		return 0, storeErr("upsert account", fmt.Errorf("failed to get account ID: %w", err))
	}
	return id, nil
}

// FindAccountForSync returns the account only when it exists and is enabled.
func (s *Store) FindAccountForSync(ctx context.Context, id int64) (*types.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND enabled = 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeErr("find account", err)
	}
	return row.toAccount(), nil
}

// GetAccount returns an account regardless of its enabled flag.
func (s *Store) GetAccount(ctx context.Context, id int64) (*types.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeErr("get account", err)
	}
	return row.toAccount(), nil
}

// ListAccounts lists every account ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]types.Account, error) {
	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+accountColumns+" FROM accounts ORDER BY name"); err != nil {
		return nil, storeErr("list accounts", err)
	}
	accounts := make([]types.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, *rows[i].toAccount())
	}
	return accounts, nil
}

// ListEnabledAccountIDs returns the ids the all-accounts driver iterates.
func (s *Store) ListEnabledAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM accounts WHERE enabled = 1 ORDER BY id"); err != nil {
		return nil, storeErr("list enabled accounts", err)
	}
	return ids, nil
}

// SyncStateUpdate carries the cursor fields to write. Nil fields are left
// unchanged; AddEmails is added to emails_count.
type SyncStateUpdate struct {
	Status     types.SyncStatus
	Error      *string
	LastSyncAt *time.Time
	AddEmails  int
}

// UpdateAccountSyncState writes the cursor fields in one statement. The
// write is committed before it returns.
func (s *Store) UpdateAccountSyncState(ctx context.Context, id int64, update SyncStateUpdate) error {
	var lastSyncAt sql.NullString
	if update.LastSyncAt != nil {
		lastSyncAt = sql.NullString{String: formatTime(*update.LastSyncAt), Valid: true}
	}
	var lastErr sql.NullString
	if update.Error != nil {
		lastErr = nullString(*update.Error)
	}

	query := `
		UPDATE accounts SET
			last_sync_status = ?,
			last_sync_error = CASE WHEN ? THEN ? ELSE last_sync_error END,
			last_sync_at = COALESCE(?, last_sync_at),
			emails_count = emails_count + ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(update.Status),
		update.Error != nil, lastErr,
		lastSyncAt,
		update.AddEmails,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return storeErr("update sync state", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

// RecordConnectionTest stores the result of a connection check. The sync
// cursor is left untouched.
func (s *Store) RecordConnectionTest(ctx context.Context, id int64, ok bool, testErr string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			last_test_at = ?,
			last_test_ok = ?,
			last_test_error = ?
		WHERE id = ?
	`, formatTime(at), ok, nullString(testErr), id)
	if err != nil {
		return storeErr("record connection test", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}
