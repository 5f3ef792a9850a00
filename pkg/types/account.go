package types

import "time"

// SyncStatus is the outcome recorded on an account after a sync attempt.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"

	// SyncStatusRunning only appears in sync run history, never on an account.
	SyncStatusRunning SyncStatus = "running"
)

// Account represents one remote IMAP mailbox and its sync cursor
type Account struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	Enabled      bool   `json:"enabled"`

	SyncState
	ConnectionTest

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncState is the cursor portion of an account. The sync engine is the
// only writer of these fields.
type SyncState struct {
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus SyncStatus `json:"last_sync_status,omitempty"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	EmailsCount    int        `json:"emails_count"`
}

// ConnectionTest is the result of the last connection check. It is kept
// apart from the sync cursor.
type ConnectionTest struct {
	LastTestAt    *time.Time `json:"last_test_at,omitempty"`
	LastTestOK    *bool      `json:"last_test_ok,omitempty"`
	LastTestError string     `json:"last_test_error,omitempty"`
}

// AccountSeed holds the connection fields used to register an account.
type AccountSeed struct {
	Name         string
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	Enabled      bool
}

// SyncRun is one recorded sync attempt for an account
type SyncRun struct {
	ID         string     `json:"id"`
	AccountID  int64      `json:"account_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     SyncStatus `json:"status"`
	Fetched    int        `json:"fetched"`
	Error      string     `json:"error,omitempty"`
}
