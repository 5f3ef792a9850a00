package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

// Summary aggregates the outcomes of a multi-account sync.
type Summary struct {
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Results    []Outcome `json:"results"`
}

// CheckResult reports whether an account's server accepts its credentials.
type CheckResult struct {
	AccountID int64  `json:"account_id"`
	OK        bool   `json:"ok"`
	Messages  uint32 `json:"messages,omitempty"`
	Class     string `json:"class,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Manager is the entry point for sync invocations. Runs of different
// accounts are isolated from each other; a second run of the same account
// is refused while one is in flight.
type Manager struct {
	store        Store
	orchestrator *Orchestrator
	connector    Connector
	credentials  CredentialProvider
	concurrency  int
	logger       *logrus.Logger
	now          func() time.Time

	mu      sync.Mutex
	running map[int64]struct{}
}

// NewManager creates a new sync manager
func NewManager(st Store, connector Connector, credentials CredentialProvider, opts Options, concurrency int, logger *logrus.Logger) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		store:        st,
		orchestrator: NewOrchestrator(st, connector, credentials, opts, logger),
		connector:    connector,
		credentials:  credentials,
		concurrency:  concurrency,
		logger:       logger,
		now:          time.Now,
		running:      make(map[int64]struct{}),
	}
}

// SyncOne runs a sync for one enabled account. The error is non-nil only
// when no run took place: the account is missing or disabled, or already
// syncing.
func (m *Manager) SyncOne(ctx context.Context, accountID int64) (out Outcome, err error) {
	acc, err := m.store.FindAccountForSync(ctx, accountID)
	if err != nil {
		return Outcome{AccountID: accountID}, err
	}

	if !m.acquire(accountID) {
		return Outcome{AccountID: accountID}, apperrors.ErrSyncInProgress
	}
	defer m.release(accountID)

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("sync panicked: %v", r)
			m.logger.WithField("account_id", accountID).WithField("panic", r).Error("Recovered from sync panic")
			m.orchestrator.Abort(ctx, accountID, cause)
			out = Outcome{AccountID: accountID, Status: types.SyncStatusFailed, Error: cause.Error()}
			err = nil
		}
	}()

	return m.orchestrator.Run(ctx, acc), nil
}

// SyncAllEnabled syncs every enabled account, at most concurrency at a
// time. A failing or panicking account is recorded as a failed outcome and
// never stops the others.
func (m *Manager) SyncAllEnabled(ctx context.Context) (Summary, error) {
	ids, err := m.store.ListEnabledAccountIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	results := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = m.syncIsolated(ctx, id)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	summary := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == types.SyncStatusFailed {
			summary.Failed++
		} else {
			summary.Successful++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"total":      summary.Total,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	}).Info("Synced all accounts")
	return summary, nil
}

// syncIsolated turns every refusal into a failed outcome.
func (m *Manager) syncIsolated(ctx context.Context, id int64) Outcome {
	out, err := m.SyncOne(ctx, id)
	if err != nil {
		m.logger.WithError(err).WithField("account_id", id).Warn("Account sync did not run")
		return Outcome{AccountID: id, Status: types.SyncStatusFailed, Error: err.Error()}
	}
	return out
}

// TestConnection opens a session for the account, selects INBOX and logs
// out. The result is stored on the account; sync state is not touched.
func (m *Manager) TestConnection(ctx context.Context, accountID int64) (CheckResult, error) {
	acc, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return CheckResult{AccountID: accountID}, err
	}

	result := m.checkConnection(ctx, acc)
	err = m.store.RecordConnectionTest(context.WithoutCancel(ctx), accountID, result.OK, result.Error, m.now())
	if err != nil {
		m.logger.WithError(err).WithField("account_id", accountID).Warn("Failed to record connection test")
	}
	return result, nil
}

func (m *Manager) checkConnection(ctx context.Context, acc *types.Account) CheckResult {
	result := CheckResult{AccountID: acc.ID}
	password, err := m.credentials.Password(ctx, acc)
	if err != nil {
		return checkFailure(result, err)
	}

	session, err := m.connector.Connect(ctx, acc, password)
	if err != nil {
		return checkFailure(result, err)
	}
	defer session.Close()

	count, err := session.SelectInbox()
	if err != nil {
		return checkFailure(result, err)
	}

	result.OK = true
	result.Messages = count
	return result
}

func checkFailure(result CheckResult, err error) CheckResult {
	result.Class = errorClass(err)
	result.Error = err.Error()
	return result
}

// errorClass names the failure category of a sync or connection check error.
func errorClass(err error) string {
	var (
		connErr  *apperrors.ConnectError
		authErr  *apperrors.AuthError
		protoErr *apperrors.ProtocolError
	)
	switch {
	case errors.As(err, &connErr):
		return "connect"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.Is(err, apperrors.ErrCredentialNotFound):
		return "credential"
	default:
		return "internal"
	}
}

func (m *Manager) acquire(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.running[id]; busy {
		return false
	}
	m.running[id] = struct{}{}
	return true
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, id)
}
