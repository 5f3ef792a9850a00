// Package archive drives mailbox synchronization: one sequential run per
// account, fanned out across accounts by the Manager.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/internal/mailbox"
	"github.com/brandon/mailarchive/internal/mimeparse"
	"github.com/brandon/mailarchive/internal/store"
	"github.com/brandon/mailarchive/pkg/types"
)

// DefaultBatchSize is the number of messages processed between checkpoints.
const DefaultBatchSize = 500

// Store is the persistence the sync engine depends on.
type Store interface {
	MessageLookup
	FindAccountForSync(ctx context.Context, id int64) (*types.Account, error)
	GetAccount(ctx context.Context, id int64) (*types.Account, error)
	ListEnabledAccountIDs(ctx context.Context) ([]int64, error)
	InsertMessage(ctx context.Context, msg *types.ArchivedMessage) error
	UpdateAccountSyncState(ctx context.Context, id int64, update store.SyncStateUpdate) error
	RecordConnectionTest(ctx context.Context, id int64, ok bool, testErr string, at time.Time) error
	StartSyncRun(ctx context.Context, accountID int64, startedAt time.Time) (string, error)
	FinishSyncRun(ctx context.Context, id string, status types.SyncStatus, fetched int, runErr string) error
}

// Outcome is the result of one sync run.
type Outcome struct {
	AccountID int64            `json:"account_id"`
	RunID     string           `json:"run_id,omitempty"`
	Fetched   int              `json:"fetched"`
	Skipped   int              `json:"skipped"`
	Status    types.SyncStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
}

// state is the position of a run in its lifecycle.
type state int

const (
	stateConnecting state = iota
	stateSearching
	stateBatchProcessing
	stateFinalizing
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateSearching:
		return "searching"
	case stateBatchProcessing:
		return "batch_processing"
	case stateFinalizing:
		return "finalizing"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options tune a run.
type Options struct {
	BatchSize int
	BodyLimit int
}

// Orchestrator runs the sync state machine for one account at a time. It is
// the only writer of account sync state.
type Orchestrator struct {
	store       Store
	connector   Connector
	credentials CredentialProvider
	gate        *Gate
	opts        Options
	logger      *logrus.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(st Store, connector Connector, credentials CredentialProvider, opts Options, logger *logrus.Logger) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BodyLimit == 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	return &Orchestrator{
		store:       st,
		connector:   connector,
		credentials: credentials,
		gate:        NewGate(st),
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// run carries the bookkeeping of one sync attempt.
type run struct {
	acc     *types.Account
	outcome Outcome
	log     *logrus.Entry
	state   state
}

func (r *run) enter(s state) {
	r.state = s
	r.log.WithField("state", s.String()).Debug("Sync state changed")
}

// Run synchronizes acc and reports the outcome. Failures are recorded on the
// account and in the outcome; Run itself never returns an error.
func (o *Orchestrator) Run(ctx context.Context, acc *types.Account) Outcome {
	r := &run{
		acc:     acc,
		outcome: Outcome{AccountID: acc.ID},
		log: o.logger.WithFields(logrus.Fields{
			"account_id": acc.ID,
			"account":    acc.Name,
		}),
	}

	runID, err := o.store.StartSyncRun(ctx, acc.ID, o.now())
	if err != nil {
		r.log.WithError(err).Warn("Failed to record sync run start")
	} else {
		r.outcome.RunID = runID
		r.log = r.log.WithField("run_id", runID)
	}

	r.enter(stateConnecting)
	password, err := o.credentials.Password(ctx, acc)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	session, err := o.connector.Connect(ctx, acc, password)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	defer session.Close()

	r.enter(stateSearching)
	if _, err := session.SelectInbox(); err != nil {
		return o.fail(ctx, r, err)
	}
	window := mailbox.WindowFor(acc.LastSyncAt)
	ids, err := session.Search(window)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	r.log.WithFields(logrus.Fields{
		"window": window.String(),
		"found":  len(ids),
	}).Info("Searched mailbox")

	r.enter(stateBatchProcessing)
	for start := 0; start < len(ids); start += o.opts.BatchSize {
		end := start + o.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := start / o.opts.BatchSize
		interrupted, lost := o.processBatch(ctx, r, session, ids[start:end])

		if err := o.commitState(ctx, r.acc.ID, store.SyncStateUpdate{Status: types.SyncStatusPartial}); err != nil {
			return o.fail(ctx, r, err)
		}
		r.log.WithFields(logrus.Fields{
			"batch":   batch,
			"fetched": r.outcome.Fetched,
			"skipped": r.outcome.Skipped,
		}).Debug("Checkpoint written")

		if lost {
			return o.fail(ctx, r, fmt.Errorf("connection lost after %d of %d messages", end, len(ids)))
		}
		if interrupted {
			return o.interrupt(ctx, r, ctx.Err())
		}
	}

	r.enter(stateFinalizing)
	return o.finalize(ctx, r)
}

// processBatch archives ids in order. It stops early when ctx is done or the
// connection drops; everything processed so far stays archived.
func (o *Orchestrator) processBatch(ctx context.Context, r *run, session Session, ids []uint32) (interrupted, lost bool) {
	for _, seq := range ids {
		if ctx.Err() != nil {
			return true, false
		}

		archived, err := o.archiveOne(ctx, r.acc.ID, session, seq)
		if err != nil {
			r.outcome.Skipped++
			r.log.WithError(err).WithField("seq", seq).Warn("Skipping message")
			if !session.Connected() {
				return false, true
			}
			continue
		}
		if archived {
			r.outcome.Fetched++
		}
	}
	return false, false
}

// archiveOne fetches, parses and stores one message. It reports false
// without error when the message was already archived. A message that has
// started is always finished; cancellation is checked between messages.
func (o *Orchestrator) archiveOne(ctx context.Context, accountID int64, session Session, seq uint32) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	raw, err := session.FetchRaw(seq)
	if err != nil {
		return false, err
	}

	parsed, err := mimeparse.Parse(raw)
	if err != nil {
		return false, err
	}

	messageID := externalID(parsed, seq)
	isNew, err := o.gate.IsNew(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !isNew {
		return false, nil
	}

	msg := buildMessage(accountID, messageID, parsed, o.now(), o.opts.BodyLimit)
	if err := o.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) Outcome {
	now := o.now()
	status := types.SyncStatusPartial
	if r.outcome.Fetched > 0 {
		status = types.SyncStatusSuccess
	}
	cleared := ""
	err := o.commitState(ctx, r.acc.ID, store.SyncStateUpdate{
		Status:     status,
		Error:      &cleared,
		LastSyncAt: &now,
		AddEmails:  r.outcome.Fetched,
	})
	if err != nil {
		return o.fail(ctx, r, err)
	}

	r.outcome.Status = status
	o.finishRun(ctx, r)
	r.log.WithFields(logrus.Fields{
		"status":  status,
		"fetched": r.outcome.Fetched,
		"skipped": r.outcome.Skipped,
	}).Info("Sync completed")
	return r.outcome
}

// fail records a failed run. Failures before any batch ran report zero
// fetched messages.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) Outcome {
	if r.state < stateBatchProcessing {
		r.outcome.Fetched = 0
	}
	r.enter(stateFailed)

	msg := cause.Error()
	if err := o.commitState(ctx, r.acc.ID, store.SyncStateUpdate{Status: types.SyncStatusFailed, Error: &msg}); err != nil {
		r.log.WithError(err).Error("Failed to record sync failure")
	}

	r.outcome.Status = types.SyncStatusFailed
	r.outcome.Error = msg
	o.finishRun(ctx, r)
	r.log.WithError(cause).Error("Sync failed")
	return r.outcome
}

// interrupt records a run stopped by cancellation. The cursor is not
// advanced, so the next run covers the same window again.
func (o *Orchestrator) interrupt(ctx context.Context, r *run, cause error) Outcome {
	msg := fmt.Sprintf("sync interrupted: %v", cause)
	if err := o.commitState(ctx, r.acc.ID, store.SyncStateUpdate{Status: types.SyncStatusPartial, Error: &msg}); err != nil {
		r.log.WithError(err).Error("Failed to record sync interruption")
	}

	r.outcome.Status = types.SyncStatusPartial
	r.outcome.Error = msg
	o.finishRun(ctx, r)
	r.log.WithField("fetched", r.outcome.Fetched).Warn("Sync interrupted")
	return r.outcome
}

// Abort marks an account failed outside of a run, e.g. after a panic.
func (o *Orchestrator) Abort(ctx context.Context, accountID int64, cause error) {
	msg := cause.Error()
	err := o.commitState(ctx, accountID, store.SyncStateUpdate{Status: types.SyncStatusFailed, Error: &msg})
	if err != nil {
		o.logger.WithError(err).WithField("account_id", accountID).Error("Failed to record sync failure")
	}
}

// commitState is the single write path for account sync state. It ignores
// cancellation so a terminal state is always recorded.
func (o *Orchestrator) commitState(ctx context.Context, accountID int64, update store.SyncStateUpdate) error {
	return o.store.UpdateAccountSyncState(context.WithoutCancel(ctx), accountID, update)
}

func (o *Orchestrator) finishRun(ctx context.Context, r *run) {
	if r.outcome.RunID == "" {
		return
	}
	err := o.store.FinishSyncRun(context.WithoutCancel(ctx), r.outcome.RunID,
		r.outcome.Status, r.outcome.Fetched, r.outcome.Error)
	if err != nil {
		r.log.WithError(err).Warn("Failed to record sync run end")
	}
}
