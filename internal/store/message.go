package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

// messageRow mirrors the archived_emails table.
type messageRow struct {
	ID              int64          `db:"id"`
	AccountID       int64          `db:"account_id"`
	MessageID       string         `db:"message_id"`
	Sender          string         `db:"sender"`
	Recipients      string         `db:"recipients"`
	Subject         string         `db:"subject"`
	Date            string         `db:"date"`
	BodyText        sql.NullString `db:"body_text"`
	BodyHTML        sql.NullString `db:"body_html"`
	AttachmentsJSON sql.NullString `db:"attachments_json"`
	HasAttachments  bool           `db:"has_attachments"`
	RawHeaders      string         `db:"raw_headers"`
	ArchivedAt      string         `db:"archived_at"`
}

// MessageExists reports whether a message with this Message-ID is archived.
func (s *Store) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT 1 FROM archived_emails WHERE message_id = ? LIMIT 1", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("lookup message", err)
	}
	return true, nil
}

// FindMessageByExternalID returns the archived message with the given
// Message-ID.
func (s *Store) FindMessageByExternalID(ctx context.Context, messageID string) (*types.ArchivedMessage, error) {
	return s.getMessage(ctx, "message_id = ?", messageID)
}

// GetMessage returns an archived message by its row id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*types.ArchivedMessage, error) {
	return s.getMessage(ctx, "id = ?", id)
}

func (s *Store) getMessage(ctx context.Context, where string, arg interface{}) (*types.ArchivedMessage, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, account_id, message_id, sender, recipients, subject, date, body_text, body_html,
			attachments_json, has_attachments, raw_headers, archived_at
		FROM archived_emails WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return nil, storeErr("get message", err)
	}

	msg := &types.ArchivedMessage{
		ID:             row.ID,
		AccountID:      row.AccountID,
		MessageID:      row.MessageID,
		Sender:         row.Sender,
		Recipients:     row.Recipients,
		Subject:        row.Subject,
		BodyText:       row.BodyText.String,
		BodyHTML:       row.BodyHTML.String,
		HasAttachments: row.HasAttachments,
		RawHeaders:     row.RawHeaders,
	}
	if msg.Date, err = parseTime(row.Date); err != nil {
		return nil, storeErr("get message", fmt.Errorf("failed to parse date: %w", err))
	}
	msg.ArchivedAt, _ = parseTime(row.ArchivedAt)

	if row.AttachmentsJSON.Valid && row.AttachmentsJSON.String != "" {
		if err := json.Unmarshal([]byte(row.AttachmentsJSON.String), &msg.Attachments); err != nil {
			return nil, storeErr("get message", fmt.Errorf("failed to unmarshal attachments: %w", err))
		}
	}
	return msg, nil
}

// InsertMessage archives msg and sets its ID. A message whose Message-ID is
// already archived yields ErrDuplicate and leaves the existing row untouched.
func (s *Store) InsertMessage(ctx context.Context, msg *types.ArchivedMessage) error {
	attachmentsJSON := sql.NullString{}
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return storeErr("insert message", fmt.Errorf("failed to marshal attachments: %w", err))
		}
		attachmentsJSON = sql.NullString{String: string(data), Valid: true}
	}
	if msg.ArchivedAt.IsZero() {
		msg.ArchivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO archived_emails (account_id, message_id, sender, recipients, subject, date,
			body_text, body_html, attachments_json, has_attachments, raw_headers, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.AccountID,
		msg.MessageID,
		msg.Sender,
		msg.Recipients,
		msg.Subject,
		formatTime(msg.Date),
		nullString(msg.BodyText),
		nullString(msg.BodyHTML),
		attachmentsJSON,
		msg.HasAttachments,
		msg.RawHeaders,
		formatTime(msg.ArchivedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return storeErr("insert message", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storeErr("insert message", err)
	}
	if n == 0 {
		return apperrors.ErrDuplicate
	}
	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	}
	return nil
}

// CountMessages returns the number of archived messages for an account.
func (s *Store) CountMessages(ctx context.Context, accountID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM archived_emails WHERE account_id = ?", accountID); err != nil {
		return 0, storeErr("count messages", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
