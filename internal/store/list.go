package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brandon/mailarchive/pkg/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	snippetLength    = 200
)

// ListOptions filters archived messages. Zero values mean "no filter".
type ListOptions struct {
	AccountID *int64
	Sender    *string
	Subject   *string
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
}

// ListMessages returns archived message summaries, newest first.
func (s *Store) ListMessages(ctx context.Context, opts ListOptions) ([]types.MessageSummary, error) {
	var conditions []string
	var args []interface{}

	if opts.AccountID != nil {
		conditions = append(conditions, "e.account_id = ?")
		args = append(args, *opts.AccountID)
	}

	if opts.Sender != nil {
		conditions = append(conditions, "e.sender LIKE ?")
		args = append(args, "%"+*opts.Sender+"%")
	}

	if opts.Subject != nil {
		conditions = append(conditions, "e.subject LIKE ?")
		args = append(args, "%"+*opts.Subject+"%")
	}

	if opts.DateFrom != nil {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, formatTime(*opts.DateFrom))
	}

	if opts.DateTo != nil {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, formatTime(*opts.DateTo))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.account_id, a.name AS account_name, e.message_id, e.subject,
			e.sender, e.date, e.has_attachments, e.body_text
		FROM archived_emails e
		JOIN accounts a ON e.account_id = a.id
		%s
		ORDER BY e.date DESC, e.id DESC
		LIMIT ?
	`, whereClause)
	args = append(args, limit)

	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeErr("list messages", err)
	}

	results := make([]types.MessageSummary, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.toSummary())
	}
	return results, nil
}

// summaryRow is one row of the message listing.
type summaryRow struct {
	ID             int64          `db:"id"`
	AccountID      int64          `db:"account_id"`
	AccountName    string         `db:"account_name"`
	MessageID      string         `db:"message_id"`
	Subject        string         `db:"subject"`
	Sender         string         `db:"sender"`
	Date           string         `db:"date"`
	HasAttachments bool           `db:"has_attachments"`
	BodyText       sql.NullString `db:"body_text"`
}

func (r *summaryRow) toSummary() types.MessageSummary {
	date, _ := parseTime(r.Date)
	return types.MessageSummary{
		ID:             r.ID,
		AccountID:      r.AccountID,
		AccountName:    r.AccountName,
		MessageID:      r.MessageID,
		Subject:        r.Subject,
		Sender:         r.Sender,
		Date:           date,
		HasAttachments: r.HasAttachments,
		Snippet:        snippet(r.BodyText.String),
	}
}

func snippet(body string) string {
	runes := []rune(body)
	if len(runes) <= snippetLength {
		return body
	}
	return string(runes[:snippetLength]) + "..."
}
