package archive

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/brandon/mailarchive/internal/mimeparse"
	"github.com/brandon/mailarchive/pkg/types"
)

// DefaultBodyLimit is the maximum number of characters kept per body.
const DefaultBodyLimit = 50000

// externalID returns the Message-ID, or a placeholder built from the
// server sequence number when the header is missing.
func externalID(parsed *mimeparse.Message, seq uint32) string {
	if parsed.MessageID != "" {
		return parsed.MessageID
	}
	return fmt.Sprintf("unknown-%d", seq)
}

func buildMessage(accountID int64, messageID string, parsed *mimeparse.Message, now time.Time, bodyLimit int) *types.ArchivedMessage {
	date := now
	if parsed.Date != nil {
		date = *parsed.Date
	}
	return &types.ArchivedMessage{
		AccountID:      accountID,
		MessageID:      messageID,
		Sender:         parsed.From,
		Recipients:     parsed.To,
		Subject:        parsed.Subject,
		Date:           date,
		BodyText:       truncate(parsed.Text, bodyLimit),
		BodyHTML:       truncate(parsed.HTML, bodyLimit),
		Attachments:    parsed.Attachments,
		HasAttachments: len(parsed.Attachments) > 0,
		RawHeaders:     parsed.RawHeaders,
		ArchivedAt:     now,
	}
}

// truncate keeps at most limit characters of s. A limit <= 0 disables it.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
