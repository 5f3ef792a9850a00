package mailbox

import (
	"time"

	"github.com/emersion/go-imap"
)

// imapDateLayout is the IMAP4rev1 search date format (DD-Mon-YYYY).
const imapDateLayout = "02-Jan-2006"

// Window selects which messages a sync pass looks at.
type Window struct {
	// Since is midnight UTC of the first day to include. Nil means ALL.
	Since *time.Time
}

// WindowFor returns ALL for a first sync, otherwise SINCE the UTC calendar
// day of lastSyncAt. Day granularity means a run re-examines part of the
// previous day; deduplication absorbs the overlap.
func WindowFor(lastSyncAt *time.Time) Window {
	if lastSyncAt == nil {
		return Window{}
	}
	t := lastSyncAt.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Since: &day}
}

// All reports whether the window covers the whole mailbox.
func (w Window) All() bool {
	return w.Since == nil
}

// Criteria builds the SEARCH criteria for w.
func (w Window) Criteria() *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if w.Since != nil {
		criteria.Since = *w.Since
	}
	return criteria
}

// String renders the window as its SEARCH key.
func (w Window) String() string {
	if w.Since == nil {
		return "ALL"
	}
	return "SINCE " + FormatIMAPDate(*w.Since)
}

// FormatIMAPDate formats t as DD-Mon-YYYY in UTC.
func FormatIMAPDate(t time.Time) string {
	return t.UTC().Format(imapDateLayout)
}
