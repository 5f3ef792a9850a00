package mimeparse

import (
	"net/mail"
	"strings"
	"time"
)

// Layouts seen in the wild that net/mail rejects.
var fallbackDateLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"Mon Jan 2 15:04:05 2006",
	"Mon Jan 2 15:04:05 -0700 2006",
	time.RFC3339,
}

// ParseDate parses an RFC 2822 style Date header value. The second return
// value is false when no layout matches.
func ParseDate(value string) (time.Time, bool) {
	value = unfold(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}

	// Drop a trailing comment such as "(UTC)" and collapse runs of spaces.
	if i := strings.Index(value, "("); i > 0 {
		value = strings.TrimSpace(value[:i])
	}
	value = strings.Join(strings.Fields(value), " ")
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
