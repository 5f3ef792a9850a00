package types

import "time"

// Attachment describes one attachment part of an archived message. Only
// metadata is kept; the payload is never written anywhere.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Saved       bool   `json:"saved"`
}

// ArchivedMessage represents an email archived from a remote mailbox
type ArchivedMessage struct {
	ID             int64        `json:"id"`
	AccountID      int64        `json:"account_id"`
	MessageID      string       `json:"message_id"`
	Sender         string       `json:"sender"`
	Recipients     string       `json:"recipients"`
	Subject        string       `json:"subject"`
	Date           time.Time    `json:"date"`
	BodyText       string       `json:"body_text,omitempty"`
	BodyHTML       string       `json:"body_html,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	HasAttachments bool         `json:"has_attachments"`
	RawHeaders     string       `json:"raw_headers,omitempty"`
	ArchivedAt     time.Time    `json:"archived_at"`
}

// MessageSummary represents a summary of an archived message (for listings)
type MessageSummary struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	AccountName    string    `json:"account_name"`
	MessageID      string    `json:"message_id"`
	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	Date           time.Time `json:"date"`
	HasAttachments bool      `json:"has_attachments"`
	Snippet        string    `json:"snippet"`
}
