package tools

import (
	"context"
	"fmt"

	"github.com/brandon/mailarchive/internal/store"
)

// ListMessagesTool lists archived messages
type ListMessagesTool struct {
	archive Archive
}

// NewListMessagesTool creates a new list messages tool
func NewListMessagesTool(arch Archive) *ListMessagesTool {
	return &ListMessagesTool{archive: arch}
}

// Name returns the tool name
func (t *ListMessagesTool) Name() string {
	return "list_messages"
}

// Description returns the tool description
func (t *ListMessagesTool) Description() string {
	return "List archived messages, newest first, filtered by account, sender, subject or date range"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Filter by account",
			},
			"sender": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Filter by sender (substring match)",
			},
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Filter by subject (substring match)",
			},
			"date_from": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Start date (ISO 8601 format)",
			},
			"date_to": map[string]interface{}{
				"type":        "string",
				"description": "Optional: End date (ISO 8601 format)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Result limit (default: 100, max: 1000)",
				"minimum":     1,
				"maximum":     1000,
			},
		},
	}
}

// Execute executes the tool
func (t *ListMessagesTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	opts := store.ListOptions{}

	accountID, ok, err := intParam(params, "account_id")
	if err != nil {
		return nil, err
	}
	if ok {
		opts.AccountID = &accountID
	}

	if sender, ok := stringParam(params, "sender"); ok {
		opts.Sender = &sender
	}
	if subject, ok := stringParam(params, "subject"); ok {
		opts.Subject = &subject
	}

	if opts.DateFrom, err = timeParam(params, "date_from"); err != nil {
		return nil, err
	}
	if opts.DateTo, err = timeParam(params, "date_to"); err != nil {
		return nil, err
	}

	limit, _, err := intParam(params, "limit")
	if err != nil {
		return nil, err
	}
	opts.Limit = int(limit)

	results, err := t.archive.ListMessages(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return results, nil
}
