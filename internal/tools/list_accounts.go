package tools

import (
	"context"
	"fmt"
)

// ListAccountsTool lists accounts and their sync state
type ListAccountsTool struct {
	archive Archive
}

// NewListAccountsTool creates a new list accounts tool
func NewListAccountsTool(arch Archive) *ListAccountsTool {
	return &ListAccountsTool{archive: arch}
}

// Name returns the tool name
func (t *ListAccountsTool) Name() string {
	return "list_accounts"
}

// Description returns the tool description
func (t *ListAccountsTool) Description() string {
	return "List archived accounts with their last sync time, status and message count"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListAccountsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *ListAccountsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	accounts, err := t.archive.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListSyncRunsTool shows recent sync attempts of an account
type ListSyncRunsTool struct {
	archive Archive
}

// NewListSyncRunsTool creates a new list sync runs tool
func NewListSyncRunsTool(arch Archive) *ListSyncRunsTool {
	return &ListSyncRunsTool{archive: arch}
}

// Name returns the tool name
func (t *ListSyncRunsTool) Name() string {
	return "list_sync_runs"
}

// Description returns the tool description
func (t *ListSyncRunsTool) Description() string {
	return "List the most recent sync runs of an account, newest first"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListSyncRunsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": map[string]interface{}{
				"type":        "integer",
				"description": "Account ID (from list_accounts)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Number of runs (default: 20)",
				"minimum":     1,
			},
		},
		"required": []string{"account_id"},
	}
}

// Execute executes the tool
func (t *ListSyncRunsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountID, err := requiredIntParam(params, "account_id")
	if err != nil {
		return nil, err
	}
	limit, _, err := intParam(params, "limit")
	if err != nil {
		return nil, err
	}

	runs, err := t.archive.ListSyncRuns(ctx, accountID, int(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}
