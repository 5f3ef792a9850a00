package tools

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SyncAccountTool archives new mail for one account
type SyncAccountTool struct {
	syncer Syncer
	logger *logrus.Logger
}

// NewSyncAccountTool creates a new sync account tool
func NewSyncAccountTool(syncer Syncer, logger *logrus.Logger) *SyncAccountTool {
	return &SyncAccountTool{syncer: syncer, logger: logger}
}

// Name returns the tool name
func (t *SyncAccountTool) Name() string {
	return "sync_account"
}

// Description returns the tool description
func (t *SyncAccountTool) Description() string {
	return "Archive new messages from the INBOX of one enabled account"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SyncAccountTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": map[string]interface{}{
				"type":        "integer",
				"description": "Account ID (from list_accounts)",
			},
		},
		"required": []string{"account_id"},
	}
}

// Execute executes the tool
func (t *SyncAccountTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountID, err := requiredIntParam(params, "account_id")
	if err != nil {
		return nil, err
	}

	outcome, err := t.syncer.SyncOne(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sync account %d: %w", accountID, err)
	}
	t.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"status":     outcome.Status,
	}).Debug("sync_account finished")
	return outcome, nil
}

// SyncAllTool archives new mail for every enabled account
type SyncAllTool struct {
	syncer Syncer
	logger *logrus.Logger
}

// NewSyncAllTool creates a new sync all tool
func NewSyncAllTool(syncer Syncer, logger *logrus.Logger) *SyncAllTool {
	return &SyncAllTool{syncer: syncer, logger: logger}
}

// Name returns the tool name
func (t *SyncAllTool) Name() string {
	return "sync_all"
}

// Description returns the tool description
func (t *SyncAllTool) Description() string {
	return "Archive new messages for every enabled account and summarize the results"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SyncAllTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Execute executes the tool
func (t *SyncAllTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	summary, err := t.syncer.SyncAllEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sync accounts: %w", err)
	}
	return summary, nil
}

// TestConnectionTool checks that an account can log in
type TestConnectionTool struct {
	syncer Syncer
}

// NewTestConnectionTool creates a new test connection tool
func NewTestConnectionTool(syncer Syncer) *TestConnectionTool {
	return &TestConnectionTool{syncer: syncer}
}

// Name returns the tool name
func (t *TestConnectionTool) Name() string {
	return "test_connection"
}

// Description returns the tool description
func (t *TestConnectionTool) Description() string {
	return "Connect, log in and select INBOX for an account without archiving anything"
}

// InputSchema returns the JSON schema for tool inputs
func (t *TestConnectionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_id": map[string]interface{}{
				"type":        "integer",
				"description": "Account ID (from list_accounts)",
			},
		},
		"required": []string{"account_id"},
	}
}

// Execute executes the tool
func (t *TestConnectionTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	accountID, err := requiredIntParam(params, "account_id")
	if err != nil {
		return nil, err
	}
	result, err := t.syncer.TestConnection(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to test account %d: %w", accountID, err)
	}
	return result, nil
}
