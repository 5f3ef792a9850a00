package tools

import (
	"context"
	"fmt"
)

// GetMessageTool retrieves an archived message
type GetMessageTool struct {
	archive Archive
}

// NewGetMessageTool creates a new get message tool
func NewGetMessageTool(arch Archive) *GetMessageTool {
	return &GetMessageTool{archive: arch}
}

// Name returns the tool name
func (t *GetMessageTool) Name() string {
	return "get_message"
}

// Description returns the tool description
func (t *GetMessageTool) Description() string {
	return "Retrieve a full archived message by ID, including bodies, attachment metadata and raw headers"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetMessageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message_id": map[string]interface{}{
				"type":        "integer",
				"description": "Archived message ID (from list_messages)",
			},
		},
		"required": []string{"message_id"},
	}
}

// Execute executes the tool
func (t *GetMessageTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, err := requiredIntParam(params, "message_id")
	if err != nil {
		return nil, err
	}

	msg, err := t.archive.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}
