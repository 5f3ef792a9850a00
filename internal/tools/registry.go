package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailarchive/internal/archive"
	"github.com/brandon/mailarchive/internal/store"
	"github.com/brandon/mailarchive/pkg/types"
)

// Syncer triggers sync runs and connection checks.
type Syncer interface {
	SyncOne(ctx context.Context, accountID int64) (archive.Outcome, error)
	SyncAllEnabled(ctx context.Context) (archive.Summary, error)
	TestConnection(ctx context.Context, accountID int64) (archive.CheckResult, error)
}

// Archive reads accounts, archived messages and run history.
type Archive interface {
	ListAccounts(ctx context.Context) ([]types.Account, error)
	GetMessage(ctx context.Context, id int64) (*types.ArchivedMessage, error)
	ListMessages(ctx context.Context, opts store.ListOptions) ([]types.MessageSummary, error)
	ListSyncRuns(ctx context.Context, accountID int64, limit int) ([]types.SyncRun, error)
}

// Registry manages MCP tools
type Registry struct {
	logger *logrus.Logger
	tools  map[string]Tool
}

// Tool represents an MCP tool
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// NewRegistry creates a new tool registry
func NewRegistry(syncer Syncer, arch Archive, logger *logrus.Logger) *Registry {
	reg := &Registry{
		logger: logger,
		tools:  make(map[string]Tool),
	}

	toolList := []Tool{
		NewSyncAccountTool(syncer, logger),
		NewSyncAllTool(syncer, logger),
		NewTestConnectionTool(syncer),
		NewListAccountsTool(arch),
		NewListSyncRunsTool(arch),
		NewGetMessageTool(arch),
		NewListMessagesTool(arch),
	}
	for _, tool := range toolList {
		reg.tools[tool.Name()] = tool
		logger.WithField("tool", tool.Name()).Debug("Registered tool")
	}

	logger.WithField("count", len(reg.tools)).Info("Registered tools")
	return reg
}

// GetTool returns a tool by name
func (r *Registry) GetTool(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// GetToolDefinitions returns tool definitions for MCP, sorted by name.
func (r *Registry) GetToolDefinitions() []map[string]interface{} {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		definitions = append(definitions, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.InputSchema(),
		})
	}
	return definitions
}

// intParam reads an integer argument sent either as a JSON number or a
// numeric string.
func intParam(params map[string]interface{}, key string) (int64, bool, error) {
	switch v := params[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return int64(v), true, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("invalid %s: unexpected type %T", key, v)
	}
}

func requiredIntParam(params map[string]interface{}, key string) (int64, error) {
	n, ok, err := intParam(params, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return n, nil
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok && s != ""
}

func timeParam(params map[string]interface{}, key string) (*time.Time, error) {
	s, ok := stringParam(params, key)
	if !ok {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", key, err)
	}
	return &t, nil
}
