package archive

import "context"

// MessageLookup is the point lookup the gate consults.
type MessageLookup interface {
	MessageExists(ctx context.Context, messageID string) (bool, error)
}

// Gate filters out messages that are already archived. It is advisory: the
// store's unique constraint on message_id is the authority, and an insert
// that loses a race is reported as ErrDuplicate.
type Gate struct {
	lookup MessageLookup
}

// NewGate creates a gate backed by lookup.
func NewGate(lookup MessageLookup) *Gate {
	return &Gate{lookup: lookup}
}

// IsNew reports whether messageID has not been archived yet.
func (g *Gate) IsNew(ctx context.Context, messageID string) (bool, error) {
	exists, err := g.lookup.MessageExists(ctx, messageID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
