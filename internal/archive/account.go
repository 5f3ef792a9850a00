package archive

import (
	"context"
	"time"

	"github.com/brandon/mailarchive/internal/mailbox"
	"github.com/brandon/mailarchive/pkg/types"
)

// Session is the slice of an IMAP connection a sync run needs.
type Session interface {
	SelectInbox() (uint32, error)
	Search(w mailbox.Window) ([]uint32, error)
	FetchRaw(seq uint32) ([]byte, error)
	// Connected is false once the underlying connection has dropped.
	Connected() bool
	Close()
}

// Connector opens an authenticated session for an account.
type Connector interface {
	Connect(ctx context.Context, acc *types.Account, password string) (Session, error)
}

// CredentialProvider resolves the IMAP password of an account.
type CredentialProvider interface {
	Password(ctx context.Context, acc *types.Account) (string, error)
}

// IMAPConnector connects accounts through a mailbox.Dialer.
type IMAPConnector struct {
	dialer  *mailbox.Dialer
	timeout time.Duration
}

// NewIMAPConnector creates a connector that bounds connect, login and each
// command by timeout.
func NewIMAPConnector(dialer *mailbox.Dialer, timeout time.Duration) *IMAPConnector {
	return &IMAPConnector{dialer: dialer, timeout: timeout}
}

// Connect opens a session for acc.
func (c *IMAPConnector) Connect(ctx context.Context, acc *types.Account, password string) (Session, error) {
	session, err := c.dialer.Open(ctx, mailbox.Options{
		Host:     acc.IMAPHost,
		Port:     acc.IMAPPort,
		Username: acc.IMAPUsername,
		Password: password,
		Timeout:  c.timeout,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
