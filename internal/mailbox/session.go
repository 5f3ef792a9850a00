// Package mailbox wraps a single authenticated IMAP connection used by the
// sync engine: connect and login, select INBOX, search a window, fetch raw
// messages and log out.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mailarchive/internal/errors"
)

const inbox = "INBOX"

// Options describe how to reach and authenticate against one server.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds connect, login and every later command.
	Timeout time.Duration
}

func (o Options) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Dialer opens sessions over implicit TLS.
type Dialer struct {
	logger *logrus.Logger

	// tlsConfig is the base client config; nil means system roots.
	tlsConfig *tls.Config
	// plaintext skips TLS; only used against in-process test servers.
	plaintext bool
}

// NewDialer creates a new dialer
func NewDialer(logger *logrus.Logger) *Dialer {
	return &Dialer{logger: logger}
}

// Session is one authenticated IMAP connection. It is not safe for
// concurrent use.
type Session struct {
	client *client.Client
	logger *logrus.Entry
	closed bool
}

// Open connects to the server and logs in. Network, DNS and TLS failures
// are reported as *errors.ConnectError, a rejected login as *errors.AuthError.
func (d *Dialer) Open(ctx context.Context, opts Options) (*Session, error) {
	addr := opts.addr()
	log := d.logger.WithFields(logrus.Fields{
		"host":     opts.Host,
		"port":     opts.Port,
		"username": opts.Username,
	})

	netDialer := &net.Dialer{Timeout: opts.Timeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &apperrors.ConnectError{Addr: addr, Err: err}
	}

	if opts.Timeout > 0 {
		// Covers the TLS handshake and the server greeting.
		conn.SetDeadline(time.Now().Add(opts.Timeout)) //nolint:errcheck
	}

	if !d.plaintext {
		tlsConn := tls.Client(conn, d.clientTLSConfig(opts.Host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &apperrors.ConnectError{Addr: addr, Err: err}
		}
		conn = tlsConn
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, &apperrors.ConnectError{Addr: addr, Err: err}
	}
	conn.SetDeadline(time.Time{}) //nolint:errcheck
	c.Timeout = opts.Timeout

	if err := c.Login(opts.Username, opts.Password); err != nil {
		dropped := c.State() == imap.LogoutState
		c.Terminate() //nolint:errcheck
		if dropped || isTransportError(err) {
			return nil, &apperrors.ConnectError{Addr: addr, Err: err}
		}
		log.WithError(err).Warn("IMAP login rejected")
		return nil, &apperrors.AuthError{Username: opts.Username, Err: err}
	}

	log.Debug("Connected to IMAP server")
	return &Session{client: c, logger: log}, nil
}

func (d *Dialer) clientTLSConfig(host string) *tls.Config {
	cfg := &tls.Config{}
	if d.tlsConfig != nil {
		cfg = d.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// isTransportError separates a dropped or timed-out connection from a
// server-side NO/BAD response.
func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SelectInbox selects INBOX read-write and returns its message count.
func (s *Session) SelectInbox() (uint32, error) {
	mbox, err := s.client.Select(inbox, false)
	if err != nil {
		return 0, &apperrors.ProtocolError{Command: "SELECT", Err: err}
	}
	return mbox.Messages, nil
}

// Search returns the sequence numbers matching w, in server order.
func (s *Session) Search(w Window) ([]uint32, error) {
	ids, err := s.client.Search(w.Criteria())
	if err != nil {
		return nil, &apperrors.ProtocolError{Command: "SEARCH", Err: err}
	}
	return ids, nil
}

// FetchRaw returns the full RFC 5322 bytes of one message. BODY.PEEK[] is
// used so the \Seen flag is left untouched.
func (s *Session) FetchRaw(seq uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, items, messages)
	}()

	var literal imap.Literal
	for msg := range messages {
		if literal != nil {
			continue
		}
		literal = msg.GetBody(section)
		if literal == nil {
			// Some servers echo the section under a different key.
			for _, l := range msg.Body {
				literal = l
				break
			}
		}
	}

	if err := <-done; err != nil {
		return nil, &apperrors.ProtocolError{Command: "FETCH", Err: err}
	}
	if literal == nil {
		return nil, &apperrors.ProtocolError{
			Command: "FETCH",
			Err:     fmt.Errorf("no body returned for message %d", seq),
		}
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		return nil, &apperrors.ProtocolError{Command: "FETCH", Err: err}
	}
	return raw, nil
}

// Connected reports whether the connection is still usable.
func (s *Session) Connected() bool {
	return !s.closed && s.client.State() != imap.LogoutState
}

// Close logs out. Failures are logged and swallowed; calling Close twice is
// harmless.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if err := s.client.Logout(); err != nil {
		s.logger.WithError(err).Debug("IMAP logout failed")
		s.client.Terminate() //nolint:errcheck
	}
}
