package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/brandon/mailarchive/internal/credential"
	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/internal/mailbox"
	"github.com/brandon/mailarchive/internal/store"
	"github.com/brandon/mailarchive/pkg/types"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

// fakeSession serves messages from memory in the order given.
type fakeSession struct {
	mu sync.Mutex

	ids       []uint32
	messages  map[uint32][]byte
	fetchErrs map[uint32]error
	selectErr error
	searchErr error

	// dropAfter > 0 drops the connection once that many fetches succeeded.
	dropAfter int
	panicOn   uint32
	onFetch   func(seq uint32)

	fetches int
	dropped bool
	closed  bool
	windows []mailbox.Window
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages:  make(map[uint32][]byte),
		fetchErrs: make(map[uint32]error),
	}
}

func (s *fakeSession) add(seq uint32, raw []byte) *fakeSession {
	s.ids = append(s.ids, seq)
	s.messages[seq] = raw
	return s
}

func (s *fakeSession) SelectInbox() (uint32, error) {
	if s.selectErr != nil {
		return 0, s.selectErr
	}
	return uint32(len(s.ids)), nil
}

func (s *fakeSession) Search(w mailbox.Window) ([]uint32, error) {
	s.mu.Lock()
	s.windows = append(s.windows, w)
	s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return append([]uint32(nil), s.ids...), nil
}

func (s *fakeSession) FetchRaw(seq uint32) ([]byte, error) {
	if s.onFetch != nil {
		s.onFetch(seq)
	}
	if s.panicOn != 0 && seq == s.panicOn {
		panic("fake session exploded")
	}
	if s.dropped {
		return nil, &apperrors.ProtocolError{Command: "FETCH", Err: fmt.Errorf("connection closed")}
	}
	if s.dropAfter > 0 && s.fetches >= s.dropAfter {
		s.dropped = true
		return nil, &apperrors.ProtocolError{Command: "FETCH", Err: fmt.Errorf("connection reset")}
	}
	if err := s.fetchErrs[seq]; err != nil {
		return nil, err
	}
	raw, ok := s.messages[seq]
	if !ok {
		return nil, &apperrors.ProtocolError{Command: "FETCH", Err: fmt.Errorf("no message %d", seq)}
	}
	s.fetches++
	return raw, nil
}

func (s *fakeSession) Connected() bool {
	return !s.dropped && !s.closed
}

func (s *fakeSession) Close() {
	s.closed = true
}

// fakeConnector hands out sessions per account name.
type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	errs     map[string]error
	calls    int
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		sessions: make(map[string]*fakeSession),
		errs:     make(map[string]error),
	}
}

func (c *fakeConnector) Connect(_ context.Context, acc *types.Account, password string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if password == "" {
		return nil, fmt.Errorf("empty password")
	}
	if err := c.errs[acc.Name]; err != nil {
		return nil, err
	}
	session, ok := c.sessions[acc.Name]
	if !ok {
		return nil, &apperrors.ConnectError{Addr: acc.IMAPHost, Err: fmt.Errorf("no fake session")}
	}
	session.closed = false
	return session, nil
}

type harness struct {
	store     *store.Store
	connector *fakeConnector
	creds     *credential.Static
	logger    *logrus.Logger
	hook      *test.Hook
}

func newHarness(t *testing.T, accounts ...string) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"), logger)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	passwords := make(map[string]string)
	for _, name := range accounts {
		passwords[name] = "pw-" + name
	}

	return &harness{
		store:     st,
		connector: newFakeConnector(),
		creds:     credential.NewStatic(passwords),
		logger:    logger,
		hook:      hook,
	}
}

func (h *harness) seed(t *testing.T, name string, enabled bool) int64 {
	t.Helper()
	id, err := h.store.UpsertAccount(context.Background(), types.AccountSeed{
		Name:         name,
		IMAPHost:     name + ".example.com",
		IMAPPort:     993,
		IMAPUsername: name,
		Enabled:      enabled,
	})
	if err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	return id
}

func (h *harness) account(t *testing.T, id int64) *types.Account {
	t.Helper()
	acc, err := h.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return acc
}

func (h *harness) orchestrator(opts Options) *Orchestrator {
	o := NewOrchestrator(h.store, h.connector, h.creds, opts, h.logger)
	o.now = func() time.Time { return fixedNow }
	return o
}

func (h *harness) manager(opts Options, concurrency int) *Manager {
	m := NewManager(h.store, h.connector, h.creds, opts, concurrency, h.logger)
	m.orchestrator.now = func() time.Time { return fixedNow }
	m.now = func() time.Time { return fixedNow }
	return m
}

func rawMessage(messageID, subject, body string) []byte {
	var lines []string
	if messageID != "" {
		lines = append(lines, "Message-ID: "+messageID)
	}
	lines = append(lines,
		"From: sender@example.com",
		"To: rcpt@example.com",
		"Subject: "+subject,
		"Date: Thu, 14 Mar 2024 09:00:00 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	)
	return []byte(strings.Join(lines, "\r\n"))
}
