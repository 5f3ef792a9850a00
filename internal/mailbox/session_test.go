package mailbox

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/sirupsen/logrus/hooks/test"

	apperrors "github.com/brandon/mailarchive/internal/errors"
)

// Credentials accepted by the go-imap in-memory backend.
const (
	testUser     = "username"
	testPassword = "password"
)

type testServer struct {
	backend *memory.Backend
	port    int
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	be := memory.New()
	srv := server.New(be)
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() { srv.Close() })

	return &testServer{backend: be, port: ln.Addr().(*net.TCPAddr).Port}
}

func (ts *testServer) appendMessage(t *testing.T, date time.Time, raw string) {
	t.Helper()
	user, err := ts.backend.Login(nil, testUser, testPassword)
	if err != nil {
		t.Fatalf("backend login failed: %v", err)
	}
	mbox, err := user.GetMailbox("INBOX")
	if err != nil {
		t.Fatalf("GetMailbox failed: %v", err)
	}
	if err := mbox.CreateMessage(nil, date, bytes.NewBufferString(raw)); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
}

func (ts *testServer) options(password string) Options {
	return Options{
		Host:     "127.0.0.1",
		Port:     ts.port,
		Username: testUser,
		Password: password,
		Timeout:  5 * time.Second,
	}
}

func newTestDialer() *Dialer {
	logger, _ := test.NewNullLogger()
	return &Dialer{logger: logger, plaintext: true}
}

func TestSession_SearchAndFetch(t *testing.T) {
	ts := startTestServer(t)

	old := "Message-ID: <old@example.com>\r\nSubject: old\r\n\r\nold body\r\n"
	recent := "Message-ID: <recent@example.com>\r\nSubject: recent\r\n\r\nrecent body\r\n"
	ts.appendMessage(t, time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC), old)
	ts.appendMessage(t, time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC), recent)

	session, err := newTestDialer().Open(context.Background(), ts.options(testPassword))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	count, err := session.SelectInbox()
	if err != nil {
		t.Fatalf("SelectInbox failed: %v", err)
	}
	// The in-memory backend seeds INBOX with one message of its own.
	if count != 3 {
		t.Fatalf("expected 3 messages, got %d", count)
	}

	all, err := session.Search(WindowFor(nil))
	if err != nil {
		t.Fatalf("Search(ALL) failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 ids for ALL, got %v", all)
	}

	last := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	since, err := session.Search(WindowFor(&last))
	if err != nil {
		t.Fatalf("Search(SINCE) failed: %v", err)
	}
	for _, id := range since {
		if id == 2 {
			t.Errorf("message dated 2020 matched SINCE 15-Mar-2024: %v", since)
		}
	}
	found := false
	for _, id := range since {
		if id == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("message dated 2024-03-20 missing from SINCE result %v", since)
	}

	raw, err := session.FetchRaw(3)
	if err != nil {
		t.Fatalf("FetchRaw failed: %v", err)
	}
	if string(raw) != recent {
		t.Errorf("FetchRaw = %q, want %q", raw, recent)
	}
}

func TestSession_FetchMissingMessage(t *testing.T) {
	ts := startTestServer(t)

	session, err := newTestDialer().Open(context.Background(), ts.options(testPassword))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	if _, err := session.SelectInbox(); err != nil {
		t.Fatalf("SelectInbox failed: %v", err)
	}

	_, err = session.FetchRaw(99)
	var protoErr *apperrors.ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Command != "FETCH" {
		t.Fatalf("expected FETCH ProtocolError, got %v", err)
	}
}

func TestDialer_AuthFailure(t *testing.T) {
	ts := startTestServer(t)

	_, err := newTestDialer().Open(context.Background(), ts.options("wrong"))
	var authErr *apperrors.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Error("error message must not contain the password")
	}
}

func TestDialer_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = newTestDialer().Open(context.Background(), Options{
		Host: "127.0.0.1", Port: port, Username: "u", Password: "p", Timeout: time.Second,
	})
	var connErr *apperrors.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %T: %v", err, err)
	}
}

func TestDialer_GreetingTimeout(t *testing.T) {
	// Accepts connections but never sends a greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	start := time.Now()
	_, err = newTestDialer().Open(context.Background(), Options{
		Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Timeout: 200 * time.Millisecond,
	})
	var connErr *apperrors.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %T: %v", err, err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Open did not honour the timeout")
	}
}

func TestSession_CloseTwice(t *testing.T) {
	ts := startTestServer(t)

	session, err := newTestDialer().Open(context.Background(), ts.options(testPassword))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !session.Connected() {
		t.Fatal("expected an open session to be connected")
	}
	session.Close()
	session.Close()
	if session.Connected() {
		t.Error("expected a closed session to report disconnected")
	}
}
