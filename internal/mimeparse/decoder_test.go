package mimeparse

import (
	"strings"
	"testing"
	"time"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParse_SinglePart(t *testing.T) {
	raw := crlf(
		"From: =?UTF-8?Q?Zo=C3=A9?= <zoe@example.com>",
		"To: =?UTF-8?Q?Bob?= <bob@example.com>",
		"Subject: =?UTF-8?B?w6l0w6k=?=",
		"Date: Fri, 15 Mar 2024 10:00:00 +0000",
		"Message-ID: <abc@example.com>",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello there",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.MessageID != "<abc@example.com>" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if msg.From != "Zoé <zoe@example.com>" {
		t.Errorf("From = %q", msg.From)
	}
	if msg.To != "=?UTF-8?Q?Bob?= <bob@example.com>" {
		t.Errorf("To should be passed through raw, got %q", msg.To)
	}
	if msg.Subject != "été" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.Date == nil || !msg.Date.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", msg.Date)
	}
	if msg.Text != "Hello there" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.HTML != "" {
		t.Errorf("HTML should be unset, got %q", msg.HTML)
	}
}

func TestParse_SinglePartHTMLIsTreatedAsText(t *testing.T) {
	raw := crlf(
		"Subject: html only",
		"Content-Type: text/html",
		"",
		"<p>hi</p>",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Text != "<p>hi</p>" || msg.HTML != "" {
		t.Errorf("got Text=%q HTML=%q", msg.Text, msg.HTML)
	}
}

func TestParse_MissingHeaders(t *testing.T) {
	raw := crlf(
		"Subject: no id",
		"Date: yesterday-ish",
		"",
		"body",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.MessageID != "" {
		t.Errorf("expected empty MessageID, got %q", msg.MessageID)
	}
	if msg.Date != nil {
		t.Errorf("expected nil Date, got %v", msg.Date)
	}
}

func TestParse_FirstTextPartWins(t *testing.T) {
	raw := crlf(
		"Message-ID: <two-plain@example.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"first plain",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"second plain",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<b>first html</b>",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<b>second html</b>",
		"--b1--",
		"",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Text != "first plain" {
		t.Errorf("Text = %q, want first part", msg.Text)
	}
	if msg.HTML != "<b>first html</b>" {
		t.Errorf("HTML = %q, want first part", msg.HTML)
	}
}

func TestParse_NestedMultipartWithAttachments(t *testing.T) {
	raw := crlf(
		"Message-ID: <nested@example.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=iso-8859-1",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"caf=E9",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>caf\xc3\xa9</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="=?UTF-8?Q?r=C3=A9sum=C3=A9.pdf?="`,
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8gd29ybGQ=",
		"--outer",
		"Content-Type: text/plain; name=\"notes.txt\"",
		"Content-Disposition: attachment",
		"",
		"not a body",
		"--outer",
		"Content-Type: image/png",
		"Content-Disposition: attachment",
		"",
		"unnamed",
		"--outer--",
		"",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Text != "café" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.HTML != "<p>café</p>" {
		t.Errorf("HTML = %q", msg.HTML)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d: %+v", len(msg.Attachments), msg.Attachments)
	}

	pdf := msg.Attachments[0]
	if pdf.Filename != "résumé.pdf" {
		t.Errorf("Filename = %q", pdf.Filename)
	}
	if pdf.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", pdf.ContentType)
	}
	if pdf.Size != int64(len("hello world")) {
		t.Errorf("Size = %d, want decoded size %d", pdf.Size, len("hello world"))
	}
	if pdf.Saved {
		t.Error("Saved must be false")
	}

	if msg.Attachments[1].Filename != "notes.txt" {
		t.Errorf("expected name parameter fallback, got %q", msg.Attachments[1].Filename)
	}
}

func TestParse_BadCharsetsAreReplacedNotFatal(t *testing.T) {
	raw := crlf(
		"Message-ID: <charset@example.com>",
		`Content-Type: multipart/alternative; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain; charset=x-no-such-charset",
		"",
		"plain \xff text",
		"--b",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<i>\xfe</i>",
		"--b--",
		"",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Text != "plain \uFFFD text" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.HTML != "<i>\uFFFD</i>" {
		t.Errorf("HTML = %q", msg.HTML)
	}
}

func TestParse_RawHeadersKeepOrder(t *testing.T) {
	raw := crlf(
		"X-First: 1",
		"Subject: s",
		"X-Last: 2",
		"",
		"body",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := "X-First: 1\r\nSubject: s\r\nX-Last: 2"
	if msg.RawHeaders != want {
		t.Errorf("RawHeaders = %q, want %q", msg.RawHeaders, want)
	}
}

func TestParse_AttachmentSizeIgnoresCharset(t *testing.T) {
	raw := crlf(
		"Message-ID: <latin1@example.com>",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"see attached",
		"--b",
		`Content-Type: text/plain; charset=iso-8859-1; name="accents.txt"`,
		`Content-Disposition: attachment; filename="accents.txt"`,
		"Content-Transfer-Encoding: base64",
		"",
		"6enp6Q==",
		"--b--",
		"",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %+v", msg.Attachments)
	}
	if got := msg.Attachments[0].Size; got != 4 {
		t.Errorf("Size = %d, want 4 transfer-decoded bytes", got)
	}
}

func TestParse_MissingClosingBoundaryKeepsLastPart(t *testing.T) {
	raw := crlf(
		"Message-ID: <truncated@example.com>",
		`Content-Type: multipart/alternative; boundary="B"`,
		"",
		"--B",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>first</p>",
		"--B",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain tail without closing boundary",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.HTML != "<p>first</p>" {
		t.Errorf("HTML = %q", msg.HTML)
	}
	if strings.TrimSpace(msg.Text) != "plain tail without closing boundary" {
		t.Errorf("Text = %q, want the truncated part", msg.Text)
	}
}

func TestParse_MultipartWithoutBoundaryKeepsHeaders(t *testing.T) {
	raw := crlf(
		"Message-ID: <noboundary@example.com>",
		"Subject: no boundary",
		"Content-Type: multipart/mixed",
		"",
		"some body",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.MessageID != "<noboundary@example.com>" || msg.Subject != "no boundary" {
		t.Errorf("headers not kept: id=%q subject=%q", msg.MessageID, msg.Subject)
	}
	if msg.Text != "" || msg.HTML != "" || len(msg.Attachments) != 0 {
		t.Errorf("expected no bodies, got Text=%q HTML=%q attachments=%d", msg.Text, msg.HTML, len(msg.Attachments))
	}
}

func TestParse_LenientHTMLOnlyHasNoPlainBody(t *testing.T) {
	raw := crlf(
		"Message-ID: <htmlonly@example.com>",
		"malformed header line",
		`Content-Type: multipart/alternative; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Hello <b>world</b></p>",
		"--b--",
		"",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Text != "" {
		t.Errorf("Text = %q, want unset without a text/plain part", msg.Text)
	}
	if !strings.Contains(msg.HTML, "<b>world</b>") {
		t.Errorf("HTML = %q", msg.HTML)
	}
}

func TestParse_LenientSinglePartKeepsMessageID(t *testing.T) {
	raw := crlf(
		"Message-ID: <b@x>",
		"bogus header line",
		"Content-Type: text/html",
		"",
		"<p>Hello <b>world</b></p>",
	)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.MessageID != "<b@x>" {
		t.Errorf("MessageID = %q", msg.MessageID)
	}
	if strings.TrimSpace(msg.Text) != "<p>Hello <b>world</b></p>" || msg.HTML != "" {
		t.Errorf("got Text=%q HTML=%q, want the payload as plain body", msg.Text, msg.HTML)
	}
}

func TestCleanMessageID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<a@example.com>", "<a@example.com>"},
		{"  <a@example.com>  ", "<a@example.com>"},
		{"<a@example.com> trailing junk", "<a@example.com>"},
		{"bare@example.com", "bare@example.com"},
		{"not an id", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanMessageID(tt.in); got != tt.want {
			t.Errorf("cleanMessageID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
