// Package mimeparse decomposes raw RFC 5322 messages into the fields the
// archive stores: decoded display headers, the first plain-text and HTML
// bodies, and attachment metadata.
package mimeparse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"github.com/jhillyerd/enmime"

	apperrors "github.com/brandon/mailarchive/internal/errors"
	"github.com/brandon/mailarchive/pkg/types"
)

// Message is the structured form of one raw message.
type Message struct {
	// MessageID is the trimmed Message-ID header, empty when absent.
	MessageID string
	From      string
	// To is passed through without encoded-word decoding.
	To      string
	Subject string
	// Date is nil when the header is missing or unparsable.
	Date        *time.Time
	Text        string
	HTML        string
	Attachments []types.Attachment
	RawHeaders  string
}

// Parse decodes raw into a Message. Bad charsets, transfer encodings or
// truncated parts never fail the parse. Once the header block has been read
// a Message is always returned, with bodies unset if nothing could be
// decomposed; only input that neither the strict nor the lenient parser can
// read yields a *errors.ParseError.
func Parse(raw []byte) (*Message, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return parseLenient(raw, err)
	}
	header := message.Header{Header: h}

	msg := &Message{
		MessageID:  cleanMessageID(header.Get("Message-Id")),
		From:       DecodeHeader(header.Get("From")),
		To:         unfold(header.Get("To")),
		Subject:    DecodeHeader(header.Get("Subject")),
		RawHeaders: rawHeaderBlock(raw),
	}
	if t, ok := ParseDate(header.Get("Date")); ok {
		msg.Date = &t
	}

	if !isMultipart(&header) {
		if text, ok := decodeText(header, br); ok {
			msg.Text = text
		}
		return msg, nil
	}

	if err := msg.walk(header, br); err != nil && msg.empty() {
		if lenient, lerr := parseLenient(raw, err); lerr == nil {
			return lenient, nil
		}
	}
	return msg, nil
}

func (m *Message) empty() bool {
	return m.Text == "" && m.HTML == "" && len(m.Attachments) == 0
}

// walk visits the leaves of a multipart entity depth-first. Parts are read
// from their raw bodies so that attachments are measured before any charset
// conversion. A multipart without a boundary has no leaves.
func (m *Message) walk(h message.Header, body io.Reader) error {
	_, params, _ := h.ContentType()
	if params["boundary"] == "" {
		return nil
	}

	mr := textproto.NewMultipartReader(body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		ph := message.Header{Header: part.Header}
		if isMultipart(&ph) {
			if err := m.walk(ph, part); err != nil {
				return err
			}
			continue
		}
		m.addLeaf(ph, part)
	}
}

// addLeaf applies the first-wins body policy and records attachments.
func (m *Message) addLeaf(h message.Header, body io.Reader) {
	mediaType, params, err := h.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	if isAttachment(&h) {
		m.addAttachment(h, body, mediaType, params)
		return
	}

	switch mediaType {
	case "text/plain":
		if m.Text == "" {
			if text, ok := decodeText(h, body); ok {
				m.Text = text
			}
		}
	case "text/html":
		if m.HTML == "" {
			if html, ok := decodeText(h, body); ok {
				m.HTML = html
			}
		}
	}
}

func (m *Message) addAttachment(h message.Header, body io.Reader, mediaType string, params map[string]string) {
	_, dispParams, _ := h.ContentDisposition()
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	if filename == "" {
		return
	}

	m.Attachments = append(m.Attachments, types.Attachment{
		Filename:    DecodeHeader(filename),
		ContentType: mediaType,
		Size:        payloadSize(h, body),
		Saved:       false,
	})
}

// payloadSize counts the transfer-decoded bytes of a part. Content-Type is
// dropped first so the declared charset is not applied.
func payloadSize(h message.Header, body io.Reader) int64 {
	bare := h.Copy()
	bare.Del("Content-Type")
	e, _ := message.New(bare, body)
	size, _ := io.Copy(io.Discard, e.Body)
	return size
}

func isMultipart(h *message.Header) bool {
	mediaType, _, err := h.ContentType()
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func isAttachment(h *message.Header) bool {
	raw := h.Get("Content-Disposition")
	if raw == "" {
		return false
	}
	disposition, _, err := h.ContentDisposition()
	if err != nil {
		return strings.Contains(strings.ToLower(raw), "attachment")
	}
	return disposition == "attachment"
}

// decodeText transfer-decodes a text part and converts it from its declared
// charset when that charset is known.
func decodeText(h message.Header, body io.Reader) (string, bool) {
	e, err := message.New(h, body)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return "", false
	}
	return readText(e.Body)
}

// readText reads a part body. A part cut short by a missing boundary or a
// damaged encoding keeps whatever was read before the error.
func readText(r io.Reader) (string, bool) {
	data, err := io.ReadAll(r)
	if err != nil && len(data) == 0 {
		return "", false
	}
	return bestEffortUTF8(data), true
}

// cleanMessageID reduces a Message-ID header to its <id> token. A value
// with spaces and no angle brackets is not a usable identifier.
func cleanMessageID(value string) string {
	value = unfold(value)
	if i := strings.IndexByte(value, '<'); i >= 0 {
		if j := strings.IndexByte(value[i:], '>'); j >= 0 {
			return value[i : i+j+1]
		}
	}
	if strings.ContainsAny(value, " \t") {
		return ""
	}
	return value
}

// rawHeaderBlock returns the header section exactly as it appears in raw.
func rawHeaderBlock(raw []byte) string {
	end := len(raw)
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		end = i
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 && i < end {
		end = i
	}
	return bestEffortUTF8(raw[:end])
}

// lenientParser never synthesizes a plain body from HTML.
var lenientParser = enmime.NewParser(enmime.DisableTextConversion(true))

// parseLenient falls back to enmime, which repairs many malformed headers
// and boundaries that the strict parser rejects.
func parseLenient(raw []byte, cause error) (*Message, error) {
	env, err := lenientParser.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &apperrors.ParseError{Err: fmt.Errorf("%v (lenient: %w)", cause, err)}
	}

	msg := &Message{
		MessageID:  cleanMessageID(env.GetHeader("Message-Id")),
		From:       bestEffortUTF8([]byte(env.GetHeader("From"))),
		Subject:    bestEffortUTF8([]byte(env.GetHeader("Subject"))),
		Text:       bestEffortUTF8([]byte(env.Text)),
		HTML:       bestEffortUTF8([]byte(env.HTML)),
		RawHeaders: rawHeaderBlock(raw),
	}
	if root := env.Root; root != nil {
		msg.To = unfold(root.Header.Get("To"))
		if root.FirstChild == nil && len(env.Attachments) == 0 && len(env.Inlines) == 0 {
			// single part: the whole payload is the plain body
			msg.Text = bestEffortUTF8(root.Content)
			msg.HTML = ""
		}
	}
	if t, ok := ParseDate(env.GetHeader("Date")); ok {
		msg.Date = &t
	}
	for _, part := range env.Attachments {
		if part.FileName == "" {
			continue
		}
		msg.Attachments = append(msg.Attachments, types.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
		})
	}
	return msg, nil
}
