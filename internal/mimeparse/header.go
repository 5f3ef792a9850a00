package mimeparse

import (
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
)

var (
	strictWordDecoder  = &mime.WordDecoder{CharsetReader: charset.Reader}
	lenientWordDecoder = &mime.WordDecoder{CharsetReader: lenientCharsetReader}
)

// DecodeHeader turns a raw header value that may contain RFC 2047
// encoded-words into display text. It never fails: words in unknown
// charsets are decoded byte-wise with invalid sequences replaced, and if the
// value still cannot be decoded the raw input is returned unchanged.
func DecodeHeader(raw string) string {
	value := unfold(raw)
	if !strings.Contains(value, "=?") {
		return bestEffortUTF8([]byte(value))
	}

	decoded, err := strictWordDecoder.DecodeHeader(value)
	if err != nil {
		decoded, err = lenientWordDecoder.DecodeHeader(value)
		if err != nil {
			return raw
		}
	}
	return bestEffortUTF8([]byte(decoded))
}

// unfold removes header line folding (CRLF followed by whitespace).
func unfold(value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return strings.TrimSpace(value)
	}
	value = strings.ReplaceAll(value, "\r\n", "")
	value = strings.ReplaceAll(value, "\n", "")
	return strings.TrimSpace(value)
}
