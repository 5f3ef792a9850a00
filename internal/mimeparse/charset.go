package mimeparse

import (
	"io"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func init() {
	// DOS code pages still show up in old mail but are not in the WHATWG index.
	charset.RegisterEncoding("ibm437", charmap.CodePage437)
	charset.RegisterEncoding("cp437", charmap.CodePage437)
	charset.RegisterEncoding("ibm850", charmap.CodePage850)
	charset.RegisterEncoding("cp850", charmap.CodePage850)
	charset.RegisterEncoding("ibm852", charmap.CodePage852)
	charset.RegisterEncoding("cp852", charmap.CodePage852)
}

// bestEffortUTF8 returns b as a string, replacing invalid UTF-8 sequences
// with U+FFFD.
func bestEffortUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string([]rune(string(b)))
	}
	return string(out)
}

// lenientCharsetReader converts known charsets and passes anything else
// through untouched so the caller can repair it byte-wise.
func lenientCharsetReader(label string, input io.Reader) (io.Reader, error) {
	if r, err := charset.Reader(label, input); err == nil {
		return r, nil
	}
	return input, nil
}
