package eml

import (
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	// Aliases seen in the wild that the default table does not resolve.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	charset.RegisterEncoding("gb2312", simplifiedchinese.GBK)
	charset.RegisterEncoding("sjis", japanese.ShiftJIS)

	message.CharsetReader = charsetReader
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// charsetReader resolves a declared charset; unknown names fall back to the
// raw bytes, which are treated as UTF-8.
func charsetReader(name string, input io.Reader) (io.Reader, error) {
	if isUTF8(name) {
		return input, nil
	}
	r, err := charset.Reader(name, input)
	if err != nil {
		return input, nil
	}
	return r, nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// decodeHeaderWords decodes RFC 2047 encoded-words, returning s unchanged on failure.
func decodeHeaderWords(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return toValidUTF8(s)
	}
	return toValidUTF8(decoded)
}

func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
