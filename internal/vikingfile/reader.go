package vikingfile

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jkarvon/vikinglab/internal/errors"
)

// signaturePattern matches the export signature line written by the
// acquisition software, e.g. "Viking v.21.1 - © 2014 Natus".
var signaturePattern = regexp.MustCompile(`Viking v\.[0-9][0-9.]* - © [0-9]{4} Natus`)

// signatureScanLines is how many leading non-blank lines are scanned for the
// signature before giving up.
const signatureScanLines = 5

// ReadFile reads and decodes a Viking export file into normalized text.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New(err).
			Component("vikingfile").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Build()
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes raw export bytes into text with line endings
// normalized to "\n". The encoding is sniffed from the BOM, exports without
// one default to UTF-16LE which is what the Viking software writes.
func DecodeBytes(data []byte) (string, error) {
	var decoded []byte
	var err error

	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		decoded = data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		decoded, _, err = transform.Bytes(decoder, data)
	case looksLikeUTF16LE(data):
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		decoded, _, err = transform.Bytes(decoder, data)
	default:
		decoded = data
	}
	if err != nil {
		return "", errors.New(err).
			Component("vikingfile").
			Category(errors.CategoryFileParsing).
			Context("step", "charset_decode").
			Build()
	}

	text := strings.ReplaceAll(string(decoded), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}

// looksLikeUTF16LE sniffs BOM-less UTF-16LE by the zero high bytes ASCII
// text produces at odd offsets.
func looksLikeUTF16LE(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	limit := min(len(data), 64)
	zeros := 0
	for i := 1; i < limit; i += 2 {
		if data[i] == 0 {
			zeros++
		}
	}
	return zeros > limit/4
}

// CheckSignature reports whether the decoded content carries a recognizable
// Viking export signature within its first non-blank lines.
func CheckSignature(content string) bool {
	seen := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if signaturePattern.MatchString(trimmed) {
			return true
		}
		seen++
		if seen >= signatureScanLines {
			break
		}
	}
	return false
}
