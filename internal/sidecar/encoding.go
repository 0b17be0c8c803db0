package sidecar

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

const (
	encodingUTF8     = "utf-8"
	encodingUTF8BOM  = "utf-8-bom"
	encodingUTF16    = "utf-16"
	encodingGB18030  = "gb18030"
	encodingReplaced = "utf-8-replaced"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText converts raw bytes to a string and names the encoding used.
// Order: BOM, plain UTF-8, GB18030, then UTF-8 with U+FFFD replacement.
func decodeText(raw []byte) (string, string) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return toValid(raw[len(bomUTF8):]), encodingUTF8BOM
	case bytes.HasPrefix(raw, bomUTF16LE):
		if out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw); err == nil {
			return string(out), encodingUTF16
		}
	case bytes.HasPrefix(raw, bomUTF16BE):
		if out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw); err == nil {
			return string(out), encodingUTF16
		}
	}

	if utf8.Valid(raw) {
		return string(raw), encodingUTF8
	}

	if out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw); err == nil && !bytes.ContainsRune(out, utf8.RuneError) {
		return string(out), encodingGB18030
	}

	return toValid(raw), encodingReplaced
}

func toValid(b []byte) string {
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
