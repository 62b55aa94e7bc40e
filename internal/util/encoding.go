package util

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// NormalizeHost canonicalises a certname: Unicode NFC, surrounding
// whitespace trimmed, case folded. Certnames are compared after this
// transformation everywhere a host is looked up.
func NormalizeHost(host string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(host)))
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// ColonHex renders b as upper-case hex octets separated by colons, the
// conventional fingerprint notation.
func ColonHex(b []byte) string {
	var sb strings.Builder
	const digits = "0123456789ABCDEF"
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0x0f])
	}
	return sb.String()
}
