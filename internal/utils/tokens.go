package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"
)

// LinkCodeLength is the length of a Telegram link code in hex digits.
const LinkCodeLength = 32

// NewLinkCode returns a random uppercase hex code of LinkCodeLength digits.
func NewLinkCode() (string, error) {
	b := make([]byte, LinkCodeLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// NormalizeLinkCode keeps only the hex digits of s, uppercased. It reports
// false unless exactly LinkCodeLength digits remain.
func NormalizeLinkCode(s string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if unicode.Is(unicode.Hex_Digit, r) {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if len(code) != LinkCodeLength {
		return "", false
	}
	return code, true
}
