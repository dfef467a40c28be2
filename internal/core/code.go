package core

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet excludes 0/O/1/I to keep codes easy to read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// MinCodeLength is the shortest join code accepted on update.
	MinCodeLength = 4
	// DefaultCodeLength is used when generating a fresh join code.
	DefaultCodeLength = 6
)

// GenerateCode returns a random join code of n characters. Uniqueness among
// budgets is checked by the caller with a query before the write; it is
// best-effort, not transactional.
func GenerateCode(n int) string {
	if n < MinCodeLength {
		n = DefaultCodeLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; a zeroed buffer
		// still maps into the alphabet.
		for i := range buf {
			buf[i] = 0
		}
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// NormalizeCode uppercases a user-supplied code and strips all whitespace.
func NormalizeCode(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
