package helpers

import (
	"math/rand"
	"time"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCode(n int) string {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[src.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// GenerateReferralCode returns a short shareable code. Ambiguous characters
// (0/O, 1/I) are excluded from the alphabet.
func GenerateReferralCode() string {
	return "CB" + randomCode(6)
}
