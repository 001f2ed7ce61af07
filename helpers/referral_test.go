package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateReferralCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := GenerateReferralCode()
		assert.Len(t, code, 8)
		assert.True(t, strings.HasPrefix(code, "CB"))
		for _, r := range code[2:] {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = true
	}
	// Ambiguous characters never appear.
	for code := range seen {
		assert.NotContains(t, code[2:], "0")
		assert.NotContains(t, code[2:], "O")
		assert.NotContains(t, code[2:], "1")
		assert.NotContains(t, code[2:], "I")
	}
}
