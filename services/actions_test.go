package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutcomeIDs(t *testing.T) {
	assert.Equal(t, []uint{12, 34, 56}, parseOutcomeIDs("12, 34 56"))
	assert.Equal(t, []uint{7}, parseOutcomeIDs("7"))
	assert.Equal(t, []uint{1, 2}, parseOutcomeIDs("1,\n2"))

	// Junk tokens are dropped, not fatal.
	assert.Equal(t, []uint{3}, parseOutcomeIDs("3, abc, -4"))
	assert.Empty(t, parseOutcomeIDs("nothing numeric"))
	assert.Empty(t, parseOutcomeIDs(""))
}

func TestBetFailureMessageMapsSentinels(t *testing.T) {
	assert.Contains(t, betFailureMessage(ErrInsufficientFunds), "Insufficient balance")
	assert.Contains(t, betFailureMessage(ErrStakeBelowMinimum), "below the minimum")
	assert.Contains(t, betFailureMessage(ErrMarketClosed), "closed for betting")
	assert.Contains(t, betFailureMessage(assert.AnError), "Could not place")
}

func TestHashPinIsStableAndOpaque(t *testing.T) {
	a := hashPin("1234")
	b := hashPin("1234")
	c := hashPin("1235")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "1234")
	assert.Len(t, a, 64)
}
