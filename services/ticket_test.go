package services

import (
	"fmt"
	"testing"

	"chatbet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStake(t *testing.T) {
	// Defaults: min 100, max 500000.
	assert.ErrorIs(t, ValidateStake(decimal.Zero), ErrStakeBelowMinimum)
	assert.ErrorIs(t, ValidateStake(d("-50")), ErrStakeBelowMinimum)
	assert.ErrorIs(t, ValidateStake(d("99.99")), ErrStakeBelowMinimum)
	assert.NoError(t, ValidateStake(d("100")))
	assert.NoError(t, ValidateStake(d("500000")))
	assert.ErrorIs(t, ValidateStake(d("500000.01")), ErrStakeAboveMaximum)
}

func TestCombinedOddsExactDecimalProduct(t *testing.T) {
	total := CombinedOdds([]decimal.Decimal{d("2.10"), d("1.50")})
	assert.True(t, total.Equal(d("3.15")), "got %s", total)

	// Empty accumulator multiplies to 1.
	assert.True(t, CombinedOdds(nil).Equal(d("1")))

	three := CombinedOdds([]decimal.Decimal{d("1.33"), d("2.05"), d("3.40")})
	assert.True(t, three.Equal(d("9.27010")), "got %s", three)
}

func TestRejectionReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoSelections, "no_selections"},
		{ErrTooManySelections, "too_many_selections"},
		{ErrStakeBelowMinimum, "stake_below_minimum"},
		{ErrStakeAboveMaximum, "stake_above_maximum"},
		{fmt.Errorf("%w: [4 9]", ErrInvalidOutcomes), "invalid_outcomes"},
		{fmt.Errorf("%w: fixture for outcome 3", ErrMarketClosed), "market_closed"},
		{ErrInvalidOdds, "invalid_odds"},
		{ErrInsufficientFunds, "insufficient_funds"},
		{ErrNoAccount, "no_account"},
		{assert.AnError, "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rejectionReason(tt.err))
	}
}

func TestMissingOrInactive(t *testing.T) {
	active := models.MarketOutcome{IsActive: true}
	active.ID = 1
	inactive := models.MarketOutcome{IsActive: false}
	inactive.ID = 2
	found := []models.MarketOutcome{active, inactive}

	bad := missingOrInactive([]uint{1, 2, 3, 3}, found)
	assert.Equal(t, []uint{2, 3}, bad, "inactive and missing ids reported once each")

	assert.Nil(t, missingOrInactive([]uint{1}, found))
}

func TestClosedForBetting(t *testing.T) {
	assert.False(t, closedForBetting(models.FixtureScheduled))
	assert.False(t, closedForBetting(models.FixtureLive))
	assert.True(t, closedForBetting(models.FixtureFinished))
	assert.True(t, closedForBetting(models.FixtureCancelled))
	assert.True(t, closedForBetting(models.FixturePostponed))
}

func TestTicketConfirmationMessage(t *testing.T) {
	c := &TicketConfirmation{
		Reference:         "a1b2c3d4-0000-0000-0000-000000000000",
		Stake:             d("200"),
		TotalOdds:         d("3.15"),
		PotentialWinnings: d("630.00"),
		NewBalance:        d("800.00"),
		Legs: []LegLine{
			{Label: "Home", Match: "Arsenal vs Chelsea", Odds: d("2.10")},
			{Label: "Over 2.5", Match: "Inter vs Milan", Odds: d("1.50")},
		},
	}
	msg := c.Message()

	require.Contains(t, msg, "a1b2c3d4")
	assert.Contains(t, msg, "Arsenal vs Chelsea")
	assert.Contains(t, msg, "2.10")
	assert.Contains(t, msg, "Potential winnings: 630.00")
	assert.Contains(t, msg, "New balance: 800.00")
}
