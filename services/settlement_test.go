package services

import (
	"testing"

	"chatbet/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestResolveOutcomeMatchWinner(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		home, away int
		want       string
	}{
		{"home win graded won", "HOME", 2, 1, models.OutcomeWon},
		{"home win grades away lost", "AWAY", 2, 1, models.OutcomeLost},
		{"home win grades draw lost", "DRAW", 2, 1, models.OutcomeLost},
		{"away win", "AWAY", 0, 3, models.OutcomeWon},
		{"draw", "DRAW", 1, 1, models.OutcomeWon},
		{"goalless draw", "HOME", 0, 0, models.OutcomeLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveOutcome(models.MarketMatchWinner, decimal.Zero, tt.code, tt.home, tt.away)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveOutcomeOverUnder(t *testing.T) {
	line := d("2.5")

	assert.Equal(t, models.OutcomeWon, ResolveOutcome(models.MarketOverUnder, line, "OVER", 2, 1))
	assert.Equal(t, models.OutcomeLost, ResolveOutcome(models.MarketOverUnder, line, "UNDER", 2, 1))
	assert.Equal(t, models.OutcomeWon, ResolveOutcome(models.MarketOverUnder, line, "UNDER", 1, 0))

	// A whole-goal line hit exactly is a push: both sides void.
	whole := d("3")
	assert.Equal(t, models.OutcomeVoid, ResolveOutcome(models.MarketOverUnder, whole, "OVER", 2, 1))
	assert.Equal(t, models.OutcomeVoid, ResolveOutcome(models.MarketOverUnder, whole, "UNDER", 2, 1))
}

func TestResolveOutcomeBTTS(t *testing.T) {
	assert.Equal(t, models.OutcomeWon, ResolveOutcome(models.MarketBTTS, decimal.Zero, "YES", 1, 1))
	assert.Equal(t, models.OutcomeLost, ResolveOutcome(models.MarketBTTS, decimal.Zero, "YES", 1, 0))
	assert.Equal(t, models.OutcomeWon, ResolveOutcome(models.MarketBTTS, decimal.Zero, "NO", 2, 0))
	assert.Equal(t, models.OutcomeLost, ResolveOutcome(models.MarketBTTS, decimal.Zero, "NO", 1, 3))
}

func TestResolveOutcomeUnknownMarketVoids(t *testing.T) {
	assert.Equal(t, models.OutcomeVoid, ResolveOutcome("CORRECT_SCORE", decimal.Zero, "2-1", 2, 1))
}

func leg(status string, odds string) models.Bet {
	return models.Bet{Status: status, Odds: d(odds)}
}

func TestDecideTicket(t *testing.T) {
	stake := d("100")

	tests := []struct {
		name       string
		legs       []models.Bet
		wantStatus string
		wantPayout string
	}{
		{
			name:       "all won pays combined odds",
			legs:       []models.Bet{leg(models.LegWon, "2.10"), leg(models.LegWon, "1.50")},
			wantStatus: models.TicketWon,
			wantPayout: "315.00",
		},
		{
			name:       "one lost loses everything",
			legs:       []models.Bet{leg(models.LegWon, "2.10"), leg(models.LegLost, "1.50")},
			wantStatus: models.TicketLost,
			wantPayout: "0",
		},
		{
			name:       "pending leg keeps the ticket open",
			legs:       []models.Bet{leg(models.LegWon, "2.10"), leg(models.LegPending, "1.50")},
			wantStatus: models.TicketPlaced,
			wantPayout: "0",
		},
		{
			name:       "all void refunds the stake",
			legs:       []models.Bet{leg(models.LegVoid, "2.10"), leg(models.LegVoid, "1.50")},
			wantStatus: models.TicketCancelled,
			wantPayout: "100",
		},
		{
			name:       "void leg drops out of the accumulator",
			legs:       []models.Bet{leg(models.LegWon, "2.10"), leg(models.LegVoid, "1.50")},
			wantStatus: models.TicketPartiallyWon,
			wantPayout: "210.00",
		},
		{
			name:       "void plus lost still loses",
			legs:       []models.Bet{leg(models.LegVoid, "2.10"), leg(models.LegLost, "1.50")},
			wantStatus: models.TicketLost,
			wantPayout: "0",
		},
		{
			name:       "lost beats pending",
			legs:       []models.Bet{leg(models.LegLost, "2.10"), leg(models.LegPending, "1.50")},
			wantStatus: models.TicketLost,
			wantPayout: "0",
		},
		{
			name:       "single void leg cancels a single",
			legs:       []models.Bet{leg(models.LegVoid, "3.00")},
			wantStatus: models.TicketCancelled,
			wantPayout: "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payout := DecideTicket(stake, tt.legs)
			assert.Equal(t, tt.wantStatus, status)
			assert.True(t, payout.Equal(d(tt.wantPayout)),
				"payout = %s, want %s", payout, tt.wantPayout)
		})
	}
}

func TestLegStatusFor(t *testing.T) {
	assert.Equal(t, models.LegWon, legStatusFor(models.OutcomeWon))
	assert.Equal(t, models.LegVoid, legStatusFor(models.OutcomeVoid))
	assert.Equal(t, models.LegLost, legStatusFor(models.OutcomeLost))
	assert.Equal(t, models.LegLost, legStatusFor(models.OutcomeUnset))
}
