package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatbet/config"
	"chatbet/metrics"
	"chatbet/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNoSelections      = errors.New("no outcome selections")
	ErrTooManySelections = errors.New("too many selections")
	ErrStakeBelowMinimum = errors.New("stake below minimum")
	ErrStakeAboveMaximum = errors.New("stake above maximum")
	ErrInvalidOutcomes   = errors.New("invalid or inactive outcome ids")
	ErrMarketClosed      = errors.New("market closed for betting")
	ErrInvalidOdds       = errors.New("outcome has invalid odds")
	ErrNoAccount         = errors.New("no linked betting account")
)

var one = decimal.NewFromInt(1)

// TicketEngine validates selections against the catalog and the ledger,
// creates the ticket and its legs, and debits the wallet, all inside one
// database transaction with the wallet row locked for its full duration.
type TicketEngine struct {
	db     *gorm.DB
	ledger *Ledger
	log    zerolog.Logger
}

func NewTicketEngine(db *gorm.DB, ledger *Ledger, log zerolog.Logger) *TicketEngine {
	return &TicketEngine{db: db, ledger: ledger, log: log}
}

type LegLine struct {
	Label string
	Match string
	Odds  decimal.Decimal
}

type TicketConfirmation struct {
	Reference         string
	BetType           string
	Stake             decimal.Decimal
	TotalOdds         decimal.Decimal
	PotentialWinnings decimal.Decimal
	NewBalance        decimal.Decimal
	Legs              []LegLine
}

// Message renders the human-readable confirmation sent back over WhatsApp.
func (c *TicketConfirmation) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎟️ Ticket %s placed!\n", c.Reference[:8])
	for _, leg := range c.Legs {
		fmt.Fprintf(&b, "• %s: %s @ %s\n", leg.Match, leg.Label, leg.Odds.StringFixed(2))
	}
	fmt.Fprintf(&b, "Stake: %s\nTotal odds: %s\nPotential winnings: %s\nNew balance: %s",
		c.Stake.StringFixed(2), c.TotalOdds.StringFixed(2),
		c.PotentialWinnings.StringFixed(2), c.NewBalance.StringFixed(2))
	return b.String()
}

// ValidateStake checks the configured bounds. Pure; no storage touched.
func ValidateStake(stake decimal.Decimal) error {
	if !stake.IsPositive() {
		return ErrStakeBelowMinimum
	}
	if stake.LessThan(config.MinStake()) {
		return ErrStakeBelowMinimum
	}
	if stake.GreaterThan(config.MaxStake()) {
		return ErrStakeAboveMaximum
	}
	return nil
}

// CombinedOdds multiplies leg odds exactly; no floats anywhere near money.
func CombinedOdds(odds []decimal.Decimal) decimal.Decimal {
	total := one
	for _, o := range odds {
		total = total.Mul(o)
	}
	return total
}

// SubmitTicket places a wager. Every failure path leaves zero rows created
// and the wallet untouched.
func (e *TicketEngine) SubmitTicket(ctx context.Context, userID uint, outcomeIDs []uint, stake decimal.Decimal) (*TicketConfirmation, error) {
	if len(outcomeIDs) == 0 {
		return nil, e.reject(ErrNoSelections)
	}
	if len(outcomeIDs) > config.MaxSelections() {
		return nil, e.reject(ErrTooManySelections)
	}
	if err := ValidateStake(stake); err != nil {
		return nil, e.reject(err)
	}

	var confirmation *TicketConfirmation
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := LockWallet(tx, userID)
		if errors.Is(err, ErrWalletNotFound) {
			return ErrNoAccount
		}
		if err != nil {
			return err
		}

		// One query for all selections; the catalog read happens inside
		// the same transaction as the wallet lock so settlement cannot
		// invalidate odds underneath us.
		var outcomes []models.MarketOutcome
		if err := tx.Preload("Market").Where("id IN ?", outcomeIDs).Find(&outcomes).Error; err != nil {
			return err
		}

		if bad := missingOrInactive(outcomeIDs, outcomes); len(bad) > 0 {
			return fmt.Errorf("%w: %v", ErrInvalidOutcomes, bad)
		}

		fixtureIDs := make([]uint, 0, len(outcomes))
		for _, o := range outcomes {
			fixtureIDs = append(fixtureIDs, o.Market.FixtureID)
		}
		var fixtures []models.Fixture
		if err := tx.Where("id IN ?", fixtureIDs).Find(&fixtures).Error; err != nil {
			return err
		}
		fixtureByID := make(map[uint]*models.Fixture, len(fixtures))
		for i := range fixtures {
			fixtureByID[fixtures[i].ID] = &fixtures[i]
		}

		legOdds := make([]decimal.Decimal, 0, len(outcomes))
		legs := make([]models.Bet, 0, len(outcomes))
		lines := make([]LegLine, 0, len(outcomes))
		for _, o := range outcomes {
			fx := fixtureByID[o.Market.FixtureID]
			if fx == nil || closedForBetting(fx.Status) {
				return fmt.Errorf("%w: fixture for outcome %d", ErrMarketClosed, o.ID)
			}
			if !o.Odds.GreaterThan(one) {
				return fmt.Errorf("%w: outcome %d at %s", ErrInvalidOdds, o.ID, o.Odds)
			}
			legOdds = append(legOdds, o.Odds)
			legs = append(legs, models.Bet{
				OutcomeID:         o.ID,
				Odds:              o.Odds,
				Stake:             stake,
				PotentialWinnings: stake.Mul(o.Odds).Round(2),
				Status:            models.LegPending,
			})
			lines = append(lines, LegLine{
				Label: o.Label,
				Match: fx.HomeTeam + " vs " + fx.AwayTeam,
				Odds:  o.Odds,
			})
		}

		totalOdds := CombinedOdds(legOdds)
		potential := stake.Mul(totalOdds).Round(2)

		betType := models.BetTypeMultiple
		if len(legs) == 1 {
			betType = models.BetTypeSingle
		}

		ticket := models.BetTicket{
			UserID:            userID,
			Reference:         uuid.NewString(),
			Status:            models.TicketPending,
			BetType:           betType,
			TotalStake:        stake,
			TotalOdds:         totalOdds.Round(2),
			PotentialWinnings: potential,
			Bets:              legs,
		}
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}

		if _, err := e.ledger.Debit(tx, wallet, stake, models.TrxTypeBetStake, ticket.Reference, "bet stake"); err != nil {
			return err // ErrInsufficientFunds rolls the ticket rows back
		}

		if err := tx.Model(&ticket).Update("status", models.TicketPlaced).Error; err != nil {
			return err
		}

		confirmation = &TicketConfirmation{
			Reference:         ticket.Reference,
			BetType:           betType,
			Stake:             stake,
			TotalOdds:         ticket.TotalOdds,
			PotentialWinnings: potential,
			NewBalance:        wallet.Balance,
			Legs:              lines,
		}
		return nil
	})
	if err != nil {
		return nil, e.reject(err)
	}

	metrics.TicketsPlacedTotal.Inc()
	e.log.Info().Str("reference", confirmation.Reference).Uint("user", userID).
		Str("stake", stake.String()).Str("potential", confirmation.PotentialWinnings.String()).
		Msg("ticket placed")
	return confirmation, nil
}

func (e *TicketEngine) reject(err error) error {
	metrics.TicketRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNoSelections):
		return "no_selections"
	case errors.Is(err, ErrTooManySelections):
		return "too_many_selections"
	case errors.Is(err, ErrStakeBelowMinimum):
		return "stake_below_minimum"
	case errors.Is(err, ErrStakeAboveMaximum):
		return "stake_above_maximum"
	case errors.Is(err, ErrInvalidOutcomes):
		return "invalid_outcomes"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ErrInvalidOdds):
		return "invalid_odds"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNoAccount):
		return "no_account"
	default:
		return "internal"
	}
}

func closedForBetting(status string) bool {
	switch status {
	case models.FixtureFinished, models.FixtureCancelled, models.FixturePostponed:
		return true
	default:
		return false
	}
}

// missingOrInactive reports every requested id that did not resolve to an
// active outcome, so the user sees exactly which selections were bad.
func missingOrInactive(requested []uint, found []models.MarketOutcome) []uint {
	active := make(map[uint]bool, len(found))
	for _, o := range found {
		if o.IsActive {
			active[o.ID] = true
		}
	}
	var bad []uint
	seen := make(map[uint]bool, len(requested))
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !active[id] {
			bad = append(bad, id)
		}
	}
	return bad
}
