package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatbet/metrics"
	"chatbet/models"
	"chatbet/queue"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFixtureNotFinished = errors.New("fixture is not finished")
	ErrScoresMissing      = errors.New("fixture has no final score")
)

// SettlementEngine resolves every open ticket touching a finished fixture.
// Safe to re-invoke: an already-settled fixture is a logged no-op and no
// ticket is ever credited twice.
type SettlementEngine struct {
	db       *gorm.DB
	ledger   *Ledger
	referral *ReferralEngine
	jobs     queue.Queue
	locks    sync.Map // fixtureID -> *sync.Mutex
	log      zerolog.Logger
}

func NewSettlementEngine(db *gorm.DB, ledger *Ledger, referral *ReferralEngine, jobs queue.Queue, log zerolog.Logger) *SettlementEngine {
	return &SettlementEngine{db: db, ledger: ledger, referral: referral, jobs: jobs, log: log}
}

type SettlementSummary struct {
	FixtureID        uint
	AlreadySettled   bool
	Forced           bool
	OutcomesResolved int
	TicketsWon       int
	TicketsLost      int
	TicketsPartial   int
	TicketsCancelled int
	TicketsOpen      int
}

type settledTicket struct {
	UserID    uint
	Reference string
	Status    string
	Payout    decimal.Decimal
}

// ResolveOutcome grades one priced proposition against the final score.
// VOID means the proposition cannot be graded (push on the exact line, or
// an unknown market kind); void legs refund rather than win or lose.
func ResolveOutcome(marketKind string, line decimal.Decimal, code string, homeScore, awayScore int) string {
	switch marketKind {
	case models.MarketMatchWinner:
		winner := "DRAW"
		if homeScore > awayScore {
			winner = "HOME"
		} else if awayScore > homeScore {
			winner = "AWAY"
		}
		if code == winner {
			return models.OutcomeWon
		}
		return models.OutcomeLost

	case models.MarketOverUnder:
		total := decimal.NewFromInt(int64(homeScore + awayScore))
		if total.Equal(line) {
			return models.OutcomeVoid // push
		}
		over := total.GreaterThan(line)
		if (code == "OVER" && over) || (code == "UNDER" && !over) {
			return models.OutcomeWon
		}
		return models.OutcomeLost

	case models.MarketBTTS:
		both := homeScore > 0 && awayScore > 0
		if (code == "YES" && both) || (code == "NO" && !both) {
			return models.OutcomeWon
		}
		return models.OutcomeLost

	default:
		return models.OutcomeVoid
	}
}

// DecideTicket applies the void policy: VOID legs drop out of the
// all-legs-must-win rule and contribute odds 1.0. Returns the final ticket
// status and payout; status PLACED means legs on other fixtures are still
// open and the ticket is not decidable yet.
func DecideTicket(stake decimal.Decimal, legs []models.Bet) (string, decimal.Decimal) {
	anyLost, anyPending := false, false
	voidCount := 0
	payoutOdds := one
	for _, leg := range legs {
		switch leg.Status {
		case models.LegLost:
			anyLost = true
		case models.LegPending:
			anyPending = true
		case models.LegVoid:
			voidCount++
		case models.LegWon:
			payoutOdds = payoutOdds.Mul(leg.Odds)
		}
	}

	switch {
	case anyLost:
		return models.TicketLost, decimal.Zero
	case anyPending:
		return models.TicketPlaced, decimal.Zero
	case voidCount == len(legs):
		// Every leg void: cancel and refund the stake.
		return models.TicketCancelled, stake
	case voidCount > 0:
		return models.TicketPartiallyWon, stake.Mul(payoutOdds).Round(2)
	default:
		return models.TicketWon, stake.Mul(payoutOdds).Round(2)
	}
}

// SettleFixture grades outcomes, resolves legs, pays winners, and feeds
// lost tickets to the commission engine. Serialized per fixture.
func (e *SettlementEngine) SettleFixture(ctx context.Context, fixtureID uint, force bool) (*SettlementSummary, error) {
	muAny, _ := e.locks.LoadOrStore(fixtureID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	summary := &SettlementSummary{FixtureID: fixtureID}
	var notify []settledTicket

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fixture models.Fixture
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&fixture, fixtureID).Error; err != nil {
			return err
		}

		if fixture.SettledAt != nil {
			summary.AlreadySettled = true
			e.log.Info().Uint("fixture", fixtureID).Msg("fixture already settled, skipping")
			return nil
		}

		if fixture.Status != models.FixtureFinished || fixture.HomeScore == nil || fixture.AwayScore == nil {
			if !force {
				if fixture.Status != models.FixtureFinished {
					return fmt.Errorf("%w: status %s", ErrFixtureNotFinished, fixture.Status)
				}
				return ErrScoresMissing
			}
			// Operator override: fabricate a 0-0 result.
			zero := 0
			if fixture.HomeScore == nil {
				fixture.HomeScore = &zero
			}
			if fixture.AwayScore == nil {
				fixture.AwayScore = &zero
			}
			fixture.Status = models.FixtureFinished
			summary.Forced = true
			e.log.Warn().Uint("fixture", fixtureID).
				Msg("operator override: forcing settlement with fabricated 0-0 result")
		}

		home, away := *fixture.HomeScore, *fixture.AwayScore

		var markets []models.Market
		if err := tx.Preload("Outcomes").Where("fixture_id = ?", fixture.ID).Find(&markets).Error; err != nil {
			return err
		}

		resultByOutcome := make(map[uint]string)
		for _, market := range markets {
			for _, outcome := range market.Outcomes {
				result := ResolveOutcome(market.Kind, market.Line, outcome.Code, home, away)
				resultByOutcome[outcome.ID] = result
				if err := tx.Model(&models.MarketOutcome{}).
					Where("id = ?", outcome.ID).
					Update("result", result).Error; err != nil {
					return err
				}
				summary.OutcomesResolved++
			}
		}
		if len(resultByOutcome) == 0 {
			now := time.Now()
			fixture.SettledAt = &now
			return tx.Model(&fixture).Updates(map[string]any{
				"status": fixture.Status, "home_score": home, "away_score": away, "settled_at": now,
			}).Error
		}

		outcomeIDs := make([]uint, 0, len(resultByOutcome))
		for id := range resultByOutcome {
			outcomeIDs = append(outcomeIDs, id)
		}

		var pendingLegs []models.Bet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("outcome_id IN ? AND status = ?", outcomeIDs, models.LegPending).
			Find(&pendingLegs).Error; err != nil {
			return err
		}

		ticketIDs := make(map[uint]bool)
		for _, leg := range pendingLegs {
			status := legStatusFor(resultByOutcome[leg.OutcomeID])
			if err := tx.Model(&models.Bet{}).
				Where("id = ? AND status = ?", leg.ID, models.LegPending).
				Update("status", status).Error; err != nil {
				return err
			}
			ticketIDs[leg.TicketID] = true
		}

		for ticketID := range ticketIDs {
			settled, err := e.settleTicket(tx, ticketID)
			if err != nil {
				return err
			}
			if settled == nil {
				summary.TicketsOpen++
				continue
			}
			switch settled.Status {
			case models.TicketWon:
				summary.TicketsWon++
			case models.TicketLost:
				summary.TicketsLost++
			case models.TicketPartiallyWon:
				summary.TicketsPartial++
			case models.TicketCancelled:
				summary.TicketsCancelled++
			}
			notify = append(notify, *settled)
		}

		now := time.Now()
		fixture.SettledAt = &now
		return tx.Model(&fixture).Updates(map[string]any{
			"status": fixture.Status, "home_score": home, "away_score": away, "settled_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	// Notifications go out only after the financial mutation has committed.
	for _, st := range notify {
		metrics.SettlementsTotal.WithLabelValues(st.Status).Inc()
		e.enqueueResultNotification(ctx, st)
	}
	return summary, nil
}

// settleTicket decides one ticket from its (freshly updated) legs. Returns
// nil when legs on other fixtures are still pending.
func (e *SettlementEngine) settleTicket(tx *gorm.DB, ticketID uint) (*settledTicket, error) {
	var ticket models.BetTicket
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ticket, ticketID).Error; err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketPlaced {
		// Already settled by an earlier run, or never debited.
		e.log.Info().Str("reference", ticket.Reference).Str("status", ticket.Status).
			Msg("ticket not in settleable state, skipping")
		return nil, nil
	}

	var legs []models.Bet
	if err := tx.Where("ticket_id = ?", ticket.ID).Find(&legs).Error; err != nil {
		return nil, err
	}

	status, payout := DecideTicket(ticket.TotalStake, legs)
	if status == models.TicketPlaced {
		return nil, nil
	}

	if payout.IsPositive() {
		// Idempotency guard: one BET_WIN per ticket, ever.
		exists, err := HasTransaction(tx, models.TrxTypeBetWin, ticket.Reference)
		if err != nil {
			return nil, err
		}
		if exists {
			e.log.Info().Str("reference", ticket.Reference).
				Msg("win already credited, skipping duplicate payout")
		} else {
			wallet, err := LockWallet(tx, ticket.UserID)
			if err != nil {
				return nil, err
			}
			note := "bet winnings"
			if status == models.TicketCancelled {
				note = "stake refund (all legs void)"
			}
			if _, err := e.ledger.Credit(tx, wallet, payout, models.TrxTypeBetWin, ticket.Reference, note); err != nil {
				return nil, err
			}
		}
	}

	if status == models.TicketLost {
		// Losses fund agent commissions.
		if err := e.referral.AwardAgentCommission(tx, &ticket); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if err := tx.Model(&ticket).
		Where("id = ? AND status = ?", ticket.ID, models.TicketPlaced).
		Updates(map[string]any{"status": status, "settled_at": now}).Error; err != nil {
		return nil, err
	}

	return &settledTicket{
		UserID:    ticket.UserID,
		Reference: ticket.Reference,
		Status:    status,
		Payout:    payout,
	}, nil
}

func (e *SettlementEngine) enqueueResultNotification(ctx context.Context, st settledTicket) {
	if e.jobs == nil {
		return
	}
	err := e.jobs.Schedule(ctx, queue.QueueNotify, "notify_ticket_settled", map[string]any{
		"user_id":   st.UserID,
		"reference": st.Reference,
		"status":    st.Status,
		"payout":    st.Payout.StringFixed(2),
	})
	if err != nil {
		// Notification loss is acceptable; financial state already committed.
		e.log.Error().Err(err).Str("reference", st.Reference).Msg("failed to enqueue settlement notification")
	}
}

func legStatusFor(outcomeResult string) string {
	switch outcomeResult {
	case models.OutcomeWon:
		return models.LegWon
	case models.OutcomeVoid:
		return models.LegVoid
	default:
		return models.LegLost
	}
}
