package services

import (
	"context"
	"errors"
	"fmt"

	"chatbet/config"
	"chatbet/helpers"
	"chatbet/metrics"
	"chatbet/models"
	"chatbet/queue"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

// ReferralEngine grants agent commissions and first-deposit bonuses.
// Idempotency comes from data, not locks: the unique (agent, ticket) pair
// on agent_earnings and the one-way flag on the referral profile.
type ReferralEngine struct {
	db     *gorm.DB
	ledger *Ledger
	jobs   queue.Queue
	log    zerolog.Logger
}

func NewReferralEngine(db *gorm.DB, ledger *Ledger, jobs queue.Queue, log zerolog.Logger) *ReferralEngine {
	return &ReferralEngine{db: db, ledger: ledger, jobs: jobs, log: log}
}

// EnsureProfile creates the user's referral profile on first touch,
// optionally linking a referrer resolved from their short code.
func (e *ReferralEngine) EnsureProfile(userID uint, referralCode string) (*models.ReferralProfile, error) {
	var profile models.ReferralProfile
	err := e.db.Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	profile = models.ReferralProfile{
		UserID:       userID,
		ReferralCode: helpers.GenerateReferralCode(),
	}
	if referralCode != "" {
		var referrer models.ReferralProfile
		if err := e.db.Where("referral_code = ?", referralCode).First(&referrer).Error; err == nil {
			if referrer.UserID != userID {
				profile.ReferredByID = &referrer.UserID
			}
		}
		// An unknown code is ignored: the signup proceeds unreferred.
	}
	if err := e.db.Create(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// AwardAgentCommission grants the referrer a cut of a LOST ticket's stake.
// Runs inside the caller's settlement transaction. Idempotent per ticket.
func (e *ReferralEngine) AwardAgentCommission(tx *gorm.DB, ticket *models.BetTicket) error {
	pct := config.AgentCommissionPercent()
	if !pct.IsPositive() {
		return nil
	}
	if ticket.UserID == 0 {
		return nil
	}

	var profile models.ReferralProfile
	err := tx.Where("user_id = ?", ticket.UserID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && profile.ReferredByID == nil) {
		return nil // not referred, nothing to grant
	}
	if err != nil {
		return err
	}

	var existing int64
	if err := tx.Model(&models.AgentEarning{}).
		Where("agent_user_id = ? AND bet_ticket_id = ?", *profile.ReferredByID, ticket.ID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		e.log.Info().Uint("ticket", ticket.ID).Uint("agent", *profile.ReferredByID).
			Msg("commission already granted, skipping")
		return nil
	}

	commission := ticket.TotalStake.Mul(pct).Div(hundred).Round(2)
	earning := models.AgentEarning{
		AgentUserID:      *profile.ReferredByID,
		BetTicketID:      ticket.ID,
		SourceStake:      ticket.TotalStake,
		Percentage:       pct,
		CommissionAmount: commission,
	}
	if err := tx.Create(&earning).Error; err != nil {
		return err
	}

	wallet, err := LockWallet(tx, *profile.ReferredByID)
	if err != nil {
		return err
	}
	ref := fmt.Sprintf("commission:%s", ticket.Reference)
	if _, err := e.ledger.Credit(tx, wallet, commission, models.TrxTypeCommission, ref, "agent commission on lost ticket"); err != nil {
		return err
	}

	metrics.CommissionsGrantedTotal.Inc()
	e.log.Info().Uint("agent", *profile.ReferredByID).Str("ticket", ticket.Reference).
		Str("amount", commission.String()).Msg("agent commission granted")
	return nil
}

// firstCompletedDeposit picks the deposit a referral bonus is based on: the
// earliest COMPLETED deposit by id. Nil when none has completed yet.
func firstCompletedDeposit(transactions []models.WalletTransaction) *models.WalletTransaction {
	var first *models.WalletTransaction
	for i := range transactions {
		trx := &transactions[i]
		if trx.TrxType != models.TrxTypeDeposit || trx.Status != models.TrxStatusCompleted {
			continue
		}
		if first == nil || trx.ID < first.ID {
			first = trx
		}
	}
	return first
}

// ApplyFirstDepositBonus credits both sides of a referral once, based on the
// user's earliest COMPLETED deposit. The one-way flag is the applied guard,
// flipped in the same transaction as the credits: evaluating late, after a
// second deposit already landed, still grants the bonus against the first.
func (e *ReferralEngine) ApplyFirstDepositBonus(ctx context.Context, userID uint) error {
	pct := config.FirstDepositBonusPercent()
	if !pct.IsPositive() {
		return nil
	}

	var notifyAmount decimal.Decimal
	var referrerID uint
	applied := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.ReferralProfile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if profile.ReferredByID == nil {
			return nil
		}
		if profile.FirstDepositBonusApplied {
			e.log.Info().Uint("user", userID).Msg("first deposit bonus already applied, skipping")
			return nil
		}

		var wallet models.Wallet
		if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return err
		}
		var deposits []models.WalletTransaction
		if err := tx.Where("wallet_id = ? AND trx_type = ?", wallet.ID, models.TrxTypeDeposit).
			Order("id ASC").Find(&deposits).Error; err != nil {
			return err
		}
		first := firstCompletedDeposit(deposits)
		if first == nil {
			return nil // nothing completed yet
		}

		bonus := first.Amount.Mul(pct).Div(hundred).Round(2)
		if !bonus.IsPositive() {
			return nil
		}

		userWallet, err := LockWallet(tx, userID)
		if err != nil {
			return err
		}
		userRef := fmt.Sprintf("first-deposit-bonus:%d", first.ID)
		if _, err := e.ledger.Credit(tx, userWallet, bonus, models.TrxTypeBonus, userRef, "first deposit bonus"); err != nil {
			return err
		}

		referrerWallet, err := LockWallet(tx, *profile.ReferredByID)
		if err != nil {
			return err
		}
		referrerRef := fmt.Sprintf("first-deposit-referrer-bonus:%d", first.ID)
		if _, err := e.ledger.Credit(tx, referrerWallet, bonus, models.TrxTypeBonus, referrerRef, "referral first deposit bonus"); err != nil {
			return err
		}

		if err := tx.Model(&profile).Update("first_deposit_bonus_applied", true).Error; err != nil {
			return err
		}

		applied = true
		notifyAmount = bonus
		referrerID = *profile.ReferredByID
		return nil
	})
	if err != nil || !applied {
		return err
	}

	// Fire-and-forget, strictly after commit.
	if e.jobs != nil {
		_ = e.jobs.Schedule(ctx, queue.QueueNotify, "notify_bonus_applied", map[string]any{
			"user_id":     userID,
			"referrer_id": referrerID,
			"amount":      notifyAmount.StringFixed(2),
		})
	}
	e.log.Info().Uint("user", userID).Uint("referrer", referrerID).
		Str("amount", notifyAmount.String()).Msg("first deposit bonus applied")
	return nil
}
