package services

import (
	"errors"

	"chatbet/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientFunds is an expected business outcome, not a fault.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
)

// Ledger is the single mutation primitive for wallets. Balance is a cache
// of the COMPLETED transaction sum; both change inside the caller's
// database transaction, with the wallet row locked FOR UPDATE.
type Ledger struct {
	log zerolog.Logger
}

func NewLedger(log zerolog.Logger) *Ledger {
	return &Ledger{log: log}
}

// LockWallet loads a user's wallet under an exclusive row lock. The lock is
// held until the surrounding transaction commits, serializing all
// balance-affecting operations per wallet.
func LockWallet(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds a positive amount to an already-locked wallet and appends the
// transaction record in the same unit of work.
func (l *Ledger) Credit(tx *gorm.DB, wallet *models.Wallet, amount decimal.Decimal, trxType, reference, note string) (*models.WalletTransaction, error) {
	return l.apply(tx, wallet, amount, trxType, reference, note)
}

// Debit removes amount (given positive) from an already-locked wallet. The
// transaction record carries the signed (negative) amount.
func (l *Ledger) Debit(tx *gorm.DB, wallet *models.Wallet, amount decimal.Decimal, trxType, reference, note string) (*models.WalletTransaction, error) {
	if wallet.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}
	return l.apply(tx, wallet, amount.Neg(), trxType, reference, note)
}

func (l *Ledger) apply(tx *gorm.DB, wallet *models.Wallet, signed decimal.Decimal, trxType, reference, note string) (*models.WalletTransaction, error) {
	before := wallet.Balance
	after := before.Add(signed)
	if after.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	wallet.Balance = after
	if err := tx.Model(wallet).Update("balance", wallet.Balance).Error; err != nil {
		return nil, err
	}

	record := models.WalletTransaction{
		WalletID:      wallet.ID,
		TrxType:       trxType,
		Amount:        signed,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        models.TrxStatusCompleted,
		Reference:     reference,
		Note:          note,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	l.log.Debug().Uint("wallet", wallet.ID).Str("type", trxType).
		Str("amount", signed.String()).Str("balance", after.String()).
		Msg("ledger entry")
	return &record, nil
}

// HasTransaction reports whether a COMPLETED transaction of the given type
// and reference already exists. This is the idempotency guard for settlement
// credits.
func HasTransaction(tx *gorm.DB, trxType, reference string) (bool, error) {
	var count int64
	err := tx.Model(&models.WalletTransaction{}).
		Where("trx_type = ? AND reference = ? AND status = ?", trxType, reference, models.TrxStatusCompleted).
		Count(&count).Error
	return count > 0, err
}
