package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TrxTypeDeposit    = "DEPOSIT"
	TrxTypeWithdrawal = "WITHDRAWAL"
	TrxTypeBetStake   = "BET_STAKE"
	TrxTypeBetWin     = "BET_WIN"
	TrxTypeBonus      = "BONUS"
	TrxTypeCommission = "COMMISSION"
)

const (
	TrxStatusCompleted = "COMPLETED"
	TrxStatusPending   = "PENDING"
	TrxStatusFailed    = "FAILED"
)

// Wallet balance is a cache derived from the sum of COMPLETED transaction
// amounts; both are mutated in the same database transaction, always under
// a FOR UPDATE lock on the wallet row.
type Wallet struct {
	gorm.Model

	UserID   uint            `gorm:"uniqueIndex"`
	Balance  decimal.Decimal `gorm:"type:numeric(18,2);default:0" json:"balance"`
	Currency string          `gorm:"size:8;default:'NGN'" json:"currency"`

	Transactions []WalletTransaction `gorm:"foreignKey:WalletID"`
}

// WalletTransaction references are unique per type: the (trx_type, reference)
// index is what makes every credit and debit exactly-once under concurrent
// webhook delivery and retries.
type WalletTransaction struct {
	gorm.Model

	WalletID      uint            `gorm:"index"`
	TrxType       string          `gorm:"size:16;uniqueIndex:idx_wallet_trx_ref"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(18,2)" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(18,2)" json:"balance_after"`
	Status        string          `gorm:"size:16;index;default:'COMPLETED'"`
	Reference     string          `gorm:"size:64;uniqueIndex:idx_wallet_trx_ref"`
	Note          string          `gorm:"size:255"`
}
