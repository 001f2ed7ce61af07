package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReferralProfile struct {
	gorm.Model

	UserID       uint   `gorm:"uniqueIndex"`
	ReferralCode string `gorm:"uniqueIndex;size:12" json:"referral_code"`
	ReferredByID *uint  `gorm:"index" json:"referred_by_id"`

	// Flipped once, inside the same transaction as the bonus credits.
	FirstDepositBonusApplied bool `gorm:"default:false"`
}

// AgentEarning is append-only; the unique (agent, ticket) pair is the
// idempotency mechanism for commission grants, not a lock.
type AgentEarning struct {
	gorm.Model

	AgentUserID      uint            `gorm:"index;index:idx_agent_ticket,unique"`
	BetTicketID      uint            `gorm:"index:idx_agent_ticket,unique"`
	SourceStake      decimal.Decimal `gorm:"type:numeric(18,2)" json:"source_stake"`
	Percentage       decimal.Decimal `gorm:"type:numeric(5,2)" json:"percentage"`
	CommissionAmount decimal.Decimal `gorm:"type:numeric(18,2)" json:"commission_amount"`
}
