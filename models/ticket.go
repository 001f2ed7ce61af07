package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TicketPending      = "PENDING"
	TicketPlaced       = "PLACED"
	TicketWon          = "WON"
	TicketLost         = "LOST"
	TicketCancelled    = "CANCELLED"
	TicketPartiallyWon = "PARTIALLY_WON"
)

const (
	BetTypeSingle   = "SINGLE"
	BetTypeMultiple = "MULTIPLE"
)

const (
	LegPending = "PENDING"
	LegWon     = "WON"
	LegLost    = "LOST"
	LegVoid    = "VOID"
)

// BetTicket is one wager. Total stake is recorded in full on every leg:
// odds multiply across legs, the stake is charged once per ticket.
type BetTicket struct {
	gorm.Model

	UserID            uint            `gorm:"index"`
	Reference         string          `gorm:"uniqueIndex;size:36" json:"reference"`
	Status            string          `gorm:"size:16;index;default:'PENDING'" json:"status"`
	BetType           string          `gorm:"size:8" json:"bet_type"`
	TotalStake        decimal.Decimal `gorm:"type:numeric(18,2)" json:"total_stake"`
	TotalOdds         decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_odds"`
	PotentialWinnings decimal.Decimal `gorm:"type:numeric(18,2)" json:"potential_winnings"`
	SettledAt         *time.Time      `json:"settled_at"`

	Bets []Bet `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"bets"`
}

// Bet is one leg of a ticket. Odds are snapshotted at placement and never
// re-read from the catalog.
type Bet struct {
	gorm.Model

	TicketID          uint            `gorm:"index"`
	OutcomeID         uint            `gorm:"index"`
	Odds              decimal.Decimal `gorm:"type:numeric(8,2)" json:"odds"`
	Stake             decimal.Decimal `gorm:"type:numeric(18,2)" json:"stake"`
	PotentialWinnings decimal.Decimal `gorm:"type:numeric(18,2)" json:"potential_winnings"`
	Status            string          `gorm:"size:8;index;default:'PENDING'" json:"status"`

	Outcome MarketOutcome `gorm:"foreignKey:OutcomeID" json:"outcome"`
}
