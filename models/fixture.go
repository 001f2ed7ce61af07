package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	FixtureScheduled = "SCHEDULED"
	FixtureLive      = "LIVE"
	FixtureFinished  = "FINISHED"
	FixtureCancelled = "CANCELLED"
	FixturePostponed = "POSTPONED"
)

const (
	MarketMatchWinner = "1X2"
	MarketOverUnder   = "OVER_UNDER"
	MarketBTTS        = "BTTS"
)

const (
	OutcomeUnset = "UNSET"
	OutcomeWon   = "WON"
	OutcomeLost  = "LOST"
	OutcomeVoid  = "VOID"
)

type Fixture struct {
	gorm.Model

	ProviderID string     `gorm:"uniqueIndex;size:64" json:"provider_id"`
	League     string     `gorm:"size:64;index" json:"league"`
	HomeTeam   string     `gorm:"size:64" json:"home_team"`
	AwayTeam   string     `gorm:"size:64" json:"away_team"`
	KickoffAt  time.Time  `gorm:"index" json:"kickoff_at"`
	Status     string     `gorm:"size:16;index;default:'SCHEDULED'" json:"status"`
	HomeScore  *int       `json:"home_score"`
	AwayScore  *int       `json:"away_score"`
	SettledAt  *time.Time `json:"settled_at"`

	Markets []Market `gorm:"foreignKey:FixtureID;constraint:OnDelete:CASCADE"`
}

type Market struct {
	gorm.Model

	FixtureID uint            `gorm:"index"`
	Kind      string          `gorm:"size:16" json:"kind"`
	Line      decimal.Decimal `gorm:"type:numeric(6,2);default:0" json:"line"`

	Outcomes []MarketOutcome `gorm:"foreignKey:MarketID;constraint:OnDelete:CASCADE"`
}

// MarketOutcome is one priced proposition. Outcomes dropped by the upstream
// feed are marked inactive, never deleted: existing bet legs reference them.
type MarketOutcome struct {
	gorm.Model

	MarketID   uint            `gorm:"index"`
	Code       string          `gorm:"size:16" json:"code"`
	Label      string          `gorm:"size:64" json:"label"`
	Odds       decimal.Decimal `gorm:"type:numeric(8,2)" json:"odds"`
	IsActive   bool            `gorm:"default:true;index" json:"is_active"`
	Result     string          `gorm:"size:8;default:'UNSET'" json:"result"`
	ProviderID string          `gorm:"size:64;index" json:"provider_id"`

	Market Market `json:"-"`
}
