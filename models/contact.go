package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Contact struct {
	gorm.Model

	WaID                   string    `gorm:"uniqueIndex;size:32" json:"wa_id"`
	DisplayName            string    `gorm:"size:128" json:"display_name"`
	LastSeenAt             time.Time `gorm:"index" json:"last_seen_at"`
	NeedsHumanIntervention bool      `gorm:"default:false" json:"needs_human_intervention"`
}

// ContactFlowState is the persisted cursor of a contact inside a flow.
// Exactly one live cursor per contact; switching flows replaces it wholesale.
type ContactFlowState struct {
	gorm.Model

	ContactID  uint              `gorm:"uniqueIndex"`
	FlowName   string            `gorm:"size:64;index"`
	StepName   string            `gorm:"size:64"`
	RetryCount int               `gorm:"default:0"`
	Context    datatypes.JSONMap `gorm:"type:jsonb"`
}

// ProcessedMessage dedupes inbound webhook deliveries on the provider
// message id. Insert conflicts mean the message was already handled.
type ProcessedMessage struct {
	gorm.Model

	ProviderMessageID string `gorm:"uniqueIndex;size:128"`
	WaID              string `gorm:"size:32;index"`
}
