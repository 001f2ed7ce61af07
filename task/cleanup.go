package tasks

import (
	"time"

	"chatbet/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CleanupStaleFlowStates purges cursors of contacts who went quiet. Their
// next message simply starts a fresh flow.
func CleanupStaleFlowStates(db *gorm.DB, ttl time.Duration, log zerolog.Logger) {
	cutoff := time.Now().Add(-ttl)
	result := db.Unscoped().
		Where("updated_at < ?", cutoff).
		Delete(&models.ContactFlowState{})

	if result.Error != nil {
		log.Error().Err(result.Error).Msg("stale flow state cleanup failed")
		return
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("purged", result.RowsAffected).Msg("stale flow states purged")
	}
}

// CleanupProcessedMessages trims the webhook dedup table. Meta stops
// retrying deliveries long before this window closes.
func CleanupProcessedMessages(db *gorm.DB, log zerolog.Logger) {
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	result := db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.ProcessedMessage{})

	if result.Error != nil {
		log.Error().Err(result.Error).Msg("processed message cleanup failed")
		return
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("purged", result.RowsAffected).Msg("old processed messages purged")
	}
}
