package jobs

import (
	"context"
	"time"

	"chatbet/config"
	"chatbet/models"
	"chatbet/queue"
	tasks "chatbet/task"
)

// StartSchedulers launches the periodic work: catalog refresh, the
// settlement sweep, and table maintenance. All stop when ctx is cancelled.
func StartSchedulers(ctx context.Context, d Deps) {
	go d.runCatalogRefresh(ctx)
	go d.runSettlementSweep(ctx)
	go d.runMaintenance(ctx)
}

func (d Deps) runCatalogRefresh(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	d.scheduleLeagueRefresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scheduleLeagueRefresh(ctx)
		}
	}
}

func (d Deps) scheduleLeagueRefresh(ctx context.Context) {
	for _, league := range config.TrackedLeagues() {
		err := d.Queue.Schedule(ctx, queue.QueueData, "refresh_league", map[string]any{
			"league": league,
		})
		if err != nil {
			d.Log.Error().Err(err).Str("league", league).Msg("failed to schedule league refresh")
		}
	}
}

// runSettlementSweep picks up finished fixtures the admin has not settled
// manually. Settlement itself is idempotent, so double scheduling is safe.
func (d Deps) runSettlementSweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepFinishedFixtures(ctx)
		}
	}
}

func (d Deps) sweepFinishedFixtures(ctx context.Context) {
	var ids []uint
	err := d.DB.Model(&models.Fixture{}).
		Where("status = ? AND settled_at IS NULL AND home_score IS NOT NULL AND away_score IS NOT NULL",
			models.FixtureFinished).
		Limit(100).
		Pluck("id", &ids).Error
	if err != nil {
		d.Log.Error().Err(err).Msg("settlement sweep query failed")
		return
	}

	for _, id := range ids {
		err := d.Queue.Schedule(ctx, queue.QueueData, "settle_fixture", map[string]any{
			"fixture_id": id,
		})
		if err != nil {
			d.Log.Error().Err(err).Uint("fixture", id).Msg("failed to schedule settlement")
		}
	}
}

func (d Deps) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tasks.CleanupStaleFlowStates(d.DB, config.FlowStateTTL(), d.Log)
			tasks.CleanupProcessedMessages(d.DB, d.Log)
		}
	}
}
