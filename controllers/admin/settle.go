package admin

import (
	"chatbet/helpers"
	"chatbet/models"
	"chatbet/queue"
	"chatbet/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler exposes the operational endpoints: manual settlement and catalog
// refresh. All of them sit behind the admin secret middleware.
type Handler struct {
	db         *gorm.DB
	settlement *services.SettlementEngine
	jobs       queue.Queue
	log        zerolog.Logger
}

func NewHandler(db *gorm.DB, settlement *services.SettlementEngine, jobs queue.Queue, log zerolog.Logger) *Handler {
	return &Handler{db: db, settlement: settlement, jobs: jobs, log: log}
}

type SettleFixtureRequest struct {
	ProviderID string `json:"provider_id"`
	HomeScore  *int   `json:"home_score"`
	AwayScore  *int   `json:"away_score"`
	Force      bool   `json:"force"`
}

// SettleFixture grades one fixture on demand, optionally overriding the
// score first. Force settles even without a final score on record.
func (h *Handler) SettleFixture(c *fiber.Ctx) error {
	var req SettleFixtureRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.ProviderID == "" {
		return helpers.JSONError(c, "PROVIDER_ID_REQUIRED")
	}

	var fixture models.Fixture
	if err := h.db.Where("provider_id = ?", req.ProviderID).First(&fixture).Error; err != nil {
		return helpers.JSONError(c, "FIXTURE_NOT_FOUND")
	}

	if req.HomeScore != nil && req.AwayScore != nil {
		err := h.db.Model(&fixture).Updates(map[string]any{
			"home_score": *req.HomeScore,
			"away_score": *req.AwayScore,
			"status":     models.FixtureFinished,
		}).Error
		if err != nil {
			return helpers.JSONError(c, "SCORE_UPDATE_FAILED")
		}
	}

	summary, err := h.settlement.SettleFixture(c.Context(), fixture.ID, req.Force)
	if err != nil {
		h.log.Error().Err(err).Str("provider_id", req.ProviderID).Msg("manual settlement failed")
		return helpers.JSONError(c, "SETTLEMENT_FAILED")
	}

	return helpers.JSONSuccess(c, "Fixture settled", fiber.Map{
		"fixture_id":        summary.FixtureID,
		"already_settled":   summary.AlreadySettled,
		"forced":            summary.Forced,
		"outcomes_resolved": summary.OutcomesResolved,
		"tickets_won":       summary.TicketsWon,
		"tickets_lost":      summary.TicketsLost,
		"tickets_partial":   summary.TicketsPartial,
		"tickets_cancelled": summary.TicketsCancelled,
	})
}

type RefreshLeagueRequest struct {
	League string `json:"league"`
}

// RefreshLeague schedules a catalog refresh on the data queue instead of
// blocking the request on the upstream provider.
func (h *Handler) RefreshLeague(c *fiber.Ctx) error {
	var req RefreshLeagueRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.League == "" {
		return helpers.JSONError(c, "LEAGUE_REQUIRED")
	}

	err := h.jobs.Schedule(c.Context(), queue.QueueData, "refresh_league", map[string]any{
		"league": req.League,
	})
	if err != nil {
		return helpers.JSONError(c, "SCHEDULE_FAILED")
	}
	return helpers.JSONSuccess(c, "Refresh scheduled", fiber.Map{"league": req.League})
}
