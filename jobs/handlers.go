package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"chatbet/flow"
	"chatbet/models"
	"chatbet/queue"
	"chatbet/services"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Deps bundles everything the background tasks touch.
type Deps struct {
	DB         *gorm.DB
	Queue      queue.Queue
	Sports     *services.SportsDataService
	Settlement *services.SettlementEngine
	Sender     *services.WhatsAppSender
	Log        zerolog.Logger
}

// RegisterHandlers binds every task name the system schedules.
func RegisterHandlers(d Deps) {
	d.Queue.RegisterHandler("refresh_league", d.refreshLeague)
	d.Queue.RegisterHandler("settle_fixture", d.settleFixture)
	d.Queue.RegisterHandler("notify_ticket_settled", d.notifyTicketSettled)
	d.Queue.RegisterHandler("notify_bonus_applied", d.notifyBonusApplied)
}

func (d Deps) refreshLeague(ctx context.Context, payload []byte) error {
	var req struct {
		League string `json:"league"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Permanent(err)
	}
	if req.League == "" {
		return queue.Permanent(fmt.Errorf("refresh_league: empty league"))
	}
	return d.Sports.RefreshLeague(ctx, req.League)
}

func (d Deps) settleFixture(ctx context.Context, payload []byte) error {
	var req struct {
		FixtureID uint `json:"fixture_id"`
		Force     bool `json:"force"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Permanent(err)
	}
	summary, err := d.Settlement.SettleFixture(ctx, req.FixtureID, req.Force)
	if err != nil {
		return err
	}
	if !summary.AlreadySettled {
		d.Log.Info().Uint("fixture", summary.FixtureID).
			Int("won", summary.TicketsWon).Int("lost", summary.TicketsLost).
			Msg("fixture settled by sweep")
	}
	return nil
}

func (d Deps) notifyTicketSettled(ctx context.Context, payload []byte) error {
	var req struct {
		UserID    uint   `json:"user_id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Payout    string `json:"payout"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Permanent(err)
	}

	var text string
	switch req.Status {
	case models.TicketWon:
		text = fmt.Sprintf("🎉 Your ticket %s WON! %s has been credited to your wallet.", short(req.Reference), req.Payout)
	case models.TicketPartiallyWon:
		text = fmt.Sprintf("🎉 Your ticket %s partially won. %s has been credited to your wallet.", short(req.Reference), req.Payout)
	case models.TicketCancelled:
		text = fmt.Sprintf("↩️ Your ticket %s was voided and the stake of %s refunded.", short(req.Reference), req.Payout)
	case models.TicketLost:
		text = fmt.Sprintf("😞 Your ticket %s did not win this time. Better luck on the next one!", short(req.Reference))
	default:
		return queue.Permanent(fmt.Errorf("notify_ticket_settled: unknown status %q", req.Status))
	}

	return d.sendToUser(ctx, req.UserID, text)
}

func (d Deps) notifyBonusApplied(ctx context.Context, payload []byte) error {
	var req struct {
		UserID     uint   `json:"user_id"`
		ReferrerID uint   `json:"referrer_id"`
		Amount     string `json:"amount"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return queue.Permanent(err)
	}

	if err := d.sendToUser(ctx, req.UserID,
		fmt.Sprintf("🎁 First deposit bonus of %s credited to your wallet!", req.Amount)); err != nil {
		return err
	}
	return d.sendToUser(ctx, req.ReferrerID,
		fmt.Sprintf("🎁 Your referral just made their first deposit. %s credited to your wallet!", req.Amount))
}

func (d Deps) sendToUser(ctx context.Context, userID uint, text string) error {
	var user models.User
	if err := d.DB.First(&user, userID).Error; err != nil {
		return queue.Permanent(fmt.Errorf("notify: user %d: %w", userID, err))
	}
	_, err := d.Sender.Send(ctx, user.Phone, flow.TextMessage(text))
	return err
}

func short(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
