package payment

import (
	"errors"

	"chatbet/flow"
	"chatbet/helpers"
	"chatbet/models"
	"chatbet/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler terminates the payment collaborator's completion callback. The
// callback may be delivered more than once; the reference makes the credit
// idempotent.
type Handler struct {
	db       *gorm.DB
	ledger   *services.Ledger
	referral *services.ReferralEngine
	engine   *flow.Engine
	sender   *services.WhatsAppSender
	log      zerolog.Logger
}

func NewHandler(db *gorm.DB, ledger *services.Ledger, referral *services.ReferralEngine,
	engine *flow.Engine, sender *services.WhatsAppSender, log zerolog.Logger) *Handler {
	return &Handler{db: db, ledger: ledger, referral: referral, engine: engine, sender: sender, log: log}
}

type DepositCompletedRequest struct {
	Phone     string `json:"phone"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// DepositCompleted credits the wallet, applies any first-deposit bonus, and
// forwards a payment event so a flow waiting on it can progress.
func (h *Handler) DepositCompleted(c *fiber.Ctx) error {
	var req DepositCompletedRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.Phone == "" || req.Reference == "" {
		return helpers.JSONError(c, "PHONE_AND_REFERENCE_REQUIRED")
	}
	if req.Status != "COMPLETED" {
		return helpers.JSONSuccess(c, "Ignored non-completed status", nil)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return helpers.JSONError(c, "INVALID_AMOUNT")
	}

	var user models.User
	if err := h.db.Where("phone = ?", req.Phone).First(&user).Error; err != nil {
		return helpers.JSONError(c, "USER_NOT_FOUND")
	}

	duplicate := false
	err = h.db.Transaction(func(tx *gorm.DB) error {
		wallet, err := services.LockWallet(tx, user.ID)
		if err != nil {
			return err
		}
		// The duplicate check must run under the wallet lock: concurrent
		// deliveries of the same callback serialize here, so the loser sees
		// the winner's committed row. The unique (trx_type, reference) index
		// backstops it at the schema level.
		exists, err := services.HasTransaction(tx, models.TrxTypeDeposit, req.Reference)
		if err != nil {
			return err
		}
		if exists {
			duplicate = true
			return nil
		}
		_, err = h.ledger.Credit(tx, wallet, amount, models.TrxTypeDeposit, req.Reference, "deposit completed")
		return err
	})
	if errors.Is(err, services.ErrWalletNotFound) {
		return helpers.JSONError(c, "WALLET_NOT_FOUND")
	}
	if err != nil {
		h.log.Error().Err(err).Str("reference", req.Reference).Msg("deposit credit failed")
		return helpers.JSONError(c, "DEPOSIT_FAILED")
	}
	if duplicate {
		h.log.Info().Str("reference", req.Reference).Msg("deposit already credited, skipping")
		return helpers.JSONSuccess(c, "Deposit already processed", nil)
	}

	if err := h.referral.ApplyFirstDepositBonus(c.Context(), user.ID); err != nil {
		// The deposit itself stands; the bonus can be granted manually.
		h.log.Error().Err(err).Uint("user", user.ID).Msg("first deposit bonus failed")
	}

	h.notifyFlow(c, &user, req.Reference, amount)

	return helpers.JSONSuccess(c, "Deposit credited", fiber.Map{
		"reference": req.Reference,
		"amount":    amount.StringFixed(2),
	})
}

// notifyFlow feeds a payment_completed event to any flow the contact is
// parked in. Best effort; the money is already in the wallet.
func (h *Handler) notifyFlow(c *fiber.Ctx, user *models.User, reference string, amount decimal.Decimal) {
	var contact models.Contact
	if err := h.db.Where("wa_id = ?", user.Phone).First(&contact).Error; err != nil {
		return
	}

	ev := flow.Event{
		Type: flow.EventPayment,
		Payload: map[string]any{
			"reference": reference,
			"amount":    amount.StringFixed(2),
		},
	}
	out, err := h.engine.Advance(c.Context(), &contact, ev)
	if err != nil {
		h.log.Error().Err(err).Str("wa_id", contact.WaID).Msg("payment event traversal failed")
	}
	if len(out) > 0 {
		h.sender.SendAll(c.Context(), contact.WaID, out)
	}
}
