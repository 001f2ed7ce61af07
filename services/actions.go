package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatbet/flow"
	"chatbet/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActionDeps carries the capabilities the flow action handlers call into.
type ActionDeps struct {
	DB       *gorm.DB
	Ledger   *Ledger
	Tickets  *TicketEngine
	Sports   *SportsDataService
	Referral *ReferralEngine
	Log      zerolog.Logger
}

// RegisterFlowActions wires every named action the flow graphs dispatch.
// Handlers return business outcomes as values; an error return is a true
// fault and aborts the traversal.
func RegisterFlowActions(engine *flow.Engine, deps ActionDeps) {
	engine.RegisterAction("check_league_availability", deps.checkLeagueAvailability)
	engine.RegisterAction("fetch_football_data", deps.fetchFootballData)
	engine.RegisterAction("register_user", deps.registerUser)
	engine.RegisterAction("verify_pin", deps.verifyPin)
	engine.RegisterAction("handle_betting_action", deps.handleBettingAction)
	engine.RegisterAction("perform_withdrawal", deps.performWithdrawal)
	engine.RegisterAction("request_deposit_reference", deps.requestDepositReference)
	engine.RegisterAction("check_balance", deps.checkBalance)
	engine.RegisterAction("flag_human_handoff", deps.flagHumanHandoff)
}

func (d ActionDeps) userByContext(fc flow.Context) (*models.User, error) {
	waID := fc.GetString("wa_id")
	if waID == "" {
		return nil, nil
	}
	var user models.User
	err := d.DB.Where("phone = ?", waID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// checkLeagueAvailability doubles as a conditional flow entry predicate.
func (d ActionDeps) checkLeagueAvailability(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	leagues, err := d.Sports.AvailableLeagues()
	if err != nil {
		return "", err
	}
	if len(leagues) == 0 {
		return "false", nil
	}
	fc.Set("available_leagues", leagues)
	fc.Set("league_list_message", "⚽ Available leagues:\n"+strings.Join(leagues, "\n"))
	return "true", nil
}

// fetchFootballData serves display-ready catalog reads. "unavailable",
// "empty" and "ok" are distinct outcomes for transition conditions.
func (d ActionDeps) fetchFootballData(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	dataType, _ := params["data_type"].(string)
	switch dataType {
	case "leagues":
		leagues, err := d.Sports.AvailableLeagues()
		if err != nil {
			return "unavailable", nil
		}
		if len(leagues) == 0 {
			return "empty", nil
		}
		fc.Set("available_leagues", leagues)
		fc.Set("league_list_message", "⚽ Available leagues:\n"+strings.Join(leagues, "\n"))
		return "ok", nil

	case "fixtures":
		league := fc.GetString("selected_league")
		if l, ok := params["league"].(string); ok && l != "" {
			league = l
		}
		items, err := d.Sports.UpcomingFixtures(league, 7*24*time.Hour)
		if err != nil {
			return "unavailable", nil
		}
		if len(items) == 0 {
			return "empty", nil
		}
		var b strings.Builder
		b.WriteString("📅 Upcoming matches:\n")
		ids := make([]any, 0, len(items))
		for i, item := range items {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, item.Label, item.Kickoff.Format("Mon 15:04"))
			for _, o := range item.Outcomes {
				fmt.Fprintf(&b, "   [%d] %s @ %s\n", o.ID, o.Label, o.Odds.StringFixed(2))
			}
			ids = append(ids, int64(item.ID))
		}
		fc.Set("fixture_ids", ids)
		fc.Set("fixture_list_message", b.String())
		return "ok", nil

	default:
		return "", fmt.Errorf("fetch_football_data: unknown data_type %q", dataType)
	}
}

// registerUser creates the account, wallet and referral profile behind a
// WhatsApp identity.
func (d ActionDeps) registerUser(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	existing, err := d.userByContext(fc)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "exists", nil
	}

	waID := fc.GetString("wa_id")
	pin := fc.GetString("pin")
	if waID == "" || pin == "" {
		return "missing_details", nil
	}

	var user models.User
	err = d.DB.Transaction(func(tx *gorm.DB) error {
		user = models.User{
			Phone:    waID,
			FullName: fc.GetString("full_name"),
			PinHash:  hashPin(pin),
			IsActive: true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.Wallet{UserID: user.ID, Balance: decimal.Zero}).Error
	})
	if err != nil {
		return "", err
	}

	profile, err := d.Referral.EnsureProfile(user.ID, fc.GetString("referral_code_input"))
	if err != nil {
		return "", err
	}
	fc.Set("referral_code", profile.ReferralCode)
	fc.Set("pin", nil) // never leave the raw PIN in persisted context
	return "created", nil
}

func (d ActionDeps) verifyPin(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	user, err := d.userByContext(fc)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "no_account", nil
	}
	attempt := fc.GetString("pin_attempt")
	fc.Set("pin_attempt", nil)
	if attempt == "" || hashPin(attempt) != user.PinHash {
		return "invalid", nil
	}
	return "valid", nil
}

// handleBettingAction submits the ticket assembled in the context. Expected
// rejections become outcomes for the flow to branch on.
func (d ActionDeps) handleBettingAction(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	user, err := d.userByContext(fc)
	if err != nil {
		return "", err
	}
	if user == nil {
		fc.Set("betting_result_message", "You need an account before betting. Reply *join* to sign up.")
		return "no_account", nil
	}

	stake, ok := fc.GetDecimal("stake")
	if !ok {
		fc.Set("betting_result_message", "I couldn't read your stake amount.")
		return "invalid_stake", nil
	}

	outcomeIDs := parseOutcomeIDs(fc.GetString("selected_outcomes"))
	confirmation, err := d.Tickets.SubmitTicket(ctx, user.ID, outcomeIDs, stake)
	if err == nil {
		fc.Set("betting_result_message", confirmation.Message())
		fc.Set("ticket_reference", confirmation.Reference)
		fc.Set("new_balance", confirmation.NewBalance.StringFixed(2))
		return "success", nil
	}

	reason := rejectionReason(err)
	if reason == "internal" {
		return "", err // true fault, abort the traversal
	}
	fc.Set("betting_result_message", betFailureMessage(err))
	return reason, nil
}

func betFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "❌ Insufficient balance for that stake. Reply *deposit* to top up."
	case errors.Is(err, ErrStakeBelowMinimum):
		return "❌ That stake is below the minimum."
	case errors.Is(err, ErrStakeAboveMaximum):
		return "❌ That stake is above the maximum."
	case errors.Is(err, ErrTooManySelections):
		return "❌ Too many selections on one ticket."
	case errors.Is(err, ErrInvalidOutcomes):
		return fmt.Sprintf("❌ Some selections are no longer available (%v).", err)
	case errors.Is(err, ErrMarketClosed):
		return "❌ One of those matches is closed for betting."
	case errors.Is(err, ErrInvalidOdds):
		return "❌ One of those prices is invalid right now. Try refreshing the list."
	default:
		return "❌ Could not place that bet."
	}
}

func (d ActionDeps) performWithdrawal(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	user, err := d.userByContext(fc)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "no_account", nil
	}
	amount, ok := fc.GetDecimal("withdrawal_amount")
	if !ok || !amount.IsPositive() {
		return "invalid_amount", nil
	}

	ref := "withdrawal:" + uuid.NewString()
	err = d.DB.Transaction(func(tx *gorm.DB) error {
		wallet, err := LockWallet(tx, user.ID)
		if err != nil {
			return err
		}
		_, err = d.Ledger.Debit(tx, wallet, amount, models.TrxTypeWithdrawal, ref, "user withdrawal")
		if err != nil {
			return err
		}
		fc.Set("new_balance", wallet.Balance.StringFixed(2))
		return nil
	})
	if errors.Is(err, ErrInsufficientFunds) {
		return "insufficient_funds", nil
	}
	if errors.Is(err, ErrWalletNotFound) {
		return "no_account", nil
	}
	if err != nil {
		return "", err
	}
	fc.Set("withdrawal_reference", ref)
	return "success", nil
}

// requestDepositReference issues the reference the payment collaborator
// echoes back on its completion webhook.
func (d ActionDeps) requestDepositReference(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	ref := "deposit:" + uuid.NewString()
	fc.Set("deposit_reference", ref)
	return "ok", nil
}

func (d ActionDeps) checkBalance(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	user, err := d.userByContext(fc)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "no_account", nil
	}
	var wallet models.Wallet
	if err := d.DB.Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "no_account", nil
		}
		return "", err
	}
	fc.Set("balance_message", "💰 Your balance is "+wallet.Balance.StringFixed(2)+" "+wallet.Currency)
	return "ok", nil
}

func (d ActionDeps) flagHumanHandoff(ctx context.Context, fc flow.Context, params map[string]any) (string, error) {
	contactID, ok := fc.GetInt("contact_id")
	if !ok {
		return "", errors.New("flag_human_handoff: missing contact_id")
	}
	err := d.DB.Model(&models.Contact{}).
		Where("id = ?", contactID).
		Update("needs_human_intervention", true).Error
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func hashPin(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// parseOutcomeIDs accepts "12, 34 56" style user input.
func parseOutcomeIDs(raw string) []uint {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	})
	ids := make([]uint, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(n))
	}
	return ids
}
