package webhook

import (
	"errors"
	"time"

	"chatbet/config"
	"chatbet/flow"
	"chatbet/metrics"
	"chatbet/models"
	"chatbet/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler terminates the WhatsApp Cloud API webhook: handshake, signature
// already verified upstream, dedup, contact upsert, one engine traversal per
// inbound message.
type Handler struct {
	db     *gorm.DB
	engine *flow.Engine
	sender *services.WhatsAppSender
	log    zerolog.Logger
}

func NewHandler(db *gorm.DB, engine *flow.Engine, sender *services.WhatsAppSender, log zerolog.Logger) *Handler {
	return &Handler{db: db, engine: engine, sender: sender, log: log}
}

// Verify answers Meta's subscription handshake.
func (h *Handler) Verify(c *fiber.Ctx) error {
	if c.Query("hub.mode") == "subscribe" &&
		c.Query("hub.verify_token") == config.WebhookVerifyToken() {
		return c.SendString(c.Query("hub.challenge"))
	}
	return c.SendStatus(fiber.StatusForbidden)
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive struct {
		Type        string `json:"type"`
		ButtonReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// Receive processes one webhook delivery. Always answers 200: Meta retries
// on anything else and our dedup already absorbs replays.
func (h *Handler) Receive(c *fiber.Ctx) error {
	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.log.Warn().Err(err).Msg("unparseable webhook body")
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, ct := range change.Value.Contacts {
				names[ct.WaID] = ct.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				h.handleMessage(c, msg, names[msg.From])
			}
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) handleMessage(c *fiber.Ctx, msg inboundMessage, displayName string) {
	metrics.InboundMessagesTotal.WithLabelValues(msg.Type).Inc()

	// Insert-or-skip on the provider message id absorbs webhook replays.
	res := h.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedMessage{ProviderMessageID: msg.ID, WaID: msg.From})
	if res.Error != nil {
		h.log.Error().Err(res.Error).Str("message_id", msg.ID).Msg("dedup insert failed")
		return
	}
	if res.RowsAffected == 0 {
		h.log.Info().Str("message_id", msg.ID).Msg("duplicate delivery, skipping")
		return
	}

	contact, err := h.upsertContact(msg.From, displayName)
	if err != nil {
		h.log.Error().Err(err).Str("wa_id", msg.From).Msg("contact upsert failed")
		return
	}
	if contact.NeedsHumanIntervention {
		h.log.Info().Str("wa_id", msg.From).Msg("contact flagged for human handling, bot muted")
		return
	}

	ev := normalizeEvent(msg)
	if ev.IsZero() {
		return
	}

	out, err := h.engine.Advance(c.Context(), contact, ev)
	if err != nil {
		h.log.Error().Err(err).Str("wa_id", msg.From).Msg("flow traversal failed")
	}
	if len(out) > 0 {
		h.sender.SendAll(c.Context(), contact.WaID, out)
	}
}

func (h *Handler) upsertContact(waID, displayName string) (*models.Contact, error) {
	var contact models.Contact
	err := h.db.Where("wa_id = ?", waID).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = models.Contact{WaID: waID, DisplayName: displayName, LastSeenAt: time.Now()}
		if err := h.db.Create(&contact).Error; err != nil {
			return nil, err
		}
		return &contact, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"last_seen_at": time.Now()}
	if displayName != "" && displayName != contact.DisplayName {
		updates["display_name"] = displayName
		contact.DisplayName = displayName
	}
	if err := h.db.Model(&contact).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func normalizeEvent(msg inboundMessage) flow.Event {
	switch msg.Type {
	case "text":
		return flow.Event{Type: flow.EventText, Text: msg.Text.Body}
	case "interactive":
		reply := msg.Interactive.ButtonReply
		if msg.Interactive.Type == "list_reply" {
			reply = msg.Interactive.ListReply
		}
		return flow.Event{Type: flow.EventInteractive, Text: reply.Title, ReplyID: reply.ID}
	default:
		// Media and reactions are not conversational input here.
		return flow.Event{}
	}
}
