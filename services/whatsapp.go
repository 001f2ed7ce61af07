package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatbet/config"
	"chatbet/flow"
	"chatbet/metrics"

	"github.com/rs/zerolog"
)

// WhatsAppSender delivers outbound messages over the Cloud API. Send
// failures are the caller's problem to log and continue from; a dropped
// notification must never block flow progression.
type WhatsAppSender struct {
	client *http.Client
	log    zerolog.Logger
}

func NewWhatsAppSender(log zerolog.Logger) *WhatsAppSender {
	return &WhatsAppSender{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers one outbound message and returns the provider message id.
func (s *WhatsAppSender) Send(ctx context.Context, waID string, out flow.Outbound) (string, error) {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                waID,
	}
	switch out.Type {
	case "interactive":
		body["type"] = "interactive"
		interactive := map[string]any{
			"type": "button",
			"body": map[string]any{"text": out.Text},
		}
		for k, v := range out.Meta {
			interactive[k] = v
		}
		body["interactive"] = interactive
	default:
		body["type"] = "text"
		body["text"] = map[string]any{"body": out.Text}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", config.WhatsAppAPIURL(), config.WhatsAppPhoneID())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.WhatsAppToken())

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.OutboundMessagesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.OutboundMessagesTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, raw)
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	metrics.OutboundMessagesTotal.WithLabelValues("ok").Inc()
	if len(decoded.Messages) == 0 {
		return "", nil
	}
	return decoded.Messages[0].ID, nil
}

// SendAll pushes a traversal's outbound batch, logging and continuing on
// individual failures.
func (s *WhatsAppSender) SendAll(ctx context.Context, waID string, batch []flow.Outbound) {
	for _, out := range batch {
		if _, err := s.Send(ctx, waID, out); err != nil {
			s.log.Error().Err(err).Str("wa_id", waID).Msg("outbound send failed, continuing")
		}
	}
}
