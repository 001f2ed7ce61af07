package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) decimal.Decimal {
	v := getenv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Betting bounds.
func MinStake() decimal.Decimal { return getDecimal("BET_MIN_STAKE", "100") }
func MaxStake() decimal.Decimal { return getDecimal("BET_MAX_STAKE", "500000") }
func MaxSelections() int        { return getInt("BET_MAX_SELECTIONS", 20) }

// Referral program.
func AgentCommissionPercent() decimal.Decimal {
	return getDecimal("AGENT_COMMISSION_PERCENT", "5")
}
func FirstDepositBonusPercent() decimal.Decimal {
	return getDecimal("FIRST_DEPOSIT_BONUS_PERCENT", "10")
}

// WhatsApp Cloud API.
func WhatsAppAPIURL() string     { return getenv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0") }
func WhatsAppToken() string      { return os.Getenv("WHATSAPP_ACCESS_TOKEN") }
func WhatsAppPhoneID() string    { return os.Getenv("WHATSAPP_PHONE_NUMBER_ID") }
func WebhookVerifyToken() string { return os.Getenv("WHATSAPP_VERIFY_TOKEN") }
func WebhookAppSecret() string   { return os.Getenv("WHATSAPP_APP_SECRET") }

// TrackedLeagues lists the league codes the catalog refresh follows.
func TrackedLeagues() []string {
	raw := getenv("TRACKED_LEAGUES", "EPL,LALIGA,SERIEA")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Sports data provider.
func SportsAPIURL() string { return getenv("SPORTS_API_URL", "https://api.football-data.example") }
func SportsAPIKey() string { return os.Getenv("SPORTS_API_KEY") }
func SportsAPIRate() float64 {
	if v := os.Getenv("SPORTS_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 2
}

// Admin callbacks.
func AdminSecret() string { return os.Getenv("ADMIN_API_SECRET") }

// Job queue.
func NATSURL() string { return getenv("NATS_URL", "nats://127.0.0.1:4222") }

// Flow definitions.
func FlowDir() string { return getenv("FLOW_DIR", "flows") }

// Maintenance.
func FlowStateTTL() time.Duration { return getDuration("FLOW_STATE_TTL", 72*time.Hour) }

func MetricsAddr() string { return getenv("METRICS_ADDR", "127.0.0.1:9091") }
