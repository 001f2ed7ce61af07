package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatbet/models"
)

type conditionConfig struct {
	Variable      string `json:"variable"`
	Value         any    `json:"value"`
	Keyword       string `json:"keyword"`
	CaseSensitive bool   `json:"case_sensitive"`
	ReplyID       string `json:"reply_id"`
	EventType     string `json:"event_type"`
}

// EvaluateCondition decides whether a transition fires. replyValid carries
// the result of the most recent question validation and is only meaningful
// on transitions leaving a question step.
func EvaluateCondition(t models.FlowTransition, ev Event, ctx Context, replyValid bool) (bool, error) {
	var cfg conditionConfig
	if len(t.ConditionConfig) > 0 {
		if err := json.Unmarshal(t.ConditionConfig, &cfg); err != nil {
			return false, fmt.Errorf("transition %d: bad condition config: %w", t.ID, err)
		}
	}

	switch t.ConditionType {
	case models.CondAlwaysTrue:
		return true, nil

	case models.CondVariableEquals:
		if !ctx.Has(cfg.Variable) {
			return false, nil
		}
		return valueEquals(ctx[cfg.Variable], cfg.Value), nil

	case models.CondInteractiveReplyID:
		return ev.Type == EventInteractive && ev.ReplyID == cfg.ReplyID, nil

	case models.CondKeywordMatch:
		if ev.Type != EventText {
			return false, nil
		}
		text := strings.TrimSpace(ev.Text)
		if cfg.CaseSensitive {
			return text == cfg.Keyword, nil
		}
		return strings.EqualFold(text, cfg.Keyword), nil

	case models.CondVariableExists:
		return ctx.Has(cfg.Variable), nil

	case models.CondReplyValid:
		return replyValid, nil

	case models.CondEventTypeEquals:
		return ev.Type != EventNone && ev.Type == cfg.EventType, nil

	default:
		return false, fmt.Errorf("transition %d: unknown condition type %q", t.ID, t.ConditionType)
	}
}

// valueEquals compares loosely across the numeric representations JSON
// round-trips produce (int vs float64 vs numeric string).
func valueEquals(a, b any) bool {
	if a == b {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
