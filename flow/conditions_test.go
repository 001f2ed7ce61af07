package flow

import (
	"testing"

	"chatbet/models"

	"gorm.io/datatypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transition(condType string, cfg string) models.FlowTransition {
	return models.FlowTransition{
		ConditionType:   condType,
		ConditionConfig: datatypes.JSON(cfg),
	}
}

func TestEvaluateCondition(t *testing.T) {
	ctx := Context{"tier": "vip", "count": float64(3)}

	tests := []struct {
		name       string
		tr         models.FlowTransition
		ev         Event
		replyValid bool
		want       bool
	}{
		{
			name: "always true",
			tr:   transition(models.CondAlwaysTrue, ``),
			want: true,
		},
		{
			name: "variable equals match",
			tr:   transition(models.CondVariableEquals, `{"variable":"tier","value":"vip"}`),
			want: true,
		},
		{
			name: "variable equals mismatch",
			tr:   transition(models.CondVariableEquals, `{"variable":"tier","value":"basic"}`),
			want: false,
		},
		{
			name: "variable equals missing variable",
			tr:   transition(models.CondVariableEquals, `{"variable":"absent","value":"x"}`),
			want: false,
		},
		{
			name: "variable equals loose numeric compare",
			tr:   transition(models.CondVariableEquals, `{"variable":"count","value":3}`),
			want: true,
		},
		{
			name: "interactive reply id match",
			tr:   transition(models.CondInteractiveReplyID, `{"reply_id":"menu_bet"}`),
			ev:   Event{Type: EventInteractive, ReplyID: "menu_bet"},
			want: true,
		},
		{
			name: "interactive reply id wrong event type",
			tr:   transition(models.CondInteractiveReplyID, `{"reply_id":"menu_bet"}`),
			ev:   Event{Type: EventText, Text: "menu_bet"},
			want: false,
		},
		{
			name: "keyword match is case insensitive by default",
			tr:   transition(models.CondKeywordMatch, `{"keyword":"cancel"}`),
			ev:   Event{Type: EventText, Text: "  CANCEL "},
			want: true,
		},
		{
			name: "keyword match case sensitive",
			tr:   transition(models.CondKeywordMatch, `{"keyword":"cancel","case_sensitive":true}`),
			ev:   Event{Type: EventText, Text: "CANCEL"},
			want: false,
		},
		{
			name: "variable exists",
			tr:   transition(models.CondVariableExists, `{"variable":"tier"}`),
			want: true,
		},
		{
			name: "variable exists negative",
			tr:   transition(models.CondVariableExists, `{"variable":"nope"}`),
			want: false,
		},
		{
			name:       "reply valid passthrough",
			tr:         transition(models.CondReplyValid, ``),
			replyValid: true,
			want:       true,
		},
		{
			name: "event type equals",
			tr:   transition(models.CondEventTypeEquals, `{"event_type":"payment_completed"}`),
			ev:   Event{Type: EventPayment},
			want: true,
		},
		{
			name: "event type equals ignores empty events",
			tr:   transition(models.CondEventTypeEquals, `{"event_type":""}`),
			ev:   Event{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.tr, tt.ev, ctx, tt.replyValid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateConditionUnknownType(t *testing.T) {
	_, err := EvaluateCondition(transition("telepathy", ``), Event{}, Context{}, false)
	require.Error(t, err)
}
