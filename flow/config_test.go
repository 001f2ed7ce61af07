package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateReplyText(t *testing.T) {
	cfg := QuestionConfig{ReplyType: "text"}

	v, ok := ValidateReply(cfg, Event{Type: EventText, Text: "  hello  "})
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = ValidateReply(cfg, Event{Type: EventText, Text: "   "})
	assert.False(t, ok)

	_, ok = ValidateReply(cfg, Event{Type: EventInteractive, ReplyID: "x"})
	assert.False(t, ok)
}

func TestValidateReplyTextRegex(t *testing.T) {
	cfg := QuestionConfig{ReplyType: "text", Regex: `^[0-9]{4}$`}

	v, ok := ValidateReply(cfg, Event{Type: EventText, Text: "1234"})
	assert.True(t, ok)
	assert.Equal(t, "1234", v)

	_, ok = ValidateReply(cfg, Event{Type: EventText, Text: "12345"})
	assert.False(t, ok)
}

func TestValidateReplyNumber(t *testing.T) {
	cfg := QuestionConfig{ReplyType: "number"}

	v, ok := ValidateReply(cfg, Event{Type: EventText, Text: " 250.50 "})
	assert.True(t, ok)
	assert.Equal(t, "250.5", v)

	_, ok = ValidateReply(cfg, Event{Type: EventText, Text: "a lot"})
	assert.False(t, ok)
}

func TestValidateReplyInteractive(t *testing.T) {
	cfg := QuestionConfig{ReplyType: "interactive"}

	v, ok := ValidateReply(cfg, Event{Type: EventInteractive, ReplyID: "menu_bet"})
	assert.True(t, ok)
	assert.Equal(t, "menu_bet", v)

	_, ok = ValidateReply(cfg, Event{Type: EventText, Text: "menu_bet"})
	assert.False(t, ok)
}

func TestRenderTemplate(t *testing.T) {
	ctx := Context{"name": "Amina", "balance": "1250.00"}

	assert.Equal(t, "Hi Amina, you have 1250.00.",
		RenderTemplate("Hi {{name}}, you have {{ balance }}.", ctx))

	// Unknown variables render empty rather than leaking the placeholder.
	assert.Equal(t, "Hi !", RenderTemplate("Hi {{missing}}!", ctx))

	assert.Equal(t, "plain text", RenderTemplate("plain text", ctx))
}
