package flow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultMaxRetries = 3

// QuestionConfig drives a step that waits for a human reply.
type QuestionConfig struct {
	Prompt                string `json:"prompt"`
	RetryPrompt           string `json:"retry_prompt"`
	ReplyType             string `json:"reply_type"` // text | number | interactive
	Regex                 string `json:"regex"`
	SaveToVariable        string `json:"save_to_variable"`
	MaxRetries            int    `json:"max_retries"`
	ActionAfterMaxRetries string `json:"action_after_max_retries"` // end_flow or a step name
	MaxRetriesMessage     string `json:"max_retries_message"`
}

type ActionSpec struct {
	Name           string         `json:"name"`
	Params         map[string]any `json:"params"`
	OutputVariable string         `json:"output_variable_name"`
}

type ActionConfig struct {
	Actions []ActionSpec `json:"actions"`
}

type SendMessageConfig struct {
	MessageType string         `json:"message_type"`
	Text        string         `json:"text"`
	Meta        map[string]any `json:"meta"`
}

type EndFlowConfig struct {
	FinalMessage string `json:"final_message"`
}

func decodeConfig[T any](raw []byte, out *T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ValidateReply checks an event against a question's reply_config and
// returns the value to store. A false result is an expected business
// outcome (re-prompt), never an error.
func ValidateReply(cfg QuestionConfig, ev Event) (any, bool) {
	switch cfg.ReplyType {
	case "interactive":
		if ev.Type != EventInteractive || ev.ReplyID == "" {
			return nil, false
		}
		return ev.ReplyID, true
	case "number":
		if ev.Type != EventText {
			return nil, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(ev.Text))
		if err != nil {
			return nil, false
		}
		return d.String(), true
	default: // text
		text := strings.TrimSpace(ev.Text)
		if ev.Type != EventText || text == "" {
			return nil, false
		}
		if cfg.Regex != "" {
			re, err := regexp.Compile(cfg.Regex)
			if err != nil || !re.MatchString(text) {
				return nil, false
			}
		}
		return text, true
	}
}

// RenderTemplate substitutes {{variable}} placeholders from the context.
// Unknown variables render empty.
var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

func RenderTemplate(text string, ctx Context) string {
	return templateVar.ReplaceAllStringFunc(text, func(m string) string {
		key := templateVar.FindStringSubmatch(m)[1]
		if !ctx.Has(key) {
			return ""
		}
		return fmt.Sprintf("%v", ctx[key])
	})
}
