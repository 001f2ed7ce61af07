package flow

const (
	EventText        = "text"
	EventInteractive = "interactive"
	EventPayment     = "payment_completed"
	EventNone        = ""
)

// Event is one normalized inbound payload: free text, a selected
// interactive-reply id, or a structured event from a collaborator.
type Event struct {
	Type    string
	Text    string
	ReplyID string
	Payload map[string]any
}

func (e Event) IsZero() bool {
	return e.Type == EventNone
}

// Outbound is a message the traversal wants delivered to the contact.
// The transport layer renders Meta into provider-specific structure.
type Outbound struct {
	Type string
	Text string
	Meta map[string]any
}

func TextMessage(text string) Outbound {
	return Outbound{Type: "text", Text: text}
}
