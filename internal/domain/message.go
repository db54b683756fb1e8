package domain

import "time"

// MessageKind is the shape of an inbound WhatsApp message we know how to classify.
type MessageKind string

const (
	KindText              MessageKind = "text"
	KindInteractiveButton MessageKind = "interactive_button"
	KindTemplateButton    MessageKind = "template_button"
)

// IsButton reports whether the message came from a tapped button rather than typed text.
func (k MessageKind) IsButton() bool {
	return k == KindInteractiveButton || k == KindTemplateButton
}

// InboundEvent is one customer message extracted from a webhook delivery.
type InboundEvent struct {
	MessageID  string
	From       string // provider-assigned sender phone number
	Kind       MessageKind
	Text       string // typed text or button title
	SenderName string // profile name, may be empty
	Timestamp  time.Time
}

// ActionType selects which outbound call a decision triggers.
type ActionType string

const (
	ActionNone     ActionType = "none"
	ActionTemplate ActionType = "template"
	ActionText     ActionType = "text"
)

// OutboundAction is the single reply the bot sends for an inbound event.
type OutboundAction struct {
	Type      ActionType `json:"type"`
	Template  string     `json:"template,omitempty"`  // template name, for ActionTemplate
	NameParam string     `json:"nameParam,omitempty"` // optional {{1}} substitution, welcome template only
	Body      string     `json:"body,omitempty"`      // message body, for ActionText
}

// Intent identifiers reported by the classifier and the sandbox.
const (
	IntentGreeting     = "greeting"
	IntentOrderWeb     = "order_web"
	IntentHandoffHuman = "handoff_human"
	IntentAttention    = "attention"
	IntentOrderStart   = "order_start"
	IntentQuestion     = "question"
	IntentBack         = "back"
	IntentFallback     = "fallback"
)

// Conversation states written next to each exchange.
const (
	StateIdle         = "idle"
	StateAwaitingMenu = "awaiting_menu_selection"
	StateHandoff      = "handoff"
)

// Decision is the outcome of classifying an inbound event.
type Decision struct {
	Intent     string         `json:"intent"`
	Action     OutboundAction `json:"action"`
	Reply      string         `json:"reply"` // human-readable preview of what was sent
	NextState  string         `json:"nextState"`
	NeedsHuman bool           `json:"needsHuman"`
}
