package cloudapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tienditabot/internal/domain"
)

// BusinessAccountObject is the webhook "object" value for WhatsApp Business deliveries.
const BusinessAccountObject = "whatsapp_business_account"

var (
	// ErrMalformedPayload means the body is not the provider's event shape.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrIgnored means the delivery is for another object type.
	ErrIgnored = errors.New("webhook object is not a whatsapp business account")
	// ErrNoMessage means the change carries no message (delivery/read statuses).
	ErrNoMessage = errors.New("webhook change has no messages")
	// ErrUnsupportedKind means the message type is not classified (images, audio, ...).
	ErrUnsupportedKind = errors.New("unsupported message type")
)

func malformed(path string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, path)
}

// ParseEvent extracts the first message of the first change of the first
// entry. Every absent field the dispatcher depends on is reported as an error
// wrapping one of the sentinel errors above.
func ParseEvent(body []byte) (domain.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if payload.Object != "" && payload.Object != BusinessAccountObject {
		return domain.InboundEvent{}, fmt.Errorf("%w: %q", ErrIgnored, payload.Object)
	}
	if len(payload.Entry) == 0 {
		return domain.InboundEvent{}, malformed("entry[0]")
	}
	if len(payload.Entry[0].Changes) == 0 {
		return domain.InboundEvent{}, malformed("entry[0].changes[0]")
	}
	value := payload.Entry[0].Changes[0].Value
	if value == nil {
		return domain.InboundEvent{}, malformed("entry[0].changes[0].value")
	}
	if len(value.Messages) == 0 {
		return domain.InboundEvent{}, ErrNoMessage
	}

	msg := value.Messages[0]
	if msg.From == "" {
		return domain.InboundEvent{}, malformed("messages[0].from")
	}

	ev := domain.InboundEvent{
		MessageID:  msg.ID,
		From:       msg.From,
		SenderName: senderName(value.Contacts),
		Timestamp:  parseTimestamp(msg.Timestamp),
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil || msg.Text.Body == nil {
			return ev, malformed("messages[0].text.body")
		}
		ev.Kind = domain.KindText
		ev.Text = *msg.Text.Body

	case "interactive":
		if msg.Interactive == nil {
			return ev, malformed("messages[0].interactive")
		}
		reply := msg.Interactive.ButtonReply
		if reply == nil {
			reply = msg.Interactive.ListReply
		}
		if reply == nil || reply.Title == "" {
			return ev, malformed("messages[0].interactive.button_reply.title")
		}
		ev.Kind = domain.KindInteractiveButton
		ev.Text = reply.Title

	case "button":
		if msg.Button == nil {
			return ev, malformed("messages[0].button")
		}
		title := msg.Button.Text
		if title == "" {
			title = msg.Button.Payload
		}
		if title == "" {
			return ev, malformed("messages[0].button.text")
		}
		ev.Kind = domain.KindTemplateButton
		ev.Text = title

	default:
		return ev, fmt.Errorf("%w: %q", ErrUnsupportedKind, msg.Type)
	}

	return ev, nil
}

func senderName(contacts []webhookContact) string {
	if len(contacts) == 0 || contacts[0].Profile == nil {
		return ""
	}
	return strings.TrimSpace(contacts[0].Profile.Name)
}

func parseTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
