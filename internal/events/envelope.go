// Package events publishes conversation turns to RabbitMQ so other services
// (dashboards, CRMs) can follow the bot without reading its database.
package events

import (
	"time"

	"github.com/google/uuid"

	"tienditabot/internal/domain"
)

// TypeConversationTurn is the event name for one processed exchange.
const TypeConversationTurn = "conversation.turn.v1"

// Meta describes an event independently of its payload.
type Meta struct {
	// Trace / request correlation ID; the inbound WhatsApp message id when known.
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID       string    `json:"id"`
	Producer *string   `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
}

type Envelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

// NewTurnEnvelope wraps ex in a conversation.turn.v1 envelope.
func NewTurnEnvelope(ex domain.Exchange, producer string, now time.Time) Envelope[domain.Exchange] {
	meta := Meta{
		ID:   uuid.NewString(),
		Time: now.UTC(),
		Type: TypeConversationTurn,
	}
	if producer != "" {
		meta.Producer = &producer
	}
	if ex.Inbound.ID != "" {
		cid := ex.Inbound.ID
		meta.CorrelationID = &cid
	}
	return Envelope[domain.Exchange]{Meta: meta, Data: ex}
}
