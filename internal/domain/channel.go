package domain

import "context"

// Sender delivers outbound messages through the WhatsApp Cloud API.
// Both calls return the provider HTTP status for diagnostics.
type Sender interface {
	SendTemplate(ctx context.Context, to, template, nameParam string) (int, error)
	SendText(ctx context.Context, to, body string) (int, error)
}

// HandoffNotifier alerts staff that a customer asked for a human.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, ev InboundEvent) error
}
