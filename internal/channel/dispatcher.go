// Package channel exposes the bot over HTTP: the WhatsApp webhook, the
// classification sandbox, and the operational endpoints.
package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tienditabot/internal/domain"
	"tienditabot/internal/metrics"
)

const channelName = "whatsapp"

// Classifier decides the reply for an inbound event.
type Classifier interface {
	Classify(ev domain.InboundEvent) domain.Decision
}

type DispatcherConfig struct {
	Classifier Classifier
	Sender     domain.Sender
	Log        domain.ConversationLog // optional
	Notifier   domain.HandoffNotifier // optional
	Metrics    *metrics.Bot           // optional
	Logger     *slog.Logger
}

// Dispatcher runs one inbound event through classify, send, record and alert.
// Failures after classification are logged and never reach the caller.
type Dispatcher struct {
	classifier Classifier
	sender     domain.Sender
	log        domain.ConversationLog
	notifier   domain.HandoffNotifier
	metrics    *metrics.Bot
	logger     *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		classifier: cfg.Classifier,
		sender:     cfg.Sender,
		log:        cfg.Log,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Handle processes ev and returns the decision taken.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.InboundEvent) domain.Decision {
	dec := d.classifier.Classify(ev)
	d.metrics.Intent(dec.Intent)
	d.logger.Info("whatsapp message classified",
		"from", ev.From, "kind", ev.Kind, "intent", dec.Intent, "action", dec.Action.Type)

	status := d.send(ctx, ev.From, dec.Action)
	d.record(ctx, ev, dec, status)

	if dec.NeedsHuman {
		d.metrics.Handoff()
		if d.notifier != nil {
			if err := d.notifier.NotifyHandoff(ctx, ev); err != nil {
				d.logger.Warn("handoff alert failed", "from", ev.From, "err", err)
			}
		}
	}
	return dec
}

func (d *Dispatcher) send(ctx context.Context, to string, action domain.OutboundAction) int {
	if action.Type == domain.ActionNone || d.sender == nil {
		return 0
	}

	start := time.Now()
	var (
		status int
		err    error
	)
	switch action.Type {
	case domain.ActionTemplate:
		status, err = d.sender.SendTemplate(ctx, to, action.Template, action.NameParam)
	case domain.ActionText:
		status, err = d.sender.SendText(ctx, to, action.Body)
	}
	d.metrics.Outbound(string(action.Type), status, time.Since(start))

	if err != nil {
		d.logger.Error("whatsapp send failed",
			"to", to, "type", action.Type, "template", action.Template, "status", status, "err", err)
		return status
	}
	d.logger.Info("whatsapp reply sent", "to", to, "type", action.Type, "template", action.Template, "status", status)
	return status
}

func (d *Dispatcher) record(ctx context.Context, ev domain.InboundEvent, dec domain.Decision, status int) {
	if d.log == nil {
		return
	}
	now := time.Now().UTC()
	convID := domain.ConversationID(ev.From)

	inboundID := ev.MessageID
	if inboundID == "" {
		inboundID = uuid.NewString()
	}
	ex := domain.Exchange{
		ConversationID: convID,
		UserID:         ev.From,
		Channel:        channelName,
		SenderName:     ev.SenderName,
		State:          dec.NextState,
		NeedsHuman:     dec.NeedsHuman,
		Inbound: domain.Turn{
			ID:             inboundID,
			ConversationID: convID,
			From:           "user",
			Direction:      "in",
			Text:           ev.Text,
			IntentID:       dec.Intent,
			Kind:           string(ev.Kind),
			CreatedAt:      ev.Timestamp,
		},
		At: now,
	}
	if dec.Action.Type != domain.ActionNone {
		ex.Outbound = &domain.Turn{
			ID:             uuid.NewString(),
			ConversationID: convID,
			From:           "bot",
			Direction:      "out",
			Text:           dec.Reply,
			IntentID:       dec.Intent,
			Kind:           string(dec.Action.Type),
			StatusCode:     status,
			CreatedAt:      now,
		}
	}

	if err := d.log.Record(ctx, ex); err != nil {
		d.logger.Warn("conversation log failed", "conversation", convID, "err", err)
	}
}
