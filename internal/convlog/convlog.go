// Package convlog combines conversation sinks behind a single domain.ConversationLog.
package convlog

import (
	"context"
	"errors"
	"log/slog"

	"tienditabot/internal/domain"
)

// Fanout records every exchange in each sink and joins their errors.
type Fanout []domain.ConversationLog

func (f Fanout) Record(ctx context.Context, ex domain.Exchange) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, ex); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort logs and drops sink errors. The webhook must acknowledge the
// provider even when the store or broker is down.
type BestEffort struct {
	log    domain.ConversationLog
	logger *slog.Logger
}

func NewBestEffort(log domain.ConversationLog, logger *slog.Logger) *BestEffort {
	return &BestEffort{log: log, logger: logger}
}

func (b *BestEffort) Record(ctx context.Context, ex domain.Exchange) error {
	if b.log == nil {
		return nil
	}
	if err := b.log.Record(ctx, ex); err != nil {
		b.logger.Warn("conversation log failed",
			"conversation", ex.ConversationID, "intent", ex.Inbound.IntentID, "err", err)
	}
	return nil
}

// Discard is a ConversationLog that keeps nothing.
type Discard struct{}

func (Discard) Record(context.Context, domain.Exchange) error { return nil }
