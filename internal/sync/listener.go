package sync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/caval92/tgd/internal/bus"
	"github.com/caval92/tgd/internal/store"
	"github.com/caval92/tgd/internal/tg"
)

// ListenerConfig holds live-mode behavior switches.
type ListenerConfig struct {
	// MarkRead acknowledges incoming messages on the remote as they are
	// stored.
	MarkRead bool
	// IdleExit ends the run cleanly after this long without an update.
	// Zero keeps the subscription open forever (daemon mode).
	IdleExit time.Duration
}

// Listener holds the live subscription open and applies push updates
// through the reconciler. After a dropped subscription it runs an
// incremental sync to close the gap before resuming live application;
// insert-if-absent makes the overlap between the two paths harmless.
type Listener struct {
	db     *store.DB
	client tg.Client
	rec    *Reconciler
	orch   *Orchestrator
	bus    *bus.Bus
	logger *zap.Logger
	cfg    ListenerConfig
}

// NewListener creates a live-update listener.
func NewListener(db *store.DB, client tg.Client, rec *Reconciler, orch *Orchestrator, b *bus.Bus, logger *zap.Logger, cfg ListenerConfig) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		db:     db,
		client: client,
		rec:    rec,
		orch:   orch,
		bus:    b,
		logger: logger,
		cfg:    cfg,
	}
}

// Run subscribes and applies updates until ctx is canceled or the
// session's authorization expires. Transport drops reconnect with
// backoff, indefinitely.
func (l *Listener) Run(ctx context.Context) error {
	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = time.Second
	reconnect.MaxInterval = time.Minute
	reconnect.MaxElapsedTime = 0
	reconnect.Reset()

	first := true
	for {
		var stream tg.UpdateStream
		err := withRetry(ctx, l.logger, "subscribe", func() error {
			var err error
			stream, err = l.client.Subscribe(ctx)
			return err
		})
		if err != nil {
			return err
		}
		reconnect.Reset()

		// Subscribe before backfilling so nothing slips between the two;
		// anything fetched twice dedups on identity.
		if !first {
			if _, err := l.orch.Sync(ctx, Options{}); err != nil {
				if ctx.Err() != nil || tg.IsAuthExpired(err) {
					_ = stream.Close()
					return err
				}
				l.logger.Warn("gap backfill after reconnect failed", zap.Error(err))
			}
		}
		first = false

		idle, err := l.consume(ctx, stream)
		_ = stream.Close()
		if idle {
			l.logger.Info("idle timeout reached, exiting follow mode")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tg.IsAuthExpired(err) {
			return err
		}
		l.logger.Warn("update stream ended, reconnecting", zap.Error(err))

		select {
		case <-time.After(reconnect.NextBackOff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume drains the stream until it closes, ctx is canceled, or the idle
// timeout elapses. In-flight writes commit before intake stops.
func (l *Listener) consume(ctx context.Context, stream tg.UpdateStream) (idle bool, err error) {
	var idleC <-chan time.Time
	var idleTimer *time.Timer
	if l.cfg.IdleExit > 0 {
		idleTimer = time.NewTimer(l.cfg.IdleExit)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-idleC:
			return true, nil
		case u, ok := <-stream.Updates():
			if !ok {
				return false, stream.Err()
			}
			if idleTimer != nil {
				if !idleTimer.Stop() {
					<-idleTimer.C
				}
				idleTimer.Reset(l.cfg.IdleExit)
			}
			if err := l.apply(ctx, u); err != nil {
				if ctx.Err() != nil || tg.IsAuthExpired(err) {
					return false, err
				}
				l.logger.Error("apply update failed", zap.Error(err))
			}
		}
	}
}

// apply routes one push update through the reconciler and into the store.
// Store errors are returned; a reconciler Drop is not an error.
func (l *Listener) apply(ctx context.Context, u tg.Update) error {
	switch up := u.(type) {
	case tg.NewMessage:
		return l.applyMessage(ctx, up)
	case tg.MessageEdited:
		return l.applyEdit(up)
	case tg.MessageDeleted:
		return l.applyDelete(up)
	case tg.ReadReceipt:
		return l.db.MarkChatRead(up.ChatID, up.MaxID)
	default:
		l.logger.Warn("unknown update variant dropped")
		return nil
	}
}

func (l *Listener) applyMessage(ctx context.Context, up tg.NewMessage) error {
	m := up.Message
	stored, err := l.db.GetMessage(m.ChatID, m.ID)
	if err != nil {
		return err
	}
	if l.rec.DecideMessage(stored, m, up.Chat.Kind) != Admit {
		l.dropped("message", m.ChatID, m.ID)
		return nil
	}

	// No checkpoint advance: a push delivery does not attest that the
	// range below it was fetched. Backfill moves the cursor once it has
	// actually covered the gap; the overlap dedups on identity. The chat
	// on a push event carries identity, not authoritative flags.
	_, err = l.db.IngestBatch(&store.Batch{
		Chat:        up.Chat,
		ChatPartial: true,
		Messages:    []*store.Message{m},
	})
	if err != nil {
		return err
	}
	l.applied("message", m.ChatID, m.ID)
	l.bus.Publish(bus.Event{
		Kind:      bus.KindSyncMessage,
		Timestamp: time.Now(),
		Payload: bus.MessageProgress{
			ChatID:   m.ChatID,
			ID:       m.ID,
			SenderID: m.SenderID,
			FromMe:   m.FromMe,
			TS:       time.UnixMilli(m.TS),
			Text:     m.Text,
		},
	})

	if l.cfg.MarkRead && !m.FromMe {
		if err := l.client.MarkRead(ctx, m.ChatID, []int64{m.ID}); err != nil {
			l.logger.Warn("auto mark-read failed",
				zap.Int64("chat_id", m.ChatID),
				zap.Error(err))
		} else if err := l.db.MarkChatRead(m.ChatID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) applyEdit(up tg.MessageEdited) error {
	stored, err := l.db.GetMessage(up.ChatID, up.ID)
	if err != nil {
		return err
	}
	// Chat kind is not carried on edit events; the id rule still applies.
	if l.rec.DecideEdit(stored, up.ChatID, "", up.EditTS) != Overwrite {
		l.dropped("edit", up.ChatID, up.ID)
		return nil
	}
	applied, err := l.db.ApplyEdit(up.ChatID, up.ID, up.Text, up.EditTS)
	if err != nil {
		return err
	}
	if applied {
		l.applied("edit", up.ChatID, up.ID)
	} else {
		l.dropped("edit", up.ChatID, up.ID)
	}
	return nil
}

func (l *Listener) applyDelete(up tg.MessageDeleted) error {
	at := up.At
	if at == 0 {
		at = time.Now().UnixMilli()
	}
	for _, id := range up.IDs {
		stored, err := l.db.GetMessage(up.ChatID, id)
		if err != nil {
			return err
		}
		if l.rec.DecideDelete(stored, up.ChatID, "") != Admit {
			l.dropped("delete", up.ChatID, id)
			continue
		}
		if err := l.db.ApplyDelete(up.ChatID, id, at); err != nil {
			return err
		}
		l.applied("delete", up.ChatID, id)
	}
	return nil
}

func (l *Listener) applied(what string, chatID, msgID int64) {
	l.bus.Publish(bus.Event{
		Kind:      bus.KindUpdateApplied,
		Timestamp: time.Now(),
		Payload:   bus.UpdateOutcome{What: what, ChatID: chatID, ID: msgID},
	})
}

func (l *Listener) dropped(what string, chatID, msgID int64) {
	l.bus.Publish(bus.Event{
		Kind:      bus.KindUpdateDropped,
		Timestamp: time.Now(),
		Payload:   bus.UpdateOutcome{What: what, ChatID: chatID, ID: msgID},
	})
}
