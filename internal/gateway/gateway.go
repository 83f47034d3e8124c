// Package gateway executes send and mark-read commands on behalf of IPC
// clients, against the same remote client and store the sync engine uses.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caval92/tgd/internal/store"
	"github.com/caval92/tgd/internal/tg"
)

// Gateway applies IPC-originated writes under the store's single writer
// discipline. Sends are recorded locally right after the remote confirms
// them, so the outgoing message is queryable without waiting for the next
// sync cycle. The fetch checkpoint is never touched here: it attests that
// everything up to it was fetched, which a single sent message cannot
// claim. Backfill re-reaches the row and dedups on identity.
type Gateway struct {
	db     *store.DB
	client tg.Client
	logger *zap.Logger
}

// New creates a gateway.
func New(db *store.DB, client tg.Client, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, client: client, logger: logger.Named("gateway")}
}

// Ping answers liveness with a snapshot read. It must return promptly
// even while a long sync write transaction is in flight.
func (g *Gateway) Ping(ctx context.Context) error {
	if _, err := g.db.ChatCount(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// SendText sends a message and records it locally as from_me.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	if text == "" {
		return 0, fmt.Errorf("empty message")
	}

	id, err := g.client.SendText(ctx, chatID, text)
	if err != nil {
		return 0, fmt.Errorf("send to chat %d: %w", chatID, err)
	}

	now := time.Now().UnixMilli()
	_, err = g.db.IngestBatch(&store.Batch{
		Messages: []*store.Message{{
			ChatID: chatID,
			ID:     id,
			TS:     now,
			FromMe: true,
			Text:   text,
		}},
	})
	if err != nil {
		// The remote accepted the message; backfill will pick it up.
		g.logger.Warn("sent message not recorded locally",
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", id),
			zap.Error(err))
	}

	g.logger.Info("message sent",
		zap.Int64("chat_id", chatID),
		zap.Int64("message_id", id))
	return id, nil
}

// MarkRead acknowledges messages on the remote and mirrors the read
// watermark locally.
func (g *Gateway) MarkRead(ctx context.Context, chatID int64, msgIDs []int64) error {
	if err := g.client.MarkRead(ctx, chatID, msgIDs); err != nil {
		return fmt.Errorf("mark read in chat %d: %w", chatID, err)
	}
	var maxID int64
	for _, id := range msgIDs {
		if id > maxID {
			maxID = id
		}
	}
	if err := g.db.MarkChatRead(chatID, maxID); err != nil {
		return fmt.Errorf("record read state: %w", err)
	}
	g.logger.Info("marked read",
		zap.Int64("chat_id", chatID),
		zap.Int("count", len(msgIDs)))
	return nil
}
