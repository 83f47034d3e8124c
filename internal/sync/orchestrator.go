package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caval92/tgd/internal/bus"
	"github.com/caval92/tgd/internal/store"
	"github.com/caval92/tgd/internal/tg"
)

// fetchPageSize bounds a single history request.
const fetchPageSize = 100

// Config holds orchestrator tuning.
type Config struct {
	// BootstrapLimit bounds how many recent messages are fetched per chat
	// the first time that chat is synced.
	BootstrapLimit int
	// Concurrency bounds how many chats are fetched at once.
	Concurrency int
}

// Options selects the behavior of one sync cycle.
type Options struct {
	// Full resets checkpoints and re-bootstraps every chat.
	Full bool
	// Stream publishes one bus event per ingested message.
	Stream bool
	// MarkRead acknowledges newly fetched incoming messages on the remote.
	MarkRead bool
}

// ChatResult is one chat's outcome within a sync cycle.
type ChatResult struct {
	ChatID      int64
	Name        string
	NewMessages int
	Err         error
}

// Result summarizes a sync cycle. Failed chats never abort their
// siblings; each chat's progress commits independently.
type Result struct {
	Chats    int
	Messages int
	Failed   []ChatResult
}

// Orchestrator drives bootstrap and incremental fetch cycles against the
// remote client, writing through the store and advancing checkpoints.
type Orchestrator struct {
	db     *store.DB
	client tg.Client
	rules  *Rules
	bus    *bus.Bus
	logger *zap.Logger
	cfg    Config
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(db *store.DB, client tg.Client, rules *Rules, b *bus.Bus, logger *zap.Logger, cfg Config) *Orchestrator {
	if cfg.BootstrapLimit <= 0 {
		cfg.BootstrapLimit = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		db:     db,
		client: client,
		rules:  rules,
		bus:    b,
		logger: logger,
		cfg:    cfg,
	}
}

// Sync runs one full cycle: list chats, refresh contacts, then bootstrap
// or incrementally fetch each non-ignored chat. Ignored chats are skipped
// before fetch dispatch, not fetched and discarded.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (*Result, error) {
	var chats []*store.Chat
	err := withRetry(ctx, o.logger, "list_chats", func() error {
		var err error
		chats, err = o.client.ListChats(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	o.refreshContacts(ctx)

	res := &Result{}
	var mu stdsync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, chat := range chats {
		if o.rules.Ignored(chat.ID, chat.Kind) {
			continue
		}
		chat := chat
		g.Go(func() error {
			n, cerr := o.syncChat(gctx, chat, opts)

			mu.Lock()
			res.Chats++
			res.Messages += n
			if cerr != nil {
				res.Failed = append(res.Failed, ChatResult{ChatID: chat.ID, Name: chat.Name, NewMessages: n, Err: cerr})
			}
			mu.Unlock()

			progress := bus.ChatProgress{ChatID: chat.ID, NewMessages: n}
			if cerr != nil {
				progress.Err = cerr.Error()
				o.logger.Warn("chat sync failed",
					zap.Int64("chat_id", chat.ID),
					zap.Error(cerr))
			}
			o.bus.Publish(bus.Event{Kind: bus.KindSyncChat, Timestamp: time.Now(), Payload: progress})

			// Only auth expiry aborts siblings; everything else is
			// collected per chat.
			if cerr != nil && tg.IsAuthExpired(cerr) {
				return cerr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	o.bus.Publish(bus.Event{Kind: bus.KindSyncDone, Timestamp: time.Now(), Payload: *res})
	return res, nil
}

// refreshContacts replaces the contact mirror wholesale. Contact failures
// never abort a sync cycle.
func (o *Orchestrator) refreshContacts(ctx context.Context) {
	contacts, err := o.client.ListContacts(ctx)
	if err != nil {
		o.logger.Warn("contact refresh failed", zap.Error(err))
		return
	}
	if err := o.db.ReplaceContacts(contacts); err != nil {
		o.logger.Warn("contact store failed", zap.Error(err))
	}
}

func (o *Orchestrator) syncChat(ctx context.Context, chat *store.Chat, opts Options) (int, error) {
	if opts.Full {
		if err := o.db.ResetCheckpoint(chat.ID); err != nil {
			return 0, err
		}
	}
	cp, err := o.db.Checkpoint(chat.ID)
	if err != nil {
		return 0, err
	}
	if cp == nil || !cp.Bootstrapped {
		return o.bootstrapChat(ctx, chat, opts)
	}
	return o.incrementalChat(ctx, chat, cp, opts)
}

// ackIncoming acknowledges the newly fetched incoming messages as read,
// remote first, then the local read watermark.
func (o *Orchestrator) ackIncoming(ctx context.Context, chatID int64, msgs []*store.Message) {
	var ids []int64
	var maxID int64
	for _, m := range msgs {
		if m.FromMe {
			continue
		}
		ids = append(ids, m.ID)
		if m.ID > maxID {
			maxID = m.ID
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := o.client.MarkRead(ctx, chatID, ids); err != nil {
		o.logger.Warn("mark-read after sync failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return
	}
	if err := o.db.MarkChatRead(chatID, maxID); err != nil {
		o.logger.Warn("record read state failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func (o *Orchestrator) fetchPage(ctx context.Context, chatID, beforeID int64, limit int) ([]*store.Message, error) {
	var page []*store.Message
	err := withRetry(ctx, o.logger, "fetch_history", func() error {
		var err error
		page, err = o.client.FetchHistory(ctx, chatID, beforeID, limit)
		return err
	})
	return page, err
}

// bootstrapChat fetches the most recent BootstrapLimit messages of a chat
// that has no usable checkpoint yet, then sets the checkpoint to the
// newest fetched id and marks bootstrap complete.
func (o *Orchestrator) bootstrapChat(ctx context.Context, chat *store.Chat, opts Options) (int, error) {
	limit := o.cfg.BootstrapLimit
	var msgs []*store.Message
	beforeID := int64(0)

	for len(msgs) < limit {
		page, err := o.fetchPage(ctx, chat.ID, beforeID, min(fetchPageSize, limit-len(msgs)))
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			break
		}
		msgs = append(msgs, page...)
		beforeID = page[len(page)-1].ID
	}

	return o.ingest(ctx, chat, msgs, opts)
}

// incrementalChat fetches only messages newer than the checkpoint,
// paginating until the remote runs out of new data.
func (o *Orchestrator) incrementalChat(ctx context.Context, chat *store.Chat, cp *store.Checkpoint, opts Options) (int, error) {
	var msgs []*store.Message
	beforeID := int64(0)

	for {
		page, err := o.fetchPage(ctx, chat.ID, beforeID, fetchPageSize)
		if err != nil {
			return 0, err
		}
		if len(page) == 0 {
			break
		}
		reached := false
		for _, m := range page {
			if m.ID <= cp.LastMessageID {
				reached = true
				break
			}
			msgs = append(msgs, m)
		}
		if reached {
			break
		}
		beforeID = page[len(page)-1].ID
	}

	if len(msgs) == 0 {
		// Nothing new: checkpoint untouched, but renames and flag changes
		// from the dialog list still land.
		return 0, o.db.UpsertChat(chat)
	}
	return o.ingest(ctx, chat, msgs, opts)
}

// ingest commits one chat's fetched messages and the checkpoint that
// accounts for them as a single transaction. The checkpoint never
// advances past what was durably written.
func (o *Orchestrator) ingest(ctx context.Context, chat *store.Chat, msgs []*store.Message, opts Options) (int, error) {
	cp := &store.Checkpoint{ChatID: chat.ID, Bootstrapped: true}
	for _, m := range msgs {
		if m.ID > cp.LastMessageID {
			cp.LastMessageID = m.ID
			cp.LastMessageTS = m.TS
		}
	}
	chat.LastMessageTS = cp.LastMessageTS

	inserted, err := o.db.IngestBatch(&store.Batch{
		Chat:       chat,
		Messages:   msgs,
		Checkpoint: cp,
	})
	if err != nil {
		return 0, fmt.Errorf("ingest chat %d: %w", chat.ID, err)
	}

	if opts.Stream {
		for _, m := range msgs {
			o.bus.Publish(bus.Event{
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
		}
	}
	if opts.MarkRead {
		o.ackIncoming(ctx, chat.ID, msgs)
	}
	return inserted, nil
}
