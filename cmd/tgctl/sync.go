package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/bus"
	"github.com/caval92/tgd/internal/config"
	"github.com/caval92/tgd/internal/lock"
	"github.com/caval92/tgd/internal/logging"
	intsync "github.com/caval92/tgd/internal/sync"
	"github.com/caval92/tgd/internal/tg"
)

func newSyncCmd() *cobra.Command {
	var (
		full     bool
		stream   bool
		markRead bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot sync of the account archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := activeAccount()
			if err != nil {
				return err
			}

			lk, err := lock.Acquire(account.Dir(name))
			if err != nil {
				if lock.IsHeld(err) {
					return fmt.Errorf("%w (a daemon syncs this account continuously)", err)
				}
				return err
			}
			defer func() { _ = lk.Release() }()

			cfg, err := config.Load(account.ConfigPath())
			if err != nil {
				return err
			}
			logger, err := logging.New(account.LogPath(name), name)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := openStoreWrite(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := tg.Open(ctx, driverFlag, tg.Options{
				Account:     name,
				SessionPath: account.SessionPath(name),
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			b := bus.New()
			rules := intsync.NewRules(cfg.Sync.IgnoreChats, cfg.Sync.IgnoreChannels)
			orch := intsync.NewOrchestrator(db, client, rules, b, logger, intsync.Config{
				BootstrapLimit: cfg.Sync.BootstrapLimit,
				Concurrency:    cfg.Sync.Concurrency,
			})

			var wg sync.WaitGroup
			if stream {
				events, unsub := b.Subscribe(bus.KindSyncMessage, 256)
				defer unsub()
				wg.Add(1)
				go func() {
					defer wg.Done()
					enc := json.NewEncoder(os.Stdout)
					for evt := range events {
						if mp, ok := evt.Payload.(bus.MessageProgress); ok {
							_ = enc.Encode(mp)
						}
					}
				}()
			}

			res, err := orch.Sync(ctx, intsync.Options{
				Full:     full,
				Stream:   stream,
				MarkRead: markRead,
			})
			if stream {
				// All events are buffered by now; close so the printer
				// drains and exits.
				b.Close()
				wg.Wait()
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(res)
				return nil
			}
			fmt.Printf("Synced %d chats, %d new messages\n", res.Chats, res.Messages)
			for _, f := range res.Failed {
				fmt.Printf("  failed: chat %d (%s): %v\n", f.ChatID, f.Name, f.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "reset checkpoints and re-bootstrap every chat")
	cmd.Flags().BoolVar(&stream, "stream", false, "print one JSON line per ingested message")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark fetched incoming messages as read")
	return cmd
}
