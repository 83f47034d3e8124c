package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/gateway"
	"github.com/caval92/tgd/internal/ipc"
	"github.com/caval92/tgd/internal/lock"
	"github.com/caval92/tgd/internal/logging"
	"github.com/caval92/tgd/internal/tg"
)

const ipcTimeout = 30 * time.Second

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat-id> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			text := strings.Join(args[1:], " ")

			name, err := activeAccount()
			if err != nil {
				return err
			}

			// Daemon first: it owns the store while running.
			socket := account.SocketPath(name)
			if c, err := ipc.Dial(socket); err == nil {
				defer func() { _ = c.Close() }()
				id, err := c.SendText(chatID, text, ipcTimeout)
				if err != nil {
					return err
				}
				reportSent(id)
				return nil
			}

			id, err := directWrite(cmd.Context(), name, func(ctx context.Context, gw *gateway.Gateway) (int64, error) {
				return gw.SendText(ctx, chatID, text)
			})
			if err != nil {
				return err
			}
			reportSent(id)
			return nil
		},
	}
}

func newMarkReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-read <chat-id> <message-id>...",
		Short: "Mark messages as read",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			var msgIDs []int64
			for _, a := range args[1:] {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid message id %q", a)
				}
				msgIDs = append(msgIDs, id)
			}

			name, err := activeAccount()
			if err != nil {
				return err
			}

			socket := account.SocketPath(name)
			if c, err := ipc.Dial(socket); err == nil {
				defer func() { _ = c.Close() }()
				if err := c.MarkRead(chatID, msgIDs, ipcTimeout); err != nil {
					return err
				}
				reportOK()
				return nil
			}

			_, err = directWrite(cmd.Context(), name, func(ctx context.Context, gw *gateway.Gateway) (int64, error) {
				return 0, gw.MarkRead(ctx, chatID, msgIDs)
			})
			if err != nil {
				return err
			}
			reportOK()
			return nil
		},
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether a daemon is answering for the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := activeAccount()
			if err != nil {
				return err
			}
			c, err := ipc.Dial(account.SocketPath(name))
			if err != nil {
				return fmt.Errorf("no daemon running for account %q", name)
			}
			defer func() { _ = c.Close() }()
			if err := c.Ping(ipcTimeout); err != nil {
				return err
			}
			if jsonOutput {
				printJSON(map[string]bool{"ok": true})
			} else {
				fmt.Println("pong")
			}
			return nil
		},
	}
}

func newHideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hide <chat-id>",
		Short: "Hide a chat locally (the remote side is untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			name, err := activeAccount()
			if err != nil {
				return err
			}
			lk, err := lock.Acquire(account.Dir(name))
			if err != nil {
				return err
			}
			defer func() { _ = lk.Release() }()

			db, err := openStoreWrite(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.HideChat(chatID); err != nil {
				return err
			}
			reportOK()
			return nil
		},
	}
}

// directWrite executes a gateway operation without a daemon, holding the
// exclusive store lock for the duration. A held lock surfaces as store
// busy; the command never writes around it.
func directWrite(ctx context.Context, name string, op func(context.Context, *gateway.Gateway) (int64, error)) (int64, error) {
	lk, err := lock.Acquire(account.Dir(name))
	if err != nil {
		return 0, err
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.New(account.LogPath(name), name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = logger.Sync() }()

	db, err := openStoreWrite(name)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	client, err := tg.Open(ctx, driverFlag, tg.Options{
		Account:     name,
		SessionPath: account.SessionPath(name),
		Logger:      logger,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Close() }()

	return op(ctx, gateway.New(db, client, logger))
}

func reportSent(id int64) {
	if jsonOutput {
		printJSON(map[string]any{"ok": true, "message_id": id})
		return
	}
	fmt.Printf("sent, message id %d\n", id)
}

func reportOK() {
	if jsonOutput {
		printJSON(map[string]bool{"ok": true})
		return
	}
	fmt.Println("ok")
}
