package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/ipc"
	"github.com/caval92/tgd/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and archive status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := activeAccount()
			if err != nil {
				return err
			}

			daemonUp := ipc.Available(account.SocketPath(name))

			var chats, messages int64
			if db, err := openStoreRead(name); err == nil {
				chats, _ = db.ChatCount()
				messages, _ = db.MessageCount()
				_ = db.Close()
			}

			if jsonOutput {
				printJSON(map[string]any{
					"account":  name,
					"daemon":   daemonUp,
					"chats":    chats,
					"messages": messages,
				})
				return nil
			}
			state := "stopped"
			if daemonUp {
				state = "running"
			}
			fmt.Printf("Account:  %s\n", name)
			fmt.Printf("Daemon:   %s\n", state)
			fmt.Printf("Chats:    %d\n", chats)
			fmt.Printf("Messages: %d\n", messages)
			return nil
		},
	}
}

func newChatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List archived chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := activeAccount()
			if err != nil {
				return err
			}
			db, err := openStoreRead(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			chats, err := db.ListChats(limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(chats)
				return nil
			}
			if len(chats) == 0 {
				fmt.Println("No chats archived.")
				return nil
			}
			for _, c := range chats {
				title := c.Name
				if title == "" {
					title = "@" + c.Username
				}
				fmt.Printf("%-14d %-8s %-30s %s\n", c.ID, c.Kind, title, formatTS(c.LastMessageTS))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum chats to list")
	return cmd
}

func newMessagesCmd() *cobra.Command {
	var (
		before int64
		after  int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "List a chat's messages in chronological order",
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
			db, err := openStoreRead(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			msgs, err := db.ListMessages(chatID, before, after, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(msgs)
				return nil
			}
			for _, m := range msgs {
				printMessage(&m, "")
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&before, "before", 0, "only messages with id below this")
	cmd.Flags().Int64Var(&after, "after", 0, "only messages with id above this")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to list")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		chatID   int64
		senderID int64
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search over archived messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			name, err := activeAccount()
			if err != nil {
				return err
			}
			db, err := openStoreRead(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			results, err := db.SearchMessages(query, chatID, senderID, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(results)
				return nil
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				printMessage(&r.Message, r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "restrict to one chat")
	cmd.Flags().Int64Var(&senderID, "sender", 0, "restrict to one sender")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}

func newContactsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "contacts <query>",
		Short: "Search synced contacts by name, username or phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := activeAccount()
			if err != nil {
				return err
			}
			db, err := openStoreRead(name)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			contacts, err := db.SearchContacts(args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(contacts)
				return nil
			}
			if len(contacts) == 0 {
				fmt.Println("No contacts found.")
				return nil
			}
			for _, c := range contacts {
				fmt.Printf("%-14d %-20s @%-16s %s\n", c.UserID,
					strings.TrimSpace(c.FirstName+" "+c.LastName), c.Username, c.Phone)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum contacts to list")
	return cmd
}

func printMessage(m *store.Message, snippet string) {
	who := strconv.FormatInt(m.SenderID, 10)
	if m.FromMe {
		who = "me"
	}
	text := m.Text
	if snippet != "" {
		text = snippet
	}
	if m.MediaType != "" {
		text = "[" + m.MediaType + "] " + text
	}
	fmt.Printf("%s  %-8d %-12s %s\n", formatTS(m.TS), m.ID, who, text)
}

func formatTS(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return time.UnixMilli(millis).Local().Format("2006-01-02 15:04")
}
