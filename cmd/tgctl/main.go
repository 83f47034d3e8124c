// tgctl is the short-lived command companion to the tgd daemon. Write
// commands go through the daemon's socket when one is running and fall
// back to direct store access under the exclusive lock otherwise; read
// commands query the archive snapshot directly.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caval92/tgd/internal/account"
	"github.com/caval92/tgd/internal/store"
)

var (
	accountFlag string
	driverFlag  string
	jsonOutput  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tgctl",
		Short:         "Query and control a tgd message archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", "", "account name (overrides config default)")
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "telegram", "remote-protocol driver")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(
		newSyncCmd(),
		newSendCmd(),
		newMarkReadCmd(),
		newPingCmd(),
		newStatusCmd(),
		newChatsCmd(),
		newHideCmd(),
		newMessagesCmd(),
		newSearchCmd(),
		newContactsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// activeAccount resolves and validates the account name for this invocation.
func activeAccount() (string, error) {
	name := account.Resolve(accountFlag)
	if err := account.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// openStoreRead opens the archive for querying without taking the
// exclusive lock; reads run against the last committed snapshot even
// while a daemon is writing.
func openStoreRead(name string) (*store.DB, error) {
	path := account.DBPath(name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no archive for account %q, run tgctl sync first", name)
	}
	return store.Open(path)
}

// openStoreWrite opens the archive for direct mutation, migrating if
// needed. The caller must hold the store lock.
func openStoreWrite(name string) (*store.DB, error) {
	if err := account.EnsureDir(name); err != nil {
		return nil, err
	}
	db, err := store.Open(account.DBPath(name))
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
