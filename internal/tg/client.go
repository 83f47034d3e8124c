// Package tg defines the contract for the remote-protocol client: the
// operations the sync engine, listener and gateway consume, the push
// update variants, and the error taxonomy the core classifies remote
// failures into. Concrete transports register as drivers; the core never
// depends on a specific wire implementation.
package tg

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/caval92/tgd/internal/store"
	"go.uber.org/zap"
)

// Client is the remote account surface consumed by the core. All calls
// honor ctx cancellation and deadlines; exceeding a deadline is a
// transient failure subject to the caller's retry policy.
type Client interface {
	// ListChats returns the account's dialogs, most recent first.
	ListChats(ctx context.Context) ([]*store.Chat, error)
	// ListContacts returns the full contact list for wholesale refresh.
	ListContacts(ctx context.Context) ([]store.Contact, error)
	// FetchHistory returns up to limit messages of a chat with id < beforeID,
	// newest first. beforeID of 0 starts from the newest message. An empty
	// page signals no more history.
	FetchHistory(ctx context.Context, chatID, beforeID int64, limit int) ([]*store.Message, error)
	// Subscribe opens the live push stream. The returned stream stays open
	// until Close or a transport failure; the caller reconnects.
	Subscribe(ctx context.Context) (UpdateStream, error)
	// SendText sends a text message and returns the server-assigned message id.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	// MarkRead acknowledges the given messages as read.
	MarkRead(ctx context.Context, chatID int64, msgIDs []int64) error
	Close() error
}

// UpdateStream is one live push subscription.
type UpdateStream interface {
	// Updates yields push events until the stream ends. The channel closes
	// on stream teardown; Err reports why.
	Updates() <-chan Update
	Err() error
	Close() error
}

// Options configures a driver when opening a client.
type Options struct {
	Account     string
	SessionPath string
	Logger      *zap.Logger
}

// Driver constructs a concrete client for an account.
type Driver func(ctx context.Context, opts Options) (Client, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a transport available under the given name. It follows
// the database/sql driver convention: call from the transport package's
// init, panic on duplicates.
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("tg: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("tg: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs a client using a registered driver.
func Open(ctx context.Context, name string, opts Options) (Client, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tg: unknown driver %q (registered: %v)", name, Drivers())
	}
	return d(ctx, opts)
}
