package sync

import (
	"sync"

	"github.com/caval92/tgd/internal/store"
)

// Rules is the set of chats excluded from ingestion. Rules are applied at
// ingestion time on every path (bootstrap, incremental, live), never at
// query time: once a rule exists, no new rows are written for the chat,
// while rows ingested before the rule remain queryable.
type Rules struct {
	mu       sync.RWMutex
	chats    map[int64]struct{}
	channels bool
}

// NewRules builds an ignore set from chat ids plus an optional
// all-channels rule.
func NewRules(chatIDs []int64, ignoreChannels bool) *Rules {
	r := &Rules{
		chats:    make(map[int64]struct{}, len(chatIDs)),
		channels: ignoreChannels,
	}
	for _, id := range chatIDs {
		r.chats[id] = struct{}{}
	}
	return r
}

// Add excludes a chat from ingestion from this point on.
func (r *Rules) Add(chatID int64) {
	r.mu.Lock()
	r.chats[chatID] = struct{}{}
	r.mu.Unlock()
}

// Ignored reports whether a chat is excluded. An empty kind means the
// kind is unknown at the call site; only the id rule applies then.
func (r *Rules) Ignored(chatID int64, kind store.ChatKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.chats[chatID]; ok {
		return true
	}
	return r.channels && kind == store.KindChannel
}
