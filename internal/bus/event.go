package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core. Subscribers filter by prefix, so
// "sync." matches every sync progress event.
const (
	KindSyncChat      = "sync.chat"      // per-chat summary, Payload: ChatProgress
	KindSyncMessage   = "sync.message"   // per-message (streaming mode), Payload: MessageProgress
	KindSyncDone      = "sync.done"      // end of a sync cycle
	KindUpdateApplied = "update.applied" // live update admitted to the store
	KindUpdateDropped = "update.dropped" // live update rejected by the reconciler
	KindStatusChanged = "status.changed" // daemon state transition
)

// ChatProgress is the payload for per-chat sync summaries.
type ChatProgress struct {
	ChatID      int64
	NewMessages int
	Err         string
}

// UpdateOutcome is the payload for live-update applied/dropped events.
type UpdateOutcome struct {
	What   string // message, edit, delete
	ChatID int64
	ID     int64
}

// MessageProgress is the payload for per-message streaming output.
type MessageProgress struct {
	ChatID   int64
	ID       int64
	SenderID int64
	FromMe   bool
	TS       time.Time
	Text     string
}
