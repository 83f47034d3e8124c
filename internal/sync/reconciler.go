package sync

import (
	"github.com/caval92/tgd/internal/store"
)

// Action is the reconciler's verdict for an incoming record.
type Action int

const (
	// Drop discards the incoming record.
	Drop Action = iota
	// Admit writes the incoming record as a new row.
	Admit
	// Overwrite updates the stored row in place.
	Overwrite
)

func (a Action) String() string {
	switch a {
	case Admit:
		return "admit"
	case Overwrite:
		return "overwrite"
	default:
		return "drop"
	}
}

// Reconciler is the merge policy between live events and backfill results.
// Given the current stored row and an incoming record it returns a pure
// decision; it performs no I/O, so the policy is testable without a
// network or a database.
//
// The rules, in order: ignored chats admit nothing; identity wins over
// arrival order (a row already stored under the same (chat_id, id) makes
// a new-message event a no-op, whichever path got there first); edits are
// last-writer-wins by edit timestamp, not arrival order; a tombstone is
// terminal.
type Reconciler struct {
	rules *Rules
}

// NewReconciler creates a reconciler with the given ignore rules.
func NewReconciler(rules *Rules) *Reconciler {
	return &Reconciler{rules: rules}
}

// DecideMessage judges an incoming new-message record against the stored
// row with the same identity (nil if none).
func (r *Reconciler) DecideMessage(stored *store.Message, incoming *store.Message, kind store.ChatKind) Action {
	if r.rules.Ignored(incoming.ChatID, kind) {
		return Drop
	}
	if stored != nil {
		// Duplicate identity: whichever of live and backfill arrived
		// first owns the row. Includes tombstones.
		return Drop
	}
	return Admit
}

// DecideEdit judges an incoming edit against the stored row.
func (r *Reconciler) DecideEdit(stored *store.Message, chatID int64, kind store.ChatKind, editTS int64) Action {
	if r.rules.Ignored(chatID, kind) {
		return Drop
	}
	if stored == nil {
		// Nothing to edit yet; backfill will fetch the post-edit text.
		return Drop
	}
	if stored.Deleted {
		return Drop
	}
	if stored.EditTS >= editTS {
		return Drop
	}
	return Overwrite
}

// DecideDelete judges an incoming deletion against the stored row.
// Deletion is idempotent: re-deleting a tombstone is a silent no-op.
func (r *Reconciler) DecideDelete(stored *store.Message, chatID int64, kind store.ChatKind) Action {
	if r.rules.Ignored(chatID, kind) {
		return Drop
	}
	if stored != nil && stored.Deleted {
		return Drop
	}
	return Admit
}
