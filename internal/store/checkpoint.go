package store

import (
	"database/sql"
	"time"
)

func advanceCheckpointTx(tx *sql.Tx, cp *Checkpoint) error {
	// MAX in the conflict clause keeps the watermark monotonic: a stale
	// advance can never move a checkpoint backwards.
	now := time.Now().UnixMilli()
	_, err := tx.Exec(`
		INSERT INTO checkpoints (chat_id, last_message_id, last_message_ts, bootstrapped, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_id = MAX(checkpoints.last_message_id, excluded.last_message_id),
			last_message_ts = MAX(checkpoints.last_message_ts, excluded.last_message_ts),
			bootstrapped = MAX(checkpoints.bootstrapped, excluded.bootstrapped),
			updated_at = excluded.updated_at`,
		cp.ChatID, cp.LastMessageID, cp.LastMessageTS, cp.Bootstrapped, now)
	return err
}

// AdvanceCheckpoint moves a chat's checkpoint forward. Advancing to a value
// at or below the current watermark is a no-op.
func (db *DB) AdvanceCheckpoint(cp *Checkpoint) error {
	return db.withWrite(func(tx *sql.Tx) error {
		return advanceCheckpointTx(tx, cp)
	})
}

// MarkBootstrapped flags a chat's first full sync as complete without
// moving the watermark.
func (db *DB) MarkBootstrapped(chatID int64) error {
	return db.withWrite(func(tx *sql.Tx) error {
		return advanceCheckpointTx(tx, &Checkpoint{ChatID: chatID, Bootstrapped: true})
	})
}

// Checkpoint returns the checkpoint for a chat, or nil if the chat has
// never been synced.
func (db *DB) Checkpoint(chatID int64) (*Checkpoint, error) {
	var cp Checkpoint
	err := db.QueryRow(`
		SELECT chat_id, last_message_id, last_message_ts, bootstrapped
		FROM checkpoints WHERE chat_id = ?`, chatID).
		Scan(&cp.ChatID, &cp.LastMessageID, &cp.LastMessageTS, &cp.Bootstrapped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// ResetCheckpoint removes a chat's checkpoint so the next sync bootstraps
// it from scratch. This is the only path that moves a watermark backwards
// and it only runs on an explicit full resync.
func (db *DB) ResetCheckpoint(chatID int64) error {
	return db.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM checkpoints WHERE chat_id = ?`, chatID)
		return err
	})
}

// ResetAllCheckpoints removes every checkpoint (full resync of the account).
func (db *DB) ResetAllCheckpoints() error {
	return db.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM checkpoints`)
		return err
	})
}
