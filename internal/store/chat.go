package store

import (
	"database/sql"
	"time"
)

func upsertChatTx(tx *sql.Tx, c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := tx.Exec(`
		INSERT INTO chats (id, kind, name, username, archived, pinned, muted, last_message_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE chats.username END,
			archived = excluded.archived,
			pinned = excluded.pinned,
			muted = excluded.muted,
			last_message_ts = MAX(chats.last_message_ts, excluded.last_message_ts),
			updated_at = excluded.updated_at`,
		c.ID, c.Kind, c.Name, c.Username, c.Archived, c.Pinned, c.Muted, c.LastMessageTS, now)
	return err
}

// ensureChatTx records a chat known only from a push event. Push events
// carry the chat's identity and possibly a name, not the authoritative
// flag state the dialog list has, so the conflict clause leaves
// archived/pinned/muted alone.
func ensureChatTx(tx *sql.Tx, c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := tx.Exec(`
		INSERT INTO chats (id, kind, name, username, archived, pinned, muted, last_message_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE chats.username END,
			last_message_ts = MAX(chats.last_message_ts, excluded.last_message_ts),
			updated_at = excluded.updated_at`,
		c.ID, c.Kind, c.Name, c.Username, c.Archived, c.Pinned, c.Muted, c.LastMessageTS, now)
	return err
}

// UpsertChat inserts or updates a chat record. Sync never clears a chat's
// name, never deletes a chat and never moves last_message_ts backwards.
func (db *DB) UpsertChat(c *Chat) error {
	return db.withWrite(func(tx *sql.Tx) error {
		return upsertChatTx(tx, c)
	})
}

// HideChat soft-deletes a chat locally. The remote side is untouched and
// a later sync will not resurrect visibility.
func (db *DB) HideChat(id int64) error {
	return db.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE chats SET hidden = 1, updated_at = ? WHERE id = ?`,
			time.Now().UnixMilli(), id)
		return err
	})
}

// MarkChatRead advances a chat's read watermark. Like checkpoints it is
// monotonic; a stale receipt cannot move it backwards.
func (db *DB) MarkChatRead(chatID, maxID int64) error {
	return db.withWrite(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE chats SET last_read_id = MAX(last_read_id, ?), updated_at = ?
			WHERE id = ?`,
			maxID, time.Now().UnixMilli(), chatID)
		return err
	})
}

// ListChats returns visible chats sorted by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, kind, name, username, archived, pinned, muted, hidden, last_read_id, last_message_ts
		FROM chats
		WHERE hidden = 0
		ORDER BY last_message_ts DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Kind, &c.Name, &c.Username, &c.Archived, &c.Pinned, &c.Muted, &c.Hidden, &c.LastReadID, &c.LastMessageTS); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, hidden or not.
func (db *DB) GetChat(id int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, kind, name, username, archived, pinned, muted, hidden, last_read_id, last_message_ts
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Kind, &c.Name, &c.Username, &c.Archived, &c.Pinned, &c.Muted, &c.Hidden, &c.LastReadID, &c.LastMessageTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
