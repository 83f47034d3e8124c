package store

import (
	"database/sql"
	"time"
)

func insertMessageTx(tx *sql.Tx, m *Message) (bool, error) {
	res, err := tx.Exec(`
		INSERT INTO messages (chat_id, id, sender_id, ts, edit_ts, from_me, text, media_type, reply_to_id, topic_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, id) DO NOTHING`,
		m.ChatID, m.ID, m.SenderID, m.TS, m.EditTS, m.FromMe, m.Text, m.MediaType, m.ReplyToID, m.TopicID, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertMessage inserts a message if its identity (chat_id, id) is not
// already present. A duplicate is a no-op, not an error: the row written
// first wins, whether it came from backfill or a live update, and a
// tombstone blocks re-insertion. Returns whether a row was inserted.
func (db *DB) InsertMessage(m *Message) (bool, error) {
	var inserted bool
	err := db.withWrite(func(tx *sql.Tx) error {
		var err error
		inserted, err = insertMessageTx(tx, m)
		return err
	})
	return inserted, err
}

func applyEditTx(tx *sql.Tx, chatID, msgID int64, text string, editTS int64) (bool, error) {
	// Last-writer-wins by edit timestamp, enforced in the predicate so an
	// out-of-order older edit can never clobber a newer one. Tombstones
	// are terminal.
	res, err := tx.Exec(`
		UPDATE messages SET text = ?, edit_ts = ?
		WHERE chat_id = ? AND id = ? AND deleted = 0 AND edit_ts < ?`,
		text, editTS, chatID, msgID, editTS)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ApplyEdit updates a message's text in place if editTS is newer than the
// stored edit timestamp. Returns whether the edit was applied.
func (db *DB) ApplyEdit(chatID, msgID int64, text string, editTS int64) (bool, error) {
	var applied bool
	err := db.withWrite(func(tx *sql.Tx) error {
		var err error
		applied, err = applyEditTx(tx, chatID, msgID, text, editTS)
		return err
	})
	return applied, err
}

func applyDeleteTx(tx *sql.Tx, chatID, msgID int64, at int64) error {
	// Upsert so the tombstone exists even when the row was never stored:
	// an in-flight backfill page must not resurrect a deleted message.
	_, err := tx.Exec(`
		INSERT INTO messages (chat_id, id, ts, deleted, deleted_at, created_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(chat_id, id) DO UPDATE SET
			text = '',
			media_type = '',
			deleted = 1,
			deleted_at = excluded.deleted_at`,
		chatID, msgID, at, at, time.Now().UnixMilli())
	return err
}

// ApplyDelete tombstones a message. Tombstones are terminal: later new
// message or edit events for the same identity are dropped.
func (db *DB) ApplyDelete(chatID, msgID int64, at int64) error {
	return db.withWrite(func(tx *sql.Tx) error {
		return applyDeleteTx(tx, chatID, msgID, at)
	})
}

// PurgeTombstones removes tombstone rows whose deletion happened before
// the given unix-milli horizon. With a zero or negative horizon nothing
// is purged; tombstones are retained indefinitely by default.
func (db *DB) PurgeTombstones(olderThan int64) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	var purged int64
	err := db.withWrite(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM messages WHERE deleted = 1 AND deleted_at < ?`, olderThan)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	return purged, err
}

// GetMessage returns a message by identity, including tombstones.
func (db *DB) GetMessage(chatID, msgID int64) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT chat_id, id, sender_id, ts, edit_ts, from_me, text, media_type, reply_to_id, topic_id, deleted, deleted_at
		FROM messages WHERE chat_id = ? AND id = ?`, chatID, msgID).
		Scan(&m.ChatID, &m.ID, &m.SenderID, &m.TS, &m.EditTS, &m.FromMe, &m.Text, &m.MediaType, &m.ReplyToID, &m.TopicID, &m.Deleted, &m.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns non-tombstoned messages for a chat using keyset
// pagination by message id. beforeID/afterID of 0 mean unbounded. Results
// are in ascending id order.
func (db *DB) ListMessages(chatID int64, beforeID, afterID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT chat_id, id, sender_id, ts, edit_ts, from_me, text, media_type, reply_to_id, topic_id, deleted, deleted_at
		FROM messages
		WHERE chat_id = ? AND deleted = 0`
	args := []any{chatID}
	if afterID > 0 {
		q += " AND id > ?"
		args = append(args, afterID)
	}
	if beforeID > 0 {
		q += " AND id < ?"
		args = append(args, beforeID)
	}
	// Newest window first, then flipped to chronological order below.
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ChatID, &m.ID, &m.SenderID, &m.TS, &m.EditTS, &m.FromMe, &m.Text, &m.MediaType, &m.ReplyToID, &m.TopicID, &m.Deleted, &m.DeletedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the total number of stored messages, tombstones included.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
