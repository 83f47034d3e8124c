package store

// SearchMessages performs a full-text search on message bodies. Results
// are ordered most relevant first; ties break toward the newest message id.
// chatID and senderID of 0 mean no filter.
func (db *DB) SearchMessages(query string, chatID, senderID int64, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.chat_id, m.id, m.sender_id, m.ts, m.edit_ts, m.from_me,
		       m.text, m.media_type, m.reply_to_id, m.topic_id,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ? AND m.deleted = 0`

	args := []any{query}
	if chatID != 0 {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	if senderID != 0 {
		q += " AND m.sender_id = ?"
		args = append(args, senderID)
	}
	q += " ORDER BY rank, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ChatID, &r.Message.ID, &r.Message.SenderID,
			&r.Message.TS, &r.Message.EditTS, &r.Message.FromMe,
			&r.Message.Text, &r.Message.MediaType, &r.Message.ReplyToID,
			&r.Message.TopicID, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
