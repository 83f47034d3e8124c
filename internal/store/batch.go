package store

import "database/sql"

// Batch is one chat's worth of fetched history plus the checkpoint that
// accounts for it. ChatPartial marks the chat as coming from a push
// event rather than the dialog list; its flag fields are not
// authoritative and must not clobber stored state.
type Batch struct {
	Chat        *Chat
	ChatPartial bool
	Messages    []*Message
	Checkpoint  *Checkpoint
}

// IngestBatch commits a chat upsert, its message inserts and the matching
// checkpoint advance as one transaction. A crash can never leave a
// checkpoint ahead of the rows it accounts for, and a reader never
// observes the advance without the messages. Duplicate identities are
// skipped, not overwritten. Returns the number of rows actually inserted.
func (db *DB) IngestBatch(b *Batch) (int, error) {
	inserted := 0
	err := db.withWrite(func(tx *sql.Tx) error {
		if b.Chat != nil {
			upsert := upsertChatTx
			if b.ChatPartial {
				upsert = ensureChatTx
			}
			if err := upsert(tx, b.Chat); err != nil {
				return err
			}
		}
		for _, m := range b.Messages {
			ok, err := insertMessageTx(tx, m)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		if b.Checkpoint != nil {
			if err := advanceCheckpointTx(tx, b.Checkpoint); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
