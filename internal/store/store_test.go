package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func msg(chatID, id int64, text string) *Message {
	return &Message{
		ChatID:   chatID,
		ID:       id,
		SenderID: 500,
		TS:       id * 1000,
		Text:     text,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a clean no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	inserted, err := db.InsertMessage(msg(7, 105, "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted")
	}

	// Same identity again, different text: must be a silent no-op.
	inserted, err = db.InsertMessage(msg(7, 105, "other text"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert should report not inserted")
	}

	got, err := db.GetMessage(7, 105)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "hello" {
		t.Errorf("text = %q, first writer should win", got.Text)
	}

	count, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("message count = %d, want 1", count)
	}
}

func TestApplyEditOrdering(t *testing.T) {
	db := testDB(t)
	if _, err := db.InsertMessage(msg(1, 10, "original")); err != nil {
		t.Fatal(err)
	}

	applied, err := db.ApplyEdit(1, 10, "second", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Fatal("newer edit should apply")
	}

	// Older edit arriving late must not clobber the newer one.
	applied, err = db.ApplyEdit(1, 10, "first", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("older edit should be dropped")
	}

	got, _ := db.GetMessage(1, 10)
	if got.Text != "second" || got.EditTS != 2000 {
		t.Errorf("got text=%q edit_ts=%d, want second/2000", got.Text, got.EditTS)
	}
}

func TestApplyEditMissingRow(t *testing.T) {
	db := testDB(t)
	applied, err := db.ApplyEdit(1, 999, "ghost", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("edit of a missing row should be a no-op")
	}
}

func TestTombstoneTerminal(t *testing.T) {
	db := testDB(t)
	if _, err := db.InsertMessage(msg(3, 50, "doomed")); err != nil {
		t.Fatal(err)
	}
	if err := db.ApplyDelete(3, 50, 5000); err != nil {
		t.Fatal(err)
	}

	got, _ := db.GetMessage(3, 50)
	if !got.Deleted || got.DeletedAt != 5000 {
		t.Fatalf("row not tombstoned: %+v", got)
	}
	if got.Text != "" {
		t.Error("tombstone should clear text")
	}

	// A late backfill page must not resurrect the message.
	inserted, err := db.InsertMessage(msg(3, 50, "resurrected"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("insert over tombstone should be ignored")
	}

	// Neither may a late edit.
	applied, err := db.ApplyEdit(3, 50, "edited", 9000)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("edit of a tombstone should be dropped")
	}

	got, _ = db.GetMessage(3, 50)
	if !got.Deleted || got.Text != "" {
		t.Errorf("tombstone mutated: %+v", got)
	}
}

func TestDeleteBeforeInsert(t *testing.T) {
	db := testDB(t)

	// Deletion observed before the row was ever stored: the tombstone is
	// written anyway so the in-flight backfill insert bounces off it.
	if err := db.ApplyDelete(9, 200, 7000); err != nil {
		t.Fatal(err)
	}
	inserted, err := db.InsertMessage(msg(9, 200, "late arrival"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("insert after pre-emptive tombstone should be ignored")
	}
}

func TestPurgeTombstones(t *testing.T) {
	db := testDB(t)
	if err := db.ApplyDelete(1, 1, 1000); err != nil {
		t.Fatal(err)
	}
	if err := db.ApplyDelete(1, 2, 9000); err != nil {
		t.Fatal(err)
	}

	// Zero horizon: retain everything.
	purged, err := db.PurgeTombstones(0)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("purged = %d with zero horizon, want 0", purged)
	}

	purged, err = db.PurgeTombstones(5000)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if got, _ := db.GetMessage(1, 2); got == nil {
		t.Error("newer tombstone should survive the purge")
	}
}

func TestCheckpointMonotonic(t *testing.T) {
	db := testDB(t)

	if err := db.AdvanceCheckpoint(&Checkpoint{ChatID: 5, LastMessageID: 100, LastMessageTS: 100000, Bootstrapped: true}); err != nil {
		t.Fatal(err)
	}
	// Stale advance must not move the watermark backwards.
	if err := db.AdvanceCheckpoint(&Checkpoint{ChatID: 5, LastMessageID: 40, LastMessageTS: 40000}); err != nil {
		t.Fatal(err)
	}

	cp, err := db.Checkpoint(5)
	if err != nil {
		t.Fatal(err)
	}
	if cp.LastMessageID != 100 || cp.LastMessageTS != 100000 {
		t.Errorf("checkpoint = %+v, watermark regressed", cp)
	}
	if !cp.Bootstrapped {
		t.Error("bootstrapped flag regressed")
	}
}

func TestCheckpointResetAndMissing(t *testing.T) {
	db := testDB(t)

	cp, err := db.Checkpoint(77)
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Fatal("never-synced chat should have nil checkpoint")
	}

	if err := db.AdvanceCheckpoint(&Checkpoint{ChatID: 77, LastMessageID: 10}); err != nil {
		t.Fatal(err)
	}
	if err := db.ResetCheckpoint(77); err != nil {
		t.Fatal(err)
	}
	cp, err = db.Checkpoint(77)
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Error("checkpoint should be gone after reset")
	}
}

func TestMarkBootstrapped(t *testing.T) {
	db := testDB(t)
	if err := db.AdvanceCheckpoint(&Checkpoint{ChatID: 3, LastMessageID: 12}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkBootstrapped(3); err != nil {
		t.Fatal(err)
	}
	cp, _ := db.Checkpoint(3)
	if !cp.Bootstrapped || cp.LastMessageID != 12 {
		t.Errorf("checkpoint = %+v, want bootstrapped with watermark intact", cp)
	}
}

func TestIngestBatchAtomic(t *testing.T) {
	db := testDB(t)

	batch := &Batch{
		Chat: &Chat{ID: 7, Kind: KindGroup, Name: "friends"},
		Messages: []*Message{
			msg(7, 101, "one"),
			msg(7, 102, "two"),
			msg(7, 103, "three"),
		},
		Checkpoint: &Checkpoint{ChatID: 7, LastMessageID: 103, LastMessageTS: 103000, Bootstrapped: true},
	}

	inserted, err := db.IngestBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3", inserted)
	}

	cp, _ := db.Checkpoint(7)
	if cp == nil || cp.LastMessageID != 103 {
		t.Fatalf("checkpoint = %+v, want last id 103", cp)
	}
	chat, _ := db.GetChat(7)
	if chat == nil || chat.Name != "friends" {
		t.Fatalf("chat = %+v", chat)
	}

	// The same batch again: zero inserts, checkpoint unchanged.
	inserted, err = db.IngestBatch(batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 {
		t.Errorf("re-ingest inserted = %d, want 0", inserted)
	}
}

func TestIngestBatchChatPartialPreservesFlags(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindDirect, Name: "a", Archived: true, Pinned: true, Muted: true}); err != nil {
		t.Fatal(err)
	}

	// A push-event chat carries zero-valued flags.
	_, err := db.IngestBatch(&Batch{
		Chat:        &Chat{ID: 1, Kind: KindDirect, Name: "renamed"},
		ChatPartial: true,
		Messages:    []*Message{msg(1, 10, "hi")},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat(1)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Archived || !c.Pinned || !c.Muted {
		t.Errorf("flags clobbered: %+v", c)
	}
	if c.Name != "renamed" {
		t.Errorf("name = %q, want renamed", c.Name)
	}

	// The dialog list stays authoritative: a full upsert clears them.
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindDirect, Name: "renamed"}); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetChat(1)
	if c.Archived || c.Pinned || c.Muted {
		t.Errorf("full upsert should apply flags: %+v", c)
	}
}

func TestListMessagesPagination(t *testing.T) {
	db := testDB(t)
	for i := int64(1); i <= 10; i++ {
		if _, err := db.InsertMessage(msg(4, i, "m")); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.ApplyDelete(4, 5, 1); err != nil {
		t.Fatal(err)
	}

	// Newest window, ascending order, tombstone excluded.
	msgs, err := db.ListMessages(4, 0, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatal("messages not in ascending id order")
		}
	}
	if msgs[len(msgs)-1].ID != 10 {
		t.Errorf("newest id = %d, want 10", msgs[len(msgs)-1].ID)
	}

	// Context window around an id.
	msgs, err = db.ListMessages(4, 8, 2, 50)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.ID <= 2 || m.ID >= 8 {
			t.Errorf("id %d outside (2,8) window", m.ID)
		}
		if m.ID == 5 {
			t.Error("tombstoned id 5 should be excluded")
		}
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)
	seed := []*Message{
		msg(1, 1, "the quick brown fox"),
		msg(1, 2, "lazy dogs sleep all day"),
		msg(2, 3, "a fox in another chat"),
	}
	for _, m := range seed {
		if _, err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.SearchMessages("fox", 0, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Snippet == "" {
		t.Error("snippet should be populated")
	}

	// Chat filter.
	results, err = db.SearchMessages("fox", 2, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.ChatID != 2 {
		t.Fatalf("filtered results = %+v", results)
	}

	// Deleting removes the row from the index.
	if err := db.ApplyDelete(1, 1, 1000); err != nil {
		t.Fatal(err)
	}
	results, err = db.SearchMessages("quick", 0, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted message still searchable: %+v", results)
	}
}

func TestSearchReflectsEdits(t *testing.T) {
	db := testDB(t)
	if _, err := db.InsertMessage(msg(1, 1, "original wording")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ApplyEdit(1, 1, "revised phrasing", 2000); err != nil {
		t.Fatal(err)
	}

	if results, _ := db.SearchMessages("original", 0, 0, 10); len(results) != 0 {
		t.Error("pre-edit text still searchable")
	}
	if results, _ := db.SearchMessages("revised", 0, 0, 10); len(results) != 1 {
		t.Error("post-edit text not searchable")
	}
}

func TestUpsertChatKeepsName(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindDirect, Name: "Alice", LastMessageTS: 5000}); err != nil {
		t.Fatal(err)
	}
	// Sparse update without a name must not clear the stored one, and a
	// stale timestamp must not move last_message_ts backwards.
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindDirect, LastMessageTS: 1000}); err != nil {
		t.Fatal(err)
	}

	chat, _ := db.GetChat(1)
	if chat.Name != "Alice" {
		t.Errorf("name = %q, want Alice", chat.Name)
	}
	if chat.LastMessageTS != 5000 {
		t.Errorf("last_message_ts = %d, want 5000", chat.LastMessageTS)
	}
}

func TestHideChat(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindGroup, Name: "noisy"}); err != nil {
		t.Fatal(err)
	}
	if err := db.HideChat(1); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Error("hidden chat still listed")
	}
	// Still reachable directly.
	chat, _ := db.GetChat(1)
	if chat == nil || !chat.Hidden {
		t.Errorf("chat = %+v, want hidden", chat)
	}
}

func TestMarkChatReadMonotonic(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: 2, Kind: KindDirect, Name: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkChatRead(2, 50); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkChatRead(2, 30); err != nil {
		t.Fatal(err)
	}
	chat, _ := db.GetChat(2)
	if chat.LastReadID != 50 {
		t.Errorf("last_read_id = %d, stale receipt moved it backwards", chat.LastReadID)
	}
}

func TestReplaceContacts(t *testing.T) {
	db := testDB(t)
	if err := db.ReplaceContacts([]Contact{
		{UserID: 1, FirstName: "Ada", Username: "ada"},
		{UserID: 2, FirstName: "Linus", Phone: "+123"},
	}); err != nil {
		t.Fatal(err)
	}
	// Refresh with a sparse record keeps the known fields.
	if err := db.ReplaceContacts([]Contact{{UserID: 1, FirstName: "Ada"}}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetContact(1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Username != "ada" {
		t.Errorf("username = %q, sparse refresh cleared it", c.Username)
	}

	found, err := db.SearchContacts("lin", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].UserID != 2 {
		t.Errorf("search = %+v", found)
	}
}

func TestReadDuringLongWrite(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: 1, Kind: KindDirect, Name: "x"}); err != nil {
		t.Fatal(err)
	}

	writing := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = db.withWrite(func(tx *sql.Tx) error {
			if _, err := tx.Exec(`UPDATE chats SET name = 'y' WHERE id = 1`); err != nil {
				return err
			}
			close(writing)
			time.Sleep(300 * time.Millisecond)
			return nil
		})
	}()

	<-writing
	start := time.Now()
	if _, err := db.ChatCount(); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("read blocked %v behind an open write transaction", elapsed)
	}
	<-done
}
