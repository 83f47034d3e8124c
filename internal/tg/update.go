package tg

import "github.com/caval92/tgd/internal/store"

// Update is a push event from the live subscription. The variant set is
// closed: NewMessage, MessageEdited, MessageDeleted, ReadReceipt.
type Update interface {
	isUpdate()
}

// NewMessage carries a freshly arrived message plus the chat metadata
// observed with it.
type NewMessage struct {
	Chat    *store.Chat
	Message *store.Message
}

// MessageEdited carries an in-place text edit. EditTS is the remote edit
// timestamp, not the arrival time.
type MessageEdited struct {
	ChatID int64
	ID     int64
	Text   string
	EditTS int64
}

// MessageDeleted carries one or more deletions within a chat.
type MessageDeleted struct {
	ChatID int64
	IDs    []int64
	At     int64
}

// ReadReceipt acknowledges messages up to MaxID as read.
type ReadReceipt struct {
	ChatID int64
	MaxID  int64
}

func (NewMessage) isUpdate()     {}
func (MessageEdited) isUpdate()  {}
func (MessageDeleted) isUpdate() {}
func (ReadReceipt) isUpdate()    {}
