package store

// ChatKind is the closed set of chat kinds.
type ChatKind string

const (
	KindDirect  ChatKind = "direct"
	KindGroup   ChatKind = "group"
	KindChannel ChatKind = "channel"
	KindForum   ChatKind = "forum"
)

// Chat represents a mirrored chat.
type Chat struct {
	ID            int64
	Kind          ChatKind
	Name          string
	Username      string
	Archived      bool
	Pinned        bool
	Muted         bool
	Hidden        bool  // soft local delete; never set by sync
	LastReadID    int64 // newest message id known to be read
	LastMessageTS int64
}

// Message represents a mirrored message. Identity is (ChatID, ID); the
// remote assigns IDs monotonically within a chat. Zero EditTS means the
// message was never edited. A Deleted row is a tombstone: identity is
// retained, content is cleared, and the row is terminal.
type Message struct {
	ChatID    int64
	ID        int64
	SenderID  int64
	TS        int64 // unix millis
	EditTS    int64 // unix millis, 0 = never edited
	FromMe    bool
	Text      string
	MediaType string
	ReplyToID int64
	TopicID   int64
	Deleted   bool
	DeletedAt int64
}

// Contact represents a synced contact. Contacts are refreshed wholesale
// on sync, not incrementally diffed.
type Contact struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// Checkpoint is the per-chat sync watermark: the newest message known to
// be fully ingested. It is the sole source of truth for what to fetch next.
type Checkpoint struct {
	ChatID        int64
	LastMessageID int64
	LastMessageTS int64
	Bootstrapped  bool
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
