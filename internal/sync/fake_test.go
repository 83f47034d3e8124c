package sync

import (
	"context"
	"path/filepath"
	"sort"
	stdsync "sync"
	"testing"

	"github.com/caval92/tgd/internal/store"
	"github.com/caval92/tgd/internal/tg"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeClient is a scripted in-memory remote. History is held per chat in
// ascending id order; FetchHistory serves descending pages the way the
// real transport does.
type fakeClient struct {
	mu         stdsync.Mutex
	chats      []*store.Chat
	history    map[int64][]*store.Message
	contacts   []store.Contact
	fetchErr   map[int64]error
	fetchCalls map[int64]int
	marked     map[int64][]int64
	nextSendID int64
	streams    []*fakeStream
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		history:    make(map[int64][]*store.Message),
		fetchErr:   make(map[int64]error),
		fetchCalls: make(map[int64]int),
		marked:     make(map[int64][]int64),
		nextSendID: 10000,
	}
}

func (f *fakeClient) addChat(c *store.Chat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, c)
}

func (f *fakeClient) addMessages(chatID int64, msgs ...*store.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[chatID] = append(f.history[chatID], msgs...)
	sort.Slice(f.history[chatID], func(i, j int) bool {
		return f.history[chatID][i].ID < f.history[chatID][j].ID
	})
}

func (f *fakeClient) ListChats(ctx context.Context) ([]*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Chat, len(f.chats))
	for i, c := range f.chats {
		cc := *c
		out[i] = &cc
	}
	return out, nil
}

func (f *fakeClient) ListContacts(ctx context.Context) ([]store.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Contact(nil), f.contacts...), nil
}

func (f *fakeClient) FetchHistory(ctx context.Context, chatID, beforeID int64, limit int) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls[chatID]++
	if err := f.fetchErr[chatID]; err != nil {
		return nil, err
	}

	all := f.history[chatID]
	var page []*store.Message
	for i := len(all) - 1; i >= 0 && len(page) < limit; i-- {
		if beforeID != 0 && all[i].ID >= beforeID {
			continue
		}
		m := *all[i]
		page = append(page, &m)
	}
	return page, nil
}

func (f *fakeClient) Subscribe(ctx context.Context) (tg.UpdateStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeClient) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSendID++
	return f.nextSendID, nil
}

func (f *fakeClient) MarkRead(ctx context.Context, chatID int64, msgIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[chatID] = append(f.marked[chatID], msgIDs...)
	return nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

func (f *fakeClient) latestStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

type fakeStream struct {
	ch   chan tg.Update
	err  error
	once stdsync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan tg.Update, 64)}
}

func (s *fakeStream) push(u tg.Update) { s.ch <- u }

func (s *fakeStream) Updates() <-chan tg.Update { return s.ch }

func (s *fakeStream) Err() error { return s.err }

// fail ends the stream as if the transport dropped.
func (s *fakeStream) fail(err error) {
	s.err = err
	s.once.Do(func() { close(s.ch) })
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

func remoteMsg(chatID, id int64, text string) *store.Message {
	return &store.Message{
		ChatID:   chatID,
		ID:       id,
		SenderID: 500,
		TS:       id * 1000,
		Text:     text,
	}
}
