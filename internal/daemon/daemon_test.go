package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caval92/tgd/internal/gateway"
	"github.com/caval92/tgd/internal/ipc"
	"github.com/caval92/tgd/internal/lock"
	"github.com/caval92/tgd/internal/store"
	"github.com/caval92/tgd/internal/tg"
)

// stubClient satisfies the calls the gateway makes during the test.
type stubClient struct {
	tg.Client
}

func (stubClient) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	return 900, nil
}

func (stubClient) MarkRead(ctx context.Context, chatID int64, msgIDs []int64) error {
	return nil
}

func TestDaemonLifecycle(t *testing.T) {
	// Short path to stay under the Unix socket path limit.
	tmpDir, err := os.MkdirTemp("/tmp", "tgd-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	// Acquire the store lock the way the fx provider does.
	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	// A second daemon against the same root must fail fast with busy.
	if _, err := lock.Acquire(tmpDir); !lock.IsHeld(err) {
		t.Fatalf("second acquire error = %v, want HeldError", err)
	}

	db, err := store.Open(filepath.Join(tmpDir, "tgd.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	gw := gateway.New(db, stubClient{}, nil)
	srv := ipc.NewServer(socketPath, gw, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = srv.Stop() }()

	c, err := ipc.Dial(socketPath)
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Ping(time.Second); err != nil {
		t.Fatalf("Ping error = %v", err)
	}

	// Send through the gateway and verify the local record.
	id, err := c.SendText(7, "via daemon", time.Second)
	if err != nil {
		t.Fatalf("SendText error = %v", err)
	}
	if id != 900 {
		t.Errorf("message id = %d, want 900", id)
	}
	m, err := db.GetMessage(7, 900)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || !m.FromMe {
		t.Fatalf("sent message not recorded: %+v", m)
	}

	// A ping during a long write transaction must return promptly.
	writing := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		tx, err := db.Begin()
		if err != nil {
			t.Error(err)
			close(writing)
			return
		}
		if _, err := tx.Exec(`UPDATE chats SET updated_at = updated_at`); err != nil {
			t.Error(err)
			_ = tx.Rollback()
			close(writing)
			return
		}
		close(writing)
		time.Sleep(300 * time.Millisecond)
		_ = tx.Commit()
	}()
	<-writing
	start := time.Now()
	if err := c.Ping(time.Second); err != nil {
		t.Fatalf("Ping during write error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("ping blocked %v behind an open write transaction", elapsed)
	}
	<-done

	// Stopping the server removes the socket.
	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	if ipc.Available(socketPath) {
		t.Error("socket still answering after Stop")
	}
}
