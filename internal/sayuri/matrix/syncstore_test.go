package matrix

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Sayuri/internal/sayuri/store"
)

func newTestSyncStore(t *testing.T) *DBSyncStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "sync-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newDBSyncStore(s.DB())
}

func TestSyncStoreNextBatchRoundTrip(t *testing.T) {
	s := newTestSyncStore(t)
	ctx := context.Background()
	user := id.UserID("@sayuri:example.com")

	// Empty before anything is saved.
	token, err := s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty on first run", token)
	}

	if err := s.SaveNextBatch(ctx, user, "s123_456"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := s.SaveNextBatch(ctx, user, "s789_012"); err != nil {
		t.Fatalf("SaveNextBatch (update): %v", err)
	}

	token, err = s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if token != "s789_012" {
		t.Errorf("token = %q, want the latest value", token)
	}
}

func TestSyncStoreFilterIDPerUser(t *testing.T) {
	s := newTestSyncStore(t)
	ctx := context.Background()

	if err := s.SaveFilterID(ctx, id.UserID("@a:x"), "f1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	if err := s.SaveFilterID(ctx, id.UserID("@b:x"), "f2"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}

	got, err := s.LoadFilterID(ctx, id.UserID("@a:x"))
	if err != nil || got != "f1" {
		t.Errorf("LoadFilterID(@a:x) = %q, %v; want f1", got, err)
	}
	got, err = s.LoadFilterID(ctx, id.UserID("@b:x"))
	if err != nil || got != "f2" {
		t.Errorf("LoadFilterID(@b:x) = %q, %v; want f2", got, err)
	}
}
