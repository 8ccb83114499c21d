package capture

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenStoreCreatesDatabaseAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	if _, err := s.QueryRecentWorkBlocks(context.Background(), 10); err != nil {
		t.Fatalf("querying freshly created schema failed: %v", err)
	}
}

func TestOpenStoreSetsUserVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpenStoreReopenPreservesData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := s1.StoreContent(ctx, "d1", []byte("payload"), "clipboard", 1000); err != nil {
		t.Fatalf("StoreContent: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen OpenStore: %v", err)
	}
	defer s2.Close()

	entry, ok, err := s2.GetContent(ctx, "d1", 2000)
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if !ok || string(entry.Payload) != "payload" {
		t.Fatalf("entry = %+v, ok = %v, want the payload written before close", entry, ok)
	}
}
