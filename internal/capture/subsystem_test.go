package capture

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSubsystem(t *testing.T) *Subsystem {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		Storage: StorageConfig{Path: filepath.Join(dir, "provenance.db")},
		Socket:  SocketConfig{Path: filepath.Join(dir, "provenanced.sock")},
	}
	sub, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sub.store.Close() })
	return sub
}

func TestSubsystemNewWiresCollaboratorsWithoutStartingNetwork(t *testing.T) {
	sub := newTestSubsystem(t)
	if sub.store == nil || sub.tracker == nil || sub.linker == nil || sub.events == nil || sub.coalescer == nil {
		t.Fatal("New left a collaborator unwired")
	}
	if sub.metrics != nil {
		t.Fatal("metrics should be nil when Metrics.Enabled is false")
	}
}

func TestSubsystemFlushEventsCommitsBlockAndPublishes(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem(t)

	_, ch := sub.hub.Subscribe(TopicWorkBlocks)

	doc := "doc-1"
	sub.events.Push(BufferedEvent{ID: "1", Timestamp: 1000, EventType: EventEdit, ContextType: ContextDocument, ContextID: &doc})
	sub.events.Push(BufferedEvent{ID: "2", Timestamp: 2000, EventType: EventEdit, ContextType: ContextDocument, ContextID: &doc})

	block, err := sub.FlushEvents(ctx)
	if err != nil {
		t.Fatalf("FlushEvents: %v", err)
	}
	if block == nil {
		t.Fatal("FlushEvents returned nil block despite meeting the minimum")
	}

	select {
	case <-ch:
	default:
		t.Fatal("FlushEvents did not publish to TopicWorkBlocks")
	}

	stored, err := sub.store.QueryRecentWorkBlocks(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecentWorkBlocks: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored = %+v, want 1 persisted block", stored)
	}
}

func TestSubsystemFlushEventsNoopBelowMinimum(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem(t)

	sub.events.Push(BufferedEvent{ID: "1", Timestamp: 1000, EventType: EventEdit, ContextType: ContextDocument})

	block, err := sub.FlushEvents(ctx)
	if err != nil {
		t.Fatalf("FlushEvents: %v", err)
	}
	if block != nil {
		t.Fatal("FlushEvents should no-op below the minimum event count")
	}
}

func TestSubsystemDrainCapturesPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem(t)

	_, ch := sub.hub.Subscribe(TopicCaptures)

	sub.buffer.PushClipboard(ClipboardCapture{ID: "c1", ContentDigest: "d1", CapturedAt: 1000})
	sub.buffer.PushBrowse(BrowseCapture{ID: "b1", URL: "https://example.com", EnteredAt: 2000})

	if err := sub.DrainCaptures(ctx); err != nil {
		t.Fatalf("DrainCaptures: %v", err)
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received != 2 {
		t.Fatalf("received %d capture events, want 2", received)
	}

	for k, v := range sub.buffer.Depths() {
		if v != 0 {
			t.Fatalf("Depths()[%q] = %d after drain, want 0", k, v)
		}
	}
}

func TestSubsystemDrainCapturesRequeuesOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	sub := newTestSubsystem(t)

	sub.buffer.PushClipboard(ClipboardCapture{ID: "c1", ContentDigest: "d1", CapturedAt: 1000})
	sub.buffer.PushBrowse(BrowseCapture{ID: "b1", URL: "https://example.com", EnteredAt: 2000})
	sub.buffer.PushSearch(SearchCapture{ID: "s1", Query: "golang", Timestamp: 3000})

	sub.store.Close() // force every subsequent insert to fail

	if err := sub.DrainCaptures(ctx); err == nil {
		t.Fatal("DrainCaptures should surface the storage error")
	}

	depths := sub.buffer.Depths()
	if depths["clipboard"] != 1 {
		t.Fatalf("clipboard depth = %d after failed drain, want 1 (requeued)", depths["clipboard"])
	}
	if depths["browse"] != 1 {
		t.Fatalf("browse depth = %d after failed drain, want 1 (requeued)", depths["browse"])
	}
	if depths["search"] != 1 {
		t.Fatalf("search depth = %d after failed drain, want 1 (requeued)", depths["search"])
	}
}
