package capture

import (
	"context"
	"testing"
)

func TestWorkBlockInsertAndQueryRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, id := range []string{"b1", "b2", "b3"} {
		b := WorkBlock{
			ID:          id,
			ContextType: ContextDocument,
			StartedAt:   int64(1000 + i*1000),
			EndedAt:     int64(2000 + i*1000),
			Tags:        []string{},
		}
		if err := s.InsertWorkBlock(ctx, b); err != nil {
			t.Fatalf("InsertWorkBlock(%s): %v", id, err)
		}
	}

	blocks, err := s.QueryRecentWorkBlocks(ctx, 2)
	if err != nil {
		t.Fatalf("QueryRecentWorkBlocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	// Ordered by ended_at DESC: b3 then b2.
	if blocks[0].ID != "b3" || blocks[1].ID != "b2" {
		t.Fatalf("blocks = %+v, want [b3 b2]", blocks)
	}
}

func TestWorkBlockUpdateAnnotation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "b1", ContextType: ContextDocument, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock: %v", err)
	}

	summary := "manually edited summary"
	if err := s.UpdateWorkBlockAnnotation(ctx, "b1", &summary, nil, []string{"tag1"}, true, 5000); err != nil {
		t.Fatalf("UpdateWorkBlockAnnotation: %v", err)
	}

	blocks, err := s.QueryRecentWorkBlocks(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecentWorkBlocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	b := blocks[0]
	if b.UserSummary == nil || *b.UserSummary != summary {
		t.Fatalf("UserSummary = %v, want %q", b.UserSummary, summary)
	}
	if !b.IsPinned {
		t.Fatal("IsPinned should be true after annotation")
	}
	if len(b.Tags) != 1 || b.Tags[0] != "tag1" {
		t.Fatalf("Tags = %v", b.Tags)
	}
}

func TestWorkBlockUpdateAnnotationMissingIDErrors(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateWorkBlockAnnotation(context.Background(), "missing", nil, nil, nil, false, 0); err == nil {
		t.Fatal("UpdateWorkBlockAnnotation on a missing id should error")
	}
}

func TestQueryWorkBlocksForContextFiltersByContext(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docID := "doc-1"
	otherID := "doc-2"
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "b1", ContextType: ContextDocument, ContextID: &docID, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock: %v", err)
	}
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "b2", ContextType: ContextDocument, ContextID: &otherID, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock: %v", err)
	}

	blocks, err := s.QueryWorkBlocksForContext(ctx, ContextDocument, docID, 10)
	if err != nil {
		t.Fatalf("QueryWorkBlocksForContext: %v", err)
	}
	if len(blocks) != 1 || blocks[0].ID != "b1" {
		t.Fatalf("blocks = %+v, want only b1", blocks)
	}
}

func TestSourceLinkInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	preview := "preview text"
	link := SourceLink{ID: "l1", DocID: "doc-1", ContentDigest: "d1", Preview: &preview, CreatedAt: 1000, ConfidenceScore: 0.5}
	sources := []LinkedSource{
		{ID: "ls1", LinkID: "l1", SourceType: SourceWebpage, SourceID: "w1", ContributionType: ContributionReferenced, Timestamp: 1000},
	}
	if err := s.InsertSourceLink(ctx, link, sources); err != nil {
		t.Fatalf("InsertSourceLink: %v", err)
	}

	results, err := s.QuerySourceLinksForDoc(ctx, "doc-1")
	if err != nil {
		t.Fatalf("QuerySourceLinksForDoc: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if len(results[0].Sources) != 1 || results[0].Sources[0].SourceID != "w1" {
		t.Fatalf("Sources = %+v", results[0].Sources)
	}
}

func TestMilestoneInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InsertMilestone(ctx, Milestone{ID: "m1", ContextType: ContextTask, ContextID: "task-1", MilestoneType: "started", Timestamp: 1000}); err != nil {
		t.Fatalf("InsertMilestone: %v", err)
	}

	ms, err := s.QueryMilestones(ctx, ContextTask, "task-1")
	if err != nil {
		t.Fatalf("QueryMilestones: %v", err)
	}
	if len(ms) != 1 || ms[0].ID != "m1" {
		t.Fatalf("ms = %+v", ms)
	}
}

func TestSessionUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	title := "Monday work"
	sess := Session{ID: "s1", Title: &title, StartedAt: 1000, BlockIDs: []string{"b1", "b2"}}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	ended := int64(5000)
	sess.EndedAt = &ended
	sess.BlockIDs = append(sess.BlockIDs, "b3")
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession (update): %v", err)
	}

	sessions, err := s.QueryRecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecentSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1 (upsert, not duplicate)", len(sessions))
	}
	if len(sessions[0].BlockIDs) != 3 {
		t.Fatalf("BlockIDs = %v, want 3 entries after update", sessions[0].BlockIDs)
	}
	if sessions[0].EndedAt == nil || *sessions[0].EndedAt != 5000 {
		t.Fatalf("EndedAt = %v, want 5000", sessions[0].EndedAt)
	}
}

func TestConfigValueSetAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.SetConfigValue(ctx, "clipboard_enabled", "false"); err != nil {
		t.Fatalf("SetConfigValue: %v", err)
	}
	if err := s.SetConfigValue(ctx, "clipboard_enabled", "true"); err != nil {
		t.Fatalf("SetConfigValue (overwrite): %v", err)
	}

	values, err := s.LoadConfigOverlay(ctx)
	if err != nil {
		t.Fatalf("LoadConfigOverlay: %v", err)
	}
	if values["clipboard_enabled"] != "true" {
		t.Fatalf("values = %v, want clipboard_enabled=true", values)
	}
}

func TestClearAllCapturesWipesCaptureTablesOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.InsertClipboardCapture(ctx, ClipboardCapture{ID: "c1", ContentDigest: "d1", CapturedAt: 1000}); err != nil {
		t.Fatalf("InsertClipboardCapture: %v", err)
	}
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "b1", ContextType: ContextDocument, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock: %v", err)
	}

	if err := s.ClearAllCaptures(ctx); err != nil {
		t.Fatalf("ClearAllCaptures: %v", err)
	}

	blocks, err := s.QueryRecentWorkBlocks(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecentWorkBlocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatal("ClearAllCaptures must not touch work_blocks")
	}
}

func TestPruneRemovesExpiredWorkBlocksButNotPinned(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const weekMillis = 7 * 24 * 60 * 60 * 1000
	old := int64(0)
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "old", ContextType: ContextDocument, EndedAt: old, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock old: %v", err)
	}
	if err := s.InsertWorkBlock(ctx, WorkBlock{ID: "pinned", ContextType: ContextDocument, EndedAt: old, IsPinned: true, Tags: []string{}}); err != nil {
		t.Fatalf("InsertWorkBlock pinned: %v", err)
	}

	now := old + weekMillis + 1000
	if _, err := s.Prune(ctx, now); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	blocks, err := s.QueryRecentWorkBlocks(ctx, 10)
	if err != nil {
		t.Fatalf("QueryRecentWorkBlocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].ID != "pinned" {
		t.Fatalf("blocks = %+v, want only the pinned block to survive", blocks)
	}
}
