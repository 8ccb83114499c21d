package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
)

// --- content store ---

// StoreContent upserts a payload under its digest, bumping the access
// counter and last-accessed timestamp on an existing row rather than
// overwriting the body — the first writer's payload for a given digest is
// authoritative.
func (s *Store) StoreContent(ctx context.Context, digest string, payload []byte, kind string, now int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_store (hash, content, content_type, byte_size, created_at, last_accessed_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(hash) DO UPDATE SET
		   last_accessed_at = excluded.last_accessed_at,
		   access_count = access_count + 1`,
		digest, payload, kind, len(payload), now, now,
	)
	return err
}

// GetContent reads a stored payload by digest, bumping its access count
// and last-accessed timestamp on hit. Returns (nil, false) on miss.
func (s *Store) GetContent(ctx context.Context, digest string, now int64) (*ContentEntry, bool, error) {
	var e ContentEntry
	e.Digest = digest
	err := s.db.QueryRowContext(ctx,
		`SELECT content, content_type, byte_size, created_at, last_accessed_at, access_count
		 FROM content_store WHERE hash = ?`, digest,
	).Scan(&e.Payload, &e.Kind, &e.ByteSize, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE content_store SET last_accessed_at = ?, access_count = access_count + 1 WHERE hash = ?`,
		now, digest,
	); err != nil {
		return nil, false, err
	}
	e.LastAccessedAt = now
	e.AccessCount++
	return &e, true, nil
}

// contentTTLMillis and minAccessCountToKeep mirror the retention policy of
// the original clipboard-capture subsystem this engine's content store was
// modeled on: a stale entry survives cleanup if it has been popular enough.
const (
	contentTTLMillis    = 30 * 24 * 60 * 60 * 1000
	minAccessCountToKeep = 3
)

// CleanupContent deletes content rows untouched for longer than the TTL
// and accessed fewer than minAccessCountToKeep times, in bounded batches.
func (s *Store) CleanupContent(ctx context.Context, now int64) (int64, error) {
	cutoff := now - contentTTLMillis
	var total int64
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM content_store WHERE hash IN (
			   SELECT hash FROM content_store
			   WHERE last_accessed_at < ? AND access_count < ?
			   LIMIT ?
			 )`, cutoff, minAccessCountToKeep, pruneBatchSize,
		)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneBatchSize {
			break
		}
	}
	return total, nil
}

// --- capture inserts ---

// InsertClipboardCapture inserts with INSERT OR IGNORE so that a replayed
// drain (the same capture persisted twice after a requeue) is tolerated
// rather than erroring on the id's primary-key conflict.
func (s *Store) InsertClipboardCapture(ctx context.Context, c ClipboardCapture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO clipboard_captures (id, content_hash, content_preview, source_url, source_title, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ContentDigest, c.Preview, c.SourceURL, c.SourceTitle, c.CapturedAt,
	)
	return err
}

// InsertBrowseCapture uses INSERT OR REPLACE since a browse capture keyed
// by id may be persisted more than once carrying different LeftAt/
// ScrollDepthPercent values (patched in-buffer by UpdateBrowse between
// drain attempts); the most recent write wins.
func (s *Store) InsertBrowseCapture(ctx context.Context, c BrowseCapture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO browse_captures (id, url, page_title, entered_at, left_at, scroll_depth_percent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.URL, c.Title, c.EnteredAt, c.LeftAt, c.ScrollDepthPercent,
	)
	return err
}

// InsertSearchCapture uses INSERT OR REPLACE for the same reason as
// InsertBrowseCapture: ResultClicked may be patched by UpdateSearchClick
// between drain attempts.
func (s *Store) InsertSearchCapture(ctx context.Context, c SearchCapture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_captures (id, query, search_engine, result_clicked, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Query, c.Engine, c.ResultClicked, c.Timestamp,
	)
	return err
}

func (s *Store) InsertAIExchangeCapture(ctx context.Context, c AIExchangeCapture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ai_exchange_captures (id, question_hash, question_preview, answer_hash, answer_preview, model, context_doc_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.QuestionDigest, c.QuestionPreview, c.AnswerDigest, c.AnswerPreview, c.Model, c.ContextDocID, c.Timestamp,
	)
	return err
}

func (s *Store) InsertDocEditCapture(ctx context.Context, c DocEditCapture) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO doc_edit_captures (id, doc_id, doc_title, edit_preview, char_delta, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocID, c.DocTitle, c.EditPreview, c.CharDelta, c.StartedAt, c.EndedAt,
	)
	return err
}

// --- source links ---

// InsertSourceLink persists a link and its linked sources atomically in a
// single transaction: a link must never be visible without its sources
// (or visible as an orphan link with zero sources, which is valid and
// intentional — see SourceLinker).
func (s *Store) InsertSourceLink(ctx context.Context, link SourceLink, sources []LinkedSource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO source_links (id, doc_id, section_path, content_hash, content_preview, created_at, confidence_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.DocID, link.SectionPath, link.ContentDigest, link.Preview, link.CreatedAt, link.ConfidenceScore,
	); err != nil {
		return err
	}

	if len(sources) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO linked_sources (id, link_id, source_type, source_id, contribution_type, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, ls := range sources {
			if _, err := stmt.ExecContext(ctx, ls.ID, ls.LinkID, string(ls.SourceType), ls.SourceID, string(ls.ContributionType), ls.Timestamp); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// QuerySourceLinksForDoc returns every source link recorded against a
// document, most recent first, each with its linked sources populated.
func (s *Store) QuerySourceLinksForDoc(ctx context.Context, docID string) ([]SourceLinkWithSources, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc_id, section_path, content_hash, content_preview, created_at, confidence_score
		 FROM source_links WHERE doc_id = ? ORDER BY created_at DESC`, docID)
	if err != nil {
		return nil, err
	}

	var links []SourceLink
	for rows.Next() {
		var l SourceLink
		if err := rows.Scan(&l.ID, &l.DocID, &l.SectionPath, &l.ContentDigest, &l.Preview, &l.CreatedAt, &l.ConfidenceScore); err != nil {
			rows.Close()
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := make([]SourceLinkWithSources, 0, len(links))
	for _, l := range links {
		sources, err := s.querySourcesForLink(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, SourceLinkWithSources{Link: l, Sources: sources})
	}
	return result, nil
}

func (s *Store) querySourcesForLink(ctx context.Context, linkID string) ([]LinkedSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, link_id, source_type, source_id, contribution_type, timestamp
		 FROM linked_sources WHERE link_id = ? ORDER BY timestamp`, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LinkedSource
	for rows.Next() {
		var ls LinkedSource
		var sourceType, contribType string
		if err := rows.Scan(&ls.ID, &ls.LinkID, &sourceType, &ls.SourceID, &contribType, &ls.Timestamp); err != nil {
			return nil, err
		}
		ls.SourceType = ParseSourceType(sourceType)
		ls.ContributionType = ParseContributionType(contribType)
		result = append(result, ls)
	}
	return result, rows.Err()
}

// --- work blocks ---

func (s *Store) InsertWorkBlock(ctx context.Context, b WorkBlock) error {
	urls, err := json.Marshal(b.ResearchURLs)
	if err != nil {
		return fmt.Errorf("marshal research urls: %w", err)
	}
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO work_blocks (id, context_type, context_id, context_title, started_at, ended_at, duration_secs,
		   auto_summary, edit_count, browse_count, research_urls, user_summary, notes, tags, is_pinned, is_manual, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.ContextType), b.ContextID, b.ContextTitle, b.StartedAt, b.EndedAt, b.DurationSecs,
		b.AutoSummary, b.EditCount, b.BrowseCount, string(urls), b.UserSummary, b.Notes, string(tags),
		boolToInt(b.IsPinned), boolToInt(b.IsManual), b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// UpdateWorkBlockAnnotation applies a user-supplied summary/notes/tags/pin
// edit to an existing block, refreshing UpdatedAt. Every field is
// overwritten (a nil summary or notes clears the column), so callers pass
// the full desired state, not a partial patch, as provctl block annotate
// does.
func (s *Store) UpdateWorkBlockAnnotation(ctx context.Context, id string, userSummary *string, notes *string, tags []string, isPinned bool, now int64) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_blocks SET user_summary = ?, notes = ?, tags = ?, is_pinned = ?, updated_at = ? WHERE id = ?`,
		userSummary, notes, string(tagsJSON), boolToInt(isPinned), now, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("work block %s not found", id)
	}
	return nil
}

func (s *Store) QueryRecentWorkBlocks(ctx context.Context, limit int) ([]WorkBlock, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, context_type, context_id, context_title, started_at, ended_at, duration_secs,
		   auto_summary, edit_count, browse_count, research_urls, user_summary, notes, tags, is_pinned, is_manual, created_at, updated_at
		 FROM work_blocks ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkBlocks(rows)
}

func (s *Store) QueryWorkBlocksForContext(ctx context.Context, contextType ContextType, contextID string, limit int) ([]WorkBlock, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, context_type, context_id, context_title, started_at, ended_at, duration_secs,
		   auto_summary, edit_count, browse_count, research_urls, user_summary, notes, tags, is_pinned, is_manual, created_at, updated_at
		 FROM work_blocks WHERE context_type = ? AND context_id = ? ORDER BY ended_at DESC LIMIT ?`,
		string(contextType), contextID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkBlocks(rows)
}

func scanWorkBlocks(rows *sql.Rows) ([]WorkBlock, error) {
	var result []WorkBlock
	for rows.Next() {
		var b WorkBlock
		var contextType string
		var urls, tags string
		var isPinned, isManual int
		if err := rows.Scan(&b.ID, &contextType, &b.ContextID, &b.ContextTitle, &b.StartedAt, &b.EndedAt, &b.DurationSecs,
			&b.AutoSummary, &b.EditCount, &b.BrowseCount, &urls, &b.UserSummary, &b.Notes, &tags,
			&isPinned, &isManual, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.ContextType = ParseContextType(contextType)
		if err := json.Unmarshal([]byte(urls), &b.ResearchURLs); err != nil {
			return nil, fmt.Errorf("unmarshal research urls: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		b.IsPinned = isPinned != 0
		b.IsManual = isManual != 0
		result = append(result, b)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- milestones ---

// InsertMilestone records a permanent marker on a context's timeline.
// Milestones are never subject to TTL cleanup (Prune never touches them).
func (s *Store) InsertMilestone(ctx context.Context, m Milestone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestones (id, context_type, context_id, milestone_type, timestamp, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.ContextType), m.ContextID, m.MilestoneType, m.Timestamp, m.Note,
	)
	return err
}

func (s *Store) QueryMilestones(ctx context.Context, contextType ContextType, contextID string) ([]Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, context_type, context_id, milestone_type, timestamp, note
		 FROM milestones WHERE context_type = ? AND context_id = ? ORDER BY timestamp`,
		string(contextType), contextID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Milestone
	for rows.Next() {
		var m Milestone
		var contextType string
		if err := rows.Scan(&m.ID, &contextType, &m.ContextID, &m.MilestoneType, &m.Timestamp, &m.Note); err != nil {
			return nil, err
		}
		m.ContextType = ParseContextType(contextType)
		result = append(result, m)
	}
	return result, rows.Err()
}

// --- sessions ---

// UpsertSession inserts or replaces a session's bookkeeping row wholesale;
// sessions are a thin grouping layer over work blocks, so there is no
// partial-update form.
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	blockIDs, err := json.Marshal(sess.BlockIDs)
	if err != nil {
		return fmt.Errorf("marshal block ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workstream_sessions (id, title, started_at, ended_at, block_ids)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   ended_at = excluded.ended_at,
		   block_ids = excluded.block_ids`,
		sess.ID, sess.Title, sess.StartedAt, sess.EndedAt, string(blockIDs),
	)
	return err
}

func (s *Store) QueryRecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, started_at, ended_at, block_ids FROM workstream_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		var sess Session
		var blockIDs string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.StartedAt, &sess.EndedAt, &blockIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blockIDs), &sess.BlockIDs); err != nil {
			return nil, fmt.Errorf("unmarshal block ids: %w", err)
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// --- dynamic config overlay ---

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capture_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) LoadConfigOverlay(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM capture_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// --- retention ---

const (
	workBlockTTLMillis = 7 * 24 * 60 * 60 * 1000
	sessionTTLMillis   = 30 * 24 * 60 * 60 * 1000
)

// pruneWorkBlocks deletes unpinned blocks older than the 7-day TTL, in
// batches, reusing the same bounded-delete shape as CleanupContent.
func (s *Store) pruneWorkBlocks(ctx context.Context, cutoff int64) (int64, error) {
	var total int64
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM work_blocks WHERE id IN (
			   SELECT id FROM work_blocks WHERE ended_at < ? AND is_pinned = 0 LIMIT ?
			 )`, cutoff, pruneBatchSize)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneBatchSize {
			return total, nil
		}
	}
}

// pruneSessions deletes sessions whose ended_at is past the 30-day TTL.
// Sessions without an ended_at (still open) are never pruned.
func (s *Store) pruneSessions(ctx context.Context, cutoff int64) (int64, error) {
	var total int64
	for {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM workstream_sessions WHERE id IN (
			   SELECT id FROM workstream_sessions WHERE ended_at IS NOT NULL AND ended_at < ? LIMIT ?
			 )`, cutoff, pruneBatchSize)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneBatchSize {
			return total, nil
		}
	}
}

// ClearAllCaptures wipes every capture family and their associated
// in-memory dedup state is the caller's responsibility (CaptureBuffer.Clear);
// this only clears the persisted rows. Content-store and work-block
// history are untouched — this targets raw capture replay data only.
func (s *Store) ClearAllCaptures(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"clipboard_captures", "browse_captures", "search_captures", "ai_exchange_captures", "doc_edit_captures"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Prune runs every TTL-based cleanup policy (content store, work blocks,
// sessions) and releases WAL/heap space afterward, mirroring the
// checkpoint-then-free pattern used throughout this engine's batched
// maintenance jobs. Milestones are never pruned.
func (s *Store) Prune(ctx context.Context, now int64) (int64, error) {
	n, err := s.CleanupContent(ctx, now)
	if err != nil {
		return n, fmt.Errorf("cleanup content: %w", err)
	}
	if m, err := s.pruneWorkBlocks(ctx, now-workBlockTTLMillis); err != nil {
		return n, fmt.Errorf("prune work blocks: %w", err)
	} else {
		n += m
	}
	if m, err := s.pruneSessions(ctx, now-sessionTTLMillis); err != nil {
		return n, fmt.Errorf("prune sessions: %w", err)
	} else {
		n += m
	}
	s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	debug.FreeOSMemory()
	return n, nil
}
