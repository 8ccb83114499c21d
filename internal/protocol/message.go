package protocol

import "github.com/vmihailenco/msgpack/v5"

// MsgType identifies the type of a protocol message.
type MsgType string

const (
	// Streaming: client subscribes, daemon pushes.
	TypeSubscribeCaptures    MsgType = "subscribe:captures"
	TypeSubscribeWorkBlocks  MsgType = "subscribe:work_blocks"
	TypeSubscribeSourceLinks MsgType = "subscribe:source_links"
	TypeUnsubscribe          MsgType = "unsubscribe"
	TypeCaptureEvent         MsgType = "capture:event"
	TypeWorkBlockEvent       MsgType = "work_block:event"
	TypeSourceLinkEvent      MsgType = "source_link:event"

	// Request-response.
	TypeHello                  MsgType = "hello"
	TypeQueryProvenance         MsgType = "query:provenance"
	TypeQueryRecentWorkBlocks   MsgType = "query:recent_work_blocks"
	TypeQueryWorkBlocksForDoc   MsgType = "query:work_blocks_for_doc"
	TypeQueryMilestones         MsgType = "query:milestones"
	TypeQueryRecentSessions     MsgType = "query:recent_sessions"
	TypeActionCreateManualBlock MsgType = "action:create_manual_block"
	TypeActionAnnotateBlock     MsgType = "action:annotate_block"
	TypeActionCreateSourceLink  MsgType = "action:create_source_link"
	TypeActionActivateSource    MsgType = "action:activate_source"
	TypeActionDeactivateSource  MsgType = "action:deactivate_source"
	TypeActionUpsertSession     MsgType = "action:upsert_session"
	TypeActionSetConfig         MsgType = "action:set_config"
	TypeActionClearCaptures     MsgType = "action:clear_captures"

	// Ingest: capture families feed the CaptureBuffer, pushEvent feeds the
	// EventBuffer that the coalescer flushes into a WorkBlock.
	TypeActionPushBrowseCapture     MsgType = "action:push_browse_capture"
	TypeActionPushSearchCapture     MsgType = "action:push_search_capture"
	TypeActionPushAIExchangeCapture MsgType = "action:push_ai_exchange_capture"
	TypeActionPushDocEditCapture    MsgType = "action:push_doc_edit_capture"
	TypeActionUpdateBrowseCapture   MsgType = "action:update_browse_capture"
	TypeActionUpdateSearchClick     MsgType = "action:update_search_click"
	TypeActionPushEvent             MsgType = "action:push_event"
	TypeActionCreateMilestone       MsgType = "action:create_milestone"

	TypeResult MsgType = "result"
	TypeError  MsgType = "error"
)

// Envelope is the top-level wire message. Body is decoded in a second pass
// based on the Type field.
type Envelope struct {
	Type MsgType            `msgpack:"type"`
	ID   uint32             `msgpack:"id"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// --- Streaming messages ---

// Unsubscribe is the body for TypeUnsubscribe.
type Unsubscribe struct {
	Topic string `msgpack:"topic"`
}

// CaptureEvent is pushed whenever a drain persists a raw capture to the store.
type CaptureEvent struct {
	Kind      string `msgpack:"kind"` // "clipboard", "browse", "search", "ai_exchange", "doc_edit"
	ID        string `msgpack:"id"`
	Timestamp int64  `msgpack:"timestamp"`
}

// WorkBlockEvent is pushed whenever a WorkBlock is committed, automatic or manual.
type WorkBlockEvent struct {
	Block WorkBlockMsg `msgpack:"block"`
}

// SourceLinkEvent is pushed whenever a SourceLink is created.
type SourceLinkEvent struct {
	Link SourceLinkMsg `msgpack:"link"`
}

// --- Request-response messages ---

// HelloResp is the response for TypeHello.
type HelloResp struct {
	ProtocolVersion int    `msgpack:"protocol_version"`
	Version         string `msgpack:"version"`
}

// QueryProvenanceReq is the body for TypeQueryProvenance.
type QueryProvenanceReq struct {
	DocID string `msgpack:"doc_id"`
}

// QueryProvenanceResp is the response for TypeQueryProvenance.
type QueryProvenanceResp struct {
	Links []SourceLinkMsg `msgpack:"links"`
}

// SourceLinkMsg describes a commit-time provenance link.
type SourceLinkMsg struct {
	ID          string            `msgpack:"id"`
	DocID       string            `msgpack:"doc_id"`
	SectionPath string            `msgpack:"section_path,omitempty"`
	CreatedAt   int64             `msgpack:"created_at"`
	Confidence  float64           `msgpack:"confidence"`
	Sources     []LinkedSourceMsg `msgpack:"sources"`
}

// LinkedSourceMsg describes one contributing source on a SourceLinkMsg.
type LinkedSourceMsg struct {
	SourceType       string  `msgpack:"source_type"`
	SourceID         string  `msgpack:"source_id"`
	Title            string  `msgpack:"title,omitempty"`
	Relevance        float64 `msgpack:"relevance"`
	ContributionType string  `msgpack:"contribution_type"`
}

// QueryRecentWorkBlocksReq is the body for TypeQueryRecentWorkBlocks.
type QueryRecentWorkBlocksReq struct {
	Limit int `msgpack:"limit,omitempty"`
}

// QueryRecentWorkBlocksResp is the response for TypeQueryRecentWorkBlocks.
type QueryRecentWorkBlocksResp struct {
	Blocks []WorkBlockMsg `msgpack:"blocks"`
}

// QueryWorkBlocksForDocReq is the body for TypeQueryWorkBlocksForDoc.
type QueryWorkBlocksForDocReq struct {
	ContextType string `msgpack:"context_type"`
	ContextID   string `msgpack:"context_id"`
	Limit       int    `msgpack:"limit,omitempty"`
}

// QueryWorkBlocksForDocResp is the response for TypeQueryWorkBlocksForDoc.
type QueryWorkBlocksForDocResp struct {
	Blocks []WorkBlockMsg `msgpack:"blocks"`
}

// WorkBlockMsg is the wire representation of a committed WorkBlock.
type WorkBlockMsg struct {
	ID           string   `msgpack:"id"`
	ContextType  string   `msgpack:"context_type"`
	ContextID    string   `msgpack:"context_id,omitempty"`
	ContextTitle string   `msgpack:"context_title,omitempty"`
	StartedAt    int64    `msgpack:"started_at"`
	EndedAt      int64    `msgpack:"ended_at"`
	DurationSecs int64    `msgpack:"duration_secs"`
	AutoSummary  string   `msgpack:"auto_summary,omitempty"`
	UserSummary  string   `msgpack:"user_summary,omitempty"`
	Notes        string   `msgpack:"notes,omitempty"`
	EditCount    int      `msgpack:"edit_count,omitempty"`
	BrowseCount  int      `msgpack:"browse_count,omitempty"`
	ResearchURLs []string `msgpack:"research_urls,omitempty"`
	Tags         []string `msgpack:"tags,omitempty"`
	IsManual     bool     `msgpack:"is_manual"`
	IsPinned     bool     `msgpack:"is_pinned"`
	CreatedAt    int64    `msgpack:"created_at"`
	UpdatedAt    int64    `msgpack:"updated_at"`
}

// QueryMilestonesReq is the body for TypeQueryMilestones.
type QueryMilestonesReq struct {
	ContextType string `msgpack:"context_type"`
	ContextID   string `msgpack:"context_id"`
}

// QueryMilestonesResp is the response for TypeQueryMilestones.
type QueryMilestonesResp struct {
	Milestones []MilestoneMsg `msgpack:"milestones"`
}

// MilestoneMsg is the wire representation of a Milestone.
type MilestoneMsg struct {
	ID          string `msgpack:"id"`
	ContextType string `msgpack:"context_type"`
	ContextID   string `msgpack:"context_id"`
	Title       string `msgpack:"title"`
	OccurredAt  int64  `msgpack:"occurred_at"`
}

// QueryRecentSessionsReq is the body for TypeQueryRecentSessions.
type QueryRecentSessionsReq struct {
	Limit int `msgpack:"limit,omitempty"`
}

// QueryRecentSessionsResp is the response for TypeQueryRecentSessions.
type QueryRecentSessionsResp struct {
	Sessions []SessionMsg `msgpack:"sessions"`
}

// SessionMsg is the wire representation of a Session.
type SessionMsg struct {
	ID        string   `msgpack:"id"`
	Title     string   `msgpack:"title,omitempty"`
	StartedAt int64    `msgpack:"started_at"`
	EndedAt   int64    `msgpack:"ended_at,omitempty"`
	BlockIDs  []string `msgpack:"block_ids,omitempty"`
}

// CreateManualBlockReq is the body for TypeActionCreateManualBlock.
type CreateManualBlockReq struct {
	StartedAt    int64    `msgpack:"started_at"`
	EndedAt      int64    `msgpack:"ended_at"`
	UserSummary  string   `msgpack:"user_summary"`
	Notes        string   `msgpack:"notes,omitempty"`
	Tags         []string `msgpack:"tags,omitempty"`
	ContextType  string   `msgpack:"context_type,omitempty"`
	ContextTitle string   `msgpack:"context_title,omitempty"`
}

// CreateManualBlockResp is the response for TypeActionCreateManualBlock.
type CreateManualBlockResp struct {
	Block WorkBlockMsg `msgpack:"block"`
}

// AnnotateBlockReq is the body for TypeActionAnnotateBlock.
type AnnotateBlockReq struct {
	ID          string   `msgpack:"id"`
	UserSummary string   `msgpack:"user_summary,omitempty"`
	Notes       string   `msgpack:"notes,omitempty"`
	Tags        []string `msgpack:"tags,omitempty"`
	IsPinned    bool     `msgpack:"is_pinned"`
}

// CreateSourceLinkReq is the body for TypeActionCreateSourceLink.
type CreateSourceLinkReq struct {
	DocID       string `msgpack:"doc_id"`
	SectionPath string `msgpack:"section_path,omitempty"`
	Content     string `msgpack:"content"`
}

// CreateSourceLinkResp is the response for TypeActionCreateSourceLink.
type CreateSourceLinkResp struct {
	Link SourceLinkMsg `msgpack:"link"`
}

// ActivateSourceReq is the body for TypeActionActivateSource.
type ActivateSourceReq struct {
	SourceType string `msgpack:"source_type"`
	SourceID   string `msgpack:"source_id"`
	Title      string `msgpack:"title,omitempty"`
}

// DeactivateSourceReq is the body for TypeActionDeactivateSource.
type DeactivateSourceReq struct {
	SourceID string `msgpack:"source_id"`
}

// UpsertSessionReq is the body for TypeActionUpsertSession.
type UpsertSessionReq struct {
	ID        string `msgpack:"id"`
	Title     string `msgpack:"title,omitempty"`
	StartedAt int64  `msgpack:"started_at"`
	EndedAt   int64  `msgpack:"ended_at,omitempty"`
}

// SetConfigReq is the body for TypeActionSetConfig.
type SetConfigReq struct {
	Key   string `msgpack:"key"`
	Value string `msgpack:"value"`
}

// PushBrowseCaptureReq is the body for TypeActionPushBrowseCapture.
type PushBrowseCaptureReq struct {
	URL       string `msgpack:"url"`
	Title     string `msgpack:"title,omitempty"`
	EnteredAt int64  `msgpack:"entered_at"`
}

// PushBrowseCaptureResp is the response for TypeActionPushBrowseCapture.
type PushBrowseCaptureResp struct {
	ID string `msgpack:"id"`
}

// PushSearchCaptureReq is the body for TypeActionPushSearchCapture.
type PushSearchCaptureReq struct {
	Query     string `msgpack:"query"`
	Engine    string `msgpack:"engine,omitempty"`
	Timestamp int64  `msgpack:"timestamp"`
}

// PushSearchCaptureResp is the response for TypeActionPushSearchCapture.
type PushSearchCaptureResp struct {
	ID string `msgpack:"id"`
}

// PushAIExchangeCaptureReq is the body for TypeActionPushAIExchangeCapture.
type PushAIExchangeCaptureReq struct {
	Question     string `msgpack:"question"`
	Answer       string `msgpack:"answer"`
	Model        string `msgpack:"model"`
	ContextDocID string `msgpack:"context_doc_id,omitempty"`
	Timestamp    int64  `msgpack:"timestamp"`
}

// PushDocEditCaptureReq is the body for TypeActionPushDocEditCapture.
type PushDocEditCaptureReq struct {
	DocID      string `msgpack:"doc_id"`
	DocTitle   string `msgpack:"doc_title,omitempty"`
	EditText   string `msgpack:"edit_text"`
	CharDelta  int    `msgpack:"char_delta"`
	StartedAt  int64  `msgpack:"started_at"`
	EndedAt    int64  `msgpack:"ended_at"`
}

// UpdateBrowseCaptureReq is the body for TypeActionUpdateBrowseCapture.
type UpdateBrowseCaptureReq struct {
	ID                 string `msgpack:"id"`
	LeftAt             int64  `msgpack:"left_at"`
	ScrollDepthPercent int    `msgpack:"scroll_depth_percent,omitempty"`
}

// UpdateSearchClickReq is the body for TypeActionUpdateSearchClick.
type UpdateSearchClickReq struct {
	ID        string `msgpack:"id"`
	ResultURL string `msgpack:"result_url"`
}

// PushEventReq is the body for TypeActionPushEvent — the wire entry point
// into the EventBuffer the coalescer flushes into a WorkBlock.
type PushEventReq struct {
	Timestamp    int64  `msgpack:"timestamp"`
	EventType    string `msgpack:"event_type"`
	ContextType  string `msgpack:"context_type,omitempty"`
	ContextID    string `msgpack:"context_id,omitempty"`
	ContextTitle string `msgpack:"context_title,omitempty"`
	URL          string `msgpack:"url,omitempty"`
	Delta        int    `msgpack:"delta,omitempty"`
}

// PushEventResp is the response for TypeActionPushEvent.
type PushEventResp struct {
	ShouldFlush     bool `msgpack:"should_flush"`
	ContextSwitched bool `msgpack:"context_switched"`
	EventCount      int  `msgpack:"event_count"`
}

// CreateMilestoneReq is the body for TypeActionCreateMilestone.
type CreateMilestoneReq struct {
	ContextType   string `msgpack:"context_type"`
	ContextID     string `msgpack:"context_id"`
	MilestoneType string `msgpack:"milestone_type"`
	Timestamp     int64  `msgpack:"timestamp"`
	Note          string `msgpack:"note,omitempty"`
}

// CreateMilestoneResp is the response for TypeActionCreateMilestone.
type CreateMilestoneResp struct {
	ID string `msgpack:"id"`
}

// Result is the generic success response.
type Result struct {
	OK      bool   `msgpack:"ok"`
	Message string `msgpack:"message,omitempty"`
}

// ErrorResult is the generic error response.
type ErrorResult struct {
	Error string `msgpack:"error"`
}
