// Package capture implements the activity provenance engine: bounded
// capture buffering, work-block coalescing, and decay-weighted source
// linking over a content-addressed SQLite store.
package capture

import (
	"time"

	"github.com/google/uuid"
)

// SourceType is a closed set of provenance source kinds.
type SourceType string

const (
	SourceWebpage    SourceType = "webpage"
	SourceClipboard  SourceType = "clipboard"
	SourceAIExchange SourceType = "ai_exchange"
	SourceSearch     SourceType = "search"
	SourceDocument   SourceType = "document"
)

// ParseSourceType maps a stored string to a SourceType, defaulting unknown
// values to SourceWebpage so the codec round-trips every recognised
// variant but never fails closed on legacy/foreign data.
func ParseSourceType(s string) SourceType {
	switch SourceType(s) {
	case SourceWebpage, SourceClipboard, SourceAIExchange, SourceSearch, SourceDocument:
		return SourceType(s)
	default:
		return SourceWebpage
	}
}

// ContributionType classifies how a source contributed to committed content.
type ContributionType string

const (
	ContributionDirectCopy ContributionType = "direct_copy"
	ContributionReferenced ContributionType = "referenced"
	ContributionInspired   ContributionType = "inspired"
	ContributionAIAssisted ContributionType = "ai_assisted"
)

// ParseContributionType defaults unknown values to ContributionReferenced.
func ParseContributionType(s string) ContributionType {
	switch ContributionType(s) {
	case ContributionDirectCopy, ContributionReferenced, ContributionInspired, ContributionAIAssisted:
		return ContributionType(s)
	default:
		return ContributionReferenced
	}
}

// EventType is a closed set of buffered-event kinds.
type EventType string

const (
	EventEdit   EventType = "edit"
	EventBrowse EventType = "browse"
	EventSearch EventType = "search"
	EventTool   EventType = "tool"
	EventFocus  EventType = "focus"
	EventBlur   EventType = "blur"
	EventSave   EventType = "save"
)

// ParseEventType defaults unknown values to EventEdit.
func ParseEventType(s string) EventType {
	switch EventType(s) {
	case EventEdit, EventBrowse, EventSearch, EventTool, EventFocus, EventBlur, EventSave:
		return EventType(s)
	default:
		return EventEdit
	}
}

// ContextType is a closed set of work-block context kinds.
type ContextType string

const (
	ContextDocument ContextType = "document"
	ContextTask     ContextType = "task"
	ContextBrowser  ContextType = "browser"
	ContextManual   ContextType = "manual"
	ContextMixed    ContextType = "mixed"
)

// ParseContextType defaults unknown values to ContextMixed.
func ParseContextType(s string) ContextType {
	switch ContextType(s) {
	case ContextDocument, ContextTask, ContextBrowser, ContextManual, ContextMixed:
		return ContextType(s)
	default:
		return ContextMixed
	}
}

// NewID mints a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// NowMillis returns the current time as epoch milliseconds — the single
// timebase every timestamp in this package is stamped from.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ContentEntry is a deduplicated, access-counted payload in the content store.
type ContentEntry struct {
	Digest         string
	Payload        []byte
	Kind           string
	ByteSize       int
	CreatedAt      int64
	LastAccessedAt int64
	AccessCount    int
}

// ClipboardCapture records one clipboard copy.
type ClipboardCapture struct {
	ID            string
	ContentDigest string
	Preview       string
	SourceURL     *string
	SourceTitle   *string
	CapturedAt    int64
}

// BrowseCapture records a page visit; LeftAt/ScrollDepthPercent are set by
// a later UpdateBrowse call keyed by ID.
type BrowseCapture struct {
	ID                 string
	URL                string
	Title              *string
	EnteredAt          int64
	LeftAt             *int64
	ScrollDepthPercent *int
}

// SearchCapture records a search query; ResultClicked is patched later.
type SearchCapture struct {
	ID            string
	Query         string
	Engine        string
	ResultClicked *string
	Timestamp     int64
}

// AIExchangeCapture records a question/answer exchange with an AI model.
type AIExchangeCapture struct {
	ID              string
	QuestionDigest  string
	QuestionPreview string
	AnswerDigest    string
	AnswerPreview   string
	Model           string
	ContextDocID    *string
	Timestamp       int64
}

// DocEditCapture records an editing session on a document.
type DocEditCapture struct {
	ID         string
	DocID      string
	DocTitle   string
	EditPreview string
	CharDelta  int
	StartedAt  int64
	EndedAt    int64
}

// ActiveSourceEntry is a purely in-memory, time-decaying attention marker.
// Relevance is computed lazily at read time (see Tracker); the field here
// is a cache rewritten on every read/eviction decision.
type ActiveSourceEntry struct {
	SourceType  SourceType
	SourceID    string
	Title       *string
	ActivatedAt int64
	Relevance   float64
}

// SourceLink is an immutable record connecting committed content to the
// sources that plausibly contributed to it.
type SourceLink struct {
	ID              string
	DocID           string
	SectionPath     *string
	ContentDigest   string
	Preview         *string
	CreatedAt       int64
	ConfidenceScore float64
}

// LinkedSource is one source's contribution to a SourceLink.
type LinkedSource struct {
	ID               string
	LinkID           string
	SourceType       SourceType
	SourceID         string
	ContributionType ContributionType
	Timestamp        int64
}

// SourceLinkWithSources bundles a link with its linked sources (or none,
// for an orphan link).
type SourceLinkWithSources struct {
	Link    SourceLink
	Sources []LinkedSource
}

// WorkBlock is the persisted unit of coalesced activity.
type WorkBlock struct {
	ID            string
	ContextType   ContextType
	ContextID     *string
	ContextTitle  *string
	StartedAt     int64
	EndedAt       int64
	DurationSecs  int64
	AutoSummary   *string
	EditCount     int
	BrowseCount   int
	ResearchURLs  []string
	UserSummary   *string
	Notes         *string
	Tags          []string
	IsPinned      bool
	IsManual      bool
	CreatedAt     int64
	UpdatedAt     int64
}

// DisplaySummary returns UserSummary if set, else AutoSummary, else nil.
func (w *WorkBlock) DisplaySummary() *string {
	if w.UserSummary != nil {
		return w.UserSummary
	}
	return w.AutoSummary
}

// Milestone is a permanent marker on a context's timeline; it is never
// subject to TTL-based cleanup.
type Milestone struct {
	ID            string
	ContextType   ContextType
	ContextID     string
	MilestoneType string
	Timestamp     int64
	Note          *string
}

// Session groups work blocks under a longer-lived engagement (e.g. a
// day's work on a context). Additive bookkeeping: never required for a
// work block to persist. Recovered from original_source's workstream
// module (see SPEC_FULL.md "Supplemented features").
type Session struct {
	ID        string
	Title     *string
	StartedAt int64
	EndedAt   *int64
	BlockIDs  []string
}

// BufferedEvent is one entry in the in-memory, never-persisted EventBuffer.
type BufferedEvent struct {
	ID           string
	Timestamp    int64
	EventType    EventType
	ContextType  ContextType
	ContextID    *string
	ContextTitle *string
	URL          *string
	Delta        *int
}
