package capture

import (
	"fmt"
	"sync"
)

// Default EventBuffer thresholds.
const (
	maxBufferedEvents  = 100
	minEventsForBlock  = 2
	maxResearchURLs    = 5
)

// currentContext identifies what the buffer considers "now" for
// context-switch detection.
type currentContext struct {
	contextType ContextType
	contextID   *string
	set         bool
}

// EventBuffer is an in-memory event stream, never persisted, distinct
// from CaptureBuffer. It accumulates BufferedEvents until a context
// switch or the size cap forces a flush into a WorkBlock.
type EventBuffer struct {
	mu      sync.Mutex
	events  []BufferedEvent
	current currentContext
}

// NewEventBuffer returns an empty EventBuffer.
func NewEventBuffer() *EventBuffer {
	return &EventBuffer{events: make([]BufferedEvent, 0, maxBufferedEvents)}
}

// PushResult reports what happened when an event was appended.
type PushResult struct {
	ShouldFlush      bool
	ContextSwitched  bool
	EventCount       int
}

// Push appends an event, detecting a context switch against the buffer's
// current context and updating it unconditionally to the event's own.
func (b *EventBuffer) Push(e BufferedEvent) PushResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	contextSwitched := b.current.set &&
		(b.current.contextType != e.ContextType || !samePtrString(b.current.contextID, e.ContextID))

	b.current = currentContext{contextType: e.ContextType, contextID: e.ContextID, set: true}
	b.events = append(b.events, e)

	return PushResult{
		ShouldFlush:     len(b.events) >= maxBufferedEvents || contextSwitched,
		ContextSwitched: contextSwitched,
		EventCount:      len(b.events),
	}
}

// Status is a point-in-time readout of the buffer.
type Status struct {
	EventCount     int
	OldestEventAt  *int64
	NewestEventAt  *int64
	CurrentContext *string
}

func (b *EventBuffer) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var st Status
	st.EventCount = len(b.events)
	if len(b.events) > 0 {
		oldest := b.events[0].Timestamp
		newest := b.events[len(b.events)-1].Timestamp
		st.OldestEventAt = &oldest
		st.NewestEventAt = &newest
	}
	st.CurrentContext = b.current.contextID
	return st
}

// CanCreateBlock reports whether a flush right now would meet the
// minimum-events threshold.
func (b *EventBuffer) CanCreateBlock() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) >= minEventsForBlock
}

// IdleFor returns milliseconds since the most recent event, or nil if
// the buffer is empty — used to detect inactivity independent of any
// flush having occurred.
func (b *EventBuffer) IdleFor(now int64) *int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	d := now - b.events[len(b.events)-1].Timestamp
	return &d
}

// FlushResult is the coalesced summary of a drained EventBuffer.
type FlushResult struct {
	Events       []BufferedEvent
	StartedAt    int64
	EndedAt      int64
	ContextType  ContextType
	ContextID    *string
	ContextTitle *string
	EditCount    int
	BrowseCount  int
	ResearchURLs []string
	AutoSummary  string
}

// Flush drains the buffer and computes a FlushResult, or returns nil if
// fewer than minEventsForBlock events are present (buffer is left
// untouched in that case).
func (b *EventBuffer) Flush() *FlushResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) < minEventsForBlock {
		return nil
	}

	events := b.events
	b.events = make([]BufferedEvent, 0, maxBufferedEvents)
	b.current = currentContext{}

	result := &FlushResult{
		Events:    events,
		StartedAt: events[0].Timestamp,
		EndedAt:   events[len(events)-1].Timestamp,
	}

	seenURLs := make(map[string]bool)
	for _, e := range events {
		switch e.EventType {
		case EventEdit:
			result.EditCount++
		case EventBrowse:
			result.BrowseCount++
			if e.URL != nil && !seenURLs[*e.URL] && len(result.ResearchURLs) < maxResearchURLs {
				seenURLs[*e.URL] = true
				result.ResearchURLs = append(result.ResearchURLs, *e.URL)
			}
		}
		if result.ContextID == nil && e.ContextID != nil {
			result.ContextID = e.ContextID
		}
		if result.ContextTitle == nil && e.ContextTitle != nil {
			result.ContextTitle = e.ContextTitle
		}
	}

	unanimous := true
	for _, e := range events {
		if e.ContextType != events[0].ContextType {
			unanimous = false
			break
		}
	}
	if unanimous {
		result.ContextType = events[0].ContextType
	} else {
		result.ContextType = ContextMixed
	}

	result.AutoSummary = generateLocalSummary(events, result.ContextTitle)

	return result
}

// Clear drops all buffered events without producing a FlushResult.
func (b *EventBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
	b.current = currentContext{}
}

func samePtrString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// generateLocalSummary builds a deterministic, LLM-free sentence from
// event-type tallies. Plural forms must agree with their counts.
func generateLocalSummary(events []BufferedEvent, contextTitle *string) string {
	var editCount, browseCount, searchCount, toolCount, saveCount int
	for _, e := range events {
		switch e.EventType {
		case EventEdit:
			editCount++
		case EventBrowse:
			browseCount++
		case EventSearch:
			searchCount++
		case EventTool:
			toolCount++
		case EventSave:
			saveCount++
		}
	}

	title := "document"
	if contextTitle != nil && *contextTitle != "" {
		title = *contextTitle
	}

	var parts []string

	if editCount > 0 {
		if saveCount > 0 {
			parts = append(parts, fmt.Sprintf("Edited and saved %s", title))
		} else {
			parts = append(parts, fmt.Sprintf("Edited %s", title))
		}
	}

	if browseCount > 0 {
		if editCount > 0 {
			parts = append(parts, fmt.Sprintf("with %d site%s researched", browseCount, plural(browseCount)))
		} else {
			parts = append(parts, fmt.Sprintf("Browsed %d site%s", browseCount, plural(browseCount)))
		}
	}

	if searchCount > 0 && len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("Searched %d time%s", searchCount, plural(searchCount)))
	}

	if toolCount > 0 {
		if len(parts) == 0 {
			parts = append(parts, fmt.Sprintf("Used %d tool%s", toolCount, plural(toolCount)))
		} else {
			parts = append(parts, fmt.Sprintf("using %d tool%s", toolCount, plural(toolCount)))
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Brief activity on %s", title)
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
