package capture

import "sync"

// Default per-family ring buffer capacities.
const (
	clipboardCapacity  = 50
	browseCapacity     = 100
	searchCapacity     = 50
	aiExchangeCapacity = 20
	docEditCapacity    = 50
)

// CaptureBuffer aggregates one RingBuffer per capture family plus the
// clipboard's consecutive-duplicate guard. It is the in-memory staging
// area every sampler pushes into before a drain persists to the Store.
type CaptureBuffer struct {
	clipboardMu sync.Mutex
	lastDigest  string

	clipboard  *RingBuffer[ClipboardCapture]
	browse     *RingBuffer[BrowseCapture]
	search     *RingBuffer[SearchCapture]
	aiExchange *RingBuffer[AIExchangeCapture]
	docEdit    *RingBuffer[DocEditCapture]
}

// NewCaptureBuffer builds a CaptureBuffer with the default family capacities.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{
		clipboard:  NewRingBuffer[ClipboardCapture](clipboardCapacity),
		browse:     NewRingBuffer[BrowseCapture](browseCapacity),
		search:     NewRingBuffer[SearchCapture](searchCapacity),
		aiExchange: NewRingBuffer[AIExchangeCapture](aiExchangeCapacity),
		docEdit:    NewRingBuffer[DocEditCapture](docEditCapacity),
	}
}

// PushClipboard rejects iff digest equals the last accepted clipboard
// digest, independent of the ring's own drop-oldest behavior — this
// guards against consecutive duplicates, not against duplicates anywhere
// in the ring. Returns whether the capture was accepted.
func (b *CaptureBuffer) PushClipboard(c ClipboardCapture) bool {
	b.clipboardMu.Lock()
	if c.ContentDigest == b.lastDigest {
		b.clipboardMu.Unlock()
		return false
	}
	b.lastDigest = c.ContentDigest
	b.clipboardMu.Unlock()

	b.clipboard.Push(c)
	return true
}

func (b *CaptureBuffer) PushBrowse(c BrowseCapture)         { b.browse.Push(c) }
func (b *CaptureBuffer) PushSearch(c SearchCapture)         { b.search.Push(c) }
func (b *CaptureBuffer) PushAIExchange(c AIExchangeCapture) { b.aiExchange.Push(c) }
func (b *CaptureBuffer) PushDocEdit(c DocEditCapture)       { b.docEdit.Push(c) }

// UpdateBrowse patches an in-flight browse capture (leave time, scroll
// depth) by ID. A silent no-op if the entry has already been drained.
func (b *CaptureBuffer) UpdateBrowse(id string, leftAt int64, scrollDepth *int) bool {
	return b.browse.UpdateByID(
		func(c BrowseCapture) bool { return c.ID == id },
		func(c *BrowseCapture) {
			c.LeftAt = &leftAt
			c.ScrollDepthPercent = scrollDepth
		},
	)
}

// UpdateSearchClick patches an in-flight search capture with the result
// the user clicked. A silent no-op once drained.
func (b *CaptureBuffer) UpdateSearchClick(id string, resultURL string) bool {
	return b.search.UpdateByID(
		func(c SearchCapture) bool { return c.ID == id },
		func(c *SearchCapture) { c.ResultClicked = &resultURL },
	)
}

// RequeueClipboard, RequeueBrowse, RequeueSearch, RequeueAIExchange, and
// RequeueDocEdit restore previously drained captures, oldest first, behind
// anything pushed since the drain. Used to recover from a storage failure
// partway through persisting a DrainAll snapshot.
func (b *CaptureBuffer) RequeueClipboard(items []ClipboardCapture)   { b.clipboard.Requeue(items) }
func (b *CaptureBuffer) RequeueBrowse(items []BrowseCapture)         { b.browse.Requeue(items) }
func (b *CaptureBuffer) RequeueSearch(items []SearchCapture)         { b.search.Requeue(items) }
func (b *CaptureBuffer) RequeueAIExchange(items []AIExchangeCapture) { b.aiExchange.Requeue(items) }
func (b *CaptureBuffer) RequeueDocEdit(items []DocEditCapture)       { b.docEdit.Requeue(items) }

// DrainSnapshot is every family's contents as of one atomic DrainAll pass.
type DrainSnapshot struct {
	Clipboard  []ClipboardCapture
	Browse     []BrowseCapture
	Search     []SearchCapture
	AIExchange []AIExchangeCapture
	DocEdit    []DocEditCapture
}

// DrainAll empties every family in a fixed lock-acquisition order
// (clipboard, browse, search, ai_exchange, doc_edit) so two goroutines
// racing to drain can never deadlock against each other. Each family's
// drain is independently atomic; callers never observe a half-drained
// family, but a snapshot spanning multiple families is not a single
// cross-family transaction.
func (b *CaptureBuffer) DrainAll() DrainSnapshot {
	return DrainSnapshot{
		Clipboard:  b.clipboard.DrainAll(),
		Browse:     b.browse.DrainAll(),
		Search:     b.search.DrainAll(),
		AIExchange: b.aiExchange.DrainAll(),
		DocEdit:    b.docEdit.DrainAll(),
	}
}

// Clear empties every family without returning their contents, and
// resets the clipboard dedup guard — used by the "clear all captures"
// operation.
func (b *CaptureBuffer) Clear() {
	b.clipboard.DrainAll()
	b.browse.DrainAll()
	b.search.DrainAll()
	b.aiExchange.DrainAll()
	b.docEdit.DrainAll()

	b.clipboardMu.Lock()
	b.lastDigest = ""
	b.clipboardMu.Unlock()
}

// Depths reports the current element count of every family, used by the
// metrics exporter to publish buffer-depth gauges.
func (b *CaptureBuffer) Depths() map[string]int {
	return map[string]int{
		"clipboard":   b.clipboard.Len(),
		"browse":      b.browse.Len(),
		"search":      b.search.Len(),
		"ai_exchange": b.aiExchange.Len(),
		"doc_edit":    b.docEdit.Len(),
	}
}
