package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// contentKindClipboard tags payloads persisted by the clipboard sampler in
// the content store.
const contentKindClipboard = "clipboard"

// maxClipboardBytes is the largest clipboard payload the sampler accepts.
const maxClipboardBytes = 50 * 1024

// previewLength caps how much of a captured payload is kept inline on the
// capture record itself, distinct from the full body in ContentStore.
const previewLength = 200

// ClipboardSource reads the current system clipboard. Read must never
// block the sampler for more than a tick, and returns ok=false when the
// backend is unavailable rather than erroring.
type ClipboardSource interface {
	Read() (text string, ok bool)
}

// ActiveSource tracks the (url, title) of whatever the user is currently
// viewing, so the sampler can attach it to a clipboard capture. Backed by
// ActiveSourceTracker's webpage-side bookkeeping in practice, but kept as
// a narrow interface so the sampler doesn't depend on the whole tracker.
type ActiveSource interface {
	CurrentSource() (url *string, title *string)
}

// ClipboardConfig is the subset of capture configuration the sampler
// reads on every tick.
type ClipboardConfig interface {
	ClipboardEnabled() bool
	ClipboardPollInterval() time.Duration
}

// ClipboardSampler polls a ClipboardSource at a configurable cadence,
// filters and deduplicates, and pushes accepted captures into a
// CaptureBuffer.
type ClipboardSampler struct {
	source  ClipboardSource
	active  ActiveSource
	config  ClipboardConfig
	buffer  *CaptureBuffer
	content *ContentStore
	digest  Digest
	running atomic.Bool
	lastSeen string
}

// NewClipboardSampler wires a sampler over the given collaborators.
func NewClipboardSampler(source ClipboardSource, active ActiveSource, config ClipboardConfig, buffer *CaptureBuffer, content *ContentStore, digest Digest) *ClipboardSampler {
	return &ClipboardSampler{
		source:  source,
		active:  active,
		config:  config,
		buffer:  buffer,
		content: content,
		digest:  digest,
	}
}

// Run polls until ctx is cancelled. Cancellation is cooperative: a tick
// already in progress always completes before the loop checks ctx again.
func (s *ClipboardSampler) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	for {
		interval := s.config.ClipboardPollInterval()
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		s.tick()
	}
}

// IsRunning reports whether the sampler's loop is currently executing.
func (s *ClipboardSampler) IsRunning() bool {
	return s.running.Load()
}

func (s *ClipboardSampler) tick() {
	if !s.config.ClipboardEnabled() {
		return
	}

	text, ok := s.source.Read()
	if !ok {
		return
	}

	if len(text) > maxClipboardBytes {
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	digest := s.digest.Compute([]byte(text))
	if digest == s.lastSeen {
		return
	}
	s.lastSeen = digest

	url, title := s.active.CurrentSource()
	now := NowMillis()

	if err := s.content.Store(context.Background(), digest, []byte(text), contentKindClipboard, now); err != nil {
		slog.Warn("store clipboard content", "error", err)
		return
	}

	capture := ClipboardCapture{
		ID:            NewID(),
		ContentDigest: digest,
		Preview:       truncatePreview(text, previewLength),
		SourceURL:     url,
		SourceTitle:   title,
		CapturedAt:    now,
	}

	if !s.buffer.PushClipboard(capture) {
		slog.Debug("clipboard capture rejected as duplicate", "digest", digest)
	}
}

// truncatePreview truncates s to at most n characters (runes, not bytes)
// and appends an ellipsis marker iff truncation occurred.
func truncatePreview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
