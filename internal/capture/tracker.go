package capture

import "sync"

const (
	// decayRatePerSec is the linear relevance decay rate; at this rate
	// relevance reaches zero 100 seconds after activation.
	decayRatePerSec = 0.01
	// minLinkRelevance is the default threshold below which a source is
	// no longer considered active for linking purposes.
	minLinkRelevance = 0.3
	// maxActiveSources bounds memory use; activating past this evicts
	// the least-relevant entry.
	maxActiveSources = 30
)

// Tracker maintains the set of sources the user is currently engaged
// with, each carrying a relevance that decays linearly from 1.0 to 0.0
// over 100 seconds since activation. Relevance is recomputed lazily at
// read time; the stored value is a cache rewritten on every read or
// eviction decision.
type Tracker struct {
	mu      sync.Mutex
	entries []ActiveSourceEntry
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make([]ActiveSourceEntry, 0, maxActiveSources)}
}

// Activate records that the user is now engaged with a source. If the
// source is already tracked, its relevance and title are refreshed
// in place rather than adding a duplicate entry.
func (t *Tracker) Activate(sourceType SourceType, sourceID string, title *string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := NowMillis()

	for i := range t.entries {
		if t.entries[i].SourceID == sourceID {
			t.entries[i].Relevance = 1.0
			t.entries[i].ActivatedAt = now
			t.entries[i].Title = title
			return
		}
	}

	if len(t.entries) >= maxActiveSources {
		t.applyDecayLocked(now)
		t.evictLeastRelevantLocked()
	}

	t.entries = append(t.entries, ActiveSourceEntry{
		SourceType:  sourceType,
		SourceID:    sourceID,
		Title:       title,
		ActivatedAt: now,
		Relevance:   1.0,
	})
}

// Deactivate removes a source by id. No-op if absent.
func (t *Tracker) Deactivate(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].SourceID == sourceID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// GetActive recomputes every entry's decay and returns those meeting the
// relevance threshold. A nil threshold uses minLinkRelevance.
func (t *Tracker) GetActive(minRelevance *float64) []ActiveSourceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	threshold := minLinkRelevance
	if minRelevance != nil {
		threshold = *minRelevance
	}

	t.applyDecayLocked(NowMillis())

	out := make([]ActiveSourceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Relevance >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// ApplyDecay recomputes every entry's relevance and drops anything that
// has decayed below minLinkRelevance.
func (t *Tracker) ApplyDecay() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := NowMillis()
	t.applyDecayLocked(now)

	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.Relevance >= minLinkRelevance {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Snapshot reports the average relevance (after decay) and count of
// currently tracked sources — a cheap status readout published by the
// metrics exporter's active-source gauges.
func (t *Tracker) Snapshot() (avgRelevance float64, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.applyDecayLocked(NowMillis())

	if len(t.entries) == 0 {
		return 0, 0
	}
	var sum float64
	for _, e := range t.entries {
		sum += e.Relevance
	}
	return sum / float64(len(t.entries)), len(t.entries)
}

// Clear removes every tracked source.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = t.entries[:0]
}

// Count returns the number of tracked sources without applying decay.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) applyDecayLocked(now int64) {
	for i := range t.entries {
		elapsedSecs := float64(now-t.entries[i].ActivatedAt) / 1000.0
		relevance := 1.0 - decayRatePerSec*elapsedSecs
		if relevance < 0 {
			relevance = 0
		}
		t.entries[i].Relevance = relevance
	}
}

// evictLeastRelevantLocked removes the entry with the lowest relevance,
// breaking ties by oldest activation. Caller must hold t.mu and have
// already applied decay.
func (t *Tracker) evictLeastRelevantLocked() {
	if len(t.entries) == 0 {
		return
	}
	minIdx := 0
	for i := 1; i < len(t.entries); i++ {
		e, cur := t.entries[i], t.entries[minIdx]
		if e.Relevance < cur.Relevance || (e.Relevance == cur.Relevance && e.ActivatedAt < cur.ActivatedAt) {
			minIdx = i
		}
	}
	t.entries = append(t.entries[:minIdx], t.entries[minIdx+1:]...)
}
