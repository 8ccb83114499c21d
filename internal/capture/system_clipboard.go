package capture

import "github.com/atotto/clipboard"

// SystemClipboard reads the OS clipboard via the platform-native backend
// (pbpaste on macOS, xclip/xsel/wl-clipboard on Linux, the Win32 API on
// Windows). It satisfies ClipboardSource.
type SystemClipboard struct{}

// NewSystemClipboard returns a ClipboardSource backed by the OS clipboard.
func NewSystemClipboard() SystemClipboard {
	return SystemClipboard{}
}

func (SystemClipboard) Read() (string, bool) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", false
	}
	return text, true
}

// trackerActiveSource adapts a Tracker into the narrow ActiveSource
// interface the clipboard sampler depends on, reporting the most recently
// activated webpage or document source.
type trackerActiveSource struct {
	tracker *Tracker
}

// NewTrackerActiveSource wraps a Tracker for use by ClipboardSampler.
func NewTrackerActiveSource(tracker *Tracker) ActiveSource {
	return trackerActiveSource{tracker: tracker}
}

func (a trackerActiveSource) CurrentSource() (url *string, title *string) {
	active := a.tracker.GetActive(nil)

	var best *ActiveSourceEntry
	for i := range active {
		e := &active[i]
		if e.SourceType != SourceWebpage && e.SourceType != SourceDocument {
			continue
		}
		if best == nil || e.ActivatedAt > best.ActivatedAt {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}

	id := best.SourceID
	return &id, best.Title
}
