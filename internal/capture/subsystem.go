package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomcore/provenance/internal/protocol"
)

// pruneInterval matches the cadence the teacher agent prunes its own
// metrics tables on: no more than once an hour.
const pruneInterval = time.Hour

// Subsystem composes every collaborator behind the activity-provenance
// engine: bounded capture buffering, decay-weighted source tracking, event
// coalescing into WorkBlocks, and the content-addressed store everything
// is eventually persisted through.
type Subsystem struct {
	cfg     *Config
	overlay *Overlay
	store   *Store
	content *ContentStore

	buffer    *CaptureBuffer
	clipboard *ClipboardSampler
	tracker   *Tracker
	linker    *Linker
	events    *EventBuffer
	coalescer *Coalescer
	digest    Digest

	hub    *Hub
	socket *SocketServer

	metrics       *Metrics
	metricsServer *http.Server

	lastPrune time.Time
	lastDrain time.Time
}

// New wires a Subsystem from static config. The store is opened, the
// dynamic overlay is loaded from it, and every in-memory collaborator is
// constructed over those two. Run starts the background loops; New does
// no I/O beyond opening the database.
func New(cfg *Config) (*Subsystem, error) {
	store, err := OpenStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	overlay, err := NewOverlay(context.Background(), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load config overlay: %w", err)
	}

	content := NewContentStore(store)
	buffer := NewCaptureBuffer()
	tracker := NewTracker()
	linker := NewLinker(tracker, store, NewDigest())
	sampler := NewClipboardSampler(NewSystemClipboard(), NewTrackerActiveSource(tracker), overlay, buffer, content, NewDigest())
	hub := NewHub()

	s := &Subsystem{
		cfg:       cfg,
		overlay:   overlay,
		store:     store,
		content:   content,
		buffer:    buffer,
		clipboard: sampler,
		tracker:   tracker,
		linker:    linker,
		events:    NewEventBuffer(),
		coalescer: NewCoalescer(store),
		digest:    NewDigest(),
		hub:       hub,
	}
	s.socket = NewSocketServer(s)

	if cfg.Metrics.Enabled {
		handler, meter, err := PrometheusHandler()
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("build metrics handler: %w", err)
		}
		metrics, err := NewMetrics(meter, s)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("build metrics instruments: %w", err)
		}
		s.metrics = metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		s.metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	}

	return s, nil
}

// Run starts the clipboard sampler, socket server, and periodic
// flush/prune loops, blocking until ctx is cancelled.
func (s *Subsystem) Run(ctx context.Context) error {
	slog.Info("provenance subsystem starting", "storage", s.cfg.Storage.Path, "socket", s.cfg.Socket.Path)

	if err := s.socket.Start(s.cfg.Socket.Path); err != nil {
		return fmt.Errorf("start socket: %w", err)
	}

	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server", "error", err)
			}
		}()
	}

	go s.clipboard.Run(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs once a second: it checks whether the flush interval has
// elapsed for the event buffer and capture buffer, applies source decay,
// and prunes storage at most once an hour.
func (s *Subsystem) tick(ctx context.Context) {
	s.tracker.ApplyDecay()

	if s.events.CanCreateBlock() {
		if idle := s.events.IdleFor(NowMillis()); idle != nil && *idle >= s.overlay.FlushInterval().Milliseconds() {
			s.FlushEvents(ctx)
		}
	}

	if time.Since(s.lastDrain) >= s.overlay.FlushInterval() {
		s.lastDrain = time.Now()
		if err := s.DrainCaptures(ctx); err != nil {
			slog.Warn("drain captures failed", "error", err)
		}
	}

	if time.Since(s.lastPrune) >= pruneInterval {
		s.lastPrune = time.Now()
		if n, err := s.store.Prune(ctx, NowMillis()); err != nil {
			slog.Warn("prune failed", "error", err)
		} else if n > 0 {
			slog.Info("pruned expired rows", "count", n)
			if s.metrics != nil {
				s.metrics.RecordPrune(ctx, n)
			}
		}
	}
}

// FlushEvents drains the EventBuffer, commits a WorkBlock if there's
// enough to coalesce, and publishes it on TopicWorkBlocks. It is a no-op
// if fewer than the minimum number of events are buffered.
func (s *Subsystem) FlushEvents(ctx context.Context) (*WorkBlock, error) {
	result := s.events.Flush()
	if result == nil {
		return nil, nil
	}
	block, err := s.coalescer.CommitFlush(ctx, *result)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(TopicWorkBlocks, &protocol.WorkBlockEvent{Block: toWorkBlockMsg(*block)})
	if s.metrics != nil {
		s.metrics.RecordWorkBlock(ctx, false)
	}
	return block, nil
}

// DrainCaptures drains the in-memory CaptureBuffer into the store. It is
// the periodic write-behind path every sampler's captures eventually pass
// through. A storage error aborts the drain partway through: whatever
// hasn't been persisted yet — the failing item, the rest of its family,
// and every family not yet reached — is requeued into the buffer rather
// than discarded, so the next drain attempt retries it.
func (s *Subsystem) DrainCaptures(ctx context.Context) error {
	snap := s.buffer.DrainAll()

	for i, c := range snap.Clipboard {
		if err := s.store.InsertClipboardCapture(ctx, c); err != nil {
			s.requeueRemaining(snap, i, 0, 0, 0, 0)
			return fmt.Errorf("insert clipboard capture: %w", err)
		}
		s.hub.Publish(TopicCaptures, &protocol.CaptureEvent{Kind: "clipboard", ID: c.ID, Timestamp: c.CapturedAt})
	}
	for i, c := range snap.Browse {
		if err := s.store.InsertBrowseCapture(ctx, c); err != nil {
			s.requeueRemaining(snap, len(snap.Clipboard), i, 0, 0, 0)
			return fmt.Errorf("insert browse capture: %w", err)
		}
		s.hub.Publish(TopicCaptures, &protocol.CaptureEvent{Kind: "browse", ID: c.ID, Timestamp: c.EnteredAt})
	}
	for i, c := range snap.Search {
		if err := s.store.InsertSearchCapture(ctx, c); err != nil {
			s.requeueRemaining(snap, len(snap.Clipboard), len(snap.Browse), i, 0, 0)
			return fmt.Errorf("insert search capture: %w", err)
		}
		s.hub.Publish(TopicCaptures, &protocol.CaptureEvent{Kind: "search", ID: c.ID, Timestamp: c.Timestamp})
	}
	for i, c := range snap.AIExchange {
		if err := s.store.InsertAIExchangeCapture(ctx, c); err != nil {
			s.requeueRemaining(snap, len(snap.Clipboard), len(snap.Browse), len(snap.Search), i, 0)
			return fmt.Errorf("insert ai exchange capture: %w", err)
		}
		s.hub.Publish(TopicCaptures, &protocol.CaptureEvent{Kind: "ai_exchange", ID: c.ID, Timestamp: c.Timestamp})
	}
	for i, c := range snap.DocEdit {
		if err := s.store.InsertDocEditCapture(ctx, c); err != nil {
			s.requeueRemaining(snap, len(snap.Clipboard), len(snap.Browse), len(snap.Search), len(snap.AIExchange), i)
			return fmt.Errorf("insert doc edit capture: %w", err)
		}
		s.hub.Publish(TopicCaptures, &protocol.CaptureEvent{Kind: "doc_edit", ID: c.ID, Timestamp: c.StartedAt})
	}
	return nil
}

// requeueRemaining restores everything in snap from the given per-family
// offsets onward. A family whose offset has already passed its own length
// is skipped entirely (already persisted); a family whose offset is 0 and
// hasn't been reached yet is requeued in full.
func (s *Subsystem) requeueRemaining(snap DrainSnapshot, clipboardFrom, browseFrom, searchFrom, aiExchangeFrom, docEditFrom int) {
	s.buffer.RequeueClipboard(snap.Clipboard[clipboardFrom:])
	s.buffer.RequeueBrowse(snap.Browse[browseFrom:])
	s.buffer.RequeueSearch(snap.Search[searchFrom:])
	s.buffer.RequeueAIExchange(snap.AIExchange[aiExchangeFrom:])
	s.buffer.RequeueDocEdit(snap.DocEdit[docEditFrom:])
}

func (s *Subsystem) shutdown() error {
	slog.Info("provenance subsystem shutting down")
	s.socket.Stop()
	if s.metricsServer != nil {
		s.metricsServer.Close()
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	slog.Info("provenance subsystem stopped")
	return nil
}
