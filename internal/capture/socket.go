package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/loomcore/provenance/internal/protocol"
)

const maxConnections = 64

// ProtocolVersion is the wire protocol version advertised on Hello.
const ProtocolVersion = 1

// Version is the daemon's build version, reported by Hello and by
// provenanced --version. It can be set at link time with -ldflags -X.
var Version = "dev"

// SocketServer serves protocol messages over a Unix domain socket,
// dispatching queries and actions to a Subsystem and fanning out its Hub
// topics to subscribed clients.
type SocketServer struct {
	sub      *Subsystem
	listener net.Listener
	path     string
	wg       sync.WaitGroup
	connSem  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSocketServer creates a SocketServer bound to a Subsystem. Call Start
// to begin accepting connections.
func NewSocketServer(sub *Subsystem) *SocketServer {
	return &SocketServer{
		sub:     sub,
		connSem: make(chan struct{}, maxConnections),
	}
}

// Start begins listening on the given Unix socket path, mode 0600.
func (ss *SocketServer) Start(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	ss.ctx, ss.cancel = context.WithCancel(context.Background())
	ss.listener = ln
	ss.path = path
	ss.wg.Add(1)
	go ss.acceptLoop()
	slog.Info("socket server started", "path", path)
	return nil
}

// Stop closes the listener, waits for all connections, and removes the
// socket file.
func (ss *SocketServer) Stop() {
	if ss.cancel != nil {
		ss.cancel()
	}
	if ss.listener != nil {
		ss.listener.Close()
	}
	ss.wg.Wait()
	if ss.path != "" {
		os.Remove(ss.path)
	}
	slog.Info("socket server stopped")
}

func (ss *SocketServer) acceptLoop() {
	defer ss.wg.Done()
	for {
		conn, err := ss.listener.Accept()
		if err != nil {
			if !isClosedErr(err) {
				slog.Error("accept error", "error", err)
			}
			return
		}

		select {
		case ss.connSem <- struct{}{}:
		default:
			slog.Warn("connection limit reached, rejecting")
			conn.Close()
			continue
		}

		ss.wg.Add(1)
		go ss.handleConn(conn)
	}
}

func (ss *SocketServer) handleConn(conn net.Conn) {
	defer ss.wg.Done()
	defer conn.Close()
	defer func() { <-ss.connSem }()

	slog.Info("client connected", "remote", conn.RemoteAddr())

	ctx, cancel := context.WithCancel(ss.ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c := &connState{
		ss:   ss,
		conn: conn,
		ctx:  ctx,
		subs: make(map[string]*subscription),
	}
	defer c.cleanup()
	defer slog.Info("client disconnected", "remote", conn.RemoteAddr())

	for {
		env, err := protocol.ReadMsg(conn)
		if err != nil {
			if !isEOF(err) && !isClosedErr(err) && ctx.Err() == nil {
				slog.Warn("read error", "error", err)
			}
			return
		}
		c.dispatch(env)
	}
}

type subscription struct {
	sub    *subscriber
	topic  string
	cancel context.CancelFunc
}

// connState holds per-connection state.
type connState struct {
	ss      *SocketServer
	conn    net.Conn
	ctx     context.Context
	writeMu sync.Mutex
	subs    map[string]*subscription
}

func (c *connState) cleanup() {
	for topic, s := range c.subs {
		s.cancel()
		c.ss.sub.hub.Unsubscribe(s.topic, s.sub)
		delete(c.subs, topic)
	}
}

func (c *connState) writeMsg(env *protocol.Envelope) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteMsg(c.conn, env); err != nil {
		if !isClosedErr(err) {
			slog.Warn("write error", "error", err)
		}
	}
}

func (c *connState) sendResult(id uint32, res *protocol.Result) {
	env, err := protocol.NewEnvelope(protocol.TypeResult, id, res)
	if err != nil {
		slog.Error("encode result", "error", err)
		return
	}
	c.writeMsg(env)
}

func (c *connState) sendError(id uint32, msg string) {
	env, err := protocol.NewEnvelope(protocol.TypeError, id, &protocol.ErrorResult{Error: msg})
	if err != nil {
		slog.Error("encode error", "error", err)
		return
	}
	c.writeMsg(env)
}

func (c *connState) sendResponse(id uint32, body any) {
	env, err := protocol.NewEnvelope(protocol.TypeResult, id, body)
	if err != nil {
		slog.Error("encode response", "error", err)
		return
	}
	c.writeMsg(env)
}

func (c *connState) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeHello:
		c.hello(env)

	case protocol.TypeSubscribeCaptures:
		c.subscribeSimple(TopicCaptures, protocol.TypeCaptureEvent)
	case protocol.TypeSubscribeWorkBlocks:
		c.subscribeSimple(TopicWorkBlocks, protocol.TypeWorkBlockEvent)
	case protocol.TypeSubscribeSourceLinks:
		c.subscribeSimple(TopicSourceLinks, protocol.TypeSourceLinkEvent)
	case protocol.TypeUnsubscribe:
		c.unsubscribe(env)

	case protocol.TypeQueryProvenance:
		c.queryProvenance(env)
	case protocol.TypeQueryRecentWorkBlocks:
		c.queryRecentWorkBlocks(env)
	case protocol.TypeQueryWorkBlocksForDoc:
		c.queryWorkBlocksForDoc(env)
	case protocol.TypeQueryMilestones:
		c.queryMilestones(env)
	case protocol.TypeQueryRecentSessions:
		c.queryRecentSessions(env)

	case protocol.TypeActionCreateManualBlock:
		c.createManualBlock(env)
	case protocol.TypeActionAnnotateBlock:
		c.annotateBlock(env)
	case protocol.TypeActionCreateSourceLink:
		c.createSourceLink(env)
	case protocol.TypeActionActivateSource:
		c.activateSource(env)
	case protocol.TypeActionDeactivateSource:
		c.deactivateSource(env)
	case protocol.TypeActionUpsertSession:
		c.upsertSession(env)
	case protocol.TypeActionSetConfig:
		c.setConfig(env)
	case protocol.TypeActionClearCaptures:
		c.clearCaptures(env)

	case protocol.TypeActionPushBrowseCapture:
		c.pushBrowseCapture(env)
	case protocol.TypeActionPushSearchCapture:
		c.pushSearchCapture(env)
	case protocol.TypeActionPushAIExchangeCapture:
		c.pushAIExchangeCapture(env)
	case protocol.TypeActionPushDocEditCapture:
		c.pushDocEditCapture(env)
	case protocol.TypeActionUpdateBrowseCapture:
		c.updateBrowseCapture(env)
	case protocol.TypeActionUpdateSearchClick:
		c.updateSearchClick(env)
	case protocol.TypeActionPushEvent:
		c.pushEvent(env)
	case protocol.TypeActionCreateMilestone:
		c.createMilestone(env)

	default:
		c.sendError(env.ID, fmt.Sprintf("unknown message type: %s", env.Type))
	}
}

// --- Hello ---

func (c *connState) hello(env *protocol.Envelope) {
	c.sendResponse(env.ID, &protocol.HelloResp{
		ProtocolVersion: ProtocolVersion,
		Version:         Version,
	})
}

// --- Streaming ---

func (c *connState) subscribeSimple(topic string, envType protocol.MsgType) {
	if _, exists := c.subs[topic]; exists {
		return
	}

	sub, ch := c.ss.sub.hub.Subscribe(topic)
	ctx, cancel := context.WithCancel(c.ctx)
	c.subs[topic] = &subscription{sub: sub, topic: topic, cancel: cancel}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := protocol.NewEnvelope(envType, 0, msg)
				if err != nil {
					continue
				}
				c.writeMsg(env)
			}
		}
	}()
}

func (c *connState) unsubscribe(env *protocol.Envelope) {
	var unsub protocol.Unsubscribe
	if err := protocol.DecodeBody(env.Body, &unsub); err != nil {
		c.sendError(env.ID, "invalid unsubscribe body")
		return
	}
	if s, exists := c.subs[unsub.Topic]; exists {
		s.cancel()
		c.ss.sub.hub.Unsubscribe(s.topic, s.sub)
		delete(c.subs, unsub.Topic)
	}
}

// --- Queries ---

func (c *connState) queryProvenance(env *protocol.Envelope) {
	var req protocol.QueryProvenanceReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid query body")
		return
	}
	links, err := c.ss.sub.linker.GetDocumentProvenance(c.ctx, req.DocID)
	if err != nil {
		slog.Error("query provenance", "error", err)
		c.sendError(env.ID, "query failed")
		return
	}
	resp := protocol.QueryProvenanceResp{Links: make([]protocol.SourceLinkMsg, len(links))}
	for i, l := range links {
		resp.Links[i] = toSourceLinkMsg(l)
	}
	c.sendResponse(env.ID, &resp)
}

func (c *connState) queryRecentWorkBlocks(env *protocol.Envelope) {
	var req protocol.QueryRecentWorkBlocksReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid query body")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	blocks, err := c.ss.sub.store.QueryRecentWorkBlocks(c.ctx, limit)
	if err != nil {
		slog.Error("query recent work blocks", "error", err)
		c.sendError(env.ID, "query failed")
		return
	}
	c.sendResponse(env.ID, &protocol.QueryRecentWorkBlocksResp{Blocks: toWorkBlockMsgs(blocks)})
}

func (c *connState) queryWorkBlocksForDoc(env *protocol.Envelope) {
	var req protocol.QueryWorkBlocksForDocReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid query body")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	blocks, err := c.ss.sub.store.QueryWorkBlocksForContext(c.ctx, ParseContextType(req.ContextType), req.ContextID, limit)
	if err != nil {
		slog.Error("query work blocks for context", "error", err)
		c.sendError(env.ID, "query failed")
		return
	}
	c.sendResponse(env.ID, &protocol.QueryWorkBlocksForDocResp{Blocks: toWorkBlockMsgs(blocks)})
}

func (c *connState) queryMilestones(env *protocol.Envelope) {
	var req protocol.QueryMilestonesReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid query body")
		return
	}
	milestones, err := c.ss.sub.store.QueryMilestones(c.ctx, ParseContextType(req.ContextType), req.ContextID)
	if err != nil {
		slog.Error("query milestones", "error", err)
		c.sendError(env.ID, "query failed")
		return
	}
	resp := protocol.QueryMilestonesResp{Milestones: make([]protocol.MilestoneMsg, len(milestones))}
	for i, m := range milestones {
		resp.Milestones[i] = protocol.MilestoneMsg{
			ID:          m.ID,
			ContextType: string(m.ContextType),
			ContextID:   m.ContextID,
			Title:       m.MilestoneType,
			OccurredAt:  m.Timestamp,
		}
	}
	c.sendResponse(env.ID, &resp)
}

func (c *connState) queryRecentSessions(env *protocol.Envelope) {
	var req protocol.QueryRecentSessionsReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid query body")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	sessions, err := c.ss.sub.store.QueryRecentSessions(c.ctx, limit)
	if err != nil {
		slog.Error("query recent sessions", "error", err)
		c.sendError(env.ID, "query failed")
		return
	}
	resp := protocol.QueryRecentSessionsResp{Sessions: make([]protocol.SessionMsg, len(sessions))}
	for i, s := range sessions {
		resp.Sessions[i] = toSessionMsg(s)
	}
	c.sendResponse(env.ID, &resp)
}

// --- Actions ---

func (c *connState) createManualBlock(env *protocol.Envelope) {
	var req protocol.CreateManualBlockReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.EndedAt < req.StartedAt {
		c.sendError(env.ID, "ended_at must be >= started_at")
		return
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	var contextTitle *string
	if req.ContextTitle != "" {
		contextTitle = &req.ContextTitle
	}

	block, err := c.ss.sub.coalescer.CommitManual(c.ctx, ManualBlockInput{
		StartedAt:    req.StartedAt,
		EndedAt:      req.EndedAt,
		UserSummary:  req.UserSummary,
		Notes:        notes,
		Tags:         req.Tags,
		ContextType:  ParseContextType(req.ContextType),
		ContextTitle: contextTitle,
	})
	if err != nil {
		slog.Error("create manual block", "error", err)
		c.sendError(env.ID, "create failed")
		return
	}
	c.ss.sub.hub.Publish(TopicWorkBlocks, &protocol.WorkBlockEvent{Block: toWorkBlockMsg(*block)})
	if c.ss.sub.metrics != nil {
		c.ss.sub.metrics.RecordWorkBlock(c.ctx, true)
	}
	c.sendResponse(env.ID, &protocol.CreateManualBlockResp{Block: toWorkBlockMsg(*block)})
}

func (c *connState) annotateBlock(env *protocol.Envelope) {
	var req protocol.AnnotateBlockReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.ID == "" {
		c.sendError(env.ID, "id is required")
		return
	}
	var userSummary, notes *string
	if req.UserSummary != "" {
		userSummary = &req.UserSummary
	}
	if req.Notes != "" {
		notes = &req.Notes
	}
	if err := c.ss.sub.store.UpdateWorkBlockAnnotation(c.ctx, req.ID, userSummary, notes, req.Tags, req.IsPinned, NowMillis()); err != nil {
		slog.Error("annotate block", "error", err)
		c.sendError(env.ID, "update failed")
		return
	}
	c.sendResult(env.ID, &protocol.Result{OK: true, Message: "updated"})
}

func (c *connState) createSourceLink(env *protocol.Envelope) {
	if !c.ss.sub.overlay.SourceLinkingEnabled() {
		c.sendError(env.ID, "source linking is disabled")
		return
	}
	var req protocol.CreateSourceLinkReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.DocID == "" {
		c.sendError(env.ID, "doc_id is required")
		return
	}
	var sectionPath *string
	if req.SectionPath != "" {
		sectionPath = &req.SectionPath
	}
	link, err := c.ss.sub.linker.CreateSourceLink(c.ctx, CreateSourceLinkInput{
		DocID:       req.DocID,
		SectionPath: sectionPath,
		Content:     req.Content,
	})
	if err != nil {
		slog.Error("create source link", "error", err)
		c.sendError(env.ID, "create failed")
		return
	}
	msg := toSourceLinkMsg(*link)
	c.ss.sub.hub.Publish(TopicSourceLinks, &protocol.SourceLinkEvent{Link: msg})
	if c.ss.sub.metrics != nil {
		c.ss.sub.metrics.RecordSourceLink(c.ctx)
	}
	c.sendResponse(env.ID, &protocol.CreateSourceLinkResp{Link: msg})
}

func (c *connState) activateSource(env *protocol.Envelope) {
	var req protocol.ActivateSourceReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.SourceID == "" {
		c.sendError(env.ID, "source_id is required")
		return
	}
	var title *string
	if req.Title != "" {
		title = &req.Title
	}
	c.ss.sub.tracker.Activate(ParseSourceType(req.SourceType), req.SourceID, title)
	c.sendResult(env.ID, &protocol.Result{OK: true})
}

func (c *connState) deactivateSource(env *protocol.Envelope) {
	var req protocol.DeactivateSourceReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	c.ss.sub.tracker.Deactivate(req.SourceID)
	c.sendResult(env.ID, &protocol.Result{OK: true})
}

func (c *connState) upsertSession(env *protocol.Envelope) {
	var req protocol.UpsertSessionReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.ID == "" {
		c.sendError(env.ID, "id is required")
		return
	}
	var title *string
	if req.Title != "" {
		title = &req.Title
	}
	var endedAt *int64
	if req.EndedAt > 0 {
		endedAt = &req.EndedAt
	}
	if err := c.ss.sub.store.UpsertSession(c.ctx, Session{
		ID:        req.ID,
		Title:     title,
		StartedAt: req.StartedAt,
		EndedAt:   endedAt,
	}); err != nil {
		slog.Error("upsert session", "error", err)
		c.sendError(env.ID, "upsert failed")
		return
	}
	c.sendResult(env.ID, &protocol.Result{OK: true})
}

func (c *connState) setConfig(env *protocol.Envelope) {
	var req protocol.SetConfigReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if err := c.ss.sub.overlay.Set(c.ctx, req.Key, req.Value); err != nil {
		slog.Error("set config", "error", err)
		c.sendError(env.ID, "set failed")
		return
	}
	c.sendResult(env.ID, &protocol.Result{OK: true, Message: "updated"})
}

func (c *connState) clearCaptures(env *protocol.Envelope) {
	c.ss.sub.buffer.Clear()
	c.ss.sub.events.Clear()
	c.ss.sub.tracker.Clear()
	if err := c.ss.sub.store.ClearAllCaptures(c.ctx); err != nil {
		slog.Error("clear captures", "error", err)
		c.sendError(env.ID, "clear failed")
		return
	}
	c.sendResult(env.ID, &protocol.Result{OK: true, Message: "cleared"})
}

// --- capture ingest ---

func (c *connState) pushBrowseCapture(env *protocol.Envelope) {
	if !c.ss.sub.overlay.BrowseEnabled() {
		c.sendError(env.ID, "browse capture is disabled")
		return
	}
	var req protocol.PushBrowseCaptureReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.URL == "" {
		c.sendError(env.ID, "url is required")
		return
	}
	enteredAt := req.EnteredAt
	if enteredAt == 0 {
		enteredAt = NowMillis()
	}
	var title *string
	if req.Title != "" {
		title = &req.Title
	}
	capture := BrowseCapture{ID: NewID(), URL: req.URL, Title: title, EnteredAt: enteredAt}
	c.ss.sub.buffer.PushBrowse(capture)
	c.sendResponse(env.ID, &protocol.PushBrowseCaptureResp{ID: capture.ID})
}

func (c *connState) pushSearchCapture(env *protocol.Envelope) {
	if !c.ss.sub.overlay.SearchEnabled() {
		c.sendError(env.ID, "search capture is disabled")
		return
	}
	var req protocol.PushSearchCaptureReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.Query == "" {
		c.sendError(env.ID, "query is required")
		return
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = NowMillis()
	}
	capture := SearchCapture{ID: NewID(), Query: req.Query, Engine: req.Engine, Timestamp: timestamp}
	c.ss.sub.buffer.PushSearch(capture)
	c.sendResponse(env.ID, &protocol.PushSearchCaptureResp{ID: capture.ID})
}

func (c *connState) pushAIExchangeCapture(env *protocol.Envelope) {
	if !c.ss.sub.overlay.AIExchangeEnabled() {
		c.sendError(env.ID, "ai exchange capture is disabled")
		return
	}
	var req protocol.PushAIExchangeCaptureReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.Question == "" || req.Answer == "" {
		c.sendError(env.ID, "question and answer are required")
		return
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = NowMillis()
	}
	var contextDocID *string
	if req.ContextDocID != "" {
		contextDocID = &req.ContextDocID
	}
	capture := AIExchangeCapture{
		ID:              NewID(),
		QuestionDigest:  c.ss.sub.digest.Compute([]byte(req.Question)),
		QuestionPreview: truncatePreview(req.Question, previewLength),
		AnswerDigest:    c.ss.sub.digest.Compute([]byte(req.Answer)),
		AnswerPreview:   truncatePreview(req.Answer, previewLength),
		Model:           req.Model,
		ContextDocID:    contextDocID,
		Timestamp:       timestamp,
	}
	c.ss.sub.buffer.PushAIExchange(capture)
	c.sendResult(env.ID, &protocol.Result{OK: true, Message: capture.ID})
}

func (c *connState) pushDocEditCapture(env *protocol.Envelope) {
	var req protocol.PushDocEditCaptureReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.DocID == "" {
		c.sendError(env.ID, "doc_id is required")
		return
	}
	if req.EndedAt < req.StartedAt {
		c.sendError(env.ID, "ended_at must be >= started_at")
		return
	}
	capture := DocEditCapture{
		ID:          NewID(),
		DocID:       req.DocID,
		DocTitle:    req.DocTitle,
		EditPreview: truncatePreview(req.EditText, previewLength),
		CharDelta:   req.CharDelta,
		StartedAt:   req.StartedAt,
		EndedAt:     req.EndedAt,
	}
	c.ss.sub.buffer.PushDocEdit(capture)
	c.sendResult(env.ID, &protocol.Result{OK: true, Message: capture.ID})
}

func (c *connState) updateBrowseCapture(env *protocol.Envelope) {
	var req protocol.UpdateBrowseCaptureReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	var scrollDepth *int
	if req.ScrollDepthPercent != 0 {
		scrollDepth = &req.ScrollDepthPercent
	}
	c.ss.sub.buffer.UpdateBrowse(req.ID, req.LeftAt, scrollDepth)
	c.sendResult(env.ID, &protocol.Result{OK: true})
}

func (c *connState) updateSearchClick(env *protocol.Envelope) {
	var req protocol.UpdateSearchClickReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	c.ss.sub.buffer.UpdateSearchClick(req.ID, req.ResultURL)
	c.sendResult(env.ID, &protocol.Result{OK: true})
}

// pushEvent feeds the EventBuffer that the Coalescer eventually
// flushes into a WorkBlock. Unlike the capture families above, this is not
// gated by overlay feature flags — those gate what raw material gets
// captured, not whether captured activity can be coalesced.
func (c *connState) pushEvent(env *protocol.Envelope) {
	var req protocol.PushEventReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = NowMillis()
	}
	var contextID, contextTitle, url *string
	if req.ContextID != "" {
		contextID = &req.ContextID
	}
	if req.ContextTitle != "" {
		contextTitle = &req.ContextTitle
	}
	if req.URL != "" {
		url = &req.URL
	}
	var delta *int
	if req.Delta != 0 {
		delta = &req.Delta
	}
	result := c.ss.sub.events.Push(BufferedEvent{
		ID:           NewID(),
		Timestamp:    timestamp,
		EventType:    ParseEventType(req.EventType),
		ContextType:  ParseContextType(req.ContextType),
		ContextID:    contextID,
		ContextTitle: contextTitle,
		URL:          url,
		Delta:        delta,
	})
	if result.ShouldFlush {
		if _, err := c.ss.sub.FlushEvents(c.ctx); err != nil {
			slog.Warn("flush events after push_event", "error", err)
		}
	}
	c.sendResponse(env.ID, &protocol.PushEventResp{
		ShouldFlush:     result.ShouldFlush,
		ContextSwitched: result.ContextSwitched,
		EventCount:      result.EventCount,
	})
}

func (c *connState) createMilestone(env *protocol.Envelope) {
	var req protocol.CreateMilestoneReq
	if err := protocol.DecodeBody(env.Body, &req); err != nil {
		c.sendError(env.ID, "invalid body")
		return
	}
	if req.ContextID == "" || req.MilestoneType == "" {
		c.sendError(env.ID, "context_id and milestone_type are required")
		return
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = NowMillis()
	}
	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	m := Milestone{
		ID:            NewID(),
		ContextType:   ParseContextType(req.ContextType),
		ContextID:     req.ContextID,
		MilestoneType: req.MilestoneType,
		Timestamp:     timestamp,
		Note:          note,
	}
	if err := c.ss.sub.store.InsertMilestone(c.ctx, m); err != nil {
		slog.Error("create milestone", "error", err)
		c.sendError(env.ID, "create failed")
		return
	}
	c.sendResponse(env.ID, &protocol.CreateMilestoneResp{ID: m.ID})
}

// --- conversions ---

func toWorkBlockMsgs(blocks []WorkBlock) []protocol.WorkBlockMsg {
	out := make([]protocol.WorkBlockMsg, len(blocks))
	for i, b := range blocks {
		out[i] = toWorkBlockMsg(b)
	}
	return out
}

func toWorkBlockMsg(b WorkBlock) protocol.WorkBlockMsg {
	msg := protocol.WorkBlockMsg{
		ID:           b.ID,
		ContextType:  string(b.ContextType),
		StartedAt:    b.StartedAt,
		EndedAt:      b.EndedAt,
		DurationSecs: b.DurationSecs,
		EditCount:    b.EditCount,
		BrowseCount:  b.BrowseCount,
		ResearchURLs: b.ResearchURLs,
		Tags:         b.Tags,
		IsManual:     b.IsManual,
		IsPinned:     b.IsPinned,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
	if b.ContextID != nil {
		msg.ContextID = *b.ContextID
	}
	if b.ContextTitle != nil {
		msg.ContextTitle = *b.ContextTitle
	}
	if b.AutoSummary != nil {
		msg.AutoSummary = *b.AutoSummary
	}
	if b.UserSummary != nil {
		msg.UserSummary = *b.UserSummary
	}
	if b.Notes != nil {
		msg.Notes = *b.Notes
	}
	return msg
}

func toSessionMsg(s Session) protocol.SessionMsg {
	msg := protocol.SessionMsg{ID: s.ID, StartedAt: s.StartedAt, BlockIDs: s.BlockIDs}
	if s.Title != nil {
		msg.Title = *s.Title
	}
	if s.EndedAt != nil {
		msg.EndedAt = *s.EndedAt
	}
	return msg
}

func toSourceLinkMsg(l SourceLinkWithSources) protocol.SourceLinkMsg {
	msg := protocol.SourceLinkMsg{
		ID:         l.Link.ID,
		DocID:      l.Link.DocID,
		CreatedAt:  l.Link.CreatedAt,
		Confidence: l.Link.ConfidenceScore,
		Sources:    make([]protocol.LinkedSourceMsg, len(l.Sources)),
	}
	if l.Link.SectionPath != nil {
		msg.SectionPath = *l.Link.SectionPath
	}
	for i, src := range l.Sources {
		msg.Sources[i] = protocol.LinkedSourceMsg{
			SourceType:       string(src.SourceType),
			SourceID:         src.SourceID,
			ContributionType: string(src.ContributionType),
		}
	}
	return msg
}

func isClosedErr(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
