package inspector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loomcore/provenance/internal/protocol"
)

// Tea message types dispatched by the reader goroutine.
type WorkBlockMsg struct{ protocol.WorkBlockEvent }
type SourceLinkMsg struct{ protocol.SourceLinkEvent }
type CaptureMsg struct{ protocol.CaptureEvent }
type ConnErrMsg struct{ Err error }

// Client wraps a connection to provenanced and dispatches streaming
// messages as tea.Msg values, while still allowing synchronous
// request/response calls for the initial snapshot queries.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex // serializes writes
	nextID  atomic.Uint32
	pendMu  sync.Mutex
	pending map[uint32]chan *protocol.Envelope
	prog    *tea.Program
	done    chan struct{}
	started sync.Once
	closed  atomic.Bool
}

// Dial connects to the daemon's socket and returns a Client. Call
// SetProgram to start streaming dispatch.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{
		conn:    conn,
		pending: make(map[uint32]chan *protocol.Envelope),
		done:    make(chan struct{}),
	}, nil
}

// SetProgram wires the tea.Program streaming messages are sent to, and
// starts the reader goroutine. Safe to call multiple times; only the
// first call takes effect.
func (c *Client) SetProgram(p *tea.Program) {
	c.prog = p
	c.started.Do(func() { go c.readLoop() })
}

// Close closes the underlying connection without sending a ConnErrMsg.
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		c.pendMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendMu.Unlock()
		if c.prog != nil && !c.closed.Load() {
			c.prog.Send(ConnErrMsg{Err: errors.New("connection lost")})
		}
	}()

	for {
		env, err := protocol.ReadMsg(c.conn)
		if err != nil {
			return
		}
		if env.ID > 0 {
			c.pendMu.Lock()
			ch, ok := c.pending[env.ID]
			c.pendMu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}
		c.dispatchStreaming(env)
	}
}

func (c *Client) dispatchStreaming(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeWorkBlockEvent:
		var m protocol.WorkBlockEvent
		if protocol.DecodeBody(env.Body, &m) == nil {
			c.prog.Send(WorkBlockMsg{m})
		}
	case protocol.TypeSourceLinkEvent:
		var m protocol.SourceLinkEvent
		if protocol.DecodeBody(env.Body, &m) == nil {
			c.prog.Send(SourceLinkMsg{m})
		}
	case protocol.TypeCaptureEvent:
		var m protocol.CaptureEvent
		if protocol.DecodeBody(env.Body, &m) == nil {
			c.prog.Send(CaptureMsg{m})
		}
	}
}

// Request sends a request and blocks until the response arrives, ctx
// cancels, or the connection dies.
func (c *Client) Request(ctx context.Context, typ protocol.MsgType, body any) (*protocol.Envelope, error) {
	id := c.nextID.Add(1)

	var env *protocol.Envelope
	var err error
	if body != nil {
		env, err = protocol.NewEnvelope(typ, id, body)
	} else {
		env = protocol.NewEnvelopeNoBody(typ, id)
	}
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan *protocol.Envelope, 1)
	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	c.mu.Lock()
	err = protocol.WriteMsg(c.conn, env)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("connection closed")
		}
		if resp.Type == protocol.TypeError {
			var e protocol.ErrorResult
			if protocol.DecodeBody(resp.Body, &e) == nil {
				return nil, errors.New(e.Error)
			}
			return nil, errors.New("unknown error from daemon")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, errors.New("connection closed")
	}
}

// Subscribe sends a streaming subscription (ID=0).
func (c *Client) Subscribe(typ protocol.MsgType) error {
	env := protocol.NewEnvelopeNoBody(typ, 0)
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteMsg(c.conn, env)
}

// QueryRecentWorkBlocks fetches the initial snapshot shown before live
// updates start arriving.
func (c *Client) QueryRecentWorkBlocks(ctx context.Context, limit int) ([]protocol.WorkBlockMsg, error) {
	resp, err := c.Request(ctx, protocol.TypeQueryRecentWorkBlocks, &protocol.QueryRecentWorkBlocksReq{Limit: limit})
	if err != nil {
		return nil, err
	}
	var r protocol.QueryRecentWorkBlocksResp
	if err := protocol.DecodeBody(resp.Body, &r); err != nil {
		return nil, err
	}
	return r.Blocks, nil
}
