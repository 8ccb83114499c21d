// Package provclient is a synchronous client for provctl: one request out,
// one response in, over the same msgpack envelope protocol the daemon's
// socket server speaks.
package provclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/loomcore/provenance/internal/protocol"
)

// Client wraps a connection to provenanced's Unix socket.
type Client struct {
	conn   net.Conn
	nextID atomic.Uint32
}

// Dial connects to the daemon's socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends typ/body and blocks for the matching response, decoding it
// into out (a pointer). Pass a nil out to discard the body (e.g. for a
// bare Result).
func (c *Client) Request(ctx context.Context, typ protocol.MsgType, body, out any) error {
	id := c.nextID.Add(1)

	var env *protocol.Envelope
	var err error
	if body != nil {
		env, err = protocol.NewEnvelope(typ, id, body)
	} else {
		env = protocol.NewEnvelopeNoBody(typ, id)
	}
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := protocol.WriteMsg(c.conn, env); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	for {
		resp, err := protocol.ReadMsg(c.conn)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.ID != id {
			// A streaming push arrived interleaved; provctl never
			// subscribes mid-request, so this shouldn't happen, but
			// skip rather than misattribute it as our answer.
			continue
		}
		if resp.Type == protocol.TypeError {
			var e protocol.ErrorResult
			if err := protocol.DecodeBody(resp.Body, &e); err == nil {
				return errors.New(e.Error)
			}
			return errors.New("unknown error from daemon")
		}
		if out == nil {
			return nil
		}
		return protocol.DecodeBody(resp.Body, out)
	}
}
