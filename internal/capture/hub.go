package capture

import (
	"sync"
	"sync/atomic"
)

// Hub topics.
const (
	TopicCaptures    = "captures"
	TopicWorkBlocks  = "work_blocks"
	TopicSourceLinks = "source_links"
)

const subscriberBufSize = 64

// Hub is an in-process pub/sub fan-out for streaming capture activity,
// coalesced work blocks, and new source links to connected socket clients.
// A slow `provctl watch` or subscribed UI never backs up the daemon: a
// full subscriber buffer drops the message rather than blocking the
// publisher, and the drop is tallied per topic so operators can see it on
// the metrics surface rather than it vanishing silently.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	dropped map[string]*atomic.Int64
}

type subscriber struct {
	ch chan any
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subs: map[string]map[*subscriber]struct{}{
			TopicCaptures:    {},
			TopicWorkBlocks:  {},
			TopicSourceLinks: {},
		},
		dropped: map[string]*atomic.Int64{
			TopicCaptures:    {},
			TopicWorkBlocks:  {},
			TopicSourceLinks: {},
		},
	}
}

// Subscribe returns a buffered channel that receives messages for the given topic.
// The returned *subscriber is used to Unsubscribe later.
func (h *Hub) Subscribe(topic string) (*subscriber, <-chan any) {
	s := &subscriber{ch: make(chan any, subscriberBufSize)}
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][s] = struct{}{}
	h.mu.Unlock()
	return s, s.ch
}

// Unsubscribe removes a subscriber from a topic and closes its channel.
func (h *Hub) Unsubscribe(topic string, s *subscriber) {
	h.mu.Lock()
	if subs, ok := h.subs[topic]; ok {
		if _, exists := subs[s]; exists {
			delete(subs, s)
			close(s.ch)
		}
	}
	h.mu.Unlock()
}

// Publish sends a message to all subscribers of the given topic.
// Non-blocking: if a subscriber's buffer is full, the message is dropped
// and counted against DroppedCount(topic).
func (h *Hub) Publish(topic string, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			if c, ok := h.dropped[topic]; ok {
				c.Add(1)
			}
		}
	}
}

// DroppedCount reports how many messages have been dropped for topic
// since startup because a subscriber's buffer was full. Zero for an
// unrecognized topic.
func (h *Hub) DroppedCount(topic string) int64 {
	h.mu.RLock()
	c, ok := h.dropped[topic]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Load()
}
