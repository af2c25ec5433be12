package transport

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Channel is an in-process transport carrying messages over a Go channel.
// It implements both Consumer and Publisher and is the test double for the
// broker-backed transports.
type Channel struct {
	ch     chan *channelMessage
	closed int32
	nextID int64

	mu     sync.Mutex
	acked  int
	nacked int
}

// NewChannel creates an in-process transport with the given buffer size.
func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 100
	}
	return &Channel{ch: make(chan *channelMessage, buffer)}
}

// Publish implements Publisher. The ordering key is accepted but ordering
// is trivially preserved: there is a single delivery channel.
func (c *Channel) Publish(ctx context.Context, data []byte, orderingKey string, attrs map[string]string) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	msg := &channelMessage{
		id:    strconv.FormatInt(atomic.AddInt64(&c.nextID, 1), 10),
		data:  append([]byte(nil), data...),
		attrs: attrs,
		owner: c,
	}
	select {
	case c.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Consumer. Messages are handled sequentially; tests
// that need concurrency wrap the handler themselves.
func (c *Channel) Receive(ctx context.Context, h Handler) error {
	for {
		select {
		case msg, ok := <-c.ch:
			if !ok {
				return nil
			}
			h(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close implements Consumer and Publisher.
func (c *Channel) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.ch)
	}
	return nil
}

// Acked returns the number of acknowledged messages.
func (c *Channel) Acked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acked
}

// Nacked returns the number of negatively acknowledged messages.
func (c *Channel) Nacked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nacked
}

type channelMessage struct {
	id      string
	data    []byte
	attrs   map[string]string
	owner   *Channel
	settled sync.Once
}

func (m *channelMessage) ID() string                    { return m.id }
func (m *channelMessage) Data() []byte                  { return m.data }
func (m *channelMessage) Attributes() map[string]string { return m.attrs }

func (m *channelMessage) Ack() {
	m.settled.Do(func() {
		m.owner.mu.Lock()
		m.owner.acked++
		m.owner.mu.Unlock()
	})
}

func (m *channelMessage) Nack() {
	m.settled.Do(func() {
		m.owner.mu.Lock()
		m.owner.nacked++
		m.owner.mu.Unlock()
	})
}

var (
	_ Consumer  = (*Channel)(nil)
	_ Publisher = (*Channel)(nil)
)
