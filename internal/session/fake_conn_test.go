package session

import (
	"sync"
	"time"

	"github.com/ulukas/bms-gateway/internal/pylontech"
)

// fakeConn is an in-memory canbus.Conn for exercising session logic
// without a real SocketCAN interface.
type fakeConn struct {
	mu      sync.Mutex
	sent    []pylontech.Frame
	sentAt  []time.Time
	handler func(pylontech.Frame)
	runCh   chan error
}

func newFakeConn() *fakeConn {
	return &fakeConn{runCh: make(chan error, 1)}
}

func (c *fakeConn) Send(f pylontech.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	c.sentAt = append(c.sentAt, time.Now())
	return nil
}

func (c *fakeConn) Subscribe(handler func(pylontech.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *fakeConn) Run() error {
	return <-c.runCh
}

func (c *fakeConn) Close() error {
	return nil
}

func (c *fakeConn) deliver(f pylontech.Frame) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(f)
	}
}

func (c *fakeConn) sentFrames() []pylontech.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pylontech.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) sentTimestamps() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.sentAt))
	copy(out, c.sentAt)
	return out
}
