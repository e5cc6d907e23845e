// Package testsupport provides fakes shared by package tests.
package testsupport

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/anitogether/relay/pkg/protocol"
)

var ErrFakeClosed = errors.New("fake connection closed")

// FakeConn records every frame sent to it.
type FakeConn struct {
	id string

	mu      sync.Mutex
	sent    []protocol.Frame
	closed  bool
	SendErr error
}

func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) Id() string {
	return c.id
}

func (c *FakeConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrFakeClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.sent = append(c.sent, frame)

	return nil
}

func (c *FakeConn) Close(int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.sent...)
}

// FramesOfType returns the payloads of frames whose type is messageType.
func (c *FakeConn) FramesOfType(messageType string) []json.RawMessage {
	var payloads []json.RawMessage
	for _, f := range c.Frames() {
		if f.Type == messageType {
			payloads = append(payloads, f.Payload)
		}
	}

	return payloads
}
