package watchclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type chatSender interface {
	SendRoomMessage(ctx context.Context, msg protocol.ChatMessage) error
}

// ChatAgent keeps the visible message list of one room. Own messages are shown as soon as
// they are sent; a message id is displayed at most once.
type ChatAgent struct {
	roomKey  string
	identity protocol.Identity
	sender   chatSender
	clock    clock.Clock

	mu        sync.Mutex
	messages  []protocol.ChatMessage
	seen      map[string]struct{}
	listeners map[int]func(protocol.ChatMessage)
	nextId    int
	closed    bool
}

func NewChatAgent(roomKey string, identity protocol.Identity, sender chatSender, opts ...Option) *ChatAgent {
	o := newOptions(opts)

	return &ChatAgent{
		roomKey:   roomKey,
		identity:  identity,
		sender:    sender,
		clock:     o.clock,
		seen:      make(map[string]struct{}),
		listeners: make(map[int]func(protocol.ChatMessage)),
	}
}

// Send appends the message locally, then transmits it. A transmission error is returned
// but the local copy stays.
func (c *ChatAgent) Send(ctx context.Context, text string) (protocol.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return protocol.ChatMessage{}, ErrEmptyText
	}

	msg := protocol.ChatMessage{
		Id:           uuid.NewString(),
		RoomKey:      c.roomKey,
		SenderId:     c.identity.Id,
		SenderName:   c.identity.Name,
		SenderAvatar: c.identity.Avatar,
		Text:         text,
		Timestamp:    c.clock.Now().UnixMilli(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.ChatMessage{}, ErrClosed
	}
	c.messages = append(c.messages, msg)
	c.seen[msg.Id] = struct{}{}
	c.mu.Unlock()

	if err := c.sender.SendRoomMessage(ctx, msg); err != nil {
		return msg, fmt.Errorf("failed to send message: %w", err)
	}

	return msg, nil
}

// Receive records an incoming message and notifies listeners. It reports whether the message
// was new to this room.
func (c *ChatAgent) Receive(msg protocol.ChatMessage) bool {
	c.mu.Lock()
	if c.closed || msg.RoomKey != c.roomKey {
		c.mu.Unlock()
		return false
	}
	if msg.Id != "" {
		if _, ok := c.seen[msg.Id]; ok {
			c.mu.Unlock()
			return false
		}
		c.seen[msg.Id] = struct{}{}
	}
	c.messages = append(c.messages, msg)

	listeners := make([]func(protocol.ChatMessage), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}

	return true
}

func (c *ChatAgent) OnReceive(fn func(protocol.ChatMessage)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextId
	c.nextId++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Messages returns a copy of the visible list in display order.
func (c *ChatAgent) Messages() []protocol.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]protocol.ChatMessage{}, c.messages...)
}

func (c *ChatAgent) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	clear(c.listeners)
}
