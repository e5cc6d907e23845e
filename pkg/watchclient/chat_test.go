package watchclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChat() (*ChatAgent, *fakeSender, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sender := &fakeSender{}
	identity := protocol.Identity{Id: "u1", Name: "Alice", Avatar: "https://example.com/a.png"}

	return NewChatAgent("watch_42", identity, sender, WithClock(clk)), sender, clk
}

func TestSendEchoesLocally(t *testing.T) {
	chat, sender, clk := newTestChat()

	var received []protocol.ChatMessage
	chat.OnReceive(func(msg protocol.ChatMessage) { received = append(received, msg) })

	msg, err := chat.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Id)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, "watch_42", msg.RoomKey)
	assert.Equal(t, clk.Now().UnixMilli(), msg.Timestamp)

	assert.Equal(t, []protocol.ChatMessage{msg}, chat.Messages())
	require.Len(t, sender.messages, 1)
	assert.Equal(t, msg.Id, sender.messages[0].Id)

	// an echo of our own message from the relay is not shown twice
	assert.False(t, chat.Receive(msg))
	assert.Len(t, chat.Messages(), 1)
	assert.Empty(t, received)
}

func TestSendKeepsEchoOnTransportError(t *testing.T) {
	chat, sender, _ := newTestChat()
	sender.err = errors.New("offline")

	msg, err := chat.Send(context.Background(), "are you there")
	assert.Error(t, err)
	assert.Equal(t, []protocol.ChatMessage{msg}, chat.Messages())
}

func TestSendRejectsEmptyText(t *testing.T) {
	chat, _, _ := newTestChat()

	_, err := chat.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, chat.Messages())
}

func TestReceive(t *testing.T) {
	chat, _, _ := newTestChat()

	var received []string
	unsubscribe := chat.OnReceive(func(msg protocol.ChatMessage) { received = append(received, msg.Id) })

	assert.True(t, chat.Receive(protocol.ChatMessage{Id: "m1", RoomKey: "watch_42", Text: "hi"}))
	assert.False(t, chat.Receive(protocol.ChatMessage{Id: "m1", RoomKey: "watch_42", Text: "hi"}))
	assert.False(t, chat.Receive(protocol.ChatMessage{Id: "m2", RoomKey: "watch_7", Text: "elsewhere"}))
	assert.Equal(t, []string{"m1"}, received)

	unsubscribe()
	assert.True(t, chat.Receive(protocol.ChatMessage{Id: "m3", RoomKey: "watch_42", Text: "again"}))
	assert.Equal(t, []string{"m1"}, received)
	assert.Len(t, chat.Messages(), 2)

	chat.Close()
	assert.False(t, chat.Receive(protocol.ChatMessage{Id: "m4", RoomKey: "watch_42", Text: "late"}))
	_, err := chat.Send(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
}
