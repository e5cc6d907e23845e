package watchclient

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anitogether/relay/internal/app"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelay(t *testing.T) string {
	t.Helper()

	cfg := &app.AppConfig{
		PresenceTTL: time.Hour,
		SendBuffer:  32,
		WriteWait:   time.Second,
		PingPeriod:  time.Minute,
		PongWait:    2 * time.Minute,
	}
	handler, closeHandler, err := app.NewHandler(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(closeHandler)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server.URL
}

func dialAs(t *testing.T, serverURL, name string) *Socket {
	t.Helper()

	socket, err := Dial(context.Background(), serverURL, protocol.Identity{Id: name, Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { socket.Close() })

	return socket
}

func joinAs(t *testing.T, socket *Socket, roomKey string, members int) (*Session, *fakePlayer) {
	t.Helper()

	player := &fakePlayer{}
	session, err := Join(context.Background(), socket, roomKey, player, WithSettleWindow(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { session.Close(context.Background()) })

	require.Eventually(t, func() bool { return len(session.Members()) == members }, 2*time.Second, 5*time.Millisecond)

	return session, player
}

func TestPauseReachesOtherMembersOnly(t *testing.T) {
	ctx := context.Background()
	serverURL := newRelay(t)

	a, playerA := joinAs(t, dialAs(t, serverURL, "a"), "watch_42", 1)
	b, playerB := joinAs(t, dialAs(t, serverURL, "b"), "watch_42", 2)
	require.Eventually(t, func() bool { return len(a.Members()) == 2 }, 2*time.Second, 5*time.Millisecond)

	a.Sync.HandleTimeUpdate(125.4)
	require.NoError(t, a.Sync.HandlePause(ctx))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"pause"}, playerB.Commands())
	}, 2*time.Second, 5*time.Millisecond)

	// b's reply travels back to a, proving a's own pause never did
	require.Eventually(t, func() bool { return !b.Sync.IsApplyingRemote() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, b.Sync.HandleSeek(ctx, 10))
	require.Eventually(t, func() bool { return len(playerA.Commands()) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"seek"}, playerA.Commands())
}

func TestLateJoinerGetsNoResync(t *testing.T) {
	ctx := context.Background()
	serverURL := newRelay(t)

	a, _ := joinAs(t, dialAs(t, serverURL, "a"), "watch_42", 1)
	_, playerB := joinAs(t, dialAs(t, serverURL, "b"), "watch_42", 2)
	require.NoError(t, a.Sync.HandlePlay(ctx))
	require.Eventually(t, func() bool { return len(playerB.Commands()) == 2 }, 2*time.Second, 5*time.Millisecond)

	c, playerC := joinAs(t, dialAs(t, serverURL, "c"), "watch_42", 3)

	names := make([]string, 0, 3)
	for _, m := range c.Members() {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, playerC.Commands())
}

func TestRoomChat(t *testing.T) {
	ctx := context.Background()
	serverURL := newRelay(t)

	a, _ := joinAs(t, dialAs(t, serverURL, "a"), "watch_42", 1)
	b, _ := joinAs(t, dialAs(t, serverURL, "b"), "watch_42", 2)

	var mu sync.Mutex
	var got []protocol.ChatMessage
	b.Chat.OnReceive(func(msg protocol.ChatMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	})

	sent, err := a.Chat.Send(ctx, "hi b")
	require.NoError(t, err)
	assert.Len(t, a.Chat.Messages(), 1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, sent.Id, got[0].Id)
	assert.Equal(t, "a", got[0].SenderName)
	mu.Unlock()

	assert.Len(t, a.Chat.Messages(), 1)
}

func TestGlobalMessageReachesEveryone(t *testing.T) {
	ctx := context.Background()
	serverURL := newRelay(t)

	sockets := []*Socket{dialAs(t, serverURL, "a"), dialAs(t, serverURL, "b")}
	received := make(chan string, 4)
	for _, s := range sockets {
		name := s.Identity().Name
		s.OnGlobalMessage(func(msg protocol.ChatMessage) {
			received <- name + ":" + msg.Text
		})
	}

	// make sure b is registered on the relay before a broadcasts
	joinAs(t, sockets[1], "watch_1", 1)

	require.NoError(t, sockets[0].SendGlobalMessage(ctx, "hello all"))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case r := <-received:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatal("global message not delivered")
		}
	}
	assert.ElementsMatch(t, []string{"a:hello all", "b:hello all"}, got)
}

func TestSessionCloseIsUnconditional(t *testing.T) {
	ctx := context.Background()
	serverURL := newRelay(t)

	socket := dialAs(t, serverURL, "a")
	a, playerA := joinAs(t, socket, "watch_42", 1)
	b, _ := joinAs(t, dialAs(t, serverURL, "b"), "watch_42", 2)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
	require.Eventually(t, func() bool { return len(b.Members()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.Sync.HandlePause(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, playerA.Commands())

	// closing after the socket is gone still succeeds
	c, _ := joinAs(t, dialAs(t, serverURL, "c"), "watch_9", 1)
	require.NoError(t, c.socket.Close())
	assert.NoError(t, c.Close(ctx))
}

func TestSocketValidatesInput(t *testing.T) {
	ctx := context.Background()
	socket := dialAs(t, newRelay(t), "a")

	assert.ErrorIs(t, socket.JoinRoom(ctx, ""), ErrEmptyRoom)
	assert.ErrorIs(t, socket.SyncWatch(ctx, protocol.SyncEvent{RoomKey: "watch_1", Action: "rewind"}), protocol.ErrInvalidAction)
	assert.ErrorIs(t, socket.SendRoomMessage(ctx, protocol.ChatMessage{RoomKey: "watch_1"}), ErrEmptyText)
	assert.ErrorIs(t, socket.SendGlobalMessage(ctx, " "), ErrEmptyText)

	require.NoError(t, socket.Close())
	assert.ErrorIs(t, socket.JoinRoom(ctx, "watch_1"), ErrClosed)
	select {
	case <-socket.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
}
