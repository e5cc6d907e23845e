package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anitogether/relay/internal/app"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/watchclient"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

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

func execute(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()

	out := &syncBuffer{}
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(out)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoomKeyFor(t *testing.T) {
	assert.Equal(t, "watch_42", roomKeyFor("42"))
	assert.Equal(t, "watch_42", roomKeyFor("watch_42"))
}

func TestJoinRequiresName(t *testing.T) {
	_, err := execute(t, strings.NewReader(""), "join", "42")
	assert.ErrorContains(t, err, "--name")
}

func TestMembersOfEmptyRoom(t *testing.T) {
	server := newRelay(t)

	out, err := execute(t, nil, "members", "42", "--server", server)
	require.NoError(t, err)
	assert.Contains(t, out, "nobody is watching watch_42")
}

func TestSay(t *testing.T) {
	server := newRelay(t)

	_, err := execute(t, nil, "say", "hello", "world", "--server", server, "--name", "alice")
	require.NoError(t, err)
}

func TestJoinRunsConsole(t *testing.T) {
	server := newRelay(t)

	in := strings.NewReader("/help\n/seek 12.5\n/bogus\nhello room\n/quit\n")
	out, err := execute(t, in, "join", "42", "--server", server, "--name", "alice")
	require.NoError(t, err)

	assert.Contains(t, out, "joined watch_42")
	assert.Contains(t, out, "commands:")
	assert.Contains(t, out, "unknown command: /bogus")
	assert.NotContains(t, out, "! relay:")
}

type discardSender struct{}

func (discardSender) SyncWatch(context.Context, protocol.SyncEvent) error { return nil }

func TestConsolePlayerReportsRemotePosition(t *testing.T) {
	player := &consolePlayer{out: io.Discard}
	agent := watchclient.NewSyncAgent("watch_42", player, discardSender{})
	t.Cleanup(agent.Close)
	player.reportPosition(agent.HandleTimeUpdate)

	agent.HandleTimeUpdate(10)
	at := 85.0
	require.NoError(t, agent.ApplyRemote(protocol.SyncEvent{RoomKey: "watch_42", Action: protocol.ActionPlay, Time: &at}))

	assert.Equal(t, 85.0, agent.LastKnownTime())
}
