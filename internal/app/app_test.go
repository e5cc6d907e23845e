package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	return &AppConfig{
		Host:        "127.0.0.1",
		Port:        8080,
		LogLevel:    "debug",
		RedisPort:   6379,
		PresenceTTL: time.Hour,
		SendBuffer:  16,
		WriteWait:   time.Second,
		PingPeriod:  time.Second,
		PongWait:    2 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"port", func(c *AppConfig) { c.Port = 0 }},
		{"log level", func(c *AppConfig) { c.LogLevel = "loud" }},
		{"redis port", func(c *AppConfig) { c.RedisHost = "localhost"; c.RedisPort = 70000 }},
		{"presence ttl", func(c *AppConfig) { c.PresenceTTL = 0 }},
		{"send buffer", func(c *AppConfig) { c.SendBuffer = 0 }},
		{"write wait", func(c *AppConfig) { c.WriteWait = -time.Second }},
		{"ping period", func(c *AppConfig) { c.PingPeriod = 0 }},
		{"pong wait", func(c *AppConfig) { c.PongWait = c.PingPeriod }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewHandlerRedisPresence(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := validConfig()
	host, port, found := strings.Cut(s.Addr(), ":")
	require.True(t, found)
	cfg.RedisHost = host
	require.NoError(t, json.Unmarshal([]byte(port), &cfg.RedisPort))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler, closeHandler, err := NewHandler(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer closeHandler()

	server := httptest.NewServer(handler)
	defer server.Close()

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/ws?name=alice", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(protocol.Output{Type: protocol.TypeJoinRoom, Payload: "watch_7"}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame protocol.Frame
	require.NoError(t, ws.ReadJSON(&frame))
	require.Equal(t, protocol.TypeJoinedRoom, frame.Type)

	var joined protocol.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &joined))
	require.Len(t, joined.Members, 1)
	assert.Equal(t, "alice", joined.Members[0].Name)
	assert.True(t, strings.HasPrefix(joined.Members[0].UserId, "guest-"))

	httpResp, err := http.Get(server.URL + "/api/v1/rooms/watch_7/members")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)

	assert.True(t, s.Exists("presence:room:watch_7:members"))
}

func TestNewHandlerRedisUnavailable(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := validConfig()
	host, port, _ := strings.Cut(s.Addr(), ":")
	cfg.RedisHost = host
	require.NoError(t, json.Unmarshal([]byte(port), &cfg.RedisPort))
	s.Close()

	_, _, err := NewHandler(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
