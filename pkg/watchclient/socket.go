// Package watchclient is the client side of the relay: a websocket Socket plus the sync and chat
// agents that sit between it and a local video player.
package watchclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed    = errors.New("socket closed")
	ErrEmptyRoom = errors.New("room key is empty")
	ErrEmptyText = errors.New("message text is empty")
)

const wsPath = "/api/v1/ws"

// Socket is a connection to the relay. Listeners run on the socket's single read goroutine.
type Socket struct {
	ws       *websocket.Conn
	identity protocol.Identity
	logger   *slog.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	nextId    int
	listeners map[string]map[int]func(json.RawMessage)

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay at serverURL (http, https, ws or wss) as identity.
func Dial(ctx context.Context, serverURL string, identity protocol.Identity, opts ...Option) (*Socket, error) {
	o := newOptions(opts)

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + wsPath

	query := u.Query()
	if identity.Id != "" {
		query.Set("user-id", identity.Id)
	}
	query.Set("name", identity.Name)
	if identity.Avatar != "" {
		query.Set("avatar", identity.Avatar)
	}
	u.RawQuery = query.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	s := &Socket{
		ws:        ws,
		identity:  identity,
		logger:    o.logger,
		listeners: make(map[string]map[int]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

func (s *Socket) Identity() protocol.Identity {
	return s.identity
}

// Done is closed once the read loop has stopped.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) JoinRoom(ctx context.Context, roomKey string) error {
	if roomKey == "" {
		return ErrEmptyRoom
	}

	return s.send(ctx, protocol.TypeJoinRoom, protocol.JoinRoomInput{RoomKey: roomKey})
}

func (s *Socket) LeaveRoom(ctx context.Context, roomKey string) error {
	return s.send(ctx, protocol.TypeLeaveRoom, protocol.LeaveRoomInput{RoomKey: roomKey})
}

func (s *Socket) SyncWatch(ctx context.Context, event protocol.SyncEvent) error {
	if event.RoomKey == "" {
		return ErrEmptyRoom
	}
	if err := event.Check(); err != nil {
		return err
	}

	return s.send(ctx, protocol.TypeWatchSync, event)
}

func (s *Socket) SendRoomMessage(ctx context.Context, msg protocol.ChatMessage) error {
	if msg.RoomKey == "" {
		return ErrEmptyRoom
	}
	if strings.TrimSpace(msg.Text) == "" {
		return ErrEmptyText
	}

	return s.send(ctx, protocol.TypeRoomMessage, protocol.RoomChatInput{
		ChatMessage: msg,
		RoomKey:     msg.RoomKey,
	})
}

func (s *Socket) SendGlobalMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	return s.send(ctx, protocol.TypeSendGlobalMessage, protocol.ChatMessage{
		SenderName:   s.identity.Name,
		SenderAvatar: s.identity.Avatar,
		Text:         text,
	})
}

func (s *Socket) OnWatchSync(fn func(protocol.SyncEvent)) (unsubscribe func()) {
	return on(s, protocol.TypeWatchSync, fn)
}

func (s *Socket) OnRoomMessage(fn func(protocol.ChatMessage)) (unsubscribe func()) {
	return on(s, protocol.TypeRoomMessage, fn)
}

func (s *Socket) OnGlobalMessage(fn func(protocol.ChatMessage)) (unsubscribe func()) {
	return on(s, protocol.TypeGlobalMessage, fn)
}

// OnMembers fires with the room's member list after every presence change, own joins included.
func (s *Socket) OnMembers(fn func(roomKey string, members []protocol.Member)) (unsubscribe func()) {
	unsubJoined := on(s, protocol.TypeJoinedRoom, func(p protocol.JoinedRoomPayload) {
		fn(p.RoomKey, p.Members)
	})
	unsubMemberJoined := on(s, protocol.TypeMemberJoined, func(p protocol.MembersPayload) {
		fn(p.RoomKey, p.Members)
	})
	unsubMemberLeft := on(s, protocol.TypeMemberLeft, func(p protocol.MembersPayload) {
		fn(p.RoomKey, p.Members)
	})

	return func() {
		unsubJoined()
		unsubMemberJoined()
		unsubMemberLeft()
	}
}

func (s *Socket) OnError(fn func(protocol.ErrorPayload)) (unsubscribe func()) {
	return on(s, protocol.TypeError, fn)
}

// Close sends a close frame and tears the connection down. No listener is started afterwards.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.writeMu.Lock()
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		err = s.ws.Close()
	})

	return err
}

func on[T any](s *Socket, messageType string, fn func(T)) func() {
	handler := func(raw json.RawMessage) {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.logger.Warn("failed to decode payload", "type", messageType, "error", err)
			return
		}
		fn(payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextId
	s.nextId++
	if s.listeners[messageType] == nil {
		s.listeners[messageType] = make(map[int]func(json.RawMessage))
	}
	s.listeners[messageType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners[messageType], id)
		})
	}
}

func (s *Socket) send(ctx context.Context, messageType string, payload any) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(protocol.Output{Type: messageType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", messageType, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := s.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if s.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("failed to write %s: %w", messageType, err)
	}

	return nil
}

func (s *Socket) readLoop() {
	defer close(s.done)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Info("relay connection lost", "error", err)
			}
			s.closed.Store(true)
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		s.dispatch(frame)
	}
}

func (s *Socket) dispatch(frame protocol.Frame) {
	s.mu.RLock()
	handlers := make([]func(json.RawMessage), 0, len(s.listeners[frame.Type]))
	for _, h := range s.listeners[frame.Type] {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		if s.closed.Load() {
			return
		}
		h(frame.Payload)
	}
}
