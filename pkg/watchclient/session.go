package watchclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anitogether/relay/pkg/protocol"
)

// Session is one watch-together view: a joined room with its sync and chat agents.
// Close releases everything it acquired, whatever state the connection is in.
type Session struct {
	socket  *Socket
	roomKey string

	Sync *SyncAgent
	Chat *ChatAgent

	mu          sync.Mutex
	members     []protocol.Member
	unsubscribe []func()
	closeOnce   sync.Once
}

func Join(ctx context.Context, socket *Socket, roomKey string, player Player, opts ...Option) (*Session, error) {
	if roomKey == "" {
		return nil, ErrEmptyRoom
	}

	o := newOptions(opts)

	s := &Session{
		socket:  socket,
		roomKey: roomKey,
		Sync:    NewSyncAgent(roomKey, player, socket, opts...),
		Chat:    NewChatAgent(roomKey, socket.Identity(), socket, opts...),
	}

	s.unsubscribe = append(s.unsubscribe,
		socket.OnWatchSync(func(event protocol.SyncEvent) {
			if err := s.Sync.ApplyRemote(event); err != nil {
				o.logger.Warn("failed to apply remote sync", "action", event.Action, "error", err)
			}
		}),
		socket.OnRoomMessage(func(msg protocol.ChatMessage) {
			s.Chat.Receive(msg)
		}),
		socket.OnMembers(func(key string, members []protocol.Member) {
			if key != roomKey {
				return
			}
			s.mu.Lock()
			s.members = members
			s.mu.Unlock()
		}),
	)

	if err := socket.JoinRoom(ctx, roomKey); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	return s, nil
}

func (s *Session) RoomKey() string {
	return s.roomKey
}

// Members is the latest occupancy reported by the relay.
func (s *Session) Members() []protocol.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]protocol.Member{}, s.members...)
}

// Close stops every listener and leaves the room. A closed socket is not an error.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.teardown()

		if leaveErr := s.socket.LeaveRoom(ctx, s.roomKey); leaveErr != nil && !errors.Is(leaveErr, ErrClosed) {
			err = fmt.Errorf("failed to leave room: %w", leaveErr)
		}
	})

	return err
}

func (s *Session) teardown() {
	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.Sync.Close()
	s.Chat.Close()
}
