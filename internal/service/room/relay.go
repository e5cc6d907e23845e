package room

import (
	"context"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/google/uuid"
)

type BroadcastSyncParams struct {
	SenderId string
	Event    protocol.SyncEvent
}

type BroadcastSyncResponse struct {
	Event protocol.SyncEvent
	Conns []connection.Conn
}

// BroadcastSync relays a playback command to every other member of the room. The payload is
// forwarded as is apart from the originator, which is always the sending connection.
func (s service) BroadcastSync(ctx context.Context, params *BroadcastSyncParams) (BroadcastSyncResponse, error) {
	event := params.Event
	if event.RoomKey == "" {
		return BroadcastSyncResponse{}, ErrEmptyRoomKey
	}

	if err := event.Check(); err != nil {
		return BroadcastSyncResponse{}, err
	}

	if !s.registry.IsMember(params.SenderId, event.RoomKey) {
		s.logger.DebugContext(ctx, "sync from non member", "connection_id", params.SenderId, "room_key", event.RoomKey)
		return BroadcastSyncResponse{}, ErrNotInRoom
	}

	event.OriginatorId = params.SenderId

	return BroadcastSyncResponse{
		Event: event,
		Conns: s.getConnsByRoomKey(ctx, event.RoomKey, params.SenderId),
	}, nil
}

type BroadcastChatParams struct {
	SenderId string
	RoomKey  string
	Message  protocol.ChatMessage
}

type BroadcastChatResponse struct {
	Message protocol.ChatMessage
	Conns   []connection.Conn
}

// BroadcastChat relays a room chat message to every other member. The sender renders its own
// copy locally and drops the echo, if any, by message id.
func (s service) BroadcastChat(ctx context.Context, params *BroadcastChatParams) (BroadcastChatResponse, error) {
	if params.RoomKey == "" {
		return BroadcastChatResponse{}, ErrEmptyRoomKey
	}

	if !s.registry.IsMember(params.SenderId, params.RoomKey) {
		return BroadcastChatResponse{}, ErrNotInRoom
	}

	msg, err := s.stampMessage(ctx, params.SenderId, params.Message)
	if err != nil {
		return BroadcastChatResponse{}, err
	}
	msg.RoomKey = params.RoomKey

	return BroadcastChatResponse{
		Message: msg,
		Conns:   s.getConnsByRoomKey(ctx, params.RoomKey, params.SenderId),
	}, nil
}

type BroadcastGlobalParams struct {
	SenderId string
	Message  protocol.ChatMessage
}

type BroadcastGlobalResponse struct {
	Message protocol.ChatMessage
	Conns   []connection.Conn
}

// BroadcastGlobal reaches every live connection, the sender included.
func (s service) BroadcastGlobal(ctx context.Context, params *BroadcastGlobalParams) (BroadcastGlobalResponse, error) {
	msg, err := s.stampMessage(ctx, params.SenderId, params.Message)
	if err != nil {
		return BroadcastGlobalResponse{}, err
	}
	msg.RoomKey = ""

	entries := s.connRepo.All(ctx)
	conns := make([]connection.Conn, 0, len(entries))
	for _, entry := range entries {
		conns = append(conns, entry.Conn)
	}

	return BroadcastGlobalResponse{
		Message: msg,
		Conns:   conns,
	}, nil
}

func (s service) stampMessage(ctx context.Context, senderId string, msg protocol.ChatMessage) (protocol.ChatMessage, error) {
	entry, err := s.connRepo.Get(ctx, senderId)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get sender", "error", err)
		return protocol.ChatMessage{}, ErrConnNotFound
	}

	msg.SenderId = entry.Identity.Id
	if msg.SenderName == "" {
		msg.SenderName = entry.Identity.Name
	}
	if msg.SenderAvatar == "" {
		msg.SenderAvatar = entry.Identity.Avatar
	}
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = s.clock.Now().UnixMilli()
	}

	return msg, nil
}
