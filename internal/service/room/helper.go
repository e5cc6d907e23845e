package room

import (
	"context"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/pkg/protocol"
)

// getConnsByRoomKey resolves the live connections of roomKey, leaving out exceptId.
func (s service) getConnsByRoomKey(ctx context.Context, roomKey, exceptId string) []connection.Conn {
	memberIds := s.registry.MembersOf(roomKey)

	ids := make([]string, 0, len(memberIds))
	for _, id := range memberIds {
		if id != exceptId {
			ids = append(ids, id)
		}
	}

	entries := s.connRepo.GetMany(ctx, ids)
	conns := make([]connection.Conn, 0, len(entries))
	for _, entry := range entries {
		conns = append(conns, entry.Conn)
	}

	return conns
}

// getMembers is best effort: presence is for display only, so a store failure yields an empty list.
func (s service) getMembers(ctx context.Context, roomKey string) []protocol.Member {
	members, err := s.presence.Members(ctx, roomKey)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get members", "room_key", roomKey, "error", err)
		return []protocol.Member{}
	}

	return members
}
