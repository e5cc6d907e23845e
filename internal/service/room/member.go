package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/pkg/protocol"
)

type ConnectParams struct {
	Conn     connection.Conn
	Identity protocol.Identity
}

func (s service) Connect(ctx context.Context, params *ConnectParams) error {
	if err := s.connRepo.Add(ctx, params.Conn, params.Identity); err != nil {
		s.logger.InfoContext(ctx, "failed to add connection", "error", err)
		return fmt.Errorf("failed to add connection: %w", err)
	}

	s.presence.Track(params.Conn.Id(), params.Identity)

	return nil
}

type DisconnectParams struct {
	ConnId string
}

type DisconnectResponse struct {
	RoomKey string
	Member  protocol.Member
	Members []protocol.Member
	Conns   []connection.Conn
}

// Disconnect drops the connection from its room and from the connection registry.
// Calling it again for the same connection is a no-op.
func (s service) Disconnect(ctx context.Context, params *DisconnectParams) (DisconnectResponse, error) {
	member, _ := s.presence.Member(params.ConnId)

	roomKey, wasInRoom := s.registry.Disconnect(params.ConnId)
	s.presence.Forget(params.ConnId)

	if _, err := s.connRepo.Remove(ctx, params.ConnId); err != nil {
		if !errors.Is(err, connection.ErrNotFound) {
			return DisconnectResponse{}, fmt.Errorf("failed to remove connection: %w", err)
		}
		s.logger.DebugContext(ctx, "connection already removed", "connection_id", params.ConnId)
	}

	if !wasInRoom {
		return DisconnectResponse{}, nil
	}

	return DisconnectResponse{
		RoomKey: roomKey,
		Member:  member,
		Members: s.getMembers(ctx, roomKey),
		Conns:   s.getConnsByRoomKey(ctx, roomKey, params.ConnId),
	}, nil
}

type JoinRoomParams struct {
	ConnId  string
	RoomKey string
}

type LeftRoom struct {
	RoomKey string
	Member  protocol.Member
	Members []protocol.Member
	Conns   []connection.Conn
}

type JoinRoomResponse struct {
	Joined       bool
	JoinedMember protocol.Member
	Members      []protocol.Member
	// Conns are the other members of the room; the joiner is not included.
	Conns []connection.Conn
	// Left is set when the connection moved out of another room.
	Left *LeftRoom
}

// JoinRoom never sends playback state to the joiner: the next sync event from any member
// brings it in line.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if params.RoomKey == "" {
		return JoinRoomResponse{}, ErrEmptyRoomKey
	}

	if _, err := s.connRepo.Get(ctx, params.ConnId); err != nil {
		s.logger.InfoContext(ctx, "failed to get connection", "error", err)
		return JoinRoomResponse{}, ErrConnNotFound
	}

	previousMember, _ := s.presence.Member(params.ConnId)
	previousRoom, joined := s.registry.Join(params.ConnId, params.RoomKey)

	member, _ := s.presence.Member(params.ConnId)
	resp := JoinRoomResponse{
		Joined:       joined,
		JoinedMember: member,
		Members:      s.getMembers(ctx, params.RoomKey),
	}
	if !joined {
		return resp, nil
	}

	resp.Conns = s.getConnsByRoomKey(ctx, params.RoomKey, params.ConnId)
	if previousRoom != "" {
		resp.Left = &LeftRoom{
			RoomKey: previousRoom,
			Member:  previousMember,
			Members: s.getMembers(ctx, previousRoom),
			Conns:   s.getConnsByRoomKey(ctx, previousRoom, params.ConnId),
		}
	}

	return resp, nil
}

type LeaveRoomParams struct {
	ConnId string
	// RoomKey may be empty to leave whatever room the connection is in.
	RoomKey string
}

type LeaveRoomResponse struct {
	Left    bool
	RoomKey string
	Member  protocol.Member
	Members []protocol.Member
	Conns   []connection.Conn
}

// LeaveRoom is idempotent: leaving a room twice, or after disconnect, returns Left=false.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	member, _ := s.presence.Member(params.ConnId)

	roomKey, left := s.registry.Leave(params.ConnId, params.RoomKey)
	if !left {
		s.logger.DebugContext(ctx, "connection not in room", "connection_id", params.ConnId, "room_key", params.RoomKey)
		return LeaveRoomResponse{}, nil
	}

	return LeaveRoomResponse{
		Left:    true,
		RoomKey: roomKey,
		Member:  member,
		Members: s.getMembers(ctx, roomKey),
		Conns:   s.getConnsByRoomKey(ctx, roomKey, params.ConnId),
	}, nil
}

func (s service) MembersOf(ctx context.Context, roomKey string) ([]protocol.Member, error) {
	members, err := s.presence.Members(ctx, roomKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}

	return members, nil
}
