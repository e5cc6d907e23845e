package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/internal/service/room"
	"github.com/anitogether/relay/pkg/ctxlogger"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/wsconn"
	"github.com/anitogether/relay/pkg/wsrouter"
)

type EmptyStruct struct{}

func (c controller) handleAlive(_ context.Context, _ *wsconn.Conn, _ EmptyStruct) error {
	return nil
}

func (c controller) handleJoinRoom(ctx context.Context, conn *wsconn.Conn, input protocol.JoinRoomInput) error {
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_key", input.RoomKey))

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		ConnId:  conn.Id(),
		RoomKey: input.RoomKey,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if left := joinRoomResp.Left; left != nil {
		c.broadcast(ctx, left.Conns, &protocol.Output{
			Type: protocol.TypeMemberLeft,
			Payload: protocol.MembersPayload{
				RoomKey: left.RoomKey,
				Member:  left.Member,
				Members: left.Members,
			},
		})
	}

	if err := conn.Send(&protocol.Output{
		Type: protocol.TypeJoinedRoom,
		Payload: protocol.JoinedRoomPayload{
			RoomKey: input.RoomKey,
			Members: joinRoomResp.Members,
		},
	}); err != nil {
		return fmt.Errorf("failed to send joined room: %w", err)
	}

	if joinRoomResp.Joined {
		c.broadcast(ctx, joinRoomResp.Conns, &protocol.Output{
			Type: protocol.TypeMemberJoined,
			Payload: protocol.MembersPayload{
				RoomKey: input.RoomKey,
				Member:  joinRoomResp.JoinedMember,
				Members: joinRoomResp.Members,
			},
		})
	}

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, conn *wsconn.Conn, input protocol.LeaveRoomInput) error {
	leaveRoomResp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		ConnId:  conn.Id(),
		RoomKey: input.RoomKey,
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	if !leaveRoomResp.Left {
		return nil
	}

	c.broadcast(ctx, leaveRoomResp.Conns, &protocol.Output{
		Type: protocol.TypeMemberLeft,
		Payload: protocol.MembersPayload{
			RoomKey: leaveRoomResp.RoomKey,
			Member:  leaveRoomResp.Member,
			Members: leaveRoomResp.Members,
		},
	})

	return nil
}

func (c controller) handleWatchSync(ctx context.Context, conn *wsconn.Conn, input protocol.SyncEvent) error {
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_key", input.RoomKey))

	syncResp, err := c.roomService.BroadcastSync(ctx, &room.BroadcastSyncParams{
		SenderId: conn.Id(),
		Event:    input,
	})
	if err != nil {
		return fmt.Errorf("failed to relay sync: %w", err)
	}

	c.broadcast(ctx, syncResp.Conns, &protocol.Output{
		Type:    protocol.TypeWatchSync,
		Payload: syncResp.Event,
	})

	return nil
}

func (c controller) handleRoomMessage(ctx context.Context, conn *wsconn.Conn, input protocol.RoomChatInput) error {
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_key", input.RoomKey))

	chatResp, err := c.roomService.BroadcastChat(ctx, &room.BroadcastChatParams{
		SenderId: conn.Id(),
		RoomKey:  input.RoomKey,
		Message:  input.ChatMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to relay room message: %w", err)
	}

	c.broadcast(ctx, chatResp.Conns, &protocol.Output{
		Type:    protocol.TypeRoomMessage,
		Payload: chatResp.Message,
	})

	return nil
}

func (c controller) handleGlobalMessage(ctx context.Context, conn *wsconn.Conn, input protocol.ChatMessage) error {
	globalResp, err := c.roomService.BroadcastGlobal(ctx, &room.BroadcastGlobalParams{
		SenderId: conn.Id(),
		Message:  input,
	})
	if err != nil {
		return fmt.Errorf("failed to relay global message: %w", err)
	}

	c.broadcast(ctx, globalResp.Conns, &protocol.Output{
		Type:    protocol.TypeGlobalMessage,
		Payload: globalResp.Message,
	})

	return nil
}

// broadcast delivers output to every conn. A failing recipient is logged and skipped.
func (c controller) broadcast(ctx context.Context, conns []connection.Conn, output *protocol.Output) {
	for _, conn := range conns {
		if err := conn.Send(output); err != nil {
			c.logger.WarnContext(ctx, "failed to send", "recipient_id", conn.Id(), "type", output.Type, "error", err)
		}
	}
}

// handleError reports a failed message back to its sender only.
func (c controller) handleError(ctx context.Context, conn *wsconn.Conn, err error) {
	c.logger.WarnContext(ctx, "failed to handle message", "message_type", wsrouter.GetMessageTypeFromCtx(ctx), "error", err)

	payload := protocol.ErrorPayload{Message: err.Error()}

	var validationErr *wsrouter.ValidationFailedError
	if errors.As(err, &validationErr) {
		payload.Message = "validation failed"
		payload.Errors = validationErr.Errors
	}

	if sendErr := conn.Send(&protocol.Output{
		Type:    protocol.TypeError,
		Payload: payload,
	}); sendErr != nil {
		c.logger.InfoContext(ctx, "failed to send error", "error", sendErr)
	}
}
