package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/anitogether/relay/internal/service/room"
	"github.com/anitogether/relay/pkg/ctxlogger"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/wsconn"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type envelope map[string]any

func (c controller) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.WarnContext(ctx, "failed to write json", "error", err)
	}
}

func (c controller) healthz(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(r.Context(), w, http.StatusOK, envelope{"status": "ok"})
}

type identityQuery struct {
	UserId string `json:"user-id" validate:"max=128"`
	Name   string `json:"name" validate:"required,max=64"`
	Avatar string `json:"avatar" validate:"omitempty,url"`
}

func (c controller) getIdentity(r *http.Request) (protocol.Identity, bool, any) {
	query := r.URL.Query()
	q := identityQuery{
		UserId: query.Get("user-id"),
		Name:   query.Get("name"),
		Avatar: query.Get("avatar"),
	}

	if validationErrors, ok := c.validate.Validate(q); !ok {
		return protocol.Identity{}, false, validationErrors
	}

	if q.UserId == "" {
		q.UserId = "guest-" + uuid.NewString()
	}

	return protocol.Identity{
		Id:     q.UserId,
		Name:   q.Name,
		Avatar: q.Avatar,
	}, true, nil
}

func (c controller) connect(w http.ResponseWriter, r *http.Request) {
	identity, ok, validationErrors := c.getIdentity(r)
	if !ok {
		c.logger.InfoContext(r.Context(), "invalid identity", "errors", validationErrors)
		c.writeJSON(r.Context(), w, http.StatusBadRequest, envelope{"errors": validationErrors})
		return
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	conn := wsconn.New(ws, c.wsConfig)
	conn.Start()

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("connection_id", conn.Id()))
	ctx = context.WithValue(ctx, identityCtxKey, identity)

	if err := c.roomService.Connect(ctx, &room.ConnectParams{
		Conn:     conn,
		Identity: identity,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect", "error", err)
		conn.Close(websocket.CloseInternalServerErr, "failed to connect")
		return
	}
	defer c.disconnect(ctx, conn)

	c.logger.InfoContext(ctx, "connected", "user_id", identity.Id)

	if err := c.wsRouter.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "connection closed", "error", err)
	}
}

func (c controller) disconnect(ctx context.Context, conn *wsconn.Conn) {
	// The request context may already be canceled by shutdown, but the notifications still go out.
	ctx = context.WithoutCancel(ctx)

	disconnectResp, err := c.roomService.Disconnect(ctx, &room.DisconnectParams{
		ConnId: conn.Id(),
	})
	conn.Close(websocket.CloseNormalClosure, "")
	if err != nil {
		c.logger.WarnContext(ctx, "failed to disconnect", "error", err)
		return
	}

	if disconnectResp.RoomKey != "" {
		c.broadcast(ctx, disconnectResp.Conns, &protocol.Output{
			Type: protocol.TypeMemberLeft,
			Payload: protocol.MembersPayload{
				RoomKey: disconnectResp.RoomKey,
				Member:  disconnectResp.Member,
				Members: disconnectResp.Members,
			},
		})
	}
}

func (c controller) getMembers(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "room-key")

	members, err := c.roomService.MembersOf(r.Context(), roomKey)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to get members", "room_key", roomKey, "error", err)
		c.writeJSON(r.Context(), w, http.StatusServiceUnavailable, envelope{"error": "presence unavailable"})
		return
	}

	c.writeJSON(r.Context(), w, http.StatusOK, envelope{"data": protocol.JoinedRoomPayload{
		RoomKey: roomKey,
		Members: members,
	}})
}
