package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/anitogether/relay/internal/service/room"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/validator"
	"github.com/anitogether/relay/pkg/wsconn"
	"github.com/anitogether/relay/pkg/wsrouter"
	"github.com/gorilla/websocket"
)

type iRoomService interface {
	Connect(context.Context, *room.ConnectParams) error
	Disconnect(context.Context, *room.DisconnectParams) (room.DisconnectResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	MembersOf(context.Context, string) ([]protocol.Member, error)
	BroadcastSync(context.Context, *room.BroadcastSyncParams) (room.BroadcastSyncResponse, error)
	BroadcastChat(context.Context, *room.BroadcastChatParams) (room.BroadcastChatResponse, error)
	BroadcastGlobal(context.Context, *room.BroadcastGlobalParams) (room.BroadcastGlobalResponse, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	wsRouter    *wsrouter.WSRouter
	wsConfig    wsconn.Config
	validate    *validator.Validator
	logger      *slog.Logger
}

func NewController(roomService iRoomService, wsConfig wsconn.Config, logger *slog.Logger) *controller {
	c := &controller{
		roomService: roomService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		wsConfig: wsConfig,
		validate: validator.NewValidator(),
		logger:   logger,
	}
	c.wsRouter = c.getWSRouter()

	return c
}
