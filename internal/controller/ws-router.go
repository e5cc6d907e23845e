package controller

import (
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(
		wsrouter.WithValidator(c.validate),
		wsrouter.WithErrorHandler(c.handleError),
		wsrouter.WithPongWait(c.wsConfig.PongWait),
	)
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())

	wsrouter.Handle(mux, protocol.TypeAlive, c.handleAlive)

	// room
	wsrouter.Handle(mux, protocol.TypeJoinRoom, c.handleJoinRoom)
	wsrouter.Handle(mux, protocol.TypeLeaveRoom, c.handleLeaveRoom)

	// relay
	wsrouter.Handle(mux, protocol.TypeWatchSync, c.handleWatchSync)
	wsrouter.Handle(mux, protocol.TypeRoomMessage, c.handleRoomMessage)
	wsrouter.Handle(mux, protocol.TypeSendGlobalMessage, c.handleGlobalMessage)

	return mux
}
