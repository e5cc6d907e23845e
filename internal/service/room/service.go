package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anitogether/relay/internal/repository/connection"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/benbjohnson/clock"
)

var (
	ErrNotInRoom    = errors.New("connection is not a member of the room")
	ErrConnNotFound = errors.New("connection not found")
	ErrEmptyRoomKey = errors.New("room key is empty")
)

type iRoomRegistry interface {
	Join(connId, roomKey string) (previousRoom string, joined bool)
	Leave(connId, roomKey string) (string, bool)
	Disconnect(connId string) (string, bool)
	MembersOf(roomKey string) []string
	IsMember(connId, roomKey string) bool
}

type iConnRepo interface {
	Add(ctx context.Context, conn connection.Conn, identity protocol.Identity) error
	Remove(ctx context.Context, connId string) (connection.Entry, error)
	Get(ctx context.Context, connId string) (connection.Entry, error)
	GetMany(ctx context.Context, connIds []string) []connection.Entry
	All(ctx context.Context) []connection.Entry
}

type iPresence interface {
	Track(connId string, identity protocol.Identity)
	Forget(connId string)
	Member(connId string) (protocol.Member, bool)
	Members(ctx context.Context, roomKey string) ([]protocol.Member, error)
}

type service struct {
	registry iRoomRegistry
	connRepo iConnRepo
	presence iPresence
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(registry iRoomRegistry, connRepo iConnRepo, presence iPresence, clk clock.Clock, logger *slog.Logger) *service {
	if clk == nil {
		clk = clock.New()
	}

	return &service{
		registry: registry,
		connRepo: connRepo,
		presence: presence,
		clock:    clk,
		logger:   logger,
	}
}
