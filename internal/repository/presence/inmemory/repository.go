package inmemory

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/anitogether/relay/internal/repository/presence"
	"github.com/anitogether/relay/pkg/protocol"
)

type repo struct {
	rooms  map[string][]protocol.Member
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		rooms:  make(map[string][]protocol.Member),
		logger: logger,
	}
}

func (r *repo) AddMember(ctx context.Context, roomKey string, member protocol.Member) error {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey, "connection_id", member.ConnectionId)
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomKey]
	idx := slices.IndexFunc(members, func(m protocol.Member) bool {
		return m.ConnectionId == member.ConnectionId
	})
	if idx >= 0 {
		members[idx] = member
		return nil
	}

	r.rooms[roomKey] = append(members, member)
	return nil
}

func (r *repo) RemoveMember(ctx context.Context, roomKey, connId string) error {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey, "connection_id", connId)
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomKey]
	idx := slices.IndexFunc(members, func(m protocol.Member) bool {
		return m.ConnectionId == connId
	})
	if idx < 0 {
		r.logger.DebugContext(ctx, "returned", "error", presence.ErrMemberNotFound)
		return presence.ErrMemberNotFound
	}

	members = slices.Delete(members, idx, idx+1)
	if len(members) == 0 {
		delete(r.rooms, roomKey)
		return nil
	}
	r.rooms[roomKey] = members

	return nil
}

// RefreshMember only checks the member exists, in-memory presence does not expire.
func (r *repo) RefreshMember(ctx context.Context, roomKey, connId string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !slices.ContainsFunc(r.rooms[roomKey], func(m protocol.Member) bool {
		return m.ConnectionId == connId
	}) {
		return presence.ErrMemberNotFound
	}

	return nil
}

func (r *repo) GetMembers(ctx context.Context, roomKey string) ([]protocol.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]protocol.Member{}, r.rooms[roomKey]...), nil
}
