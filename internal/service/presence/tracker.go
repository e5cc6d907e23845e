package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	presenceStore "github.com/anitogether/relay/internal/repository/presence"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/benbjohnson/clock"
)

type iPresenceRepo interface {
	AddMember(ctx context.Context, roomKey string, member protocol.Member) error
	RemoveMember(ctx context.Context, roomKey, connId string) error
	RefreshMember(ctx context.Context, roomKey, connId string) error
	GetMembers(ctx context.Context, roomKey string) ([]protocol.Member, error)
}

// Tracker derives room presence from registry join/leave notifications. It never blocks
// the relay: store failures are logged and swallowed.
type Tracker struct {
	repo   iPresenceRepo
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.RWMutex
	identities map[string]protocol.Identity
	members    map[string]protocol.Member
	rooms      map[string]string
}

func NewTracker(repo iPresenceRepo, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}

	return &Tracker{
		repo:       repo,
		clock:      clk,
		logger:     logger,
		identities: make(map[string]protocol.Identity),
		members:    make(map[string]protocol.Member),
		rooms:      make(map[string]string),
	}
}

// Track binds a connection to the identity supplied by the auth collaborator.
func (t *Tracker) Track(connId string, identity protocol.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.identities[connId] = identity
}

func (t *Tracker) Forget(connId string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.identities, connId)
	delete(t.members, connId)
	delete(t.rooms, connId)
}

func (t *Tracker) Identity(connId string) (protocol.Identity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	identity, ok := t.identities[connId]
	return identity, ok
}

// Member returns the presence snapshot taken when connId joined its current room.
func (t *Tracker) Member(connId string) (protocol.Member, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	member, ok := t.members[connId]
	return member, ok
}

func (t *Tracker) MemberJoined(roomKey, connId string) {
	t.mu.Lock()
	identity := t.identities[connId]
	member := protocol.Member{
		ConnectionId: connId,
		UserId:       identity.Id,
		Name:         identity.Name,
		Avatar:       identity.Avatar,
		JoinedAt:     t.clock.Now().UTC(),
	}
	t.members[connId] = member
	t.rooms[connId] = roomKey
	t.mu.Unlock()

	ctx := context.Background()
	if err := t.repo.AddMember(ctx, roomKey, member); err != nil {
		t.logger.WarnContext(ctx, "failed to store presence", "room_key", roomKey, "connection_id", connId, "error", err)
	}
}

func (t *Tracker) MemberLeft(roomKey, connId string) {
	t.mu.Lock()
	if t.rooms[connId] == roomKey {
		delete(t.members, connId)
		delete(t.rooms, connId)
	}
	t.mu.Unlock()

	ctx := context.Background()
	if err := t.repo.RemoveMember(ctx, roomKey, connId); err != nil {
		t.logger.WarnContext(ctx, "failed to remove presence", "room_key", roomKey, "connection_id", connId, "error", err)
	}
}

func (t *Tracker) Members(ctx context.Context, roomKey string) ([]protocol.Member, error) {
	members, err := t.repo.GetMembers(ctx, roomKey)
	if err != nil {
		t.logger.InfoContext(ctx, "failed to get presence", "room_key", roomKey, "error", err)
		return nil, err
	}

	if members == nil {
		members = []protocol.Member{}
	}

	return members, nil
}

// Refresh keeps the stored presence of every joined member alive. A member whose entry
// already expired is stored again from its snapshot.
func (t *Tracker) Refresh(ctx context.Context) {
	type entry struct {
		roomKey string
		member  protocol.Member
	}

	t.mu.RLock()
	entries := make([]entry, 0, len(t.rooms))
	for connId, roomKey := range t.rooms {
		entries = append(entries, entry{roomKey: roomKey, member: t.members[connId]})
	}
	t.mu.RUnlock()

	for _, e := range entries {
		err := t.repo.RefreshMember(ctx, e.roomKey, e.member.ConnectionId)
		if errors.Is(err, presenceStore.ErrMemberNotFound) {
			err = t.repo.AddMember(ctx, e.roomKey, e.member)
		}
		if err != nil {
			t.logger.WarnContext(ctx, "failed to refresh presence", "room_key", e.roomKey, "connection_id", e.member.ConnectionId, "error", err)
		}
	}
}

// Run calls Refresh every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := t.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}
