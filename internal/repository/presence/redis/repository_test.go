package redis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anitogether/relay/internal/repository/presence"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*repo, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, time.Minute, slog.Default()), s
}

func TestMembersKeepJoinOrder(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	joinedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.AddMember(ctx, "watch_42", protocol.Member{
			ConnectionId: id,
			UserId:       "user-" + id,
			Name:         "name-" + id,
			JoinedAt:     joinedAt,
		}))
	}
	// re-adding must not move the member to the end
	require.NoError(t, r.AddMember(ctx, "watch_42", protocol.Member{ConnectionId: "c", UserId: "user-c", Name: "renamed", JoinedAt: joinedAt}))

	members, err := r.GetMembers(ctx, "watch_42")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "c", members[0].ConnectionId)
	assert.Equal(t, "renamed", members[0].Name)
	assert.Equal(t, "a", members[1].ConnectionId)
	assert.Equal(t, "b", members[2].ConnectionId)
	assert.Equal(t, joinedAt, members[1].JoinedAt)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	require.NoError(t, r.AddMember(ctx, "watch_42", protocol.Member{ConnectionId: "a", Name: "Alice"}))
	require.NoError(t, r.RemoveMember(ctx, "watch_42", "a"))
	assert.ErrorIs(t, r.RemoveMember(ctx, "watch_42", "a"), presence.ErrMemberNotFound)

	members, err := r.GetMembers(ctx, "watch_42")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestPresenceExpires(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRepo(t)

	require.NoError(t, r.AddMember(ctx, "watch_42", protocol.Member{ConnectionId: "a", Name: "Alice"}))
	assert.Equal(t, time.Minute, s.TTL("presence:member:a"))
	assert.Equal(t, time.Minute, s.TTL("presence:room:watch_42:members"))

	s.FastForward(2 * time.Minute)

	members, err := r.GetMembers(ctx, "watch_42")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRefreshMember(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRepo(t)

	require.NoError(t, r.AddMember(ctx, "watch_42", protocol.Member{ConnectionId: "a", Name: "Alice"}))
	s.FastForward(40 * time.Second)
	require.NoError(t, r.RefreshMember(ctx, "watch_42", "a"))
	assert.Equal(t, time.Minute, s.TTL("presence:member:a"))
	assert.Equal(t, time.Minute, s.TTL("presence:room:watch_42:members"))

	s.FastForward(40 * time.Second)
	members, err := r.GetMembers(ctx, "watch_42")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	assert.ErrorIs(t, r.RefreshMember(ctx, "watch_42", "ghost"), presence.ErrMemberNotFound)
}
