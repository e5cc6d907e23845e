package redis

import (
	"context"
	"time"

	"github.com/anitogether/relay/internal/repository/presence"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/redis/go-redis/v9"
)

type member struct {
	UserId   string `redis:"user_id"`
	Name     string `redis:"name"`
	Avatar   string `redis:"avatar"`
	JoinedAt int64  `redis:"joined_at"`
}

func (r repo) getMemberKey(connId string) string {
	return "presence:member:" + connId
}

func (r repo) getMemberListKey(roomKey string) string {
	return "presence:room:" + roomKey + ":members"
}

func (r repo) AddMember(ctx context.Context, roomKey string, m protocol.Member) error {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey, "connection_id", m.ConnectionId)
	memberKey := r.getMemberKey(m.ConnectionId)
	memberListKey := r.getMemberListKey(roomKey)

	if err := nextScoreScript.Run(ctx, r.rc, []string{memberListKey}, m.ConnectionId).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, memberKey, member{
		UserId:   m.UserId,
		Name:     m.Name,
		Avatar:   m.Avatar,
		JoinedAt: m.JoinedAt.UnixMilli(),
	})
	pipe.Expire(ctx, memberKey, r.ttl)
	pipe.Expire(ctx, memberListKey, r.ttl)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) RemoveMember(ctx context.Context, roomKey, connId string) error {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey, "connection_id", connId)
	pipe := r.rc.TxPipeline()
	removed := pipe.ZRem(ctx, r.getMemberListKey(roomKey), connId)
	pipe.Del(ctx, r.getMemberKey(connId))

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	if removed.Val() == 0 {
		r.logger.DebugContext(ctx, "returned", "error", presence.ErrMemberNotFound)
		return presence.ErrMemberNotFound
	}

	return nil
}

// RefreshMember extends the TTL of a member that is still connected. It reports
// presence.ErrMemberNotFound when the member's hash has already expired.
func (r repo) RefreshMember(ctx context.Context, roomKey, connId string) error {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey, "connection_id", connId)
	pipe := r.rc.TxPipeline()
	refreshed := pipe.Expire(ctx, r.getMemberKey(connId), r.ttl)
	pipe.Expire(ctx, r.getMemberListKey(roomKey), r.ttl)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	if !refreshed.Val() {
		r.logger.DebugContext(ctx, "returned", "error", presence.ErrMemberNotFound)
		return presence.ErrMemberNotFound
	}

	return nil
}

func (r repo) GetMembers(ctx context.Context, roomKey string) ([]protocol.Member, error) {
	r.logger.DebugContext(ctx, "called", "room_key", roomKey)
	connIds, err := r.rc.ZRange(ctx, r.getMemberListKey(roomKey), 0, -1).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(connIds))
	for _, connId := range connIds {
		cmds = append(cmds, pipe.HGetAll(ctx, r.getMemberKey(connId)))
	}
	if len(cmds) > 0 {
		if err := r.executePipe(ctx, pipe); err != nil {
			r.logger.DebugContext(ctx, "returned", "error", err)
			return nil, err
		}
	}

	members := make([]protocol.Member, 0, len(connIds))
	for i, cmd := range cmds {
		var m member
		if err := cmd.Scan(&m); err != nil {
			r.logger.DebugContext(ctx, "returned", "error", err)
			return nil, err
		}

		// the hash expired while the list entry survived
		if m.Name == "" && m.UserId == "" {
			continue
		}

		members = append(members, protocol.Member{
			ConnectionId: connIds[i],
			UserId:       m.UserId,
			Name:         m.Name,
			Avatar:       m.Avatar,
			JoinedAt:     time.UnixMilli(m.JoinedAt).UTC(),
		})
	}

	return members, nil
}
