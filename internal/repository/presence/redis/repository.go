package redis

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// nextScore appends ARGV[1] to the sorted set KEYS[1] with a score one higher than the
// current maximum, which keeps members in join order. Re-adding keeps the original score.
var nextScoreScript = redis.NewScript(`
	local existing = redis.call('ZSCORE', KEYS[1], ARGV[1])
	if existing then
		return tonumber(existing)
	end
	local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local nextScore = 1
	if #maxScore > 0 then
		nextScore = tonumber(maxScore[2]) + 1
	end
	redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
	return nextScore
`)

type repo struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRepo(rc *redis.Client, ttl time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc:     rc,
		ttl:    ttl,
		logger: logger,
	}
}
