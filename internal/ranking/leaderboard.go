package ranking

import (
	"context"
	"log"
	"strconv"
	"time"

	"pong-platform/backend/internal/models"

	goredis "github.com/redis/go-redis/v9"
)

const (
	leaderboardKey = "leaderboard:elo"
	leaderboardTTL = 5 * time.Minute
	redisTimeout   = 2 * time.Second
)

// Leaderboard is a Redis sorted-set mirror of user ratings. It is a cache
// only; the database stays the source of truth and every operation here is
// best-effort.
type Leaderboard struct {
	redis *goredis.Client
}

// NewLeaderboard wraps a Redis connection.
func NewLeaderboard(redisClient *goredis.Client) *Leaderboard {
	return &Leaderboard{redis: redisClient}
}

// Set writes one user's rating into the sorted set.
func (l *Leaderboard) Set(userID int64, score int) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	err := l.redis.ZAdd(ctx, leaderboardKey, goredis.Z{
		Score:  float64(score),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		log.Printf("[LEADERBOARD] Failed to update user %d: %v", userID, err)
	}
}

// Fill replaces the cached set with a full ranked snapshot.
func (l *Leaderboard) Fill(users []models.User) {
	if len(users) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	members := make([]goredis.Z, 0, len(users))
	for _, u := range users {
		members = append(members, goredis.Z{
			Score:  float64(u.Score),
			Member: strconv.FormatInt(u.ID, 10),
		})
	}

	pipe := l.redis.TxPipeline()
	pipe.Del(ctx, leaderboardKey)
	pipe.ZAdd(ctx, leaderboardKey, members...)
	pipe.Expire(ctx, leaderboardKey, leaderboardTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[LEADERBOARD] Failed to refresh cache: %v", err)
	}
}

// TopIDs reads the highest-rated user ids from the cache. A miss or error
// returns nil and the caller falls back to the database.
func (l *Leaderboard) TopIDs(limit int) []int64 {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	members, err := l.redis.ZRevRange(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil || len(members) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

// Invalidate drops the cached set.
func (l *Leaderboard) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := l.redis.Del(ctx, leaderboardKey).Err(); err != nil {
		log.Printf("[LEADERBOARD] Failed to invalidate cache: %v", err)
	}
}
