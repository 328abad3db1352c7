package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calderhq/traderpulse/internal/domain"
)

// ScoreCache implements domain.ScoreCache using Redis strings. Each entity's
// latest score is stored as JSON at key "score:latest:{entityID}" so that
// server processes without a local history window can serve current scores.
type ScoreCache struct {
	rdb *redis.Client
}

// NewScoreCache creates a ScoreCache backed by the given Client.
func NewScoreCache(c *Client) *ScoreCache {
	return &ScoreCache{rdb: c.Raw()}
}

func scoreKey(entityID domain.EntityID) string {
	return "score:latest:" + string(entityID)
}

// SetLatest stores the latest activity score for an entity.
func (sc *ScoreCache) SetLatest(ctx context.Context, score domain.ActivityScore) error {
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("redis: marshal score %s: %w", score.EntityID, err)
	}
	if err := sc.rdb.Set(ctx, scoreKey(score.EntityID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set score %s: %w", score.EntityID, err)
	}
	return nil
}

// GetLatest retrieves the latest activity score for an entity.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *ScoreCache) GetLatest(ctx context.Context, entityID domain.EntityID) (domain.ActivityScore, error) {
	data, err := sc.rdb.Get(ctx, scoreKey(entityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ActivityScore{}, domain.ErrNotFound
		}
		return domain.ActivityScore{}, fmt.Errorf("redis: get score %s: %w", entityID, err)
	}

	var score domain.ActivityScore
	if err := json.Unmarshal(data, &score); err != nil {
		return domain.ActivityScore{}, fmt.Errorf("redis: decode score %s: %w", entityID, err)
	}
	return score, nil
}

// GetLatestAll retrieves the latest scores for multiple entities using a
// pipeline. Entities whose keys do not exist are silently omitted.
func (sc *ScoreCache) GetLatestAll(ctx context.Context, entityIDs []domain.EntityID) (map[domain.EntityID]domain.ActivityScore, error) {
	if len(entityIDs) == 0 {
		return map[domain.EntityID]domain.ActivityScore{}, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make(map[domain.EntityID]*redis.StringCmd, len(entityIDs))
	for _, id := range entityIDs {
		cmds[id] = pipe.Get(ctx, scoreKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get scores pipeline: %w", err)
	}

	result := make(map[domain.EntityID]domain.ActivityScore, len(entityIDs))
	for id, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var score domain.ActivityScore
		if err := json.Unmarshal(data, &score); err != nil {
			continue
		}
		result[id] = score
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.ScoreCache = (*ScoreCache)(nil)
