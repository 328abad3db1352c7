package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calderhq/traderpulse/internal/domain"
)

// ScoreStore implements domain.ScoreSink using PostgreSQL.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a new ScoreStore backed by the given connection pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

const scoreSelectCols = `entity_id, timestamp, activity_level, raw_score,
	trading_volume, trade_frequency, portfolio_changes`

func scanScoreRows(rows pgx.Rows) ([]domain.ActivityScore, error) {
	var scores []domain.ActivityScore
	for rows.Next() {
		var s domain.ActivityScore
		if err := rows.Scan(
			&s.EntityID, &s.Timestamp, &s.ActivityLevel, &s.RawScore,
			&s.TradingVolume, &s.TradeFrequency, &s.PortfolioChanges,
		); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// InsertScore inserts a single activity score. A score recomputed for the
// same entity and timestamp is silently skipped via ON CONFLICT DO NOTHING.
func (s *ScoreStore) InsertScore(ctx context.Context, score domain.ActivityScore) error {
	const query = `
		INSERT INTO activity_scores (
			entity_id, timestamp, activity_level, raw_score,
			trading_volume, trade_frequency, portfolio_changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_id, timestamp) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		score.EntityID, score.Timestamp, score.ActivityLevel, score.RawScore,
		score.TradingVolume, score.TradeFrequency, score.PortfolioChanges,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert score %s: %w", score.EntityID, err)
	}
	return nil
}

// ListRange returns the scores for an entity within [from, to], oldest first.
func (s *ScoreStore) ListRange(ctx context.Context, id domain.EntityID, from, to time.Time) ([]domain.ActivityScore, error) {
	query := `SELECT ` + scoreSelectCols + `
		FROM activity_scores
		WHERE entity_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scores for %s: %w", id, err)
	}
	defer rows.Close()

	scores, err := scanScoreRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan scores for %s: %w", id, err)
	}
	return scores, nil
}

// ListBefore returns all scores with timestamp strictly before the given time
// (for archiving), oldest first.
func (s *ScoreStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityScore, error) {
	query := `SELECT ` + scoreSelectCols + `
		FROM activity_scores WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list scores before: %w", err)
	}
	defer rows.Close()
	return scanScoreRows(rows)
}

// DeleteBefore deletes all scores with timestamp before the given time.
// Returns the number deleted.
func (s *ScoreStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activity_scores WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete scores before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.ScoreSink = (*ScoreStore)(nil)
