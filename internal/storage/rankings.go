package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/voltbora/volt/internal/models"
)

// UpsertRanking writes a user's row for a ranking period. Each user only ever
// writes their own row, so the last write wins.
func (db *DB) UpsertRanking(ctx context.Context, e models.RankingEntry) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO rankings (user_id, period_start, total_volume, workout_count,
		 consistency, strength_proxy, score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (user_id, period_start) DO UPDATE SET
		   total_volume = EXCLUDED.total_volume,
		   workout_count = EXCLUDED.workout_count,
		   consistency = EXCLUDED.consistency,
		   strength_proxy = EXCLUDED.strength_proxy,
		   score = EXCLUDED.score,
		   updated_at = NOW()`,
		e.UserID, e.PeriodStart, e.TotalVolumeKg, e.WorkoutCount,
		e.Consistency, e.StrengthProxy, e.Score)
	if err != nil {
		return fmt.Errorf("upserting ranking for user %d: %w", e.UserID, err)
	}
	return nil
}

// TopRankings returns the best limit rows of a period joined with the user's
// display name and registration time. Positions are not assigned here.
func (db *DB) TopRankings(ctx context.Context, periodStart time.Time, limit int) ([]models.RankingEntry, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT r.user_id, COALESCE(u.display_name, ''), COALESCE(u.created_at, 'epoch'::timestamptz),
		 r.period_start, r.total_volume, r.workout_count, r.consistency, r.strength_proxy, r.score
		 FROM rankings r
		 LEFT JOIN users u ON u.id = r.user_id
		 WHERE r.period_start = $1
		 ORDER BY r.score DESC, r.total_volume DESC, u.created_at ASC, r.user_id ASC
		 LIMIT $2`,
		periodStart, limit)
	if err != nil {
		return nil, fmt.Errorf("querying rankings: %w", err)
	}
	defer rows.Close()

	var result []models.RankingEntry
	for rows.Next() {
		var e models.RankingEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.RegisteredAt, &e.PeriodStart,
			&e.TotalVolumeKg, &e.WorkoutCount, &e.Consistency, &e.StrengthProxy, &e.Score); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
