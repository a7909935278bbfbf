package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voltbora/volt/internal/models"
)

// InsertSession inserts a workout session. Returns true if inserted, false if
// a session with the same ID already exists; sessions are never updated.
func (db *DB) InsertSession(ctx context.Context, s models.WorkoutSession) (bool, error) {
	exercises, err := json.Marshal(s.Exercises)
	if err != nil {
		return false, fmt.Errorf("encoding exercises: %w", err)
	}
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO workout_sessions (id, user_id, started_at, focus, duration_min, exercises)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.UserID, s.StartedAt, s.Focus, s.DurationMin, exercises)
	if err != nil {
		return false, fmt.Errorf("inserting session %s: %w", s.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentSessions returns up to limit sessions of a user, most recent first.
// A non-positive limit returns the full history.
func (db *DB) RecentSessions(ctx context.Context, userID, limit int) ([]models.WorkoutSession, error) {
	query := `SELECT id, user_id, started_at, focus, duration_min, exercises
		 FROM workout_sessions
		 WHERE user_id = $1
		 ORDER BY started_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return db.querySessions(ctx, query, args...)
}

// SessionsSince returns a user's sessions started at or after since, most recent first.
func (db *DB) SessionsSince(ctx context.Context, userID int, since time.Time) ([]models.WorkoutSession, error) {
	return db.querySessions(ctx,
		`SELECT id, user_id, started_at, focus, duration_min, exercises
		 FROM workout_sessions
		 WHERE user_id = $1 AND started_at >= $2
		 ORDER BY started_at DESC, id`,
		userID, since)
}

func (db *DB) querySessions(ctx context.Context, query string, args ...any) ([]models.WorkoutSession, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.WorkoutSession
	for rows.Next() {
		var s models.WorkoutSession
		var exercises []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.StartedAt, &s.Focus, &s.DurationMin, &exercises); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if err := json.Unmarshal(exercises, &s.Exercises); err != nil {
			return nil, fmt.Errorf("decoding exercises of session %s: %w", s.ID, err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
