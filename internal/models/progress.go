package models

import "time"

// StreakState is derived from history on every read; it is never ground truth.
type StreakState struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// ProgressSnapshot is the level/XP view of a user's history.
type ProgressSnapshot struct {
	TotalXP        int     `json:"total_xp"`
	SessionXP      int     `json:"session_xp"`
	AchievementXP  int     `json:"achievement_xp"`
	Level          int     `json:"level"`
	XPIntoLevel    int     `json:"xp_into_level"`
	XPForNextLevel int     `json:"xp_for_next_level"`
	WeeklyCount    int     `json:"weekly_count"`
	WeeklyGoal     int     `json:"weekly_goal"`
	WeeklyRatio    float64 `json:"weekly_ratio"`
	TotalVolumeKg  float64 `json:"total_volume_kg"`
	TotalSessions  int     `json:"total_sessions"`
}

// RankingEntry is one user's leaderboard row for a ranking period.
// Position 0 means unranked.
type RankingEntry struct {
	UserID        int       `json:"user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
	PeriodStart   time.Time `json:"period_start"`
	TotalVolumeKg float64   `json:"total_volume_kg"`
	WorkoutCount  int       `json:"workout_count"`
	Consistency   float64   `json:"consistency"`
	StrengthProxy float64   `json:"strength_proxy"`
	Score         float64   `json:"score"`
	Position      int       `json:"position"`
}
